package frost

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger. It defaults to the disabled
// backend; callers wire in a real backend via UseLogger.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by package frost. Call this
// before using the package if you want log output, as with the rest of
// the btcsuite-style logging convention used throughout this module.
func UseLogger(logger btclog.Logger) {
	log = logger
}
