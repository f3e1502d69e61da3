// Package transport routes wire-framed messages between a coordinator
// and the chain of devices attached to its ports. It owns no FROST
// semantics (see package protocol and package frost) and no byte-level
// framing (see package wire): it decides which port a destination's
// bytes go out on, and tracks each port's synchronization state.
package transport

import (
	"io"

	"github.com/frostsnap/frostsnap/protocol"
	"github.com/frostsnap/frostsnap/wire"
)

// ConnectionState is a port's lifecycle stage, independent of its wire
// synchronization state: a port can be Established (open, readable,
// writable) while its Receiver is still Hunting for a cookie.
type ConnectionState int

const (
	// Disconnected means the port is not open; it exists only as a
	// remembered identity (e.g. a serial number seen before).
	Disconnected ConnectionState = iota
	// Connected means the port was just opened and has not yet
	// completed the magic-byte handshake in either direction.
	Connected
	// Established means the port has synchronized with its peer and is
	// carrying frames.
	Established
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	case Established:
		return "Established"
	default:
		return "Unknown"
	}
}

// Port is the minimal interface transport needs from a physical or
// virtual link: a byte stream plus a stable identifier. Production code
// backs this with a USB CDC serial port; tests back it with an
// in-memory pipe.
type Port interface {
	io.ReadWriteCloser
	// ID returns a stable identifier for this port, e.g. a USB serial
	// number, used as the map key throughout transport.
	ID() string
}

// portState is transport's bookkeeping for one physical port: its
// lifecycle stage and its wire-level receiver.
type portState struct {
	conn     ConnectionState
	port     Port
	receiver *wire.Receiver
	// devices lists the DeviceId values that have Announce'd on this
	// port (a daisy chain may carry more than one device behind a
	// single USB connection).
	devices map[protocol.DeviceId]struct{}
}

func newPortState(p Port, peerDirection wire.Direction) *portState {
	return &portState{
		conn:     Connected,
		port:     p,
		receiver: wire.NewReceiver(peerDirection),
		devices:  make(map[protocol.DeviceId]struct{}),
	}
}
