package protocol

import (
	"github.com/go-errors/errors"
)

// ErrorKind classifies a protocol-level failure by how the caller should
// react: retry, surface to the user, or treat the affected state as
// unrecoverable.
type ErrorKind int

const (
	// ErrKindTransport covers link-layer failures: a write timed out, a
	// port disconnected, a frame failed its checksum. The caller should
	// retry or wait for reconnection; no protocol state is lost.
	ErrKindTransport ErrorKind = iota
	// ErrKindProtocolViolation covers a peer sending a message illegal
	// for the current state machine state. The offending session is
	// aborted; the link itself stays usable.
	ErrKindProtocolViolation
	// ErrKindUserCancel covers a ui.UiCancel (or coordinator-initiated
	// Cancel) unwinding an in-progress proposal. Not a fault.
	ErrKindUserCancel
	// ErrKindStorageCorruption covers a mutation log that fails its CRC
	// or replays into an inconsistent state. Fatal to the affected
	// device or coordinator instance; it must not silently continue.
	ErrKindStorageCorruption
	// ErrKindFirmwareMismatch covers an OTA digest or partition-table
	// mismatch discovered during upgrade or boot validation.
	ErrKindFirmwareMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindTransport:
		return "transport"
	case ErrKindProtocolViolation:
		return "protocol_violation"
	case ErrKindUserCancel:
		return "user_cancel"
	case ErrKindStorageCorruption:
		return "storage_corruption"
	case ErrKindFirmwareMismatch:
		return "firmware_mismatch"
	default:
		return "unknown"
	}
}

// Error is the common wrapped error type returned across package
// boundaries in this module, carrying an ErrorKind so callers can branch
// on fatality without string-matching.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// WrapError annotates err with kind and a stack trace via go-errors, for
// consistent logging at package boundaries.
func WrapError(kind ErrorKind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrap(err, 1)}
}

var (
	// ErrUnknownDevice is returned when a message or send names a
	// DeviceId the coordinator has no record of.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrUnknownKey is returned when a message names a KeyId absent
	// from the key catalog.
	ErrUnknownKey = errors.New("unknown key")
	// ErrUnknownAccessStructure is returned when a message names an
	// AccessStructureRef absent from the key catalog.
	ErrUnknownAccessStructure = errors.New("unknown access structure")
	// ErrNonceExhausted is returned when a sign request needs more
	// nonces from a stream than are currently available.
	ErrNonceExhausted = errors.New("nonce stream exhausted")
	// ErrNonceReplay is returned when a device is asked to sign with a
	// nonce counter at or below one already expended.
	ErrNonceReplay = errors.New("nonce counter already expended")
	// ErrWrongState is returned when an operation is attempted against
	// a state machine not currently in a state that permits it.
	ErrWrongState = errors.New("operation illegal in current state")
	// ErrThresholdNotMet is returned when a signing or restoration
	// operation is attempted with fewer participants than required.
	ErrThresholdNotMet = errors.New("threshold not met")
	// ErrBadProofOfPossession is returned when a KeyGenResponse's proof
	// of possession fails verification.
	ErrBadProofOfPossession = errors.New("bad proof of possession")
	// ErrBadSignatureShare is returned when a device's signature share
	// fails verification against its committed nonce and share image.
	ErrBadSignatureShare = errors.New("bad signature share")
	// ErrBadBackup is returned when a physical backup phrase fails to
	// decode or checksum.
	ErrBadBackup = errors.New("bad backup phrase")
)
