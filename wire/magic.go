// Package wire implements the daisy-chain link-layer framing shared by
// every coordinator-device and device-device connection: a periodic
// magic-byte cookie used to detect and recover from misaligned peers,
// and a length-prefixed, CRC32-protected message envelope layered on
// top of it. It holds no transport I/O (see package transport) and no
// FROST semantics (see package protocol and package frost).
package wire

import "time"

// Direction distinguishes the two ends of a daisy-chain link: a
// coordinator/upstream device talking down the chain, versus a device
// talking back up it. The two directions use distinct magic-byte
// cookies so a device can tell, from the very first bytes it reads on
// a port, which role its peer is playing.
type Direction byte

const (
	Upstream   Direction = 0xFF
	Downstream Direction = 0xFE
)

// magicBytesPrefix is the first 7 bytes of every cookie, shared by both
// directions; only the final byte distinguishes Upstream from
// Downstream.
var magicBytesPrefix = [7]byte{0xf8, 0x79, 0x67, 0x4a, 0x13, 0x9b, 0xd0}

// MagicBytesLen is the length in bytes of the full periodic cookie.
const MagicBytesLen = 8

// MagicBytesPeriod is how often a hunting receiver re-emits its cookie
// while it has not yet seen anything recognizable from its peer.
const MagicBytesPeriod = 100 * time.Millisecond

// Cookie returns the 8-byte magic-byte sequence a sender in the given
// direction periodically emits until it sees traffic from its peer.
func Cookie(dir Direction) [MagicBytesLen]byte {
	var out [MagicBytesLen]byte
	copy(out[:7], magicBytesPrefix[:])
	out[7] = byte(dir)
	return out
}

// IsCookie reports whether buf is exactly the cookie for the given
// direction.
func IsCookie(buf []byte, dir Direction) bool {
	if len(buf) != MagicBytesLen {
		return false
	}
	want := Cookie(dir)
	for i := range want {
		if buf[i] != want[i] {
			return false
		}
	}
	return true
}

// FindCookie scans buf for the first occurrence of either direction's
// cookie, returning its direction, the byte offset it starts at, and
// whether one was found at all. A hunting receiver uses this to
// resynchronize after noise or a partial frame.
func FindCookie(buf []byte) (dir Direction, offset int, found bool) {
	for i := 0; i+MagicBytesLen <= len(buf); i++ {
		if IsCookie(buf[i:i+MagicBytesLen], Upstream) {
			return Upstream, i, true
		}
		if IsCookie(buf[i:i+MagicBytesLen], Downstream) {
			return Downstream, i, true
		}
	}
	return 0, 0, false
}
