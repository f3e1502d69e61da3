package wire

import "bytes"

// ReceiverState is a port's synchronization state with its peer.
type ReceiverState int

const (
	// Hunting means the receiver has not yet seen its peer's cookie and
	// is discarding bytes until it finds one.
	Hunting ReceiverState = iota
	// Ready means the receiver has synchronized on a cookie and is
	// decoding length-prefixed frames from the byte stream.
	Ready
)

func (s ReceiverState) String() string {
	switch s {
	case Hunting:
		return "Hunting"
	case Ready:
		return "Ready"
	default:
		return "Unknown"
	}
}

// Receiver reassembles the byte stream read off one serial port into
// frames, tracking whether the port has synchronized with its peer yet.
// It holds no I/O of its own: the caller feeds it bytes read from the
// port and drains decoded frames, the same push-buffer-then-drain shape
// package protocol uses for its ToDevice/ToStorage send queues.
//
// A Receiver starts Hunting and expects the configured direction's
// cookie from its peer. Once synchronized it stays Ready and decodes
// frames until Reset is called, which callers do when Poll reports a
// frame error. A fresh cookie arriving mid-stream (the peer rebooted)
// is handled inside Poll itself, without a Reset.
type Receiver struct {
	peerDirection Direction
	state         ReceiverState
	buf           bytes.Buffer
}

// NewReceiver constructs a Receiver expecting cookies and frames from a
// peer transmitting in peerDirection.
func NewReceiver(peerDirection Direction) *Receiver {
	return &Receiver{peerDirection: peerDirection, state: Hunting}
}

// State reports whether the receiver is still hunting for its peer's
// cookie or is synchronized and decoding frames.
func (r *Receiver) State() ReceiverState {
	return r.state
}

// Reset discards any buffered bytes and returns the receiver to the
// Hunting state, as if newly constructed.
func (r *Receiver) Reset() {
	r.buf.Reset()
	r.state = Hunting
}

// Feed appends newly read bytes to the receiver's internal buffer. It
// does not itself decode anything; call Poll afterward to drain
// whatever frames are now available.
func (r *Receiver) Feed(data []byte) {
	r.buf.Write(data)
}

// Poll attempts to make progress against the buffered bytes, returning
// every complete frame payload it can decode. While Hunting it scans
// for the peer's cookie, drops everything before it, transitions to
// Ready, and consumes the cookie itself; while Ready it decodes frames
// one at a time and stops when the buffer holds only a partial frame.
//
// A cookie observed mid-stream while already Ready is treated as the
// peer having rebooted: Poll resets decoding state and resumes hunting
// from that point rather than surfacing a CRC error for a frame that
// was never sent.
func (r *Receiver) Poll() (frames [][]byte, err error) {
	for {
		switch r.state {
		case Hunting:
			data := r.buf.Bytes()
			dir, offset, found := FindCookie(data)
			if !found {
				keep := len(data) - MagicBytesLen + 1
				if keep < 0 {
					keep = 0
				}
				r.buf.Next(len(data) - keep)
				return frames, nil
			}
			if dir != r.peerDirection {
				r.buf.Next(offset + 1)
				continue
			}
			r.buf.Next(offset + MagicBytesLen)
			r.state = Ready

		case Ready:
			data := r.buf.Bytes()
			if dir, offset, found := FindCookie(data); found && dir == r.peerDirection {
				r.buf.Next(offset + MagicBytesLen)
				continue
			}

			payload, consumed, decErr := DecodeFrame(data)
			if decErr == ErrIncompleteFrame {
				return frames, nil
			}
			if decErr != nil {
				r.buf.Next(consumed)
				return frames, decErr
			}
			r.buf.Next(consumed)
			frames = append(frames, payload)
		}
	}
}
