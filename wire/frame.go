package wire

import (
	"encoding/binary"
	"fmt"
)

// frameHeaderLen is the 4-byte little-endian length prefix.
const frameHeaderLen = 4

// frameTrailerLen is the 4-byte little-endian CRC32 trailer.
const frameTrailerLen = 4

// MaxFrameLen bounds a single frame's payload, guarding the length
// reader against a corrupted length prefix causing an unbounded
// allocation.
const MaxFrameLen = 1 << 20

// EncodeFrame serializes one message body into the wire's length |
// body | crc layout: a little-endian uint32 payload length, the
// payload itself, and a little-endian uint32 CRC32 (per Checksum) over
// the payload.
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, frameHeaderLen+len(payload)+frameTrailerLen)
	binary.LittleEndian.PutUint32(out[:frameHeaderLen], uint32(len(payload)))
	copy(out[frameHeaderLen:], payload)
	crc := Checksum(payload)
	binary.LittleEndian.PutUint32(out[frameHeaderLen+len(payload):], crc)
	return out
}

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// MaxFrameLen.
var ErrFrameTooLarge = fmt.Errorf("wire: frame length exceeds %d bytes", MaxFrameLen)

// ErrFrameCRCMismatch is returned when a decoded frame's payload fails
// its CRC32 check, indicating transport corruption or a misaligned
// hunting receiver.
var ErrFrameCRCMismatch = fmt.Errorf("wire: frame failed CRC check")

// ErrIncompleteFrame is returned by DecodeFrame when buf does not yet
// contain a whole frame; the caller should read more bytes and retry.
var ErrIncompleteFrame = fmt.Errorf("wire: incomplete frame")

// DecodeFrame attempts to parse one frame from the head of buf,
// returning the payload, the number of bytes consumed, and an error.
// ErrIncompleteFrame is not fatal: it means buf is a valid prefix of a
// longer frame and the caller should accumulate more bytes.
func DecodeFrame(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) < frameHeaderLen {
		return nil, 0, ErrIncompleteFrame
	}
	length := binary.LittleEndian.Uint32(buf[:frameHeaderLen])
	if length > MaxFrameLen {
		return nil, 0, ErrFrameTooLarge
	}
	total := frameHeaderLen + int(length) + frameTrailerLen
	if len(buf) < total {
		return nil, 0, ErrIncompleteFrame
	}

	body := buf[frameHeaderLen : frameHeaderLen+int(length)]
	wantCRC := binary.LittleEndian.Uint32(buf[frameHeaderLen+int(length) : total])
	if !VerifyChecksum(body, wantCRC) {
		return nil, total, ErrFrameCRCMismatch
	}

	out := make([]byte, len(body))
	copy(out, body)
	return out, total, nil
}
