package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame_RoundTrip(t *testing.T) {
	t.Parallel()

	payload := []byte("hello daisy chain")
	encoded := EncodeFrame(payload)

	decoded, consumed, err := DecodeFrame(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), consumed)
	require.Equal(t, payload, decoded)
}

func TestDecodeFrame_Incomplete(t *testing.T) {
	t.Parallel()

	payload := []byte("a longer payload to split mid-frame")
	encoded := EncodeFrame(payload)

	_, _, err := DecodeFrame(encoded[:len(encoded)-2])
	require.ErrorIs(t, err, ErrIncompleteFrame)

	_, _, err = DecodeFrame(encoded[:2])
	require.ErrorIs(t, err, ErrIncompleteFrame)
}

func TestDecodeFrame_CRCMismatch(t *testing.T) {
	t.Parallel()

	payload := []byte("tamper with me")
	encoded := EncodeFrame(payload)
	encoded[frameHeaderLen] ^= 0xFF

	_, consumed, err := DecodeFrame(encoded)
	require.ErrorIs(t, err, ErrFrameCRCMismatch)
	require.Equal(t, len(encoded), consumed)
}

func TestDecodeFrame_TooLarge(t *testing.T) {
	t.Parallel()

	buf := make([]byte, frameHeaderLen)
	buf[0], buf[1], buf[2], buf[3] = 0xFF, 0xFF, 0xFF, 0x7F

	_, _, err := DecodeFrame(buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestChecksum_DetectsFlippedBit(t *testing.T) {
	t.Parallel()

	data := []byte{1, 2, 3, 4, 5}
	crc := Checksum(data)
	require.True(t, VerifyChecksum(data, crc))

	data[0] ^= 0x01
	require.False(t, VerifyChecksum(data, crc))
}

func TestChecksum_KnownVector(t *testing.T) {
	t.Parallel()

	// "123456789" is the standard CRC catalog check string; 0xd202d277
	// is its CRC-32 value under poly 0x04C11DB7 reflected, init 0x0,
	// xorout 0xFFFFFFFF (the variant this package's bootloader expects).
	require.Equal(t, uint32(0xd202d277), Checksum([]byte("123456789")))
}
