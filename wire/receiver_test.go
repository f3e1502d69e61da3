package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReceiver_HuntsThenDecodes(t *testing.T) {
	t.Parallel()

	r := NewReceiver(Downstream)
	require.Equal(t, Hunting, r.State())

	cookie := Cookie(Downstream)
	frame1 := EncodeFrame([]byte("first"))
	frame2 := EncodeFrame([]byte("second"))

	var stream []byte
	stream = append(stream, 0x00, 0x00, 0x00) // pre-sync noise
	stream = append(stream, cookie[:]...)
	stream = append(stream, frame1...)
	stream = append(stream, frame2...)

	r.Feed(stream)
	frames, err := r.Poll()
	require.NoError(t, err)
	require.Equal(t, Ready, r.State())
	require.Len(t, frames, 2)
	require.Equal(t, []byte("first"), frames[0])
	require.Equal(t, []byte("second"), frames[1])
}

func TestReceiver_IgnoresWrongDirectionCookie(t *testing.T) {
	t.Parallel()

	r := NewReceiver(Downstream)
	up := Cookie(Upstream)
	down := Cookie(Downstream)

	var stream []byte
	stream = append(stream, up[:]...)
	stream = append(stream, down[:]...)

	r.Feed(stream)
	_, err := r.Poll()
	require.NoError(t, err)
	require.Equal(t, Ready, r.State())
}

func TestReceiver_PartialFrameWaitsForMoreBytes(t *testing.T) {
	t.Parallel()

	r := NewReceiver(Downstream)
	cookie := Cookie(Downstream)
	frame := EncodeFrame([]byte("split me"))

	r.Feed(cookie[:])
	frames, err := r.Poll()
	require.NoError(t, err)
	require.Empty(t, frames)
	require.Equal(t, Ready, r.State())

	r.Feed(frame[:len(frame)-3])
	frames, err = r.Poll()
	require.NoError(t, err)
	require.Empty(t, frames)

	r.Feed(frame[len(frame)-3:])
	frames, err = r.Poll()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, []byte("split me"), frames[0])
}

func TestReceiver_ReSyncsOnFreshCookie(t *testing.T) {
	t.Parallel()

	r := NewReceiver(Downstream)
	cookie := Cookie(Downstream)
	frame := EncodeFrame([]byte("before reboot"))

	r.Feed(cookie[:])
	r.Feed(frame)
	frames, err := r.Poll()
	require.NoError(t, err)
	require.Len(t, frames, 1)

	frame2 := EncodeFrame([]byte("after reboot"))
	r.Feed(cookie[:])
	r.Feed(frame2)
	frames, err = r.Poll()
	require.NoError(t, err)
	require.Equal(t, Ready, r.State())
	require.Len(t, frames, 1)
	require.Equal(t, []byte("after reboot"), frames[0])
}

func TestReceiver_ResetReturnsToHunting(t *testing.T) {
	t.Parallel()

	r := NewReceiver(Downstream)
	cookie := Cookie(Downstream)
	r.Feed(cookie[:])
	_, err := r.Poll()
	require.NoError(t, err)
	require.Equal(t, Ready, r.State())

	r.Reset()
	require.Equal(t, Hunting, r.State())
}
