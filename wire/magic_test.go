package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCookieRoundTrip(t *testing.T) {
	t.Parallel()

	up := Cookie(Upstream)
	down := Cookie(Downstream)
	require.NotEqual(t, up, down)
	require.True(t, IsCookie(up[:], Upstream))
	require.False(t, IsCookie(up[:], Downstream))
	require.True(t, IsCookie(down[:], Downstream))
}

func TestFindCookie(t *testing.T) {
	t.Parallel()

	noise := []byte{0x01, 0x02, 0x03}
	cookie := Cookie(Downstream)
	buf := append(append([]byte{}, noise...), cookie[:]...)
	buf = append(buf, 0xAA, 0xBB)

	dir, offset, found := FindCookie(buf)
	require.True(t, found)
	require.Equal(t, Downstream, dir)
	require.Equal(t, len(noise), offset)
}

func TestFindCookie_NotPresent(t *testing.T) {
	t.Parallel()

	_, _, found := FindCookie([]byte{0x00, 0x01, 0x02, 0x03})
	require.False(t, found)
}
