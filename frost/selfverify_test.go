package frost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelfVerifySecretShare_AgreesWithBtcec(t *testing.T) {
	t.Parallel()

	s, err := randomScalar()
	require.NoError(t, err)

	var secret [32]byte
	b := s.Bytes()
	copy(secret[:], b[:])

	image := pointFromScalar(s)
	require.True(t, SelfVerifySecretShare(secret, image))
}

func TestSelfVerifySecretShare_RejectsWrongImage(t *testing.T) {
	t.Parallel()

	s1, err := randomScalar()
	require.NoError(t, err)
	s2, err := randomScalar()
	require.NoError(t, err)

	var secret [32]byte
	b := s1.Bytes()
	copy(secret[:], b[:])

	wrongImage := pointFromScalar(s2)
	require.False(t, SelfVerifySecretShare(secret, wrongImage))
}
