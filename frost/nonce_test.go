package frost

import (
	"testing"

	"github.com/frostsnap/frostsnap/protocol"
	"github.com/stretchr/testify/require"
)

func TestDeriveNonce_Deterministic(t *testing.T) {
	t.Parallel()

	var seed [32]byte
	copy(seed[:], []byte("test-seed-0123456789abcdef012345"))

	n1, err := DeriveNonce(seed, 5)
	require.NoError(t, err)
	n2, err := DeriveNonce(seed, 5)
	require.NoError(t, err)

	require.True(t, n1.Hiding.Equals(n2.Hiding))
	require.True(t, n1.Binding.Equals(n2.Binding))
}

func TestDeriveNonce_DistinctCounters(t *testing.T) {
	t.Parallel()

	var seed [32]byte
	copy(seed[:], []byte("another-seed-0123456789abcdef012"))

	n1, err := DeriveNonce(seed, 0)
	require.NoError(t, err)
	n2, err := DeriveNonce(seed, 1)
	require.NoError(t, err)

	require.False(t, n1.Hiding.Equals(n2.Hiding))
}

func TestDeriveNonceBatch_MatchesIndividual(t *testing.T) {
	t.Parallel()

	var seed [32]byte
	copy(seed[:], []byte("batch-seed-0123456789abcdef01234"))

	batch, err := DeriveNonceBatch(seed, 10, 4)
	require.NoError(t, err)
	require.Len(t, batch, 4)

	single, err := DeriveNonce(seed, 12)
	require.NoError(t, err)
	require.True(t, batch[2].Hiding.Equals(single.Hiding))
}

func TestNonceStreamSeed_DistinctPerStream(t *testing.T) {
	t.Parallel()

	var deviceSecret [32]byte
	copy(deviceSecret[:], []byte("device-root-secret-0123456789ab"))

	var streamA, streamB protocol.NonceStreamId
	streamA[0] = 1
	streamB[0] = 2

	seedA := NonceStreamSeed(deviceSecret, streamA)
	seedB := NonceStreamSeed(deviceSecret, streamB)
	require.NotEqual(t, seedA, seedB)
}
