package frost

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/frostsnap/frostsnap/protocol"
)

func TestDeriveChildXpub_RejectsHardened(t *testing.T) {
	t.Parallel()

	root, err := randomScalar()
	require.NoError(t, err)
	rootKey := pointFromScalar(root)

	var chainCode [32]byte
	_, _, _, err = DeriveChildXpub(rootKey, chainCode, hardenedBit)
	require.ErrorIs(t, err, ErrHardenedDerivation)
}

func TestDeriveChildXpub_TweakMatchesChildKey(t *testing.T) {
	t.Parallel()

	root, err := randomScalar()
	require.NoError(t, err)
	rootKey := pointFromScalar(root)

	var chainCode [32]byte
	chainCode[0] = 0x42

	child, _, tweak, err := DeriveChildXpub(rootKey, chainCode, 0)
	require.NoError(t, err)

	expectedChild := addPoints(rootKey, pointFromScalar(tweak))
	require.True(t, child.IsEqual(expectedChild))
}

func TestDerivePath_AccumulatesTweaks(t *testing.T) {
	t.Parallel()

	root, err := randomScalar()
	require.NoError(t, err)
	rootKey := pointFromScalar(root)

	var chainCode [32]byte
	path := []uint32{0, 1, 2}

	child, _, tweak, err := DerivePath(rootKey, chainCode, path)
	require.NoError(t, err)

	reconstructed := addPoints(rootKey, pointFromScalar(tweak))
	require.True(t, child.IsEqual(reconstructed))
}

func TestEncodeXpub_ProducesStandardPrefix(t *testing.T) {
	t.Parallel()

	root, err := randomScalar()
	require.NoError(t, err)
	xpub := protocol.Xpub{
		Key:       protocol.SharedKey{Commitments: []*btcec.PublicKey{pointFromScalar(root)}},
		ChainCode: [32]byte{0x42},
	}

	encoded, err := EncodeXpub(xpub, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, "xpub"))

	testnetEncoded, err := EncodeXpub(xpub, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(testnetEncoded, "tpub"))
}

func TestEncodeXpub_RejectsEmptyCommitments(t *testing.T) {
	t.Parallel()

	_, err := EncodeXpub(protocol.Xpub{}, &chaincfg.MainNetParams)
	require.Error(t, err)
}

func TestTapTweak_Deterministic(t *testing.T) {
	t.Parallel()

	root, err := randomScalar()
	require.NoError(t, err)
	key := pointFromScalar(root)

	t1 := TapTweak(key)
	t2 := TapTweak(key)
	require.True(t, t1.Equals(t2))
}
