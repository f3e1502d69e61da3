package frost

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/frostsnap/frostsnap/protocol"
	"github.com/stretchr/testify/require"
)

func shareIndex(b byte) protocol.ShareIndex {
	var idx protocol.ShareIndex
	idx[31] = b
	return idx
}

// TestKeygenThenSign_2of3 runs a full 2-of-3 keygen and signing round
// trip entirely in-process, verifying the final aggregated signature
// against the joint public key with btcec's own Schnorr verifier.
func TestKeygenThenSign_2of3(t *testing.T) {
	t.Parallel()

	const threshold = 2
	indices := []protocol.ShareIndex{shareIndex(1), shareIndex(2), shareIndex(3)}

	rounds := make([]*KeygenRound, len(indices))
	for i, idx := range indices {
		r, err := BeginKeygen(idx, threshold)
		require.NoError(t, err)
		rounds[i] = r
	}

	pointPolys := make([][]*btcec.PublicKey, len(indices))
	for i, r := range rounds {
		pointPolys[i] = r.PointPolynomial()
	}

	// secretShares[j] accumulates participant j's combined secret share
	// across every other participant's polynomial.
	receivedByParticipant := make([][][32]byte, len(indices))
	for i, r := range rounds {
		for j, recipientIdx := range indices {
			share, err := r.ShareFor(recipientIdx)
			require.NoError(t, err)

			ok, err := VerifyShare(pointPolys[i], recipientIdx, share)
			require.NoError(t, err)
			require.True(t, ok)

			receivedByParticipant[j] = append(receivedByParticipant[j], share)
		}
	}

	var sharedKey protocol.SharedKey
	secretShares := make([][32]byte, len(indices))
	for j := range indices {
		key, secret, err := FinishKeygen(pointPolys, receivedByParticipant[j])
		require.NoError(t, err)
		sharedKey = key
		secretShares[j] = secret
	}
	require.Equal(t, threshold, sharedKey.Threshold())

	for j, idx := range indices {
		image, err := ShareImageAt(sharedKey, idx)
		require.NoError(t, err)

		var s btcec.ModNScalar
		s.SetBytes(&secretShares[j])
		require.True(t, image.Point.IsEqual(pointFromScalar(&s)))
	}

	// Sign with participants 0 and 1 only.
	signerIdx := []int{0, 1}
	allIndices := []protocol.ShareIndex{indices[signerIdx[0]], indices[signerIdx[1]]}

	secrets := make([]*NonceSecret, 2)
	pubNonces := make([]protocol.NoncePair, 2)
	for pos, si := range signerIdx {
		var seed [32]byte
		seed[0] = byte(si + 1)
		n, err := DeriveNonce(seed, 0)
		require.NoError(t, err)
		secrets[pos] = n
		pubNonces[pos] = n.Public()
	}

	var message [32]byte
	copy(message[:], []byte("frostsnap integration test msg!"))

	shares := make([][32]byte, 2)
	for pos, si := range signerIdx {
		var x btcec.ModNScalar
		x.SetBytes(&secretShares[si])

		share, err := SignShare(
			&x,
			allIndices[pos],
			allIndices,
			secrets[pos],
			sharedKey.PublicKey(),
			nil,
			message,
			pubNonces,
			pos,
		)
		require.NoError(t, err)
		shares[pos] = share
	}

	for pos := range signerIdx {
		image, err := ShareImageAt(sharedKey, allIndices[pos])
		require.NoError(t, err)

		ok, err := VerifySignatureShare(
			shares[pos],
			image.Point,
			allIndices[pos],
			allIndices,
			sharedKey.PublicKey(),
			nil,
			message,
			pubNonces,
			pos,
		)
		require.NoError(t, err)
		require.True(t, ok)
	}

	sigBytes := AggregateSignature(message, pubNonces, shares)
	sig, err := schnorr.ParseSignature(sigBytes[:])
	require.NoError(t, err)
	require.True(t, sig.Verify(message[:], sharedKey.PublicKey()))
}
