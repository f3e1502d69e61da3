package frost

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestScalarPoly_EvaluateMatchesCommitment(t *testing.T) {
	t.Parallel()

	poly, err := generateScalarPoly(3)
	require.NoError(t, err)

	commitments := poly.commit()
	require.Len(t, commitments, 3)

	x, ok := scalarFromBytes([32]byte{0: 7})
	require.True(t, ok)

	y := poly.evaluate(x)
	expected := pointFromScalar(y)
	actual := evaluateCommitment(commitments, x)

	require.True(t, expected.IsEqual(actual))
}

func TestSumCommitments_Degree(t *testing.T) {
	t.Parallel()

	polyA, err := generateScalarPoly(2)
	require.NoError(t, err)
	polyB, err := generateScalarPoly(2)
	require.NoError(t, err)

	shared := sumCommitments([][]*btcec.PublicKey{polyA.commit(), polyB.commit()})
	require.Equal(t, 2, shared.Threshold())
	require.NotNil(t, shared.PublicKey())
}

func TestLagrangeInterpolation_ReconstructsSecret(t *testing.T) {
	t.Parallel()

	threshold := 3
	poly, err := generateScalarPoly(threshold)
	require.NoError(t, err)

	secret := poly.coeffs[0]

	xs := make([]*btcec.ModNScalar, threshold)
	ys := make([]*btcec.ModNScalar, threshold)
	for i := 0; i < threshold; i++ {
		x, ok := scalarFromBytes([32]byte{0: byte(i + 1)})
		require.True(t, ok)
		xs[i] = x
		ys[i] = poly.evaluate(x)
	}

	recovered := interpolateAtZero(xs, ys)
	require.True(t, recovered.Equals(secret))
}
