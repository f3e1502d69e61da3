package frost

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/frostsnap/frostsnap/protocol"
)

// lagrangeBasisCoeffs expands the Lagrange basis polynomial for index `me`
// over the index set `all` into its ascending-degree scalar coefficients:
// L_me(x) = prod_{j != me} (x - x_j)/(x_me - x_j). Used by
// ReconstructSharedKey to recover a whole commitment polynomial, not just
// its value at one point.
func lagrangeBasisCoeffs(me *btcec.ModNScalar, all []*btcec.ModNScalar) []*btcec.ModNScalar {
	coeffs := []*btcec.ModNScalar{new(btcec.ModNScalar).SetInt(1)}
	denom := new(btcec.ModNScalar).SetInt(1)
	for _, other := range all {
		if other.Equals(me) {
			continue
		}
		next := make([]*btcec.ModNScalar, len(coeffs)+1)
		for i := range next {
			next[i] = new(btcec.ModNScalar).SetInt(0)
		}
		negOther := new(btcec.ModNScalar).Set(other).Negate()
		for i, c := range coeffs {
			next[i+1] = addScalars(next[i+1], c)
			next[i] = addScalars(next[i], mulScalars(c, negOther))
		}
		coeffs = next

		diff := new(btcec.ModNScalar).Set(me)
		diff.Add(new(btcec.ModNScalar).Set(other).Negate())
		denom = mulScalars(denom, diff)
	}
	denomInv := new(btcec.ModNScalar).Set(denom).InverseNonConst()
	out := make([]*btcec.ModNScalar, len(coeffs))
	for i, c := range coeffs {
		out[i] = mulScalars(c, denomInv)
	}
	return out
}

// ReconstructSharedKey recovers a degree-(threshold-1) joint commitment
// polynomial from exactly threshold independent ShareImages, via Lagrange
// interpolation carried out in the exponent: every step operates on public
// points, so no participant's secret share is ever touched or needed.
//
// Restoration calls this once it has collected threshold ShareImages that
// agree on a common polynomial (see the coordinator package's
// Coordinator.tryReconstruct); any
// threshold-sized subset of a consistent set reconstructs the same key, so
// callers are free to pick the first threshold shares received.
func ReconstructSharedKey(images []protocol.ShareImage, threshold int) (protocol.SharedKey, error) {
	if len(images) < threshold {
		return protocol.SharedKey{}, errNotEnoughShares
	}
	images = images[:threshold]

	xs := make([]*btcec.ModNScalar, threshold)
	for i, img := range images {
		x, ok := scalarFromBytes([32]byte(img.Index))
		if !ok {
			return protocol.SharedKey{}, errNonceDegenerate
		}
		xs[i] = x
	}

	commitments := make([]*btcec.PublicKey, threshold)
	for k := 0; k < threshold; k++ {
		var acc *btcec.PublicKey
		for i, img := range images {
			basis := lagrangeBasisCoeffs(xs[i], xs)
			term := scalarMultPoint(basis[k], img.Point)
			if acc == nil {
				acc = term
			} else {
				acc = addPoints(acc, term)
			}
		}
		commitments[k] = acc
	}
	return protocol.SharedKey{Commitments: commitments}, nil
}

var errNotEnoughShares = nonceError("not enough share images to reconstruct at this threshold")
