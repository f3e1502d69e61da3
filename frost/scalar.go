// Package frost implements the secp256k1 scalar and point arithmetic
// behind threshold Schnorr signing: Feldman-VSS polynomial keygen, a
// deterministic nonce stream, signature share production and
// aggregation, BIP32/taproot key tweaking, and the share backup codec.
// It holds no wire framing and no I/O; see package protocol for the
// message shapes that carry the values defined here, and package device
// and package coordinator for the state machines that drive this math.
package frost

import (
	"crypto/rand"

	"github.com/btcsuite/btcd/btcec/v2"
)

// randomScalar draws a uniformly random nonzero scalar from
// crypto/rand, retrying on the (astronomically unlikely) zero case.
func randomScalar() (*btcec.ModNScalar, error) {
	var s btcec.ModNScalar
	for {
		var buf [32]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, err
		}
		if overflow := s.SetBytes(&buf); overflow == 0 && !s.IsZero() {
			return &s, nil
		}
	}
}

// scalarFromBytes rejects overflowing or zero scalars, since both are
// illegal share indices and illegal secret keys in this system.
func scalarFromBytes(b [32]byte) (*btcec.ModNScalar, bool) {
	var s btcec.ModNScalar
	overflow := s.SetBytes(&b)
	if overflow != 0 || s.IsZero() {
		return nil, false
	}
	return &s, true
}

// pointFromScalar computes s*G in affine coordinates.
func pointFromScalar(s *btcec.ModNScalar) *btcec.PublicKey {
	var p btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(s, &p)
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}

// addScalars returns a+b mod n.
func addScalars(a, b *btcec.ModNScalar) *btcec.ModNScalar {
	out := new(btcec.ModNScalar).Set(a)
	out.Add(b)
	return out
}

// mulScalars returns a*b mod n.
func mulScalars(a, b *btcec.ModNScalar) *btcec.ModNScalar {
	out := new(btcec.ModNScalar).Set(a)
	out.Mul(b)
	return out
}

// addPoints returns a+b in affine coordinates.
func addPoints(a, b *btcec.PublicKey) *btcec.PublicKey {
	var aJ, bJ, sumJ btcec.JacobianPoint
	a.AsJacobian(&aJ)
	b.AsJacobian(&bJ)
	btcec.AddNonConst(&aJ, &bJ, &sumJ)
	sumJ.ToAffine()
	return btcec.NewPublicKey(&sumJ.X, &sumJ.Y)
}

// scalarMultPoint returns s*p in affine coordinates.
func scalarMultPoint(s *btcec.ModNScalar, p *btcec.PublicKey) *btcec.PublicKey {
	var pJ, outJ btcec.JacobianPoint
	p.AsJacobian(&pJ)
	btcec.ScalarMultNonConst(s, &pJ, &outJ)
	outJ.ToAffine()
	return btcec.NewPublicKey(&outJ.X, &outJ.Y)
}

// sumPoints adds a slice of points, returning the group identity
// (point at infinity) serialized as nil if the slice is empty.
func sumPoints(points []*btcec.PublicKey) *btcec.PublicKey {
	if len(points) == 0 {
		return nil
	}
	acc := points[0]
	for _, p := range points[1:] {
		acc = addPoints(acc, p)
	}
	return acc
}
