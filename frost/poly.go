package frost

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/frostsnap/frostsnap/protocol"
)

// scalarPoly is a participant's secret polynomial of degree threshold-1,
// coefficients in ascending order (coefficient 0 is the participant's
// contribution to the joint secret).
type scalarPoly struct {
	coeffs []*btcec.ModNScalar
}

// generateScalarPoly draws a fresh random polynomial of the given
// threshold (degree = threshold-1) for one keygen participant.
func generateScalarPoly(threshold int) (*scalarPoly, error) {
	coeffs := make([]*btcec.ModNScalar, threshold)
	for i := range coeffs {
		s, err := randomScalar()
		if err != nil {
			return nil, err
		}
		coeffs[i] = s
	}
	return &scalarPoly{coeffs: coeffs}, nil
}

// commit computes the Feldman commitment to this polynomial: c_i = f_i*G
// for every coefficient, broadcast so other participants can verify the
// shares they receive without learning the polynomial itself.
func (p *scalarPoly) commit() []*btcec.PublicKey {
	out := make([]*btcec.PublicKey, len(p.coeffs))
	for i, c := range p.coeffs {
		out[i] = pointFromScalar(c)
	}
	return out
}

// evaluate computes f(x) for a nonzero scalar x, using Horner's method.
func (p *scalarPoly) evaluate(x *btcec.ModNScalar) *btcec.ModNScalar {
	acc := new(btcec.ModNScalar).Set(p.coeffs[len(p.coeffs)-1])
	for i := len(p.coeffs) - 2; i >= 0; i-- {
		acc = mulScalars(acc, x)
		acc = addScalars(acc, p.coeffs[i])
	}
	return acc
}

// evaluateCommitment computes the public image of f(x) directly from
// the broadcast commitments, without needing the secret polynomial:
// sum_i (x^i * c_i).
func evaluateCommitment(commitments []*btcec.PublicKey, x *btcec.ModNScalar) *btcec.PublicKey {
	xPow := new(btcec.ModNScalar).SetInt(1)
	var acc *btcec.PublicKey
	for _, c := range commitments {
		term := scalarMultPoint(xPow, c)
		if acc == nil {
			acc = term
		} else {
			acc = addPoints(acc, term)
		}
		xPow = mulScalars(xPow, x)
	}
	return acc
}

// sumCommitments adds a set of participants' commitment polynomials
// coefficient-wise, producing the joint access structure's SharedKey.
// Every polynomial must have the same degree (threshold).
func sumCommitments(polys [][]*btcec.PublicKey) protocol.SharedKey {
	threshold := len(polys[0])
	out := make([]*btcec.PublicKey, threshold)
	for i := 0; i < threshold; i++ {
		terms := make([]*btcec.PublicKey, len(polys))
		for j, poly := range polys {
			terms[j] = poly[i]
		}
		out[i] = sumPoints(terms)
	}
	return protocol.SharedKey{Commitments: out}
}

// lagrangeCoefficient computes the Lagrange basis coefficient for index
// `me` evaluated at x=0, over the given set of participant indices.
// Used to combine t individual signature shares (or secret shares) into
// the joint value at the polynomial's constant term.
func lagrangeCoefficient(me *btcec.ModNScalar, all []*btcec.ModNScalar) *btcec.ModNScalar {
	num := new(btcec.ModNScalar).SetInt(1)
	den := new(btcec.ModNScalar).SetInt(1)
	for _, other := range all {
		if other.Equals(me) {
			continue
		}
		// num *= (0 - other) = -other
		negOther := new(btcec.ModNScalar).Set(other).Negate()
		num = mulScalars(num, negOther)

		// den *= (me - other)
		diff := new(btcec.ModNScalar).Set(me)
		diff.Add(new(btcec.ModNScalar).Set(other).Negate())
		den = mulScalars(den, diff)
	}
	denInv := new(btcec.ModNScalar).Set(den).InverseNonConst()
	return mulScalars(num, denInv)
}

// interpolateAtZero reconstructs f(0) given t distinct (x, f(x)) pairs,
// via Lagrange interpolation. Used only for test vectors and
// restoration's polynomial-reconstruction path; normal signing never
// reconstructs a secret.
func interpolateAtZero(xs []*btcec.ModNScalar, ys []*btcec.ModNScalar) *btcec.ModNScalar {
	var acc *btcec.ModNScalar
	for i := range xs {
		coeff := lagrangeCoefficient(xs[i], xs)
		term := mulScalars(coeff, ys[i])
		if acc == nil {
			acc = term
		} else {
			acc = addScalars(acc, term)
		}
	}
	return acc
}
