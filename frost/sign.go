package frost

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/frostsnap/frostsnap/protocol"
)

// SigningParticipant is the per-signer public context a device or
// coordinator needs to produce or verify one signature share: its
// share index, public image, and contributed nonce pair for this item.
type SigningParticipant struct {
	Index      protocol.ShareIndex
	ShareImage *btcec.PublicKey
	Nonce      protocol.NoncePair
}

// challenge computes the BIP340 challenge e = H(R || P || m) for the
// aggregated nonce point R, the (tweaked) joint public key P, and the
// 32-byte message m.
func challenge(r, p *btcec.PublicKey, message [32]byte) *btcec.ModNScalar {
	rBytes := schnorr.SerializePubKey(r)
	pBytes := schnorr.SerializePubKey(p)

	tag := sha256.Sum256([]byte("BIP0340/challenge"))
	h := sha256.New()
	h.Write(tag[:])
	h.Write(tag[:])
	h.Write(rBytes)
	h.Write(pBytes)
	h.Write(message[:])
	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	var e btcec.ModNScalar
	e.SetBytes(&digest)
	return &e
}

// aggregateNonce computes the joint effective nonce point R for a
// signing item: sum over all participants of (D_i + rho_i*E_i), each
// negated if the result would otherwise have odd Y (BIP340 requires an
// even-Y R, so the per-signer binding nonce k_i used later is itself
// negated to match).
func aggregateNonce(message [32]byte, nonces []protocol.NoncePair) (r *btcec.PublicKey, negate bool, err error) {
	var acc *btcec.PublicKey
	for i, pair := range nonces {
		idx := new(btcec.ModNScalar).SetInt(uint32(i) + 1)
		rhoI := bindingCoefficient(idx, message, nonces)
		point, perr := effectiveNoncePoint(pair, rhoI)
		if perr != nil {
			return nil, false, perr
		}
		if acc == nil {
			acc = point
		} else {
			acc = addPoints(acc, point)
		}
	}
	negate = acc.SerializeCompressed()[0] == secp256k1OddYPrefix
	return acc, negate, nil
}

const secp256k1OddYPrefix = 0x03

// effectiveSecretNonce recombines a signer's own hiding and binding
// secret nonces into its contribution k_i = d_i + rho_i*e_i, negating if
// the aggregated R required a sign flip to have even Y.
func effectiveSecretNonce(secret *NonceSecret, rho *btcec.ModNScalar, negateR bool) *btcec.ModNScalar {
	k := addScalars(secret.Hiding, mulScalars(rho, secret.Binding))
	if negateR {
		k = new(btcec.ModNScalar).Set(k).Negate()
	}
	return k
}

// SignShare computes participant `me`'s signature share for one sign
// item: z_i = k_i + e * lambda_i * x_i, where lambda_i is the Lagrange
// coefficient of `me` among all participating indices, x_i is the
// secret share, and k_i is the recombined effective nonce secret.
//
// tweak, if non-nil, is added to the joint public key before computing
// the challenge (BIP32 path derivation and/or the taproot tweak); the
// caller is responsible for folding both into one scalar via
// CombineTweaks.
func SignShare(
	secretShare *btcec.ModNScalar,
	myIndex protocol.ShareIndex,
	allIndices []protocol.ShareIndex,
	secretNonce *NonceSecret,
	jointPubKey *btcec.PublicKey,
	tweak *btcec.ModNScalar,
	message [32]byte,
	allNonces []protocol.NoncePair,
	myPositionInNonces int,
) ([32]byte, error) {
	indexScalars, err := shareIndexScalars(allIndices)
	if err != nil {
		return [32]byte{}, err
	}
	meScalar, ok := scalarFromBytes(myIndex)
	if !ok {
		return [32]byte{}, errNonceDegenerate
	}

	tweakedKey := jointPubKey
	effectiveSecret := new(btcec.ModNScalar).Set(secretShare)
	if tweak != nil {
		tweakedKey = addPoints(jointPubKey, pointFromScalar(tweak))
	}
	// BIP340 requires an even-Y public key; negate the secret and key
	// together if the tweaked key has odd Y.
	if tweakedKey.SerializeCompressed()[0] == secp256k1OddYPrefix {
		effectiveSecret.Negate()
		tweakedKey = negatePoint(tweakedKey)
	}

	r, negateR, err := aggregateNonce(message, allNonces)
	if err != nil {
		return [32]byte{}, err
	}
	e := challenge(r, tweakedKey, message)

	rho := bindingCoefficient(new(btcec.ModNScalar).SetInt(uint32(myPositionInNonces)+1), message, allNonces)
	k := effectiveSecretNonce(secretNonce, rho, negateR)

	lambda := lagrangeCoefficient(meScalar, indexScalars)

	// z = k + e*lambda*x
	term := mulScalars(e, mulScalars(lambda, effectiveSecret))
	z := addScalars(k, term)

	var out [32]byte
	zBytes := z.Bytes()
	copy(out[:], zBytes[:])
	return out, nil
}

// VerifySignatureShare checks one participant's share against its
// public share image and contributed nonce, without needing any other
// participant's secret material. Used by a device's own
// self-verification pass before it ever puts a share on the wire. The
// coordinator does not call it: it aggregates the shares it receives
// without checking them one by one.
func VerifySignatureShare(
	share [32]byte,
	shareImage *btcec.PublicKey,
	myIndex protocol.ShareIndex,
	allIndices []protocol.ShareIndex,
	jointPubKey *btcec.PublicKey,
	tweak *btcec.ModNScalar,
	message [32]byte,
	allNonces []protocol.NoncePair,
	myPositionInNonces int,
) (bool, error) {
	indexScalars, err := shareIndexScalars(allIndices)
	if err != nil {
		return false, err
	}
	meScalar, ok := scalarFromBytes(myIndex)
	if !ok {
		return false, errNonceDegenerate
	}

	tweakedKey := jointPubKey
	effectiveImage := shareImage
	if tweak != nil {
		tweakedKey = addPoints(jointPubKey, pointFromScalar(tweak))
	}
	negateKey := tweakedKey.SerializeCompressed()[0] == secp256k1OddYPrefix
	if negateKey {
		tweakedKey = negatePoint(tweakedKey)
		effectiveImage = negatePoint(effectiveImage)
	}

	r, negateR, err := aggregateNonce(message, allNonces)
	if err != nil {
		return false, err
	}
	e := challenge(r, tweakedKey, message)
	lambda := lagrangeCoefficient(meScalar, indexScalars)

	var z btcec.ModNScalar
	z.SetBytes(&share)

	// z*G should equal R_i + e*lambda*X_i, where R_i is this signer's
	// own effective nonce point (negated to match negateR).
	lhs := pointFromScalar(&z)

	rho := bindingCoefficient(new(btcec.ModNScalar).SetInt(uint32(myPositionInNonces)+1), message, allNonces)
	rI, err := effectiveNoncePoint(allNonces[myPositionInNonces], rho)
	if err != nil {
		return false, err
	}
	if negateR {
		rI = negatePoint(rI)
	}
	rhs := addPoints(rI, scalarMultPoint(mulScalars(e, lambda), effectiveImage))

	return lhs.IsEqual(rhs), nil
}

// AggregateSignature combines t verified signature shares (one per
// sign item's set of participants) into a final 64-byte BIP340
// signature: R || sum(z_i).
func AggregateSignature(message [32]byte, allNonces []protocol.NoncePair, shares [][32]byte) [64]byte {
	r, _, _ := aggregateNonce(message, allNonces)

	var total btcec.ModNScalar
	for _, s := range shares {
		var z btcec.ModNScalar
		z.SetBytes(&s)
		total.Add(&z)
	}

	var out [64]byte
	copy(out[:32], schnorr.SerializePubKey(r))
	zBytes := total.Bytes()
	copy(out[32:], zBytes[:])
	return out
}

// negatePoint returns -p (same x, negated y), used wherever BIP340's
// even-Y normalization requires flipping a key or image in lockstep
// with its secret.
func negatePoint(p *btcec.PublicKey) *btcec.PublicKey {
	var j btcec.JacobianPoint
	p.AsJacobian(&j)
	j.Y.Negate(1)
	j.Y.Normalize()
	j.ToAffine()
	return btcec.NewPublicKey(&j.X, &j.Y)
}

func shareIndexScalars(indices []protocol.ShareIndex) ([]*btcec.ModNScalar, error) {
	out := make([]*btcec.ModNScalar, len(indices))
	for i, idx := range indices {
		s, ok := scalarFromBytes(idx)
		if !ok {
			return nil, errNonceDegenerate
		}
		out[i] = s
	}
	return out, nil
}
