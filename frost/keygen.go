package frost

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/frostsnap/frostsnap/protocol"
)

// KeygenRound holds one participant's still-secret state between
// generating its polynomial and finishing keygen, kept by the device
// state engine only for the duration of one keygen ceremony (it is
// never persisted; only the final SaveKey change is).
type KeygenRound struct {
	poly  *scalarPoly
	index protocol.ShareIndex
}

// BeginKeygen generates a fresh random polynomial of the given
// threshold degree for a keygen participant identified by index.
func BeginKeygen(index protocol.ShareIndex, threshold int) (*KeygenRound, error) {
	poly, err := generateScalarPoly(threshold)
	if err != nil {
		return nil, err
	}
	return &KeygenRound{poly: poly, index: index}, nil
}

// PointPolynomial returns the Feldman commitment to broadcast to every
// other participant.
func (r *KeygenRound) PointPolynomial() []*btcec.PublicKey {
	return r.poly.commit()
}

// SecretConstant returns this polynomial's own secret constant term,
// whose public image is PointPolynomial()[0]: the value a participant
// signs over to produce its proof of possession.
func (r *KeygenRound) SecretConstant() *btcec.ModNScalar {
	return new(btcec.ModNScalar).Set(r.poly.coeffs[0])
}

// ShareFor computes the secret share this participant's polynomial
// produces for another participant's index.
func (r *KeygenRound) ShareFor(otherIndex protocol.ShareIndex) ([32]byte, error) {
	x, ok := scalarFromBytes(otherIndex)
	if !ok {
		return [32]byte{}, fmt.Errorf("frost: degenerate share index")
	}
	s := r.poly.evaluate(x)
	var out [32]byte
	b := s.Bytes()
	copy(out[:], b[:])
	return out, nil
}

// ProofOfPossession signs transcript with a throwaway BIP340 signature
// under the participant's own keygen polynomial's constant term,
// proving it knows the secret behind the point it just broadcast.
// Package device passes a hash of that participant's own point
// polynomial as transcript; the set of participants is not part of
// what is signed.
func ProofOfPossession(myShare *btcec.ModNScalar, transcript [32]byte) ([64]byte, error) {
	var keyBytes [32]byte
	b := myShare.Bytes()
	copy(keyBytes[:], b[:])
	priv, _ := btcec.PrivKeyFromBytes(keyBytes[:])

	sig, err := schnorr.Sign(priv, transcript[:])
	if err != nil {
		return [64]byte{}, err
	}
	var out [64]byte
	copy(out[:], sig.Serialize())
	return out, nil
}

// VerifyProofOfPossession checks a participant's proof of possession
// against the constant term of their broadcast point polynomial.
func VerifyProofOfPossession(pointPoly []*btcec.PublicKey, transcript [32]byte, pop [64]byte) (bool, error) {
	if len(pointPoly) == 0 {
		return false, fmt.Errorf("frost: empty point polynomial")
	}
	sig, err := schnorr.ParseSignature(pop[:])
	if err != nil {
		return false, err
	}
	xOnly, err := schnorr.ParsePubKey(schnorr.SerializePubKey(pointPoly[0]))
	if err != nil {
		return false, err
	}
	return sig.Verify(transcript[:], xOnly), nil
}

// JointSharedKey combines every participant's point polynomial into the
// joint SharedKey without needing any participant's secret share. The
// coordinator, which never sees a decrypted share, uses this to learn
// the same SharedKey every device computes as a side effect of
// FinishKeygen, purely from the point polynomials it already relayed.
func JointSharedKey(pointPolys [][]*btcec.PublicKey) protocol.SharedKey {
	return sumCommitments(pointPolys)
}

// FinishKeygen combines every participant's point polynomial into the
// joint SharedKey, and computes this participant's own secret share by
// summing the shares it received from every participant (including
// itself) at its own index.
func FinishKeygen(pointPolys [][]*btcec.PublicKey, receivedShares [][32]byte) (protocol.SharedKey, [32]byte, error) {
	sharedKey := sumCommitments(pointPolys)

	var total btcec.ModNScalar
	for _, s := range receivedShares {
		var share btcec.ModNScalar
		overflow := share.SetBytes(&s)
		if overflow != 0 {
			return protocol.SharedKey{}, [32]byte{}, fmt.Errorf("frost: received share overflows scalar field")
		}
		total.Add(&share)
	}

	var out [32]byte
	b := total.Bytes()
	copy(out[:], b[:])
	return sharedKey, out, nil
}

// VerifyShare checks a received secret share against the sender's
// broadcast point polynomial, evaluated at the recipient's own index:
// share*G should equal the polynomial's public image at that index.
func VerifyShare(senderPoly []*btcec.PublicKey, recipientIndex protocol.ShareIndex, share [32]byte) (bool, error) {
	x, ok := scalarFromBytes(recipientIndex)
	if !ok {
		return false, fmt.Errorf("frost: degenerate share index")
	}
	var s btcec.ModNScalar
	overflow := s.SetBytes(&share)
	if overflow != 0 {
		return false, fmt.Errorf("frost: share overflows scalar field")
	}
	expected := evaluateCommitment(senderPoly, x)
	actual := pointFromScalar(&s)
	return expected.IsEqual(actual), nil
}

// ShareImageAt computes the public ShareImage for an index under a
// completed SharedKey, without needing any secret.
func ShareImageAt(key protocol.SharedKey, index protocol.ShareIndex) (protocol.ShareImage, error) {
	x, ok := scalarFromBytes(index)
	if !ok {
		return protocol.ShareImage{}, fmt.Errorf("frost: degenerate share index")
	}
	return protocol.ShareImage{Index: index, Point: evaluateCommitment(key.Commitments, x)}, nil
}
