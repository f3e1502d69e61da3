package frost

import (
	"github.com/btcsuite/btcd/btcec/v2"
	decredsecp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SelfVerifySecretShare is the device-side belt-and-braces check run
// once, right after FinishKeygen, before the new secret share is ever
// persisted or used to sign: it recomputes secret*G using a second,
// independently-implemented secp256k1 library (decred's, which
// btcec/v2's own math is built on but never re-derives against at call
// sites) and insists the two curve implementations agree that the
// secret corresponds to the access structure's public share image. A
// device must never save a secret share that fails this check.
func SelfVerifySecretShare(secret [32]byte, expectedImage *btcec.PublicKey) bool {
	var scalar decredsecp256k1.ModNScalar
	if overflow := scalar.SetBytes(&secret); overflow != 0 {
		return false
	}
	var point decredsecp256k1.JacobianPoint
	decredsecp256k1.ScalarBaseMultNonConst(&scalar, &point)
	point.ToAffine()
	independent := decredsecp256k1.NewPublicKey(&point.X, &point.Y)

	return string(independent.SerializeCompressed()) == string(expectedImage.SerializeCompressed())
}
