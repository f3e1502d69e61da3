package protocol

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"
)

// ShareIndex labels a share within an access structure's polynomial. It is
// the big-endian encoding of a nonzero secp256k1 scalar, evaluated as the
// polynomial's x-coordinate for that participant.
type ShareIndex [32]byte

func (s ShareIndex) String() string {
	return hex.EncodeToString(s[:])
}

// IsZero reports whether the index is the zero scalar, which is never a
// legal share index.
func (s ShareIndex) IsZero() bool {
	for _, b := range s {
		if b != 0 {
			return false
		}
	}
	return true
}

// ShareImage is the public image of a share: the point obtained by
// evaluating the (secret) polynomial at ShareIndex and multiplying by G.
type ShareImage struct {
	Index ShareIndex
	Point *btcec.PublicKey
}

// Equal reports whether two share images name the same index and point.
func (s ShareImage) Equal(other ShareImage) bool {
	return s.Index == other.Index && s.Point.IsEqual(other.Point)
}

// GobEncode implements gob.GobEncoder. btcec.PublicKey carries its
// coordinates in unexported fields, so the default reflection-based gob
// encoding of a bare *btcec.PublicKey would silently serialize nothing;
// ShareImage instead round-trips its point through its 33-byte
// compressed form.
func (s ShareImage) GobEncode() ([]byte, error) {
	out := make([]byte, 0, len(s.Index)+33)
	out = append(out, s.Index[:]...)
	out = append(out, s.Point.SerializeCompressed()...)
	return out, nil
}

// GobDecode implements gob.GobDecoder.
func (s *ShareImage) GobDecode(data []byte) error {
	if len(data) != len(s.Index)+33 {
		return errMalformedGobEncoding
	}
	copy(s.Index[:], data[:len(s.Index)])
	point, err := btcec.ParsePubKey(data[len(s.Index):])
	if err != nil {
		return err
	}
	s.Point = point
	return nil
}

var errMalformedGobEncoding = errors.New("protocol: malformed gob encoding")

// EncryptedShare is an opaque, authenticated ciphertext over a secret share
// scalar. Two distinct encryption contexts produce EncryptedShare values in
// this system:
//
//   - at keygen, a per-recipient ECIES-style ciphertext (see
//     frost.EncryptShareForRecipient), so that a share distributed by
//     participant i to participant j can only be opened by j;
//   - at rest on a device, a ciphertext under the device's local
//     eFuse-derived symmetric key (see frost.SealShare), so that the flash
//     image alone never reveals a secret share.
type EncryptedShare struct {
	// Nonce is the AEAD nonce (or, for ECIES, the ephemeral public key
	// bytes) used to derive/bind the ciphertext.
	Nonce []byte
	// Ciphertext is the authenticated ciphertext of the 32-byte share
	// scalar.
	Ciphertext []byte
}

// Xpub is a BIP32-style extension of a shared key: the root SharedKey's
// commitments plus a chaincode, allowing child shared keys to be derived
// without any participant reconstructing the secret.
type Xpub struct {
	Key       SharedKey
	ChainCode [32]byte
}

// SharedKey is the public output of a completed keygen: the broadcast
// polynomial commitments of every participant, summed into a single joint
// commitment polynomial. It determines the threshold (degree+1) and
// supports deriving a ShareImage at any index without reconstructing any
// secret.
type SharedKey struct {
	// Commitments are the coefficient commitments c_0 (the constant term,
	// i.e. the joint public key), c_1, ..., c_{t-1}.
	Commitments []*btcec.PublicKey
}

// Threshold returns the number of shares required to reconstruct the
// secret behind this key.
func (k SharedKey) Threshold() int {
	return len(k.Commitments)
}

// PublicKey returns the joint public key (the constant term of the
// polynomial).
func (k SharedKey) PublicKey() *btcec.PublicKey {
	if len(k.Commitments) == 0 {
		return nil
	}
	return k.Commitments[0]
}
