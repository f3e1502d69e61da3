package frost

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/frostsnap/frostsnap/protocol"
	"golang.org/x/crypto/chacha20"
)

// nonceStreamTag domain-separates the nonce DRBG from every other use of
// a device's root secret.
const nonceStreamTag = "frostsnap/nonces"

// nonceBatchWords is the number of 32-bit words of ChaCha20 keystream
// consumed per nonce counter step: one 64-byte block holds exactly two
// 32-byte scalars (the hiding and binding nonce secrets), and a block is
// 16 words, so advancing the counter by one nonce index consumes 16
// words of keystream.
const nonceBatchWords = 16

// NonceSecret is a device's still-secret hiding/binding nonce pair for
// one index of one stream. It is never persisted; it is re-derived from
// the stream seed each time it is needed, and the only durable state is
// the counter past which a device refuses to re-derive.
type NonceSecret struct {
	Hiding  *btcec.ModNScalar
	Binding *btcec.ModNScalar
}

// Public returns the public nonce pair advertised to the coordinator.
func (n NonceSecret) Public() protocol.NoncePair {
	var pair protocol.NoncePair
	copy(pair.Hiding[:], pointFromScalar(n.Hiding).SerializeCompressed())
	copy(pair.Binding[:], pointFromScalar(n.Binding).SerializeCompressed())
	return pair
}

// NonceStreamSeed derives the 32-byte ChaCha20 key for one device's
// nonce stream from its long-term secret and the stream identifier.
// Distinct streams (one per access structure the device participates
// in) use distinct seeds so that exhausting one stream's counter has no
// bearing on any other.
func NonceStreamSeed(deviceSecret [32]byte, streamId protocol.NonceStreamId) [32]byte {
	h := sha256.New()
	h.Write([]byte(nonceStreamTag))
	h.Write(deviceSecret[:])
	h.Write(streamId[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveNonce deterministically recomputes the nonce secret at the given
// counter index of a seeded stream. Counter 0 is the first nonce ever
// issued from this stream; a device must never re-derive and use a
// counter below the next-unused value it has persisted.
func DeriveNonce(seed [32]byte, counter uint64) (*NonceSecret, error) {
	// ChaCha20 takes a 12-byte nonce; we use the zero nonce since the
	// seed itself is already unique per stream, and vary the block
	// counter to reach the requested index.
	var zeroNonce [chacha20.NonceSize]byte
	cipher, err := chacha20.NewUnauthenticatedCipher(seed[:], zeroNonce[:])
	if err != nil {
		return nil, err
	}

	// Advance by counter*nonceBatchWords words == counter 64-byte blocks.
	cipher.SetCounter(uint32(counter))

	var block [64]byte
	cipher.XORKeyStream(block[:], block[:])

	var hidingBytes, bindingBytes [32]byte
	copy(hidingBytes[:], block[:32])
	copy(bindingBytes[:], block[32:])

	hiding, ok := scalarFromBytes(hidingBytes)
	if !ok {
		return nil, errNonceDegenerate
	}
	binding, ok := scalarFromBytes(bindingBytes)
	if !ok {
		return nil, errNonceDegenerate
	}
	return &NonceSecret{Hiding: hiding, Binding: binding}, nil
}

// DeriveNonceBatch derives `count` consecutive nonces starting at start,
// for a RequestNonces/NonceResponse round trip.
func DeriveNonceBatch(seed [32]byte, start uint64, count uint32) ([]*NonceSecret, error) {
	out := make([]*NonceSecret, count)
	for i := uint32(0); i < count; i++ {
		n, err := DeriveNonce(seed, start+uint64(i))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// bindingCoefficient computes the FROST binding factor rho_i for
// participant i: H(i, message, pubNonces-of-all-signers), tagged to
// separate it from every other hash used in this scheme.
func bindingCoefficient(index *btcec.ModNScalar, message [32]byte, allNonces []protocol.NoncePair) *btcec.ModNScalar {
	h := sha256.New()
	h.Write([]byte("frostsnap/binding"))
	idxBytes := index.Bytes()
	h.Write(idxBytes[:])
	h.Write(message[:])
	for _, n := range allNonces {
		h.Write(n.Hiding[:])
		h.Write(n.Binding[:])
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	var rho btcec.ModNScalar
	rho.SetBytes(&digest)
	return &rho
}

// effectiveNonce combines a participant's hiding and binding commitments
// into the single effective per-signer nonce point R_i = D_i + rho_i*E_i.
func effectiveNoncePoint(pair protocol.NoncePair, rho *btcec.ModNScalar) (*btcec.PublicKey, error) {
	hiding, err := btcec.ParsePubKey(pair.Hiding[:])
	if err != nil {
		return nil, err
	}
	binding, err := btcec.ParsePubKey(pair.Binding[:])
	if err != nil {
		return nil, err
	}
	return addPoints(hiding, scalarMultPoint(rho, binding)), nil
}

var errNonceDegenerate = nonceError("derived nonce scalar is zero or overflowed")

type nonceError string

func (e nonceError) Error() string { return string(e) }
