package frost

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/frostsnap/frostsnap/protocol"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const eciesHkdfInfo = "frostsnap/share-ecies"

// EncryptShareForRecipient seals a single secret share scalar for one
// keygen recipient, ECDH-style: an ephemeral keypair is generated, the
// shared point with the recipient's long-term device key is hashed
// through HKDF-SHA256 to derive a ChaCha20-Poly1305 key, and the
// ephemeral public key travels in EncryptedShare.Nonce in place of a
// random AEAD nonce (which is instead fixed, since the key is used
// exactly once per ephemeral keypair).
func EncryptShareForRecipient(recipientPub *btcec.PublicKey, share [32]byte) (protocol.EncryptedShare, error) {
	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return protocol.EncryptedShare{}, err
	}

	sharedPoint := scalarMultPointFromPriv(ephemeral, recipientPub)
	key, err := deriveAeadKey(sharedPoint, ephemeral.PubKey(), recipientPub)
	if err != nil {
		return protocol.EncryptedShare{}, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return protocol.EncryptedShare{}, err
	}
	var fixedNonce [chacha20poly1305.NonceSize]byte
	ciphertext := aead.Seal(nil, fixedNonce[:], share[:], nil)

	return protocol.EncryptedShare{
		Nonce:      ephemeral.PubKey().SerializeCompressed(),
		Ciphertext: ciphertext,
	}, nil
}

// DecryptShareFromSender opens a share sealed by EncryptShareForRecipient,
// given the recipient's own device private key.
func DecryptShareFromSender(recipientPriv *btcec.PrivateKey, enc protocol.EncryptedShare) ([32]byte, error) {
	ephemeralPub, err := btcec.ParsePubKey(enc.Nonce)
	if err != nil {
		return [32]byte{}, fmt.Errorf("parse ephemeral pubkey: %w", err)
	}
	sharedPoint := scalarMultPointFromPriv(recipientPriv, ephemeralPub)
	key, err := deriveAeadKey(sharedPoint, ephemeralPub, recipientPriv.PubKey())
	if err != nil {
		return [32]byte{}, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return [32]byte{}, err
	}
	var fixedNonce [chacha20poly1305.NonceSize]byte
	plaintext, err := aead.Open(nil, fixedNonce[:], enc.Ciphertext, nil)
	if err != nil {
		return [32]byte{}, fmt.Errorf("open share ciphertext: %w", err)
	}

	var out [32]byte
	copy(out[:], plaintext)
	return out, nil
}

func scalarMultPointFromPriv(priv *btcec.PrivateKey, pub *btcec.PublicKey) *btcec.PublicKey {
	var keyBytes [32]byte
	copy(keyBytes[:], priv.Serialize())
	var s btcec.ModNScalar
	s.SetBytes(&keyBytes)
	return scalarMultPoint(&s, pub)
}

func deriveAeadKey(sharedPoint *btcec.PublicKey, ephemeralPub, recipientPub *btcec.PublicKey) ([]byte, error) {
	salt := append(append([]byte{}, ephemeralPub.SerializeCompressed()...), recipientPub.SerializeCompressed()...)
	reader := hkdf.New(sha256.New, sharedPoint.SerializeCompressed(), salt, []byte(eciesHkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// atRestHkdfInfo separates the device's flash-encryption key derivation
// from its keygen ECIES derivation even though both may ultimately
// trace back to the same eFuse-burned root secret on real hardware.
const atRestHkdfInfo = "frostsnap/share-at-rest"

// SealShare encrypts a secret share for storage in the device's flash
// log, keyed by a symmetric key derived from the device's eFuse root
// secret. Unlike EncryptShareForRecipient, a fresh random nonce is used
// since the same key encrypts many shares over the device's lifetime.
func SealShare(rootSecret [32]byte, shareIndex protocol.ShareIndex, share [32]byte) (protocol.EncryptedShare, error) {
	key, err := deriveAtRestKey(rootSecret, shareIndex)
	if err != nil {
		return protocol.EncryptedShare{}, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return protocol.EncryptedShare{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return protocol.EncryptedShare{}, err
	}
	ciphertext := aead.Seal(nil, nonce, share[:], nil)
	return protocol.EncryptedShare{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// OpenShare reverses SealShare when replaying the device's mutation log.
func OpenShare(rootSecret [32]byte, shareIndex protocol.ShareIndex, enc protocol.EncryptedShare) ([32]byte, error) {
	key, err := deriveAtRestKey(rootSecret, shareIndex)
	if err != nil {
		return [32]byte{}, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return [32]byte{}, err
	}
	plaintext, err := aead.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return [32]byte{}, fmt.Errorf("open at-rest share: %w", err)
	}
	var out [32]byte
	copy(out[:], plaintext)
	return out, nil
}

func deriveAtRestKey(rootSecret [32]byte, shareIndex protocol.ShareIndex) ([]byte, error) {
	reader := hkdf.New(sha256.New, rootSecret[:], shareIndex[:], []byte(atRestHkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
