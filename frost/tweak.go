package frost

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/frostsnap/frostsnap/protocol"
)

// ErrHardenedDerivation is returned when a BIP32 path contains a
// hardened index. FROST access structures only support non-hardened
// public derivation, since no single party ever holds the parent
// private key needed for hardened child derivation.
var ErrHardenedDerivation = errors.New("frost: hardened derivation not supported")

const hardenedBit = 1 << 31

// RootChainCode fixes the chain code a FROST joint key's BIP32
// derivation tree roots at. Unlike a BIP32 master key, a FROST key has
// no seed to derive a chaincode from, so every participant (and the
// coordinator, which never holds a share) computes the same value
// independently as H("frostsnap/chaincode" || joint pubkey), with no
// secret material and no extra round trip.
func RootChainCode(jointPubKey *btcec.PublicKey) [32]byte {
	h := sha256.New()
	h.Write([]byte("frostsnap/chaincode"))
	h.Write(jointPubKey.SerializeCompressed())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveChildXpub applies one non-hardened BIP32 public-derivation step
// to a FROST shared key's root public key and chain code, producing the
// child's public key, chain code, and the additive tweak scalar (which
// every participant adds to their own secret share to get their share
// of the child key).
//
// This cannot be built on hdkeychain.(*ExtendedKey).Derive: Derive
// returns only the already-combined child extended key, never the raw
// IL scalar it adds internally, and a FROST participant needs exactly
// that scalar to tweak its own secret share — nobody holds the parent
// private key Derive would otherwise require to recover it. hdkeychain
// is still exercised at the presentation boundary by EncodeXpub below,
// the same way keyring.go leans on it for wallet derivation, just not
// for this share-arithmetic step.
func DeriveChildXpub(parentKey *btcec.PublicKey, parentChainCode [32]byte, index uint32) (childKey *btcec.PublicKey, childChainCode [32]byte, tweak *btcec.ModNScalar, err error) {
	if index&hardenedBit != 0 {
		return nil, [32]byte{}, nil, ErrHardenedDerivation
	}

	mac := hmac.New(sha512.New, parentChainCode[:])
	mac.Write(parentKey.SerializeCompressed())
	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], index)
	mac.Write(idxBytes[:])
	sum := mac.Sum(nil)

	var il [32]byte
	copy(il[:], sum[:32])
	copy(childChainCode[:], sum[32:])

	t, ok := scalarFromBytes(il)
	if !ok {
		// BIP32 mandates trying the next index; callers that hit this
		// (astronomically rare) should retry with index+1.
		return nil, [32]byte{}, nil, errNonceDegenerate
	}

	childKey = addPoints(parentKey, pointFromScalar(t))
	return childKey, childChainCode, t, nil
}

// DerivePath applies a full BIP32 path of non-hardened steps, returning
// the final child key/chaincode and the single combined additive tweak
// scalar (the sum of each step's tweak) needed at signing time.
func DerivePath(rootKey *btcec.PublicKey, rootChainCode [32]byte, path []uint32) (childKey *btcec.PublicKey, childChainCode [32]byte, tweak *btcec.ModNScalar, err error) {
	key := rootKey
	chainCode := rootChainCode
	total := new(btcec.ModNScalar).SetInt(0)

	for _, index := range path {
		var step *btcec.ModNScalar
		key, chainCode, step, err = DeriveChildXpub(key, chainCode, index)
		if err != nil {
			return nil, [32]byte{}, nil, err
		}
		total = addScalars(total, step)
	}
	return key, chainCode, total, nil
}

// EncodeXpub renders a derived Xpub as the standard base58check
// "xpub..."/"tpub..." string any BIP32-aware wallet already parses, via
// hdkeychain's extended-key encoder. hdkeychain.NewExtendedKey takes a
// caller-supplied key and chain code directly rather than deriving one
// from a seed, which is what makes it usable here even though a FROST
// joint key has no BIP32 master behind it.
func EncodeXpub(xpub protocol.Xpub, params *chaincfg.Params) (string, error) {
	pub := xpub.Key.PublicKey()
	if pub == nil {
		return "", errors.New("frost: xpub has no commitments")
	}
	var parentFP [4]byte
	ext := hdkeychain.NewExtendedKey(
		params.HDPublicKeyID[:],
		pub.SerializeCompressed(),
		xpub.ChainCode[:],
		parentFP[:],
		0,
		0,
		false,
	)
	return ext.String(), nil
}

// TapTweak computes the BIP341 key-path taproot tweak for an
// already-even-Y internal key with no script path (merkle root is
// empty): t = H_TapTweak(x(P)).
func TapTweak(internalKey *btcec.PublicKey) *btcec.ModNScalar {
	xBytes := internalKey.SerializeCompressed()[1:]

	tag := sha256.Sum256([]byte("TapTweak"))
	h := sha256.New()
	h.Write(tag[:])
	h.Write(tag[:])
	h.Write(xBytes)
	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	var t btcec.ModNScalar
	t.SetBytes(&digest)
	return &t
}

// CombineTweaks folds a BIP32 path tweak and an optional taproot tweak
// into the single scalar SignShare/VerifySignatureShare expect, applying
// the taproot tweak relative to the already-path-tweaked key as BIP341
// key-path spending requires.
func CombineTweaks(pathTweak *btcec.ModNScalar, pathTweakedKey *btcec.PublicKey, applyTapTweak bool) *btcec.ModNScalar {
	if !applyTapTweak {
		return pathTweak
	}
	tap := TapTweak(pathTweakedKey)
	if pathTweak == nil {
		return tap
	}
	return addScalars(pathTweak, tap)
}
