// Package protocol defines the wire-level identities, message types, and
// session bookkeeping shared by the device and coordinator FROST state
// engines. It holds no cryptographic logic (see package frost) and no I/O.
package protocol

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
)

// DeviceId is a device's secp256k1 keypair public key, serialized as a
// 33-byte compressed point. It is the device's permanent identity.
type DeviceId [33]byte

// DeviceIdFromPubKey derives a DeviceId from a device keypair's public key.
func DeviceIdFromPubKey(pub *btcec.PublicKey) DeviceId {
	var id DeviceId
	copy(id[:], pub.SerializeCompressed())
	return id
}

func (d DeviceId) String() string {
	return hex.EncodeToString(d[:])
}

// PubKey parses the DeviceId back into a secp256k1 public key.
func (d DeviceId) PubKey() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(d[:])
}

// KeyId is a 32-byte hash of a key's root shared public key (the x-only
// master app key). It identifies a FROST key independent of any particular
// access structure over it.
type KeyId [32]byte

func (k KeyId) String() string {
	return hex.EncodeToString(k[:])
}

// AccessStructureId distinguishes multiple access structures (e.g. master
// vs. derived) realized under one KeyId.
type AccessStructureId [16]byte

func (a AccessStructureId) String() string {
	return hex.EncodeToString(a[:])
}

// AccessStructureRef names one concrete access structure over one key.
type AccessStructureRef struct {
	KeyId             KeyId
	AccessStructureId AccessStructureId
}

// SessionId is the representation used for SignSessionId, RestorationId,
// and EnterPhysicalId: 32 bytes of random opaque data.
type SessionId [32]byte

func (s SessionId) String() string {
	return hex.EncodeToString(s[:])
}

// NonceStreamId identifies one of a device's deterministic nonce streams.
type NonceStreamId [16]byte

func (n NonceStreamId) String() string {
	return hex.EncodeToString(n[:])
}

// AccessStructureKind distinguishes a master access structure (the one
// produced directly by a keygen ceremony) from one derived from it (e.g. by
// restoration-time reconstruction).
type AccessStructureKind int

const (
	AccessStructureMaster AccessStructureKind = iota
	AccessStructureDerived
)

func (k AccessStructureKind) String() string {
	switch k {
	case AccessStructureMaster:
		return "master"
	case AccessStructureDerived:
		return "derived"
	default:
		return "unknown"
	}
}

// KeyPurpose records what network/context a key was generated for.
type KeyPurpose int

const (
	PurposeBitcoinMainnet KeyPurpose = iota
	PurposeBitcoinTestnet
	PurposeTest
)

func (p KeyPurpose) String() string {
	switch p {
	case PurposeBitcoinMainnet:
		return "bitcoin"
	case PurposeBitcoinTestnet:
		return "testnet"
	case PurposeTest:
		return "test"
	default:
		return "unknown"
	}
}
