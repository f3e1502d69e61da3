package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// SignItem is one (message, tweak) unit a device must produce a signature
// share for. A SignTask expands to one or more SignItems, one per input for
// a Bitcoin transaction, or exactly one for a raw message/Nostr event.
type SignItem struct {
	// Bip32Path is the child-derivation path applied to the access
	// structure's shared key before signing this item (empty for no
	// derivation).
	Bip32Path []uint32
	// TapTweak, if set, applies the BIP341 taproot tweak (key-path
	// spend, no script path) to the (possibly BIP32-derived) key before
	// signing.
	TapTweak bool
	// Message is the exact 32-byte digest this item signs.
	Message [32]byte
}

// SignTask is the payload of a signing session: a Bitcoin PSBT template, an
// arbitrary 32-byte message, or a Nostr event, each of which expands into
// one or more SignItems.
type SignTask interface {
	// SignItems returns, in order, every (message, tweak) pair this task
	// requires a signature share for.
	SignItems() []SignItem
	fmt.Stringer
	isSignTask()
}

// BitcoinTransactionTask signs every input of a PSBT template, each with
// its own BIP32 path and taproot-tweak flag as recorded in the PSBT's
// derivation metadata.
type BitcoinTransactionTask struct {
	Packet *psbt.Packet
	Items  []SignItem
}

func (t *BitcoinTransactionTask) SignItems() []SignItem { return t.Items }
func (t *BitcoinTransactionTask) isSignTask()           {}
func (t *BitcoinTransactionTask) String() string {
	return fmt.Sprintf("bitcoin transaction (%d inputs)", len(t.Items))
}

// GobEncode implements gob.GobEncoder, serializing the wrapped PSBT
// through its own BIP174 binary encoding rather than letting gob
// reflect over psbt.Packet's internals, which is not a safe bet for a
// type this large and externally defined.
func (t *BitcoinTransactionTask) GobEncode() ([]byte, error) {
	var psbtBuf bytes.Buffer
	if err := t.Packet.Serialize(&psbtBuf); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := binary.Write(&out, binary.BigEndian, uint32(psbtBuf.Len())); err != nil {
		return nil, err
	}
	out.Write(psbtBuf.Bytes())
	if err := gob.NewEncoder(&out).Encode(t.Items); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (t *BitcoinTransactionTask) GobDecode(data []byte) error {
	if len(data) < 4 {
		return errMalformedGobEncoding
	}
	psbtLen := binary.BigEndian.Uint32(data[:4])
	rest := data[4:]
	if uint32(len(rest)) < psbtLen {
		return errMalformedGobEncoding
	}

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(rest[:psbtLen]), false)
	if err != nil {
		return err
	}
	t.Packet = packet

	var items []SignItem
	if err := gob.NewDecoder(bytes.NewReader(rest[psbtLen:])).Decode(&items); err != nil {
		return err
	}
	t.Items = items
	return nil
}

// TestMessageTask signs a single arbitrary 32-byte message with no
// derivation or tweak, used for test vectors and non-Bitcoin consumers.
type TestMessageTask struct {
	Message [32]byte
	Label   string
}

func (t *TestMessageTask) SignItems() []SignItem {
	return []SignItem{{Message: t.Message}}
}
func (t *TestMessageTask) isSignTask() {}
func (t *TestMessageTask) String() string {
	if t.Label != "" {
		return fmt.Sprintf("test message %q", t.Label)
	}
	return "test message"
}

// NostrEventTask signs a single Nostr event id (already the 32-byte
// sha256 digest of the canonical serialized event) with the taproot tweak
// never applied (Nostr uses plain BIP340 keys).
type NostrEventTask struct {
	EventId [32]byte
}

func (t *NostrEventTask) SignItems() []SignItem {
	return []SignItem{{Message: t.EventId}}
}
func (t *NostrEventTask) isSignTask() {}
func (t *NostrEventTask) String() string { return "nostr event" }
