package frost

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/frostsnap/frostsnap/protocol"
)

// The backup codec packs a share's secret, index, and key purpose into
// a 25-word phrase: 24 words of payload at 11 bits/word (go-bip39's
// English wordlist has 2048 = 2^11 entries) plus a 25th word reserved
// entirely for a checksum, mirroring the shape of the original
// firmware's AllWordsPage word_indices (25 slots, with share_index
// shown as its own field alongside them) rather than stock BIP39's
// scheme of folding a variable-length checksum into the final entropy
// word. The content of the original's own FROSTSNAP_BACKUP_WORDS
// wordlist isn't present anywhere in the retrieval pack (only
// consuming UI widgets are), so this codec reuses go-bip39's real
// English list instead of inventing one.
//
// 24 words at 11 bits/word is 264 bits — 8 more than the 256-bit
// secret alone, leaving no room for a full-width ShareIndex or
// KeyPurpose alongside it. The codec packs shareIndex and purpose into
// one nibble each (33-byte payload, exactly 264 bits, zero slack), so
// "every legal (share_index, secret, purpose)" for this codec means
// shareIndex in 0-15 and purpose in 0-15. Every ShareIndex this
// codebase actually constructs (everywhere outside this file) is a
// single-digit ordinal, and KeyPurpose has three variants today, so
// this is headroom, not a binding restriction, for any key this system
// currently generates.
const (
	backupWords      = 25
	backupDataWords  = backupWords - 1 // 24
	backupPayloadLen = 33              // 32-byte secret + 1 packed index/purpose byte

	// MaxBackupShareIndex and MaxBackupPurpose are the largest values
	// the codec's fixed-width payload can carry.
	MaxBackupShareIndex = 0x0F
	MaxBackupPurpose    = 0x0F
)

var backupWordList = bip39.GetWordList()

var backupWordIndex = buildBackupWordIndex()

func buildBackupWordIndex() map[string]int {
	m := make(map[string]int, len(backupWordList))
	for i, w := range backupWordList {
		m[w] = i
	}
	return m
}

// EncodeBackup renders secret, shareIndex, and purpose as a 25-word
// backup phrase, for a device to display on-screen and a user to
// transcribe on paper.
func EncodeBackup(secret [32]byte, shareIndex protocol.ShareIndex, purpose protocol.KeyPurpose) (string, error) {
	idx, err := compactShareIndex(shareIndex)
	if err != nil {
		return "", err
	}
	if purpose < 0 || purpose > MaxBackupPurpose {
		return "", fmt.Errorf("frost: backup purpose %d out of range 0-%d", purpose, MaxBackupPurpose)
	}

	payload := make([]byte, 0, backupPayloadLen)
	payload = append(payload, secret[:]...)
	payload = append(payload, idx<<4|byte(purpose))

	words := make([]string, backupWords)
	n := new(big.Int).SetBytes(payload)
	mask := big.NewInt(0x7FF)
	for i := backupDataWords - 1; i >= 0; i-- {
		part := new(big.Int).And(n, mask)
		words[i] = backupWordList[part.Int64()]
		n.Rsh(n, 11)
	}
	words[backupDataWords] = backupWordList[backupChecksumIndex(payload)]

	return strings.Join(words, " "), nil
}

// DecodeBackup parses a 25-word backup phrase back into its secret,
// share index, and purpose, rejecting a phrase with an unrecognized
// word or a mismatched checksum. decode(encode(share)) == share for
// every (shareIndex, secret, purpose) EncodeBackup accepts.
func DecodeBackup(phrase string) (secret [32]byte, shareIndex protocol.ShareIndex, purpose protocol.KeyPurpose, err error) {
	words := strings.Fields(phrase)
	if len(words) != backupWords {
		return secret, shareIndex, purpose, fmt.Errorf("frost: backup phrase has %d words, want %d", len(words), backupWords)
	}

	n := new(big.Int)
	for _, w := range words[:backupDataWords] {
		idx, ok := backupWordIndex[w]
		if !ok {
			return secret, shareIndex, purpose, fmt.Errorf("frost: %q is not a backup wordlist word", w)
		}
		n.Lsh(n, 11)
		n.Or(n, big.NewInt(int64(idx)))
	}

	payload := make([]byte, backupPayloadLen)
	n.FillBytes(payload)

	checksumWord := words[backupDataWords]
	wantIdx, ok := backupWordIndex[checksumWord]
	if !ok {
		return secret, shareIndex, purpose, fmt.Errorf("frost: %q is not a backup wordlist word", checksumWord)
	}
	if wantIdx != backupChecksumIndex(payload) {
		return secret, shareIndex, purpose, fmt.Errorf("frost: invalid backup phrase checksum")
	}

	copy(secret[:], payload[:32])
	packed := payload[32]
	shareIndex = shareIndexFromByte(packed >> 4)
	purpose = protocol.KeyPurpose(packed & 0x0F)
	return secret, shareIndex, purpose, nil
}

// compactShareIndex extracts shareIndex's value as a nibble, rejecting
// any index this codec's fixed-width payload can't carry: one whose
// big-endian encoding sets any byte other than the last, or whose last
// byte exceeds MaxBackupShareIndex.
func compactShareIndex(shareIndex protocol.ShareIndex) (byte, error) {
	for _, b := range shareIndex[:31] {
		if b != 0 {
			return 0, fmt.Errorf("frost: share index %s too large for backup codec", shareIndex)
		}
	}
	last := shareIndex[31]
	if last > MaxBackupShareIndex {
		return 0, fmt.Errorf("frost: share index %d exceeds backup codec maximum %d", last, MaxBackupShareIndex)
	}
	return last, nil
}

func shareIndexFromByte(b byte) protocol.ShareIndex {
	var out protocol.ShareIndex
	out[31] = b
	return out
}

// backupChecksumIndex derives the 25th word's wordlist index from the
// payload via SHA-256, the same tagged-hash-for-a-derived-value idiom
// this package uses elsewhere (RootChainCode), rather than BIP39's own
// entropy-length-dependent checksum-bit-count rule, which has no
// well-defined meaning for a payload shape BIP39 itself never
// specifies.
func backupChecksumIndex(payload []byte) int {
	h := sha256.Sum256(payload)
	return int(binary.BigEndian.Uint16(h[:2]) >> 5)
}
