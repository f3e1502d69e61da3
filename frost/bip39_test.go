package frost

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frostsnap/frostsnap/protocol"
)

func backupTestShareIndex(b byte) protocol.ShareIndex {
	var idx protocol.ShareIndex
	idx[31] = b
	return idx
}

func TestEncodeDecodeBackup_RoundTrip(t *testing.T) {
	t.Parallel()

	var secret [32]byte
	copy(secret[:], []byte("super-secret-share-scalar-bytes"))

	phrase, err := EncodeBackup(secret, backupTestShareIndex(7), protocol.PurposeBitcoinTestnet)
	require.NoError(t, err)
	require.Len(t, strings.Fields(phrase), backupWords)

	recoveredSecret, recoveredIndex, recoveredPurpose, err := DecodeBackup(phrase)
	require.NoError(t, err)
	require.Equal(t, secret, recoveredSecret)
	require.Equal(t, backupTestShareIndex(7), recoveredIndex)
	require.Equal(t, protocol.PurposeBitcoinTestnet, recoveredPurpose)
}

func TestEncodeDecodeBackup_RoundTrip_AllZero(t *testing.T) {
	t.Parallel()

	var secret [32]byte
	phrase, err := EncodeBackup(secret, backupTestShareIndex(0), protocol.PurposeBitcoinMainnet)
	require.NoError(t, err)

	recoveredSecret, recoveredIndex, recoveredPurpose, err := DecodeBackup(phrase)
	require.NoError(t, err)
	require.Equal(t, secret, recoveredSecret)
	require.Equal(t, backupTestShareIndex(0), recoveredIndex)
	require.Equal(t, protocol.PurposeBitcoinMainnet, recoveredPurpose)
}

func TestEncodeDecodeBackup_RoundTrip_MaxIndexAndPurpose(t *testing.T) {
	t.Parallel()

	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i)
	}

	phrase, err := EncodeBackup(secret, backupTestShareIndex(MaxBackupShareIndex), protocol.KeyPurpose(MaxBackupPurpose))
	require.NoError(t, err)

	recoveredSecret, recoveredIndex, recoveredPurpose, err := DecodeBackup(phrase)
	require.NoError(t, err)
	require.Equal(t, secret, recoveredSecret)
	require.Equal(t, backupTestShareIndex(MaxBackupShareIndex), recoveredIndex)
	require.Equal(t, protocol.KeyPurpose(MaxBackupPurpose), recoveredPurpose)
}

func TestEncodeBackup_RejectsOversizedShareIndex(t *testing.T) {
	t.Parallel()

	var secret [32]byte
	_, err := EncodeBackup(secret, backupTestShareIndex(MaxBackupShareIndex+1), protocol.PurposeTest)
	require.Error(t, err)

	var wide protocol.ShareIndex
	wide[0] = 1 // any byte outside the last is out of range regardless of magnitude
	_, err = EncodeBackup(secret, wide, protocol.PurposeTest)
	require.Error(t, err)
}

func TestEncodeBackup_RejectsOversizedPurpose(t *testing.T) {
	t.Parallel()

	var secret [32]byte
	_, err := EncodeBackup(secret, backupTestShareIndex(1), protocol.KeyPurpose(MaxBackupPurpose+1))
	require.Error(t, err)
}

func TestDecodeBackup_RejectsWrongWordCount(t *testing.T) {
	t.Parallel()

	_, _, _, err := DecodeBackup(strings.Repeat("abandon ", 24)) // 24 words, not 25
	require.Error(t, err)
}

func TestDecodeBackup_RejectsUnknownWord(t *testing.T) {
	t.Parallel()

	var secret [32]byte
	phrase, err := EncodeBackup(secret, backupTestShareIndex(1), protocol.PurposeTest)
	require.NoError(t, err)

	words := strings.Fields(phrase)
	words[0] = "notarealbip39word"
	_, _, _, err = DecodeBackup(strings.Join(words, " "))
	require.Error(t, err)
}

func TestDecodeBackup_RejectsBadChecksum(t *testing.T) {
	t.Parallel()

	var secret [32]byte
	phrase, err := EncodeBackup(secret, backupTestShareIndex(1), protocol.PurposeTest)
	require.NoError(t, err)

	words := strings.Fields(phrase)
	last := words[backupDataWords]
	// Swap the checksum word for a different wordlist word so the
	// phrase still parses but no longer checksums correctly.
	replacement := backupWordList[0]
	if replacement == last {
		replacement = backupWordList[1]
	}
	words[backupDataWords] = replacement

	_, _, _, err = DecodeBackup(strings.Join(words, " "))
	require.Error(t, err)
}
