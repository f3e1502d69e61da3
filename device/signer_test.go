package device

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"

	"github.com/frostsnap/frostsnap/frost"
	"github.com/frostsnap/frostsnap/protocol"
)

func testDevicePriv(b byte) *btcec.PrivateKey {
	var buf [32]byte
	buf[31] = b
	priv, _ := btcec.PrivKeyFromBytes(buf[:])
	return priv
}

func testShareIndex(b byte) protocol.ShareIndex {
	var idx protocol.ShareIndex
	idx[31] = b
	return idx
}

// TestSigner_KeygenThenSign drives two device signers through a full
// 2-of-2 keygen, confirms both land on the same session hash and key
// id, then drives a signing round for a single message and checks the
// aggregated signature verifies against the joint public key.
func TestSigner_KeygenThenSign(t *testing.T) {
	t.Parallel()

	a := New(testDevicePriv(1), [32]byte{0xAA})
	b := New(testDevicePriv(2), [32]byte{0xBB})

	idxA, idxB := testShareIndex(1), testShareIndex(2)
	deviceToShareIndex := map[protocol.DeviceId]protocol.ShareIndex{
		a.Id(): idxA,
		b.Id(): idxB,
	}
	doKeyGen := protocol.DoKeyGen{DeviceToShareIndex: deviceToShareIndex, Threshold: 2, Purpose: protocol.PurposeTest}

	sendsA, err := a.Handle(doKeyGen)
	require.NoError(t, err)
	require.Len(t, sendsA, 1)
	respA := sendsA[0].(protocol.ToCoordinator).Message.(protocol.KeyGenResponse)
	require.Equal(t, KeyGenProposed, a.State())

	sendsB, err := b.Handle(doKeyGen)
	require.NoError(t, err)
	respB := sendsB[0].(protocol.ToCoordinator).Message.(protocol.KeyGenResponse)

	finish := protocol.FinishKeyGen{SharesProvided: map[protocol.DeviceId]protocol.KeyGenResponse{
		a.Id(): respA,
		b.Id(): respB,
	}}

	sendsA, err = a.Handle(finish)
	require.NoError(t, err)
	require.Len(t, sendsA, 1)
	checkA := sendsA[0].(protocol.ToUser).Message.(protocol.CheckKeyGen)
	require.Equal(t, KeyGenAckPending, a.State())

	sendsB, err = b.Handle(finish)
	require.NoError(t, err)
	checkB := sendsB[0].(protocol.ToUser).Message.(protocol.CheckKeyGen)
	require.Equal(t, checkA.SessionHash, checkB.SessionHash)

	sendsA, err = a.Confirm(protocol.KeyGenConfirm{})
	require.NoError(t, err)
	require.Len(t, sendsA, 2)
	saveA := sendsA[0].(protocol.ToStorage).Change.(protocol.SaveKey)
	ackA := sendsA[1].(protocol.ToCoordinator).Message.(protocol.KeyGenAck)
	require.Equal(t, Idle, a.State())

	sendsB, err = b.Confirm(protocol.KeyGenConfirm{})
	require.NoError(t, err)
	saveB := sendsB[0].(protocol.ToStorage).Change.(protocol.SaveKey)
	ackB := sendsB[1].(protocol.ToCoordinator).Message.(protocol.KeyGenAck)

	require.Equal(t, ackA.SessionHash, ackB.SessionHash)
	require.Equal(t, saveA.KeyId, saveB.KeyId)

	keyId := saveA.KeyId
	keyA, ok := a.Key(keyId)
	require.True(t, ok)
	keyB, ok := b.Key(keyId)
	require.True(t, ok)
	require.True(t, keyA.SharedKey.PublicKey().IsEqual(keyB.SharedKey.PublicKey()))

	// -- signing --
	streamId := protocol.NonceStreamId{0x01}
	reqNonces := protocol.RequestNonces{StreamId: streamId, Count: 1}

	sendsA, err = a.Handle(reqNonces)
	require.NoError(t, err)
	nonceRespA := sendsA[0].(protocol.ToCoordinator).Message.(protocol.NonceResponse)

	sendsB, err = b.Handle(reqNonces)
	require.NoError(t, err)
	nonceRespB := sendsB[0].(protocol.ToCoordinator).Message.(protocol.NonceResponse)

	var msg [32]byte
	copy(msg[:], []byte("frostsnap device package test!!"))
	task := &protocol.TestMessageTask{Message: msg, Label: "t"}

	nonces := map[protocol.ShareIndex]protocol.SignRequestNonces{
		keyA.ShareIndex: {StreamId: streamId, Start: nonceRespA.StartIndex, Nonces: nonceRespA.Nonces},
		keyB.ShareIndex: {StreamId: streamId, Start: nonceRespB.StartIndex, Nonces: nonceRespB.Nonces},
	}
	reqSign := protocol.RequestSign{
		KeyId:              keyId,
		AccessStructureRef: keyA.AccessStructureRef,
		SignTask:           task,
		Nonces:             nonces,
	}

	sendsA, err = a.Handle(reqSign)
	require.NoError(t, err)
	require.Len(t, sendsA, 1)
	_, ok = sendsA[0].(protocol.ToUser).Message.(protocol.SignatureRequest)
	require.True(t, ok)
	require.Equal(t, SigningProposed, a.State())

	sendsB, err = b.Handle(reqSign)
	require.NoError(t, err)

	sendsA, err = a.Confirm(protocol.SigningConfirm{})
	require.NoError(t, err)
	require.Len(t, sendsA, 2)
	expendA := sendsA[0].(protocol.ToStorage).Change.(protocol.ExpendNonce)
	shareRespA := sendsA[1].(protocol.ToCoordinator).Message.(protocol.SignatureShare)
	require.Equal(t, Idle, a.State())
	require.Equal(t, uint64(1), expendA.NonceCounter)

	sendsB, err = b.Confirm(protocol.SigningConfirm{})
	require.NoError(t, err)
	shareRespB := sendsB[1].(protocol.ToCoordinator).Message.(protocol.SignatureShare)

	byIndex := map[protocol.ShareIndex][32]byte{
		keyA.ShareIndex: shareRespA.Shares[0],
		keyB.ShareIndex: shareRespB.Shares[0],
	}
	allIndices := sortedShareIndices(nonces)
	allNonces := []protocol.NoncePair{
		nonces[allIndices[0]].Nonces[0],
		nonces[allIndices[1]].Nonces[0],
	}
	shares := [][32]byte{byIndex[allIndices[0]], byIndex[allIndices[1]]}

	sigBytes := frost.AggregateSignature(msg, allNonces, shares)
	sig, err := schnorr.ParseSignature(sigBytes[:])
	require.NoError(t, err)
	require.True(t, sig.Verify(msg[:], keyA.SharedKey.PublicKey()))
}

func TestSigner_CancelReturnsToIdle(t *testing.T) {
	t.Parallel()

	a := New(testDevicePriv(3), [32]byte{0xDD})
	other := protocol.DeviceIdFromPubKey(testDevicePriv(4).PubKey())

	doKeyGen := protocol.DoKeyGen{
		DeviceToShareIndex: map[protocol.DeviceId]protocol.ShareIndex{
			a.Id(): testShareIndex(1),
			other:  testShareIndex(2),
		},
		Threshold: 2,
	}
	_, err := a.Handle(doKeyGen)
	require.NoError(t, err)
	require.Equal(t, KeyGenProposed, a.State())

	sends, err := a.Handle(protocol.Cancel{})
	require.NoError(t, err)
	require.Len(t, sends, 1)
	canceled := sends[0].(protocol.ToUser).Message.(protocol.Canceled)
	require.Equal(t, protocol.TaskKeyGen, canceled.Task)
	require.Equal(t, Idle, a.State())

	// Cancel while idle is a no-op, not an error, and emits nothing.
	sends, err = a.Handle(protocol.Cancel{})
	require.NoError(t, err)
	require.Empty(t, sends)
}

func TestSigner_PhysicalBackupLoadAndSave(t *testing.T) {
	t.Parallel()

	d := New(testDevicePriv(9), [32]byte{0xCC})

	var secret [32]byte
	secret[31] = 0x42
	var shareIndex protocol.ShareIndex
	shareIndex[31] = 3
	phrase, err := frost.EncodeBackup(secret, shareIndex, protocol.PurposeBitcoinTestnet)
	require.NoError(t, err)

	restorationId := protocol.SessionId{0x01}
	sends, err := d.Handle(protocol.LoadPhysicalBackup{RestorationId: restorationId, Backup: phrase})
	require.NoError(t, err)
	require.Len(t, sends, 1)
	entered := sends[0].(protocol.ToCoordinator).Message.(protocol.PhysicalBackupEntered)
	require.Equal(t, restorationId, entered.RestorationId)
	require.Equal(t, shareIndex, entered.ShareImage.Index)
	require.Equal(t, BackupEntry, d.State())

	sends, err = d.Handle(protocol.SavePhysicalBackup{RestorationId: restorationId})
	require.NoError(t, err)
	require.Len(t, sends, 1)
	save := sends[0].(protocol.ToStorage).Change.(protocol.SaveBackup)
	require.Equal(t, entered.ShareImage.Index, save.ShareIndex)
	require.Equal(t, protocol.PurposeBitcoinTestnet, save.Purpose)
	require.Equal(t, Idle, d.State())
}
