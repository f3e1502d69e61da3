package coordinator

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"

	"github.com/frostsnap/frostsnap/device"
	"github.com/frostsnap/frostsnap/protocol"
)

// memSink is a MutationSink that just appends to a slice, standing in
// for package mutationdb in these tests.
type memSink struct {
	mutations []protocol.Mutation
}

func (m *memSink) Append(mu protocol.Mutation) error {
	m.mutations = append(m.mutations, mu)
	return nil
}

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

// asToCoordinator unwraps a single protocol.DeviceSend produced by a
// device.Signer into the protocol.DeviceToCoordinatorMessage it wraps.
func asToCoordinator(t *testing.T, sends []protocol.DeviceSend) protocol.DeviceToCoordinatorMessage {
	t.Helper()
	require.Len(t, sends, 1)
	return sends[0].(protocol.ToCoordinator).Message
}

// TestCoordinator_KeygenThenSign drives a Coordinator and two
// device.Signer instances through a full 2-of-2 keygen and a signing
// round, entirely through the message types each side actually
// exchanges, and checks the aggregated signature verifies against the
// joint key the coordinator independently learned.
func TestCoordinator_KeygenThenSign(t *testing.T) {
	t.Parallel()

	a := device.New(testDevicePriv(1), [32]byte{0xAA})
	b := device.New(testDevicePriv(2), [32]byte{0xBB})

	sink := &memSink{}
	c := New(sink)
	c.NoteConnected(a.Id())
	c.NoteConnected(b.Id())

	idxA, idxB := testShareIndex(1), testShareIndex(2)
	deviceToShareIndex := map[protocol.DeviceId]protocol.ShareIndex{
		a.Id(): idxA,
		b.Id(): idxB,
	}

	sends, err := c.DoKeyGen(deviceToShareIndex, 2, protocol.PurposeTest)
	require.NoError(t, err)
	require.Len(t, sends, 1)
	doKeyGen := sends[0].(protocol.ToDevice).Message.(protocol.DoKeyGen)

	devSendsA, err := a.Handle(doKeyGen)
	require.NoError(t, err)
	respA := asToCoordinator(t, devSendsA).(protocol.KeyGenResponse)

	devSendsB, err := b.Handle(doKeyGen)
	require.NoError(t, err)
	respB := asToCoordinator(t, devSendsB).(protocol.KeyGenResponse)

	sends, err = c.HandleDeviceMessage(a.Id(), respA)
	require.NoError(t, err)
	require.Empty(t, sends)

	sends, err = c.HandleDeviceMessage(b.Id(), respB)
	require.NoError(t, err)
	require.Len(t, sends, 1)
	finish := sends[0].(protocol.ToDevice).Message.(protocol.FinishKeyGen)

	devSendsA, err = a.Handle(finish)
	require.NoError(t, err)
	checkA := devSendsA[0].(protocol.ToUser).Message.(protocol.CheckKeyGen)

	devSendsB, err = b.Handle(finish)
	require.NoError(t, err)
	checkB := devSendsB[0].(protocol.ToUser).Message.(protocol.CheckKeyGen)
	require.Equal(t, checkA.SessionHash, checkB.SessionHash)

	devSendsA, err = a.Confirm(protocol.KeyGenConfirm{})
	require.NoError(t, err)
	ackA := devSendsA[1].(protocol.ToCoordinator).Message.(protocol.KeyGenAck)
	saveA := devSendsA[0].(protocol.ToStorage).Change.(protocol.SaveKey)

	devSendsB, err = b.Confirm(protocol.KeyGenConfirm{})
	require.NoError(t, err)
	ackB := devSendsB[1].(protocol.ToCoordinator).Message.(protocol.KeyGenAck)

	sends, err = c.HandleDeviceMessage(a.Id(), ackA)
	require.NoError(t, err)
	require.Empty(t, sends)

	sends, err = c.HandleDeviceMessage(b.Id(), ackB)
	require.NoError(t, err)
	require.Empty(t, sends)
	require.Len(t, sink.mutations, 1)

	keyId := saveA.KeyId
	entry, ok := c.Key(keyId)
	require.True(t, ok)
	as, ok := entry.AccessStructures[masterAccessStructureId(keyId)]
	require.True(t, ok)

	keyA, ok := a.Key(keyId)
	require.True(t, ok)
	require.True(t, as.SharedKey.PublicKey().IsEqual(keyA.SharedKey.PublicKey()))

	// -- signing --

	var msg [32]byte
	copy(msg[:], []byte("frostsnap coordinator test msg!"))
	task := &protocol.TestMessageTask{Message: msg, Label: "t"}

	sessionId, sends, err := c.StartSigning(as.Ref, task, []protocol.DeviceId{a.Id(), b.Id()})
	require.NoError(t, err)
	require.Len(t, sends, 2)

	reqNoncesByDest := map[protocol.DeviceId]protocol.RequestNonces{}
	for _, s := range sends {
		td := s.(protocol.ToDevice)
		require.Len(t, td.Destinations, 1)
		reqNoncesByDest[td.Destinations[0]] = td.Message.(protocol.RequestNonces)
	}

	devSendsA, err = a.Handle(reqNoncesByDest[a.Id()])
	require.NoError(t, err)
	nonceRespA := asToCoordinator(t, devSendsA).(protocol.NonceResponse)

	devSendsB, err = b.Handle(reqNoncesByDest[b.Id()])
	require.NoError(t, err)
	nonceRespB := asToCoordinator(t, devSendsB).(protocol.NonceResponse)

	sends, err = c.HandleDeviceMessage(a.Id(), nonceRespA)
	require.NoError(t, err)
	require.Empty(t, sends)

	sends, err = c.HandleDeviceMessage(b.Id(), nonceRespB)
	require.NoError(t, err)
	require.Len(t, sends, 1)
	reqSign := sends[0].(protocol.ToDevice).Message.(protocol.RequestSign)

	devSendsA, err = a.Handle(reqSign)
	require.NoError(t, err)
	_, ok = devSendsA[0].(protocol.ToUser).Message.(protocol.SignatureRequest)
	require.True(t, ok)

	devSendsB, err = b.Handle(reqSign)
	require.NoError(t, err)
	_, ok = devSendsB[0].(protocol.ToUser).Message.(protocol.SignatureRequest)
	require.True(t, ok)

	devSendsA, err = a.Confirm(protocol.SigningConfirm{})
	require.NoError(t, err)
	shareA := devSendsA[1].(protocol.ToCoordinator).Message.(protocol.SignatureShare)

	devSendsB, err = b.Confirm(protocol.SigningConfirm{})
	require.NoError(t, err)
	shareB := devSendsB[1].(protocol.ToCoordinator).Message.(protocol.SignatureShare)

	sends, err = c.HandleDeviceMessage(a.Id(), shareA)
	require.NoError(t, err)
	require.Empty(t, sends)

	sends, err = c.HandleDeviceMessage(b.Id(), shareB)
	require.NoError(t, err)
	require.Len(t, sends, 1)
	finished := sends[0].(protocol.ToCoordinatorUser).Message.(protocol.SignSessionFinishedEvent)
	require.Equal(t, sessionId, finished.SessionId)
	require.Len(t, finished.Signatures, 1)

	sig, err := schnorr.ParseSignature(finished.Signatures[0][:])
	require.NoError(t, err)
	require.True(t, sig.Verify(msg[:], as.SharedKey.PublicKey()))

	session, ok := c.Session(sessionId)
	require.True(t, ok)
	require.Equal(t, protocol.SignSessionFinished, session.State)
}

// TestCoordinator_CancelSigningExcludesLateShare checks the documented
// behavior of applyLateShare: a SignatureShare arriving after a session
// has been cancelled still updates nonce accounting but is never added
// to the (now irrelevant) aggregation set.
func TestCoordinator_CancelSigningExcludesLateShare(t *testing.T) {
	t.Parallel()

	a := device.New(testDevicePriv(3), [32]byte{0xCC})
	b := device.New(testDevicePriv(4), [32]byte{0xDD})

	sink := &memSink{}
	c := New(sink)
	c.NoteConnected(a.Id())
	c.NoteConnected(b.Id())

	deviceToShareIndex := map[protocol.DeviceId]protocol.ShareIndex{
		a.Id(): testShareIndex(1),
		b.Id(): testShareIndex(2),
	}
	sends, err := c.DoKeyGen(deviceToShareIndex, 2, protocol.PurposeTest)
	require.NoError(t, err)
	doKeyGen := sends[0].(protocol.ToDevice).Message.(protocol.DoKeyGen)

	devSendsA, _ := a.Handle(doKeyGen)
	respA := asToCoordinator(t, devSendsA).(protocol.KeyGenResponse)
	devSendsB, _ := b.Handle(doKeyGen)
	respB := asToCoordinator(t, devSendsB).(protocol.KeyGenResponse)

	_, err = c.HandleDeviceMessage(a.Id(), respA)
	require.NoError(t, err)
	sends, err = c.HandleDeviceMessage(b.Id(), respB)
	require.NoError(t, err)
	finish := sends[0].(protocol.ToDevice).Message.(protocol.FinishKeyGen)

	devSendsA, _ = a.Handle(finish)
	devSendsB, _ = b.Handle(finish)

	devSendsA, _ = a.Confirm(protocol.KeyGenConfirm{})
	ackA := devSendsA[1].(protocol.ToCoordinator).Message.(protocol.KeyGenAck)
	saveA := devSendsA[0].(protocol.ToStorage).Change.(protocol.SaveKey)
	devSendsB, _ = b.Confirm(protocol.KeyGenConfirm{})
	ackB := devSendsB[1].(protocol.ToCoordinator).Message.(protocol.KeyGenAck)

	_, err = c.HandleDeviceMessage(a.Id(), ackA)
	require.NoError(t, err)
	_, err = c.HandleDeviceMessage(b.Id(), ackB)
	require.NoError(t, err)

	keyId := saveA.KeyId
	entry, _ := c.Key(keyId)
	as := entry.AccessStructures[masterAccessStructureId(keyId)]

	var msg [32]byte
	copy(msg[:], []byte("cancel-before-late-share-test!!"))
	task := &protocol.TestMessageTask{Message: msg}

	sessionId, sends, err := c.StartSigning(as.Ref, task, []protocol.DeviceId{a.Id(), b.Id()})
	require.NoError(t, err)

	reqNoncesByDest := map[protocol.DeviceId]protocol.RequestNonces{}
	for _, s := range sends {
		td := s.(protocol.ToDevice)
		reqNoncesByDest[td.Destinations[0]] = td.Message.(protocol.RequestNonces)
	}
	devSendsA, _ = a.Handle(reqNoncesByDest[a.Id()])
	nonceRespA := asToCoordinator(t, devSendsA).(protocol.NonceResponse)
	devSendsB, _ = b.Handle(reqNoncesByDest[b.Id()])
	nonceRespB := asToCoordinator(t, devSendsB).(protocol.NonceResponse)

	_, err = c.HandleDeviceMessage(a.Id(), nonceRespA)
	require.NoError(t, err)
	sends, err = c.HandleDeviceMessage(b.Id(), nonceRespB)
	require.NoError(t, err)
	reqSign := sends[0].(protocol.ToDevice).Message.(protocol.RequestSign)

	devSendsA, _ = a.Handle(reqSign)
	require.NotEmpty(t, devSendsA)
	devSendsB, _ = b.Handle(reqSign)
	require.NotEmpty(t, devSendsB)

	devSendsA, _ = a.Confirm(protocol.SigningConfirm{})
	shareA := devSendsA[1].(protocol.ToCoordinator).Message.(protocol.SignatureShare)

	// Cancel before the second device's share ever arrives.
	require.NoError(t, c.CancelSigning(sessionId))

	sends, err = c.HandleDeviceMessage(a.Id(), shareA)
	require.NoError(t, err)
	require.Empty(t, sends)

	session, ok := c.Session(sessionId)
	require.True(t, ok)
	require.Equal(t, protocol.SignSessionForgotten, session.State)
	require.Empty(t, session.FinalSignatures)

	// Nonce accounting still advanced from the late share's replenishment.
	stream, ok := c.NonceStream(a.Id())
	require.True(t, ok)
	require.Equal(t, uint32(1), stream.Remaining)
}
