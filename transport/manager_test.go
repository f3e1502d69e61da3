package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frostsnap/frostsnap/protocol"
	"github.com/frostsnap/frostsnap/wire"
)

func deviceIdFromByte(b byte) protocol.DeviceId {
	var id protocol.DeviceId
	id[0] = 0x02
	id[1] = b
	return id
}

func TestManager_HandshakeThenRegister(t *testing.T) {
	t.Parallel()

	m := NewManager(GobCodec{})
	port := newPipePort("COM-1")
	require.NoError(t, m.AddPort(port))

	// The port should have immediately received the coordinator's
	// upstream cookie.
	sentDuringOpen := port.sent()
	require.True(t, wire.IsCookie(sentDuringOpen, wire.Upstream))

	// Simulate the device replying with its downstream cookie.
	downCookie := wire.Cookie(wire.Downstream)
	port.deliver(downCookie[:])

	result, err := m.Poll()
	require.NoError(t, err)
	require.Empty(t, result.NewlyRegistered)
	require.Equal(t, Established, m.ports["COM-1"].conn)

	// The device announces itself, unnamed.
	devID := deviceIdFromByte(0xAA)
	announcePayload, err := (DeviceGobCodec{}).EncodeSend(wire.Announce{DeviceId: devID})
	require.NoError(t, err)
	port.deliver(wire.EncodeFrame(announcePayload))

	_, err = m.Poll()
	require.NoError(t, err)

	// Not registered yet: no label.
	result, err = m.Poll()
	require.NoError(t, err)
	require.Empty(t, result.NewlyRegistered)

	m.SetLabel(devID, "alice's key")
	result, err = m.Poll()
	require.NoError(t, err)
	require.Equal(t, []protocol.DeviceId{devID}, result.NewlyRegistered)

	ackFrame := port.sent()
	payload, consumed, err := wire.DecodeFrame(ackFrame)
	require.NoError(t, err)
	require.Equal(t, len(ackFrame), consumed)

	body, err := (DeviceGobCodec{}).DecodeReceive(payload)
	require.NoError(t, err)
	ack, ok := body.(wire.AnnounceAck)
	require.True(t, ok)
	require.Equal(t, devID, ack.Destination)
}

func TestManager_RoutesCoreMessageToKnownDevice(t *testing.T) {
	t.Parallel()

	m := NewManager(GobCodec{})
	port := newPipePort("COM-1")
	require.NoError(t, m.AddPort(port))
	port.sent() // drain initial cookie write

	downCookie := wire.Cookie(wire.Downstream)
	port.deliver(downCookie[:])
	_, err := m.Poll()
	require.NoError(t, err)

	devID := deviceIdFromByte(0x01)
	name := "bob"
	announcePayload, err := (DeviceGobCodec{}).EncodeSend(wire.Announce{DeviceId: devID, Name: &name})
	require.NoError(t, err)
	port.deliver(wire.EncodeFrame(announcePayload))
	_, err = m.Poll()
	require.NoError(t, err)
	port.sent() // drain AnnounceAck

	m.Queue([]protocol.DeviceId{devID}, wire.CoreMessage{
		Destinations: []protocol.DeviceId{devID},
		Message:      protocol.Cancel{},
	})
	_, err = m.Poll()
	require.NoError(t, err)

	frame := port.sent()
	payload, _, err := wire.DecodeFrame(frame)
	require.NoError(t, err)
	body, err := (DeviceGobCodec{}).DecodeReceive(payload)
	require.NoError(t, err)
	core, ok := body.(wire.CoreMessage)
	require.True(t, ok)
	require.Equal(t, []protocol.DeviceId{devID}, core.Destinations)
	_, isCancel := core.Message.(protocol.Cancel)
	require.True(t, isCancel)
}

func TestManager_QueuedSendToUnknownDeviceStaysQueued(t *testing.T) {
	t.Parallel()

	m := NewManager(GobCodec{})
	devID := deviceIdFromByte(0x09)
	m.Queue([]protocol.DeviceId{devID}, wire.CoreMessage{
		Destinations: []protocol.DeviceId{devID},
		Message:      protocol.Cancel{},
	})
	_, err := m.Poll()
	require.NoError(t, err)
	require.Len(t, m.outbox, 1)
}
