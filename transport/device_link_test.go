package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frostsnap/frostsnap/protocol"
	"github.com/frostsnap/frostsnap/wire"
)

func TestDeviceLink_ReceivesMessageAddressedToSelf(t *testing.T) {
	t.Parallel()

	self := deviceIdFromByte(0x11)
	link := NewDeviceLink(self, DeviceGobCodec{})
	up := newPipePort("upstream")
	require.NoError(t, link.AttachUpstream(up))
	up.sent() // drain initial downstream cookie

	upCookie := wire.Cookie(wire.Upstream)
	up.deliver(upCookie[:])
	_, err := link.Poll()
	require.NoError(t, err)

	payload, err := GobCodec{}.EncodeSend(wire.CoreMessage{
		Destinations: []protocol.DeviceId{self},
		Message:      protocol.Cancel{},
	})
	require.NoError(t, err)
	up.deliver(wire.EncodeFrame(payload))

	result, err := link.Poll()
	require.NoError(t, err)
	require.Len(t, result.Inbound, 1)
	core, ok := result.Inbound[0].(wire.CoreMessage)
	require.True(t, ok)
	require.Equal(t, []protocol.DeviceId{self}, core.Destinations)
}

func TestDeviceLink_ForwardsMessageForDownstreamDevice(t *testing.T) {
	t.Parallel()

	self := deviceIdFromByte(0x11)
	downstreamDevice := deviceIdFromByte(0x22)

	link := NewDeviceLink(self, DeviceGobCodec{})
	up := newPipePort("upstream")
	down := newPipePort("downstream")
	require.NoError(t, link.AttachUpstream(up))
	require.NoError(t, link.AttachDownstream(down))
	up.sent()
	down.sent()

	upCookie := wire.Cookie(wire.Upstream)
	up.deliver(upCookie[:])
	downCookie := wire.Cookie(wire.Downstream)
	down.deliver(downCookie[:])
	_, err := link.Poll()
	require.NoError(t, err)

	payload, err := GobCodec{}.EncodeSend(wire.CoreMessage{
		Destinations: []protocol.DeviceId{downstreamDevice},
		Message:      protocol.Cancel{},
	})
	require.NoError(t, err)
	up.deliver(wire.EncodeFrame(payload))

	result, err := link.Poll()
	require.NoError(t, err)
	require.Empty(t, result.Inbound)

	forwarded := down.sent()
	require.NotEmpty(t, forwarded)
	fPayload, _, err := wire.DecodeFrame(forwarded)
	require.NoError(t, err)
	fBody, err := GobCodec{}.DecodeReceive(fPayload)
	require.NoError(t, err)
	fCore, ok := fBody.(wire.CoreMessage)
	require.True(t, ok)
	require.Equal(t, []protocol.DeviceId{downstreamDevice}, fCore.Destinations)
}

func TestDeviceLink_Send(t *testing.T) {
	t.Parallel()

	self := deviceIdFromByte(0x33)
	link := NewDeviceLink(self, DeviceGobCodec{})
	up := newPipePort("upstream")
	require.NoError(t, link.AttachUpstream(up))
	up.sent()

	require.NoError(t, link.Send(wire.NeedName{DeviceId: self}))

	frame := up.sent()
	payload, _, err := wire.DecodeFrame(frame)
	require.NoError(t, err)
	body, err := (GobCodec{}).DecodeReceive(payload)
	require.NoError(t, err)
	need, ok := body.(wire.NeedName)
	require.True(t, ok)
	require.Equal(t, self, need.DeviceId)
}
