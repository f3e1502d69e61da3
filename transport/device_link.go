package transport

import (
	"github.com/frostsnap/frostsnap/protocol"
	"github.com/frostsnap/frostsnap/wire"
)

// DeviceCodec is the device-side mirror of Codec: it encodes a device's
// outbound body and decodes whatever the coordinator (or an upstream
// device, in a daisy chain) sent down.
type DeviceCodec interface {
	EncodeSend(body wire.DeviceSendBody) ([]byte, error)
	DecodeReceive(payload []byte) (wire.CoordinatorSendBody, error)
}

// DeviceLink is the device-side counterpart to Manager: one upstream
// port (toward the coordinator, or toward the next device up the
// chain) and at most one downstream port (toward a device chained off
// this one). Messages not addressed to this device's own DeviceId are
// forwarded rather than consumed, which is what makes the chain a
// chain rather than a star.
type DeviceLink struct {
	self  protocol.DeviceId
	codec DeviceCodec

	upstream   *portState
	downstream *portState
}

// NewDeviceLink constructs a link for a device identified by self.
func NewDeviceLink(self protocol.DeviceId, codec DeviceCodec) *DeviceLink {
	return &DeviceLink{self: self, codec: codec}
}

// AttachUpstream wires the port leading back toward the coordinator.
// The device hunts for the Upstream cookie and writes its own
// Downstream cookie once, when the port is attached.
func (l *DeviceLink) AttachUpstream(p Port) error {
	l.upstream = newPortState(p, wire.Upstream)
	cookie := wire.Cookie(wire.Downstream)
	_, err := p.Write(cookie[:])
	return err
}

// AttachDownstream wires a port leading to a chained device.
func (l *DeviceLink) AttachDownstream(p Port) error {
	l.downstream = newPortState(p, wire.Downstream)
	cookie := wire.Cookie(wire.Upstream)
	_, err := p.Write(cookie[:])
	return err
}

// DetachDownstream drops the downstream port, e.g. in response to a
// DisconnectDownstream instruction.
func (l *DeviceLink) DetachDownstream() {
	l.downstream = nil
}

// DeviceLinkResult is what a round of DeviceLink.Poll surfaces to the
// device's own FROST state engine: bodies addressed to this device, to
// be applied locally.
type DeviceLinkResult struct {
	Inbound []wire.CoordinatorSendBody
}

// Poll reads and routes one round of traffic in both directions: bodies
// arriving upstream that name this device (or carry no destination,
// like link-management messages) are surfaced in the result; bodies
// naming only downstream devices are forwarded as-is without this
// device inspecting their contents.
func (l *DeviceLink) Poll() (DeviceLinkResult, error) {
	var result DeviceLinkResult
	if l.upstream == nil {
		return result, nil
	}

	if err := l.pollDownstream(); err != nil {
		return result, err
	}

	buf := make([]byte, 4096)
	n, err := l.upstream.port.Read(buf)
	if n > 0 {
		l.upstream.receiver.Feed(buf[:n])
	}
	if err != nil {
		return result, err
	}

	frames, pollErr := l.upstream.receiver.Poll()
	if pollErr != nil {
		l.upstream.receiver.Reset()
	}

	for _, frame := range frames {
		body, decErr := l.codec.DecodeReceive(frame)
		if decErr != nil {
			continue
		}
		l.routeFromUpstream(body, &result)
	}
	return result, nil
}

func (l *DeviceLink) pollDownstream() error {
	if l.downstream == nil {
		return nil
	}
	buf := make([]byte, 4096)
	n, err := l.downstream.port.Read(buf)
	if n > 0 {
		l.downstream.receiver.Feed(buf[:n])
	}
	if err != nil {
		return nil // a disconnected downstream device is not fatal to this device
	}
	frames, _ := l.downstream.receiver.Poll()
	for _, frame := range frames {
		// Bytes arriving from downstream are already wire-encoded
		// DeviceSendBody frames; relay them upstream untouched.
		if l.upstream != nil {
			l.upstream.port.Write(wire.EncodeFrame(frame))
		}
	}
	return nil
}

func (l *DeviceLink) routeFromUpstream(body wire.CoordinatorSendBody, result *DeviceLinkResult) {
	core, isCore := body.(wire.CoreMessage)
	if !isCore {
		result.Inbound = append(result.Inbound, body)
		return
	}

	var forMe []protocol.DeviceId
	var forDownstream []protocol.DeviceId
	for _, dest := range core.Destinations {
		if dest == l.self {
			forMe = append(forMe, dest)
		} else {
			forDownstream = append(forDownstream, dest)
		}
	}

	if len(forMe) > 0 {
		result.Inbound = append(result.Inbound, wire.CoreMessage{
			Destinations: forMe,
			Message:      core.Message,
		})
	}
	if len(forDownstream) > 0 && l.downstream != nil {
		payload, err := encodeDownstream(forDownstream, core.Message)
		if err == nil {
			l.downstream.port.Write(wire.EncodeFrame(payload))
		}
	}
}

// Send queues body for the coordinator, to be written immediately since
// DeviceLink has no outbox: devices speak only when they have exactly
// one thing to say at a time, unlike the coordinator which fans out to
// many destinations at once.
func (l *DeviceLink) Send(body wire.DeviceSendBody) error {
	if l.upstream == nil {
		return nil
	}
	payload, err := l.codec.EncodeSend(body)
	if err != nil {
		return err
	}
	_, err = l.upstream.port.Write(wire.EncodeFrame(payload))
	return err
}

// encodeDownstream re-encodes a CoordinatorSendBody to relay further
// down the chain: from the next device's perspective this device is
// simply its upstream, so it uses the same GobCodec the coordinator
// itself uses rather than DeviceCodec (which only knows how to encode
// bodies this device originates).
func encodeDownstream(dests []protocol.DeviceId, msg protocol.CoordinatorToDeviceMessage) ([]byte, error) {
	return GobCodec{}.EncodeSend(wire.CoreMessage{Destinations: dests, Message: msg})
}
