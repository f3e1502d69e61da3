package transport

import (
	"fmt"

	"github.com/btcsuite/btclog"

	"github.com/frostsnap/frostsnap/protocol"
	"github.com/frostsnap/frostsnap/wire"
)

// Codec turns an envelope body into a frame payload and back. The
// coordinator and the device side each get their own concrete codec
// (one encodes CoordinatorSendBody and decodes DeviceSendBody, the
// other the reverse); Manager is generic over which one it's given so
// the same port bookkeeping serves both ends of the chain.
type Codec interface {
	EncodeSend(body wire.CoordinatorSendBody) ([]byte, error)
	DecodeReceive(payload []byte) (wire.DeviceSendBody, error)
}

// DeviceLabel is the human-assigned name for a device, tracked
// separately from Announce because a device can be attached and
// Announced before the user has ever named it.
type DeviceLabel = string

// Manager is the coordinator-side port router: it owns every open port,
// drives each one's magic-byte handshake and frame decoding, tracks
// which DeviceId lives behind which port, and fans outbound messages
// out to the right ports by destination.
//
// Manager does not open or enumerate ports itself (that is
// platform-specific, left to the caller via AddPort/RemovePort); it is
// the policy layer above raw I/O, mirroring how the original
// coordinator's serial manager is handed an abstract Serial
// implementation rather than talking to libusb directly.
type Manager struct {
	codec Codec

	ports map[string]*portState

	devicePorts    map[protocol.DeviceId]string
	reverseDevices map[string]map[protocol.DeviceId]struct{}
	registered     map[protocol.DeviceId]struct{}
	labels         map[protocol.DeviceId]DeviceLabel
	outbox         []pendingSend
}

type pendingSend struct {
	destinations []protocol.DeviceId
	body         wire.CoordinatorSendBody
}

// NewManager constructs an empty Manager using codec to serialize
// outbound bodies and parse inbound frame payloads.
func NewManager(codec Codec) *Manager {
	return &Manager{
		codec:          codec,
		ports:          make(map[string]*portState),
		devicePorts:    make(map[protocol.DeviceId]string),
		reverseDevices: make(map[string]map[protocol.DeviceId]struct{}),
		registered:     make(map[protocol.DeviceId]struct{}),
		labels:         make(map[protocol.DeviceId]DeviceLabel),
	}
}

// AddPort registers a newly opened port and begins its handshake: the
// port immediately writes its cookie (Upstream, since the coordinator
// is always upstream of every device) and starts hunting for the
// device's Downstream cookie.
func (m *Manager) AddPort(p Port) error {
	if _, exists := m.ports[p.ID()]; exists {
		return fmt.Errorf("transport: port %q already registered", p.ID())
	}
	state := newPortState(p, wire.Downstream)
	m.ports[p.ID()] = state

	cookie := wire.Cookie(wire.Upstream)
	if _, err := p.Write(cookie[:]); err != nil {
		delete(m.ports, p.ID())
		return fmt.Errorf("transport: writing cookie to %q: %w", p.ID(), err)
	}
	log.Debugf("opened port %s, sent upstream cookie", p.ID())
	return nil
}

// RemovePort tears down a port's bookkeeping, including forgetting any
// devices that were only reachable through it.
func (m *Manager) RemovePort(id string) {
	state, ok := m.ports[id]
	if !ok {
		return
	}
	for deviceID := range state.devices {
		delete(m.devicePorts, deviceID)
		delete(m.registered, deviceID)
	}
	delete(m.reverseDevices, id)
	delete(m.ports, id)
	log.Infof("removed port %s", id)
}

// SetLabel records a user-assigned name for a device, which is a
// prerequisite for registration: an Announced device stays unregistered
// (and keeps re-sending NeedName) until the coordinator supplies one.
func (m *Manager) SetLabel(id protocol.DeviceId, label string) {
	m.labels[id] = label
}

// Queue enqueues body for delivery to destinations the next time Poll
// routes outbound traffic. Destinations not yet known (no Announce
// seen) stay queued until they are.
func (m *Manager) Queue(destinations []protocol.DeviceId, body wire.CoordinatorSendBody) {
	m.outbox = append(m.outbox, pendingSend{destinations: destinations, body: body})
}

// PollResult summarizes one round of Manager.Poll: devices that
// completed registration this round, and the core protocol messages
// that arrived from already-registered devices.
type PollResult struct {
	NewlyRegistered []protocol.DeviceId
	CoreMessages    []CoreMessageFrom
}

// CoreMessageFrom pairs a decoded protocol.DeviceToCoordinatorMessage
// with the device that sent it, since most message variants (unlike
// KeyGenResponse) don't name their own sender.
type CoreMessageFrom struct {
	From    protocol.DeviceId
	Message protocol.DeviceToCoordinatorMessage
}

// Poll drives every port's handshake and frame decoding one step,
// registers any devices that have Announced but aren't yet
// acknowledged, and flushes as much of the outbox as current routing
// knowledge allows. It must be called repeatedly (e.g. from an event
// loop or ticker) since it performs no blocking I/O of its own beyond
// whatever the underlying Port.Read does.
func (m *Manager) Poll() (PollResult, error) {
	var result PollResult

	for id, state := range m.ports {
		if err := m.pollPort(id, state, &result); err != nil {
			log.Errorf("port %s: %v", id, err)
			m.RemovePort(id)
		}
	}

	for deviceID, portID := range m.devicePorts {
		if _, already := m.registered[deviceID]; already {
			continue
		}
		label, named := m.labels[deviceID]
		if !named {
			continue
		}
		m.registered[deviceID] = struct{}{}
		result.NewlyRegistered = append(result.NewlyRegistered, deviceID)
		m.Queue([]protocol.DeviceId{deviceID}, wire.AnnounceAck{Destination: deviceID})
		log.Infof("registered device %x on port %s as %q", deviceID, portID, label)
	}

	m.flushOutbox()
	return result, nil
}

func (m *Manager) pollPort(id string, state *portState, result *PollResult) error {
	buf := make([]byte, 4096)
	n, err := state.port.Read(buf)
	if n > 0 {
		state.receiver.Feed(buf[:n])
	}
	if err != nil {
		return err
	}

	frames, pollErr := state.receiver.Poll()
	if pollErr != nil {
		log.Warnf("port %s: frame error, resynchronizing: %v", id, pollErr)
		state.receiver.Reset()
	}
	if state.receiver.State() == wire.Ready && state.conn != Established {
		state.conn = Established
		log.Debugf("port %s established", id)
	}

	for _, frame := range frames {
		body, decErr := m.codec.DecodeReceive(frame)
		if decErr != nil {
			log.Warnf("port %s: malformed frame: %v", id, decErr)
			continue
		}
		m.handleBody(id, state, body, result)
	}
	return nil
}

func (m *Manager) handleBody(portID string, state *portState, body wire.DeviceSendBody, result *PollResult) {
	switch v := body.(type) {
	case wire.Announce:
		state.devices[v.DeviceId] = struct{}{}
		m.devicePorts[v.DeviceId] = portID
		if m.reverseDevices[portID] == nil {
			m.reverseDevices[portID] = make(map[protocol.DeviceId]struct{})
		}
		m.reverseDevices[portID][v.DeviceId] = struct{}{}
		if v.Name != nil {
			m.labels[v.DeviceId] = *v.Name
		}
		log.Debugf("port %s: device %x announced", portID, v.DeviceId)

	case wire.NeedName:
		log.Debugf("port %s: device %x needs a name", portID, v.DeviceId)

	case wire.DebugEcho:
		log.Debugf("port %s: device %x debug: %s", portID, v.From, v.Message)

	case wire.CoreResponse:
		result.CoreMessages = append(result.CoreMessages, CoreMessageFrom{From: v.From, Message: v.Message})
	}
}

// flushOutbox groups every queued send by the set of ports it needs to
// go out on, encodes it once per port, and drops destinations that
// were successfully routed. A send with no remaining destinations (all
// resolved to a known port) is dropped from the outbox; sends naming an
// unknown device stay queued for a future round.
func (m *Manager) flushOutbox() {
	remaining := m.outbox[:0]

	for _, send := range m.outbox {
		portsUsed := make(map[string][]protocol.DeviceId)
		var unresolved []protocol.DeviceId

		for _, dest := range send.destinations {
			portID, ok := m.devicePorts[dest]
			if !ok {
				unresolved = append(unresolved, dest)
				continue
			}
			portsUsed[portID] = append(portsUsed[portID], dest)
		}

		for portID, dests := range portsUsed {
			state, ok := m.ports[portID]
			if !ok || state.conn != Established {
				continue
			}
			payload, err := m.codec.EncodeSend(rewriteDestinations(send.body, dests))
			if err != nil {
				log.Errorf("encoding send for port %s: %v", portID, err)
				continue
			}
			if _, err := state.port.Write(wire.EncodeFrame(payload)); err != nil {
				log.Errorf("writing to port %s: %v", portID, err)
				m.RemovePort(portID)
			}
		}

		if len(unresolved) > 0 {
			remaining = append(remaining, pendingSend{destinations: unresolved, body: send.body})
		}
	}

	m.outbox = remaining
}

// rewriteDestinations narrows a CoordinatorSendBody to the subset of
// destinations actually routed on one port, leaving non-CoreMessage
// variants (which have at most one implicit destination) untouched.
func rewriteDestinations(body wire.CoordinatorSendBody, dests []protocol.DeviceId) wire.CoordinatorSendBody {
	if core, ok := body.(wire.CoreMessage); ok {
		core.Destinations = dests
		return core
	}
	return body
}

var log = btclog.Disabled

// UseLogger sets the subsystem logger for package transport.
func UseLogger(logger btclog.Logger) {
	log = logger
}
