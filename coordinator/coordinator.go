// Package coordinator implements the coordinator-side FROST state
// engine: the key catalog, nonce accounting, sign-session lifecycle,
// and restoration aggregation that run above package transport's port
// router and drive package device's peers via
// protocol.CoordinatorToDeviceMessage.
//
// Coordinator performs no I/O of its own. Callers feed it
// protocol.DeviceToCoordinatorMessage values (attributed to a sender)
// and flush the protocol.CoordinatorSend effects it returns, in order,
// mirroring package device's Signer.Handle contract on the other side
// of the wire. Package-level Flush and Poll adapt that contract onto a
// transport.Manager for callers that don't want to do the wiring
// themselves.
package coordinator

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/google/uuid"

	"github.com/frostsnap/frostsnap/protocol"
)

// MutationSink persists Mutations in the order Coordinator produces
// them. Package mutationdb is the production implementation; tests use
// an in-memory stub.
type MutationSink interface {
	Append(protocol.Mutation) error
}

// AccessStructure is one concrete t-of-n structure realized over a key:
// which device holds which share index, and the public polynomial
// commitments every participant agreed on at keygen or restoration
// time.
type AccessStructure struct {
	Ref                protocol.AccessStructureRef
	Kind               protocol.AccessStructureKind
	DeviceToShareIndex map[protocol.DeviceId]protocol.ShareIndex
	SharedKey          protocol.SharedKey
}

// Threshold is the number of shares required to sign under this access
// structure.
func (as *AccessStructure) Threshold() int { return as.SharedKey.Threshold() }

// KeyEntry is the coordinator's catalog record for one FROST key: every
// access structure realized under it, keyed by AccessStructureId.
type KeyEntry struct {
	KeyId            protocol.KeyId
	Purpose          protocol.KeyPurpose
	AccessStructures map[protocol.AccessStructureId]*AccessStructure
}

// Coordinator is the coordinator's single-threaded FROST state engine.
// It owns the key catalog, nonce accounting, sign-session and
// restoration bookkeeping, and turns inbound device messages into a
// queue of protocol.CoordinatorSend effects.
type Coordinator struct {
	mu sync.Mutex

	sink MutationSink

	connected map[protocol.DeviceId]struct{}
	keys      map[protocol.KeyId]*KeyEntry

	keygen *keygenCeremony

	sessions   map[protocol.SessionId]*protocol.SignSession
	ceremonies map[protocol.SessionId]*signCeremony
	// deviceSigningSession attributes an inbound SignatureShare to the
	// one session a device can have in flight, since the message itself
	// carries no session id (a device signs for at most one session at
	// a time, mirroring package device's single-proposal-in-flight
	// invariant).
	deviceSigningSession map[protocol.DeviceId]protocol.SessionId

	nonceCache map[protocol.DeviceId]*deviceNonceCache

	restorations map[protocol.SessionId]*protocol.Restoration
}

// New constructs an empty Coordinator persisting every mutation to sink.
func New(sink MutationSink) *Coordinator {
	return &Coordinator{
		sink:                  sink,
		connected:             make(map[protocol.DeviceId]struct{}),
		keys:                  make(map[protocol.KeyId]*KeyEntry),
		sessions:              make(map[protocol.SessionId]*protocol.SignSession),
		ceremonies:            make(map[protocol.SessionId]*signCeremony),
		deviceSigningSession:  make(map[protocol.DeviceId]protocol.SessionId),
		nonceCache:            make(map[protocol.DeviceId]*deviceNonceCache),
		restorations:          make(map[protocol.SessionId]*protocol.Restoration),
	}
}

// NoteConnected records that a device is currently reachable. A device
// not marked connected is never asked to sign or advertise nonces,
// though it may still be a named participant of a key's access
// structure.
func (c *Coordinator) NoteConnected(id protocol.DeviceId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[id] = struct{}{}
}

// NoteDisconnected forgets that a device is currently reachable.
func (c *Coordinator) NoteDisconnected(id protocol.DeviceId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.connected, id)
}

func (c *Coordinator) isConnected(id protocol.DeviceId) bool {
	_, ok := c.connected[id]
	return ok
}

// Key looks up a key catalog entry.
func (c *Coordinator) Key(id protocol.KeyId) (*KeyEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.keys[id]
	return k, ok
}

func (c *Coordinator) lookupAccessStructure(ref protocol.AccessStructureRef) (*AccessStructure, error) {
	entry, ok := c.keys[ref.KeyId]
	if !ok {
		return nil, protocol.ErrUnknownKey
	}
	as, ok := entry.AccessStructures[ref.AccessStructureId]
	if !ok {
		return nil, protocol.ErrUnknownAccessStructure
	}
	return as, nil
}

// Session looks up a sign session by id, for diagnostics and tests.
func (c *Coordinator) Session(id protocol.SessionId) (protocol.SignSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return protocol.SignSession{}, false
	}
	return *s, true
}

// HandleDeviceMessage processes one message from a device, returning
// the ordered CoordinatorSend effects to flush.
func (c *Coordinator) HandleDeviceMessage(from protocol.DeviceId, msg protocol.DeviceToCoordinatorMessage) ([]protocol.CoordinatorSend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case protocol.KeyGenResponse:
		return c.handleKeyGenResponse(from, m)
	case protocol.KeyGenAck:
		return c.handleKeyGenAck(from, m)
	case protocol.NonceResponse:
		return c.handleNonceResponse(from, m)
	case protocol.SignatureShare:
		return c.handleSignatureShare(from, m)
	case protocol.PhysicalBackupEntered:
		return c.handlePhysicalBackupEntered(from, m)
	case protocol.ProtocolError:
		log.Warnf("device %s reported a protocol error: %s", from, m.Message)
		return nil, nil
	default:
		return nil, protocol.WrapError(protocol.ErrKindProtocolViolation, fmt.Errorf("coordinator: unrecognized message %T from %s", msg, from))
	}
}

// emit applies a mutation to the in-memory snapshot and hands it to the
// persistence sink. By the time a caller observes the CoordinatorSend
// that resulted from this mutation, the mutation is already durable,
// mirroring the device side's storage-before-effect ordering even
// though here the mutation is constructed from already-applied memory
// rather than the other way around.
func (c *Coordinator) emit(m protocol.Mutation) error {
	c.applyMutation(m)
	return c.sink.Append(m)
}

// Replay re-applies a mutation log read back from storage at startup,
// without re-persisting it.
func (c *Coordinator) Replay(mutations []protocol.Mutation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range mutations {
		c.applyMutation(m)
	}
}

func (c *Coordinator) applyMutation(m protocol.Mutation) {
	switch mu := m.(type) {
	case protocol.KeygenMutation:
		c.applyKeygenMutation(mu)
	case protocol.SigningMutation:
		c.applySigningMutation(mu)
	case protocol.RestorationMutation:
		c.applyRestorationMutation(mu)
	}
}

func (c *Coordinator) applyKeygenMutation(mu protocol.KeygenMutation) {
	entry, ok := c.keys[mu.KeyId]
	if !ok {
		entry = &KeyEntry{
			KeyId:            mu.KeyId,
			Purpose:          mu.Purpose,
			AccessStructures: make(map[protocol.AccessStructureId]*AccessStructure),
		}
		c.keys[mu.KeyId] = entry
	}
	entry.AccessStructures[mu.AccessStructureId] = &AccessStructure{
		Ref:                protocol.AccessStructureRef{KeyId: mu.KeyId, AccessStructureId: mu.AccessStructureId},
		Kind:               mu.Kind,
		DeviceToShareIndex: mu.DeviceToShareIndex,
		SharedKey:          mu.SharedKey,
	}
}

// newSessionId picks 32 bytes of opaque random session identity from
// two concatenated UUIDs, the same generator package transport and the
// rest of this module use for every other opaque id.
func newSessionId() protocol.SessionId {
	var id protocol.SessionId
	a, b := uuid.New(), uuid.New()
	copy(id[:16], a[:])
	copy(id[16:], b[:])
	return id
}

var log = btclog.Disabled

// UseLogger sets the subsystem logger for package coordinator.
func UseLogger(logger btclog.Logger) {
	log = logger
}
