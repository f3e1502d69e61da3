package coordinator

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/frostsnap/frostsnap/frost"
	"github.com/frostsnap/frostsnap/protocol"
)

// keygenCeremony tracks the one keygen the coordinator may have in
// flight at a time, mirroring the original prototype's single-slot
// CoordinatorState::KeyGen: a coordinator never runs two concurrent
// keygens, since every device involved is itself limited to one
// proposal in flight.
type keygenCeremony struct {
	deviceToShareIndex map[protocol.DeviceId]protocol.ShareIndex
	threshold          int
	purpose            protocol.KeyPurpose

	sharesProvided map[protocol.DeviceId]protocol.KeyGenResponse
	finishSent     bool
	acksReceived   map[protocol.DeviceId][32]byte
}

// DoKeyGen starts a keygen ceremony across exactly the devices named in
// deviceToShareIndex, each assigned the given ShareIndex. Every device
// must currently be known connected.
func (c *Coordinator) DoKeyGen(deviceToShareIndex map[protocol.DeviceId]protocol.ShareIndex, threshold int, purpose protocol.KeyPurpose) ([]protocol.CoordinatorSend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keygen != nil {
		return nil, protocol.ErrWrongState
	}
	if threshold <= 0 || threshold > len(deviceToShareIndex) {
		return nil, protocol.ErrThresholdNotMet
	}
	for d := range deviceToShareIndex {
		if !c.isConnected(d) {
			return nil, protocol.ErrUnknownDevice
		}
	}

	c.keygen = &keygenCeremony{
		deviceToShareIndex: deviceToShareIndex,
		threshold:          threshold,
		purpose:            purpose,
		sharesProvided:     make(map[protocol.DeviceId]protocol.KeyGenResponse),
		acksReceived:       make(map[protocol.DeviceId][32]byte),
	}

	dests := make([]protocol.DeviceId, 0, len(deviceToShareIndex))
	for d := range deviceToShareIndex {
		dests = append(dests, d)
	}

	return []protocol.CoordinatorSend{protocol.ToDevice{
		Destinations: dests,
		Message: protocol.DoKeyGen{
			DeviceToShareIndex: deviceToShareIndex,
			Threshold:          threshold,
			Purpose:            purpose,
		},
	}}, nil
}

func (c *Coordinator) handleKeyGenResponse(from protocol.DeviceId, resp protocol.KeyGenResponse) ([]protocol.CoordinatorSend, error) {
	if c.keygen == nil {
		return nil, protocol.ErrWrongState
	}
	if _, ok := c.keygen.deviceToShareIndex[from]; !ok {
		return nil, protocol.ErrUnknownDevice
	}
	c.keygen.sharesProvided[from] = resp

	if len(c.keygen.sharesProvided) < len(c.keygen.deviceToShareIndex) || c.keygen.finishSent {
		return nil, nil
	}
	c.keygen.finishSent = true

	dests := make([]protocol.DeviceId, 0, len(c.keygen.deviceToShareIndex))
	for d := range c.keygen.deviceToShareIndex {
		dests = append(dests, d)
	}
	return []protocol.CoordinatorSend{protocol.ToDevice{
		Destinations: dests,
		Message:      protocol.FinishKeyGen{SharesProvided: c.keygen.sharesProvided},
	}}, nil
}

func (c *Coordinator) handleKeyGenAck(from protocol.DeviceId, ack protocol.KeyGenAck) ([]protocol.CoordinatorSend, error) {
	if c.keygen == nil {
		return nil, protocol.ErrWrongState
	}
	if _, ok := c.keygen.deviceToShareIndex[from]; !ok {
		return nil, protocol.ErrUnknownDevice
	}
	c.keygen.acksReceived[from] = ack.SessionHash

	if len(c.keygen.acksReceived) < len(c.keygen.deviceToShareIndex) {
		return nil, nil
	}

	var want [32]byte
	first := true
	for _, h := range c.keygen.acksReceived {
		if first {
			want, first = h, false
			continue
		}
		if h != want {
			ceremony := c.keygen
			c.keygen = nil
			return nil, protocol.WrapError(protocol.ErrKindProtocolViolation,
				fmt.Errorf("coordinator: devices disagree on keygen session hash across %d participants", len(ceremony.deviceToShareIndex)))
		}
	}

	pointPolys := make([][]*btcec.PublicKey, 0, len(c.keygen.sharesProvided))
	for _, resp := range c.keygen.sharesProvided {
		poly := make([]*btcec.PublicKey, len(resp.PointPolynomial))
		for i, pb := range resp.PointPolynomial {
			p, err := btcec.ParsePubKey(pb[:])
			if err != nil {
				c.keygen = nil
				return nil, protocol.WrapError(protocol.ErrKindProtocolViolation, err)
			}
			poly[i] = p
		}
		pointPolys = append(pointPolys, poly)
	}

	sharedKey := frost.JointSharedKey(pointPolys)
	keyId := protocol.KeyId(sha256.Sum256(sharedKey.PublicKey().SerializeCompressed()))
	accessStructureId := masterAccessStructureId(keyId)

	mutation := protocol.KeygenMutation{
		KeyId:              keyId,
		AccessStructureId:  accessStructureId,
		Kind:               protocol.AccessStructureMaster,
		Purpose:            c.keygen.purpose,
		DeviceToShareIndex: c.keygen.deviceToShareIndex,
		SharedKey:          sharedKey,
	}
	c.keygen = nil
	if err := c.emit(mutation); err != nil {
		return nil, err
	}
	return nil, nil
}

// masterAccessStructureId mirrors package device's identically-named
// function exactly: both sides compute it independently from the
// KeyId alone, so the master access structure's id never needs to
// travel over the wire.
func masterAccessStructureId(keyId protocol.KeyId) protocol.AccessStructureId {
	var out protocol.AccessStructureId
	copy(out[:], keyId[:])
	return out
}
