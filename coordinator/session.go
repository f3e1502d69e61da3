package coordinator

import (
	"sort"

	"github.com/frostsnap/frostsnap/frost"
	"github.com/frostsnap/frostsnap/protocol"
)

// signCeremony holds coordinator-side signing bookkeeping beyond what
// protocol.SignSession itself records: the nonces collected so far per
// participant, and which devices are still owed a RequestNonces
// round trip before RequestSign can go out.
//
// This coordinator asks for signatures from exactly the devices the
// caller names (at least the access structure's threshold) and requires
// every one of them to respond: package device computes each Lagrange
// coefficient relative to the full participant set named in its
// RequestSign, so a subsequently-smaller responding subset could not be
// aggregated correctly without each survivor recomputing its share.
// Fault-tolerant signing (accepting any threshold-sized subset of the
// responses) is not implemented.
type signCeremony struct {
	itemCount   int
	nonces      map[protocol.ShareIndex]protocol.SignRequestNonces
	awaiting    map[protocol.DeviceId]protocol.ShareIndex
	requestSent bool
}

// StartSigning proposes a signing session over ref's access structure
// for task, asking exactly the devices in deviceIds to participate.
// Devices with an exactly-sized cached nonce batch use it without a
// round trip; others are first sent RequestNonces. A single RequestSign
// goes out to every participant once all of their nonces are in.
func (c *Coordinator) StartSigning(ref protocol.AccessStructureRef, task protocol.SignTask, deviceIds []protocol.DeviceId) (protocol.SessionId, []protocol.CoordinatorSend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	as, err := c.lookupAccessStructure(ref)
	if err != nil {
		return protocol.SessionId{}, nil, err
	}
	if len(deviceIds) < as.Threshold() {
		return protocol.SessionId{}, nil, protocol.ErrThresholdNotMet
	}

	// Every requested device must be connected up front: package
	// device computes each Lagrange coefficient relative to the full
	// set named in RequestSign, so there is no way to shrink the
	// participant set after proposing without invalidating every other
	// participant's share. A device that drops mid-session still just
	// fails to respond and the session stays in Collecting;
	// ConnectedButNeedRequest is created empty and nothing adds to it.
	participants := make(map[protocol.ShareIndex]protocol.DeviceId, len(deviceIds))
	for _, d := range deviceIds {
		idx, ok := as.DeviceToShareIndex[d]
		if !ok {
			return protocol.SessionId{}, nil, protocol.ErrUnknownDevice
		}
		if !c.isConnected(d) {
			return protocol.SessionId{}, nil, protocol.ErrWrongState
		}
		participants[idx] = d
	}

	id := newSessionId()
	items := task.SignItems()
	ceremony := &signCeremony{
		itemCount: len(items),
		nonces:    make(map[protocol.ShareIndex]protocol.SignRequestNonces),
		awaiting:  make(map[protocol.DeviceId]protocol.ShareIndex),
	}
	session := &protocol.SignSession{
		Id:                       id,
		AccessStructureRef:       ref,
		SignTask:                 task,
		State:                    protocol.SignSessionProposed,
		Participants:             participants,
		NonceCommitmentsReceived: make(map[protocol.DeviceId]bool),
		SharesReceived:           make(map[protocol.DeviceId][][32]byte),
		ConnectedButNeedRequest:  make(map[protocol.DeviceId]bool),
	}

	var sends []protocol.CoordinatorSend
	for idx, d := range participants {
		taken, req := c.requestOrTakeNonces(d, uint32(len(items)))
		if req != nil {
			ceremony.awaiting[d] = idx
			sends = append(sends, protocol.ToDevice{
				Destinations: []protocol.DeviceId{d},
				Message:      *req,
			})
			continue
		}
		ceremony.nonces[idx] = taken
		session.NonceCommitmentsReceived[d] = true
	}

	c.sessions[id] = session
	c.ceremonies[id] = ceremony

	if len(ceremony.awaiting) == 0 {
		sends = append(sends, c.sendRequestSign(session, ceremony))
	}

	return id, sends, nil
}

func (c *Coordinator) sendRequestSign(session *protocol.SignSession, ceremony *signCeremony) protocol.CoordinatorSend {
	dests := make([]protocol.DeviceId, 0, len(ceremony.nonces))
	for idx := range ceremony.nonces {
		d := session.Participants[idx]
		dests = append(dests, d)
		c.deviceSigningSession[d] = session.Id
	}
	ceremony.requestSent = true
	session.State = protocol.SignSessionCollecting

	return protocol.ToDevice{
		Destinations: dests,
		Message: protocol.RequestSign{
			KeyId:              session.AccessStructureRef.KeyId,
			AccessStructureRef: session.AccessStructureRef,
			SignTask:           session.SignTask,
			Nonces:             ceremony.nonces,
		},
	}
}

func (c *Coordinator) handleNonceResponse(from protocol.DeviceId, resp protocol.NonceResponse) ([]protocol.CoordinatorSend, error) {
	c.applyNonceResponse(from, resp)

	var sends []protocol.CoordinatorSend
	for id, ceremony := range c.ceremonies {
		idx, waiting := ceremony.awaiting[from]
		if !waiting || ceremony.requestSent {
			continue
		}
		if uint32(len(resp.Nonces)) != uint32(ceremony.itemCount) {
			continue // wrong count; device stays pending until it answers correctly
		}
		session := c.sessions[id]
		ceremony.nonces[idx] = protocol.SignRequestNonces{StreamId: resp.StreamId, Start: resp.StartIndex, Nonces: resp.Nonces}
		session.NonceCommitmentsReceived[from] = true
		delete(ceremony.awaiting, from)

		if len(ceremony.awaiting) == 0 {
			sends = append(sends, c.sendRequestSign(session, ceremony))
		}
	}
	return sends, nil
}

// handleSignatureShare folds a device's replenishment nonces into the
// cache unconditionally, even if no session is awaiting this device's
// share or that session has since been forgotten: nonce accounting is
// never rolled back on cancellation, matching what the device has
// actually derived and committed to internally regardless of whether
// the coordinator still wants its signature. See applyLateShare for the
// share itself.
func (c *Coordinator) handleSignatureShare(from protocol.DeviceId, share protocol.SignatureShare) ([]protocol.CoordinatorSend, error) {
	c.applyNonceResponse(from, share.NewNonces)

	sessionId, ok := c.deviceSigningSession[from]
	if !ok {
		return nil, nil
	}
	delete(c.deviceSigningSession, from)

	session, ok := c.sessions[sessionId]
	if !ok {
		return nil, nil
	}
	ceremony := c.ceremonies[sessionId]

	return c.applyLateShare(session, ceremony, from, share)
}

// applyLateShare adds a device's signature shares to the session's
// aggregation set, unless the session has already been cancelled
// (Forgotten): a share arriving after cancellation was still accounted
// for above, but is never added here, so it can never contribute to a
// signature the user already told the coordinator to abandon.
func (c *Coordinator) applyLateShare(session *protocol.SignSession, ceremony *signCeremony, from protocol.DeviceId, share protocol.SignatureShare) ([]protocol.CoordinatorSend, error) {
	if session.State == protocol.SignSessionForgotten {
		return nil, nil
	}

	session.SharesReceived[from] = share.Shares
	if len(session.SharesReceived) < len(ceremony.nonces) {
		return nil, nil
	}

	return c.finishSigning(session, ceremony)
}

func (c *Coordinator) finishSigning(session *protocol.SignSession, ceremony *signCeremony) ([]protocol.CoordinatorSend, error) {
	allIndices := make([]protocol.ShareIndex, 0, len(ceremony.nonces))
	for idx := range ceremony.nonces {
		allIndices = append(allIndices, idx)
	}
	sort.Slice(allIndices, func(i, j int) bool {
		return string(allIndices[i][:]) < string(allIndices[j][:])
	})

	items := session.SignTask.SignItems()
	signatures := make([][64]byte, len(items))
	for i, item := range items {
		allNonces := make([]protocol.NoncePair, len(allIndices))
		shares := make([][32]byte, len(allIndices))
		for j, idx := range allIndices {
			allNonces[j] = ceremony.nonces[idx].Nonces[i]
			d := session.Participants[idx]
			shares[j] = session.SharesReceived[d][i]
		}
		signatures[i] = frost.AggregateSignature(item.Message, allNonces, shares)
	}

	session.State = protocol.SignSessionFinished
	session.FinalSignatures = signatures
	delete(c.ceremonies, session.Id)

	if err := c.emit(protocol.SigningMutation{SessionId: session.Id, NewState: protocol.SignSessionFinished, Signatures: signatures}); err != nil {
		return nil, err
	}

	return []protocol.CoordinatorSend{protocol.ToCoordinatorUser{Message: protocol.SignSessionFinishedEvent{
		SessionId:  session.Id,
		Signatures: signatures,
	}}}, nil
}

// CancelSigning abandons a session in progress: its shares, once
// received, can never be counted toward a final signature (see
// applyLateShare), though any nonces it already consumed stay consumed.
func (c *Coordinator) CancelSigning(id protocol.SessionId) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.sessions[id]
	if !ok {
		return protocol.ErrWrongState
	}
	if session.State == protocol.SignSessionFinished || session.State == protocol.SignSessionForgotten {
		return nil
	}
	session.State = protocol.SignSessionForgotten
	delete(c.ceremonies, id)
	for d, sid := range c.deviceSigningSession {
		if sid == id {
			delete(c.deviceSigningSession, d)
		}
	}
	return c.emit(protocol.SigningMutation{SessionId: id, NewState: protocol.SignSessionForgotten})
}

func (c *Coordinator) applySigningMutation(mu protocol.SigningMutation) {
	session, ok := c.sessions[mu.SessionId]
	if !ok {
		return
	}
	session.State = mu.NewState
	if mu.NewState == protocol.SignSessionFinished {
		session.FinalSignatures = mu.Signatures
	}
}
