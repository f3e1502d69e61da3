package coordinator

import (
	"crypto/sha256"

	"github.com/frostsnap/frostsnap/frost"
	"github.com/frostsnap/frostsnap/protocol"
)

// StartRestoration opens a new restoration buffer expecting shares for
// a key of unknown threshold (threshold becomes known once a device
// reports one, or is supplied up front when already known from e.g. a
// prior access structure on the same key).
func (c *Coordinator) StartRestoration(knownThreshold int) protocol.SessionId {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := newSessionId()
	c.restorations[id] = &protocol.Restoration{
		Id:        id,
		State:     protocol.RestorationCollecting,
		Threshold: knownThreshold,
	}
	return id
}

// RequestPhysicalBackup asks device to load a physically re-entered
// BIP39 backup phrase toward restoration id.
func RequestPhysicalBackup(id protocol.SessionId, device protocol.DeviceId, phrase string) protocol.CoordinatorSend {
	return protocol.ToDevice{
		Destinations: []protocol.DeviceId{device},
		Message:      protocol.LoadPhysicalBackup{RestorationId: id, Backup: phrase},
	}
}

func (c *Coordinator) handlePhysicalBackupEntered(from protocol.DeviceId, m protocol.PhysicalBackupEntered) ([]protocol.CoordinatorSend, error) {
	restoration, ok := c.restorations[m.RestorationId]
	if !ok {
		return nil, protocol.ErrWrongState
	}
	if restoration.State == protocol.RestorationFinished {
		return nil, nil
	}

	for _, existing := range restoration.Shares {
		if existing.DeviceId == from {
			return nil, nil // already contributed; a re-entry is a no-op here
		}
	}

	rshare := protocol.RestorationShare{DeviceId: from, ShareImage: m.ShareImage, ThresholdIfKnown: m.ThresholdIfKnown}
	restoration.Shares = append(restoration.Shares, rshare)
	if m.ThresholdIfKnown != nil && restoration.Threshold == 0 {
		restoration.Threshold = *m.ThresholdIfKnown
	}

	mutation := protocol.RestorationMutation{RestorationId: m.RestorationId, NewState: restoration.State, AddedShare: &rshare}

	if finish, err := c.tryReconstruct(restoration); err != nil {
		return nil, err
	} else if finish != nil {
		mutation.NewState = protocol.RestorationFinished
		mutation.Finished = finish
		if err := c.emit(mutation); err != nil {
			return nil, err
		}
		return []protocol.CoordinatorSend{protocol.ToCoordinatorUser{Message: protocol.RestorationFinishedEvent{
			RestorationId:      m.RestorationId,
			AccessStructureRef: protocol.AccessStructureRef{KeyId: finish.KeyId, AccessStructureId: finish.AccessStructureId},
		}}}, nil
	}

	if restoration.Threshold > 0 && len(restoration.Shares) >= restoration.Threshold {
		restoration.State = protocol.RestorationRestorable
		mutation.NewState = protocol.RestorationRestorable
	}
	if err := c.emit(mutation); err != nil {
		return nil, err
	}
	return nil, nil
}

// tryReconstruct attempts to recover the joint key once enough shares
// agreeing on a common threshold have been collected, via
// frost.ReconstructSharedKey's public Lagrange interpolation. It
// returns nil (not an error) if there simply aren't enough shares yet.
func (c *Coordinator) tryReconstruct(restoration *protocol.Restoration) (*protocol.KeygenMutation, error) {
	if restoration.Threshold == 0 || len(restoration.Shares) < restoration.Threshold {
		return nil, nil
	}

	images := make([]protocol.ShareImage, len(restoration.Shares))
	deviceByIndex := make(map[protocol.ShareIndex]protocol.DeviceId, len(restoration.Shares))
	for i, s := range restoration.Shares {
		images[i] = s.ShareImage
		deviceByIndex[s.ShareImage.Index] = s.DeviceId
	}

	sharedKey, err := frost.ReconstructSharedKey(images, restoration.Threshold)
	if err != nil {
		return nil, nil
	}

	// Any threshold-sized subset of a consistent share set reconstructs
	// the same polynomial; verify every collected image actually lies
	// on it before declaring restoration finished, rejecting a
	// misbehaving or mismatched device's contribution instead of
	// silently dropping it from the key.
	for _, img := range images {
		expected, err := frost.ShareImageAt(sharedKey, img.Index)
		if err != nil || !expected.Equal(img) {
			return nil, protocol.WrapError(protocol.ErrKindProtocolViolation, protocol.ErrBadSignatureShare)
		}
	}

	deviceToShareIndex := make(map[protocol.DeviceId]protocol.ShareIndex, len(images))
	for idx, d := range deviceByIndex {
		deviceToShareIndex[d] = idx
	}

	keyId := protocol.KeyId(sha256.Sum256(sharedKey.PublicKey().SerializeCompressed()))
	restoration.KeyId = &keyId
	restoration.Recovered = &sharedKey
	restoration.State = protocol.RestorationFinished

	return &protocol.KeygenMutation{
		KeyId:              keyId,
		AccessStructureId:  masterAccessStructureId(keyId),
		Kind:               protocol.AccessStructureDerived,
		DeviceToShareIndex: deviceToShareIndex,
		SharedKey:          sharedKey,
	}, nil
}

func (c *Coordinator) applyRestorationMutation(mu protocol.RestorationMutation) {
	restoration, ok := c.restorations[mu.RestorationId]
	if !ok {
		restoration = &protocol.Restoration{Id: mu.RestorationId}
		c.restorations[mu.RestorationId] = restoration
	}
	restoration.State = mu.NewState
	if mu.AddedShare != nil {
		present := false
		for _, existing := range restoration.Shares {
			if existing.DeviceId == mu.AddedShare.DeviceId {
				present = true
				break
			}
		}
		if !present {
			restoration.Shares = append(restoration.Shares, *mu.AddedShare)
		}
	}
	if mu.Finished != nil {
		c.applyKeygenMutation(*mu.Finished)
		keyId := mu.Finished.KeyId
		restoration.KeyId = &keyId
	}
}
