package device

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/frostsnap/frostsnap/frost"
	"github.com/frostsnap/frostsnap/protocol"
)

// decodeAndCacheBackup decodes a 25-word physical backup phrase. The
// phrase itself carries the share's index and key purpose (see
// frost.DecodeBackup), since a backup can be re-entered on any device,
// most often a different one than made it, so neither can be inferred
// from context the way they can be for a share already on file.
func (s *Signer) decodeAndCacheBackup(restorationId protocol.SessionId, phrase string) (protocol.PhysicalBackupEntered, error) {
	secret, index, purpose, err := frost.DecodeBackup(phrase)
	if err != nil {
		return protocol.PhysicalBackupEntered{}, err
	}
	_, pub := btcec.PrivKeyFromBytes(secret[:])

	s.backup = &backupProposal{
		restorationId: restorationId,
		shareImage:    protocol.ShareImage{Index: index, Point: pub},
		secret:        secret,
		purpose:       purpose,
	}
	s.state = BackupEntry

	return protocol.PhysicalBackupEntered{
		RestorationId: restorationId,
		ShareImage:    s.backup.shareImage,
	}, nil
}

func (s *Signer) handleLoadPhysicalBackup(m protocol.LoadPhysicalBackup) ([]protocol.DeviceSend, error) {
	if s.state != Idle && s.state != BackupEntry {
		return protocolError("device: LoadPhysicalBackup received while busy (%s)", s.state), nil
	}
	reported, err := s.decodeAndCacheBackup(m.RestorationId, m.Backup)
	if err != nil {
		s.reset()
		return protocolError("device: invalid backup phrase: %v", err), nil
	}
	return []protocol.DeviceSend{protocol.ToCoordinator{Message: reported}}, nil
}

// confirmEnteredShareBackup mirrors handleLoadPhysicalBackup for a
// backup typed directly on the device's own keypad rather than relayed
// by the coordinator. The restoration id is taken from the backup entry
// already pending on this device, and is the zero id when none is
// pending.
func (s *Signer) confirmEnteredShareBackup(e protocol.EnteredShareBackup) ([]protocol.DeviceSend, error) {
	var restorationId protocol.SessionId
	if s.backup != nil {
		restorationId = s.backup.restorationId
	}
	reported, err := s.decodeAndCacheBackup(restorationId, e.Backup)
	if err != nil {
		s.reset()
		return protocolError("device: invalid backup phrase: %v", err), nil
	}
	return []protocol.DeviceSend{protocol.ToCoordinator{Message: reported}}, nil
}

func (s *Signer) handleSavePhysicalBackup(m protocol.SavePhysicalBackup) ([]protocol.DeviceSend, error) {
	if s.state != BackupEntry || s.backup == nil || s.backup.restorationId != m.RestorationId {
		return protocolError("device: SavePhysicalBackup does not match a pending backup entry"), nil
	}
	b := s.backup
	// The restoration has not yet resolved to a concrete access
	// structure (that happens once enough devices have reported in and
	// the coordinator reconciles them), so the share is filed under a
	// placeholder ref keyed by the restoration id; the coordinator's
	// restoration bookkeeping is responsible for migrating it to the
	// real AccessStructureRef once restoration finishes.
	ref := protocol.AccessStructureRef{
		KeyId:             protocol.KeyId(sha256.Sum256(append([]byte("frostsnap/restoration-keyid"), b.restorationId[:]...))),
		AccessStructureId: restorationPlaceholderId(b.restorationId),
	}
	s.reset()
	return []protocol.DeviceSend{protocol.ToStorage{Change: protocol.SaveBackup{
		AccessStructureRef: ref,
		ShareIndex:         b.shareImage.Index,
		SecretKey:          b.secret,
		Purpose:            b.purpose,
	}}}, nil
}

func (s *Signer) handleConsolidatePhysicalBackup(m protocol.ConsolidatePhysicalBackup) ([]protocol.DeviceSend, error) {
	if s.state != BackupEntry || s.backup == nil {
		return protocolError("device: ConsolidatePhysicalBackup with no pending backup entry"), nil
	}
	b := s.backup
	s.reset()
	return []protocol.DeviceSend{protocol.ToStorage{Change: protocol.SaveBackup{
		AccessStructureRef: m.AccessStructureRef,
		ShareIndex:         b.shareImage.Index,
		SecretKey:          b.secret,
		Purpose:            b.purpose,
	}}}, nil
}

func restorationPlaceholderId(restorationId protocol.SessionId) protocol.AccessStructureId {
	var out protocol.AccessStructureId
	copy(out[:], restorationId[:])
	return out
}
