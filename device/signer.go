// Package device implements a device's FROST state engine: the side of
// the protocol that holds secret key shares, answers keygen and signing
// requests from a coordinator, and drives the device's local UI prompts.
// It has no transport or storage I/O of its own; callers feed it
// protocol.CoordinatorToDeviceMessage and protocol.UiEvent values and
// flush the protocol.DeviceSend effects it returns, in order, before
// feeding it anything else.
package device

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/frostsnap/frostsnap/frost"
	"github.com/frostsnap/frostsnap/protocol"
)

// State names the phase of whatever single action a device may have in
// flight. A device works on at most one proposal at a time; a new
// DoKeyGen/RequestSign/backup message while already busy is a protocol
// error, and Cancel always returns the device to Idle.
type State int

const (
	Idle State = iota
	KeyGenProposed
	KeyGenAckPending
	SigningProposed
	SigningAckPending
	BackupDisplay
	BackupEntry
	FirmwareUpgradeConfirmPending
	FirmwareUpgradeErase
	FirmwareUpgradeReceive
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case KeyGenProposed:
		return "keygen-proposed"
	case KeyGenAckPending:
		return "keygen-ack-pending"
	case SigningProposed:
		return "signing-proposed"
	case SigningAckPending:
		return "signing-ack-pending"
	case BackupDisplay:
		return "backup-display"
	case BackupEntry:
		return "backup-entry"
	case FirmwareUpgradeConfirmPending:
		return "firmware-upgrade-confirm-pending"
	case FirmwareUpgradeErase:
		return "firmware-upgrade-erase"
	case FirmwareUpgradeReceive:
		return "firmware-upgrade-receive"
	default:
		return "unknown"
	}
}

// KeyData is everything a device persists about one FROST key it holds a
// share of.
type KeyData struct {
	AccessStructureRef protocol.AccessStructureRef
	Purpose            protocol.KeyPurpose
	SharedKey          protocol.SharedKey
	ShareIndex         protocol.ShareIndex
	SecretShare        [32]byte
	// ChainCode roots this key's BIP32 derivation tree. Unlike a BIP32
	// master key, a FROST key has no seed to derive a chaincode from, so
	// one is fixed at keygen time as H("frostsnap/chaincode" || joint
	// pubkey): every participant computes the same value independently,
	// with no secret material and no extra round trip.
	ChainCode [32]byte
}

// Signer is one device's FROST state engine.
type Signer struct {
	id           protocol.DeviceId
	devicePriv   *btcec.PrivateKey
	deviceSecret [32]byte // root of every nonce-stream seed derived via frost.NonceStreamSeed

	name *string
	keys map[protocol.KeyId]KeyData

	// nonceCounters tracks, per stream, the lowest counter index not yet
	// expended. Advertising nonces (RequestNonces) never advances it;
	// only producing a signature share over them does.
	nonceCounters map[protocol.NonceStreamId]uint64

	state   State
	keygen  *keygenProposal
	signing *signingProposal
	backup  *backupProposal

	firmwareDigest [32]byte
	firmwareSize   uint32
}

type keygenProposal struct {
	round              *frost.KeygenRound
	myIndex            protocol.ShareIndex
	deviceToShareIndex map[protocol.DeviceId]protocol.ShareIndex
	threshold          int
	purpose            protocol.KeyPurpose

	// finished is populated once FinishKeyGen has been processed, and
	// consumed on KeyGenConfirm.
	finished *finishedKeyGen
}

type finishedKeyGen struct {
	sharedKey   protocol.SharedKey
	secretShare [32]byte
	sessionHash [32]byte
}

type signingProposal struct {
	keyId              protocol.KeyId
	accessStructureRef protocol.AccessStructureRef
	signTask           protocol.SignTask
	nonces             map[protocol.ShareIndex]protocol.SignRequestNonces
}

type backupProposal struct {
	restorationId protocol.SessionId
	shareImage    protocol.ShareImage
	secret        [32]byte
	purpose       protocol.KeyPurpose
	thresholdHint *int
}

// New creates a device signer for the keypair whose public half is its
// DeviceId, and a device-secret root used only to derive nonce streams.
func New(devicePriv *btcec.PrivateKey, deviceSecret [32]byte) *Signer {
	return &Signer{
		id:            protocol.DeviceIdFromPubKey(devicePriv.PubKey()),
		devicePriv:    devicePriv,
		deviceSecret:  deviceSecret,
		keys:          make(map[protocol.KeyId]KeyData),
		nonceCounters: make(map[protocol.NonceStreamId]uint64),
		state:         Idle,
	}
}

// Id returns the device's permanent identity.
func (s *Signer) Id() protocol.DeviceId { return s.id }

// State reports the device's current action phase.
func (s *Signer) State() State { return s.state }

// Name returns the device's current user-assigned label, or nil if unset.
func (s *Signer) Name() *string { return s.name }

// Key looks up a held key by id.
func (s *Signer) Key(id protocol.KeyId) (KeyData, bool) {
	k, ok := s.keys[id]
	return k, ok
}

// protocolError builds the ToCoordinator effect reporting an illegal
// message for the device's current state; it never mutates state.
func protocolError(format string, args ...any) []protocol.DeviceSend {
	return []protocol.DeviceSend{protocol.ToCoordinator{
		Message: protocol.ProtocolError{Message: fmt.Sprintf(format, args...)},
	}}
}

// reset clears whatever proposal is in flight and returns to Idle. It
// does not itself emit a Canceled event; callers decide whether one is
// warranted (Handle(Cancel) does only when a proposal was pending; a
// clean finish never does).
func (s *Signer) reset() {
	s.state = Idle
	s.keygen = nil
	s.signing = nil
	s.backup = nil
}

// taskKindForState names which TaskKind a Cancel in the current state
// would terminate, for the Canceled UI event.
func taskKindForState(st State) (protocol.TaskKind, bool) {
	switch st {
	case KeyGenProposed, KeyGenAckPending:
		return protocol.TaskKeyGen, true
	case SigningProposed, SigningAckPending:
		return protocol.TaskSign, true
	case FirmwareUpgradeConfirmPending, FirmwareUpgradeErase, FirmwareUpgradeReceive:
		return protocol.TaskFirmwareUpgrade, true
	default:
		return 0, false
	}
}

// Handle processes one message from the coordinator, returning the
// ordered effects to flush: storage writes (if any) always precede the
// coordinator/user message that depends on them.
func (s *Signer) Handle(msg protocol.CoordinatorToDeviceMessage) ([]protocol.DeviceSend, error) {
	switch m := msg.(type) {
	case protocol.Cancel:
		return s.handleCancel(), nil
	case protocol.DoKeyGen:
		return s.handleDoKeyGen(m)
	case protocol.FinishKeyGen:
		return s.handleFinishKeyGen(m)
	case protocol.RequestNonces:
		return s.handleRequestNonces(m)
	case protocol.RequestSign:
		return s.handleRequestSign(m)
	case protocol.LoadPhysicalBackup:
		return s.handleLoadPhysicalBackup(m)
	case protocol.SavePhysicalBackup:
		return s.handleSavePhysicalBackup(m)
	case protocol.ConsolidatePhysicalBackup:
		return s.handleConsolidatePhysicalBackup(m)
	default:
		return protocolError("device: unrecognized message %T", msg), nil
	}
}

func (s *Signer) handleCancel() []protocol.DeviceSend {
	kind, had := taskKindForState(s.state)
	s.reset()
	if !had {
		return nil
	}
	return []protocol.DeviceSend{protocol.ToUser{Message: protocol.Canceled{Task: kind}}}
}

// Confirm processes one local UI event, returning the effects to flush.
func (s *Signer) Confirm(event protocol.UiEvent) ([]protocol.DeviceSend, error) {
	switch e := event.(type) {
	case protocol.UiCancel:
		return s.handleCancel(), nil
	case protocol.KeyGenConfirm:
		return s.confirmKeyGen()
	case protocol.SigningConfirm:
		return s.confirmSigning()
	case protocol.NameConfirm:
		s.name = &e.NewName
		return []protocol.DeviceSend{protocol.ToStorage{Change: protocol.NameChange{Name: e.NewName}}}, nil
	case protocol.EnteredShareBackup:
		return s.confirmEnteredShareBackup(e)
	case protocol.BackupRecorded:
		// The device has shown its backup phrase and the user
		// attested to transcribing it; nothing further to persist.
		if s.state == BackupDisplay {
			s.reset()
		}
		return nil, nil
	case protocol.UpgradeConfirm:
		return s.confirmFirmwareUpgrade()
	case protocol.WipeDataConfirm:
		s.keys = make(map[protocol.KeyId]KeyData)
		s.nonceCounters = make(map[protocol.NonceStreamId]uint64)
		s.reset()
		return nil, nil
	default:
		return nil, fmt.Errorf("device: unrecognized ui event %T", event)
	}
}

// Workflow renders the device's current state as a UI prompt.
func (s *Signer) Workflow() protocol.Workflow {
	switch s.state {
	case Idle:
		return protocol.Workflow{Kind: protocol.WorkflowStandby}
	case KeyGenProposed:
		return protocol.Workflow{Kind: protocol.WorkflowBusyDoing, Detail: protocol.BusyDoingDetail{Kind: "keygen"}}
	case KeyGenAckPending:
		return protocol.Workflow{Kind: protocol.WorkflowUserPrompt, Detail: protocol.PromptDetail{
			Kind:    "keygen",
			Payload: s.keygen.finished.sessionHash,
		}}
	case SigningProposed:
		return protocol.Workflow{Kind: protocol.WorkflowUserPrompt, Detail: protocol.PromptDetail{
			Kind:    "signing",
			Payload: s.signing.signTask,
		}}
	case SigningAckPending:
		return protocol.Workflow{Kind: protocol.WorkflowBusyDoing, Detail: protocol.BusyDoingDetail{Kind: "signing"}}
	case BackupDisplay:
		return protocol.Workflow{Kind: protocol.WorkflowDisplayBackup}
	case BackupEntry:
		return protocol.Workflow{Kind: protocol.WorkflowEnteringBackup}
	case FirmwareUpgradeConfirmPending:
		return protocol.Workflow{Kind: protocol.WorkflowUserPrompt, Detail: protocol.PromptDetail{Kind: "firmware-upgrade"}}
	case FirmwareUpgradeErase:
		return protocol.Workflow{Kind: protocol.WorkflowFirmwareUpgrade, Detail: protocol.FirmwareUpgradeStatus{Phase: "erase"}}
	case FirmwareUpgradeReceive:
		return protocol.Workflow{Kind: protocol.WorkflowFirmwareUpgrade, Detail: protocol.FirmwareUpgradeStatus{Phase: "download"}}
	default:
		return protocol.Workflow{Kind: protocol.WorkflowNone}
	}
}

// ApplyChange replays one durable mutation into memory, used both right
// after the corresponding Handle/Confirm call produced it and when
// restoring a device's in-memory state from its stored mutation log at
// boot.
func (s *Signer) ApplyChange(change protocol.DeviceChange) {
	switch c := change.(type) {
	case protocol.SaveKey:
		s.keys[c.KeyId] = KeyData{
			AccessStructureRef: protocol.AccessStructureRef{KeyId: c.KeyId, AccessStructureId: masterAccessStructureId(c.KeyId)},
			SharedKey:          c.SharedKey,
			ShareIndex:         c.ShareIndex,
			SecretShare:        c.SecretKey,
			ChainCode:          frost.RootChainCode(c.SharedKey.PublicKey()),
		}
	case protocol.ExpendNonce:
		if cur := s.nonceCounters[c.StreamId]; c.NonceCounter > cur {
			s.nonceCounters[c.StreamId] = c.NonceCounter
		}
	case protocol.SaveBackup:
		k := s.keys[c.AccessStructureRef.KeyId]
		k.AccessStructureRef = c.AccessStructureRef
		k.ShareIndex = c.ShareIndex
		k.SecretShare = c.SecretKey
		k.Purpose = c.Purpose
		s.keys[c.AccessStructureRef.KeyId] = k
	case protocol.NameChange:
		name := c.Name
		s.name = &name
	}
}

// masterAccessStructureId derives the access structure id of the single
// master access structure a keygen ceremony produces, deterministically
// from the key id so that every participant computes the same value
// without a separate coordinator round trip. The coordinator files an
// access structure recovered by restoration under this same id, so its
// AccessStructureRef equals the one the original keygen produced.
func masterAccessStructureId(keyId protocol.KeyId) protocol.AccessStructureId {
	var out protocol.AccessStructureId
	copy(out[:], keyId[:])
	return out
}

// keyIdFor computes the KeyId a completed keygen's shared key is filed
// under: the sha256 digest of its joint public key.
func keyIdFor(key protocol.SharedKey) protocol.KeyId {
	return protocol.KeyId(sha256.Sum256(key.PublicKey().SerializeCompressed()))
}
