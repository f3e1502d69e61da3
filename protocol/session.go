package protocol

// SignSessionState is the lifecycle of a coordinator-side signing session:
// Proposed -> Collecting -> Finished, or Forgotten if abandoned.
type SignSessionState int

const (
	SignSessionProposed SignSessionState = iota
	SignSessionCollecting
	SignSessionFinished
	SignSessionForgotten
)

func (s SignSessionState) String() string {
	switch s {
	case SignSessionProposed:
		return "proposed"
	case SignSessionCollecting:
		return "collecting"
	case SignSessionFinished:
		return "finished"
	case SignSessionForgotten:
		return "forgotten"
	default:
		return "unknown"
	}
}

// SignSession is the coordinator's record of one signing ceremony.
type SignSession struct {
	Id                 SessionId
	AccessStructureRef AccessStructureRef
	SignTask           SignTask
	State              SignSessionState

	// Participants is the set of share indices asked to contribute.
	Participants map[ShareIndex]DeviceId

	// NonceCommitmentsReceived tracks which devices have sent their
	// nonce commitments for this session.
	NonceCommitmentsReceived map[DeviceId]bool
	// SharesReceived tracks which devices have sent a signature share.
	SharesReceived map[DeviceId][][32]byte

	// ConnectedButNeedRequest is a set of devices of this session's
	// access structure that are not yet asked to sign. The coordinator
	// package creates it empty and never adds to it: StartSigning
	// rejects a proposal that names a disconnected device.
	ConnectedButNeedRequest map[DeviceId]bool

	// FinalSignatures holds, once State == Finished, one 64-byte
	// Schnorr signature per sign item.
	FinalSignatures [][64]byte

	// FailureReason is a free-text slot for why a session could not
	// complete. Nothing in this module sets it; it stays empty.
	FailureReason string
}

// NonceStream is a device-local deterministic sequence of Schnorr nonce
// pairs, as tracked from the coordinator's point of view.
type NonceStream struct {
	Id         NonceStreamId
	DeviceId   DeviceId
	NextUnused uint64
	Remaining  uint32
}

// RestorationState mirrors the "restorable" / "threshold known" lifecycle
// of a coordinator-side restoration buffer.
type RestorationState int

const (
	RestorationCollecting RestorationState = iota
	RestorationRestorable
	RestorationFinished
)

// RestorationShare records one device's contribution to a restoration in
// progress.
type RestorationShare struct {
	DeviceId         DeviceId
	ShareImage       ShareImage
	ThresholdIfKnown *int
}

// Restoration is a coordinator-side aggregation buffer collecting
// ShareImages from devices, either from live share proofs or from
// physically re-entered BIP39 backups.
type Restoration struct {
	Id        SessionId
	KeyId     *KeyId // nil until recovered
	Shares    []RestorationShare
	State     RestorationState
	Threshold int // 0 until known
	Recovered *SharedKey
}

// CoordinatorSend is the sealed set of effects the coordinator state
// engine produces.
type CoordinatorSend interface{ isCoordinatorSend() }

type ToDevice struct {
	Destinations []DeviceId // nil/empty means "all known devices"
	Message      CoordinatorToDeviceMessage
}

func (ToDevice) isCoordinatorSend() {}

type ToCoordinatorUser struct{ Message CoordinatorToUserMessage }

func (ToCoordinatorUser) isCoordinatorSend() {}

// CoordinatorToUserMessage is the closed set of events the coordinator
// engine raises to the host application (distinct from the device-facing
// UI contract in ui.go).
type CoordinatorToUserMessage interface{ isCoordinatorToUserMessage() }

type SignSessionFinishedEvent struct {
	SessionId  SessionId
	Signatures [][64]byte
}

func (SignSessionFinishedEvent) isCoordinatorToUserMessage() {}

type RestorationFinishedEvent struct {
	RestorationId      SessionId
	AccessStructureRef AccessStructureRef
}

func (RestorationFinishedEvent) isCoordinatorToUserMessage() {}

// Mutation is the sealed, versioned enum of coordinator state changes
// persisted by package mutationdb before being applied to the in-memory
// snapshot. Its binary encoding is pinned by test vectors in mutationdb,
// so adding a variant must append, never renumber.
type Mutation interface {
	isMutation()
	// Kind returns the stable tag used by mutationdb's binary encoding.
	Kind() uint8
}

const (
	MutationKindKeygen      uint8 = 1
	MutationKindSigning     uint8 = 2
	MutationKindRestoration uint8 = 3
)

// KeygenMutation records a newly finished keygen: a new access structure
// entering the key catalog.
type KeygenMutation struct {
	KeyId              KeyId
	AccessStructureId  AccessStructureId
	Kind               AccessStructureKind
	Purpose            KeyPurpose
	DeviceToShareIndex map[DeviceId]ShareIndex
	SharedKey          SharedKey
}

func (KeygenMutation) isMutation() {}
func (KeygenMutation) Kind() uint8 { return MutationKindKeygen }

// SigningMutation records sign-session lifecycle transitions.
type SigningMutation struct {
	SessionId SessionId
	NewState  SignSessionState
	// Signatures is populated only when NewState == SignSessionFinished.
	Signatures [][64]byte
}

func (SigningMutation) isMutation() {}
func (SigningMutation) Kind() uint8 { return MutationKindSigning }

// RestorationMutation records restoration buffer progress and, on
// completion, the access structure it wrote into the key catalog.
type RestorationMutation struct {
	RestorationId SessionId
	NewState      RestorationState
	AddedShare    *RestorationShare
	Finished      *KeygenMutation
}

func (RestorationMutation) isMutation() {}
func (RestorationMutation) Kind() uint8 { return MutationKindRestoration }
