package protocol

// CoordinatorToDeviceMessage is the sealed set of FROST-core messages a
// coordinator can address to one or more devices. Concrete types carry
// exactly the data legal for that message, so invalid combinations are
// unrepresentable rather than checked at runtime.
type CoordinatorToDeviceMessage interface {
	isCoordinatorToDeviceMessage()
}

// DoKeyGen instructs every listed device to begin a t-of-n keygen.
type DoKeyGen struct {
	DeviceToShareIndex map[DeviceId]ShareIndex
	Threshold          int
	Purpose            KeyPurpose
}

func (DoKeyGen) isCoordinatorToDeviceMessage() {}

// FinishKeyGen delivers every participant's encrypted shares and point
// polynomial to every participant, so each device can locally finish
// keygen.
type FinishKeyGen struct {
	SharesProvided map[DeviceId]KeyGenResponse
}

func (FinishKeyGen) isCoordinatorToDeviceMessage() {}

// RequestNonces asks a device to advertise a batch of nonces from a given
// stream, without committing the device to them.
type RequestNonces struct {
	StreamId NonceStreamId
	Count    uint32
}

func (RequestNonces) isCoordinatorToDeviceMessage() {}

// SignRequestNonces is the slice of a RequestSign's nonce map belonging to
// one participant.
type SignRequestNonces struct {
	StreamId NonceStreamId
	Start    uint64
	Nonces   []NoncePair
}

// NoncePair is a public Schnorr-FROST binding/hiding nonce pair.
type NoncePair struct {
	Hiding  [33]byte
	Binding [33]byte
}

// RequestSign asks every listed device to produce signature shares for
// sign_task, using the specified pre-agreed nonces.
type RequestSign struct {
	KeyId              KeyId
	AccessStructureRef AccessStructureRef
	SignTask           SignTask
	Nonces             map[ShareIndex]SignRequestNonces
}

func (RequestSign) isCoordinatorToDeviceMessage() {}

// LoadPhysicalBackup tells a device to decode a physically re-entered
// BIP39 backup and report its share image, without persisting anything.
type LoadPhysicalBackup struct {
	RestorationId SessionId
	Backup        string // 25-word BIP39-style backup phrase
}

func (LoadPhysicalBackup) isCoordinatorToDeviceMessage() {}

// SavePhysicalBackup tells a device to persist a previously-entered
// physical backup, associating it with a restoration in progress.
type SavePhysicalBackup struct {
	RestorationId SessionId
}

func (SavePhysicalBackup) isCoordinatorToDeviceMessage() {}

// ConsolidatePhysicalBackup tells a device to persist a previously-entered
// physical backup as a share of a specific, already-known access
// structure.
type ConsolidatePhysicalBackup struct {
	AccessStructureRef AccessStructureRef
}

func (ConsolidatePhysicalBackup) isCoordinatorToDeviceMessage() {}

// Cancel clears any in-flight proposal on the device. It is idempotent.
type Cancel struct{}

func (Cancel) isCoordinatorToDeviceMessage() {}

// DeviceToCoordinatorMessage is the sealed set of FROST-core messages a
// device emits toward its coordinator.
type DeviceToCoordinatorMessage interface {
	isDeviceToCoordinatorMessage()
}

// KeyGenResponse is one participant's contribution to a keygen round: its
// point polynomial, the shares it produced for every other participant
// (each encrypted to that participant's device key), and a proof of
// possession over a hash of its own point polynomial (the participant
// set is not covered).
type KeyGenResponse struct {
	From                DeviceId
	PointPolynomial     []*PointBytes
	EncryptedShares     map[DeviceId]EncryptedShare
	ProofOfPossession   [64]byte
}

func (KeyGenResponse) isDeviceToCoordinatorMessage() {}

// PointBytes is a compressed secp256k1 point, used where we want a plain
// serializable value in a message struct rather than a parsed key.
type PointBytes [33]byte

// KeyGenAck finalizes a keygen on the device's behalf: session_hash is the
// 32-byte x-only root public key, used for out-of-band mutual
// confirmation between all participants.
type KeyGenAck struct {
	SessionHash [32]byte
}

func (KeyGenAck) isDeviceToCoordinatorMessage() {}

// NonceResponse answers a RequestNonces with a batch of public nonces
// starting at StartIndex.
type NonceResponse struct {
	StreamId   NonceStreamId
	StartIndex uint64
	Nonces     []NoncePair
}

func (NonceResponse) isDeviceToCoordinatorMessage() {}

// SignatureShare carries one device's signature shares for every sign item
// of a RequestSign, plus a fresh batch of replenishment nonces.
type SignatureShare struct {
	Shares     [][32]byte
	NewNonces  NonceResponse
}

func (SignatureShare) isDeviceToCoordinatorMessage() {}

// PhysicalBackupEntered reports the share image recovered from a decoded
// BIP39 backup, and the threshold if the backup encodes one.
type PhysicalBackupEntered struct {
	RestorationId    SessionId
	ShareImage       ShareImage
	ThresholdIfKnown *int
}

func (PhysicalBackupEntered) isDeviceToCoordinatorMessage() {}

// ProtocolError reports that a received CoordinatorToDeviceMessage was
// illegal for the device's current state.
type ProtocolError struct {
	Message string
}

func (ProtocolError) isDeviceToCoordinatorMessage() {}
