package protocol

// UiEvent is the closed set of events the device's state engine consumes
// from the local user interface.
type UiEvent interface{ isUiEvent() }

type KeyGenConfirm struct{}

func (KeyGenConfirm) isUiEvent() {}

type SigningConfirm struct{}

func (SigningConfirm) isUiEvent() {}

type UpgradeConfirm struct{}

func (UpgradeConfirm) isUiEvent() {}

type NameConfirm struct{ NewName string }

func (NameConfirm) isUiEvent() {}

type BackupRecorded struct{}

func (BackupRecorded) isUiEvent() {}

type EnteredShareBackup struct{ Backup string }

func (EnteredShareBackup) isUiEvent() {}

type WipeDataConfirm struct{}

func (WipeDataConfirm) isUiEvent() {}

type UiCancel struct{}

func (UiCancel) isUiEvent() {}

// WorkflowKind tags the variant of Workflow currently displayed, so a host
// UI can render without needing to import every phase payload type.
type WorkflowKind int

const (
	WorkflowNone WorkflowKind = iota
	WorkflowStandby
	WorkflowWaitingFor
	WorkflowUserPrompt
	WorkflowBusyDoing
	WorkflowNamingDevice
	WorkflowDisplayBackup
	WorkflowEnteringBackup
	WorkflowDisplayAddress
	WorkflowFirmwareUpgrade
)

// Workflow is what the device's state engine emits for the UI to render.
// Every prompt variant carries the phase object the engine needs back on
// confirmation, so the UI itself is stateless between prompt and ack.
type Workflow struct {
	Kind WorkflowKind
	// Detail is one of: WaitingForDetail, PromptDetail, BusyDoingDetail,
	// NamingDeviceDetail, string (for DisplayBackup/DisplayAddress),
	// FirmwareUpgradeStatus, or nil for None/Standby.
	Detail any
}

type PromptDetail struct {
	// Kind distinguishes the prompt payload: "keygen", "signing",
	// "firmware-upgrade", "new-name".
	Kind    string
	Payload any
}

type BusyDoingDetail struct {
	Kind string
}

type WaitingForDetail struct {
	Kind string
}

type NamingDeviceDetail struct {
	OldName *string
	NewName string
}

// FirmwareUpgradeStatus reports OTA progress for the FirmwareUpgrade
// workflow variant.
type FirmwareUpgradeStatus struct {
	Phase    string // "confirm", "erase", "download", "passive"
	Progress float32
}
