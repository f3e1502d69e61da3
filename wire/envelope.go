package wire

import "github.com/frostsnap/frostsnap/protocol"

// CoordinatorSendBody is the sealed set of things a coordinator frame
// can carry down the daisy chain: a FROST-core message bound for one
// or more devices, or one of the link-management messages that exist
// purely to keep the chain's bookkeeping (names, announcements, OTA
// handshakes) in sync.
type CoordinatorSendBody interface{ isCoordinatorSendBody() }

// CoreMessage wraps a protocol.CoordinatorToDeviceMessage for the wire.
type CoreMessage struct {
	Destinations []protocol.DeviceId
	Message      protocol.CoordinatorToDeviceMessage
}

func (CoreMessage) isCoordinatorSendBody() {}

// AnnounceAck acknowledges a device's Announce, registering it in the
// coordinator's session. It carries only the destination device.
type AnnounceAck struct {
	Destination protocol.DeviceId
}

func (AnnounceAck) isCoordinatorSendBody() {}

// SetName instructs a device to adopt a new user-assigned label.
type SetName struct {
	Destination protocol.DeviceId
	Name        string
}

func (SetName) isCoordinatorSendBody() {}

// NamingPreview and NamingFinish are the two-phase device-naming
// handshake: Preview shows the proposed name on-device for
// confirmation, Finish commits it after the user accepts.
type NamingPreview struct {
	Destination protocol.DeviceId
	Name        string
}

func (NamingPreview) isCoordinatorSendBody() {}

type NamingFinish struct {
	Destination protocol.DeviceId
}

func (NamingFinish) isCoordinatorSendBody() {}

// Debug carries a free-form diagnostic string down the chain, echoed
// back up unmodified by firmware that doesn't otherwise understand it.
type Debug struct{ Message string }

func (Debug) isCoordinatorSendBody() {}

// DisconnectDownstream tells the immediately-attached device to tear
// down and re-probe its own downstream port, used to recover a daisy
// chain link stuck in a bad state without power-cycling hardware.
type DisconnectDownstream struct{}

func (DisconnectDownstream) isCoordinatorSendBody() {}

// ConfirmFirmwareUpgrade begins an OTA upgrade: digest is the SHA-256
// of the firmware image the device is about to receive, size its exact
// byte length.
type ConfirmFirmwareUpgrade struct {
	Destination protocol.DeviceId
	Digest      [32]byte
	Size        uint32
}

func (ConfirmFirmwareUpgrade) isCoordinatorSendBody() {}

// AckUpgradeMode tells a device already in Upgrading mode that the
// coordinator has seen its ack and will now begin streaming chunks.
type AckUpgradeMode struct{ Destination protocol.DeviceId }

func (AckUpgradeMode) isCoordinatorSendBody() {}

// LinkCancel clears any in-progress link-level handshake (naming, OTA)
// without touching FROST-core state. Distinct from protocol.Cancel,
// which is itself carried inside a CoreMessage.
type LinkCancel struct{ Destination protocol.DeviceId }

func (LinkCancel) isCoordinatorSendBody() {}

// DeviceSendBody is the sealed set of things a device frame can carry
// up the daisy chain.
type DeviceSendBody interface{ isDeviceSendBody() }

// Announce is the first message a newly-connected (or newly-reset)
// device sends upstream, identifying itself and, if firmware already
// assigned one, its current name.
type Announce struct {
	DeviceId protocol.DeviceId
	Name     *string
}

func (Announce) isDeviceSendBody() {}

// NeedName is sent by a device that was Announced but has never been
// named, soliciting a SetName from the coordinator.
type NeedName struct{ DeviceId protocol.DeviceId }

func (NeedName) isDeviceSendBody() {}

// CoreResponse wraps a protocol.DeviceToCoordinatorMessage for the
// wire.
type CoreResponse struct {
	From    protocol.DeviceId
	Message protocol.DeviceToCoordinatorMessage
}

func (CoreResponse) isDeviceSendBody() {}

// DebugEcho carries a diagnostic string back upstream, either a reply
// to a coordinator Debug or a device-initiated log line.
type DebugEcho struct {
	From    protocol.DeviceId
	Message string
}

func (DebugEcho) isDeviceSendBody() {}
