package device

import "github.com/frostsnap/frostsnap/protocol"

// BeginFirmwareUpgrade starts the on-device confirmation flow for an OTA
// image a coordinator has offered over the link layer (ConfirmFirmwareUpgrade
// is an envelope-level message, not a Core one, so it reaches the signer
// through this direct call rather than through Handle).
func (s *Signer) BeginFirmwareUpgrade(digest [32]byte, size uint32) ([]protocol.DeviceSend, error) {
	if s.state != Idle {
		return protocolError("device: firmware upgrade offered while busy (%s)", s.state), nil
	}
	s.firmwareDigest = digest
	s.firmwareSize = size
	s.state = FirmwareUpgradeConfirmPending
	return nil, nil
}

func (s *Signer) confirmFirmwareUpgrade() ([]protocol.DeviceSend, error) {
	if s.state != FirmwareUpgradeConfirmPending {
		return nil, nil
	}
	s.state = FirmwareUpgradeErase
	return nil, nil
}

// BeginFirmwareReceive transitions from erasing the inactive OTA slot to
// streaming the new image into it; the erase and chunked write
// themselves are package ota's responsibility, not the signer's.
func (s *Signer) BeginFirmwareReceive() {
	if s.state == FirmwareUpgradeErase {
		s.state = FirmwareUpgradeReceive
	}
}

// FinishFirmwareUpgrade returns the device to Idle once package ota
// reports the new image's digest matched and the otadata swap is
// durable.
func (s *Signer) FinishFirmwareUpgrade() {
	if s.state == FirmwareUpgradeReceive {
		s.reset()
	}
}
