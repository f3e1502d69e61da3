package ota

import "fmt"

// OtaFlash owns the otadata record and the three image partitions: the
// read-only factory image and the two interchangeable OTA slots an
// upgrade alternates between.
type OtaFlash struct {
	flash         RawFlash
	otadataOffset uint32
	factory       Partition
	slots         [2]Partition
}

// New wires an OtaFlash over partitions already located by the caller
// (normally read once from a partition table at startup).
func New(flash RawFlash, otadataOffset uint32, factory, slot0, slot1 Partition) *OtaFlash {
	return &OtaFlash{flash: flash, otadataOffset: otadataOffset, factory: factory, slots: [2]Partition{slot0, slot1}}
}

func (o *OtaFlash) readSlotRecord(slot int) []byte {
	buf := make([]byte, otadataSlotSize)
	_ = o.flash.ReadAt(o.otadataOffset+uint32(slot)*SectorSize, buf)
	return buf
}

// CurrentSlot reports whichever of the two OTA slots holds the
// highest-sequence, CRC-valid otadata record; ties favor the higher
// slot index, matching the bootloader's own tie-break. ok is false if
// neither slot has ever been written, meaning the factory image is
// still active.
func (o *OtaFlash) CurrentSlot() (slot int, seq uint32, metadata *OtaMetadata, ok bool) {
	found := false
	var bestSlot int
	var bestSeq uint32
	var bestMetadata *OtaMetadata
	for s := 0; s <= 1; s++ {
		slotSeq, slotMetadata, valid := decodeOtadataSlot(o.readSlotRecord(s))
		if !valid {
			continue
		}
		if !found || slotSeq >= bestSeq {
			found, bestSlot, bestSeq, bestMetadata = true, s, slotSeq, slotMetadata
		}
	}
	return bestSlot, bestSeq, bestMetadata, found
}

// ActivePartition is the image partition currently selected to run,
// falling back to the read-only factory image if no OTA slot has ever
// been activated.
func (o *OtaFlash) ActivePartition() Partition {
	if slot, _, _, ok := o.CurrentSlot(); ok {
		return o.slots[slot]
	}
	return o.factory
}

// nextSlot is the OTA slot an upgrade should target: the one not
// currently active.
func (o *OtaFlash) nextSlot() int {
	if slot, _, _, ok := o.CurrentSlot(); ok {
		return (slot + 1) % 2
	}
	return 0
}

// switchPartition durably selects slot as active by writing a strictly
// higher sequence number than whatever is currently active. It is a
// no-op if slot is already active: a slot only becomes selectable by
// gaining a higher, CRC-valid sequence than its sibling, so writing the
// same sequence again would never have taken effect anyway.
func (o *OtaFlash) switchPartition(slot int, metadata *OtaMetadata) error {
	nextSeq := uint32(1)
	if curSlot, curSeq, _, ok := o.CurrentSlot(); ok {
		if curSlot == slot {
			return nil
		}
		nextSeq = curSeq + 1
	}
	record := encodeOtadataSlot(nextSeq, metadata)
	offset := o.otadataOffset + uint32(slot)*SectorSize
	if err := o.flash.EraseRange(offset, offset+SectorSize); err != nil {
		return err
	}
	if err := o.flash.WriteAt(offset, record); err != nil {
		return err
	}
	readBack := make([]byte, len(record))
	if err := o.flash.ReadAt(offset, readBack); err != nil {
		return err
	}
	for i := range record {
		if record[i] != readBack[i] {
			return fmt.Errorf("ota: otadata readback mismatch at slot %d, offset %d", slot, i)
		}
	}
	return nil
}

// StartUpgrade decides whether an offered image needs downloading at
// all. If its digest already matches the currently-running partition,
// the device only needs to acknowledge and pass bytes through
// (Passive); otherwise it must erase and populate the inactive slot
// before switching to it (Upgrading).
func (o *OtaFlash) StartUpgrade(size uint32, expectedDigest, activeDigest [32]byte) *UpgradeMode {
	if expectedDigest == activeDigest {
		return &UpgradeMode{Size: size, passive: true}
	}
	slot := o.nextSlot()
	return &UpgradeMode{
		Size:           size,
		ota:            o,
		slot:           slot,
		expectedDigest: expectedDigest,
		state:          stateWaitingForConfirm,
	}
}
