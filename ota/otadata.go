package ota

import (
	"encoding/binary"
	"hash/crc32"
)

// otadataSize is the fixed record the bootloader itself reads: a
// sequence number and its CRC, nothing else. frostsnapMetadataSize is
// this package's own extension appended after it, never touched by the
// bootloader, reserved for a future firmware signature.
const (
	otadataSize           = 32
	frostsnapMetadataSize = 256
	otadataSlotSize       = otadataSize + frostsnapMetadataSize
)

// OtaMetadata is recorded alongside a slot's sequence number. It
// carries no fields yet; this is where a firmware signature would go.
type OtaMetadata struct{}

// otaCRC reproduces the bootloader's CRC-32 variant: same polynomial as
// the standard reflected CRC-32 (so the same table applies), but with a
// raw register initialized to zero rather than the conventional
// 0xffffffff, and a final XOR of 0xffffffff. crc32.Update's XOR-on-entry
// convention (it internally inverts its crc argument to seed the raw
// register) means passing 0xffffffff as the running crc seeds the raw
// register at zero, matching the bootloader exactly.
func otaCRC(data []byte) uint32 {
	return crc32.Update(0xffffffff, crc32.IEEETable, data)
}

func encodeOtadataSlot(seq uint32, metadata *OtaMetadata) []byte {
	buf := make([]byte, otadataSlotSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	binary.LittleEndian.PutUint32(buf[0:4], seq)
	binary.LittleEndian.PutUint32(buf[28:32], otaCRC(buf[0:4]))
	if metadata != nil {
		buf[otadataSize] = 1
	}
	return buf
}

// decodeOtadataSlot validates the sequence/CRC pair and, if valid,
// reports the sequence and whether metadata is present. ok is false if
// the CRC doesn't match what's recorded, meaning this slot was never
// written (or was torn by a power loss) and must lose any tie-break
// against a valid slot.
func decodeOtadataSlot(raw []byte) (seq uint32, metadata *OtaMetadata, ok bool) {
	if len(raw) < otadataSlotSize {
		return 0, nil, false
	}
	seq = binary.LittleEndian.Uint32(raw[0:4])
	wantCRC := binary.LittleEndian.Uint32(raw[28:32])
	if otaCRC(raw[0:4]) != wantCRC {
		return 0, nil, false
	}
	if raw[otadataSize] == 1 {
		metadata = &OtaMetadata{}
	}
	return seq, metadata, true
}
