// Package storage implements the device's append-only mutation log: a
// small ring of fixed-size sectors over a raw "flash" abstraction,
// replayed at boot to reconstruct a Signer's in-memory state and
// appended to as new protocol.DeviceChange values are produced.
//
// It mirrors the contract the original firmware's flash driver exposes
// to the core engine: a header sector naming where the live ring
// starts, iteration that replays every change in write order, and a
// push that must never lose a change already reported durable to a
// caller.
package storage

import "fmt"

// Flash is the raw block-erase storage this log is built on. Sectors
// must be erased (reset to all-0xFF, the NOR-flash convention) before
// being written again; WriteSector never implicitly erases.
type Flash interface {
	SectorSize() int
	SectorCount() int
	ReadSector(n int) ([]byte, error)
	WriteSector(n int, data []byte) error
	EraseSector(n int) error
}

// MemFlash is an in-memory Flash for tests and for hosts that don't run
// on real NOR flash (e.g. a desktop-simulated device).
type MemFlash struct {
	sectorSize int
	sectors    [][]byte
}

// NewMemFlash allocates count erased sectors of sectorSize bytes each.
func NewMemFlash(sectorSize, count int) *MemFlash {
	f := &MemFlash{sectorSize: sectorSize, sectors: make([][]byte, count)}
	for i := range f.sectors {
		f.sectors[i] = erasedSector(sectorSize)
	}
	return f
}

func erasedSector(size int) []byte {
	s := make([]byte, size)
	for i := range s {
		s[i] = 0xFF
	}
	return s
}

func (f *MemFlash) SectorSize() int  { return f.sectorSize }
func (f *MemFlash) SectorCount() int { return len(f.sectors) }

func (f *MemFlash) ReadSector(n int) ([]byte, error) {
	if n < 0 || n >= len(f.sectors) {
		return nil, fmt.Errorf("storage: sector %d out of range", n)
	}
	out := make([]byte, f.sectorSize)
	copy(out, f.sectors[n])
	return out, nil
}

func (f *MemFlash) WriteSector(n int, data []byte) error {
	if n < 0 || n >= len(f.sectors) {
		return fmt.Errorf("storage: sector %d out of range", n)
	}
	if len(data) > f.sectorSize {
		return fmt.Errorf("storage: write of %d bytes exceeds sector size %d", len(data), f.sectorSize)
	}
	copy(f.sectors[n], data)
	return nil
}

func (f *MemFlash) EraseSector(n int) error {
	if n < 0 || n >= len(f.sectors) {
		return fmt.Errorf("storage: sector %d out of range", n)
	}
	f.sectors[n] = erasedSector(f.sectorSize)
	return nil
}
