package ota

import (
	"crypto/sha256"
	"fmt"
)

// SectorSize matches the bootloader's erase granularity.
const SectorSize = 4096

// Partition is one contiguous region of RawFlash holding (or able to
// hold) a firmware image.
type Partition struct {
	Offset uint32
	Size   uint32
	flash  RawFlash
}

// SectorsPerImage is how many SectorSize erase units this partition
// holds.
func (p Partition) SectorsPerImage() uint32 {
	return p.Size / SectorSize
}

func (p Partition) checkSector(sector uint32) error {
	if sector >= p.SectorsPerImage() {
		return fmt.Errorf("ota: sector %d out of bounds for partition of %d sectors", sector, p.SectorsPerImage())
	}
	return nil
}

// EraseImageSector erases one SectorSize-aligned sector of this
// partition.
func (p Partition) EraseImageSector(sector uint32) error {
	if err := p.checkSector(sector); err != nil {
		return err
	}
	start := p.Offset + sector*SectorSize
	return p.flash.EraseRange(start, start+SectorSize)
}

// GetSector reads back one sector's current contents.
func (p Partition) GetSector(sector uint32) ([]byte, error) {
	if err := p.checkSector(sector); err != nil {
		return nil, err
	}
	buf := make([]byte, SectorSize)
	if err := p.flash.ReadAt(p.Offset+sector*SectorSize, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteSector writes exactly one SectorSize-aligned sector. The sector
// must already be erased; Partition never erases implicitly.
func (p Partition) WriteSector(sector uint32, data []byte) error {
	if err := p.checkSector(sector); err != nil {
		return err
	}
	if len(data) != SectorSize {
		return fmt.Errorf("ota: sector write must be exactly %d bytes, got %d", SectorSize, len(data))
	}
	return p.flash.WriteAt(p.Offset+sector*SectorSize, data)
}

// Digest hashes every sector of the partition in order, the same
// comparison used to decide whether an offered image is already active
// (Passive mode) or must be downloaded (Upgrading mode).
func (p Partition) Digest() ([32]byte, error) {
	h := sha256.New()
	for i := uint32(0); i < p.SectorsPerImage(); i++ {
		sector, err := p.GetSector(i)
		if err != nil {
			return [32]byte{}, err
		}
		h.Write(sector)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
