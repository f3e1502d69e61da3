package ota

import "fmt"

type upgradeState int

const (
	stateWaitingForConfirm upgradeState = iota
	stateErasing
	stateReceiving
	stateFinished
)

// UpgradeMode tracks one offered firmware image through to completion.
// A Passive instance (expectedDigest already matches what's running)
// only ever forwards bytes for a downstream device and never touches
// flash itself; an Upgrading instance owns the erase-then-write-then-
// switch sequence into its target slot.
type UpgradeMode struct {
	Size    uint32
	passive bool

	ota            *OtaFlash
	slot           int
	expectedDigest [32]byte
	state          upgradeState

	eraseCursor    uint32
	received       uint32
	sectorBuf      []byte
	sectorsWritten uint32
}

// Passive reports whether this upgrade only needs pass-through: the
// offered image is already the one running.
func (m *UpgradeMode) Passive() bool { return m.passive }

// Confirm moves an Upgrading session from awaiting user confirmation to
// erasing its target slot. It is a no-op for a Passive session, which
// never prompts.
func (m *UpgradeMode) Confirm() error {
	if m.passive {
		return nil
	}
	if m.state != stateWaitingForConfirm {
		return fmt.Errorf("ota: confirm called in state %d", m.state)
	}
	m.state = stateErasing
	return nil
}

// EraseChunk erases up to chunkSectors sectors of the target slot,
// skipping any already erased, so a caller can spread a full-slot erase
// across several polls instead of blocking on it. It returns true once
// the whole slot has been erased and the session is ready to receive
// image bytes.
func (m *UpgradeMode) EraseChunk(chunkSectors uint32) (done bool, err error) {
	if m.passive {
		return true, nil
	}
	if m.state != stateErasing {
		return false, fmt.Errorf("ota: erase called in state %d", m.state)
	}
	partition := m.ota.slots[m.slot]
	total := partition.SectorsPerImage()
	for i := uint32(0); i < chunkSectors && m.eraseCursor < total; i++ {
		sector, err := partition.GetSector(m.eraseCursor)
		if err != nil {
			return false, err
		}
		if !isErased(sector) {
			if err := partition.EraseImageSector(m.eraseCursor); err != nil {
				return false, err
			}
		}
		m.eraseCursor++
	}
	if m.eraseCursor == total {
		m.state = stateReceiving
		m.sectorBuf = make([]byte, 0, SectorSize)
		return true, nil
	}
	return false, nil
}

func isErased(sector []byte) bool {
	for _, b := range sector {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// WriteChunk feeds image bytes read off the wire into the target slot
// (for an Upgrading session) or simply counts them (for a Passive
// session forwarding to a downstream device). It buffers partial
// sectors and only writes once a full SectorSize has accumulated,
// mirroring the original streaming loop's in_buf accumulation. It
// returns true once Size bytes have been received in total.
func (m *UpgradeMode) WriteChunk(data []byte) (done bool, err error) {
	if m.received+uint32(len(data)) > m.Size {
		return false, fmt.Errorf("ota: received %d bytes beyond declared size %d", m.received+uint32(len(data)), m.Size)
	}
	m.received += uint32(len(data))

	if !m.passive {
		if m.state != stateReceiving {
			return false, fmt.Errorf("ota: write called in state %d", m.state)
		}
		m.sectorBuf = append(m.sectorBuf, data...)
		for len(m.sectorBuf) >= SectorSize {
			sector := make([]byte, SectorSize)
			copy(sector, m.sectorBuf[:SectorSize])
			if err := m.ota.slots[m.slot].WriteSector(m.sectorIndex(), sector); err != nil {
				return false, err
			}
			m.sectorBuf = m.sectorBuf[SectorSize:]
			m.sectorsWritten++
		}
		if m.received == m.Size && len(m.sectorBuf) > 0 {
			// a final, partial sector still needs writing: pad with
			// the erased-flash value rather than leaving it unwritten,
			// since the erase pass already guaranteed every other byte
			// in the sector reads as 0xff.
			sector := make([]byte, SectorSize)
			for i := range sector {
				sector[i] = 0xFF
			}
			copy(sector, m.sectorBuf)
			if err := m.ota.slots[m.slot].WriteSector(m.sectorIndex(), sector); err != nil {
				return false, err
			}
			m.sectorBuf = nil
			m.sectorsWritten++
		}
	}

	return m.received == m.Size, nil
}

func (m *UpgradeMode) sectorIndex() uint32 { return m.sectorsWritten }

// Finish is called once WriteChunk has reported done: it verifies the
// downloaded image's digest and, only on a match, durably switches the
// slot active. A Passive session has nothing to verify and always
// reports success without touching otadata (it was already active).
func (m *UpgradeMode) Finish() (switched bool, digest [32]byte, err error) {
	if m.passive {
		return false, [32]byte{}, nil
	}
	if m.state != stateReceiving {
		return false, [32]byte{}, fmt.Errorf("ota: finish called in state %d", m.state)
	}
	got, err := m.ota.slots[m.slot].Digest()
	if err != nil {
		return false, [32]byte{}, err
	}
	if got != m.expectedDigest {
		return false, got, fmt.Errorf("ota: downloaded image digest %x does not match expected %x", got, m.expectedDigest)
	}
	if err := m.ota.switchPartition(m.slot, &OtaMetadata{}); err != nil {
		return false, got, err
	}
	m.state = stateFinished
	return true, got, nil
}
