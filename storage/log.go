package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/frostsnap/frostsnap/protocol"
)

func init() {
	gob.Register(protocol.SaveKey{})
	gob.Register(protocol.ExpendNonce{})
	gob.Register(protocol.SaveBackup{})
	gob.Register(protocol.NameChange{})
}

const headerMagic uint32 = 0x46524f53 // "FROS"

// ErrRingFull is returned by Push when every data sector already holds
// live records and the write cursor has caught back up with the ring's
// active start; the caller must Compact with a fresh snapshot before
// any more changes can be appended.
var ErrRingFull = errors.New("storage: mutation ring full, compaction required")

// Header is the single sector naming where the live ring of mutation
// records begins. Generation increments every Compact so a reader can
// tell two header reads apart after a power cycle mid-write.
type Header struct {
	Generation  uint32
	ActiveStart int // index into Log.dataSectors where the live ring begins
}

func (h Header) encode() []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], headerMagic)
	binary.BigEndian.PutUint32(buf[4:8], h.Generation)
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.ActiveStart))
	crc := crc32.ChecksumIEEE(buf)
	return append(buf, encodeUint32(crc)...)
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func decodeHeader(raw []byte) (Header, error) {
	if len(raw) < 16 {
		return Header{}, fmt.Errorf("storage: header sector too short")
	}
	if binary.BigEndian.Uint32(raw[0:4]) != headerMagic {
		return Header{}, fmt.Errorf("storage: header sector not formatted")
	}
	want := binary.BigEndian.Uint32(raw[12:16])
	got := crc32.ChecksumIEEE(raw[0:12])
	if want != got {
		return Header{}, fmt.Errorf("storage: header CRC mismatch")
	}
	return Header{
		Generation:  binary.BigEndian.Uint32(raw[4:8]),
		ActiveStart: int(binary.BigEndian.Uint32(raw[8:12])),
	}, nil
}

// Log is an append-only ring of protocol.DeviceChange records over a
// Flash: sector 0 is the header, sectors 1..SectorCount()-1 are the
// data ring. Every record is length-prefixed and CRC-protected so a
// power loss mid-write leaves, at worst, one trailing partial record
// that replay simply stops at.
type Log struct {
	flash   Flash
	header  Header
	dataSectors int

	writeSector int // index into the ring (0-based, not the raw flash sector)
	writeOffset int
}

// recordLenEnd is the length-field value (0xFFFF) that marks "no more
// records in this sector": an erased NOR-flash sector reads back as
// all-0xFF, so an un-written length field naturally reads as this
// sentinel without needing an explicit end marker to be written.
const recordLenEnd = 0xFFFF

// Format erases every sector and writes a fresh, empty header. It
// destroys any existing log; callers that want to preserve data should
// read it out first.
func Format(flash Flash) (*Log, error) {
	for i := 0; i < flash.SectorCount(); i++ {
		if err := flash.EraseSector(i); err != nil {
			return nil, err
		}
	}
	header := Header{Generation: 0, ActiveStart: 0}
	if err := flash.WriteSector(0, header.encode()); err != nil {
		return nil, err
	}
	return &Log{flash: flash, header: header, dataSectors: flash.SectorCount() - 1}, nil
}

// Open reads the header and replays every durable change in write
// order, positioning the log to append after the last valid record. If
// the header sector isn't formatted, Open formats it (a fresh device).
func Open(flash Flash) (*Log, []protocol.DeviceChange, error) {
	raw, err := flash.ReadSector(0)
	if err != nil {
		return nil, nil, err
	}
	header, err := decodeHeader(raw)
	if err != nil {
		log, ferr := Format(flash)
		if ferr != nil {
			return nil, nil, ferr
		}
		return log, nil, nil
	}

	l := &Log{flash: flash, header: header, dataSectors: flash.SectorCount() - 1}
	changes, err := l.replay()
	if err != nil {
		return nil, nil, err
	}
	return l, changes, nil
}

func (l *Log) dataFlashSector(ringIdx int) int {
	return 1 + ((l.header.ActiveStart + ringIdx) % l.dataSectors)
}

// replay walks the ring from ActiveStart, decoding records until it
// hits the end-of-written-data sentinel or a corrupt trailing record,
// and records the write cursor for subsequent Push calls.
func (l *Log) replay() ([]protocol.DeviceChange, error) {
	var out []protocol.DeviceChange
	for ringIdx := 0; ringIdx < l.dataSectors; ringIdx++ {
		sector, err := l.flash.ReadSector(l.dataFlashSector(ringIdx))
		if err != nil {
			return nil, err
		}
		offset := 0
		for {
			if offset+2 > len(sector) {
				break
			}
			n := binary.BigEndian.Uint16(sector[offset : offset+2])
			if n == recordLenEnd {
				l.writeSector, l.writeOffset = ringIdx, offset
				return out, nil
			}
			end := offset + 2 + int(n) + 4
			if end > len(sector) {
				// a torn write from a power loss mid-record; treat
				// this as the effective end of the log.
				l.writeSector, l.writeOffset = ringIdx, offset
				return out, nil
			}
			payload := sector[offset+2 : offset+2+int(n)]
			wantCRC := binary.BigEndian.Uint32(sector[offset+2+int(n) : end])
			if crc32.ChecksumIEEE(payload) != wantCRC {
				l.writeSector, l.writeOffset = ringIdx, offset
				return out, nil
			}
			var change protocol.DeviceChange
			if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&change); err != nil {
				return nil, fmt.Errorf("storage: decoding record: %w", err)
			}
			out = append(out, change)
			offset = end
		}
		l.writeSector, l.writeOffset = ringIdx+1, 0
	}
	// every sector was fully populated: ring is full, next Push must
	// compact before it can proceed.
	l.writeSector, l.writeOffset = l.dataSectors, 0
	return out, nil
}

// Push durably appends one change. It returns ErrRingFull if the ring
// has no room left for it, in which case the caller must Compact with
// a snapshot reflecting every change already applied.
func (l *Log) Push(change protocol.DeviceChange) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&change); err != nil {
		return fmt.Errorf("storage: encoding record: %w", err)
	}
	payload := buf.Bytes()
	if len(payload) > 0xFFFE {
		return fmt.Errorf("storage: record too large (%d bytes)", len(payload))
	}

	record := make([]byte, 2+len(payload)+4)
	binary.BigEndian.PutUint16(record[0:2], uint16(len(payload)))
	copy(record[2:2+len(payload)], payload)
	binary.BigEndian.PutUint32(record[2+len(payload):], crc32.ChecksumIEEE(payload))

	for {
		if l.writeSector >= l.dataSectors {
			return ErrRingFull
		}
		sector, err := l.flash.ReadSector(l.dataFlashSector(l.writeSector))
		if err != nil {
			return err
		}
		if l.writeOffset+len(record) > len(sector) {
			l.writeSector++
			l.writeOffset = 0
			if l.writeSector < l.dataSectors {
				if err := l.flash.EraseSector(l.dataFlashSector(l.writeSector)); err != nil {
					return err
				}
			}
			continue
		}
		copy(sector[l.writeOffset:l.writeOffset+len(record)], record)
		if err := l.flash.WriteSector(l.dataFlashSector(l.writeSector), sector); err != nil {
			return err
		}
		l.writeOffset += len(record)
		return nil
	}
}

// Compact rewrites the ring to hold exactly snapshot, the minimal set
// of changes needed to reconstruct current state, reclaiming every
// sector Push had filled with now-superseded history.
func (l *Log) Compact(snapshot []protocol.DeviceChange) error {
	for i := 0; i < l.dataSectors; i++ {
		if err := l.flash.EraseSector(1 + i); err != nil {
			return err
		}
	}
	l.header = Header{Generation: l.header.Generation + 1, ActiveStart: 0}
	l.writeSector, l.writeOffset = 0, 0
	if err := l.flash.WriteSector(0, l.header.encode()); err != nil {
		return err
	}
	for _, change := range snapshot {
		if err := l.Push(change); err != nil {
			return err
		}
	}
	return nil
}
