// Package mutationdb is the coordinator's durable mutation log: every
// protocol.Mutation the coordinator engine emits is appended, in order,
// to a bbolt bucket keyed by a monotonic sequence number, and replayed
// in full at startup via Store.ReadAll into coordinator.Coordinator's
// Replay method.
//
// The on-disk record format is a fixed, hand-written binary layout
// rather than a self-describing codec (gob, JSON): adding a Mutation
// variant must only ever append, never renumber, and a self-describing
// format would silently tolerate a field reordering that a test vector
// pinned to exact bytes is meant to catch.
package mutationdb

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/frostsnap/frostsnap/protocol"
)

func encodeMutation(m protocol.Mutation) []byte {
	buf := []byte{m.Kind()}
	switch mu := m.(type) {
	case protocol.KeygenMutation:
		buf = append(buf, encodeKeygenMutation(mu)...)
	case protocol.SigningMutation:
		buf = append(buf, encodeSigningMutation(mu)...)
	case protocol.RestorationMutation:
		buf = append(buf, encodeRestorationMutation(mu)...)
	default:
		panic(fmt.Sprintf("mutationdb: unrecognized mutation type %T", m))
	}
	return buf
}

func decodeMutation(raw []byte) (protocol.Mutation, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("mutationdb: empty record")
	}
	switch raw[0] {
	case protocol.MutationKindKeygen:
		return decodeKeygenMutation(raw[1:])
	case protocol.MutationKindSigning:
		return decodeSigningMutation(raw[1:])
	case protocol.MutationKindRestoration:
		return decodeRestorationMutation(raw[1:])
	default:
		return nil, fmt.Errorf("mutationdb: unrecognized mutation kind %d", raw[0])
	}
}

func putU16(buf []byte, v int) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return append(buf, b[:]...)
}

func takeU16(raw []byte) (int, []byte, error) {
	if len(raw) < 2 {
		return 0, nil, fmt.Errorf("mutationdb: truncated length field")
	}
	return int(binary.BigEndian.Uint16(raw[:2])), raw[2:], nil
}

func take(raw []byte, n int) ([]byte, []byte, error) {
	if len(raw) < n {
		return nil, nil, fmt.Errorf("mutationdb: truncated record, want %d bytes, have %d", n, len(raw))
	}
	return raw[:n], raw[n:], nil
}

func encodeSharedKey(k protocol.SharedKey) []byte {
	buf := putU16(nil, len(k.Commitments))
	for _, c := range k.Commitments {
		buf = append(buf, c.SerializeCompressed()...)
	}
	return buf
}

func decodeSharedKey(raw []byte) (protocol.SharedKey, []byte, error) {
	n, raw, err := takeU16(raw)
	if err != nil {
		return protocol.SharedKey{}, nil, err
	}
	commitments := make([]*btcec.PublicKey, n)
	for i := 0; i < n; i++ {
		var pb []byte
		pb, raw, err = take(raw, 33)
		if err != nil {
			return protocol.SharedKey{}, nil, err
		}
		p, err := btcec.ParsePubKey(pb)
		if err != nil {
			return protocol.SharedKey{}, nil, err
		}
		commitments[i] = p
	}
	return protocol.SharedKey{Commitments: commitments}, raw, nil
}

func encodeDeviceToShareIndex(m map[protocol.DeviceId]protocol.ShareIndex) []byte {
	buf := putU16(nil, len(m))
	for d, idx := range m {
		buf = append(buf, d[:]...)
		buf = append(buf, idx[:]...)
	}
	return buf
}

func decodeDeviceToShareIndex(raw []byte) (map[protocol.DeviceId]protocol.ShareIndex, []byte, error) {
	n, raw, err := takeU16(raw)
	if err != nil {
		return nil, nil, err
	}
	out := make(map[protocol.DeviceId]protocol.ShareIndex, n)
	for i := 0; i < n; i++ {
		var didBytes, idxBytes []byte
		didBytes, raw, err = take(raw, 33)
		if err != nil {
			return nil, nil, err
		}
		idxBytes, raw, err = take(raw, 32)
		if err != nil {
			return nil, nil, err
		}
		var d protocol.DeviceId
		var idx protocol.ShareIndex
		copy(d[:], didBytes)
		copy(idx[:], idxBytes)
		out[d] = idx
	}
	return out, raw, nil
}

func encodeKeygenMutation(mu protocol.KeygenMutation) []byte {
	var buf []byte
	buf = append(buf, mu.KeyId[:]...)
	buf = append(buf, mu.AccessStructureId[:]...)
	buf = append(buf, byte(mu.Kind))
	buf = append(buf, byte(mu.Purpose))
	buf = append(buf, encodeDeviceToShareIndex(mu.DeviceToShareIndex)...)
	buf = append(buf, encodeSharedKey(mu.SharedKey)...)
	return buf
}

func decodeKeygenMutation(raw []byte) (protocol.KeygenMutation, error) {
	var mu protocol.KeygenMutation
	var field []byte
	var err error

	field, raw, err = take(raw, 32)
	if err != nil {
		return mu, err
	}
	copy(mu.KeyId[:], field)

	field, raw, err = take(raw, 16)
	if err != nil {
		return mu, err
	}
	copy(mu.AccessStructureId[:], field)

	field, raw, err = take(raw, 1)
	if err != nil {
		return mu, err
	}
	mu.Kind = protocol.AccessStructureKind(field[0])

	field, raw, err = take(raw, 1)
	if err != nil {
		return mu, err
	}
	mu.Purpose = protocol.KeyPurpose(field[0])

	mu.DeviceToShareIndex, raw, err = decodeDeviceToShareIndex(raw)
	if err != nil {
		return mu, err
	}

	mu.SharedKey, _, err = decodeSharedKey(raw)
	if err != nil {
		return mu, err
	}
	return mu, nil
}

func encodeSigningMutation(mu protocol.SigningMutation) []byte {
	var buf []byte
	buf = append(buf, mu.SessionId[:]...)
	buf = append(buf, byte(mu.NewState))
	buf = putU16(buf, len(mu.Signatures))
	for _, sig := range mu.Signatures {
		buf = append(buf, sig[:]...)
	}
	return buf
}

func decodeSigningMutation(raw []byte) (protocol.SigningMutation, error) {
	var mu protocol.SigningMutation
	var field []byte
	var err error

	field, raw, err = take(raw, 32)
	if err != nil {
		return mu, err
	}
	copy(mu.SessionId[:], field)

	field, raw, err = take(raw, 1)
	if err != nil {
		return mu, err
	}
	mu.NewState = protocol.SignSessionState(field[0])

	n, raw, err := takeU16(raw)
	if err != nil {
		return mu, err
	}
	if n > 0 {
		mu.Signatures = make([][64]byte, n)
	}
	for i := 0; i < n; i++ {
		field, raw, err = take(raw, 64)
		if err != nil {
			return mu, err
		}
		copy(mu.Signatures[i][:], field)
	}
	return mu, nil
}

func encodeRestorationMutation(mu protocol.RestorationMutation) []byte {
	var buf []byte
	buf = append(buf, mu.RestorationId[:]...)
	buf = append(buf, byte(mu.NewState))

	if mu.AddedShare == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		s := mu.AddedShare
		buf = append(buf, s.DeviceId[:]...)
		buf = append(buf, s.ShareImage.Index[:]...)
		buf = append(buf, s.ShareImage.Point.SerializeCompressed()...)
		if s.ThresholdIfKnown == nil {
			buf = append(buf, 0)
		} else {
			buf = append(buf, 1)
			var t [4]byte
			binary.BigEndian.PutUint32(t[:], uint32(*s.ThresholdIfKnown))
			buf = append(buf, t[:]...)
		}
	}

	if mu.Finished == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = append(buf, encodeKeygenMutation(*mu.Finished)...)
	}
	return buf
}

func decodeRestorationMutation(raw []byte) (protocol.RestorationMutation, error) {
	var mu protocol.RestorationMutation
	var field []byte
	var err error

	field, raw, err = take(raw, 32)
	if err != nil {
		return mu, err
	}
	copy(mu.RestorationId[:], field)

	field, raw, err = take(raw, 1)
	if err != nil {
		return mu, err
	}
	mu.NewState = protocol.RestorationState(field[0])

	field, raw, err = take(raw, 1)
	if err != nil {
		return mu, err
	}
	if field[0] == 1 {
		var s protocol.RestorationShare
		field, raw, err = take(raw, 33)
		if err != nil {
			return mu, err
		}
		copy(s.DeviceId[:], field)

		field, raw, err = take(raw, 32)
		if err != nil {
			return mu, err
		}
		copy(s.ShareImage.Index[:], field)

		field, raw, err = take(raw, 33)
		if err != nil {
			return mu, err
		}
		s.ShareImage.Point, err = btcec.ParsePubKey(field)
		if err != nil {
			return mu, err
		}

		field, raw, err = take(raw, 1)
		if err != nil {
			return mu, err
		}
		if field[0] == 1 {
			field, raw, err = take(raw, 4)
			if err != nil {
				return mu, err
			}
			t := int(binary.BigEndian.Uint32(field))
			s.ThresholdIfKnown = &t
		}
		mu.AddedShare = &s
	}

	field, raw, err = take(raw, 1)
	if err != nil {
		return mu, err
	}
	if field[0] == 1 {
		finished, err := decodeKeygenMutation(raw)
		if err != nil {
			return mu, err
		}
		mu.Finished = &finished
	}
	return mu, nil
}
