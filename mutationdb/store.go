package mutationdb

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/frostsnap/frostsnap/protocol"
)

var mutationsBucket = []byte("mutations")

// Store is a bbolt-backed, append-only log of protocol.Mutation values,
// the coordinator.MutationSink used outside of tests.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a mutation log at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("mutationdb: opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(mutationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists m as the next record in sequence. It satisfies
// coordinator.MutationSink.
func (s *Store) Append(m protocol.Mutation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(mutationsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), encodeMutation(m))
	})
}

// ReadAll returns every persisted mutation in append order, for
// handing to coordinator.Coordinator.Replay at startup.
func (s *Store) ReadAll() ([]protocol.Mutation, error) {
	var out []protocol.Mutation
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(mutationsBucket)
		return b.ForEach(func(k, v []byte) error {
			m, err := decodeMutation(v)
			if err != nil {
				return fmt.Errorf("mutationdb: decoding record at key %x: %w", k, err)
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		key[i] = byte(seq)
		seq >>= 8
	}
	return key
}
