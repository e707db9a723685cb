package stream

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
)

// Spool persists session chunks on disk so accumulation is not bounded by
// process memory. Keys are session-prefixed with a zero-padded sequence
// number, which makes badger's lexicographic iteration the chunk order.
type Spool struct {
	db *badger.DB
}

func OpenSpool(path string) (*Spool, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(path, "chunks"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open spool database: %w", err)
	}
	return &Spool{db: db}, nil
}

func chunkKey(sessionID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", sessionID, seq))
}

func sessionPrefix(sessionID string) []byte {
	return []byte(sessionID + "/")
}

// Put stores one chunk under its sequence slot.
func (s *Spool) Put(sessionID string, seq int, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(sessionID, seq), data)
	})
}

// ReadAll returns every chunk of a session in upload order.
func (s *Spool) ReadAll(sessionID string) ([][]byte, error) {
	var chunks [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionPrefix(sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			chunks = append(chunks, data)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read spooled chunks: %w", err)
	}
	return chunks, nil
}

// Purge drops every chunk belonging to a session.
func (s *Spool) Purge(sessionID string) error {
	return s.db.DropPrefix(sessionPrefix(sessionID))
}

func (s *Spool) Close() error {
	return s.db.Close()
}
