// Package persistence implements the snapshot/journal persistence layer
// (spec 4.H): versioned snapshots, an append-only event journal, schema
// migration, and replay verification. Storage is dgraph-io/badger/v3
// (the teacher's WorldStorage backend), values are gob-encoded and then
// zstd-compressed before the Badger write.
package persistence

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
)

const snapshotKey = "snapshot:latest"

// Store owns the Badger database backing both the snapshot and the
// journal (one DB, two key prefixes — mirrors the teacher's WorldStorage
// owning a single db for chunk deltas and entity deltas alike).
type Store struct {
	db      *badger.DB
	mu      sync.RWMutex
	isReady bool
}

// Open opens (or creates) the Badger database at dataPath/world.
func Open(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("persistence: open badger at %s: %w", dbPath, err)
	}
	return &Store{db: db, isReady: true}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isReady {
		return nil
	}
	s.isReady = false
	return s.db.Close()
}

// SaveSnapshot writes snap as the latest authoritative snapshot,
// stamping CurrentSchemaVersion (spec 6: a build only ever writes the
// version it understands).
func (s *Store) SaveSnapshot(snap Snapshot) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return fmt.Errorf("persistence: store closed: %w", kernelerr.ErrPersistenceIO)
	}

	snap.SchemaVersion = CurrentSchemaVersion
	data, err := encode(snap)
	if err != nil {
		return fmt.Errorf("persistence: encode snapshot: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", kernelerr.ErrPersistenceIO, err)
	}
	return nil
}

// LoadSnapshot reads the latest snapshot, migrating it forward if its
// schema_version predates CurrentSchemaVersion and refusing it if it is
// newer (spec 6). Returns (Snapshot{}, false, nil) if no snapshot has
// ever been written — callers treat that as a fresh world.
func (s *Store) LoadSnapshot() (Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return Snapshot{}, false, fmt.Errorf("persistence: store closed: %w", kernelerr.ErrPersistenceIO)
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", kernelerr.ErrPersistenceIO, err)
	}

	var snap Snapshot
	if err := decode(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("persistence: decode snapshot: %w", err)
	}

	migrated, err := migrate(snap)
	if err != nil {
		return Snapshot{}, false, err
	}
	return migrated, true, nil
}
