package persistence

import (
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
)

const journalPrefix = "journal:"

// journalKey zero-pads tick and seq so Badger's lexicographic key
// iteration order equals (tick, seq) numeric order (spec 4.H: "events
// are applied in (tick, seq) order").
func journalKey(tick, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", journalPrefix, tick, seq))
}

// Append writes one journal record (spec 7: a PersistenceIO failure here
// is fatal and must abort the tick rather than continue with an
// inconsistent journal). Append satisfies kernel.JournalWriter
// structurally; the kernel package never imports persistence.
func (s *Store) Append(ev action.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return fmt.Errorf("persistence: store closed: %w", kernelerr.ErrPersistenceIO)
	}

	data, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("persistence: encode event: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(journalKey(ev.Tick, ev.Seq), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", kernelerr.ErrPersistenceIO, err)
	}
	return nil
}

// ReplayFrom returns every journal event with tick >= fromTick, in
// (tick, seq) order — the tail a replay walks after loading the
// snapshot it was taken alongside.
func (s *Store) ReplayFrom(fromTick uint64) ([]action.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return nil, fmt.Errorf("persistence: store closed: %w", kernelerr.ErrPersistenceIO)
	}

	var events []action.Event
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(journalPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		start := journalKey(fromTick, 0)
		for it.Seek(start); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				ev, err := decodeEvent(val)
				if err != nil {
					return err
				}
				events = append(events, ev)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kernelerr.ErrPersistenceIO, err)
	}
	return events, nil
}
