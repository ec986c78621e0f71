package readmodel

import (
	"context"
	"fmt"
	"sync"

	"github.com/kestrel-sim/worldkernel/internal/geo"
)

// MemoryLocationRepo implements LocationRepo in process memory. It is
// the default when no external read-model backend is configured, and
// the only backend guaranteed usable in tests.
type MemoryLocationRepo struct {
	mu   sync.RWMutex
	data map[string]geo.Pos
}

func NewMemoryLocationRepo() *MemoryLocationRepo {
	return &MemoryLocationRepo{data: make(map[string]geo.Pos)}
}

func (r *MemoryLocationRepo) Put(ctx context.Context, agentID string, pos geo.Pos) error {
	if agentID == "" {
		return fmt.Errorf("readmodel: empty agent id")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[agentID] = pos
	return nil
}

func (r *MemoryLocationRepo) Get(ctx context.Context, agentID string) (geo.Pos, bool, error) {
	select {
	case <-ctx.Done():
		return geo.Pos{}, false, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.data[agentID]
	return pos, ok, nil
}

func (r *MemoryLocationRepo) Delete(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, agentID)
	return nil
}

func (r *MemoryLocationRepo) BatchPut(ctx context.Context, positions map[string]geo.Pos) error {
	if len(positions) == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, pos := range positions {
		r.data[id] = pos
	}
	return nil
}

// Count returns the number of agents with a recorded position.
func (r *MemoryLocationRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
