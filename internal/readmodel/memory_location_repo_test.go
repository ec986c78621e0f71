package readmodel

import (
	"context"
	"testing"
	"time"

	"github.com/kestrel-sim/worldkernel/internal/geo"
)

func TestMemoryLocationRepoPutAndGet(t *testing.T) {
	repo := NewMemoryLocationRepo()
	ctx := context.Background()

	pos := geo.Pos{X: 10, Y: 20, Z: 1}
	if err := repo.Put(ctx, "agent-1", pos); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := repo.Get(ctx, "agent-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected position to be found")
	}
	if got != pos {
		t.Fatalf("got %+v, want %+v", got, pos)
	}
}

func TestMemoryLocationRepoGetMissing(t *testing.T) {
	repo := NewMemoryLocationRepo()
	_, ok, err := repo.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected no position for an agent never put")
	}
}

func TestMemoryLocationRepoOverwrite(t *testing.T) {
	repo := NewMemoryLocationRepo()
	ctx := context.Background()

	_ = repo.Put(ctx, "agent-1", geo.Pos{X: 1, Y: 1, Z: 1})
	_ = repo.Put(ctx, "agent-1", geo.Pos{X: 2, Y: 2, Z: 2})

	got, _, _ := repo.Get(ctx, "agent-1")
	if got != (geo.Pos{X: 2, Y: 2, Z: 2}) {
		t.Fatalf("expected second put to win, got %+v", got)
	}
}

func TestMemoryLocationRepoDelete(t *testing.T) {
	repo := NewMemoryLocationRepo()
	ctx := context.Background()

	_ = repo.Put(ctx, "agent-1", geo.Pos{X: 1, Y: 1, Z: 1})
	if err := repo.Delete(ctx, "agent-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := repo.Get(ctx, "agent-1"); ok {
		t.Fatal("expected position to be gone after delete")
	}
}

func TestMemoryLocationRepoBatchPut(t *testing.T) {
	repo := NewMemoryLocationRepo()
	ctx := context.Background()

	batch := map[string]geo.Pos{
		"agent-1": {X: 1, Y: 1, Z: 1},
		"agent-2": {X: 2, Y: 2, Z: 1},
		"agent-3": {X: 3, Y: 3, Z: 1},
	}
	if err := repo.BatchPut(ctx, batch); err != nil {
		t.Fatalf("batch put: %v", err)
	}
	for id, want := range batch {
		got, ok, _ := repo.Get(ctx, id)
		if !ok || got != want {
			t.Fatalf("agent %s: got %+v ok=%v, want %+v", id, got, ok, want)
		}
	}
	if repo.Count() != len(batch) {
		t.Fatalf("count = %d, want %d", repo.Count(), len(batch))
	}
}

func TestMemoryLocationRepoRejectsEmptyAgentID(t *testing.T) {
	repo := NewMemoryLocationRepo()
	if err := repo.Put(context.Background(), "", geo.Pos{}); err == nil {
		t.Fatal("expected an error for an empty agent id")
	}
}

func TestMemoryLocationRepoContextCancellation(t *testing.T) {
	repo := NewMemoryLocationRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := repo.Put(ctx, "agent-1", geo.Pos{}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryLocationRepoConcurrentAccess(t *testing.T) {
	repo := NewMemoryLocationRepo()
	ctx := context.Background()

	const goroutines = 10
	const perGoroutine = 50
	done := make(chan struct{}, goroutines)

	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perGoroutine; i++ {
				id := agentIDFor(g, i)
				pos := geo.Pos{X: int64(g), Y: int64(i), Z: 1}
				_ = repo.Put(ctx, id, pos)
				if got, ok, _ := repo.Get(ctx, id); !ok || got != pos {
					t.Errorf("goroutine %d: mismatch at %d", g, i)
					return
				}
			}
		}(g)
	}

	for g := 0; g < goroutines; g++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for goroutines")
		}
	}

	if repo.Count() != goroutines*perGoroutine {
		t.Fatalf("count = %d, want %d", repo.Count(), goroutines*perGoroutine)
	}
}

func agentIDFor(g, i int) string {
	return string(rune('a'+g)) + "-" + string(rune('0'+i%10)) + "-" + string(rune('A'+i/10))
}
