package chunklifecycle

import (
	"sync"
	"testing"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/chunkgen"
	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

func testStore() *worldmodel.Store {
	cfg := worldconfig.Default()
	return worldmodel.New(geo.Pos{X: cfg.Space.ExtentXCm, Y: cfg.Space.ExtentYCm, Z: cfg.Space.ExtentZCm})
}

func TestEnsureGeneratedGeneratesOnce(t *testing.T) {
	cfg := worldconfig.Default()
	store := testStore()
	gen := chunkgen.New(1, cfg.AsteroidFragment)
	ctrl := NewController(store, gen, cfg.AsteroidFragment)

	coord := geo.ChunkCoord{X: 0, Y: 0, Z: 0}
	r1 := ctrl.EnsureGenerated(coord, action.CauseInit)
	if r1.AlreadyGenerated || r1.Skipped {
		t.Fatalf("expected a fresh generation, got %+v", r1)
	}
	if r1.FragmentCount == 0 {
		t.Fatal("expected at least one fragment")
	}

	r2 := ctrl.EnsureGenerated(coord, action.CauseObserve)
	if !r2.AlreadyGenerated {
		t.Fatal("second call should observe AlreadyGenerated")
	}
}

func TestEnsureGeneratedConcurrentCallersDedup(t *testing.T) {
	cfg := worldconfig.Default()
	store := testStore()
	gen := chunkgen.New(2, cfg.AsteroidFragment)
	ctrl := NewController(store, gen, cfg.AsteroidFragment)
	coord := geo.ChunkCoord{X: 3, Y: 3, Z: 0}

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = ctrl.EnsureGenerated(coord, action.CauseAction)
		}(i)
	}
	wg.Wait()

	generatedCount := 0
	for _, r := range results {
		if !r.AlreadyGenerated && !r.Skipped {
			generatedCount++
		}
	}
	if generatedCount != 1 {
		t.Fatalf("expected exactly one goroutine to run generation, got %d", generatedCount)
	}

	chunk := store.Chunk(coord)
	if chunk.State != chunkmodel.Generated {
		t.Fatal("chunk should end up Generated")
	}
}

func TestReplenishDisabledWhenIntervalZero(t *testing.T) {
	cfg := worldconfig.Default()
	cfg.AsteroidFragment.ReplenishIntervalTicks = 0
	store := testStore()
	gen := chunkgen.New(3, cfg.AsteroidFragment)
	ctrl := NewController(store, gen, cfg.AsteroidFragment)
	coord := geo.ChunkCoord{X: 0, Y: 0, Z: 0}
	ctrl.EnsureGenerated(coord, action.CauseInit)

	_, ran := ctrl.MaybeReplenish(coord, 600)
	if ran {
		t.Fatal("replenish must be disabled when interval is 0")
	}
}

func TestReplenishAddsFragmentsUpToMax(t *testing.T) {
	cfg := worldconfig.Default()
	cfg.AsteroidFragment.MinFragmentsPerChunk = 2
	cfg.AsteroidFragment.MaxFragmentsPerChunk = 4
	cfg.AsteroidFragment.ReplenishIntervalTicks = 10
	cfg.AsteroidFragment.ReplenishPercentPpm = 1_000_000 // 100% of max per replenishment, capped by headroom
	store := testStore()
	gen := chunkgen.New(4, cfg.AsteroidFragment)
	ctrl := NewController(store, gen, cfg.AsteroidFragment)
	coord := geo.ChunkCoord{X: 0, Y: 0, Z: 0}
	ctrl.EnsureGenerated(coord, action.CauseInit)

	before := len(store.Chunk(coord).Fragments)
	added, ran := ctrl.MaybeReplenish(coord, 10)
	if !ran {
		t.Fatal("expected replenish to run at tick 10")
	}
	after := len(store.Chunk(coord).Fragments)
	if after != before+added {
		t.Fatalf("fragment count mismatch: before=%d added=%d after=%d", before, added, after)
	}
	if after > cfg.AsteroidFragment.MaxFragmentsPerChunk {
		t.Fatalf("replenish exceeded MaxFragmentsPerChunk: %d", after)
	}
}
