// Package chunklifecycle implements ensure_chunk_generated (spec 4.F):
// an idempotent controller that generates a chunk at most once even
// under concurrent same-tick callers, wires boundary reservations across
// the 26-neighbour set, and schedules runtime replenishment.
package chunklifecycle

import (
	"sync"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/chunkgen"
	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

// Controller owns the generator and the in-flight dedup map. One
// Controller per world.
type Controller struct {
	store     *worldmodel.Store
	generator *chunkgen.Generator
	cfg       worldconfig.AsteroidFragmentConfig

	// inflight deduplicates concurrent ensure_chunk_generated calls for
	// the same coordinate onto a single generation run, the same role the
	// teacher's double-checked bigChunk/chunk locking plays for
	// GetChunk — generalized here to sync.Map because callers are
	// transient goroutines rather than long-lived owners of a mutex.
	inflight sync.Map // geo.ChunkCoord -> *sync.WaitGroup
	mu       sync.Mutex
}

func NewController(store *worldmodel.Store, generator *chunkgen.Generator, cfg worldconfig.AsteroidFragmentConfig) *Controller {
	return &Controller{store: store, generator: generator, cfg: cfg}
}

// Result reports what ensure_chunk_generated actually did, for the caller
// to turn into a journal event.
type Result struct {
	AlreadyGenerated bool
	Skipped          bool
	SkipReason       string
	Seed             uint64
	FragmentCount    int
	BlockCount       int
}

// EnsureGenerated generates coord if it is still Unexplored, deduplicating
// concurrent callers for the same coordinate onto a single run (spec 4.F).
func (c *Controller) EnsureGenerated(coord geo.ChunkCoord, cause action.ChunkGenerationCause) Result {
	chunk := c.store.Chunk(coord)
	if chunk.State != chunkmodel.Unexplored {
		return Result{AlreadyGenerated: true, FragmentCount: len(chunk.Fragments)}
	}

	// Add(1) happens before the WaitGroup is published in inflight, so a
	// caller that loads it always waits for the running generation.
	wg := new(sync.WaitGroup)
	wg.Add(1)
	wgIface, loaded := c.inflight.LoadOrStore(coord, wg)

	if loaded {
		// Someone else is already generating this coordinate; wait for
		// them and reuse the result instead of generating twice.
		wgIface.(*sync.WaitGroup).Wait()
		chunk = c.store.Chunk(coord)
		return Result{AlreadyGenerated: chunk.State == chunkmodel.Generated, FragmentCount: len(chunk.Fragments)}
	}

	defer func() {
		wg.Done()
		c.inflight.Delete(coord)
	}()

	// Re-check under the controller-wide lock: the store-level Chunk()
	// call above is not itself a generation lock, so two goroutines could
	// both reach LoadOrStore before either stored. The mutex plus the
	// post-lock state re-check closes that window (same double-checked
	// pattern as the teacher's GetChunk, adapted to sync.Map ownership).
	c.mu.Lock()
	chunk = c.store.Chunk(coord)
	if chunk.State != chunkmodel.Unexplored {
		c.mu.Unlock()
		return Result{AlreadyGenerated: true, FragmentCount: len(chunk.Fragments)}
	}

	reservations := c.store.ConsumeReservations(coord)
	neighbourViews := c.store.NeighbourFragmentViews(coord)
	genNeighbours := make([]chunkgen.NeighbourView, 0, len(neighbourViews))
	for _, n := range neighbourViews {
		genNeighbours = append(genNeighbours, chunkgen.NeighbourView{Coord: n.Coord, Fragments: n.Fragments})
	}

	result, err := c.generator.Generate(coord, reservations, genNeighbours)
	if err != nil {
		c.mu.Unlock()
		return Result{Skipped: true, SkipReason: "budget_exceeded"}
	}

	c.store.StoreGeneratedChunk(coord, result.Seed, result.Fragments, result.Budget)
	for _, w := range result.BoundaryWrites {
		c.store.AddBoundaryReservation(w.NeighbourCoord, w.Reservation)
	}
	c.mu.Unlock()

	blockCount := 0
	for _, f := range result.Fragments {
		blockCount += len(f.Blocks)
	}

	return Result{
		Seed:          result.Seed,
		FragmentCount: len(result.Fragments),
		BlockCount:    blockCount,
	}
}

// MaybeReplenish implements the runtime replenishment rule (spec 4.D):
// if tick % replenish_interval_ticks == 0 and a Generated, non-Exhausted
// chunk holds fewer than max_fragments_per_chunk fragments, add
// ceil(max * replenish_percent_ppm / 1e6) (minimum 1) new fragments
// deterministically.
//
// replenish_interval_ticks == 0 disables replenishment entirely (spec 8
// boundary behavior). Exhausted chunks are never replenished (spec 9 open
// question, preserved as source behavior).
func (c *Controller) MaybeReplenish(coord geo.ChunkCoord, tick uint64) (added int, ran bool) {
	if c.cfg.ReplenishIntervalTicks == 0 {
		return 0, false
	}
	if tick%c.cfg.ReplenishIntervalTicks != 0 {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	chunk := c.store.Chunk(coord)
	if chunk.State != chunkmodel.Generated {
		return 0, false
	}
	if len(chunk.Fragments) >= c.cfg.MaxFragmentsPerChunk {
		return 0, false
	}

	want := ceilDiv(int64(c.cfg.MaxFragmentsPerChunk)*c.cfg.ReplenishPercentPpm, 1_000_000)
	if want < 1 {
		want = 1
	}
	budget := c.cfg.MaxFragmentsPerChunk - len(chunk.Fragments)
	if int64(budget) < want {
		want = int64(budget)
	}
	if want <= 0 {
		return 0, false
	}

	neighbourViews := c.store.NeighbourFragmentViews(coord)
	genNeighbours := make([]chunkgen.NeighbourView, 0, len(neighbourViews))
	for _, n := range neighbourViews {
		genNeighbours = append(genNeighbours, chunkgen.NeighbourView{Coord: n.Coord, Fragments: n.Fragments})
	}

	newFragments := c.generator.Replenish(coord, chunk.Fragments, genNeighbours, int(want), chunk.Seed, tick)
	if len(newFragments) == 0 {
		return 0, false
	}

	allFragments := append(chunk.Fragments, newFragments...)
	budgetTotal := chunkmodel.NewResourceBudget()
	for _, f := range allFragments {
		for _, el := range f.Budget.Elements() {
			budgetTotal.AddTotal(el, f.Budget.TotalByElement[el])
		}
	}
	for _, el := range chunk.Budget.Elements() {
		rem := chunk.Budget.RemainingByElement[el]
		tot := chunk.Budget.TotalByElement[el]
		consumed := tot - rem
		if consumed > 0 {
			budgetTotal.Deplete(el, consumed)
		}
	}

	c.store.StoreGeneratedChunk(coord, chunk.Seed, allFragments, budgetTotal)
	return len(newFragments), true
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
