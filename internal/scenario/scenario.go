// Package scenario declares and bootstraps a world (spec: "Scenario
// bootstrap"). A Scenario is the declarative input; Bootstrap drives a
// fresh worldmodel.Store and chunklifecycle.Controller through the
// fixed order seed_positions -> bootstrap_chunks -> agent_spawn so that
// a given (world_seed, scenario) pair always produces the same initial
// world (spec: "Determinism").
package scenario

import (
	"fmt"
	"math/rand"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/chunkgen"
	"github.com/kestrel-sim/worldkernel/internal/chunklifecycle"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/logging"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

// LocationGenerator declares how many locations to seed and how to name
// them.
type LocationGenerator struct {
	Count      int
	IDPrefix   string
	NamePrefix string
}

// Agents declares how many agents to spawn, each assigned a location
// from the seeded set by a seed-derived deterministic sequence.
type Agents struct {
	Count int
}

// FacilitySeed is an optional explicit factory/power facility placed at
// bootstrap, bypassing the normal BuildFactory/RegisterPowerPlant action
// path — used to hand a scenario a pre-built economy to exercise rather
// than have every run start from bare rock.
type FacilitySeed struct {
	ID         string
	Kind       string
	LocationID string
}

// Scenario is the declarative bootstrap input (spec: "A scenario
// declares seed, location_generator, agents, asteroid_fragment
// bootstrap_chunks, and optional explicit facility seeds").
type Scenario struct {
	Seed            uint64
	LocationGen     LocationGenerator
	Agents          Agents
	BootstrapChunks []geo.ChunkCoord
	FacilitySeeds   []FacilitySeed
	WorldConfig     worldconfig.WorldConfig
}

// Result is everything a caller needs to start running ticks after
// bootstrap: the populated store, chunk controller, and the events
// bootstrap itself generated (so the journal's first tick isn't silently
// empty — the chunk-generation events are replay-significant).
type Result struct {
	Store        *worldmodel.Store
	ChunkCtrl    *chunklifecycle.Controller
	ChunkRuntime ChunkRuntime
	Events       []action.Event
	LocationIDs  []string
	AgentIDs     []string
}

// ChunkRuntime mirrors the world seed of persistence.ChunkRuntime
// without importing persistence; callers adapt it at the boundary.
type ChunkRuntime struct {
	WorldSeed uint64
}

// Bootstrap builds a fresh world from s in the fixed order
// seed_positions -> bootstrap_chunks -> agent_spawn (spec: "Scenario
// bootstrap").
func Bootstrap(s Scenario) (Result, error) {
	cfg := s.WorldConfig
	store := worldmodel.New(geo.Pos{X: cfg.Space.ExtentXCm, Y: cfg.Space.ExtentYCm, Z: cfg.Space.ExtentZCm})
	generator := chunkgen.New(s.Seed, cfg.AsteroidFragment)
	ctrl := chunklifecycle.NewController(store, generator, cfg.AsteroidFragment)

	rng := rand.New(rand.NewSource(int64(s.Seed)))

	locationIDs, err := seedPositions(store, s.LocationGen, cfg, rng)
	if err != nil {
		return Result{}, err
	}

	var events []action.Event
	for _, coord := range s.BootstrapChunks {
		res := ctrl.EnsureGenerated(coord, action.CauseInit)
		if res.Skipped {
			return Result{}, fmt.Errorf("scenario: bootstrap chunk %+v skipped: %s", coord, res.SkipReason)
		}
		if !res.AlreadyGenerated {
			events = append(events, action.Event{
				Kind: action.EvChunkGenerated, ChunkCoord: coord, ChunkSeed: res.Seed,
				FragmentCount: res.FragmentCount, BlockCount: res.BlockCount, Cause: action.CauseInit,
			})
			logging.LogInfo("scenario: bootstrapped chunk %+v with %d fragments", coord, res.FragmentCount)
		}
	}

	agentIDs, err := spawnAgents(store, s.Agents, locationIDs, rng)
	if err != nil {
		return Result{}, err
	}

	for _, fs := range s.FacilitySeeds {
		if err := store.RegisterFactory(&worldmodel.Factory{ID: fs.ID, Kind: fs.Kind, LocationID: fs.LocationID}); err != nil {
			return Result{}, fmt.Errorf("scenario: facility seed %q: %w", fs.ID, err)
		}
	}

	return Result{
		Store:        store,
		ChunkCtrl:    ctrl,
		ChunkRuntime: ChunkRuntime{WorldSeed: s.Seed},
		Events:       events,
		LocationIDs:  locationIDs,
		AgentIDs:     agentIDs,
	}, nil
}

// seedPositions places LocationGen.Count locations at deterministic,
// seed-derived positions spread across the configured space (spec:
// "Bootstrap order: seed_positions -> bootstrap_chunks -> agent_spawn").
func seedPositions(store *worldmodel.Store, gen LocationGenerator, cfg worldconfig.WorldConfig, rng *rand.Rand) ([]string, error) {
	ids := make([]string, 0, gen.Count)
	for i := 0; i < gen.Count; i++ {
		id := fmt.Sprintf("%s%d", gen.IDPrefix, i)
		pos := geo.Pos{
			X: rng.Int63n(cfg.Space.ExtentXCm),
			Y: rng.Int63n(cfg.Space.ExtentYCm),
			Z: rng.Int63n(cfg.Space.ExtentZCm),
		}
		loc := &worldmodel.Location{
			ID:   id,
			Name: fmt.Sprintf("%s%d", gen.NamePrefix, i),
			Pos:  pos,
		}
		if err := store.RegisterLocation(loc); err != nil {
			return nil, fmt.Errorf("scenario: seed_positions location %q: %w", id, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// spawnAgents assigns each new agent a location chosen by the same
// deterministic rng the position seeding already advanced, so the whole
// bootstrap is one reproducible draw from (world_seed, scenario).
func spawnAgents(store *worldmodel.Store, a Agents, locationIDs []string, rng *rand.Rand) ([]string, error) {
	if a.Count > 0 && len(locationIDs) == 0 {
		return nil, fmt.Errorf("scenario: agent_spawn requires at least one seeded location")
	}
	ids := make([]string, 0, a.Count)
	for i := 0; i < a.Count; i++ {
		id := fmt.Sprintf("agent-%d", i)
		locID := locationIDs[rng.Intn(len(locationIDs))]
		agent := &worldmodel.Agent{ID: id, LocationID: locID, Resources: map[resourcemodel.Kind]int64{}}
		if err := store.RegisterAgent(agent); err != nil {
			return nil, fmt.Errorf("scenario: agent_spawn %q: %w", id, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
