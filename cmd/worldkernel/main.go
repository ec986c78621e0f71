package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrel-sim/worldkernel/internal/chunkgen"
	"github.com/kestrel-sim/worldkernel/internal/chunklifecycle"
	"github.com/kestrel-sim/worldkernel/internal/config"
	"github.com/kestrel-sim/worldkernel/internal/eventbus"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/kernel"
	"github.com/kestrel-sim/worldkernel/internal/logging"
	"github.com/kestrel-sim/worldkernel/internal/observability"
	"github.com/kestrel-sim/worldkernel/internal/persistence"
	"github.com/kestrel-sim/worldkernel/internal/readmodel"
	"github.com/kestrel-sim/worldkernel/internal/rules"
	"github.com/kestrel-sim/worldkernel/internal/runner"
	"github.com/kestrel-sim/worldkernel/internal/scenario"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

func main() {
	logging.LogInfo("worldkernel: starting")

	cfg, err := config.Load("")
	if err != nil {
		logging.LogWarn("worldkernel: could not load config, using defaults: %v", err)
		cfg = &config.RuntimeConfig{}
	}

	persist, err := persistence.Open(cfg.Persistence.GetDataPath())
	if err != nil {
		logging.LogError("worldkernel: open persistence: %v", err)
		os.Exit(1)
	}
	defer persist.Close()

	store, chunkCtrl, chunkRuntime, wcfg, err := loadOrBootstrap(persist)
	if err != nil {
		logging.LogError("worldkernel: world init: %v", err)
		os.Exit(1)
	}

	bus := newEventBus(cfg.EventBus)
	eventbus.Init(bus)
	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.LogWarn("worldkernel: logging listener: %v", err)
	}
	busMetrics := eventbus.NewMetricsExporter(bus)
	busMetrics.StartHTTP(fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()))

	locations := newLocationRepo(cfg.ReadModel)

	var sampler runner.LoadSampler
	loadSampler, err := observability.NewLoadSampler(1 * time.Second)
	if err != nil {
		logging.LogWarn("worldkernel: load sampler unavailable: %v", err)
	} else {
		sampler = loadSampler
	}
	tickMetrics := observability.NewTickMetrics()

	var archive *persistence.ArchiveSink
	if cfg.Persistence.MongoURI != "" {
		archive, err = persistence.NewArchiveSink(persistence.ArchiveConfig{
			URI: cfg.Persistence.MongoURI, Database: cfg.Persistence.MongoDatabase,
		})
		if err != nil {
			logging.LogWarn("worldkernel: archive sink unavailable: %v", err)
			archive = nil
		} else {
			defer archive.Close()
		}
	}

	ruleEngine := rules.NewEngine()
	if evaluator, closeFn := newEvaluator(cfg.Evaluator); evaluator != nil {
		ruleEngine.SetEvaluator(evaluator)
		if closeFn != nil {
			defer closeFn()
		}
	}
	k := kernel.New(store, chunkCtrl, ruleEngine, wcfg, persist, 4096)

	r := runner.New(runner.Options{
		TickInterval:       100 * time.Millisecond,
		SnapshotEveryTick:  cfg.Persistence.SnapshotEveryTick,
		OverloadCPUPercent: 90,
		Kernel:             k,
		Store:              store,
		ChunkCtrl:          chunkCtrl,
		Persist:            persist,
		WorldConfig:        wcfg,
		ChunkRuntime:       chunkRuntime,
		Bus:                bus,
		Locations:          locations,
		Metrics:            tickMetrics,
		Sampler:            sampler,
		Archive:            archive,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	logging.LogInfo("worldkernel: tick loop running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.LogInfo("worldkernel: received %v, shutting down", sig)

	cancel()
	r.Stop()
	if loadSampler != nil {
		loadSampler.Close()
	}
	busMetrics.Stop()

	if err := persist.SaveSnapshot(persistence.Snapshot{
		ChunkGenerationSchemaVersion: 1,
		WorldConfig:                  wcfg,
		ChunkRuntime:                 chunkRuntime,
		Tick:                         k.CurrentTick(),
		World:                        store.ExportSnapshot(),
	}); err != nil {
		logging.LogError("worldkernel: final snapshot save: %v", err)
	}

	logging.LogInfo("worldkernel: stopped")
}

// loadOrBootstrap loads the latest snapshot plus journal tail if one
// exists, replaying it through persistence.Replay; otherwise it runs the
// default scenario bootstrap fresh (spec: "Scenario bootstrap").
func loadOrBootstrap(persist *persistence.Store) (*worldmodel.Store, *chunklifecycle.Controller, persistence.ChunkRuntime, worldconfig.WorldConfig, error) {
	snap, ok, err := persist.LoadSnapshot()
	if err != nil {
		return nil, nil, persistence.ChunkRuntime{}, worldconfig.WorldConfig{}, err
	}

	if ok {
		tail, err := persist.ReplayFrom(snap.Tick + 1)
		if err != nil {
			return nil, nil, persistence.ChunkRuntime{}, worldconfig.WorldConfig{}, err
		}
		store, err := persistence.Replay(snap, tail)
		if err != nil {
			return nil, nil, persistence.ChunkRuntime{}, worldconfig.WorldConfig{}, err
		}
		generator := chunkgen.New(snap.ChunkRuntime.WorldSeed, snap.WorldConfig.AsteroidFragment)
		ctrl := chunklifecycle.NewController(store, generator, snap.WorldConfig.AsteroidFragment)
		logging.LogInfo("worldkernel: resumed from snapshot at tick %d plus %d replayed events", snap.Tick, len(tail))
		return store, ctrl, snap.ChunkRuntime, snap.WorldConfig, nil
	}

	logging.LogInfo("worldkernel: no snapshot found, bootstrapping default scenario")
	wcfg := worldconfig.Default()
	res, err := scenario.Bootstrap(scenario.Scenario{
		Seed:            42,
		LocationGen:     scenario.LocationGenerator{Count: 16, IDPrefix: "loc-", NamePrefix: "Station "},
		Agents:          scenario.Agents{Count: 8},
		BootstrapChunks: []geo.ChunkCoord{{X: 0, Y: 0, Z: 0}},
		WorldConfig:     wcfg,
	})
	if err != nil {
		return nil, nil, persistence.ChunkRuntime{}, worldconfig.WorldConfig{}, err
	}
	for _, ev := range res.Events {
		if err := persist.Append(ev); err != nil {
			return nil, nil, persistence.ChunkRuntime{}, worldconfig.WorldConfig{}, err
		}
	}
	chunkRuntime := persistence.ChunkRuntime{WorldSeed: res.ChunkRuntime.WorldSeed}
	return res.Store, res.ChunkCtrl, chunkRuntime, wcfg, nil
}

func newEventBus(cfg config.EventBusConfig) eventbus.EventBus {
	if cfg.Backend == "jetstream" && cfg.URL != "" {
		bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
		if err != nil {
			logging.LogWarn("worldkernel: jetstream bus unavailable, falling back to memory bus: %v", err)
		} else {
			return bus
		}
	}
	return eventbus.NewMemoryBus(4096)
}

// newEvaluator constructs the external evaluator sandbox connection when
// configured (spec 4.E); an unconfigured or unreachable evaluator leaves
// the rule engine's pre/post hooks as the only gating, same as before
// this was wired in.
func newEvaluator(cfg config.EvaluatorConfig) (rules.Evaluator, func()) {
	if cfg.Backend != "nats" || cfg.URL == "" {
		return nil, nil
	}
	ev, err := rules.NewNATSEvaluator(cfg.URL, cfg.Subject)
	if err != nil {
		logging.LogWarn("worldkernel: nats evaluator unavailable, running without external evaluator: %v", err)
		return nil, nil
	}
	return ev, ev.Close
}

func newLocationRepo(cfg config.ReadModelConfig) readmodel.LocationRepo {
	switch cfg.Backend {
	case "redis":
		rcfg := readmodel.DefaultRedisLocationRepoConfig()
		if cfg.RedisDSN != "" {
			rcfg.Addr = cfg.RedisDSN
		}
		repo, err := readmodel.NewRedisLocationRepo(rcfg)
		if err != nil {
			logging.LogWarn("worldkernel: redis location repo unavailable, falling back to memory: %v", err)
			break
		}
		return repo
	case "mysql":
		repo, err := readmodel.NewMySQLLocationRepo(cfg.MySQLDSN)
		if err != nil {
			logging.LogWarn("worldkernel: mysql location repo unavailable, falling back to memory: %v", err)
			break
		}
		return repo
	}
	return readmodel.NewMemoryLocationRepo()
}
