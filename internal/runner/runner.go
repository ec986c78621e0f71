// Package runner drives the kernel's per-tick phase loop on a wall-clock
// schedule (spec 4.I): it owns the ticker, the system-load backpressure
// gate in front of kernel.Submit, periodic snapshotting, replenishment
// of chunks touched during the tick, and fan-out of completed events to
// the read model and the event bus. One Runner per world process,
// mirroring the teacher's WorldManager.Run/BigChunk.Run ticker loop.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/chunklifecycle"
	"github.com/kestrel-sim/worldkernel/internal/eventbus"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/kernel"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
	"github.com/kestrel-sim/worldkernel/internal/logging"
	"github.com/kestrel-sim/worldkernel/internal/observability"
	"github.com/kestrel-sim/worldkernel/internal/persistence"
	"github.com/kestrel-sim/worldkernel/internal/readmodel"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

// Options configures a Runner. Bus, Locations, and Metrics may be nil —
// a nil field is simply skipped rather than defaulted, so a caller can
// opt out of the read model or the event bus entirely.
type Options struct {
	TickInterval       time.Duration
	SnapshotEveryTick  uint64
	OverloadCPUPercent float64 // 0 disables the backpressure gate.

	Kernel    *kernel.Kernel
	Store     *worldmodel.Store
	ChunkCtrl *chunklifecycle.Controller
	Persist   *persistence.Store

	// WorldConfig and ChunkRuntime are stamped into every periodic
	// snapshot this Runner takes; they never change for the lifetime of
	// a world (spec 6), so capturing them once at construction is enough.
	WorldConfig  worldconfig.WorldConfig
	ChunkRuntime persistence.ChunkRuntime

	Bus       eventbus.EventBus
	Locations readmodel.LocationRepo
	Metrics   *observability.TickMetrics
	Sampler   LoadSampler
	Archive   *persistence.ArchiveSink
}

// LoadSampler is the narrow surface the backpressure gate needs;
// *observability.LoadSampler satisfies it structurally. Kept as an
// interface so tests can stub a saturated reading without starting a
// real background sampler.
type LoadSampler interface {
	Overloaded(cpuPercent float64) bool
	Latest() observability.LoadSample
}

// Runner owns the process-wide tick loop for one world.
type Runner struct {
	opts Options

	mu           sync.Mutex
	activeChunks map[geo.ChunkCoord]struct{}

	stop chan struct{}
	done chan struct{}
}

// New builds a Runner from opts. Defaults TickInterval to 100ms (the
// spec's nominal 10 TPS) if unset.
func New(opts Options) *Runner {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 100 * time.Millisecond
	}
	return &Runner{
		opts:         opts,
		activeChunks: make(map[geo.ChunkCoord]struct{}),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// ErrOverloaded is returned by Submit when the load sampler reports
// sustained saturation and the intent never reaches the kernel's queue.
var ErrOverloaded = kernelerr.Reject{Code: kernelerr.ValidationError, Field: "overloaded"}

// Submit forwards to kernel.Submit, refusing up front if the configured
// CPU threshold is exceeded (spec 4.I backpressure).
func (r *Runner) Submit(actorID string, a action.Action, idempotencyKey string) kernel.SubmitResult {
	if r.opts.OverloadCPUPercent > 0 && r.opts.Sampler != nil && r.opts.Sampler.Overloaded(r.opts.OverloadCPUPercent) {
		if r.opts.Metrics != nil {
			r.opts.Metrics.RecordOverloadedRefusal()
		}
		return kernel.SubmitResult{Reject: ErrOverloaded}
	}
	return r.opts.Kernel.Submit(actorID, a, idempotencyKey)
}

// Run starts the tick loop and blocks until ctx is cancelled or Stop is
// called. Safe to run in its own goroutine.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	loadTicker := time.NewTicker(1 * time.Second)
	defer loadTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-loadTicker.C:
			if r.opts.Sampler != nil && r.opts.Metrics != nil {
				r.opts.Metrics.RecordLoadSample(r.opts.Sampler.Latest())
			}
		case <-ticker.C:
			r.runOneTick(ctx)
		}
	}
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (r *Runner) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Runner) runOneTick(ctx context.Context) {
	start := time.Now()

	report, err := r.opts.Kernel.RunTick(ctx)
	if err != nil {
		logging.LogError("runner: tick failed: %v", err)
		return
	}

	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveTick(time.Since(start).Seconds())
		r.opts.Metrics.RecordAccepted(len(report.Report.Accepted))
		r.opts.Metrics.RecordRejected(len(report.Rejected))
	}

	logging.LogTick(report.Tick, time.Since(start), len(report.Report.Accepted), len(report.Rejected))

	r.trackTouchedChunks(report.Events)
	r.replenishActiveChunks(report.Tick)
	r.updateLocations(ctx, report.Events)
	r.publishEvents(ctx, report.Events)
	if r.opts.Archive != nil {
		r.opts.Archive.MirrorBatch(report.Events)
	}
	r.maybeSnapshot(report.Tick)
}

// trackTouchedChunks records every coordinate a Generated chunk event
// named this tick, so replenishment below only visits chunks actually in
// play rather than scanning the whole world (spec 4.D leaves "the active
// chunk set" to the caller).
func (r *Runner) trackTouchedChunks(events []action.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range events {
		if ev.Kind == action.EvChunkGenerated {
			r.activeChunks[ev.ChunkCoord] = struct{}{}
		}
	}
}

func (r *Runner) replenishActiveChunks(tick uint64) {
	if r.opts.ChunkCtrl == nil {
		return
	}
	r.mu.Lock()
	coords := make([]geo.ChunkCoord, 0, len(r.activeChunks))
	for c := range r.activeChunks {
		coords = append(coords, c)
	}
	r.mu.Unlock()

	for _, coord := range coords {
		if added, ran := r.opts.ChunkCtrl.MaybeReplenish(coord, tick); ran && added > 0 {
			logging.LogDebug("runner: replenished %d fragments at %+v on tick %d", added, coord, tick)
		}
	}
}

// updateLocations pushes agent position updates into the read model,
// best-effort: a repo error here never fails the tick (spec's read
// model is an external convenience, not part of the authoritative
// state machine).
func (r *Runner) updateLocations(ctx context.Context, events []action.Event) {
	if r.opts.Locations == nil || r.opts.Store == nil {
		return
	}
	for _, ev := range events {
		if ev.Kind != action.EvAgentMoved {
			continue
		}
		loc, ok := r.opts.Store.Location(ev.ToLocation)
		if !ok {
			continue
		}
		if err := r.opts.Locations.Put(ctx, ev.AgentID, loc.Pos); err != nil {
			logging.LogWarn("runner: location repo put for %s: %v", ev.AgentID, err)
		}
	}
}

func (r *Runner) publishEvents(ctx context.Context, events []action.Event) {
	if r.opts.Bus == nil {
		return
	}
	for _, ev := range events {
		envelope := eventbus.EnvelopeFromEvent(
			fmt.Sprintf("%d-%d", ev.Tick, ev.Seq), "worldkernel-runner", ev, nil,
		)
		if err := r.opts.Bus.Publish(ctx, envelope); err != nil {
			logging.LogWarn("runner: event bus publish failed: %v", err)
		}
	}
}

func (r *Runner) maybeSnapshot(tick uint64) {
	if r.opts.Persist == nil || r.opts.Store == nil || r.opts.SnapshotEveryTick == 0 {
		return
	}
	if tick%r.opts.SnapshotEveryTick != 0 {
		return
	}
	snap := persistence.Snapshot{
		ChunkGenerationSchemaVersion: 1,
		WorldConfig:                  r.opts.WorldConfig,
		ChunkRuntime:                 r.opts.ChunkRuntime,
		Tick:                         tick,
		World:                        r.opts.Store.ExportSnapshot(),
	}
	if err := r.opts.Persist.SaveSnapshot(snap); err != nil {
		logging.LogError("runner: snapshot save at tick %d: %v", tick, err)
	}
}
