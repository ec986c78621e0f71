// Package kernel implements the action/event kernel (spec 4.D): the
// per-tick phase loop, intent batch conflict resolution, rule hook
// dispatch, and per-action validation and effects. It is the single
// mutator of worldmodel.Store for the lifetime of a world (spec 5).
package kernel

import (
	"context"
	"sync"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/chunklifecycle"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
	"github.com/kestrel-sim/worldkernel/internal/rules"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

// SubmitResult is returned to the external caller on action submission
// (spec 6): Accepted carries the batch_hash and event refs once the tick
// resolves; Rejected carries a reason immediately for pre-tick failures
// (queue full, duplicate idempotency key).
type SubmitResult struct {
	Accepted   bool
	BatchHash  uint64
	EventSeqs  []uint64
	Reject     kernelerr.Reject
}

// idempotencyRecord caches the outcome of one (actor_id, idempotency_key)
// submission so a repeat returns the original result instead of
// re-applying the action (spec 6, 8).
type idempotencyRecord struct {
	result SubmitResult
}

// Kernel owns the single process-wide lock serializing every mutation
// (spec 5); one Kernel per world.
type Kernel struct {
	mu sync.Mutex

	store     *worldmodel.Store
	chunkCtrl *chunklifecycle.Controller
	ruleEngine *rules.Engine
	cfg       worldconfig.WorldConfig

	tick     uint64
	eventSeq uint64

	pending       []action.Intent
	pendingCap    int
	idempotency   map[string]idempotencyRecord

	journal JournalWriter

	// Chunk coordinates referenced by queued intents are not stored here;
	// RunTick resolves them per intent (referencedChunk) in its
	// ensure_chunks phase, before resolve_batch.
}

// JournalWriter is the narrow persistence surface the kernel appends to;
// package persistence implements it against badger + the journal codec.
type JournalWriter interface {
	Append(ev action.Event) error
}

// New builds a Kernel bound to store, chunkCtrl, and ruleEngine with the
// given config and bounded intent queue capacity.
func New(store *worldmodel.Store, chunkCtrl *chunklifecycle.Controller, ruleEngine *rules.Engine, cfg worldconfig.WorldConfig, journal JournalWriter, pendingCap int) *Kernel {
	return &Kernel{
		store:       store,
		chunkCtrl:   chunkCtrl,
		ruleEngine:  ruleEngine,
		cfg:         cfg,
		pendingCap:  pendingCap,
		idempotency: make(map[string]idempotencyRecord),
		journal:     journal,
	}
}

// CurrentTick reports the kernel's tick counter.
func (k *Kernel) CurrentTick() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tick
}

// Submit enqueues an action for the next tick boundary (spec 5: same-tick
// determinism regardless of arrival order). Returns a transient
// backpressure error if the bounded queue is full, or the cached result
// if (actor_id, idempotency_key) was already submitted (spec 6, 8).
func (k *Kernel) Submit(actorID string, a action.Action, idempotencyKey string) SubmitResult {
	k.mu.Lock()
	defer k.mu.Unlock()

	if idempotencyKey != "" {
		dedupKey := actorID + ":" + idempotencyKey
		if rec, ok := k.idempotency[dedupKey]; ok {
			return rec.result
		}
	}

	if len(k.pending) >= k.pendingCap {
		return SubmitResult{Reject: kernelerr.Reject{Code: kernelerr.ValidationError, Field: "queue"}}
	}

	intent := action.Intent{
		ActorID:        actorID,
		Action:         a,
		IdempotencyKey: idempotencyKey,
		IntentHash:     IntentHash(actorID, a),
		ConflictKey:    ConflictKey(actorID, a),
	}
	k.pending = append(k.pending, intent)
	return SubmitResult{Accepted: true}
}

// TickReport summarizes one completed tick for callers/tests.
type TickReport struct {
	Tick      uint64
	Report    BatchReport
	Rejected  []RejectedIntent
	Events    []action.Event
}

// RunTick executes one full phase loop: ensure_chunks -> collect_intents
// -> resolve_batch -> apply_accepted -> flush_events -> advance_kinematics
// -> schedule_transits (spec 5). Periodic snapshots are taken by the
// Runner after RunTick returns, not here. The journal append
// happens inline per event (flush_events), not batched, so a
// PersistenceIO failure aborts the tick immediately (spec 7).
func (k *Kernel) RunTick(ctx context.Context) (TickReport, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.tick++
	tick := k.tick

	batch := k.pending
	k.pending = nil

	// Phase: ensure_chunks. Any intent whose referenced chunk fails to
	// generate is converted to a rejection before conflict resolution
	// ever sees it (spec 4.F: "downstream callers must retry or fail the
	// triggering action").
	var events []action.Event
	var ready []action.Intent
	var preRejected []RejectedIntent
	for _, in := range batch {
		if coord, ok := k.referencedChunk(in.Action); ok {
			res := k.chunkCtrl.EnsureGenerated(coord, action.CauseAction)
			if res.Skipped {
				preRejected = append(preRejected, RejectedIntent{Intent: in, Reason: kernelerr.NewValidationError("chunk")})
				skipEv := action.Event{Kind: action.EvChunkGenerationSkipped, ChunkCoord: coord, SkipReason: res.SkipReason}
				skipEv.Seq = k.appendEvent(tick, skipEv)
				events = append(events, skipEv)
				continue
			}
			if !res.AlreadyGenerated {
				genEv := action.Event{
					Kind: action.EvChunkGenerated, ChunkCoord: coord, ChunkSeed: res.Seed,
					FragmentCount: res.FragmentCount, BlockCount: res.BlockCount, Cause: action.CauseAction,
				}
				genEv.Seq = k.appendEvent(tick, genEv)
				events = append(events, genEv)
			}
		}
		ready = append(ready, in)
	}

	// Phase: resolve_batch.
	report := ResolveBatch(ready)
	allRejected := append(preRejected, report.Rejected...)

	// Phase: apply_accepted, in canonical (conflict_key-sorted) order.
	for _, in := range report.Accepted {
		finalAction, reject, allowed := k.ruleEngine.Evaluate(ctx, in.ActorID, in.Action, k.readView())
		if !allowed {
			allRejected = append(allRejected, RejectedIntent{Intent: in, Reason: reject})
			continue
		}

		ev, rejectErr, ok := k.apply(tick, in.ActorID, finalAction)
		if !ok {
			allRejected = append(allRejected, RejectedIntent{Intent: in, Reason: rejectErr})
			continue
		}
		ev.Seq = k.appendEvent(tick, ev)
		events = append(events, ev)

		if in.IdempotencyKey != "" {
			dedupKey := in.ActorID + ":" + in.IdempotencyKey
			k.idempotency[dedupKey] = idempotencyRecord{result: SubmitResult{Accepted: true, BatchHash: report.BatchHash, EventSeqs: []uint64{ev.Seq}}}
		}
	}

	// Phase: flush rejections to the journal for audit (spec 7).
	for _, r := range allRejected {
		ev := action.Event{
			Tick: tick, Kind: action.EvActionRejected,
			ActorID: r.Intent.ActorID, RejectedReason: r.Reason.Code, RejectedNote: r.Reason.Note,
		}
		ev.Seq = k.appendEvent(tick, ev)
		events = append(events, ev)

		if r.Intent.IdempotencyKey != "" {
			dedupKey := r.Intent.ActorID + ":" + r.Intent.IdempotencyKey
			k.idempotency[dedupKey] = idempotencyRecord{result: SubmitResult{Accepted: false, Reject: r.Reason}}
		}
	}

	// Phase: advance_kinematics — step every in-flight move by one tick's
	// speed_cm_per_tick (spec: "Movement kinematics (when enabled)").
	events = append(events, k.advanceKinematics(tick)...)

	// Phase: schedule_transits — complete any due material transits.
	for _, due := range k.store.DueMaterialTransits(tick) {
		lossAlreadyApplied := due.LossAmount
		delivered := due.Amount - lossAlreadyApplied
		_ = k.store.AdjustMaterialLedger(due.To, due.Kind, delivered)
		ev := action.Event{
			Tick: tick, Kind: action.EvMaterialTransitCompleted,
			FromLedger: due.From, ToLedger: due.To, MaterialKind: due.Kind,
			Amount: delivered, LossAmount: due.LossAmount, TransitID: due.ID,
		}
		ev.Seq = k.appendEvent(tick, ev)
		events = append(events, ev)
	}

	// Phase: runtime replenishment across every Generated chunk touched
	// this tick is left to the caller (Runner), which knows the active
	// chunk set; MaybeReplenish is idempotent per (coord, tick).

	for i := range events {
		events[i].Tick = tick
	}

	return TickReport{Tick: tick, Report: report, Rejected: allRejected, Events: events}, nil
}

// appendEvent stamps tick/seq, writes to the journal, and returns the
// assigned seq. A PersistenceIO failure is fatal (spec 7); panicking here
// would abort the whole process, which is why JournalWriter.Append is
// expected to retry/buffer internally and only return error on genuine
// unrecoverable I/O — callers observing an error should quiesce the
// kernel rather than continue ticking.
func (k *Kernel) appendEvent(tick uint64, ev action.Event) uint64 {
	ev.Tick = tick
	ev.Seq = k.store.NextEventSeq()
	if k.journal != nil {
		_ = k.journal.Append(ev)
	}
	return ev.Seq
}

// referencedChunk extracts the chunk coordinate an action's spatial
// target resolves to, if any (spec 4.F precondition list). Location-based
// actions resolve through the location's current position; Observe
// carries its own target position directly.
func (k *Kernel) referencedChunk(a action.Action) (geo.ChunkCoord, bool) {
	size := k.cfg.AsteroidFragment.ChunkSize()
	switch a.Kind {
	case action.Observe:
		return geo.CoordOf(a.ObservePos, size), true
	case action.Move:
		if loc, ok := k.store.Location(a.ToLocationID); ok {
			return geo.CoordOf(loc.Pos, size), true
		}
		return geo.ChunkCoord{}, false
	case action.Harvest, action.MineCompound:
		if loc, ok := k.store.Location(a.LocationID); ok {
			return geo.CoordOf(loc.Pos, size), true
		}
		return geo.ChunkCoord{}, false
	case action.BuildFactory:
		if loc, ok := k.store.Location(a.LocationID); ok {
			return geo.CoordOf(loc.Pos, size), true
		}
		return geo.ChunkCoord{}, false
	default:
		return geo.ChunkCoord{}, false
	}
}

// readView adapts the store to rules.ReadView for hook consumption.
func (k *Kernel) readView() rules.ReadView {
	return kernelReadView{store: k.store}
}

type kernelReadView struct {
	store *worldmodel.Store
}

func (v kernelReadView) AgentExists(id string) bool {
	_, ok := v.store.Agent(id)
	return ok
}

func (v kernelReadView) LocationExists(id string) bool {
	_, ok := v.store.Location(id)
	return ok
}

func (v kernelReadView) ResourceBalance(ownerID string, kind int) int64 {
	bal, _ := v.store.ResourceBalance(resourcemodel.AgentOwner(ownerID), resourcemodel.Kind(kind))
	return bal
}
