package kernel

import (
	"context"
	"testing"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/chunkgen"
	"github.com/kestrel-sim/worldkernel/internal/chunklifecycle"
	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
	"github.com/kestrel-sim/worldkernel/internal/rules"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

func testKernel(t *testing.T) (*Kernel, *worldmodel.Store) {
	t.Helper()
	cfg := worldconfig.Default()
	store := worldmodel.New(geo.Pos{X: cfg.Space.ExtentXCm, Y: cfg.Space.ExtentYCm, Z: cfg.Space.ExtentZCm})
	gen := chunkgen.New(1, cfg.AsteroidFragment)
	ctrl := chunklifecycle.NewController(store, gen, cfg.AsteroidFragment)
	engine := rules.NewEngine()
	k := New(store, ctrl, engine, cfg, nil, 1024)
	return k, store
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	k, _ := testKernel(t)
	k.pendingCap = 1
	r1 := k.Submit("a1", action.Action{Kind: action.Observe}, "")
	if !r1.Accepted {
		t.Fatalf("first submit should be accepted: %+v", r1)
	}
	r2 := k.Submit("a2", action.Action{Kind: action.Observe}, "")
	if r2.Accepted {
		t.Fatal("second submit should be rejected by backpressure")
	}
}

func TestSubmitIdempotencyReplaysCachedResult(t *testing.T) {
	k, store := testKernel(t)
	_ = store.RegisterAgent(&worldmodel.Agent{ID: "agent-1"})
	_ = store.AdjustResource(resourcemodel.AgentOwner("agent-1"), resourcemodel.Electricity, 1_000_000)

	a := action.Action{Kind: action.BuyPower, AgentID: "agent-1", WattHours: 50}
	k.Submit("agent-1", a, "key-1")
	if _, err := k.RunTick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	bal, _ := store.ResourceBalance(resourcemodel.AgentOwner("agent-1"), resourcemodel.Electricity)

	// Resubmitting the same (actor_id, idempotency_key) after the
	// originating tick resolved must replay the cached result rather than
	// re-queue and re-apply the action a second time.
	r2 := k.Submit("agent-1", a, "key-1")
	if !r2.Accepted {
		t.Fatalf("expected cached accepted result, got %+v", r2)
	}
	if _, err := k.RunTick(context.Background()); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}
	balAfter, _ := store.ResourceBalance(resourcemodel.AgentOwner("agent-1"), resourcemodel.Electricity)
	if balAfter != bal {
		t.Fatalf("idempotent resubmit re-applied the action: balance %d -> %d", bal, balAfter)
	}
}

func TestRunTickMovesAgentBetweenLocations(t *testing.T) {
	k, store := testKernel(t)
	_ = store.RegisterLocation(&worldmodel.Location{ID: "loc-a", Pos: geo.Pos{X: 0, Y: 0, Z: 0}})
	_ = store.RegisterLocation(&worldmodel.Location{ID: "loc-b", Pos: geo.Pos{X: 100, Y: 0, Z: 0}})
	_ = store.RegisterAgent(&worldmodel.Agent{ID: "agent-1", LocationID: "loc-a"})

	k.Submit("agent-1", action.Action{Kind: action.Move, AgentID: "agent-1", ToLocationID: "loc-b"}, "")
	report, err := k.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(report.Rejected) != 0 {
		t.Fatalf("unexpected rejections: %+v", report.Rejected)
	}

	agent, _ := store.Agent("agent-1")
	if agent.LocationID != "loc-b" {
		t.Fatalf("agent did not move, at %q", agent.LocationID)
	}

	var moved bool
	for _, ev := range report.Events {
		if ev.Kind == action.EvAgentMoved {
			moved = true
		}
	}
	if !moved {
		t.Fatal("expected an AgentMoved event")
	}
}

func TestRunTickKinematicsMoveSpansMultipleTicks(t *testing.T) {
	k, store := testKernel(t)
	cfg := k.cfg
	cfg.Physics.KinematicsEnabled = true
	cfg.Physics.SpeedCmPerTick = 40
	k.cfg = cfg

	_ = store.RegisterLocation(&worldmodel.Location{ID: "loc-a", Pos: geo.Pos{X: 0, Y: 0, Z: 0}})
	_ = store.RegisterLocation(&worldmodel.Location{ID: "loc-b", Pos: geo.Pos{X: 100, Y: 0, Z: 0}})
	_ = store.RegisterAgent(&worldmodel.Agent{ID: "agent-1", LocationID: "loc-a"})

	k.Submit("agent-1", action.Action{Kind: action.Move, AgentID: "agent-1", ToLocationID: "loc-b"}, "")
	report, err := k.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(report.Rejected) != 0 {
		t.Fatalf("unexpected rejections: %+v", report.Rejected)
	}

	agent, _ := store.Agent("agent-1")
	if agent.LocationID != "loc-a" {
		t.Fatalf("agent should not have arrived yet, at %q", agent.LocationID)
	}
	// advance_kinematics runs in the same tick as apply: 100 - 40 = 60.
	if agent.Kinematics == nil || !agent.Kinematics.Active || agent.Kinematics.RemainingCm != 60 {
		t.Fatalf("expected an active in-flight move with remaining_cm=60, got %+v", agent.Kinematics)
	}

	var sawStarted bool
	for _, ev := range report.Events {
		if ev.Kind == action.EvMoveStarted {
			sawStarted = true
		}
	}
	if !sawStarted {
		t.Fatal("expected a MoveStarted event")
	}

	var sawProgressed, sawArrived bool
	for tick := 0; tick < 10 && !sawArrived; tick++ {
		report, err = k.RunTick(context.Background())
		if err != nil {
			t.Fatalf("tick failed: %v", err)
		}
		for _, ev := range report.Events {
			switch ev.Kind {
			case action.EvMoveProgressed:
				sawProgressed = true
			case action.EvMoveArrived:
				sawArrived = true
			}
		}
	}
	if !sawProgressed {
		t.Fatal("expected at least one MoveProgressed event")
	}
	if !sawArrived {
		t.Fatal("move never arrived")
	}

	agent, _ = store.Agent("agent-1")
	if agent.LocationID != "loc-b" {
		t.Fatalf("agent did not arrive at destination, at %q", agent.LocationID)
	}
	if agent.Kinematics.Active {
		t.Fatal("kinematics state should be inactive after arrival")
	}
}

func TestRunTickShutdownAgentRejectsMove(t *testing.T) {
	k, store := testKernel(t)
	_ = store.RegisterLocation(&worldmodel.Location{ID: "loc-a", Pos: geo.Pos{X: 0, Y: 0, Z: 0}})
	_ = store.RegisterLocation(&worldmodel.Location{ID: "loc-b", Pos: geo.Pos{X: 100, Y: 0, Z: 0}})
	_ = store.RegisterAgent(&worldmodel.Agent{ID: "agent-1", LocationID: "loc-a", ShutdownSet: true})

	k.Submit("agent-1", action.Action{Kind: action.Move, AgentID: "agent-1", ToLocationID: "loc-b"}, "")
	report, err := k.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(report.Rejected) != 1 || report.Rejected[0].Reason.Code != kernelerr.AgentShutdown {
		t.Fatalf("expected a single AgentShutdown rejection, got %+v", report.Rejected)
	}
}

func TestDebugSetAgentShutdownGatedByDebugFlag(t *testing.T) {
	k, store := testKernel(t)
	_ = store.RegisterAgent(&worldmodel.Agent{ID: "agent-1"})

	ev, reject, ok := k.applyDebugSetAgentShutdown(action.Action{Kind: action.DebugSetAgentShutdown, AgentID: "agent-1", ShutdownSet: true})
	if ok {
		t.Fatalf("expected rejection when debug disabled, got event %+v", ev)
	}
	if reject.Code != kernelerr.Unauthorized {
		t.Fatalf("expected Unauthorized, got %+v", reject)
	}

	cfg := k.cfg
	cfg.DebugEnabled = true
	k.cfg = cfg

	ev, reject, ok = k.applyDebugSetAgentShutdown(action.Action{Kind: action.DebugSetAgentShutdown, AgentID: "agent-1", ShutdownSet: true})
	if !ok {
		t.Fatalf("expected success once debug enabled, got reject %+v", reject)
	}
	if ev.Kind != action.EvAgentShutdownSet || !ev.ShutdownSet {
		t.Fatalf("unexpected event: %+v", ev)
	}
	agent, _ := store.Agent("agent-1")
	if !agent.ShutdownSet {
		t.Fatal("ShutdownSet was not persisted to the agent")
	}
}

func TestRunTickConflictingBuildFactoryExclusiveFirstWins(t *testing.T) {
	k, store := testKernel(t)
	_ = store.RegisterLocation(&worldmodel.Location{ID: "loc-a"})
	_ = store.RegisterAgent(&worldmodel.Agent{ID: "a1"})
	_ = store.RegisterAgent(&worldmodel.Agent{ID: "a2"})
	_ = store.AdjustResource(resourcemodel.AgentOwner("a1"), resourcemodel.Hardware, 10_000)
	_ = store.AdjustResource(resourcemodel.AgentOwner("a2"), resourcemodel.Hardware, 10_000)

	k.Submit("a1", action.Action{Kind: action.BuildFactory, OwnerID: "a1", LocationID: "loc-a", FactoryID: "fac-1", FactoryKind: "factory.fabrication.mk1"}, "")
	k.Submit("a2", action.Action{Kind: action.BuildFactory, OwnerID: "a2", LocationID: "loc-a", FactoryID: "fac-1", FactoryKind: "factory.fabrication.mk1"}, "")

	report, err := k.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(report.Rejected) != 1 {
		t.Fatalf("expected exactly one ConflictLoss rejection, got %d: %+v", len(report.Rejected), report.Rejected)
	}
	if report.Rejected[0].Reason.Code.String() != "ConflictLoss" {
		t.Fatalf("expected ConflictLoss, got %s", report.Rejected[0].Reason.Code)
	}
}

func TestRunTickMiningConservesMass(t *testing.T) {
	k, store := testKernel(t)
	_ = store.RegisterAgent(&worldmodel.Agent{ID: "miner", LocationID: "loc-a"})
	_ = store.AdjustResource(resourcemodel.AgentOwner("miner"), resourcemodel.Electricity, 1_000_000)

	coord := geo.ChunkCoord{X: 0, Y: 0, Z: 0}

	budget := chunkmodel.NewResourceBudget()
	budget.AddTotal("Fe", 1_000_000)
	frag := &chunkmodel.Fragment{
		ID: "frag-0",
		Blocks: []chunkmodel.FragmentBlock{
			{Size: geo.CuboidSize{X: 100, Y: 100, Z: 100}, DensityKgM3: 1000},
		},
		Budget: budget,
	}

	_ = store.RegisterLocation(&worldmodel.Location{
		ID: "loc-a", Pos: geo.Pos{},
		FragmentRef: &worldmodel.FragmentRef{Chunk: coord, FragmentID: frag.ID},
	})
	store.StoreGeneratedChunk(coord, 1, []*chunkmodel.Fragment{frag}, budget)

	k.Submit("miner", action.Action{Kind: action.MineCompound, AgentID: "miner", LocationID: "loc-a", MassG: 100}, "")
	report, err := k.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(report.Rejected) != 0 {
		t.Fatalf("unexpected rejection: %+v", report.Rejected)
	}
	bal, _ := store.ResourceBalance(resourcemodel.AgentOwner("miner"), resourcemodel.Compound)
	if bal != 100 {
		t.Fatalf("agent compound balance = %d, want 100", bal)
	}
}
