package persistence

import (
	"testing"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

func TestCodecRoundTrip(t *testing.T) {
	ev := action.Event{Kind: action.EvCompoundMined, Tick: 7, Seq: 3, AgentID: "agent-1", GramsMoved: 500}

	data, err := encodeEvent(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeEvent(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != ev.Kind || got.Tick != ev.Tick || got.Seq != ev.Seq || got.AgentID != ev.AgentID || got.GramsMoved != ev.GramsMoved {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, ev)
	}
}

func TestCodecRoundTripChunkCoord(t *testing.T) {
	ev := action.Event{
		Kind: action.EvChunkGenerated, Tick: 1, Seq: 0,
		ChunkCoord: geo.ChunkCoord{X: 3, Y: -4, Z: 0}, ChunkSeed: 99,
		FragmentCount: 12, BlockCount: 4,
		ChunkBudgetTotal: map[resourcemodel.Element]int64{resourcemodel.Element("iron"): 1000},
	}

	data, err := encodeEvent(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeEvent(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ChunkCoord != ev.ChunkCoord || got.ChunkSeed != ev.ChunkSeed {
		t.Fatalf("chunk coord/seed mismatch: got %+v", got)
	}
	if got.ChunkBudgetTotal[resourcemodel.Element("iron")] != 1000 {
		t.Fatalf("budget map lost in round trip: %+v", got.ChunkBudgetTotal)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestJournalAppendAndReplayFromOrdersByTickAndSeq(t *testing.T) {
	s := newTestStore(t)

	events := []action.Event{
		{Kind: action.EvAgentMoved, Tick: 2, Seq: 1, AgentID: "a1"},
		{Kind: action.EvAgentMoved, Tick: 1, Seq: 0, AgentID: "a0"},
		{Kind: action.EvAgentMoved, Tick: 2, Seq: 0, AgentID: "a2"},
	}
	for _, ev := range events {
		if err := s.Append(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.ReplayFrom(0)
	if err != nil {
		t.Fatalf("replay from: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	wantOrder := []string{"a0", "a2", "a1"}
	for i, id := range wantOrder {
		if got[i].AgentID != id {
			t.Fatalf("event %d out of order: got %q, want %q (full: %+v)", i, got[i].AgentID, id, got)
		}
	}
}

func TestJournalReplayFromSkipsEarlierTicks(t *testing.T) {
	s := newTestStore(t)
	_ = s.Append(action.Event{Kind: action.EvAgentMoved, Tick: 1, Seq: 0, AgentID: "early"})
	_ = s.Append(action.Event{Kind: action.EvAgentMoved, Tick: 5, Seq: 0, AgentID: "late"})

	got, err := s.ReplayFrom(5)
	if err != nil {
		t.Fatalf("replay from: %v", err)
	}
	if len(got) != 1 || got[0].AgentID != "late" {
		t.Fatalf("expected only tick-5 event, got %+v", got)
	}
}

func TestSnapshotSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	cfg := worldconfig.Default()
	snap := Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		WorldConfig:   cfg,
		ChunkRuntime:  ChunkRuntime{WorldSeed: 42, SpacingCm: 100},
		Tick:          10,
	}
	snap.World.WorldResources = map[resourcemodel.Kind]int64{resourcemodel.Electricity: 5000}

	if err := s.SaveSnapshot(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, ok, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("expected a snapshot to be present")
	}
	if loaded.Tick != 10 || loaded.ChunkRuntime.WorldSeed != 42 {
		t.Fatalf("snapshot fields lost in round trip: %+v", loaded)
	}
	if loaded.World.WorldResources[resourcemodel.Electricity] != 5000 {
		t.Fatalf("world snapshot lost in round trip: %+v", loaded.World)
	}
}

func TestLoadSnapshotMissingReturnsNotOK(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("expected no error for missing snapshot, got %v", err)
	}
	if ok {
		t.Fatal("expected ok=false when no snapshot has ever been written")
	}
}

func TestMigrateRefusesNewerSchema(t *testing.T) {
	_, err := migrate(Snapshot{SchemaVersion: CurrentSchemaVersion + 1})
	if err == nil {
		t.Fatal("expected newer-than-supported schema to be refused")
	}
}

func TestMigrateUpgradesLegacySchemaZero(t *testing.T) {
	migrated, err := migrate(Snapshot{SchemaVersion: 0})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated.SchemaVersion != CurrentSchemaVersion {
		t.Fatalf("expected migration to CurrentSchemaVersion, got %d", migrated.SchemaVersion)
	}
	if migrated.ChunkGenerationSchemaVersion != 1 {
		t.Fatalf("expected chunk generation schema defaulted to 1, got %d", migrated.ChunkGenerationSchemaVersion)
	}
}

func TestReplayAppliesDebugGrantDeterministically(t *testing.T) {
	cfg := worldconfig.Default()
	snap := Snapshot{SchemaVersion: CurrentSchemaVersion, WorldConfig: cfg, ChunkRuntime: ChunkRuntime{WorldSeed: 1}}
	snap.World.Agents = map[string]*worldmodel.Agent{
		"agent-1": {ID: "agent-1", Resources: map[resourcemodel.Kind]int64{}},
	}

	tail := []action.Event{
		{
			Kind: action.EvDebugResourceGranted, Tick: 1, Seq: 0,
			OwnerID: "agent-1", GrantOwnerKind: resourcemodel.OwnerAgent, GrantResourceKind: resourcemodel.Electricity, Amount: 1000,
		},
	}

	store, err := Replay(snap, tail)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	bal, _ := store.ResourceBalance(resourcemodel.AgentOwner("agent-1"), resourcemodel.Electricity)
	if bal != 1000 {
		t.Fatalf("expected replayed grant to land, got balance %d", bal)
	}
}

func TestReplayConflictOnUnknownEventKind(t *testing.T) {
	cfg := worldconfig.Default()
	snap := Snapshot{SchemaVersion: CurrentSchemaVersion, WorldConfig: cfg, ChunkRuntime: ChunkRuntime{WorldSeed: 1}}

	tail := []action.Event{{Kind: action.WorldEventKind(9999), Tick: 1, Seq: 0}}
	if _, err := Replay(snap, tail); err == nil {
		t.Fatal("expected replay to reject an unrecognized event kind")
	}
}
