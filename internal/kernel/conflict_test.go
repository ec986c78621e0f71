package kernel

import (
	"testing"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
)

func TestConflictKeyScopesSoloActionsByActor(t *testing.T) {
	a := action.Action{Kind: action.Move, ToLocationID: "loc-1"}
	k1 := ConflictKey("agent-1", a)
	k2 := ConflictKey("agent-2", a)
	if k1 == k2 {
		t.Fatalf("two distinct actors' Move intents must not share a conflict key: %q", k1)
	}
}

func TestConflictKeySharedForSameTarget(t *testing.T) {
	a1 := action.Action{Kind: action.MineCompound, LocationID: "loc-1", Element: "Fe"}
	a2 := action.Action{Kind: action.MineCompound, LocationID: "loc-1", Element: "Fe"}
	if ConflictKey("agent-1", a1) != ConflictKey("agent-2", a2) {
		t.Fatal("mining the same location+element must share a conflict key regardless of actor")
	}
}

func TestOrderBatchIsDeterministicRegardlessOfInputOrder(t *testing.T) {
	mk := func(actorID string) action.Intent {
		a := action.Action{Kind: action.MineCompound, LocationID: "loc-1", Element: "Fe"}
		return action.Intent{ActorID: actorID, Action: a, IntentHash: IntentHash(actorID, a)}
	}
	forward := []action.Intent{mk("z"), mk("a"), mk("m")}
	backward := []action.Intent{mk("m"), mk("a"), mk("z")}

	OrderBatch(forward)
	OrderBatch(backward)

	for i := range forward {
		if forward[i].ActorID != backward[i].ActorID {
			t.Fatalf("order diverged at %d: %q vs %q", i, forward[i].ActorID, backward[i].ActorID)
		}
	}
	if forward[0].ActorID != "a" {
		t.Fatalf("expected lexicographically first actor to sort first, got %q", forward[0].ActorID)
	}
}

func TestResolveBatchExclusiveFirstWins(t *testing.T) {
	a := action.Action{Kind: action.BuildFactory, LocationID: "loc-1", FactoryKind: "factory.fabrication.mk1"}
	intents := []action.Intent{
		{ActorID: "b", Action: a, IntentHash: IntentHash("b", a), ConflictKey: ConflictKey("b", a)},
		{ActorID: "a", Action: a, IntentHash: IntentHash("a", a), ConflictKey: ConflictKey("a", a)},
	}
	report := ResolveBatch(intents)
	if len(report.Accepted) != 1 || len(report.Rejected) != 1 {
		t.Fatalf("expected exactly one accepted and one rejected, got %+v", report)
	}
	if report.Accepted[0].ActorID != "a" {
		t.Fatalf("expected actor 'a' to win (lexicographically first), got %q", report.Accepted[0].ActorID)
	}
	if report.Rejected[0].Reason.Code.String() != "ConflictLoss" {
		t.Fatalf("expected ConflictLoss, got %s", report.Rejected[0].Reason.Code)
	}
}

func TestResolveBatchAdditiveAllowsAll(t *testing.T) {
	toLedger := action.Action{Kind: action.TransferMaterial, ToLedger: resourcemodel.SiteLedger("site-1"), MaterialKind: "hardware"}
	intents := []action.Intent{
		{ActorID: "a", Action: toLedger, IntentHash: IntentHash("a", toLedger), ConflictKey: ConflictKey("a", toLedger)},
		{ActorID: "b", Action: toLedger, IntentHash: IntentHash("b", toLedger), ConflictKey: ConflictKey("b", toLedger)},
	}
	report := ResolveBatch(intents)
	if len(report.Accepted) != 2 || len(report.Rejected) != 0 {
		t.Fatalf("expected both additive TransferMaterial intents accepted, got %+v", report)
	}
}

func TestBatchHashStableForSameOrder(t *testing.T) {
	a := action.Action{Kind: action.Observe}
	intents := []action.Intent{
		{ActorID: "a", IntentHash: IntentHash("a", a)},
		{ActorID: "b", IntentHash: IntentHash("b", a)},
	}
	h1 := BatchHash(intents)
	h2 := BatchHash(intents)
	if h1 != h2 {
		t.Fatal("BatchHash must be stable for the same ordered input")
	}
}
