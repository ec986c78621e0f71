package persistence

import (
	"fmt"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/chunkgen"
	"github.com/kestrel-sim/worldkernel/internal/chunklifecycle"
	"github.com/kestrel-sim/worldkernel/internal/economy"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

// Replay rebuilds a *worldmodel.Store from a snapshot plus the journal
// tail recorded after it, applying every event in (tick, seq) order and
// never inventing one (spec 4.H). Chunk-lifecycle events are additionally
// verified against a freshly driven generator; any mismatch is the fatal,
// never-patched ReplayConflict (spec 4.H, 7).
func Replay(snap Snapshot, tail []action.Event) (*worldmodel.Store, error) {
	space := snap.WorldConfig.Space
	store := worldmodel.New(geo.Pos{X: space.ExtentXCm, Y: space.ExtentYCm, Z: space.ExtentZCm})
	store.LoadSnapshot(snap.World)

	generator := chunkgen.New(snap.ChunkRuntime.WorldSeed, snap.WorldConfig.AsteroidFragment)
	ctrl := chunklifecycle.NewController(store, generator, snap.WorldConfig.AsteroidFragment)

	for _, ev := range tail {
		if err := applyReplayedEvent(store, ctrl, ev); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func applyReplayedEvent(store *worldmodel.Store, ctrl *chunklifecycle.Controller, ev action.Event) error {
	switch ev.Kind {
	case action.EvChunkGenerated, action.EvChunkGenerationSkipped:
		return replayChunkLifecycle(store, ctrl, ev)

	case action.EvAgentMoved:
		agent, ok := store.Agent(ev.AgentID)
		if !ok {
			return replayConflictf("AgentMoved: agent %q not found", ev.AgentID)
		}
		agent.LocationID = ev.ToLocation
		return nil

	case action.EvAgentPromptUpdated:
		return nil // Observe mutates nothing.

	case action.EvCompoundMined:
		return replayMineCompound(store, ev)

	case action.EvMaterialTransferred:
		return replayMaterialTransferred(store, ev)

	case action.EvCompoundRefined:
		owner := resourcemodel.AgentOwner(ev.OwnerID)
		_ = store.AdjustResource(owner, resourcemodel.Hardware, ev.HardwareOut)
		return nil

	case action.EvFactoryBuilt:
		f := &worldmodel.Factory{
			ID: ev.FactoryID, Kind: ev.FactoryKind, LocationID: ev.LocationID,
			Owner:        resourcemodel.AgentOwner(ev.ActorID),
			InputLedger:  resourcemodel.FactoryLedger(ev.FactoryID),
			OutputLedger: resourcemodel.FactoryLedger(ev.FactoryID),
		}
		if err := store.RegisterFactory(f); err != nil {
			return replayConflictf("FactoryBuilt: %v", err)
		}
		if ev.FactoryKind == "factory.power.radiation.mk1" {
			_ = store.RegisterPowerPlant(&worldmodel.PowerPlant{ID: ev.FactoryID, LocationID: ev.LocationID, CapacityWatts: 10_000, EfficiencyPpm: 900_000})
		}
		return nil

	case action.EvRecipeScheduled:
		return replayRecipeScheduled(store, ev)

	case action.EvMaterialTransitStarted:
		store.EnqueueMaterialTransit(&worldmodel.PendingMaterialTransit{
			ID: ev.TransitID, From: ev.FromLedger, To: ev.ToLedger, Kind: ev.MaterialKind,
			Amount: ev.Amount, ReadyAtTick: ev.ReadyAtTick, LossAmount: ev.LossAmount,
		})
		return nil

	case action.EvMaterialTransitCompleted:
		delivered := ev.Amount
		_ = store.AdjustMaterialLedger(ev.ToLedger, ev.MaterialKind, delivered)
		return nil

	case action.EvPowerPlantRegistered:
		_ = store.RegisterPowerPlant(&worldmodel.PowerPlant{ID: ev.PowerID, CapacityWatts: ev.CapacityValue})
		return nil

	case action.EvPowerStorageRegistered:
		_ = store.RegisterPowerStorage(&worldmodel.PowerStorage{ID: ev.PowerID, CapacityWh: ev.CapacityValue})
		return nil

	case action.EvPowerBought:
		_ = store.AdjustResource(resourcemodel.AgentOwner(ev.ActorID), resourcemodel.Electricity, ev.WattHours)
		return nil

	case action.EvPowerSold:
		_ = store.AdjustResource(resourcemodel.AgentOwner(ev.ActorID), resourcemodel.Electricity, -ev.WattHours)
		return nil

	case action.EvSocialFactPublished:
		_ = store.AdjustResource(resourcemodel.AgentOwner(ev.ActorID), ev.StakeKind, -ev.StakeAmount)
		store.PublishSocialFact(&worldmodel.SocialFact{
			ID: ev.SocialFactID, Publisher: ev.ActorID, ConfidencePpm: ev.ConfidencePpm,
			EvidenceEvents: ev.EvidenceEvents, StakeKind: ev.StakeKind, StakeAmount: ev.StakeAmount,
		})
		return nil

	case action.EvSocialFactChallenged:
		fact, ok := store.SocialFact(ev.SocialFactID)
		if !ok {
			return replayConflictf("SocialFactChallenged: fact %q not found", ev.SocialFactID)
		}
		_ = store.AdjustResource(resourcemodel.AgentOwner(ev.ActorID), fact.StakeKind, -fact.StakeAmount)
		return store.SetSocialFactState(ev.SocialFactID, worldmodel.SocialChallenged)

	case action.EvSocialFactAdjudicated:
		fact, ok := store.SocialFact(ev.SocialFactID)
		if !ok {
			return replayConflictf("SocialFactAdjudicated: fact %q not found", ev.SocialFactID)
		}
		_ = store.AdjustResource(resourcemodel.WorldOwner(), fact.StakeKind, fact.StakeAmount)
		state := worldmodel.SocialConfirmed
		if ev.SocialState == "Revoked" {
			state = worldmodel.SocialRevoked
		}
		return store.SetSocialFactState(ev.SocialFactID, state)

	case action.EvSocialFactRevoked:
		fact, ok := store.SocialFact(ev.SocialFactID)
		if !ok {
			return replayConflictf("SocialFactRevoked: fact %q not found", ev.SocialFactID)
		}
		_ = store.AdjustResource(resourcemodel.AgentOwner(fact.Publisher), fact.StakeKind, fact.StakeAmount)
		return store.SetSocialFactState(ev.SocialFactID, worldmodel.SocialRetracted)

	case action.EvSocialEdgeDeclared:
		store.DeclareSocialEdge(&worldmodel.SocialEdge{ID: ev.SocialEdgeID, FromFact: ev.FromFactID, ToFact: ev.ToFactID, Relation: ev.Relation})
		return nil

	case action.EvModuleVisualUpserted, action.EvModuleVisualRemoved:
		// Visual entities are opaque presentation state (spec 9); replay
		// does not need to reconstruct them for simulation correctness.
		return nil

	case action.EvFragmentsReplenished:
		added, ran := ctrl.MaybeReplenish(ev.ChunkCoord, ev.Tick)
		if !ran || added != ev.ReplenishedCount {
			return replayConflictf("FragmentsReplenished at %s: got (ran=%v added=%d), recorded %d", ev.ChunkCoord, ran, added, ev.ReplenishedCount)
		}
		return nil

	case action.EvDebugResourceGranted:
		owner := resourcemodel.Owner{Kind: ev.GrantOwnerKind, ID: ev.OwnerID}
		_ = store.AdjustResource(owner, ev.GrantResourceKind, ev.Amount)
		return nil

	case action.EvActionRejected:
		return nil // audit-only; no state to reconstruct.

	default:
		return replayConflictf("unhandled event kind %s at tick %d seq %d", ev.Kind, ev.Tick, ev.Seq)
	}
}

func replayChunkLifecycle(store *worldmodel.Store, ctrl *chunklifecycle.Controller, ev action.Event) error {
	res := ctrl.EnsureGenerated(ev.ChunkCoord, ev.Cause)

	if ev.Kind == action.EvChunkGenerationSkipped {
		if !res.Skipped {
			return replayConflictf("chunk %s: recorded skip did not reproduce", ev.ChunkCoord)
		}
		return nil
	}

	if res.Skipped || res.AlreadyGenerated {
		return replayConflictf("chunk %s: recorded generation did not reproduce (skipped=%v alreadyGenerated=%v)", ev.ChunkCoord, res.Skipped, res.AlreadyGenerated)
	}
	if res.Seed != ev.ChunkSeed || res.FragmentCount != ev.FragmentCount || res.BlockCount != ev.BlockCount {
		return replayConflictf("chunk %s: generation mismatch (seed %d/%d, fragments %d/%d, blocks %d/%d)",
			ev.ChunkCoord, res.Seed, ev.ChunkSeed, res.FragmentCount, ev.FragmentCount, res.BlockCount, ev.BlockCount)
	}

	chunk := store.Chunk(ev.ChunkCoord)
	for element, total := range ev.ChunkBudgetTotal {
		if chunk.Budget.TotalByElement[element] != total {
			return replayConflictf("chunk %s: budget mismatch for element %s", ev.ChunkCoord, element)
		}
	}
	return nil
}

func replayMineCompound(store *worldmodel.Store, ev action.Event) error {
	loc, ok := store.Location(ev.LocationID)
	if !ok || loc.FragmentRef == nil {
		return replayConflictf("CompoundMined: location %q has no fragment ref", ev.LocationID)
	}
	chunk := store.Chunk(loc.FragmentRef.Chunk)
	frag, ok := chunk.FragmentByID(loc.FragmentRef.FragmentID)
	if !ok {
		return replayConflictf("CompoundMined: fragment %q not found", loc.FragmentRef.FragmentID)
	}

	plan, err := economy.PlanMining(frag, ev.GramsMoved)
	if err != nil {
		return replayConflictf("CompoundMined: re-planning failed: %v", err)
	}
	for _, p := range plan {
		if err := economy.ConsumeFragmentResource(store, loc.FragmentRef.Chunk, frag.ID, p.Element, p.Grams); err != nil {
			return replayConflictf("CompoundMined: re-depletion failed: %v", err)
		}
	}

	owner := resourcemodel.AgentOwner(ev.AgentID)
	_ = store.AdjustResource(owner, resourcemodel.Electricity, -ev.ElectricityCharged)
	_ = store.AdjustResource(owner, resourcemodel.Compound, ev.GramsMoved)
	loc.MinedThisEpoch += ev.GramsMoved
	return nil
}

func replayMaterialTransferred(store *worldmodel.Store, ev action.Event) error {
	if ev.ActorID != "" && ev.ToLedger == (resourcemodel.LedgerID{}) && ev.FromLedger == (resourcemodel.LedgerID{}) {
		// The Transfer (not TransferMaterial) variant: agent -> location,
		// same-tick compound move (no logistics ledger involved).
		from := resourcemodel.AgentOwner(ev.ActorID)
		to := resourcemodel.LocationOwner(ev.ToLocation)
		_ = store.AdjustResource(from, resourcemodel.Compound, -ev.GramsMoved)
		_ = store.AdjustResource(to, resourcemodel.Compound, ev.GramsMoved)
		return nil
	}
	_ = store.AdjustMaterialLedger(ev.FromLedger, ev.MaterialKind, -ev.Amount)
	_ = store.AdjustMaterialLedger(ev.ToLedger, ev.MaterialKind, ev.Amount)
	return nil
}

func replayRecipeScheduled(store *worldmodel.Store, ev action.Event) error {
	factory, ok := store.Factory(ev.FactoryID)
	if !ok {
		return replayConflictf("RecipeScheduled: factory %q not found", ev.FactoryID)
	}
	recipe, ok := economy.LookupRecipe(ev.RecipeID)
	if !ok {
		return replayConflictf("RecipeScheduled: unknown recipe %q", ev.RecipeID)
	}
	result := economy.FactoryProduction(recipe, ev.Batches)

	if result.HardwareConsumed > 0 {
		_ = store.AdjustMaterialLedger(factory.InputLedger, "hardware", -result.HardwareConsumed)
	}
	if result.ElectricityConsumed > 0 {
		_ = store.AdjustResource(factory.Owner, resourcemodel.Electricity, -result.ElectricityConsumed)
	}
	if result.HardwareOut > 0 {
		_ = store.AdjustMaterialLedger(factory.OutputLedger, "hardware", result.HardwareOut)
	}
	if result.DataOut > 0 {
		_ = store.AdjustMaterialLedger(factory.OutputLedger, "data", result.DataOut)
	}
	return nil
}

func replayConflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kernelerr.ErrReplayConflict, fmt.Sprintf(format, args...))
}
