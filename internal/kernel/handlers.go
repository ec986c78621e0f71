package kernel

import (
	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/economy"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

// apply validates and mutates for one accepted intent, returning the
// emitted event (spec 4.D "Validation & effects per canonical action").
// RunTick fills in the returned event's Seq (from appendEvent) and Tick.
func (k *Kernel) apply(tick uint64, actorID string, a action.Action) (action.Event, kernelerr.Reject, bool) {
	switch a.Kind {
	case action.Move:
		return k.applyMove(a)
	case action.Observe:
		return k.applyObserve(a)
	case action.Harvest, action.MineCompound:
		return k.applyMineCompound(a)
	case action.Transfer:
		return k.applyTransfer(a)
	case action.RefineCompound:
		return k.applyRefine(a)
	case action.BuildFactory:
		return k.applyBuildFactory(a)
	case action.ScheduleRecipe:
		return k.applyScheduleRecipe(tick, a)
	case action.TransferMaterial:
		return k.applyTransferMaterial(tick, a)
	case action.RegisterPowerPlant:
		return k.applyRegisterPowerPlant(a)
	case action.RegisterPowerStorage:
		return k.applyRegisterPowerStorage(a)
	case action.BuyPower:
		return k.applyBuyPower(a)
	case action.SellPower:
		return k.applySellPower(a)
	case action.PublishSocialFact:
		return k.applyPublishSocialFact(a)
	case action.ChallengeSocialFact:
		return k.applyChallengeSocialFact(a)
	case action.AdjudicateSocialFact:
		return k.applyAdjudicateSocialFact(a)
	case action.RevokeSocialFact:
		return k.applyRevokeSocialFact(a)
	case action.DeclareSocialEdge:
		return k.applyDeclareSocialEdge(a)
	case action.UpsertModuleVisualEntity:
		return k.applyUpsertVisual(a)
	case action.RemoveModuleVisualEntity:
		return k.applyRemoveVisual(a)
	case action.DebugGrantResource:
		return k.applyDebugGrantResource(a)
	case action.DebugSetAgentShutdown:
		return k.applyDebugSetAgentShutdown(a)
	default:
		return action.Event{}, kernelerr.NewValidationError("kind"), false
	}
}

func (k *Kernel) applyMove(a action.Action) (action.Event, kernelerr.Reject, bool) {
	agent, ok := k.store.Agent(a.AgentID)
	if !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.FacilityNotFound), false
	}
	if agent.ShutdownSet {
		return action.Event{}, kernelerr.NewSimple(kernelerr.AgentShutdown), false
	}
	dest, ok := k.store.Location(a.ToLocationID)
	if !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.LocationNotFound), false
	}
	if agent.LocationID == a.ToLocationID {
		return action.Event{}, kernelerr.NewSimple(kernelerr.AgentAlreadyAtLocation), false
	}
	if agent.Kinematics != nil && agent.Kinematics.Active {
		return action.Event{}, kernelerr.NewValidationError("agent_id"), false
	}

	if !k.cfg.Physics.KinematicsEnabled && k.cfg.Physics.MaxMoveDistanceCmPerTick > 0 {
		origin, ok := k.store.Location(agent.LocationID)
		if ok {
			dist := origin.Pos.DistanceSquaredCm(dest.Pos)
			max := k.cfg.Physics.MaxMoveDistanceCmPerTick
			if dist > max*max {
				return action.Event{}, kernelerr.NewSimple(kernelerr.MoveDistanceExceeded), false
			}
		}
	}

	from := agent.LocationID

	if k.cfg.Physics.KinematicsEnabled {
		origin, ok := k.store.Location(from)
		if !ok {
			return action.Event{}, kernelerr.NewSimple(kernelerr.LocationNotFound), false
		}
		remaining := origin.Pos.DistanceCm(dest.Pos)
		agent.Kinematics = &worldmodel.KinematicsState{Active: true, DestLocation: a.ToLocationID, RemainingCm: remaining}
		return action.Event{
			Kind: action.EvMoveStarted, ActorID: a.AgentID, AgentID: a.AgentID,
			FromLocation: from, ToLocation: a.ToLocationID, RemainingCm: remaining,
		}, kernelerr.Reject{}, true
	}

	agent.LocationID = a.ToLocationID
	return action.Event{Kind: action.EvAgentMoved, ActorID: a.AgentID, AgentID: a.AgentID, FromLocation: from, ToLocation: a.ToLocationID}, kernelerr.Reject{}, true
}

// advanceKinematics steps every agent with an in-flight move by one
// tick's speed_cm_per_tick (spec: "Movement kinematics (when enabled)"),
// emitting MoveProgressed each tick and MoveArrived on arrival, where it
// also applies the location change that the instant-move path applies
// immediately instead.
func (k *Kernel) advanceKinematics(tick uint64) []action.Event {
	if !k.cfg.Physics.KinematicsEnabled {
		return nil
	}
	var events []action.Event
	for _, agentID := range k.store.AgentIDs() {
		agent, ok := k.store.Agent(agentID)
		if !ok || agent.Kinematics == nil || !agent.Kinematics.Active {
			continue
		}
		agent.Kinematics.RemainingCm -= k.cfg.Physics.SpeedCmPerTick
		if agent.Kinematics.RemainingCm > 0 {
			ev := action.Event{
				Kind: action.EvMoveProgressed, ActorID: agentID, AgentID: agentID,
				ToLocation: agent.Kinematics.DestLocation, RemainingCm: agent.Kinematics.RemainingCm,
			}
			ev.Seq = k.appendEvent(tick, ev)
			events = append(events, ev)
			continue
		}

		from := agent.LocationID
		agent.LocationID = agent.Kinematics.DestLocation
		agent.Kinematics.Active = false
		ev := action.Event{
			Kind: action.EvMoveArrived, ActorID: agentID, AgentID: agentID,
			FromLocation: from, ToLocation: agent.LocationID,
		}
		ev.Seq = k.appendEvent(tick, ev)
		events = append(events, ev)
	}
	return events
}

// applyObserve triggers ensure_chunk_generated as a side effect of the
// caller's chunk-referencing pre-phase (handled in RunTick's ensure_chunks
// phase); Observe itself mutates nothing (expansion: read-only action).
func (k *Kernel) applyObserve(a action.Action) (action.Event, kernelerr.Reject, bool) {
	return action.Event{Kind: action.EvAgentPromptUpdated, AgentID: a.AgentID}, kernelerr.Reject{}, true
}

func (k *Kernel) locationFragment(locationID string) (*worldmodel.Location, geo.ChunkCoord, *chunkmodel.Fragment, kernelerr.Reject, bool) {
	loc, ok := k.store.Location(locationID)
	if !ok {
		return nil, geo.ChunkCoord{}, nil, kernelerr.NewSimple(kernelerr.LocationNotFound), false
	}
	if loc.FragmentRef == nil {
		return nil, geo.ChunkCoord{}, nil, kernelerr.NewValidationError("location"), false
	}
	chunk := k.store.Chunk(loc.FragmentRef.Chunk)
	frag, ok := chunk.FragmentByID(loc.FragmentRef.FragmentID)
	if !ok {
		return nil, geo.ChunkCoord{}, nil, kernelerr.NewValidationError("location"), false
	}
	return loc, loc.FragmentRef.Chunk, frag, kernelerr.Reject{}, true
}

func (k *Kernel) applyMineCompound(a action.Action) (action.Event, kernelerr.Reject, bool) {
	agent, ok := k.store.Agent(a.AgentID)
	if !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.FacilityNotFound), false
	}
	if agent.ShutdownSet {
		return action.Event{}, kernelerr.NewSimple(kernelerr.AgentShutdown), false
	}
	if agent.LocationID != a.LocationID {
		return action.Event{}, kernelerr.NewSimple(kernelerr.AgentNotAtLocation), false
	}
	if a.MassG <= 0 || a.MassG > k.cfg.Economy.MineCompoundMaxPerActionG {
		return action.Event{}, kernelerr.NewValidationError("mass_g"), false
	}

	loc, coord, frag, reject, ok := k.locationFragment(a.LocationID)
	if !ok {
		return action.Event{}, reject, false
	}
	if loc.MinedThisEpoch+a.MassG > k.cfg.Economy.MineCompoundMaxPerLocationG {
		return action.Event{}, kernelerr.NewValidationError("mass_g"), false
	}

	plan, err := economy.PlanMining(frag, a.MassG)
	if err != nil {
		if r, ok := kernelerr.AsReject(err); ok {
			return action.Event{}, r, false
		}
		return action.Event{}, kernelerr.NewValidationError("mass_g"), false
	}

	cost := economy.MineElectricityCost(k.cfg.Economy, a.MassG)
	owner := resourcemodel.AgentOwner(a.AgentID)
	if err := k.store.AdjustResource(owner, resourcemodel.Electricity, -cost); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Electricity), false
	}

	for _, p := range plan {
		if err := economy.ConsumeFragmentResource(k.store, coord, frag.ID, p.Element, p.Grams); err != nil {
			// Roll back the electricity charge; mining is all-or-nothing.
			_ = k.store.AdjustResource(owner, resourcemodel.Electricity, cost)
			if r, ok := kernelerr.AsReject(err); ok {
				return action.Event{}, r, false
			}
			return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Compound), false
		}
	}

	if err := k.store.AdjustResource(owner, resourcemodel.Compound, a.MassG); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Compound), false
	}
	loc.MinedThisEpoch += a.MassG

	return action.Event{
		Kind: action.EvCompoundMined, ActorID: a.AgentID, AgentID: a.AgentID, LocationID: a.LocationID,
		GramsMoved: a.MassG, ElectricityCharged: cost,
	}, kernelerr.Reject{}, true
}

// applyTransfer moves Compound mass from an agent to a location in the
// same tick (the generic counterpart to TransferMaterial's multi-ledger,
// possibly-delayed logistics).
func (k *Kernel) applyTransfer(a action.Action) (action.Event, kernelerr.Reject, bool) {
	from := resourcemodel.AgentOwner(a.AgentID)
	to := resourcemodel.LocationOwner(a.ToLocationID)
	kind := resourcemodel.Compound
	if a.MassG <= 0 {
		return action.Event{}, kernelerr.NewValidationError("mass_g"), false
	}
	if err := k.store.AdjustResource(from, kind, -a.MassG); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(kind), false
	}
	if err := k.store.AdjustResource(to, kind, a.MassG); err != nil {
		_ = k.store.AdjustResource(from, kind, a.MassG)
		return action.Event{}, kernelerr.NewInsufficientResource(kind), false
	}
	return action.Event{Kind: action.EvMaterialTransferred, ActorID: a.AgentID, GramsMoved: a.MassG}, kernelerr.Reject{}, true
}

func (k *Kernel) applyRefine(a action.Action) (action.Event, kernelerr.Reject, bool) {
	owner := resourcemodel.AgentOwner(a.OwnerID)
	if a.MassG <= 0 {
		return action.Event{}, kernelerr.NewValidationError("mass_g"), false
	}

	cost := economy.RefineElectricityCost(k.cfg.Economy, a.MassG)
	if err := k.store.AdjustResource(owner, resourcemodel.Compound, -a.MassG); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Compound), false
	}
	if err := k.store.AdjustResource(owner, resourcemodel.Electricity, -cost); err != nil {
		_ = k.store.AdjustResource(owner, resourcemodel.Compound, a.MassG)
		return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Electricity), false
	}

	hardwareOut := economy.Refine(k.cfg.Economy, a.MassG)
	_ = k.store.AdjustResource(owner, resourcemodel.Hardware, hardwareOut)

	return action.Event{Kind: action.EvCompoundRefined, ActorID: a.OwnerID, OwnerID: a.OwnerID, HardwareOut: hardwareOut, ElectricityCharged: cost}, kernelerr.Reject{}, true
}

func (k *Kernel) applyBuildFactory(a action.Action) (action.Event, kernelerr.Reject, bool) {
	if _, ok := k.store.Location(a.LocationID); !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.LocationNotFound), false
	}
	owner := resourcemodel.AgentOwner(a.OwnerID)

	const buildHardwareCost = 1000
	if err := k.store.AdjustResource(owner, resourcemodel.Hardware, -buildHardwareCost); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Hardware), false
	}

	f := &worldmodel.Factory{
		ID: a.FactoryID, Kind: a.FactoryKind, LocationID: a.LocationID, Owner: owner,
		InputLedger:  resourcemodel.FactoryLedger(a.FactoryID),
		OutputLedger: resourcemodel.FactoryLedger(a.FactoryID),
	}
	if err := k.store.RegisterFactory(f); err != nil {
		_ = k.store.AdjustResource(owner, resourcemodel.Hardware, buildHardwareCost)
		return action.Event{}, kernelerr.NewSimple(kernelerr.FacilityAlreadyExists), false
	}

	if a.FactoryKind == "factory.power.radiation.mk1" {
		_ = k.store.RegisterPowerPlant(&worldmodel.PowerPlant{ID: a.FactoryID, LocationID: a.LocationID, CapacityWatts: 10_000, EfficiencyPpm: 900_000})
	}

	return action.Event{Kind: action.EvFactoryBuilt, ActorID: a.OwnerID, FactoryID: a.FactoryID, FactoryKind: a.FactoryKind, LocationID: a.LocationID}, kernelerr.Reject{}, true
}

func (k *Kernel) applyScheduleRecipe(tick uint64, a action.Action) (action.Event, kernelerr.Reject, bool) {
	factory, ok := k.store.Factory(a.FactoryID)
	if !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.FacilityNotFound), false
	}
	recipe, ok := economy.LookupRecipe(a.RecipeID)
	if !ok {
		return action.Event{}, kernelerr.NewValidationError("recipe_id"), false
	}
	if recipe.CompatibleKind != factory.Kind {
		return action.Event{}, kernelerr.NewRuleDenied("incompatible recipe"), false
	}
	if a.Batches <= 0 {
		return action.Event{}, kernelerr.NewValidationError("batches"), false
	}

	result := economy.FactoryProduction(recipe, a.Batches)

	if result.HardwareConsumed > 0 {
		if err := k.store.AdjustMaterialLedger(factory.InputLedger, "hardware", -result.HardwareConsumed); err != nil {
			return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Hardware), false
		}
	}
	if result.ElectricityConsumed > 0 {
		if err := k.store.AdjustResource(factory.Owner, resourcemodel.Electricity, -result.ElectricityConsumed); err != nil {
			if result.HardwareConsumed > 0 {
				_ = k.store.AdjustMaterialLedger(factory.InputLedger, "hardware", result.HardwareConsumed)
			}
			return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Electricity), false
		}
	}

	if result.HardwareOut > 0 {
		_ = k.store.AdjustMaterialLedger(factory.OutputLedger, "hardware", result.HardwareOut)
	}
	if result.DataOut > 0 {
		_ = k.store.AdjustMaterialLedger(factory.OutputLedger, "data", result.DataOut)
	}

	return action.Event{
		Kind: action.EvRecipeScheduled, ActorID: a.FactoryID, FactoryID: a.FactoryID, RecipeID: a.RecipeID, Batches: a.Batches,
		HardwareOut: result.HardwareOut, ElectricityCharged: result.ElectricityConsumed,
	}, kernelerr.Reject{}, true
}

func (k *Kernel) applyTransferMaterial(tick uint64, a action.Action) (action.Event, kernelerr.Reject, bool) {
	plan, err := economy.PlanTransit(k.cfg.Logistics, tick, a.Amount, a.DistanceKm)
	if err != nil {
		if r, ok := kernelerr.AsReject(err); ok {
			return action.Event{}, r, false
		}
		return action.Event{}, kernelerr.NewValidationError("amount"), false
	}

	if err := k.store.AdjustMaterialLedger(a.FromLedger, a.MaterialKind, -a.Amount); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Compound), false
	}

	if a.DistanceKm == 0 {
		_ = k.store.AdjustMaterialLedger(a.ToLedger, a.MaterialKind, a.Amount)
		return action.Event{Kind: action.EvMaterialTransferred, FromLedger: a.FromLedger, ToLedger: a.ToLedger, MaterialKind: a.MaterialKind, Amount: a.Amount}, kernelerr.Reject{}, true
	}

	if k.store.PendingTransitCount() >= k.cfg.Logistics.MaxInflightPerTick {
		_ = k.store.AdjustMaterialLedger(a.FromLedger, a.MaterialKind, a.Amount)
		return action.Event{}, kernelerr.NewRuleDenied("inflight limit"), false
	}

	id := k.store.NextMaterialTransitID()
	k.store.EnqueueMaterialTransit(&worldmodel.PendingMaterialTransit{
		ID: id, From: a.FromLedger, To: a.ToLedger, Kind: a.MaterialKind,
		Amount: a.Amount, ReadyAtTick: plan.ReadyAtTick, LossAmount: plan.LossAmount,
	})

	return action.Event{
		Kind: action.EvMaterialTransitStarted, FromLedger: a.FromLedger, ToLedger: a.ToLedger,
		MaterialKind: a.MaterialKind, Amount: a.Amount, LossAmount: plan.LossAmount, ReadyAtTick: plan.ReadyAtTick, TransitID: id,
	}, kernelerr.Reject{}, true
}

func (k *Kernel) applyRegisterPowerPlant(a action.Action) (action.Event, kernelerr.Reject, bool) {
	p := &worldmodel.PowerPlant{ID: a.PowerID, LocationID: a.LocationID, CapacityWatts: a.CapacityValue, EfficiencyPpm: a.EfficiencyPpm}
	if err := k.store.RegisterPowerPlant(p); err != nil {
		return action.Event{}, kernelerr.NewSimple(kernelerr.FacilityAlreadyExists), false
	}
	return action.Event{Kind: action.EvPowerPlantRegistered, PowerID: a.PowerID, CapacityValue: a.CapacityValue}, kernelerr.Reject{}, true
}

func (k *Kernel) applyRegisterPowerStorage(a action.Action) (action.Event, kernelerr.Reject, bool) {
	p := &worldmodel.PowerStorage{ID: a.PowerID, LocationID: a.LocationID, CapacityWh: a.CapacityValue, EfficiencyPpm: a.EfficiencyPpm}
	if err := k.store.RegisterPowerStorage(p); err != nil {
		return action.Event{}, kernelerr.NewSimple(kernelerr.FacilityAlreadyExists), false
	}
	return action.Event{Kind: action.EvPowerStorageRegistered, PowerID: a.PowerID, CapacityValue: a.CapacityValue}, kernelerr.Reject{}, true
}

func (k *Kernel) applyBuyPower(a action.Action) (action.Event, kernelerr.Reject, bool) {
	owner := resourcemodel.AgentOwner(a.AgentID)
	if err := k.store.AdjustResource(owner, resourcemodel.Electricity, a.WattHours); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Electricity), false
	}
	return action.Event{Kind: action.EvPowerBought, ActorID: a.AgentID, PowerID: a.PowerStorageID, WattHours: a.WattHours}, kernelerr.Reject{}, true
}

func (k *Kernel) applySellPower(a action.Action) (action.Event, kernelerr.Reject, bool) {
	owner := resourcemodel.AgentOwner(a.AgentID)
	if err := k.store.AdjustResource(owner, resourcemodel.Electricity, -a.WattHours); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(resourcemodel.Electricity), false
	}
	return action.Event{Kind: action.EvPowerSold, ActorID: a.AgentID, PowerID: a.PowerStorageID, WattHours: a.WattHours}, kernelerr.Reject{}, true
}

func (k *Kernel) applyPublishSocialFact(a action.Action) (action.Event, kernelerr.Reject, bool) {
	if a.ConfidencePpm < k.cfg.Social.MinConfidencePpm || a.ConfidencePpm > k.cfg.Social.MaxConfidencePpm {
		return action.Event{}, kernelerr.NewValidationError("confidence_ppm"), false
	}
	if len(a.EvidenceEvents) == 0 {
		return action.Event{}, kernelerr.NewValidationError("evidence_events"), false
	}

	stakeOwner := resourcemodel.AgentOwner(a.Publisher)
	stakeKind := k.cfg.Social.DefaultStakeKind
	stakeAmount := k.cfg.Social.DefaultStakeAmount
	if err := k.store.AdjustResource(stakeOwner, stakeKind, -stakeAmount); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(stakeKind), false
	}

	id := k.store.NextSocialFactID()
	k.store.PublishSocialFact(&worldmodel.SocialFact{
		ID: id, Publisher: a.Publisher, ConfidencePpm: a.ConfidencePpm,
		EvidenceEvents: a.EvidenceEvents, StakeKind: stakeKind, StakeAmount: stakeAmount,
	})

	return action.Event{
		Kind: action.EvSocialFactPublished, ActorID: a.Publisher, SocialFactID: id, ConfidencePpm: a.ConfidencePpm, SocialState: "Active",
		EvidenceEvents: a.EvidenceEvents, StakeKind: stakeKind, StakeAmount: stakeAmount,
	}, kernelerr.Reject{}, true
}

func (k *Kernel) applyChallengeSocialFact(a action.Action) (action.Event, kernelerr.Reject, bool) {
	fact, ok := k.store.SocialFact(a.SocialFactID)
	if !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.SocialFactNotFound), false
	}
	if fact.State != worldmodel.SocialActive {
		return action.Event{}, kernelerr.NewValidationError("state"), false
	}

	challengerOwner := resourcemodel.AgentOwner(a.Adjudicator)
	if err := k.store.AdjustResource(challengerOwner, fact.StakeKind, -fact.StakeAmount); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(fact.StakeKind), false
	}

	fact.Challenger = a.Adjudicator
	_ = k.store.SetSocialFactState(a.SocialFactID, worldmodel.SocialChallenged)

	return action.Event{Kind: action.EvSocialFactChallenged, ActorID: a.Adjudicator, SocialFactID: a.SocialFactID, SocialState: "Challenged"}, kernelerr.Reject{}, true
}

// applyAdjudicateSocialFact enforces adjudicator == world or publisher
// (spec 4.D); on Confirm the challenger's stake is forfeit to the system
// pool, on Revoke the publisher's stake is (spec 4.D AdjudicateSocialFact
// / RevokeSocialFact).
func (k *Kernel) applyAdjudicateSocialFact(a action.Action) (action.Event, kernelerr.Reject, bool) {
	fact, ok := k.store.SocialFact(a.SocialFactID)
	if !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.SocialFactNotFound), false
	}
	if fact.State != worldmodel.SocialChallenged {
		return action.Event{}, kernelerr.NewValidationError("state"), false
	}
	if a.Adjudicator != fact.Publisher && a.Adjudicator != "world" {
		return action.Event{}, kernelerr.NewSimple(kernelerr.Unauthorized), false
	}

	switch a.Verdict {
	case "confirm":
		_ = k.store.AdjustResource(resourcemodel.WorldOwner(), fact.StakeKind, fact.StakeAmount)
		_ = k.store.SetSocialFactState(a.SocialFactID, worldmodel.SocialConfirmed)
		return action.Event{Kind: action.EvSocialFactAdjudicated, ActorID: a.Adjudicator, SocialFactID: a.SocialFactID, SocialState: "Confirmed"}, kernelerr.Reject{}, true
	case "revoke":
		_ = k.store.AdjustResource(resourcemodel.WorldOwner(), fact.StakeKind, fact.StakeAmount)
		_ = k.store.SetSocialFactState(a.SocialFactID, worldmodel.SocialRevoked)
		return action.Event{Kind: action.EvSocialFactAdjudicated, ActorID: a.Adjudicator, SocialFactID: a.SocialFactID, SocialState: "Revoked"}, kernelerr.Reject{}, true
	default:
		return action.Event{}, kernelerr.NewValidationError("verdict"), false
	}
}

func (k *Kernel) applyRevokeSocialFact(a action.Action) (action.Event, kernelerr.Reject, bool) {
	fact, ok := k.store.SocialFact(a.SocialFactID)
	if !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.SocialFactNotFound), false
	}
	if a.Adjudicator != fact.Publisher && a.Adjudicator != "world" {
		return action.Event{}, kernelerr.NewSimple(kernelerr.Unauthorized), false
	}
	_ = k.store.AdjustResource(resourcemodel.AgentOwner(fact.Publisher), fact.StakeKind, fact.StakeAmount)
	_ = k.store.SetSocialFactState(a.SocialFactID, worldmodel.SocialRetracted)
	return action.Event{Kind: action.EvSocialFactRevoked, ActorID: a.Adjudicator, SocialFactID: a.SocialFactID, SocialState: "Retracted"}, kernelerr.Reject{}, true
}

func (k *Kernel) applyDeclareSocialEdge(a action.Action) (action.Event, kernelerr.Reject, bool) {
	if _, ok := k.store.SocialFact(a.FromFactID); !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.SocialFactNotFound), false
	}
	if _, ok := k.store.SocialFact(a.ToFactID); !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.SocialFactNotFound), false
	}
	id := k.store.NextSocialEdgeID()
	k.store.DeclareSocialEdge(&worldmodel.SocialEdge{ID: id, FromFact: a.FromFactID, ToFact: a.ToFactID, Relation: a.Relation})
	return action.Event{Kind: action.EvSocialEdgeDeclared, SocialEdgeID: id, FromFactID: a.FromFactID, ToFactID: a.ToFactID, Relation: a.Relation}, kernelerr.Reject{}, true
}

func (k *Kernel) applyUpsertVisual(a action.Action) (action.Event, kernelerr.Reject, bool) {
	anchor := worldmodel.VisualAnchor{Kind: worldmodel.VisualAnchorKind(a.Anchor.Kind), ID: a.Anchor.ID, Pos: a.Anchor.Pos}
	e := &worldmodel.ModuleVisualEntity{EntityID: a.EntityID, ModuleID: a.ModuleID, Kind: a.FactoryKind, Label: a.Label, Anchor: anchor}
	if err := k.store.SpawnVisualEntity(e); err != nil {
		if r, ok := kernelerr.AsReject(err); ok {
			return action.Event{}, r, false
		}
		return action.Event{}, kernelerr.NewValidationError("entity_id"), false
	}
	return action.Event{Kind: action.EvModuleVisualUpserted, EntityID: a.EntityID}, kernelerr.Reject{}, true
}

func (k *Kernel) applyRemoveVisual(a action.Action) (action.Event, kernelerr.Reject, bool) {
	if err := k.store.RemoveVisualEntity(a.EntityID); err != nil {
		return action.Event{}, kernelerr.NewSimple(kernelerr.LocationNotFound), false
	}
	return action.Event{Kind: action.EvModuleVisualRemoved, EntityID: a.EntityID}, kernelerr.Reject{}, true
}

// applyDebugGrantResource is gated by WorldConfig.GetDebugEnabled; the
// check happens here in the kernel, since Runner.Submit forwards debug
// actions without filtering them.
func (k *Kernel) applyDebugGrantResource(a action.Action) (action.Event, kernelerr.Reject, bool) {
	if !k.cfg.GetDebugEnabled() {
		return action.Event{}, kernelerr.NewSimple(kernelerr.Unauthorized), false
	}
	if err := k.store.AdjustResource(a.GrantOwner, a.GrantKind, a.GrantDelta); err != nil {
		return action.Event{}, kernelerr.NewInsufficientResource(a.GrantKind), false
	}
	return action.Event{
		Kind: action.EvDebugResourceGranted, OwnerID: a.GrantOwner.ID, Amount: a.GrantDelta,
		GrantOwnerKind: a.GrantOwner.Kind, GrantResourceKind: a.GrantKind,
	}, kernelerr.Reject{}, true
}

// applyDebugSetAgentShutdown is gated by WorldConfig.DebugEnabled, mirroring
// applyDebugGrantResource; it backs the AgentShutdown reject reason (spec
// 4.A) by giving it a real way to become true.
func (k *Kernel) applyDebugSetAgentShutdown(a action.Action) (action.Event, kernelerr.Reject, bool) {
	if !k.cfg.GetDebugEnabled() {
		return action.Event{}, kernelerr.NewSimple(kernelerr.Unauthorized), false
	}
	agent, ok := k.store.Agent(a.AgentID)
	if !ok {
		return action.Event{}, kernelerr.NewSimple(kernelerr.FacilityNotFound), false
	}
	agent.ShutdownSet = a.ShutdownSet
	return action.Event{Kind: action.EvAgentShutdownSet, AgentID: a.AgentID, ShutdownSet: a.ShutdownSet}, kernelerr.Reject{}, true
}
