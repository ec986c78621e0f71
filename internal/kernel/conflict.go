package kernel

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/kestrel-sim/worldkernel/internal/action"
)

// ConflictKey derives the target-identity key two intents collide on
// (spec 4.D): e.g. harvest(location_id, element) or
// build_factory(location_id, kind). Actions with no shared-target
// semantics (Move, Observe) get a conflict key scoped to actorID, so two
// different actors never collide with one another over it.
func ConflictKey(actorID string, a action.Action) string {
	switch a.Kind {
	case action.MineCompound, action.Harvest:
		return fmt.Sprintf("mine:%s:%s", a.LocationID, a.Element)
	case action.BuildFactory:
		return fmt.Sprintf("build:%s:%s", a.LocationID, a.FactoryKind)
	case action.ScheduleRecipe:
		return fmt.Sprintf("recipe:%s:%s", a.FactoryID, a.RecipeID)
	case action.TransferMaterial:
		return fmt.Sprintf("transfer:%s:%s", a.ToLedger, a.MaterialKind)
	case action.RegisterPowerPlant, action.RegisterPowerStorage:
		return fmt.Sprintf("power-register:%s", a.PowerID)
	case action.PublishSocialFact:
		return fmt.Sprintf("social-publish:%s", a.Publisher)
	case action.ChallengeSocialFact, action.AdjudicateSocialFact, action.RevokeSocialFact:
		return fmt.Sprintf("social-lifecycle:%s", a.SocialFactID)
	case action.UpsertModuleVisualEntity, action.RemoveModuleVisualEntity:
		return fmt.Sprintf("visual:%s", a.EntityID)
	default:
		return fmt.Sprintf("solo:%s:%d", actorID, a.Kind)
	}
}

// isAdditive reports whether a kind is conflict-resolved additively (all intents sharing a
// key may be accepted, budget permitting) rather than exclusively (first
// wins). Per spec 4.D, TransferMaterial into the same ledger is additive.
func isAdditive(k action.Kind) bool {
	return k == action.TransferMaterial
}

// IntentHash derives a deterministic per-intent hash used as the
// secondary sort key when two intents share both a conflict_key and an
// actor_id (xxhash over a stable field encoding, never over a Go struct's
// memory layout).
func IntentHash(actorID string, a action.Action) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(actorID)
	_, _ = h.WriteString(":")
	var kindBuf [8]byte
	binary.LittleEndian.PutUint64(kindBuf[:], uint64(a.Kind))
	_, _ = h.Write(kindBuf[:])
	_, _ = h.WriteString(a.AgentID)
	_, _ = h.WriteString(a.ToLocationID)
	_, _ = h.WriteString(a.LocationID)
	_, _ = h.WriteString(string(a.Element))
	_, _ = h.WriteString(a.FactoryID)
	_, _ = h.WriteString(a.RecipeID)
	_, _ = h.WriteString(a.EntityID)
	var numBuf [8]byte
	binary.LittleEndian.PutUint64(numBuf[:], uint64(a.MassG))
	_, _ = h.Write(numBuf[:])
	binary.LittleEndian.PutUint64(numBuf[:], uint64(a.Amount))
	_, _ = h.Write(numBuf[:])
	return h.Sum64()
}

// OrderBatch sorts intents within one conflict_key group by
// (actor_id_lexicographic, intent_hash), the total order spec 4.D
// requires for deterministic same-tick resolution.
func OrderBatch(intents []action.Intent) {
	sort.Slice(intents, func(i, j int) bool {
		if intents[i].ActorID != intents[j].ActorID {
			return intents[i].ActorID < intents[j].ActorID
		}
		return intents[i].IntentHash < intents[j].IntentHash
	})
}

// BatchHash derives the distributed-idempotency hash from the ordered
// accepted intent list (spec 4.D): a running xxhash over each accepted
// intent's (actor_id, intent_hash) pair, order-sensitive by construction
// since callers pass intents in their final resolved order.
func BatchHash(accepted []action.Intent) uint64 {
	h := xxhash.New()
	for _, in := range accepted {
		_, _ = h.WriteString(in.ActorID)
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], in.IntentHash)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
