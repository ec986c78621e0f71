// Package action defines the canonical Action sum type and the
// WorldEventKind/Event journal record (spec 4.A, 4.D, 4.H). Kept as tagged
// structs with a Kind discriminant rather than an interface hierarchy, so
// the kernel, replay engine, and persistence layer can exhaustively switch
// over Kind and the compiler flags missing cases when a variant is added.
package action

import (
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
)

// Kind discriminates the canonical action set (spec 4.A).
type Kind int

const (
	Move Kind = iota
	Harvest
	Observe // expansion: read-only lazy-generation trigger, no state mutation beyond ensure_chunk_generated
	Transfer
	MineCompound
	RefineCompound
	BuildFactory
	ScheduleRecipe
	TransferMaterial
	RegisterPowerPlant
	RegisterPowerStorage
	BuyPower
	SellPower
	PublishSocialFact
	ChallengeSocialFact
	AdjudicateSocialFact
	RevokeSocialFact
	DeclareSocialEdge
	UpsertModuleVisualEntity
	RemoveModuleVisualEntity
	DebugGrantResource // gated by WorldConfig.DebugEnabled
	DebugSetAgentShutdown // gated by WorldConfig.DebugEnabled
)

func (k Kind) String() string {
	names := [...]string{
		"Move", "Harvest", "Observe", "Transfer", "MineCompound", "RefineCompound",
		"BuildFactory", "ScheduleRecipe", "TransferMaterial", "RegisterPowerPlant",
		"RegisterPowerStorage", "BuyPower", "SellPower", "PublishSocialFact",
		"ChallengeSocialFact", "AdjudicateSocialFact", "RevokeSocialFact",
		"DeclareSocialEdge", "UpsertModuleVisualEntity", "RemoveModuleVisualEntity",
		"DebugGrantResource", "DebugSetAgentShutdown",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// Action is a single tagged union; only the fields relevant to Kind are
// populated. Field names are kept flat (no nested per-variant structs) to
// match the compact action encoding the journal stores.
type Action struct {
	Kind Kind

	// Move / Observe / Transfer
	AgentID      string
	ToLocationID string
	ObservePos   geo.Pos

	// Harvest / MineCompound
	LocationID string
	MassG      int64
	Element    resourcemodel.Element

	// RefineCompound
	OwnerID string

	// BuildFactory / ScheduleRecipe
	FactoryKind string
	FactoryID   string
	RecipeID    string
	Batches     int64

	// TransferMaterial
	FromLedger   resourcemodel.LedgerID
	ToLedger     resourcemodel.LedgerID
	MaterialKind resourcemodel.MaterialKind
	Amount       int64
	DistanceKm   int64

	// RegisterPowerPlant / RegisterPowerStorage
	PowerID       string
	CapacityValue int64
	EfficiencyPpm int64

	// BuyPower / SellPower
	PowerStorageID string
	WattHours      int64

	// Social
	SocialFactID     string
	Publisher        string
	ConfidencePpm    int64
	EvidenceEvents   []uint64
	Adjudicator      string
	Verdict          string // "confirm" | "revoke", used by AdjudicateSocialFact
	FromFactID       string
	ToFactID         string
	Relation         string

	// Visual entities
	EntityID string
	ModuleID string
	Label    string
	Anchor   VisualAnchorSpec

	// DebugGrantResource
	GrantOwner resourcemodel.Owner
	GrantKind  resourcemodel.Kind
	GrantDelta int64

	// DebugSetAgentShutdown (AgentID reused from Move/Observe/Transfer above)
	ShutdownSet bool
}

// VisualAnchorSpec mirrors worldmodel.VisualAnchor without importing it,
// to keep action free of a worldmodel dependency (actions are pure data).
type VisualAnchorSpec struct {
	Kind int // 0=Agent 1=Location 2=Absolute, matches worldmodel.VisualAnchorKind ordinals
	ID   string
	Pos  geo.Pos
}

// Intent is one submitted action awaiting batch resolution, carrying the
// identity and idempotency fields the kernel needs before validation ever
// starts (spec 5, 6).
type Intent struct {
	ActorID        string
	Action         Action
	IdempotencyKey string
	IntentHash     uint64
	ConflictKey    string
}
