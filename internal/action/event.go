package action

import (
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
)

// WorldEventKind enumerates every journal event the kernel can emit
// (spec 4.H). Like Kind, this is a flat discriminant over a single Event
// struct rather than an interface per event — replay switches over it
// exhaustively.
type WorldEventKind int

const (
	EvAgentMoved WorldEventKind = iota
	EvMoveStarted
	EvMoveProgressed
	EvMoveArrived
	EvCompoundMined
	EvCompoundRefined
	EvFactoryBuilt
	EvRecipeScheduled
	EvMaterialTransferred
	EvMaterialTransitStarted
	EvMaterialTransitCompleted
	EvPowerPlantRegistered
	EvPowerStorageRegistered
	EvPowerBought
	EvPowerSold
	EvSocialFactPublished
	EvSocialFactChallenged
	EvSocialFactAdjudicated
	EvSocialFactRevoked
	EvSocialEdgeDeclared
	EvModuleVisualUpserted
	EvModuleVisualRemoved
	EvAgentPromptUpdated // opaque payload carried for external collaborators (spec 9)
	EvChunkGenerated
	EvChunkGenerationSkipped
	EvFragmentsReplenished
	EvActionRejected
	EvDebugResourceGranted
	EvAgentShutdownSet
)

func (k WorldEventKind) String() string {
	names := [...]string{
		"AgentMoved", "MoveStarted", "MoveProgressed", "MoveArrived", "CompoundMined",
		"CompoundRefined", "FactoryBuilt", "RecipeScheduled", "MaterialTransferred",
		"MaterialTransitStarted", "MaterialTransitCompleted", "PowerPlantRegistered",
		"PowerStorageRegistered", "PowerBought", "PowerSold", "SocialFactPublished",
		"SocialFactChallenged", "SocialFactAdjudicated", "SocialFactRevoked",
		"SocialEdgeDeclared", "ModuleVisualUpserted", "ModuleVisualRemoved",
		"AgentPromptUpdated", "ChunkGenerated", "ChunkGenerationSkipped",
		"FragmentsReplenished", "ActionRejected", "DebugResourceGranted",
		"AgentShutdownSet",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// ChunkGenerationCause distinguishes why ensure_chunk_generated ran.
type ChunkGenerationCause int

const (
	CauseInit ChunkGenerationCause = iota
	CauseObserve
	CauseAction
)

func (c ChunkGenerationCause) String() string {
	switch c {
	case CauseInit:
		return "init"
	case CauseObserve:
		return "observe"
	case CauseAction:
		return "action"
	default:
		return "unknown"
	}
}

// Event is one journal record, totally ordered by (Tick, Seq) (spec 3).
// Only the payload fields relevant to Kind are populated.
type Event struct {
	Tick uint64
	Seq  uint64
	Kind WorldEventKind

	ActorID  string
	ActionID string

	AgentID      string
	FromLocation string
	ToLocation   string
	RemainingCm  int64

	LocationID string
	Element    resourcemodel.Element
	GramsMoved int64
	ElectricityCharged int64

	OwnerID      string
	HardwareOut  int64

	FactoryID   string
	FactoryKind string
	RecipeID    string
	Batches     int64

	FromLedger resourcemodel.LedgerID
	ToLedger   resourcemodel.LedgerID
	MaterialKind resourcemodel.MaterialKind
	Amount     int64
	LossAmount int64
	ReadyAtTick uint64
	TransitID  uint64

	PowerID       string
	CapacityValue int64
	WattHours     int64

	SocialFactID   string
	SocialEdgeID   string
	ConfidencePpm  int64
	SocialState    string
	EvidenceEvents []uint64
	StakeKind      resourcemodel.Kind
	StakeAmount    int64
	FromFactID     string
	ToFactID       string
	Relation       string

	EntityID string

	ChunkCoord       geo.ChunkCoord
	ChunkSeed        uint64
	FragmentCount    int
	BlockCount       int
	ChunkBudgetTotal map[resourcemodel.Element]int64
	Cause            ChunkGenerationCause
	SkipReason       string
	ReplenishedCount int

	RejectedReason kernelerr.ReasonCode
	RejectedNote   string

	PromptPayload []byte // opaque to the kernel; external collaborator content

	// GrantOwnerKind/GrantResourceKind carry the full owner/kind pair for
	// DebugResourceGranted, which OwnerID/Amount alone can't reconstruct
	// on replay (OwnerID is owner.String(), a display form, not a
	// round-trippable one).
	GrantOwnerKind    resourcemodel.OwnerKind
	GrantResourceKind resourcemodel.Kind

	// ShutdownSet carries AgentShutdownSet's new value (AgentID above
	// names the agent).
	ShutdownSet bool
}
