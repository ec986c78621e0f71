package worldmodel

import (
	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
)

// Snapshot is the store-owned portion of the versioned persistence
// snapshot (spec 4.H): every entity table, the chunk set (which carries
// its own per-chunk resource budget and pending boundary reservations),
// material ledgers, pending transits, social state, and visual entities.
// The store's event_seq counter travels here too (NextEventSeq). The
// caller (package persistence) wraps this with schema_version,
// world_config, chunk_runtime and the tick — the fields owned outside
// the store.
type Snapshot struct {
	Locations map[string]*Location
	Agents    map[string]*Agent
	Assets    map[string]*Asset
	Factories map[string]*Factory
	Plants    map[string]*PowerPlant
	Storages  map[string]*PowerStorage

	WorldResources map[resourcemodel.Kind]int64

	Chunks map[geo.ChunkCoord]*chunkmodel.Chunk

	MaterialLedgers map[resourcemodel.LedgerID]map[resourcemodel.MaterialKind]int64
	PendingTransits []*PendingMaterialTransit

	SocialFacts map[string]*SocialFact
	SocialEdges map[string]*SocialEdge
	Visuals     map[string]*ModuleVisualEntity

	NextEventSeq          uint64
	NextSocialFactID      uint64
	NextSocialEdgeID      uint64
	NextMaterialTransitID uint64
}

// ExportSnapshot clones every table under the store lock (spec 5:
// "snapshots are taken by obtaining the lock, cloning the versioned
// state, and releasing it"). The clone is shallow at the entity-pointer
// level but copies every map, so later store mutation never reaches back
// into an already-exported Snapshot.
func (s *Store) ExportSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Locations:       make(map[string]*Location, len(s.locations)),
		Agents:          make(map[string]*Agent, len(s.agents)),
		Assets:          make(map[string]*Asset, len(s.assets)),
		Factories:       make(map[string]*Factory, len(s.factories)),
		Plants:          make(map[string]*PowerPlant, len(s.plants)),
		Storages:        make(map[string]*PowerStorage, len(s.storages)),
		WorldResources:  make(map[resourcemodel.Kind]int64, len(s.worldResources)),
		Chunks:          make(map[geo.ChunkCoord]*chunkmodel.Chunk, len(s.chunks)),
		MaterialLedgers: make(map[resourcemodel.LedgerID]map[resourcemodel.MaterialKind]int64, len(s.materialLedgers)),
		SocialFacts:     make(map[string]*SocialFact, len(s.socialFacts)),
		SocialEdges:     make(map[string]*SocialEdge, len(s.socialEdges)),
		Visuals:         make(map[string]*ModuleVisualEntity, len(s.visuals)),

		NextEventSeq:          s.nextEventSeq,
		NextSocialFactID:      s.nextSocialFactID,
		NextSocialEdgeID:      s.nextSocialEdgeID,
		NextMaterialTransitID: s.nextMaterialTransitID,
	}

	for id, v := range s.locations {
		cp := *v
		cp.Resources = cloneInt64Map(v.Resources)
		snap.Locations[id] = &cp
	}
	for id, v := range s.agents {
		cp := *v
		cp.Resources = cloneInt64Map(v.Resources)
		snap.Agents[id] = &cp
	}
	for id, v := range s.assets {
		cp := *v
		snap.Assets[id] = &cp
	}
	for id, v := range s.factories {
		cp := *v
		snap.Factories[id] = &cp
	}
	for id, v := range s.plants {
		cp := *v
		snap.Plants[id] = &cp
	}
	for id, v := range s.storages {
		cp := *v
		snap.Storages[id] = &cp
	}
	for k, v := range s.worldResources {
		snap.WorldResources[k] = v
	}
	for coord, c := range s.chunks {
		cp := *c
		cp.Fragments = append([]*chunkmodel.Fragment(nil), c.Fragments...)
		cp.Reservations = append([]chunkmodel.BoundaryReservation(nil), c.Reservations...)
		cp.Budget = chunkmodel.ResourceBudget{
			TotalByElement:     cloneElementMap(c.Budget.TotalByElement),
			RemainingByElement: cloneElementMap(c.Budget.RemainingByElement),
		}
		snap.Chunks[coord] = &cp
	}
	for ledger, bucket := range s.materialLedgers {
		snap.MaterialLedgers[ledger] = cloneMaterialMap(bucket)
	}
	snap.PendingTransits = make([]*PendingMaterialTransit, len(s.pendingTransits))
	for i, t := range s.pendingTransits {
		cp := *t
		snap.PendingTransits[i] = &cp
	}
	for id, v := range s.socialFacts {
		cp := *v
		cp.EvidenceEvents = append([]uint64(nil), v.EvidenceEvents...)
		snap.SocialFacts[id] = &cp
	}
	for id, v := range s.socialEdges {
		cp := *v
		snap.SocialEdges[id] = &cp
	}
	for id, v := range s.visuals {
		cp := *v
		snap.Visuals[id] = &cp
	}

	return snap
}

// LoadSnapshot replaces the store's entire state with snap, under the
// store lock. Used both at process startup (loading the last authoritative
// snapshot) and by the replay engine (rehydrating before walking the
// journal tail).
func (s *Store) LoadSnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locations = snap.Locations
	s.agents = snap.Agents
	s.assets = snap.Assets
	s.factories = snap.Factories
	s.plants = snap.Plants
	s.storages = snap.Storages
	s.worldResources = snap.WorldResources
	s.chunks = snap.Chunks
	s.materialLedgers = snap.MaterialLedgers
	s.pendingTransits = snap.PendingTransits
	s.socialFacts = snap.SocialFacts
	s.socialEdges = snap.SocialEdges
	s.visuals = snap.Visuals

	s.nextEventSeq = snap.NextEventSeq
	s.nextSocialFactID = snap.NextSocialFactID
	s.nextSocialEdgeID = snap.NextSocialEdgeID
	s.nextMaterialTransitID = snap.NextMaterialTransitID

	if s.locations == nil {
		s.locations = make(map[string]*Location)
	}
	if s.agents == nil {
		s.agents = make(map[string]*Agent)
	}
	if s.assets == nil {
		s.assets = make(map[string]*Asset)
	}
	if s.factories == nil {
		s.factories = make(map[string]*Factory)
	}
	if s.plants == nil {
		s.plants = make(map[string]*PowerPlant)
	}
	if s.storages == nil {
		s.storages = make(map[string]*PowerStorage)
	}
	if s.chunks == nil {
		s.chunks = make(map[geo.ChunkCoord]*chunkmodel.Chunk)
	}
	if s.materialLedgers == nil {
		s.materialLedgers = make(map[resourcemodel.LedgerID]map[resourcemodel.MaterialKind]int64)
	}
	if s.socialFacts == nil {
		s.socialFacts = make(map[string]*SocialFact)
	}
	if s.socialEdges == nil {
		s.socialEdges = make(map[string]*SocialEdge)
	}
	if s.visuals == nil {
		s.visuals = make(map[string]*ModuleVisualEntity)
	}
}

func cloneInt64Map[K comparable](m map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneElementMap(m map[resourcemodel.Element]int64) map[resourcemodel.Element]int64 {
	out := make(map[resourcemodel.Element]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMaterialMap(m map[resourcemodel.MaterialKind]int64) map[resourcemodel.MaterialKind]int64 {
	out := make(map[resourcemodel.MaterialKind]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
