// Package worldmodel is the single in-process owner of every world entity
// (spec 4.C): locations, agents, assets, facilities, factories, power
// plants/storage, material ledgers, pending transits, social facts/edges,
// and module visual entities. All mutation goes through its methods; no
// other package may hold a second copy of this state.
package worldmodel

import (
	"sort"
	"sync"

	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
)

// FragmentRef points at a fragment owned by a chunk, avoiding the
// cyclic location<->fragment reference the source exhibits (spec 9):
// Location never embeds fragment data, only an ID index into the chunk.
type FragmentRef struct {
	Chunk      geo.ChunkCoord
	FragmentID string
}

// Location is a named point of interest, optionally anchored to an
// asteroid fragment for mining.
type Location struct {
	ID             string
	Name           string
	Pos            geo.Pos
	Profile        string
	Resources      map[resourcemodel.Kind]int64
	FragmentRef    *FragmentRef
	MinedThisEpoch int64 // tracks mine_compound_max_per_location_g usage
}

// KinematicsState tracks an in-flight multi-tick move (spec 4.D).
type KinematicsState struct {
	Active       bool
	DestLocation string
	RemainingCm  int64
}

// BodyState holds an agent's installed-module slots; opaque payload kept
// for module-visual-entity anchoring, not interpreted by the kernel.
type BodyState struct {
	Slots     int
	Installed []string
}

// Agent is a kernel-visible actor.
type Agent struct {
	ID          string
	LocationID  string
	HeightCm    int64
	Kinematics  *KinematicsState
	Resources   map[resourcemodel.Kind]int64
	Body        *BodyState
	ShutdownSet bool
}

// Asset is a fungible or unique owned item outside the four resource
// kinds (e.g. deployable equipment).
type Asset struct {
	ID       string
	Kind     string
	Quantity int64
	Owner    resourcemodel.Owner
}

// PowerPlant generates electricity; PowerStorage buffers it.
type PowerPlant struct {
	ID              string
	LocationID      string
	CapacityWatts   int64
	EfficiencyPpm   int64
	DegradationBps  int64
}

type PowerStorage struct {
	ID            string
	LocationID    string
	CapacityWh    int64
	StoredWh      int64
	EfficiencyPpm int64
}

// Factory converts resources per a scheduled recipe.
type Factory struct {
	ID          string
	Kind        string
	LocationID  string
	Owner       resourcemodel.Owner
	InputLedger resourcemodel.LedgerID
	OutputLedger resourcemodel.LedgerID
}

// PendingMaterialTransit is one in-flight cross-site transfer (spec 4.D).
type PendingMaterialTransit struct {
	ID         uint64
	From       resourcemodel.LedgerID
	To         resourcemodel.LedgerID
	Kind       resourcemodel.MaterialKind
	Amount     int64
	ReadyAtTick uint64
	LossAmount int64
}

// SocialFactState is the lifecycle of a published social fact.
type SocialFactState int

const (
	SocialActive SocialFactState = iota
	SocialChallenged
	SocialConfirmed
	SocialRetracted
	SocialRevoked
	SocialExpired
)

func (s SocialFactState) String() string {
	switch s {
	case SocialActive:
		return "Active"
	case SocialChallenged:
		return "Challenged"
	case SocialConfirmed:
		return "Confirmed"
	case SocialRetracted:
		return "Retracted"
	case SocialRevoked:
		return "Revoked"
	case SocialExpired:
		return "Expired"
	default:
		return "?"
	}
}

type SocialFact struct {
	ID             string
	Publisher      string
	ConfidencePpm  int64
	EvidenceEvents []uint64
	StakeKind      resourcemodel.Kind
	StakeAmount    int64
	State          SocialFactState
	Challenger     string
}

type SocialEdge struct {
	ID       string
	FromFact string
	ToFact   string
	Relation string
}

// VisualAnchorKind tags which variant of VisualAnchor is populated.
type VisualAnchorKind int

const (
	AnchorAgent VisualAnchorKind = iota
	AnchorLocation
	AnchorAbsolute
)

type VisualAnchor struct {
	Kind VisualAnchorKind
	ID   string // agent or location id, when applicable
	Pos  geo.Pos
}

// ModuleVisualEntity is opaque to the kernel beyond entity_id uniqueness
// and anchor-existence validation (spec 4.C).
type ModuleVisualEntity struct {
	EntityID string
	ModuleID string
	Kind     string
	Label    string
	Anchor   VisualAnchor
}

// Store holds every world entity table and the chunk map behind one
// RWMutex.
type Store struct {
	mu sync.RWMutex

	spaceExtent geo.Pos

	locations      map[string]*Location
	agents         map[string]*Agent
	assets         map[string]*Asset
	factories      map[string]*Factory
	plants         map[string]*PowerPlant
	storages       map[string]*PowerStorage
	worldResources map[resourcemodel.Kind]int64

	chunks map[geo.ChunkCoord]*chunkmodel.Chunk

	materialLedgers map[resourcemodel.LedgerID]map[resourcemodel.MaterialKind]int64
	pendingTransits []*PendingMaterialTransit

	socialFacts map[string]*SocialFact
	socialEdges map[string]*SocialEdge
	visuals     map[string]*ModuleVisualEntity

	nextEventSeq       uint64
	nextSocialFactID   uint64
	nextSocialEdgeID   uint64
	nextMaterialTransitID uint64
}

// New builds an empty store bounded by the given space extent.
func New(spaceExtent geo.Pos) *Store {
	return &Store{
		spaceExtent:     spaceExtent,
		locations:       make(map[string]*Location),
		agents:          make(map[string]*Agent),
		assets:          make(map[string]*Asset),
		factories:       make(map[string]*Factory),
		plants:          make(map[string]*PowerPlant),
		storages:        make(map[string]*PowerStorage),
		chunks:          make(map[geo.ChunkCoord]*chunkmodel.Chunk),
		materialLedgers: make(map[resourcemodel.LedgerID]map[resourcemodel.MaterialKind]int64),
		socialFacts:     make(map[string]*SocialFact),
		socialEdges:     make(map[string]*SocialEdge),
		visuals:         make(map[string]*ModuleVisualEntity),
	}
}

// NextEventSeq returns the next monotonic event_seq; lives on the store
// per spec 9 (no process-wide singleton counters).
func (s *Store) NextEventSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventSeq++
	return s.nextEventSeq
}

// CurrentEventSeq returns the last-issued event_seq without advancing it,
// used by the snapshot writer.
func (s *Store) CurrentEventSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextEventSeq
}

func (s *Store) NextSocialFactID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSocialFactID++
	return idWithPrefix("fact", s.nextSocialFactID)
}

func (s *Store) NextSocialEdgeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSocialEdgeID++
	return idWithPrefix("edge", s.nextSocialEdgeID)
}

func (s *Store) NextMaterialTransitID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMaterialTransitID++
	return s.nextMaterialTransitID
}

func idWithPrefix(prefix string, n uint64) string {
	return prefix + ":" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// RegisterLocation rejects on ID collision (spec 4.C).
func (s *Store) RegisterLocation(loc *Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.locations[loc.ID]; exists {
		return kernelerr.NewSimple(kernelerr.FacilityAlreadyExists)
	}
	if loc.Resources == nil {
		loc.Resources = make(map[resourcemodel.Kind]int64)
	}
	s.locations[loc.ID] = loc
	return nil
}

func (s *Store) RegisterAgent(a *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[a.ID]; exists {
		return kernelerr.NewSimple(kernelerr.FacilityAlreadyExists)
	}
	if a.Resources == nil {
		a.Resources = make(map[resourcemodel.Kind]int64)
	}
	s.agents[a.ID] = a
	return nil
}

// RegisterFactory, RegisterPowerPlant and RegisterPowerStorage all share
// the collision-on-ID contract.
func (s *Store) RegisterFactory(f *Factory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.factories[f.ID]; exists {
		return kernelerr.NewSimple(kernelerr.FacilityAlreadyExists)
	}
	s.factories[f.ID] = f
	return nil
}

func (s *Store) RegisterPowerPlant(p *PowerPlant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plants[p.ID]; exists {
		return kernelerr.NewSimple(kernelerr.FacilityAlreadyExists)
	}
	s.plants[p.ID] = p
	return nil
}

func (s *Store) RegisterPowerStorage(p *PowerStorage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.storages[p.ID]; exists {
		return kernelerr.NewSimple(kernelerr.FacilityAlreadyExists)
	}
	s.storages[p.ID] = p
	return nil
}

func (s *Store) Location(id string) (*Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[id]
	return l, ok
}

func (s *Store) Agent(id string) (*Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	return a, ok
}

// AgentIDs returns every registered agent ID in sorted order, giving
// kernel phases that scan all agents (e.g. kinematics advancement) a
// deterministic, replay-stable iteration order.
func (s *Store) AgentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Factory(id string) (*Factory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.factories[id]
	return f, ok
}

// AdjustResource rejects with InsufficientResource if current+delta < 0
// (spec 4.C). Applies atomically under the store lock.
func (s *Store) AdjustResource(owner resourcemodel.Owner, kind resourcemodel.Kind, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, err := s.resourceBucket(owner)
	if err != nil {
		return err
	}
	current := bucket[kind]
	if current+delta < 0 {
		return kernelerr.NewInsufficientResource(kind)
	}
	bucket[kind] = current + delta
	return nil
}

// ResourceBalance reads the current balance without mutation.
func (s *Store) ResourceBalance(owner resourcemodel.Owner, kind resourcemodel.Kind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, err := s.resourceBucket(owner)
	if err != nil {
		return 0, err
	}
	return bucket[kind], nil
}

// resourceBucket must be called with s.mu held.
func (s *Store) resourceBucket(owner resourcemodel.Owner) (map[resourcemodel.Kind]int64, error) {
	switch owner.Kind {
	case resourcemodel.OwnerAgent:
		a, ok := s.agents[owner.ID]
		if !ok {
			return nil, kernelerr.NewSimple(kernelerr.FacilityNotFound)
		}
		return a.Resources, nil
	case resourcemodel.OwnerLocation:
		l, ok := s.locations[owner.ID]
		if !ok {
			return nil, kernelerr.NewSimple(kernelerr.LocationNotFound)
		}
		return l.Resources, nil
	case resourcemodel.OwnerFacility:
		// Facility owners have no resource bucket, so every adjustment is
		// rejected with FacilityNotFound; factories hold ledgers separately.
		return nil, kernelerr.NewSimple(kernelerr.FacilityNotFound)
	case resourcemodel.OwnerWorld:
		if s.worldResources == nil {
			s.worldResources = make(map[resourcemodel.Kind]int64)
		}
		return s.worldResources, nil
	default:
		return nil, kernelerr.NewValidationError("owner")
	}
}

// AdjustMaterialLedger applies the same non-negativity invariant to the
// multi-ledger logistics state (spec 4.C).
func (s *Store) AdjustMaterialLedger(ledger resourcemodel.LedgerID, kind resourcemodel.MaterialKind, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.materialLedgers[ledger]
	if !ok {
		bucket = make(map[resourcemodel.MaterialKind]int64)
		s.materialLedgers[ledger] = bucket
	}
	current := bucket[kind]
	if current+delta < 0 {
		return kernelerr.NewInsufficientResource(resourcemodel.Compound)
	}
	bucket[kind] = current + delta
	return nil
}

func (s *Store) MaterialLedgerBalance(ledger resourcemodel.LedgerID, kind resourcemodel.MaterialKind) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.materialLedgers[ledger]
	if !ok {
		return 0
	}
	return bucket[kind]
}

// ApplyFragmentDepletion atomically decrements both the fragment and
// chunk budgets for an element; requires remaining >= grams on both
// (spec 4.C).
func (s *Store) ApplyFragmentDepletion(chunkCoord geo.ChunkCoord, fragmentID string, element resourcemodel.Element, grams int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, ok := s.chunks[chunkCoord]
	if !ok {
		return kernelerr.NewSimple(kernelerr.LocationNotFound)
	}
	frag, ok := chunk.FragmentByID(fragmentID)
	if !ok {
		return kernelerr.NewSimple(kernelerr.LocationNotFound)
	}

	if frag.Budget.RemainingByElement[element] < grams {
		return kernelerr.NewInsufficientResource(resourcemodel.Compound)
	}
	if chunk.Budget.RemainingByElement[element] < grams {
		return kernelerr.NewInsufficientResource(resourcemodel.Compound)
	}

	frag.Budget.Deplete(element, grams)
	chunk.Budget.Deplete(element, grams)
	return nil
}

// SpawnVisualEntity rejects on duplicate entity_id or a dangling/out of
// bounds anchor (spec 4.C).
func (s *Store) SpawnVisualEntity(e *ModuleVisualEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.visuals[e.EntityID]; exists {
		return kernelerr.NewSimple(kernelerr.FacilityAlreadyExists)
	}

	switch e.Anchor.Kind {
	case AnchorAgent:
		if _, ok := s.agents[e.Anchor.ID]; !ok {
			return kernelerr.NewValidationError("anchor")
		}
	case AnchorLocation:
		if _, ok := s.locations[e.Anchor.ID]; !ok {
			return kernelerr.NewValidationError("anchor")
		}
	case AnchorAbsolute:
		if !s.withinSpace(e.Anchor.Pos) {
			return kernelerr.NewValidationError("anchor")
		}
	}

	s.visuals[e.EntityID] = e
	return nil
}

func (s *Store) RemoveVisualEntity(entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.visuals[entityID]; !exists {
		return kernelerr.NewSimple(kernelerr.LocationNotFound)
	}
	delete(s.visuals, entityID)
	return nil
}

func (s *Store) withinSpace(p geo.Pos) bool {
	return p.X >= 0 && p.X < s.spaceExtent.X &&
		p.Y >= 0 && p.Y < s.spaceExtent.Y &&
		p.Z >= 0 && p.Z < s.spaceExtent.Z
}

// Chunk returns the chunk at coord, creating an Unexplored placeholder
// entry if none exists yet — the chunk lifecycle controller decides
// whether and how to generate it.
func (s *Store) Chunk(coord geo.ChunkCoord) *chunkmodel.Chunk {
	s.mu.RLock()
	c, exists := s.chunks[coord]
	s.mu.RUnlock()
	if exists {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, exists = s.chunks[coord]
	if !exists {
		c = &chunkmodel.Chunk{Coord: coord, State: chunkmodel.Unexplored, Budget: chunkmodel.NewResourceBudget()}
		s.chunks[coord] = c
	}
	return c
}

// StoreGeneratedChunk installs the generator's result under the store
// lock, consuming any reservations that had accumulated.
func (s *Store) StoreGeneratedChunk(coord geo.ChunkCoord, seed uint64, fragments []*chunkmodel.Fragment, budget chunkmodel.ResourceBudget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, exists := s.chunks[coord]
	if !exists {
		c = &chunkmodel.Chunk{Coord: coord}
		s.chunks[coord] = c
	}
	c.State = chunkmodel.Generated
	c.Seed = seed
	c.Fragments = fragments
	c.Budget = budget
	c.Reservations = nil
}

// AddBoundaryReservation appends to an unexplored neighbour's pending
// reservation list (no-op once that neighbour is already Generated, per
// spec 4.B: reservations are only meaningful pre-generation).
func (s *Store) AddBoundaryReservation(coord geo.ChunkCoord, r chunkmodel.BoundaryReservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, exists := s.chunks[coord]
	if !exists {
		c = &chunkmodel.Chunk{Coord: coord, State: chunkmodel.Unexplored, Budget: chunkmodel.NewResourceBudget()}
		s.chunks[coord] = c
	}
	if c.State != chunkmodel.Unexplored {
		return
	}
	c.Reservations = append(c.Reservations, r)
}

// ConsumeReservations returns and clears the pending reservations on an
// Unexplored chunk, for the generator to treat as exclusion zones.
func (s *Store) ConsumeReservations(coord geo.ChunkCoord) []chunkmodel.BoundaryReservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, exists := s.chunks[coord]
	if !exists {
		return nil
	}
	out := c.Reservations
	c.Reservations = nil
	return out
}

// NeighbourFragmentViews returns the fragments of every already-Generated
// 26-neighbour of coord, sorted by neighbour coordinate for determinism.
func (s *Store) NeighbourFragmentViews(coord geo.ChunkCoord) []NeighbourFragments {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []NeighbourFragments
	for _, nc := range coord.Neighbours26() {
		c, ok := s.chunks[nc]
		if !ok || c.State != chunkmodel.Generated {
			continue
		}
		out = append(out, NeighbourFragments{Coord: nc, Fragments: c.Fragments})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coord.Less(out[j].Coord) })
	return out
}

type NeighbourFragments struct {
	Coord     geo.ChunkCoord
	Fragments []*chunkmodel.Fragment
}

// EnqueueMaterialTransit appends a pending transit (caller already
// allocated its ID via NextMaterialTransitID).
func (s *Store) EnqueueMaterialTransit(t *PendingMaterialTransit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTransits = append(s.pendingTransits, t)
}

// DueMaterialTransits removes and returns every transit with
// ReadyAtTick <= tick, in FIFO enqueue order.
func (s *Store) DueMaterialTransits(tick uint64) []*PendingMaterialTransit {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*PendingMaterialTransit
	var remaining []*PendingMaterialTransit
	for _, t := range s.pendingTransits {
		if t.ReadyAtTick <= tick {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	s.pendingTransits = remaining
	return due
}

func (s *Store) PendingTransitCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pendingTransits)
}

// PublishSocialFact inserts a new fact in the Active state.
func (s *Store) PublishSocialFact(f *SocialFact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.State = SocialActive
	s.socialFacts[f.ID] = f
}

func (s *Store) SocialFact(id string) (*SocialFact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.socialFacts[id]
	return f, ok
}

func (s *Store) SetSocialFactState(id string, state SocialFactState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.socialFacts[id]
	if !ok {
		return kernelerr.NewSimple(kernelerr.SocialFactNotFound)
	}
	f.State = state
	return nil
}

func (s *Store) DeclareSocialEdge(e *SocialEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socialEdges[e.ID] = e
}
