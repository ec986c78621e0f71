// Package chunkmodel defines the chunk/fragment/block data model (spec 3):
// lifecycle states, resource budgets, and the boundary-reservation
// mechanism used for cross-chunk spacing. Generation (package chunkgen)
// produces these values; the world model store (package worldmodel) owns
// them.
package chunkmodel

import (
	"sort"

	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
)

// State is a chunk's lifecycle stage.
type State int

const (
	Unexplored State = iota
	Generated
	Exhausted
)

func (s State) String() string {
	switch s {
	case Unexplored:
		return "Unexplored"
	case Generated:
		return "Generated"
	case Exhausted:
		return "Exhausted"
	default:
		return "?"
	}
}

// ResourceBudget tracks total/remaining grams per element, with the
// invariant 0 <= remaining[e] <= total[e] for every element e.
type ResourceBudget struct {
	TotalByElement     map[resourcemodel.Element]int64
	RemainingByElement map[resourcemodel.Element]int64
}

// NewResourceBudget builds a budget with remaining initialized to total.
func NewResourceBudget() ResourceBudget {
	return ResourceBudget{
		TotalByElement:     make(map[resourcemodel.Element]int64),
		RemainingByElement: make(map[resourcemodel.Element]int64),
	}
}

// AddTotal increases both total and remaining for an element (used only
// during generation, never after).
func (b *ResourceBudget) AddTotal(e resourcemodel.Element, grams int64) {
	b.TotalByElement[e] += grams
	b.RemainingByElement[e] += grams
}

// Deplete decrements remaining[e] by grams; returns false (and does not
// mutate) if remaining[e] < grams.
func (b *ResourceBudget) Deplete(e resourcemodel.Element, grams int64) bool {
	if b.RemainingByElement[e] < grams {
		return false
	}
	b.RemainingByElement[e] -= grams
	return true
}

// Valid checks 0 <= remaining <= total for every tracked element.
func (b ResourceBudget) Valid() bool {
	for e, total := range b.TotalByElement {
		r := b.RemainingByElement[e]
		if r < 0 || r > total {
			return false
		}
	}
	return true
}

// Elements returns the tracked element set in a deterministic (sorted)
// order, for any code that must iterate without relying on map order.
func (b ResourceBudget) Elements() []resourcemodel.Element {
	out := make([]resourcemodel.Element, 0, len(b.TotalByElement))
	for e := range b.TotalByElement {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CompoundComposition maps compound kinds to parts-per-million of a
// block's mass.
type CompoundComposition map[resourcemodel.CompoundKind]uint32

// ElementComposition maps elements to parts-per-million of a block's mass,
// derived deterministically from CompoundComposition.
type ElementComposition map[resourcemodel.Element]uint32

// FragmentBlock is one non-overlapping cuboid region of a fragment.
type FragmentBlock struct {
	OriginCm      geo.Pos
	Size          geo.CuboidSize
	DensityKgM3   int64
	Compounds     CompoundComposition
}

// VolumeCm3 and MassGrams are exact integer derivations (spec 3).
func (b FragmentBlock) VolumeCm3() int64 { return b.Size.VolumeCm3() }
func (b FragmentBlock) MassGrams() int64 { return geo.MassGrams(b.DensityKgM3, b.VolumeCm3()) }

// Overlaps reports whether two blocks' cuboids intersect.
func (b FragmentBlock) Overlaps(o FragmentBlock) bool {
	ax0, ay0, az0 := b.OriginCm.X, b.OriginCm.Y, b.OriginCm.Z
	ax1, ay1, az1 := ax0+b.Size.X, ay0+b.Size.Y, az0+b.Size.Z
	bx0, by0, bz0 := o.OriginCm.X, o.OriginCm.Y, o.OriginCm.Z
	bx1, by1, bz1 := bx0+o.Size.X, by0+o.Size.Y, bz0+o.Size.Z

	if ax1 <= bx0 || bx1 <= ax0 {
		return false
	}
	if ay1 <= by0 || by1 <= ay0 {
		return false
	}
	if az1 <= bz0 || bz1 <= az0 {
		return false
	}
	return true
}

// Fragment is one asteroid: a center, bulk density, an ordered list of
// non-overlapping blocks, and its own resource budget.
type Fragment struct {
	ID               string
	Center           geo.Pos
	RadiusCm         int64
	BulkDensityKgM3  int64
	Blocks           []FragmentBlock
	Budget           ResourceBudget
}

// TotalMassGrams sums block masses.
func (f Fragment) TotalMassGrams() int64 {
	var total int64
	for _, blk := range f.Blocks {
		total += blk.MassGrams()
	}
	return total
}

// BoundaryReservation is planted on an Unexplored neighbour chunk by a
// generated chunk, telling the future generation run to exclude a region.
type BoundaryReservation struct {
	SourceChunk geo.ChunkCoord
	FragmentID  string
	Center      geo.Pos
	RadiusCm    int64
}

// Chunk is one 20km x 20km x 10km spatial slice.
type Chunk struct {
	Coord     geo.ChunkCoord
	State     State
	Fragments []*Fragment
	Budget    ResourceBudget
	// Reservations holds boundary writes from already-generated
	// neighbours, consumed (and cleared) the next time this chunk
	// generates.
	Reservations []BoundaryReservation
	// Seed is the chunk_seed recorded at generation time, needed to
	// re-derive and verify the chunk on replay.
	Seed uint64
}

// FragmentByID performs a linear scan (fragment counts are small, bounded
// by max_fragments_per_chunk) instead of keeping a second index, to avoid
// a second source of truth that replay would have to keep in sync.
func (c *Chunk) FragmentByID(id string) (*Fragment, bool) {
	for _, f := range c.Fragments {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}
