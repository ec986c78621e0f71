// Package chunkgen implements the deterministic, lazy chunk generator
// (spec 4.B): for a fixed (world_seed, chunk_coord, WorldConfig) it always
// produces the same fragments, blocks, budgets, and boundary reservations,
// regardless of platform or call order.
package chunkgen

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/aquilax/go-perlin"

	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
)

// NeighbourView is the read-only view of an already-generated 26-neighbour
// chunk the generator needs for spacing checks.
type NeighbourView struct {
	Coord     geo.ChunkCoord
	Fragments []*chunkmodel.Fragment
}

// BoundaryWrite is one reservation the generator wants planted on an
// Unexplored neighbour chunk.
type BoundaryWrite struct {
	NeighbourCoord geo.ChunkCoord
	Reservation    chunkmodel.BoundaryReservation
}

// Result is the generator's full output for one chunk (spec 4.B
// ChunkSnapshot).
type Result struct {
	Coord          geo.ChunkCoord
	Seed           uint64
	Fragments      []*chunkmodel.Fragment
	Budget         chunkmodel.ResourceBudget
	BoundaryWrites []BoundaryWrite
}

// ErrBudgetExceeded is returned when generation aborts under the
// object-cap policy (spec 4.B "Budget exceeded policy"). The chunk stays
// Unexplored; callers must retry or fail the triggering action.
type ErrBudgetExceeded struct {
	Coord geo.ChunkCoord
}

func (e ErrBudgetExceeded) Error() string {
	return fmt.Sprintf("chunk generation budget exceeded for %s", e.Coord)
}

// Generator produces ChunkSnapshots from a world seed and per-world
// config. It holds no per-chunk mutable state, so one Generator is safe
// to share and reuse across every chunk in a world.
type Generator struct {
	WorldSeed uint64
	Config    worldconfig.AsteroidFragmentConfig
}

func New(worldSeed uint64, cfg worldconfig.AsteroidFragmentConfig) *Generator {
	return &Generator{WorldSeed: worldSeed, Config: cfg}
}

// candidateCell is one voxel-grid cell center considered as a fragment
// candidate, visited in a fixed (z,y,x) order so iteration never depends
// on map ordering.
type candidateCell struct {
	ix, iy, iz int
}

// Generate runs the full single-pass algorithm described in spec 4.B.
func (g *Generator) Generate(coord geo.ChunkCoord, reservations []chunkmodel.BoundaryReservation, neighbours []NeighbourView) (Result, error) {
	seed := ChunkSeed(g.WorldSeed, coord)
	rng := rand.New(rand.NewSource(int64(seed)))

	size := g.Config.ChunkSize()
	min, _ := geo.Bounds(coord, size)

	// Cell size: aim for a handful of candidates per chunk axis, bounded
	// below by the configured minimum spacing so adjacent cells cannot
	// trivially both accept overlapping fragments.
	cellSize := g.Config.MinFragmentSpacingCm * 2
	if cellSize <= 0 {
		cellSize = 1
	}
	nx := maxInt(1, int(size.X/cellSize))
	ny := maxInt(1, int(size.Y/cellSize))
	nz := maxInt(1, int(size.Z/cellSize))

	maxCandidates := g.Config.MaxFragmentsPerChunk * 4
	if maxCandidates <= 0 {
		maxCandidates = nx * ny * nz
	}

	noiseSrc := perlin.NewPerlin(2.0, 2.0, 3, int64(seed))

	center := geo.Pos{X: min.X + size.X/2, Y: min.Y + size.Y/2, Z: min.Z + size.Z/2}
	coreRadiusCm := int64(g.Config.StarterCoreRadiusRatio * float64(minInt64(size.X, minInt64(size.Y, size.Z))) / 2)

	accepted := make([]*chunkmodel.Fragment, 0, g.Config.MaxFragmentsPerChunk)
	sortedReservations := append([]chunkmodel.BoundaryReservation(nil), reservations...)
	sort.Slice(sortedReservations, func(i, j int) bool {
		if sortedReservations[i].SourceChunk != sortedReservations[j].SourceChunk {
			return sortedReservations[i].SourceChunk.Less(sortedReservations[j].SourceChunk)
		}
		return sortedReservations[i].FragmentID < sortedReservations[j].FragmentID
	})

	sortedNeighbours := append([]NeighbourView(nil), neighbours...)
	sort.Slice(sortedNeighbours, func(i, j int) bool {
		return sortedNeighbours[i].Coord.Less(sortedNeighbours[j].Coord)
	})

	attempts := 0
	fragmentSeq := 0

	tryAccept := func(candidate geo.Pos, radiusCm int64) bool {
		if g.conflicts(candidate, radiusCm, accepted, sortedReservations, sortedNeighbours) {
			return false
		}
		id := fmt.Sprintf("%s:frag:%d", coord, fragmentSeq)
		fragmentSeq++
		frag := g.buildFragment(id, candidate, radiusCm, rng, noiseSrc)
		accepted = append(accepted, frag)
		return true
	}

cellLoop:
	for iz := 0; iz < nz; iz++ {
		for iy := 0; iy < ny; iy++ {
			for ix := 0; ix < nx; ix++ {
				attempts++
				if attempts > maxCandidates {
					break cellLoop
				}
				if len(accepted) >= g.Config.MaxFragmentsPerChunk {
					break cellLoop
				}

				cellOrigin := geo.Pos{
					X: min.X + int64(ix)*cellSize,
					Y: min.Y + int64(iy)*cellSize,
					Z: min.Z + int64(iz)*cellSize,
				}
				jitterX := rng.Int63n(maxInt64(cellSize, 1))
				jitterY := rng.Int63n(maxInt64(cellSize, 1))
				jitterZ := rng.Int63n(maxInt64(cellSize, 1))
				candidate := geo.Pos{X: cellOrigin.X + jitterX, Y: cellOrigin.Y + jitterY, Z: cellOrigin.Z + jitterZ}

				acceptProb := g.acceptanceProbability(candidate, center, coreRadiusCm)
				if rng.Float64() > acceptProb {
					continue
				}

				radiusCm := g.sampleRadius(rng)
				tryAccept(candidate, radiusCm)
			}
		}
	}

	// Bounded backfill loop (step 4): finite, never blocking.
	backfillAttempts := 0
	for len(accepted) < g.Config.MinFragmentsPerChunk && backfillAttempts < g.Config.MaxGenerationAttempts {
		backfillAttempts++
		candidate := geo.Pos{
			X: min.X + rng.Int63n(maxInt64(size.X, 1)),
			Y: min.Y + rng.Int63n(maxInt64(size.Y, 1)),
			Z: min.Z + rng.Int63n(maxInt64(size.Z, 1)),
		}
		radiusCm := g.sampleRadius(rng)
		tryAccept(candidate, radiusCm)
	}

	if backfillAttempts >= g.Config.MaxGenerationAttempts && len(accepted) < g.Config.MinFragmentsPerChunk {
		// Space is too crowded to reach the floor; this is not treated as
		// budget_exceeded (that aborts the whole chunk) — a partially
		// populated chunk is still valid, just sparser than the target.
		_ = backfillAttempts
	}

	blockCount := 0
	for _, f := range accepted {
		blockCount += len(f.Blocks)
	}
	if blockCount > g.Config.MaxBlocksPerChunk {
		return Result{}, ErrBudgetExceeded{Coord: coord}
	}

	budget := chunkmodel.NewResourceBudget()
	for _, f := range accepted {
		for _, el := range f.Budget.Elements() {
			budget.AddTotal(el, f.Budget.TotalByElement[el])
		}
	}

	writes := g.boundaryWrites(coord, accepted, size)

	return Result{
		Coord:          coord,
		Seed:           seed,
		Fragments:      accepted,
		Budget:         budget,
		BoundaryWrites: writes,
	}, nil
}

// acceptanceProbability raises candidate density near the chunk center
// (spec 4.B step 2: starter_core_density_multiplier inside
// starter_core_radius_ratio) to improve new-player onboarding.
func (g *Generator) acceptanceProbability(candidate, center geo.Pos, coreRadiusCm int64) float64 {
	base := 0.35
	if coreRadiusCm <= 0 {
		return base
	}
	distSq := candidate.DistanceSquaredCm(center)
	coreSq := coreRadiusCm * coreRadiusCm
	if distSq <= coreSq {
		p := base * g.Config.StarterCoreDensityMultiplier
		if p > 1.0 {
			p = 1.0
		}
		return p
	}
	return base
}

func (g *Generator) sampleRadius(rng *rand.Rand) int64 {
	minRadius := float64(g.Config.MinFragmentSpacingCm) / 4
	if minRadius < 100 {
		minRadius = 100
	}
	maxRadius := minRadius * 8

	// Power-law bias toward small fragments: u^3 skews the draw low.
	u := rng.Float64()
	r := minRadius + (maxRadius-minRadius)*math.Pow(u, 3)
	return int64(r)
}

// conflicts checks min-spacing against already-accepted candidates,
// reservations from already-generated neighbours, and existing fragments
// of already-generated 26-neighbour chunks (spec 4.B step 3 a/b/c).
func (g *Generator) conflicts(candidate geo.Pos, radiusCm int64, accepted []*chunkmodel.Fragment, reservations []chunkmodel.BoundaryReservation, neighbours []NeighbourView) bool {
	spacing := g.Config.MinFragmentSpacingCm

	for _, f := range accepted {
		if tooClose(candidate, radiusCm, f.Center, f.RadiusCm, spacing) {
			return true
		}
	}
	for _, r := range reservations {
		if tooClose(candidate, radiusCm, r.Center, r.RadiusCm, spacing) {
			return true
		}
	}
	for _, n := range neighbours {
		for _, f := range n.Fragments {
			if tooClose(candidate, radiusCm, f.Center, f.RadiusCm, spacing) {
				return true
			}
		}
	}
	return false
}

func tooClose(a geo.Pos, ra int64, b geo.Pos, rb int64, spacing int64) bool {
	minDist := ra + rb + spacing
	return a.DistanceSquaredCm(b) < minDist*minDist
}

// buildFragment decomposes an accepted candidate into up to
// max_blocks_per_fragment cuboid blocks and samples compound composition
// per block, then derives the fragment's resource budget.
func (g *Generator) buildFragment(id string, center geo.Pos, radiusCm int64, rng *rand.Rand, noise *perlin.Perlin) *chunkmodel.Fragment {
	bulkDensity := 2000 + rng.Int63n(3000) // kg/m^3, rock-to-metal range

	blockCount := 1 + rng.Intn(maxInt(1, g.Config.MaxBlocksPerFragment))
	sideCm := maxInt64(radiusCm/2, 100)

	blocks := make([]chunkmodel.FragmentBlock, 0, blockCount)
	cursor := geo.Pos{X: center.X - sideCm*int64(blockCount)/2, Y: center.Y, Z: center.Z}
	for i := 0; i < blockCount; i++ {
		origin := geo.Pos{X: cursor.X + int64(i)*sideCm, Y: cursor.Y, Z: cursor.Z}
		size := geo.CuboidSize{X: sideCm, Y: sideCm, Z: sideCm}
		compounds := g.sampleCompounds(origin, rng, noise)
		blocks = append(blocks, chunkmodel.FragmentBlock{
			OriginCm:    origin,
			Size:        size,
			DensityKgM3: bulkDensity,
			Compounds:   compounds,
		})
	}

	frag := &chunkmodel.Fragment{
		ID:              id,
		Center:          center,
		RadiusCm:        radiusCm,
		BulkDensityKgM3: bulkDensity,
		Blocks:          blocks,
		Budget:          chunkmodel.NewResourceBudget(),
	}

	for _, blk := range blocks {
		mass := blk.MassGrams()
		elementPpm := resourcemodel.InferElementPpm(blk.Compounds)
		for _, el := range sortedElements(elementPpm) {
			ppm := elementPpm[el]
			grams := mass * int64(ppm) / int64(resourcemodel.PpmMax)
			grams = grams * g.Config.RecoverabilityPpm / int64(resourcemodel.PpmMax)
			if grams > 0 {
				frag.Budget.AddTotal(el, grams)
			}
		}
	}

	return frag
}

// sampleCompounds picks a block's compound mix according to
// material_distribution_strategy.
func (g *Generator) sampleCompounds(pos geo.Pos, rng *rand.Rand, noise *perlin.Perlin) chunkmodel.CompoundComposition {
	kinds := resourcemodel.CompoundKinds()
	out := make(chunkmodel.CompoundComposition)

	switch g.Config.MaterialDistributionStrategy {
	case worldconfig.DistributionSpatialZoned:
		// A perlin field over the block position picks which compound
		// dominates this block's zone, generalizing the teacher's 2-D
		// terrain-height noise to a 3-D compound-zone field.
		nx := float64(pos.X) / 1_000_000
		ny := float64(pos.Y) / 1_000_000
		nz := float64(pos.Z) / 1_000_000
		v := (noise.Noise3D(nx, ny, nz) + 1.0) / 2.0
		idx := int(v * float64(len(kinds)))
		if idx >= len(kinds) {
			idx = len(kinds) - 1
		}
		dominant := kinds[idx]
		out[dominant] = 700_000
		remaining := resourcemodel.PpmMax - 700_000
		perOther := uint32(remaining) / uint32(len(kinds)-1)
		for _, k := range kinds {
			if k != dominant {
				out[k] = perOther
			}
		}
	default: // uniform
		share := uint32(resourcemodel.PpmMax) / uint32(len(kinds))
		for _, k := range kinds {
			out[k] = share
		}
		// Random perturbation within the uniform strategy keeps blocks
		// from being bit-identical while staying deterministic.
		pick := kinds[rng.Intn(len(kinds))]
		out[pick] += resourcemodel.PpmMax - share*uint32(len(kinds))
	}
	return out
}

// boundaryWrites emits a reservation for every unexplored-by-assumption
// neighbour whose bounding box lies within radius+min_spacing of an
// accepted fragment (spec 4.B step 7). The caller (chunklifecycle) is
// responsible for only actually writing to chunks that are Unexplored.
func (g *Generator) boundaryWrites(coord geo.ChunkCoord, accepted []*chunkmodel.Fragment, size geo.ChunkSize) []BoundaryWrite {
	var writes []BoundaryWrite
	for _, nc := range coord.Neighbours26() {
		nmin, nmax := geo.Bounds(nc, size)
		for _, f := range accepted {
			threshold := f.RadiusCm + g.Config.MinFragmentSpacingCm
			if geo.BBoxDistanceSquaredCm(f.Center, nmin, nmax) <= threshold*threshold {
				writes = append(writes, BoundaryWrite{
					NeighbourCoord: nc,
					Reservation: chunkmodel.BoundaryReservation{
						SourceChunk: coord,
						FragmentID:  f.ID,
						Center:      f.Center,
						RadiusCm:    f.RadiusCm,
					},
				})
			}
		}
	}
	// Deterministic order regardless of Neighbours26's own order (which
	// is already fixed, but fragment order depends on acceptance order).
	sort.Slice(writes, func(i, j int) bool {
		if writes[i].NeighbourCoord != writes[j].NeighbourCoord {
			return writes[i].NeighbourCoord.Less(writes[j].NeighbourCoord)
		}
		return writes[i].Reservation.FragmentID < writes[j].Reservation.FragmentID
	})
	return writes
}

// Replenish deterministically adds up to `want` new fragments to an
// already-Generated chunk (spec 4.D runtime replenishment). The PRNG is
// reseeded from (chunk_seed, tick) so two independent runs reaching the
// same tick draw the same fragments, while repeated replenishments at
// different ticks do not repeat the same draw.
func (g *Generator) Replenish(coord geo.ChunkCoord, existing []*chunkmodel.Fragment, neighbours []NeighbourView, want int, chunkSeed uint64, tick uint64) []*chunkmodel.Fragment {
	rngSeed := int64(chunkSeed ^ (tick * 0x9E3779B97F4A7C15))
	rng := rand.New(rand.NewSource(rngSeed))
	noiseSrc := perlin.NewPerlin(2.0, 2.0, 3, rngSeed)

	size := g.Config.ChunkSize()
	min, _ := geo.Bounds(coord, size)

	sortedNeighbours := append([]NeighbourView(nil), neighbours...)
	sort.Slice(sortedNeighbours, func(i, j int) bool {
		return sortedNeighbours[i].Coord.Less(sortedNeighbours[j].Coord)
	})

	accepted := append([]*chunkmodel.Fragment(nil), existing...)
	added := make([]*chunkmodel.Fragment, 0, want)
	fragmentSeq := len(existing)

	maxAttempts := g.Config.MaxGenerationAttempts
	for attempt := 0; attempt < maxAttempts && len(added) < want; attempt++ {
		candidate := geo.Pos{
			X: min.X + rng.Int63n(maxInt64(size.X, 1)),
			Y: min.Y + rng.Int63n(maxInt64(size.Y, 1)),
			Z: min.Z + rng.Int63n(maxInt64(size.Z, 1)),
		}
		radiusCm := g.sampleRadius(rng)
		if g.conflicts(candidate, radiusCm, accepted, nil, sortedNeighbours) {
			continue
		}
		id := fmt.Sprintf("%s:replenish:%d:%d", coord, tick, fragmentSeq)
		fragmentSeq++
		frag := g.buildFragment(id, candidate, radiusCm, rng, noiseSrc)
		accepted = append(accepted, frag)
		added = append(added, frag)
	}
	return added
}

func sortedElements(m map[resourcemodel.Element]uint32) []resourcemodel.Element {
	out := make([]resourcemodel.Element, 0, len(m))
	for e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
