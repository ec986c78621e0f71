// Package geo defines the integer geometric primitives shared by every
// other package: world positions in centimeters, chunk coordinates, and
// the cuboid shapes used by fragment blocks.
package geo

import "fmt"

// Pos is a signed position in the world, in integer centimeters.
// All kernel math stays in integers; no component may hold a float.
type Pos struct {
	X, Y, Z int64
}

// Add returns the component-wise sum of two positions.
func (p Pos) Add(o Pos) Pos {
	return Pos{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Sub returns the component-wise difference p - o.
func (p Pos) Sub(o Pos) Pos {
	return Pos{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

// DistanceSquaredCm returns the squared distance between two positions in
// cm^2. Kernel code compares squared distances against squared thresholds
// so no float ever enters a determinism-sensitive comparison.
func (p Pos) DistanceSquaredCm(o Pos) int64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

// DistanceCm returns the integer distance between two positions in cm,
// floored. Used only where a linear (not squared) distance is the
// quantity of record, such as kinematics remaining_cm — computed by
// integer binary search rather than math.Sqrt so the result never
// depends on floating-point rounding across platforms.
func (p Pos) DistanceCm(o Pos) int64 {
	return isqrt(p.DistanceSquaredCm(o))
}

// isqrt returns floor(sqrt(n)) for n >= 0 via binary search.
func isqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	lo, hi := int64(0), n
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if mid <= n/mid {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d,%d)cm", p.X, p.Y, p.Z)
}

// ChunkCoord identifies a 20km x 20km x 10km chunk of space.
type ChunkCoord struct {
	X, Y, Z int32
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("chunk(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Neighbours26 returns the 26 chunk coordinates adjacent to c (including
// diagonals), in a fixed, deterministic order (z-major, then y, then x).
func (c ChunkCoord) Neighbours26() []ChunkCoord {
	out := make([]ChunkCoord, 0, 26)
	for dz := int32(-1); dz <= 1; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out = append(out, ChunkCoord{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz})
			}
		}
	}
	return out
}

// Less gives ChunkCoord a total order, used as the tie-break key for
// generation conflicts ("earlier-generated neighbour wins, lexicographic
// by chunk_coord").
func (c ChunkCoord) Less(o ChunkCoord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.Z < o.Z
}

// ChunkSize is the chunk extent in centimeters, configurable per
// WorldConfig.asteroid_fragment.CHUNK_SIZE_{X,Y,Z}_CM.
type ChunkSize struct {
	X, Y, Z int64
}

// CoordOf computes coord_of(pos) = floor(pos_cm / chunk_size_cm)
// component-wise. Division is floor, not truncation, so negative
// coordinates land in the correct (lower) chunk.
func CoordOf(pos Pos, size ChunkSize) ChunkCoord {
	return ChunkCoord{
		X: int32(floorDiv(pos.X, size.X)),
		Y: int32(floorDiv(pos.Y, size.Y)),
		Z: int32(floorDiv(pos.Z, size.Z)),
	}
}

// Bounds returns the half-open [min, max) bounding box of a chunk.
func Bounds(c ChunkCoord, size ChunkSize) (min, max Pos) {
	min = Pos{X: int64(c.X) * size.X, Y: int64(c.Y) * size.Y, Z: int64(c.Z) * size.Z}
	max = Pos{X: min.X + size.X, Y: min.Y + size.Y, Z: min.Z + size.Z}
	return min, max
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// CuboidSize is the extent of a fragment block, in centimeters. Every
// component must be >= 1.
type CuboidSize struct {
	X, Y, Z int64
}

// VolumeCm3 returns x*y*z. Valid for CuboidSize{1,1,1}: VolumeCm3 == 1,
// avoiding any division by zero in downstream mass calculations.
func (s CuboidSize) VolumeCm3() int64 {
	return s.X * s.Y * s.Z
}

// MassGrams computes mass_g = density_kg_per_m3 * volume_cm3 / 1000 using
// truncating integer division toward zero (documented open question in
// spec 9: rounding direction for non-exact division is truncation).
func MassGrams(densityKgPerM3 int64, volumeCm3 int64) int64 {
	return (densityKgPerM3 * volumeCm3) / 1000
}

// BBoxDistanceSquaredCm returns the squared minimum distance between a
// point and an axis-aligned box [min,max), or 0 if the point is inside.
func BBoxDistanceSquaredCm(p Pos, min, max Pos) int64 {
	dx := axisGap(p.X, min.X, max.X)
	dy := axisGap(p.Y, min.Y, max.Y)
	dz := axisGap(p.Z, min.Z, max.Z)
	return dx*dx + dy*dy + dz*dz
}

func axisGap(v, lo, hi int64) int64 {
	if v < lo {
		return lo - v
	}
	if v >= hi {
		return v - hi + 1
	}
	return 0
}
