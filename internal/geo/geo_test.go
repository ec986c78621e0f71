package geo

import "testing"

func TestCoordOfFloorDivision(t *testing.T) {
	size := ChunkSize{X: 2_000_000, Y: 2_000_000, Z: 1_000_000}

	cases := []struct {
		pos  Pos
		want ChunkCoord
	}{
		{Pos{X: 0, Y: 0, Z: 0}, ChunkCoord{0, 0, 0}},
		{Pos{X: 1_999_999, Y: 0, Z: 0}, ChunkCoord{0, 0, 0}},
		{Pos{X: 2_000_000, Y: 0, Z: 0}, ChunkCoord{1, 0, 0}},
		{Pos{X: -1, Y: 0, Z: 0}, ChunkCoord{-1, 0, 0}},
		{Pos{X: -2_000_000, Y: 0, Z: 0}, ChunkCoord{-1, 0, 0}},
		{Pos{X: -2_000_001, Y: 0, Z: 0}, ChunkCoord{-2, 0, 0}},
	}
	for _, c := range cases {
		got := CoordOf(c.pos, size)
		if got != c.want {
			t.Errorf("CoordOf(%v) = %v, want %v", c.pos, got, c.want)
		}
	}
}

func TestBoundsHalfOpen(t *testing.T) {
	size := ChunkSize{X: 10, Y: 10, Z: 10}
	min, max := Bounds(ChunkCoord{X: 1, Y: 0, Z: 0}, size)
	if min != (Pos{X: 10, Y: 0, Z: 0}) || max != (Pos{X: 20, Y: 10, Z: 10}) {
		t.Fatalf("unexpected bounds: min=%v max=%v", min, max)
	}
}

func TestMassGramsTruncatesTowardZero(t *testing.T) {
	// density * volume = 1999 -> 1999/1000 = 1 (truncated), not 2.
	if got := MassGrams(1999, 1); got != 1 {
		t.Fatalf("MassGrams = %d, want 1", got)
	}
}

func TestUnitCuboidNoDivisionByZero(t *testing.T) {
	s := CuboidSize{X: 1, Y: 1, Z: 1}
	if s.VolumeCm3() != 1 {
		t.Fatalf("unit cuboid volume = %d, want 1", s.VolumeCm3())
	}
}

func TestNeighbours26Count(t *testing.T) {
	n := ChunkCoord{}.Neighbours26()
	if len(n) != 26 {
		t.Fatalf("got %d neighbours, want 26", len(n))
	}
	seen := make(map[ChunkCoord]bool)
	for _, c := range n {
		if seen[c] {
			t.Fatalf("duplicate neighbour %v", c)
		}
		seen[c] = true
	}
}

func TestDistanceCmExact(t *testing.T) {
	if got := (Pos{X: 0, Y: 0, Z: 0}).DistanceCm(Pos{X: 3, Y: 4, Z: 0}); got != 5 {
		t.Fatalf("DistanceCm = %d, want 5", got)
	}
	if got := (Pos{X: 0}).DistanceCm(Pos{X: 0}); got != 0 {
		t.Fatalf("DistanceCm of coincident points = %d, want 0", got)
	}
}

func TestBBoxDistanceSquaredInsideIsZero(t *testing.T) {
	min := Pos{X: 0, Y: 0, Z: 0}
	max := Pos{X: 10, Y: 10, Z: 10}
	if d := BBoxDistanceSquaredCm(Pos{X: 5, Y: 5, Z: 5}, min, max); d != 0 {
		t.Fatalf("distance inside box = %d, want 0", d)
	}
}
