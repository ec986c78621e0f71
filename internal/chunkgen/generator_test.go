package chunkgen

import (
	"testing"

	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
)

func testConfig() worldconfig.AsteroidFragmentConfig {
	return worldconfig.Default().AsteroidFragment
}

func TestChunkSeedDeterministic(t *testing.T) {
	coord := geo.ChunkCoord{X: 3, Y: -2, Z: 1}
	a := ChunkSeed(42, coord)
	b := ChunkSeed(42, coord)
	if a != b {
		t.Fatalf("ChunkSeed not deterministic: %d != %d", a, b)
	}

	other := ChunkSeed(42, geo.ChunkCoord{X: 3, Y: -2, Z: 2})
	if a == other {
		t.Fatal("distinct coords must not collide trivially")
	}
}

func TestGenerateDeterministicAcrossRuns(t *testing.T) {
	gen := New(123, testConfig())
	coord := geo.ChunkCoord{X: 0, Y: 0, Z: 0}

	r1, err1 := gen.Generate(coord, nil, nil)
	r2, err2 := gen.Generate(coord, nil, nil)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}

	if len(r1.Fragments) != len(r2.Fragments) {
		t.Fatalf("fragment count differs across runs: %d vs %d", len(r1.Fragments), len(r2.Fragments))
	}
	for i := range r1.Fragments {
		if r1.Fragments[i].Center != r2.Fragments[i].Center {
			t.Fatalf("fragment %d center differs: %v vs %v", i, r1.Fragments[i].Center, r2.Fragments[i].Center)
		}
		if r1.Fragments[i].RadiusCm != r2.Fragments[i].RadiusCm {
			t.Fatalf("fragment %d radius differs", i)
		}
	}
}

func TestGenerateRespectsMinFragmentsFloor(t *testing.T) {
	cfg := testConfig()
	gen := New(7, cfg)
	result, err := gen.Generate(geo.ChunkCoord{X: 1, Y: 1, Z: 0}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Fragments) == 0 {
		t.Fatal("expected at least one fragment")
	}
	if len(result.Fragments) > cfg.MaxFragmentsPerChunk {
		t.Fatalf("fragment count %d exceeds MaxFragmentsPerChunk %d", len(result.Fragments), cfg.MaxFragmentsPerChunk)
	}
}

func TestGenerateFragmentsRespectMinSpacing(t *testing.T) {
	cfg := testConfig()
	gen := New(99, cfg)
	result, err := gen.Generate(geo.ChunkCoord{X: 0, Y: 0, Z: 0}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range result.Fragments {
		for j := i + 1; j < len(result.Fragments); j++ {
			a, b := result.Fragments[i], result.Fragments[j]
			minDist := a.RadiusCm + b.RadiusCm + cfg.MinFragmentSpacingCm
			if a.Center.DistanceSquaredCm(b.Center) < minDist*minDist {
				t.Fatalf("fragments %s and %s violate min spacing", a.ID, b.ID)
			}
		}
	}
}

func TestGenerateHonoursBoundaryReservations(t *testing.T) {
	cfg := testConfig()
	gen := New(11, cfg)
	coord := geo.ChunkCoord{X: 5, Y: 5, Z: 0}
	min, _ := geo.Bounds(coord, cfg.ChunkSize())

	reservation := chunkmodel.BoundaryReservation{
		SourceChunk: geo.ChunkCoord{X: 4, Y: 5, Z: 0},
		FragmentID:  "reserved-1",
		Center:      geo.Pos{X: min.X, Y: min.Y + cfg.ChunkSizeYCm/2, Z: min.Z + cfg.ChunkSizeZCm/2},
		RadiusCm:    cfg.MinFragmentSpacingCm * 3,
	}

	result, err := gen.Generate(coord, []chunkmodel.BoundaryReservation{reservation}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, f := range result.Fragments {
		minDist := f.RadiusCm + reservation.RadiusCm + cfg.MinFragmentSpacingCm
		if f.Center.DistanceSquaredCm(reservation.Center) < minDist*minDist {
			t.Fatalf("fragment %s placed inside reserved boundary region", f.ID)
		}
	}
}

func TestGenerateBudgetMatchesFragmentSums(t *testing.T) {
	gen := New(55, testConfig())
	result, err := gen.Generate(geo.ChunkCoord{X: 2, Y: 0, Z: 0}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := make(map[string]int64)
	for _, f := range result.Fragments {
		for _, el := range f.Budget.Elements() {
			want[string(el)] += f.Budget.TotalByElement[el]
		}
	}
	for _, el := range result.Budget.Elements() {
		if result.Budget.TotalByElement[el] != want[string(el)] {
			t.Fatalf("chunk budget for %s = %d, want %d", el, result.Budget.TotalByElement[el], want[string(el)])
		}
	}
}

func TestGenerateEmitsSortedBoundaryWrites(t *testing.T) {
	gen := New(4, testConfig())
	result, err := gen.Generate(geo.ChunkCoord{X: 0, Y: 0, Z: 0}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 1; i < len(result.BoundaryWrites); i++ {
		prev, cur := result.BoundaryWrites[i-1], result.BoundaryWrites[i]
		if cur.NeighbourCoord.Less(prev.NeighbourCoord) {
			t.Fatal("boundary writes must be sorted by neighbour coord")
		}
	}
}

func TestGenerateExceedsBlockBudgetIsReported(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBlocksPerChunk = 1
	cfg.MinFragmentsPerChunk = 8
	gen := New(77, cfg)

	_, err := gen.Generate(geo.ChunkCoord{X: 0, Y: 0, Z: 0}, nil, nil)
	if err == nil {
		t.Fatal("expected ErrBudgetExceeded when block cap is far below the generated count")
	}
	if _, ok := err.(ErrBudgetExceeded); !ok {
		t.Fatalf("expected ErrBudgetExceeded, got %T: %v", err, err)
	}
}
