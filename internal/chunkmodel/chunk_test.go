package chunkmodel

import (
	"testing"

	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
)

func TestResourceBudgetDepleteInvariant(t *testing.T) {
	b := NewResourceBudget()
	b.AddTotal("Fe", 1000)

	if !b.Deplete("Fe", 400) {
		t.Fatal("expected deplete to succeed")
	}
	if b.RemainingByElement["Fe"] != 600 {
		t.Fatalf("remaining = %d, want 600", b.RemainingByElement["Fe"])
	}
	if !b.Valid() {
		t.Fatal("budget should be valid after partial deplete")
	}

	if b.Deplete("Fe", 700) {
		t.Fatal("deplete beyond remaining must fail")
	}
	if b.RemainingByElement["Fe"] != 600 {
		t.Fatal("failed deplete must not mutate state")
	}
}

func TestResourceBudgetElementsSortedDeterministic(t *testing.T) {
	b := NewResourceBudget()
	b.AddTotal("Ni", 10)
	b.AddTotal("Fe", 10)
	b.AddTotal("O", 10)

	got := b.Elements()
	want := []resourcemodel.Element{"Fe", "Ni", "O"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Elements()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFragmentBlockOverlap(t *testing.T) {
	a := FragmentBlock{OriginCm: geo.Pos{X: 0, Y: 0, Z: 0}, Size: geo.CuboidSize{X: 10, Y: 10, Z: 10}}
	b := FragmentBlock{OriginCm: geo.Pos{X: 5, Y: 5, Z: 5}, Size: geo.CuboidSize{X: 10, Y: 10, Z: 10}}
	c := FragmentBlock{OriginCm: geo.Pos{X: 10, Y: 0, Z: 0}, Size: geo.CuboidSize{X: 10, Y: 10, Z: 10}}

	if !a.Overlaps(b) {
		t.Fatal("a and b should overlap")
	}
	if a.Overlaps(c) {
		t.Fatal("adjacent (touching) blocks at half-open boundary must not overlap")
	}
}

func TestUnitBlockMassNoPanic(t *testing.T) {
	blk := FragmentBlock{Size: geo.CuboidSize{X: 1, Y: 1, Z: 1}, DensityKgM3: 2700}
	if blk.VolumeCm3() != 1 {
		t.Fatalf("volume = %d, want 1", blk.VolumeCm3())
	}
	// mass_g = 2700 * 1 / 1000 = 2 (truncated)
	if blk.MassGrams() != 2 {
		t.Fatalf("mass = %d, want 2", blk.MassGrams())
	}
}
