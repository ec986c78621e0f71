package economy

import (
	"testing"

	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
)

func TestPlanMiningProportionalToComposition(t *testing.T) {
	budget := chunkmodel.NewResourceBudget()
	budget.AddTotal("Fe", 800)
	budget.AddTotal("Ni", 200)
	frag := &chunkmodel.Fragment{
		Blocks: []chunkmodel.FragmentBlock{
			{Size: geo.CuboidSize{X: 10, Y: 10, Z: 10}, DensityKgM3: 10000},
		},
		Budget: budget,
	}

	plan, err := PlanMining(frag, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var total int64
	for _, p := range plan {
		total += p.Grams
	}
	if total == 0 {
		t.Fatal("expected a nonzero mining plan")
	}
}

func TestPlanMiningRejectsZeroMass(t *testing.T) {
	frag := &chunkmodel.Fragment{Budget: chunkmodel.NewResourceBudget()}
	if _, err := PlanMining(frag, 0); err == nil {
		t.Fatal("expected validation error for zero mass")
	}
}

func TestPlanTransitRejectsLossExceedingAmount(t *testing.T) {
	cfg := worldconfig.Default().Logistics
	_, err := PlanTransit(cfg, 0, 10, cfg.MaterialTransferMaxDistanceKm)
	if err == nil {
		t.Fatal("expected rejection when loss >= amount")
	}
}

func TestPlanTransitComputesReadyAtAndLoss(t *testing.T) {
	cfg := worldconfig.Default().Logistics
	cfg.TransferSpeedKmPerTick = 5
	cfg.TransferLossBps = 100
	plan, err := PlanTransit(cfg, 100, 1000, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.ReadyAtTick != 102 {
		t.Fatalf("ready_at = %d, want 102", plan.ReadyAtTick)
	}
	// loss = 1000 * 10 km * 100 bps / 10000 = 100
	if plan.LossAmount != 100 {
		t.Fatalf("loss = %d, want 100", plan.LossAmount)
	}
}

func TestRefineYield(t *testing.T) {
	cfg := worldconfig.Default().Economy
	out := Refine(cfg, 500)
	want := int64(500) * cfg.RefineHardwareYieldPpm / 1_000_000
	if out != want {
		t.Fatalf("refine output = %d, want %d", out, want)
	}
}

func TestFactoryProductionScalesWithBatches(t *testing.T) {
	recipe, ok := LookupRecipe("recipe.hardware.basic_plate")
	if !ok {
		t.Fatal("expected recipe.hardware.basic_plate in catalog")
	}
	result := FactoryProduction(recipe, 3)
	if result.HardwareOut != recipe.OutputHardwareG*3 {
		t.Fatalf("hardware out = %d, want %d", result.HardwareOut, recipe.OutputHardwareG*3)
	}
}
