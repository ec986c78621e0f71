// Package economy holds the shared mining/refining/factory/logistics
// routines the action kernel calls into (spec 4.G). All arithmetic is
// integer; division rounds toward zero unless a rule says otherwise.
package economy

import (
	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

// ElementPlan is the per-element grams to deduct, derived from a
// fragment's compound composition proportional to the requested mass.
type ElementPlan struct {
	Element resourcemodel.Element
	Grams   int64
}

// PlanMining converts a requested compound mass into the per-element
// deduction plan, proportional to the fragment's blended compound
// composition (spec 4.D MineCompound). Returns ValidationError if the
// fragment has no tracked elements.
func PlanMining(frag *chunkmodel.Fragment, massG int64) ([]ElementPlan, error) {
	if massG <= 0 {
		return nil, kernelerr.NewValidationError("mass_g")
	}
	totalMass := frag.TotalMassGrams()
	if totalMass <= 0 {
		return nil, kernelerr.NewValidationError("location")
	}

	elements := frag.Budget.Elements()
	if len(elements) == 0 {
		return nil, kernelerr.NewValidationError("location")
	}

	plan := make([]ElementPlan, 0, len(elements))
	for _, el := range elements {
		total := frag.Budget.TotalByElement[el]
		// grams of this element mined = massG * (element total mass share)
		grams := massG * total / totalMass
		if grams > 0 {
			plan = append(plan, ElementPlan{Element: el, Grams: grams})
		}
	}
	return plan, nil
}

// ConsumeFragmentResource deducts grams of element from both the
// fragment's and chunk's budgets with a conservation check (spec 4.G);
// delegates to worldmodel.Store.ApplyFragmentDepletion for atomicity.
func ConsumeFragmentResource(store *worldmodel.Store, coord geo.ChunkCoord, fragmentID string, element resourcemodel.Element, grams int64) error {
	return store.ApplyFragmentDepletion(coord, fragmentID, element, grams)
}

// MineElectricityCost computes the electricity charged for mining
// mass_g of compound (spec 4.D): mass_g * cost_per_kg / 1000.
func MineElectricityCost(cfg worldconfig.EconomyConfig, massG int64) int64 {
	return massG * cfg.MineElectricityCostPerKg / 1000
}

// Refine converts compound mass into hardware at the configured yield
// (spec 4.G): hardware_mass = compound_mass * yield_ppm / 1e6.
func Refine(cfg worldconfig.EconomyConfig, compoundMassG int64) int64 {
	return compoundMassG * cfg.RefineHardwareYieldPpm / resourcemodel.PpmMax
}

// RefineElectricityCost mirrors MineElectricityCost for the refine step.
func RefineElectricityCost(cfg worldconfig.EconomyConfig, compoundMassG int64) int64 {
	return compoundMassG * cfg.RefineElectricityCostPerKg / 1000
}

// TransitPlan is the computed schedule for a cross-site material
// transfer (spec 4.D TransferMaterial).
type TransitPlan struct {
	ReadyAtTick uint64
	LossAmount  int64
}

// PlanTransit computes ready_at and loss for a cross-site transfer.
// Returns ValidationError(amount) if loss >= amount (spec 8 scenario 6).
func PlanTransit(cfg worldconfig.LogisticsConfig, currentTick uint64, amount, distanceKm int64) (TransitPlan, error) {
	if amount <= 0 {
		return TransitPlan{}, kernelerr.NewValidationError("amount")
	}
	if distanceKm > cfg.MaterialTransferMaxDistanceKm {
		return TransitPlan{}, kernelerr.NewValidationError("distance_km")
	}

	speed := cfg.TransferSpeedKmPerTick
	if speed <= 0 {
		speed = 1
	}
	ticks := ceilDiv(distanceKm, speed)
	if ticks < 1 {
		ticks = 1
	}

	loss := amount * distanceKm * cfg.TransferLossBps / 10_000
	if loss >= amount {
		return TransitPlan{}, kernelerr.NewValidationError("amount")
	}

	return TransitPlan{ReadyAtTick: currentTick + uint64(ticks), LossAmount: loss}, nil
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// RecipeCatalog statically maps recipe ids to their required factory
// kind, input cost, and output yield — the static recipe catalog
// mentioned in the expanded spec's economy component (spec 4.G).
type Recipe struct {
	ID               string
	CompatibleKind   string
	InputHardwareG   int64
	InputElectricity int64
	OutputHardwareG  int64
	OutputDataG      int64
}

var recipeCatalog = map[string]Recipe{
	"recipe.hardware.basic_plate": {
		ID:               "recipe.hardware.basic_plate",
		CompatibleKind:   "factory.fabrication.mk1",
		InputHardwareG:   500,
		InputElectricity: 50,
		OutputHardwareG:  450,
	},
	"recipe.data.survey_compile": {
		ID:               "recipe.data.survey_compile",
		CompatibleKind:   "factory.data.mk1",
		InputElectricity: 20,
		OutputDataG:      100,
	},
}

// LookupRecipe returns the static recipe definition, or false if unknown.
func LookupRecipe(id string) (Recipe, bool) {
	r, ok := recipeCatalog[id]
	return r, ok
}

// FactoryProduction computes the output of running `batches` of a recipe,
// reading from the factory's input ledger (spec 4.G factory_production).
// It does not itself mutate ledgers — callers apply the deltas atomically
// via worldmodel.Store.AdjustMaterialLedger / AdjustResource.
type ProductionResult struct {
	HardwareOut      int64
	DataOut          int64
	ElectricityConsumed int64
	HardwareConsumed int64
}

func FactoryProduction(recipe Recipe, batches int64) ProductionResult {
	return ProductionResult{
		HardwareOut:         recipe.OutputHardwareG * batches,
		DataOut:             recipe.OutputDataG * batches,
		ElectricityConsumed: recipe.InputElectricity * batches,
		HardwareConsumed:    recipe.InputHardwareG * batches,
	}
}
