// Package worldconfig carries the immutable WorldConfig (spec 6): space
// extents, asteroid_fragment generation parameters, economy parameters,
// logistics parameters, physics/kinematics defaults, and social stake
// defaults. It is loaded once at world bootstrap and never mutated for
// the lifetime of a world.
package worldconfig

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
)

// MaterialDistributionStrategy selects how compound composition is
// sampled across a fragment's blocks during generation.
type MaterialDistributionStrategy string

const (
	DistributionUniform      MaterialDistributionStrategy = "uniform"
	DistributionSpatialZoned MaterialDistributionStrategy = "spatial_zone_biased"
)

// SpaceConfig is the overall simulated space extent, in centimeters.
type SpaceConfig struct {
	ExtentXCm int64 `yaml:"extent_x_cm"`
	ExtentYCm int64 `yaml:"extent_y_cm"`
	ExtentZCm int64 `yaml:"extent_z_cm"`
}

// AsteroidFragmentConfig groups every chunk-generation parameter named in
// spec 6.
type AsteroidFragmentConfig struct {
	ChunkSizeXCm               int64                         `yaml:"chunk_size_x_cm"`
	ChunkSizeYCm               int64                         `yaml:"chunk_size_y_cm"`
	ChunkSizeZCm               int64                         `yaml:"chunk_size_z_cm"`
	MinFragmentsPerChunk       int                           `yaml:"min_fragments_per_chunk"`
	MaxFragmentsPerChunk       int                           `yaml:"max_fragments_per_chunk"`
	MaxBlocksPerFragment       int                           `yaml:"max_blocks_per_fragment"`
	MaxBlocksPerChunk          int                           `yaml:"max_blocks_per_chunk"`
	MinFragmentSpacingCm       int64                         `yaml:"min_fragment_spacing_cm"`
	StarterCoreRadiusRatio     float64                       `yaml:"starter_core_radius_ratio"`
	StarterCoreDensityMultiplier float64                     `yaml:"starter_core_density_multiplier"`
	ReplenishIntervalTicks     uint64                        `yaml:"replenish_interval_ticks"`
	ReplenishPercentPpm        int64                         `yaml:"replenish_percent_ppm"`
	MaterialDistributionStrategy MaterialDistributionStrategy `yaml:"material_distribution_strategy"`
	RecoverabilityPpm          int64                         `yaml:"recoverability_ppm"`
	// GenerationBudgetMillis bounds wall-clock generation time per chunk
	// before the budget_exceeded policy fires.
	GenerationBudgetMillis int64 `yaml:"generation_budget_millis"`
	// MaxGenerationAttempts bounds the backfill loop (step 4): finite,
	// never blocking.
	MaxGenerationAttempts int `yaml:"max_generation_attempts"`
}

func (a AsteroidFragmentConfig) ChunkSize() geo.ChunkSize {
	return geo.ChunkSize{X: a.ChunkSizeXCm, Y: a.ChunkSizeYCm, Z: a.ChunkSizeZCm}
}

// EconomyConfig groups mining/refining economy parameters.
type EconomyConfig struct {
	MineElectricityCostPerKg    int64 `yaml:"mine_electricity_cost_per_kg"`
	MineCompoundMaxPerActionG   int64 `yaml:"mine_compound_max_per_action_g"`
	MineCompoundMaxPerLocationG int64 `yaml:"mine_compound_max_per_location_g"`
	RefineElectricityCostPerKg  int64 `yaml:"refine_electricity_cost_per_kg"`
	RefineHardwareYieldPpm      int64 `yaml:"refine_hardware_yield_ppm"`
}

// LogisticsConfig groups multi-ledger material transfer parameters.
type LogisticsConfig struct {
	MaterialTransferMaxDistanceKm int64 `yaml:"material_transfer_max_distance_km"`
	TransferLossBps               int64 `yaml:"transfer_loss_bps"`
	TransferSpeedKmPerTick        int64 `yaml:"transfer_speed_km_per_tick"`
	MaxInflightPerTick            int   `yaml:"material_transfer_max_inflight_per_tick"`
}

// PhysicsConfig groups movement/kinematics parameters.
type PhysicsConfig struct {
	SpeedCmPerTick          int64 `yaml:"speed_cm_per_tick"`
	MaxMoveDistanceCmPerTick int64 `yaml:"max_move_distance_cm_per_tick"`
	KinematicsEnabled        bool  `yaml:"kinematics_enabled"`
}

// SocialConfig groups social-fact stake defaults.
type SocialConfig struct {
	DefaultStakeAmount int64              `yaml:"default_stake_amount"`
	DefaultStakeKind   resourcemodel.Kind `yaml:"-"`
	MinConfidencePpm   int64              `yaml:"min_confidence_ppm"`
	MaxConfidencePpm   int64              `yaml:"max_confidence_ppm"`
}

// WorldConfig is immutable for the lifetime of a world; a scenario
// supplies its WorldConfig at initialization only.
type WorldConfig struct {
	Space            SpaceConfig            `yaml:"space"`
	AsteroidFragment AsteroidFragmentConfig `yaml:"asteroid_fragment"`
	Economy          EconomyConfig          `yaml:"economy"`
	Logistics        LogisticsConfig        `yaml:"logistics"`
	Physics          PhysicsConfig          `yaml:"physics"`
	Social           SocialConfig           `yaml:"social"`

	// DebugEnabled gates DebugGrantResource and similar debug-only actions.
	DebugEnabled bool `yaml:"debug_enabled"`
}

// Default returns the out-of-the-box WorldConfig used by scenario
// bootstrap and by tests, mirroring the magnitudes named in spec 3/6.
func Default() WorldConfig {
	return WorldConfig{
		Space: SpaceConfig{
			ExtentXCm: 100 * 100_000, // 100km
			ExtentYCm: 100 * 100_000,
			ExtentZCm: 10 * 100_000, // 10km
		},
		AsteroidFragment: AsteroidFragmentConfig{
			ChunkSizeXCm:                 20 * 100_000, // 20km
			ChunkSizeYCm:                 20 * 100_000,
			ChunkSizeZCm:                 10 * 100_000, // 10km
			MinFragmentsPerChunk:         6,
			MaxFragmentsPerChunk:         64,
			MaxBlocksPerFragment:         16,
			MaxBlocksPerChunk:            1024,
			MinFragmentSpacingCm:         500_000, // 5km
			StarterCoreRadiusRatio:       0.25,
			StarterCoreDensityMultiplier: 3.0,
			ReplenishIntervalTicks:       600,
			ReplenishPercentPpm:          20_000, // 2%
			MaterialDistributionStrategy: DistributionUniform,
			RecoverabilityPpm:            resourcemodel.DefaultRecoverabilityPpm,
			GenerationBudgetMillis:       250,
			MaxGenerationAttempts:        64,
		},
		Economy: EconomyConfig{
			MineElectricityCostPerKg:    10,
			MineCompoundMaxPerActionG:   50_000,
			MineCompoundMaxPerLocationG: 5_000_000,
			RefineElectricityCostPerKg:  5,
			RefineHardwareYieldPpm:      900_000,
		},
		Logistics: LogisticsConfig{
			MaterialTransferMaxDistanceKm: 10_000,
			TransferLossBps:               10,
			TransferSpeedKmPerTick:        5,
			MaxInflightPerTick:            64,
		},
		Physics: PhysicsConfig{
			SpeedCmPerTick:           50_000, // 500 m per tick
			MaxMoveDistanceCmPerTick: 5_000_000,
			KinematicsEnabled:        false,
		},
		Social: SocialConfig{
			DefaultStakeAmount: 100,
			DefaultStakeKind:   resourcemodel.Hardware,
			MinConfidencePpm:   1,
			MaxConfidencePpm:   1_000_000,
		},
	}
}

// Load reads a YAML WorldConfig. If path is empty it falls back to the
// WORLDKERNEL_CONFIG environment variable and, failing that, to Default().
func Load(path string) (WorldConfig, error) {
	if path == "" {
		path = os.Getenv("WORLDKERNEL_CONFIG")
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return WorldConfig{}, fmt.Errorf("worldconfig: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WorldConfig{}, fmt.Errorf("worldconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}

// getIntWithEnvFallback mirrors the teacher's getPortWithEnvFallback,
// generalized beyond server ports: config value wins if set, else env
// var, else default.
func getIntWithEnvFallback(configVal int64, envVar string, def int64) int64 {
	if configVal > 0 {
		return configVal
	}
	if v := os.Getenv(envVar); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// GetDebugEnabled resolves DebugEnabled with an environment override,
// useful for enabling DebugGrantResource in CI without editing YAML.
func (c WorldConfig) GetDebugEnabled() bool {
	if c.DebugEnabled {
		return true
	}
	return os.Getenv("WORLDKERNEL_DEBUG") == "1"
}

// GetGenerationBudgetMillis applies the config->env->default fallback.
func (c WorldConfig) GetGenerationBudgetMillis() int64 {
	return getIntWithEnvFallback(c.AsteroidFragment.GenerationBudgetMillis, "WORLDKERNEL_GEN_BUDGET_MS", 250)
}
