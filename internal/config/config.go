// Package config holds the application-level RuntimeConfig: process
// wiring (storage paths, eventbus URL, server ports, the debug flag) as
// distinct from worldconfig.WorldConfig, which is the simulated world's
// own tunables and travels inside persisted snapshots.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig is the root process configuration, loaded from YAML
// with config -> env -> default fallback on every port and path.
type RuntimeConfig struct {
	Persistence PersistenceConfig `yaml:"persistence"`
	EventBus    EventBusConfig    `yaml:"eventbus"`
	ReadModel   ReadModelConfig   `yaml:"read_model"`
	Server      ServerConfig      `yaml:"server"`
	Evaluator   EvaluatorConfig   `yaml:"evaluator"`
	Debug       bool              `yaml:"debug"`
}

// EvaluatorConfig points the rule engine at the external evaluator
// sandbox (spec 4.E). Backend "nats" dispatches over NATSEvaluator;
// anything else leaves the engine's in-process evaluator unset.
type EvaluatorConfig struct {
	Backend string `yaml:"backend"` // "none" or "nats"
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type PersistenceConfig struct {
	DataPath          string `yaml:"data_path"`
	SnapshotEveryTick uint64 `yaml:"snapshot_every_tick"`
	MongoURI          string `yaml:"mongo_uri"`
	MongoDatabase     string `yaml:"mongo_database"`
}

type EventBusConfig struct {
	Backend   string `yaml:"backend"` // "memory" or "jetstream"
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type ReadModelConfig struct {
	Backend  string `yaml:"backend"` // "memory", "redis", or "mysql"
	RedisDSN string `yaml:"redis_dsn"`
	MySQLDSN string `yaml:"mysql_dsn"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

func (s *ServerConfig) GetRESTPort() int {
	return getIntWithEnvFallback(s.RESTPort, "WORLDKERNEL_REST_PORT", 8088)
}

func (s *ServerConfig) GetMetricsPort() int {
	return getIntWithEnvFallback(s.MetricsPort, "WORLDKERNEL_METRICS_PORT", 9090)
}

func (p *PersistenceConfig) GetDataPath() string {
	if p.DataPath != "" {
		return p.DataPath
	}
	if v := os.Getenv("WORLDKERNEL_DATA_PATH"); v != "" {
		return v
	}
	return "./data"
}

func getIntWithEnvFallback(configVal int, envVar string, def int) int {
	if configVal > 0 {
		return configVal
	}
	if v := os.Getenv(envVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// Load reads a YAML config file. If path is empty it tries the
// WORLDKERNEL_CONFIG env var, then falls back to an empty RuntimeConfig
// whose zero values resolve through the per-field env/default chain.
func Load(path string) (*RuntimeConfig, error) {
	if path == "" {
		path = os.Getenv("WORLDKERNEL_CONFIG")
		if path == "" {
			return &RuntimeConfig{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RuntimeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
