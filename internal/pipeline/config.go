package pipeline

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CompilerConfig controls the translate/optimize stages. Loaded from
// YAML.
type CompilerConfig struct {
	// OptimizeRounds caps contraction rounds; zero means run to a
	// natural fixed point.
	OptimizeRounds int `yaml:"optimize_rounds"`
	// LogLevel selects the zap level name ("debug","info","warn","error").
	LogLevel string `yaml:"log_level"`
}

// RuntimeConfig controls the execution substrate.
type RuntimeConfig struct {
	HeapCapacity  int `yaml:"heap_capacity"`
	MaxStackDepth int `yaml:"max_stack_depth"`
}

// Config is the top-level document a .slyc.yaml file carries.
type Config struct {
	Compiler CompilerConfig `yaml:"compiler"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
}

// DefaultConfig mirrors the constants internal/runtime falls back to
// when no file is present.
func DefaultConfig() Config {
	return Config{
		Compiler: CompilerConfig{OptimizeRounds: 0, LogLevel: "info"},
		Runtime:  RuntimeConfig{HeapCapacity: 4096, MaxStackDepth: 512},
	}
}

// LoadConfig reads and parses a YAML config file, returning defaults
// unchanged if path is empty (no config requested).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// NewLogger builds the zap.Logger the rest of the pipeline logs through,
// honoring cfg.LogLevel.
func NewLogger(cfg CompilerConfig) (*zap.Logger, error) {
	var level zap.AtomicLevel
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	return zcfg.Build()
}
