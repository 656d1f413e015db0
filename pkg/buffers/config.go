package buffers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/solver"
)

// Config controls the buffer placement formulations and the solver runs.
type Config struct {
	// Buffer sizing
	MaxSlots int `yaml:"max_slots"` // Upper bound on the slot count of one buffer (default: 8)

	// Objective weights
	SlotWeight       float64 `yaml:"slot_weight"`       // Cost per buffer slot (default: 1)
	RegisterWeight   float64 `yaml:"register_weight"`   // Extra cost of an opaque buffer (default: 0.1)
	FrequencyWeight  float64 `yaml:"frequency_weight"`  // BB only: cost of a register on the hottest block edge (default: 0.05)
	SequentialWeight float64 `yaml:"sequential_weight"` // BB sc only: cost per register on the start-to-end path (default: 0.01)

	// Throughput and latency targets
	TargetII           int `yaml:"target_ii"`            // If set, every cycle must turn a token around within this many clock cycles
	MaxSequentialDepth int `yaml:"max_sequential_depth"` // BB sc only: bound on registers along forward block paths

	// Limits
	MaxCycles int `yaml:"max_cycles"` // Elementary cycle enumeration limit, 0 for none (default: 100000)

	// Solver runs
	SolverWorkDir   string            `yaml:"solver_work_dir"`   // Scratch directory root, "" for the system temp dir
	KeepSolverFiles bool              `yaml:"keep_solver_files"` // Keep model and solution files for inspection
	Solvers         map[string]string `yaml:"solvers"`           // Backend name to executable path
}

// DefaultConfig returns a Config with sensible defaults for most netlists.
func DefaultConfig() *Config {
	return &Config{
		MaxSlots:         8,
		SlotWeight:       1,
		RegisterWeight:   0.1,
		FrequencyWeight:  0.05,
		SequentialWeight: 0.01,
		MaxCycles:        100000,
	}
}

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("buffers: invalid config")

// Validate checks the configuration and normalises out of range limits.
func (c *Config) Validate() error {
	if c.MaxSlots < 1 {
		c.MaxSlots = 1
	}
	if c.MaxCycles < 0 {
		c.MaxCycles = 0
	}

	weights := []struct {
		name  string
		value float64
	}{
		{"slot_weight", c.SlotWeight},
		{"register_weight", c.RegisterWeight},
		{"frequency_weight", c.FrequencyWeight},
		{"sequential_weight", c.SequentialWeight},
	}
	for _, w := range weights {
		if w.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %g", ErrInvalidConfig, w.name, w.value)
		}
	}
	if c.SlotWeight == 0 && c.RegisterWeight == 0 {
		return fmt.Errorf("%w: slot_weight and register_weight are both zero", ErrInvalidConfig)
	}
	if c.TargetII < 0 {
		return fmt.Errorf("%w: target_ii must not be negative, got %d", ErrInvalidConfig, c.TargetII)
	}
	if c.MaxSequentialDepth < 0 {
		return fmt.Errorf("%w: max_sequential_depth must not be negative, got %d", ErrInvalidConfig, c.MaxSequentialDepth)
	}
	return nil
}

// Binaries returns the solver executable overrides
func (c *Config) Binaries() solver.Binaries {
	return solver.Binaries(c.Solvers)
}

// ParseConfig reads a YAML config on top of DefaultConfig. Unknown keys are
// rejected.
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("buffers: read config: %w", err)
	}
	cfg, err := ParseConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
