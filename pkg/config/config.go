package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for a mohb-go run.
type Config struct {
	// Hyperband budget geometry
	Hyperband HyperbandConfig `yaml:"hyperband" validate:"required"`

	// Multi-objective ranking configuration
	MultiObjective MultiObjectiveConfig `yaml:"multi_objective" validate:"required"`

	// Worker pool configuration
	Workers WorkerConfig `yaml:"workers,omitempty"`

	// Run budget: exactly one of the four criteria must be set
	Run RunConfig `yaml:"run" validate:"required"`

	// Output configuration (persistence, run artifacts)
	Output OutputConfig `yaml:"output,omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty"`

	// Seed for the injectable random source; 0 means time-based
	Seed int64 `yaml:"seed,omitempty"`
}

// HyperbandConfig holds the budget-geometry parameters.
type HyperbandConfig struct {
	// Minimum fidelity at which a configuration is evaluated
	MinBudget float64 `yaml:"min_budget" validate:"required,gt=0"`

	// Maximum fidelity; must be strictly greater than min_budget
	MaxBudget float64 `yaml:"max_budget" validate:"required,gtfield=MinBudget"`

	// Reduction factor between rungs (default 3)
	Eta float64 `yaml:"eta,omitempty" validate:"omitempty,gt=1"`

	// Optional clipping of per-rung candidate counts
	MinClip int `yaml:"min_clip,omitempty" validate:"omitempty,min=1"`
	MaxClip int `yaml:"max_clip,omitempty" validate:"omitempty,min=1"`
}

// MultiObjectiveConfig selects the promotion ranking strategy.
type MultiObjectiveConfig struct {
	// Objective names; every evaluation result must report each of them
	Objectives []string `yaml:"objectives" validate:"required,min=1"`

	// Ranking strategy used for rung promotion
	Strategy string `yaml:"strategy" validate:"required,oneof=eps_net nsga_ii random_weights parego golovin"`

	// Size of the weight-vector pool for the scalarization strategies
	NumWeights int `yaml:"num_weights,omitempty" validate:"omitempty,min=1"`
}

// WorkerConfig describes the evaluation worker pool.
type WorkerConfig struct {
	// Number of parallel workers; 1 means fully synchronous execution
	Count int `yaml:"count,omitempty" validate:"omitempty,min=1"`

	// GPU device ids available on this node; enables GPU-aware scheduling
	// together with single_node_with_gpus on the run options
	GPUDevices []int `yaml:"gpu_devices,omitempty"`
}

// RunConfig bounds the duration of the optimization run.
type RunConfig struct {
	// Number of function evaluations
	Fevals int `yaml:"fevals,omitempty" validate:"omitempty,min=1"`

	// Number of Hyperband brackets
	Brackets int `yaml:"brackets,omitempty" validate:"omitempty,min=1"`

	// Total cost (seconds) reported by the objective function
	TotalCost float64 `yaml:"total_cost,omitempty" validate:"omitempty,gt=0"`

	// Total wallclock time (seconds)
	TotalWallclockCost float64 `yaml:"total_wallclock_cost,omitempty" validate:"omitempty,gt=0"`
}

// OutputConfig controls the persistence collaborator.
type OutputConfig struct {
	// Directory for incumbents, history and log files (default "./")
	Path string `yaml:"path,omitempty"`

	// Write the Pareto front as JSON after every tick
	SaveIntermediate bool `yaml:"save_intermediate,omitempty"`

	// Append the evaluation history to the history store after every tick
	SaveHistory bool `yaml:"save_history,omitempty"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Severity level: DEBUG, INFO, WARN, ERROR, FATAL
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`

	// Also write log lines to a mohb_<run>.log file under the output path
	File bool `yaml:"file,omitempty"`
}

// Load reads and validates a configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset optional fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Hyperband.Eta == 0 {
		c.Hyperband.Eta = 3
	}
	if c.MultiObjective.NumWeights == 0 {
		c.MultiObjective.NumWeights = 100
	}
	if c.Output.Path == "" {
		c.Output.Path = "./"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
}
