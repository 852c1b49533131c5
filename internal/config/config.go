package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config aggregates the training hyper-parameters and logging settings
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig holds the Splitter hyper-parameters
type ModelConfig struct {
	Seed            int64   `yaml:"seed"`
	WalksPerNode    int     `yaml:"walks_per_node"`
	WalkLength      int     `yaml:"walk_length"`
	WindowSize      int     `yaml:"window_size"`
	NegativeSamples int     `yaml:"negative_samples"`
	NegativePolicy  string  `yaml:"negative_policy"` // degree|uniform
	Lambda          float64 `yaml:"lambda"`
	Dimensions      int     `yaml:"dimensions"`
	Workers         int     `yaml:"workers"`
	LearningRate    float64 `yaml:"learning_rate"`
	P               float64 `yaml:"p"`
	Q               float64 `yaml:"q"`
	Epochs          int     `yaml:"epochs"`
	BaseIterations  int     `yaml:"base_iterations"`
	NumericBound    float64 `yaml:"numeric_bound"`
}

// LoggingConfig controls structured logging settings
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"` // text|json
	IncludeCaller bool   `yaml:"include_caller"`
}

const (
	defaultSeed            = 42
	defaultWalksPerNode    = 10
	defaultWalkLength      = 80
	defaultWindowSize      = 5
	defaultNegativeSamples = 5
	defaultNegativePolicy  = "degree"
	defaultLambda          = 0.1
	defaultDimensions      = 128
	defaultWorkers         = 1
	defaultLearningRate    = 0.025
	defaultEpochs          = 1
	defaultBaseIterations  = 1
	defaultNumericBound    = 1e3
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
)

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Model: ModelConfig{
			Seed:            defaultSeed,
			WalksPerNode:    defaultWalksPerNode,
			WalkLength:      defaultWalkLength,
			WindowSize:      defaultWindowSize,
			NegativeSamples: defaultNegativeSamples,
			NegativePolicy:  defaultNegativePolicy,
			Lambda:          defaultLambda,
			Dimensions:      defaultDimensions,
			Workers:         defaultWorkers,
			LearningRate:    defaultLearningRate,
			P:               1.0,
			Q:               1.0,
			Epochs:          defaultEpochs,
			BaseIterations:  defaultBaseIterations,
			NumericBound:    defaultNumericBound,
		},
		Logging: LoggingConfig{
			Level:  defaultLoggingLevel,
			Format: defaultLoggingFormat,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// ErrInvalidParam is wrapped by every ConfigurationError
var ErrInvalidParam = errors.New("invalid parameter")

// ConfigurationError names the parameter that failed validation
type ConfigurationError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s=%v: %s", e.Param, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidParam
}

// Validate applies the positivity constraints. There is no cross-field validation.
func (c ModelConfig) Validate() error {
	switch {
	case c.Dimensions < 1:
		return &ConfigurationError{"dimensions", c.Dimensions, "must be at least 1"}
	case c.WalkLength < 1:
		return &ConfigurationError{"walk_length", c.WalkLength, "must be at least 1"}
	case c.WindowSize < 1:
		return &ConfigurationError{"window_size", c.WindowSize, "must be at least 1"}
	case c.WalksPerNode < 1:
		return &ConfigurationError{"walks_per_node", c.WalksPerNode, "must be at least 1"}
	case c.NegativeSamples < 0:
		return &ConfigurationError{"negative_samples", c.NegativeSamples, "must not be negative"}
	case c.NegativePolicy != "degree" && c.NegativePolicy != "uniform":
		return &ConfigurationError{"negative_policy", c.NegativePolicy, "must be degree or uniform"}
	case c.Lambda < 0:
		return &ConfigurationError{"lambda", c.Lambda, "must not be negative"}
	case c.Workers < 1:
		return &ConfigurationError{"workers", c.Workers, "must be at least 1"}
	case c.LearningRate <= 0:
		return &ConfigurationError{"learning_rate", c.LearningRate, "must be positive"}
	case c.P <= 0:
		return &ConfigurationError{"p", c.P, "must be positive"}
	case c.Q <= 0:
		return &ConfigurationError{"q", c.Q, "must be positive"}
	case c.Epochs < 1:
		return &ConfigurationError{"epochs", c.Epochs, "must be at least 1"}
	case c.BaseIterations < 0:
		return &ConfigurationError{"base_iterations", c.BaseIterations, "must not be negative"}
	case c.NumericBound <= 0:
		return &ConfigurationError{"numeric_bound", c.NumericBound, "must be positive"}
	}
	return nil
}

// Validate checks the whole configuration
func (c Config) Validate() error {
	return c.Model.Validate()
}
