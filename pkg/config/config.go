// Package config loads the YAML configuration shared by the training and
// prediction entry points.
package config

import (
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
)

// Config is the root of the YAML document.
type Config struct {
	Log       Log       `yaml:"log"`
	Artifacts Artifacts `yaml:"artifacts"`
	Training  Training  `yaml:"training"`
	Explain   Explain   `yaml:"explain"`
	Serving   Serving   `yaml:"serving"`
}

type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Options converts the section into log.Setup options.
func (l Log) Options() log.Options {
	return log.Options{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

type Artifacts struct {
	Dir string `yaml:"dir"`
	// Keep is the number of committed generations retained on disk.
	Keep int `yaml:"keep"`
}

type Training struct {
	Dataset          string  `yaml:"dataset"`
	TestSize         float64 `yaml:"test_size"`
	Seed             uint64  `yaml:"seed"`
	HiddenLayerSizes []int   `yaml:"hidden_layer_sizes"`
	MaxIter          int     `yaml:"max_iter"`
	MinAccuracy      float64 `yaml:"min_accuracy"`
}

type Explain struct {
	NRepeats int    `yaml:"n_repeats"`
	Seed     uint64 `yaml:"seed"`
	// Workers bounds the number of features evaluated concurrently.
	Workers int `yaml:"workers"`
}

type Serving struct {
	CacheSize int  `yaml:"cache_size"`
	Watch     bool `yaml:"watch"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Artifacts: Artifacts{Dir: "artifacts", Keep: 3},
		Training: Training{
			TestSize:         0.2,
			Seed:             42,
			HiddenLayerSizes: []int{64, 64},
			MaxIter:          500,
			MinAccuracy:      0.80,
		},
		Explain: Explain{
			NRepeats: 10,
			Seed:     42,
			Workers:  runtime.GOMAXPROCS(0),
		},
		Serving: Serving{CacheSize: 1024},
	}
}

// Load reads a YAML file on top of Default. Keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	t := c.Training
	if t.TestSize <= 0 || t.TestSize >= 1 {
		return errors.NewValidationError("training.test_size", "must be in (0, 1)", t.TestSize)
	}
	if len(t.HiddenLayerSizes) == 0 {
		return errors.NewValidationError("training.hidden_layer_sizes", "at least one hidden layer is required", t.HiddenLayerSizes)
	}
	for _, n := range t.HiddenLayerSizes {
		if n <= 0 {
			return errors.NewValidationError("training.hidden_layer_sizes", "layer sizes must be positive", t.HiddenLayerSizes)
		}
	}
	if t.MaxIter <= 0 {
		return errors.NewValidationError("training.max_iter", "must be positive", t.MaxIter)
	}
	if t.MinAccuracy < 0 || t.MinAccuracy > 1 {
		return errors.NewValidationError("training.min_accuracy", "must be in [0, 1]", t.MinAccuracy)
	}
	if c.Explain.NRepeats <= 0 {
		return errors.NewValidationError("explain.n_repeats", "must be positive", c.Explain.NRepeats)
	}
	if c.Explain.Workers < 0 {
		return errors.NewValidationError("explain.workers", "must not be negative", c.Explain.Workers)
	}
	if c.Artifacts.Dir == "" {
		return errors.NewValidationError("artifacts.dir", "must not be empty", c.Artifacts.Dir)
	}
	if c.Artifacts.Keep < 1 {
		return errors.NewValidationError("artifacts.keep", "must be at least 1", c.Artifacts.Keep)
	}
	if c.Serving.CacheSize < 0 {
		return errors.NewValidationError("serving.cache_size", "must not be negative", c.Serving.CacheSize)
	}
	return nil
}
