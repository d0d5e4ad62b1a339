package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []int{64, 64}, cfg.Training.HiddenLayerSizes)
	assert.Equal(t, 500, cfg.Training.MaxIter)
	assert.EqualValues(t, 42, cfg.Training.Seed)
	assert.Equal(t, 0.2, cfg.Training.TestSize)
	assert.Equal(t, 10, cfg.Explain.NRepeats)
	assert.EqualValues(t, 42, cfg.Explain.Seed)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
log:
  level: debug
  format: json
artifacts:
  dir: /var/lib/pricerange
training:
  max_iter: 200
explain:
  n_repeats: 5
serving:
  cache_size: 16
  watch: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/var/lib/pricerange", cfg.Artifacts.Dir)
	assert.Equal(t, 200, cfg.Training.MaxIter)
	assert.Equal(t, []int{64, 64}, cfg.Training.HiddenLayerSizes)
	assert.Equal(t, 5, cfg.Explain.NRepeats)
	assert.Equal(t, 16, cfg.Serving.CacheSize)
	assert.True(t, cfg.Serving.Watch)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"test size zero", func(c *Config) { c.Training.TestSize = 0 }},
		{"test size one", func(c *Config) { c.Training.TestSize = 1 }},
		{"no hidden layers", func(c *Config) { c.Training.HiddenLayerSizes = nil }},
		{"negative layer", func(c *Config) { c.Training.HiddenLayerSizes = []int{64, -1} }},
		{"max iter", func(c *Config) { c.Training.MaxIter = 0 }},
		{"min accuracy", func(c *Config) { c.Training.MinAccuracy = 1.5 }},
		{"repeats", func(c *Config) { c.Explain.NRepeats = 0 }},
		{"artifact dir", func(c *Config) { c.Artifacts.Dir = "" }},
		{"keep", func(c *Config) { c.Artifacts.Keep = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
