package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FASHIONAI_BATCH_SIZE", "64")
	t.Setenv("FASHIONAI_ATTR_KEY", "collar_design_labels")
	t.Setenv("FASHIONAI_LOG_LEVEL", "debug")
	t.Setenv("FASHIONAI_TRUST_PROXY", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Viewer.TrustProxy)

	assert.Equal(t, 64, cfg.Train.BatchSize)
	assert.Equal(t, "collar_design_labels", cfg.AttrKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30, cfg.Train.Epochs)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
data_dir: /srv/fashionAI
attr_key: pant_length_labels
train:
  batch_size: 16
  epochs: 5
viewer:
  addr: "127.0.0.1:9000"
log:
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/srv/fashionAI", cfg.DataDir)
	assert.Equal(t, "pant_length_labels", cfg.AttrKey)
	assert.Equal(t, 16, cfg.Train.BatchSize)
	assert.Equal(t, 5, cfg.Train.Epochs)
	assert.Equal(t, "127.0.0.1:9000", cfg.Viewer.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	// untouched fields keep defaults
	assert.Equal(t, 0.9, cfg.Train.Momentum)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Viewer.TrustProxy)
}

func TestEnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("train:\n  batch_size: 16\n"), 0644))
	t.Setenv("FASHIONAI_BATCH_SIZE", "8")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Train.BatchSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown attr key", func(c *Config) { c.AttrKey = "hat_color_labels" }, true},
		{"zero batch", func(c *Config) { c.Train.BatchSize = 0 }, true},
		{"zero evals interval", func(c *Config) { c.Train.EpochsBetweenEvals = 0 }, true},
		{"fraction one", func(c *Config) { c.Train.TrainFraction = 1 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, true},
		{"negative rate", func(c *Config) { c.Viewer.RateLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidAttrKey(t *testing.T) {
	for _, k := range AttrKeys {
		assert.True(t, ValidAttrKey(k), k)
	}
	assert.False(t, ValidAttrKey(""))
	assert.False(t, ValidAttrKey("skirt_length"))
}

func TestPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := Default()
	assert.Equal(t, filepath.Join(home, "data/vision/fashionAI"), cfg.ExpandedDataDir())

	assert.Equal(t, "", cfg.PredictOutputFile())
	cfg.PredictOutputDir = "/tmp/out"
	assert.Equal(t, "/tmp/out/output.csv", cfg.PredictOutputFile())
}
