// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// AttrKeys are the clothing attributes a model can be trained for.
var AttrKeys = []string{
	"skirt_length_labels",
	"neckline_design_labels",
	"collar_design_labels",
	"sleeve_length_labels",
	"neck_design_labels",
	"coat_length_labels",
	"lapel_design_labels",
	"pant_length_labels",
}

// Config holds all application configuration.
type Config struct {
	DataDir  string `envconfig:"FASHIONAI_DATA_DIR" yaml:"data_dir"`
	ModelDir string `envconfig:"FASHIONAI_MODEL_DIR" yaml:"model_dir"`
	AttrKey  string `envconfig:"FASHIONAI_ATTR_KEY" yaml:"attr_key"`

	// ONNXLibrary is the onnxruntime shared library; empty uses the system default.
	ONNXLibrary string `envconfig:"FASHIONAI_ONNX_LIBRARY" yaml:"onnx_library"`

	// Run modes
	Debug   bool `envconfig:"FASHIONAI_DEBUG" yaml:"debug"`
	Display bool `envconfig:"FASHIONAI_DISPLAY" yaml:"display"`
	Predict bool `envconfig:"FASHIONAI_PREDICT" yaml:"predict"`

	// Debug dumps raw/resized/cropped images here when set.
	DebugDumpDir string `envconfig:"FASHIONAI_DEBUG_DUMP_DIR" yaml:"debug_dump_dir"`

	PredictInputFile string `envconfig:"FASHIONAI_PREDICT_INPUT_FILE" yaml:"predict_input_file"`
	PredictOutputDir string `envconfig:"FASHIONAI_PREDICT_OUTPUT_DIR" yaml:"predict_output_dir"`

	Train TrainConfig `yaml:"train"`

	Viewer ViewerConfig `yaml:"viewer"`

	Log LogConfig `yaml:"log"`
}

// TrainConfig holds the training loop hyperparameters.
type TrainConfig struct {
	BatchSize          int     `envconfig:"FASHIONAI_BATCH_SIZE" yaml:"batch_size"`
	Epochs             int     `envconfig:"FASHIONAI_TRAIN_EPOCHS" yaml:"epochs"`
	EpochsBetweenEvals int     `envconfig:"FASHIONAI_EPOCHS_BETWEEN_EVALS" yaml:"epochs_between_evals"`
	NumParallelCalls   int     `envconfig:"FASHIONAI_NUM_PARALLEL_CALLS" yaml:"num_parallel_calls"`
	Seed               int64   `envconfig:"FASHIONAI_SEED" yaml:"seed"`
	TrainFraction      float64 `envconfig:"FASHIONAI_TRAIN_FRACTION" yaml:"train_fraction"`
	Momentum           float64 `envconfig:"FASHIONAI_MOMENTUM" yaml:"momentum"`
	WeightDecay        float64 `envconfig:"FASHIONAI_WEIGHT_DECAY" yaml:"weight_decay"`
}

// ViewerConfig holds the dataset viewer settings.
type ViewerConfig struct {
	Addr        string  `envconfig:"FASHIONAI_ADDR" yaml:"addr"`
	CacheSize   int     `envconfig:"FASHIONAI_VIEWER_CACHE_SIZE" yaml:"cache_size"`
	RateLimit   float64 `envconfig:"FASHIONAI_VIEWER_RATE_LIMIT" yaml:"rate_limit"` // predictions/sec per client, 0 = disabled
	CORSOrigins string  `envconfig:"FASHIONAI_CORS_ORIGINS" yaml:"cors_origins"`
	// TrustProxy keys rate limits on X-Forwarded-For / X-Real-IP. Enable it
	// only behind a reverse proxy that overwrites those headers.
	TrustProxy bool `envconfig:"FASHIONAI_TRUST_PROXY" yaml:"trust_proxy"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"FASHIONAI_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"FASHIONAI_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from defaults, an optional YAML file and the
// environment, in increasing priority. It does not validate: flags may
// still override fields, so callers run Validate once everything is merged.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:  "~/data/vision/fashionAI",
		ModelDir: "./models/vgg/test",
		AttrKey:  "skirt_length_labels",
		Train: TrainConfig{
			BatchSize:          32,
			Epochs:             30,
			EpochsBetweenEvals: 1,
			NumParallelCalls:   4,
			Seed:               1,
			TrainFraction:      0.9,
			Momentum:           0.9,
			WeightDecay:        1e-4,
		},
		Viewer: ViewerConfig{
			Addr:        ":8080",
			CacheSize:   64,
			RateLimit:   5,
			CORSOrigins: "*",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ValidAttrKey reports whether key is one of AttrKeys.
func ValidAttrKey(key string) bool {
	for _, k := range AttrKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if !ValidAttrKey(c.AttrKey) {
		errs = append(errs, fmt.Sprintf("invalid attr_key: %q (must be one of %s)", c.AttrKey, strings.Join(AttrKeys, ", ")))
	}

	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}

	if c.Train.BatchSize < 1 {
		errs = append(errs, "batch_size must be positive")
	}

	if c.Train.Epochs < 0 {
		errs = append(errs, "train epochs must not be negative")
	}

	if c.Train.EpochsBetweenEvals < 1 {
		errs = append(errs, "epochs_between_evals must be positive")
	}

	if c.Train.NumParallelCalls < 1 {
		errs = append(errs, "num_parallel_calls must be positive")
	}

	if c.Train.TrainFraction <= 0 || c.Train.TrainFraction >= 1 {
		errs = append(errs, "train_fraction must be between 0 and 1")
	}

	if c.Viewer.CacheSize < 1 {
		errs = append(errs, "viewer cache_size must be positive")
	}

	if c.Viewer.RateLimit < 0 {
		errs = append(errs, "viewer rate_limit must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ExpandedDataDir returns DataDir with a leading ~ replaced by the home directory.
func (c *Config) ExpandedDataDir() string {
	return expandHome(c.DataDir)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ModelFile returns the exported ONNX graph path.
func (c *Config) ModelFile() string {
	return filepath.Join(expandHome(c.ModelDir), "model.onnx")
}

// MetadataFile returns the model metadata JSON path.
func (c *Config) MetadataFile() string {
	return filepath.Join(expandHome(c.ModelDir), "model_metadata.json")
}

// PredictOutputFile returns the prediction CSV path, or "" when no output
// directory is configured.
func (c *Config) PredictOutputFile() string {
	if c.PredictOutputDir == "" {
		return ""
	}
	return filepath.Join(expandHome(c.PredictOutputDir), "output.csv")
}
