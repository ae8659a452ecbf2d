// Package main provides the fashionai binary: train, evaluate, predict or
// browse a FashionAI attribute classifier.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/fashionai/internal/config"
	"github.com/Brownie44l1/fashionai/internal/dataset"
	"github.com/Brownie44l1/fashionai/internal/model"
	"github.com/Brownie44l1/fashionai/internal/pkg/logger"
	"github.com/Brownie44l1/fashionai/internal/runner"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "fashionai",
		Short: "FashionAI clothing attribute classifier",
		Long: `fashionai trains, evaluates and serves a classifier for one FashionAI
clothing attribute.

Examples:
  fashionai --attr-key skirt_length_labels               # train
  fashionai --predict --predict-output-dir ./out         # predict the question set
  fashionai --predict --predict-input-file dress.jpg     # predict one image
  fashionai --display --addr :8080                       # dataset viewer
  fashionai --debug --debug-dump-dir /tmp/fashionai      # dataset report`,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = loadConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	f := rootCmd.Flags()
	def := config.Default()
	f.StringP("config", "c", "", "config file path")
	f.String("data-dir", def.DataDir, "FashionAI data directory")
	f.String("model-dir", def.ModelDir, "directory holding model.onnx and model_metadata.json")
	f.StringP("attr-key", "k", def.AttrKey, "attribute to classify")
	f.String("onnx-library", "", "onnxruntime shared library path")
	f.Bool("debug", false, "print a dataset report instead of training")
	f.String("debug-dump-dir", "", "write preprocessing stages of a few samples here")
	f.Bool("display", false, "serve the dataset viewer")
	f.Bool("predict", false, "predict instead of training")
	f.String("predict-input-file", "", "predict a single image instead of the question set")
	f.String("predict-output-dir", "", "write output.csv here")
	f.Int("batch-size", def.Train.BatchSize, "images per batch")
	f.Int("train-epochs", def.Train.Epochs, "number of training epochs")
	f.Int("epochs-between-evals", def.Train.EpochsBetweenEvals, "epochs between evaluations")
	f.Int("num-parallel-calls", def.Train.NumParallelCalls, "images decoded in parallel")
	f.String("addr", def.Viewer.Addr, "viewer listen address")
	f.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	f.String("log-format", def.Log.Format, "log format (text, json)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fashionai %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		},
	})

	return rootCmd
}

// loadConfig merges file, environment and explicitly set flags, then
// validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	stringFlags := map[string]*string{
		"data-dir":           &cfg.DataDir,
		"model-dir":          &cfg.ModelDir,
		"attr-key":           &cfg.AttrKey,
		"onnx-library":       &cfg.ONNXLibrary,
		"debug-dump-dir":     &cfg.DebugDumpDir,
		"predict-input-file": &cfg.PredictInputFile,
		"predict-output-dir": &cfg.PredictOutputDir,
		"addr":               &cfg.Viewer.Addr,
		"log-level":          &cfg.Log.Level,
		"log-format":         &cfg.Log.Format,
	}
	for name, dst := range stringFlags {
		if f.Changed(name) {
			v, err := f.GetString(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	boolFlags := map[string]*bool{
		"debug":   &cfg.Debug,
		"display": &cfg.Display,
		"predict": &cfg.Predict,
	}
	for name, dst := range boolFlags {
		if f.Changed(name) {
			v, err := f.GetBool(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	intFlags := map[string]*int{
		"batch-size":           &cfg.Train.BatchSize,
		"train-epochs":         &cfg.Train.Epochs,
		"epochs-between-evals": &cfg.Train.EpochsBetweenEvals,
		"num-parallel-calls":   &cfg.Train.NumParallelCalls,
	}
	for name, dst := range intFlags {
		if f.Changed(name) {
			v, err := f.GetInt(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("Starting fashionai",
		"version", version,
		"attr_key", cfg.AttrKey,
		"data_dir", cfg.ExpandedDataDir(),
	)

	ds, err := dataset.Open(dataset.Options{
		DataDir:          cfg.ExpandedDataDir(),
		AttrKey:          cfg.AttrKey,
		PredictInputFile: cfg.PredictInputFile,
		Seed:             cfg.Train.Seed,
		TrainFraction:    cfg.Train.TrainFraction,
		Logger:           log,
	})
	if err != nil {
		log.WithError(err).Error("Failed to load dataset")
		return err
	}

	clf, err := openClassifier(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize model")
		return err
	}
	if clf != nil {
		defer clf.Close()
	}

	if err := runner.New(cfg, ds, clf, log).Run(ctx); err != nil {
		log.WithError(err).Error("Run failed")
		return err
	}
	return nil
}

// openClassifier loads the exported model. Debug runs never need it and the
// viewer runs without one when none has been exported yet.
func openClassifier(cfg *config.Config, log *logger.Logger) (model.Classifier, error) {
	if cfg.Debug && !cfg.Display {
		return nil, nil
	}
	if _, err := os.Stat(cfg.ModelFile()); err != nil && cfg.Display {
		log.Warn("No model found, viewer predictions disabled", "model", cfg.ModelFile())
		return nil, nil
	}

	log.Info("Loading model", "model", cfg.ModelFile())
	clf, err := model.NewONNXClassifier(cfg.ModelFile(), cfg.MetadataFile(), cfg.ONNXLibrary)
	if err != nil {
		return nil, err
	}
	log.Info("Model loaded", "classes", clf.Metadata.Classes, "batch", clf.Metadata.BatchSize())
	return clf, nil
}
