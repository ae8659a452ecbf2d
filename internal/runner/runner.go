// Package runner drives one invocation of the pipeline: viewer, debug
// report, batch prediction or the train/evaluate loop.
package runner

import (
	"context"
	"io"
	"os"

	"github.com/Brownie44l1/fashionai/internal/config"
	"github.com/Brownie44l1/fashionai/internal/dataset"
	"github.com/Brownie44l1/fashionai/internal/model"
	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
	"github.com/Brownie44l1/fashionai/internal/pkg/logger"
	"github.com/Brownie44l1/fashionai/internal/record"
)

// Runner owns the dataset and classifier for a run.
type Runner struct {
	cfg    *config.Config
	ds     *dataset.Dataset
	clf    model.Classifier
	parser *record.Parser
	log    *logger.Logger
	out    io.Writer
}

// New creates a runner. clf may be nil for display and debug runs.
func New(cfg *config.Config, ds *dataset.Dataset, clf model.Classifier, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Default()
	}
	parser := record.NewParser(ds.NumClasses(),
		record.WithIDs(true),
		record.WithParallelism(cfg.Train.NumParallelCalls),
	)
	return &Runner{
		cfg:    cfg,
		ds:     ds,
		clf:    clf,
		parser: parser,
		log:    log.WithComponent("runner"),
		out:    os.Stdout,
	}
}

// SetOutput redirects the debug report.
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// Run picks the mode from the configuration: display serves the viewer,
// debug prints the dataset report, predict writes predictions, and anything
// else trains.
func (r *Runner) Run(ctx context.Context) error {
	switch {
	case r.cfg.Display:
		return r.Serve(ctx)
	case r.cfg.Debug:
		return r.Debug(ctx)
	case r.cfg.Predict:
		_, err := r.Predict(ctx)
		return err
	default:
		_, err := r.Train(ctx)
		return err
	}
}

func (r *Runner) requireModel() error {
	if r.clf == nil {
		return apperrors.UnsupportedError("this mode needs a loaded model")
	}
	return nil
}
