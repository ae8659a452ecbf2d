package runner

import (
	"context"
	"fmt"

	"github.com/Brownie44l1/fashionai/internal/predict"
)

// Predict runs the ten-crop pipeline over the predict split and, when an
// output directory is configured, writes one CSV row per image.
func (r *Runner) Predict(ctx context.Context) (n int, err error) {
	if err := r.requireModel(); err != nil {
		return 0, err
	}

	split, err := r.ds.Predict()
	if err != nil {
		return 0, err
	}

	var sink predict.Sink
	if path := r.cfg.PredictOutputFile(); path != "" {
		w, cerr := predict.Create(path)
		if cerr != nil {
			return 0, cerr
		}
		defer func() {
			if cerr := w.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing %s: %w", path, cerr)
			}
		}()
		sink = w
		r.log.Info("writing predictions", "file", path)
	}

	agg := predict.NewAggregator(r.clf, r.parser, r.log)
	n, err = agg.Run(ctx, split.Samples, sink)
	r.log.Info("prediction finished", "images", n, "of", split.Len())
	return n, err
}
