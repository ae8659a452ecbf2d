package runner

import (
	"context"
	"time"

	"github.com/Brownie44l1/fashionai/internal/dataset"
	"github.com/Brownie44l1/fashionai/internal/model"
	"github.com/Brownie44l1/fashionai/internal/preprocess"
	"github.com/Brownie44l1/fashionai/internal/record"
)

// seedStride separates the per-batch preprocessing seeds of successive epochs.
const seedStride = 1 << 32

// Train runs Epochs passes over the reshuffled train split and evaluates on
// the test split every EpochsBetweenEvals epochs and after the last one.
// It returns the last evaluation.
func (r *Runner) Train(ctx context.Context) (model.Metrics, error) {
	if err := r.requireModel(); err != nil {
		return model.Metrics{}, err
	}

	tc := r.cfg.Train
	train := r.ds.Train()
	schedule := model.PiecewiseSchedule(tc.BatchSize, train.Len())
	opt := model.MomentumOptimizer(tc.Momentum, tc.WeightDecay)

	r.log.Info("training",
		"attr_key", r.cfg.AttrKey,
		"train", train.Len(),
		"test", r.ds.Test().Len(),
		"num_classes", r.ds.NumClasses(),
		"batch_size", tc.BatchSize,
		"epochs", tc.Epochs,
		"initial_lr", schedule.LearningRate(0),
	)

	var (
		step int64
		last model.Metrics
	)
	for epoch := 0; epoch < tc.Epochs; epoch++ {
		start := time.Now()
		samples := train.Shuffled(tc.Seed + int64(epoch))

		var epochMetrics model.Metrics
		for from := 0; from < len(samples); from += tc.BatchSize {
			to := min(from+tc.BatchSize, len(samples))

			seed := tc.Seed + int64(epoch)*seedStride + int64(from)
			batch, err := r.batch(ctx, dataset.ModeTrain, samples[from:to], seed)
			if err != nil {
				return last, err
			}

			m, err := r.clf.Train(ctx, batch, model.Step{
				Global:       step,
				LearningRate: schedule.LearningRate(step),
				Optimizer:    opt,
			})
			if err != nil {
				return last, err
			}
			epochMetrics.Merge(m)
			step++
		}

		r.log.Info("epoch done",
			"epoch", epoch+1,
			"step", step,
			"loss", epochMetrics.Loss,
			"accuracy", epochMetrics.Accuracy,
			"lr", schedule.LearningRate(step),
			"took", time.Since(start).Round(time.Millisecond),
		)

		if (epoch+1)%tc.EpochsBetweenEvals == 0 || epoch == tc.Epochs-1 {
			m, err := r.Evaluate(ctx)
			if err != nil {
				return last, err
			}
			last = m
		}
	}
	return last, nil
}

// Evaluate scores the classifier on the test split with centered crops.
func (r *Runner) Evaluate(ctx context.Context) (model.Metrics, error) {
	if err := r.requireModel(); err != nil {
		return model.Metrics{}, err
	}

	samples := r.ds.Test().Samples
	bs := r.cfg.Train.BatchSize

	var total model.Metrics
	for from := 0; from < len(samples); from += bs {
		to := min(from+bs, len(samples))
		batch, err := r.batch(ctx, dataset.ModeEval, samples[from:to], 0)
		if err != nil {
			return total, err
		}
		m, err := r.clf.Evaluate(ctx, batch)
		if err != nil {
			return total, err
		}
		total.Merge(m)
	}

	r.log.Info("evaluation",
		"examples", total.Examples,
		"loss", total.Loss,
		"accuracy", total.Accuracy,
	)
	return total, nil
}

func (r *Runner) batch(ctx context.Context, mode dataset.Mode, samples []dataset.Sample, seed int64) (model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return model.Batch{}, err
	}
	exs, err := r.parser.ParseBatch(ctx, mode, samples, seed)
	if err != nil {
		return model.Batch{}, err
	}
	return toBatch(exs), nil
}

func toBatch(exs []*record.Example) model.Batch {
	b := model.Batch{
		Images: make([]preprocess.Tensor, 0, len(exs)),
		Labels: make([][]float32, 0, len(exs)),
	}
	for _, ex := range exs {
		b.Images = append(b.Images, ex.Images[0])
		b.Labels = append(b.Labels, ex.Label)
	}
	return b
}
