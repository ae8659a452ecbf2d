package predict

import (
	"context"
	"fmt"

	"github.com/Brownie44l1/fashionai/internal/dataset"
	"github.com/Brownie44l1/fashionai/internal/pkg/logger"
	"github.com/Brownie44l1/fashionai/internal/preprocess"
	"github.com/Brownie44l1/fashionai/internal/record"
)

// Predictor maps image tensors to one probability vector each.
type Predictor interface {
	Predict(ctx context.Context, images []preprocess.Tensor) ([][]float32, error)
}

// Sink receives aggregated records.
type Sink interface {
	Write(rec Record) error
}

// Aggregator runs the CropSet prediction pipeline.
type Aggregator struct {
	pred   Predictor
	parser *record.Parser
	log    *logger.Logger
}

// NewAggregator creates an aggregator over pred.
func NewAggregator(pred Predictor, parser *record.Parser, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.Default()
	}
	return &Aggregator{pred: pred, parser: parser, log: log.WithComponent("predict")}
}

// PredictSample parses smp into its CropSet and averages the predictions.
func (a *Aggregator) PredictSample(ctx context.Context, smp dataset.Sample) (Record, error) {
	ex, err := a.parser.Parse(ctx, dataset.ModePredict, smp, nil)
	if err != nil {
		return Record{}, err
	}
	return a.aggregate(ctx, smp, ex.Images)
}

// PredictImage runs the pipeline on encoded image bytes that are not part of
// any split.
func (a *Aggregator) PredictImage(ctx context.Context, raw []byte) (Record, error) {
	crops, err := preprocess.Preprocess(raw, dataset.ModePredict, nil)
	if err != nil {
		return Record{}, err
	}
	return a.aggregate(ctx, dataset.Sample{ID: -1, Label: -1}, crops)
}

func (a *Aggregator) aggregate(ctx context.Context, smp dataset.Sample, crops []preprocess.Tensor) (Record, error) {
	outputs, err := a.pred.Predict(ctx, crops)
	if err != nil {
		return Record{}, fmt.Errorf("predicting %s: %w", smp.Image, err)
	}
	mean, class, err := Aggregate(outputs)
	if err != nil {
		return Record{}, fmt.Errorf("aggregating %s: %w", smp.Image, err)
	}
	return Record{
		SampleID:      smp.ID,
		Image:         smp.Image,
		Key:           smp.Key,
		Probabilities: mean,
		Predicted:     class,
	}, nil
}

// Run predicts every sample in order and hands each record to sink. It
// stops at the first failure or when ctx is cancelled; records already
// written stay written.
func (a *Aggregator) Run(ctx context.Context, samples []dataset.Sample, sink Sink) (int, error) {
	done := 0
	for _, smp := range samples {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		rec, err := a.PredictSample(ctx, smp)
		if err != nil {
			return done, err
		}

		a.log.Info("prediction",
			"id", rec.SampleID,
			"image", rec.Image,
			"class", rec.Predicted,
			"probs", FormatProbabilities(rec.Probabilities),
		)

		if sink != nil {
			if err := sink.Write(rec); err != nil {
				return done, err
			}
		}
		done++
	}
	return done, nil
}
