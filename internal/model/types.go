package model

import (
	"context"

	"github.com/Brownie44l1/fashionai/internal/preprocess"
)

// Classifier is the narrow surface the pipeline needs from a model runtime.
type Classifier interface {
	// Train runs one optimization step over batch.
	Train(ctx context.Context, batch Batch, step Step) (Metrics, error)
	// Evaluate scores batch without updating the model.
	Evaluate(ctx context.Context, batch Batch) (Metrics, error)
	// Predict returns one probability vector per image.
	Predict(ctx context.Context, images []preprocess.Tensor) ([][]float32, error)
	Close() error
}

// Metadata describes an exported model graph.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	// Layout is NHWC or NCHW. Empty infers it from InputShape.
	Layout string `json:"layout,omitempty"`
	// Softmax is set when the graph emits logits rather than probabilities.
	Softmax    bool   `json:"softmax,omitempty"`
	InputName  string `json:"input_name,omitempty"`
	OutputName string `json:"output_name,omitempty"`
}

// Batch is a set of images with their one-hot targets.
type Batch struct {
	Images []preprocess.Tensor
	Labels [][]float32
}

// Step carries the optimizer settings for one training step.
type Step struct {
	Global       int64
	LearningRate float64
	Optimizer    Optimizer
}

// Metrics summarizes a train or eval pass.
type Metrics struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
	Examples int     `json:"examples"`
}

// Merge folds o into m, weighting by example count.
func (m *Metrics) Merge(o Metrics) {
	total := m.Examples + o.Examples
	if total == 0 {
		return
	}
	m.Loss = (m.Loss*float64(m.Examples) + o.Loss*float64(o.Examples)) / float64(total)
	m.Accuracy = (m.Accuracy*float64(m.Examples) + o.Accuracy*float64(o.Examples)) / float64(total)
	m.Examples = total
}

// PredictionRequest carries an already preprocessed 224x224x3 HWC tensor.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}

// PredictionResponse is the single-image prediction returned by the viewer.
type PredictionResponse struct {
	Class       string             `json:"class"`
	Index       int                `json:"index"`
	Confidence  float64            `json:"confidence"`
	Predictions map[string]float64 `json:"predictions"`
}
