package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
	"github.com/Brownie44l1/fashionai/internal/preprocess"
)

// ONNXClassifier runs an exported classification graph through onnxruntime.
// It serves Predict and Evaluate; training needs a framework backend.
type ONNXClassifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

var _ Classifier = (*ONNXClassifier)(nil)

// LoadMetadata reads and checks a model metadata file.
func LoadMetadata(path string) (Metadata, error) {
	var metadata Metadata

	metaFile, err := os.ReadFile(path)
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := metadata.validate(); err != nil {
		return metadata, err
	}
	return metadata, nil
}

func (m *Metadata) validate() error {
	if len(m.InputShape) != 4 {
		return apperrors.ValidationError(fmt.Sprintf("input_shape must have 4 dims, got %v", m.InputShape))
	}
	if len(m.OutputShape) != 2 || m.OutputShape[0] != m.InputShape[0] {
		return apperrors.ValidationError(fmt.Sprintf("output_shape must be [batch, classes], got %v", m.OutputShape))
	}
	if m.InputShape[0] < 1 {
		return apperrors.ValidationError("input batch dimension must be fixed and positive")
	}
	if m.Layout == "" {
		if m.InputShape[1] == preprocess.Channels {
			m.Layout = "NCHW"
		} else {
			m.Layout = "NHWC"
		}
	}
	m.Layout = strings.ToUpper(m.Layout)
	if m.Layout != "NCHW" && m.Layout != "NHWC" {
		return apperrors.ValidationError("layout must be NHWC or NCHW")
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if len(m.Classes) > 0 && int64(len(m.Classes)) != m.OutputShape[1] {
		return apperrors.ValidationError("classes must match output_shape")
	}
	return nil
}

// BatchSize is the fixed number of images per session run.
func (m Metadata) BatchSize() int {
	return int(m.InputShape[0])
}

// NumClasses is the width of each output row.
func (m Metadata) NumClasses() int {
	return int(m.OutputShape[1])
}

// imageElems is the number of floats per image.
func (m Metadata) imageElems() int {
	n := 1
	for _, d := range m.InputShape[1:] {
		n *= int(d)
	}
	return n
}

// ClassName returns the label name for idx, or its index when the metadata
// carries no names.
func (m Metadata) ClassName(idx int) string {
	if idx >= 0 && idx < len(m.Classes) {
		return m.Classes[idx]
	}
	return fmt.Sprintf("%d", idx)
}

// NewONNXClassifier initializes onnxruntime and opens a session on modelPath.
// libraryPath may be empty to use the runtime's default search.
func NewONNXClassifier(modelPath, metadataPath, libraryPath string) (*ONNXClassifier, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, apperrors.MLError("failed to initialize ONNX environment", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, apperrors.MLError("failed to create input tensor", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, apperrors.MLError("failed to create output tensor", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, apperrors.MLError("failed to create ONNX session", err)
	}

	return &ONNXClassifier{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Predict runs images through the graph in chunks of the fixed batch size.
func (c *ONNXClassifier) Predict(ctx context.Context, images []preprocess.Tensor) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bs := c.Metadata.BatchSize()
	out := make([][]float32, 0, len(images))

	for start := 0; start < len(images); start += bs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + bs
		if end > len(images) {
			end = len(images)
		}

		if err := packInput(c.inputTensor.GetData(), images[start:end], c.Metadata); err != nil {
			return nil, err
		}
		if err := c.session.Run(); err != nil {
			return nil, apperrors.MLError("inference failed", err)
		}

		rows := unpackOutput(c.outputTensor.GetData(), end-start, c.Metadata)
		out = append(out, rows...)
	}
	return out, nil
}

// Evaluate predicts batch and scores it against the one-hot labels.
func (c *ONNXClassifier) Evaluate(ctx context.Context, batch Batch) (Metrics, error) {
	probs, err := c.Predict(ctx, batch.Images)
	if err != nil {
		return Metrics{}, err
	}
	return Score(probs, batch.Labels)
}

// Train is not available on an exported inference graph.
func (c *ONNXClassifier) Train(ctx context.Context, batch Batch, step Step) (Metrics, error) {
	return Metrics{}, apperrors.UnsupportedError("the ONNX backend is inference-only; train with a framework backend")
}

// Close releases the session, its tensors and the runtime environment.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
		c.inputTensor = nil
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
		c.outputTensor = nil
	}
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	return ort.DestroyEnvironment()
}

// packInput writes images into dst in the model's layout and zero-fills
// unused batch slots.
func packInput(dst []float32, images []preprocess.Tensor, meta Metadata) error {
	per := meta.imageElems()
	for i, img := range images {
		if len(img.Data) != per {
			return apperrors.ValidationError(fmt.Sprintf("image has %d values, model expects %d", len(img.Data), per))
		}
		src := img.Data
		if meta.Layout == "NCHW" {
			src = img.CHW()
		}
		copy(dst[i*per:(i+1)*per], src)
	}
	for i := len(images) * per; i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}

// unpackOutput copies the first n rows of the output tensor, applying a
// softmax when the graph emits logits.
func unpackOutput(src []float32, n int, meta Metadata) [][]float32 {
	classes := meta.NumClasses()
	rows := make([][]float32, n)
	for i := range rows {
		row := make([]float32, classes)
		copy(row, src[i*classes:(i+1)*classes])
		if meta.Softmax {
			row = Softmax(row)
		}
		rows[i] = row
	}
	return rows
}

// ClassNames returns the label names recorded in the model metadata.
func (c *ONNXClassifier) ClassNames() []string {
	return c.Metadata.Classes
}
