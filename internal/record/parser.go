// Package record binds dataset samples to preprocessed image tensors and
// their training targets.
package record

import (
	"context"
	"fmt"
	"math/rand"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/fashionai/internal/dataset"
	"github.com/Brownie44l1/fashionai/internal/preprocess"
)

// Example is one parsed sample.
type Example struct {
	SampleID int
	// Images holds one tensor in train/eval mode and the CropSet in predict mode.
	Images []preprocess.Tensor
	// Label is the one-hot target; nil in predict mode.
	Label []float32
	// ID is the source image path; set in predict mode when the parser was
	// built WithIDs.
	ID string
}

// DebugExample exposes every intermediate image of a parse.
type DebugExample struct {
	Sample dataset.Sample
	Stages *preprocess.Stages
}

// Parser turns samples into examples.
type Parser struct {
	numClasses int
	withIDs    bool
	parallel   int
	readFile   func(string) ([]byte, error)
}

// Option configures a Parser.
type Option func(*Parser)

// WithIDs makes predict-mode examples carry their source image path.
func WithIDs(on bool) Option {
	return func(p *Parser) { p.withIDs = on }
}

// WithParallelism bounds how many samples ParseBatch decodes at once.
func WithParallelism(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.parallel = n
		}
	}
}

// WithReader replaces os.ReadFile as the image source.
func WithReader(fn func(string) ([]byte, error)) Option {
	return func(p *Parser) { p.readFile = fn }
}

// NewParser creates a parser producing one-hot labels of width numClasses.
func NewParser(numClasses int, opts ...Option) *Parser {
	p := &Parser{
		numClasses: numClasses,
		parallel:   1,
		readFile:   os.ReadFile,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NumClasses returns the one-hot width.
func (p *Parser) NumClasses() int {
	return p.numClasses
}

func (p *Parser) read(smp dataset.Sample) ([]byte, error) {
	raw, err := p.readFile(smp.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", smp.ImagePath, err)
	}
	return raw, nil
}

// Parse reads and preprocesses one sample. rng drives the random crop and
// flip in train mode and may be nil otherwise.
func (p *Parser) Parse(ctx context.Context, mode dataset.Mode, smp dataset.Sample, rng *rand.Rand) (*Example, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := p.read(smp)
	if err != nil {
		return nil, err
	}

	images, err := preprocess.Preprocess(raw, mode, rng)
	if err != nil {
		return nil, fmt.Errorf("preprocessing %s: %w", smp.ImagePath, err)
	}

	ex := &Example{SampleID: smp.ID, Images: images}
	if mode == dataset.ModePredict {
		if p.withIDs {
			ex.ID = smp.ImagePath
		}
		return ex, nil
	}

	ex.Label, err = dataset.OneHot(smp.Label, p.numClasses)
	if err != nil {
		return nil, fmt.Errorf("sample %d (%s): %w", smp.ID, smp.Image, err)
	}
	return ex, nil
}

// Debug parses smp like Parse but keeps the raw, resized and cropped images.
func (p *Parser) Debug(ctx context.Context, mode dataset.Mode, smp dataset.Sample, rng *rand.Rand) (*DebugExample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := p.read(smp)
	if err != nil {
		return nil, err
	}

	st, err := preprocess.Trace(raw, mode, rng)
	if err != nil {
		return nil, fmt.Errorf("preprocessing %s: %w", smp.ImagePath, err)
	}
	return &DebugExample{Sample: smp, Stages: st}, nil
}

// ParseBatch parses samples concurrently and returns examples in input
// order. Sample i uses a generator seeded with seed+i, so results do not
// depend on scheduling. The first failure cancels the rest.
func (p *Parser) ParseBatch(ctx context.Context, mode dataset.Mode, samples []dataset.Sample, seed int64) ([]*Example, error) {
	out := make([]*Example, len(samples))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)

	for i, smp := range samples {
		g.Go(func() error {
			ex, err := p.Parse(ctx, mode, smp, rand.New(rand.NewSource(seed+int64(i))))
			if err != nil {
				return err
			}
			out[i] = ex
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
