// Package viewer backs the dataset browser: paged listings of a split with
// optional predictions, and cropped previews of single samples.
package viewer

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/Brownie44l1/fashionai/internal/dataset"
	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
	"github.com/Brownie44l1/fashionai/internal/pkg/logger"
	"github.com/Brownie44l1/fashionai/internal/predict"
	"github.com/Brownie44l1/fashionai/internal/preprocess"
)

// Item is one row of a dataset listing.
type Item struct {
	ID      int      `json:"id"`
	Title   string   `json:"title"`
	Image   string   `json:"image,omitempty"`
	Attr    Attr     `json:"attr"`
	Predict *Predict `json:"predict,omitempty"`
}

// Attr is the attribute key and raw label token of a sample.
type Attr struct {
	Class string `json:"class"`
	Label string `json:"label"`
}

// Predict is the aggregated prediction for an item.
type Predict struct {
	Pred  int      `json:"pred"`
	Probs []string `json:"probs"`
}

// Config configures a Service.
type Config struct {
	Dataset *dataset.Dataset
	// DataDir is the root that listing image URLs are relative to.
	DataDir string
	// Aggregator runs predictions; nil disables them.
	Aggregator *predict.Aggregator
	CacheSize  int
	ReadFile   func(string) ([]byte, error)
	Logger     *logger.Logger
}

// Service serves listings and crops over a loaded dataset.
type Service struct {
	ds       *dataset.Dataset
	dataDir  string
	agg      *predict.Aggregator
	cache    *lru.Cache
	readFile func(string) ([]byte, error)
	log      *logger.Logger
}

// NewService creates a viewer service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Dataset == nil {
		return nil, fmt.Errorf("viewer needs a dataset")
	}
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 64
	}
	if cfg.ReadFile == nil {
		cfg.ReadFile = os.ReadFile
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating image cache: %w", err)
	}

	return &Service{
		ds:       cfg.Dataset,
		dataDir:  cfg.DataDir,
		agg:      cfg.Aggregator,
		cache:    cache,
		readFile: cfg.ReadFile,
		log:      cfg.Logger.WithComponent("viewer"),
	}, nil
}

// CanPredict reports whether a model is attached.
func (s *Service) CanPredict() bool {
	return s.agg != nil
}

// NumClasses returns the label space size of the dataset.
func (s *Service) NumClasses() int {
	return s.ds.NumClasses()
}

// ListPage returns items [page*size, (page+1)*size) of the split for mode.
// A window past the end yields an empty list. With withPredict each item
// also carries the CropSet prediction for its image.
func (s *Service) ListPage(ctx context.Context, mode string, page, size int, withPredict bool) ([]Item, error) {
	if page < 0 || size < 1 {
		return nil, apperrors.ValidationError("page must be >= 0 and size >= 1")
	}
	if withPredict && s.agg == nil {
		return nil, apperrors.UnsupportedError("no model loaded")
	}

	split, err := s.ds.Split(dataset.ParseMode(mode))
	if err != nil {
		return nil, err
	}

	rows := split.Page(page, size)
	items := make([]Item, 0, len(rows))
	for _, smp := range rows {
		item := Item{
			ID:    smp.ID,
			Title: path.Base(filepath.ToSlash(smp.Image)),
			Image: s.imageURL(smp),
			Attr:  Attr{Class: smp.Key, Label: smp.Value},
		}

		if withPredict {
			rec, err := s.agg.PredictSample(ctx, smp)
			if err != nil {
				return nil, err
			}
			item.Predict = &Predict{Pred: rec.Predicted, Probs: predict.FormatEach(rec.Probabilities)}
		}
		items = append(items, item)
	}
	return items, nil
}

// imageURL maps a sample onto the /img/ route, or "" when its file lies
// outside the data directory and cannot be served.
func (s *Service) imageURL(smp dataset.Sample) string {
	rel, err := filepath.Rel(s.dataDir, smp.ImagePath)
	if err != nil || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return "/img/" + filepath.ToSlash(rel)
}

// CropImage returns a JPEG of one 224x224 crop of sample id, cut from the
// resized image. Unknown methods crop at random; seed, when non-nil, makes
// the random crop reproducible.
func (s *Service) CropImage(ctx context.Context, mode string, id int, method string, seed *int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	split, err := s.ds.Split(dataset.ParseMode(mode))
	if err != nil {
		return nil, err
	}
	smp, ok := split.Lookup(id)
	if !ok {
		return nil, apperrors.NotFoundError(fmt.Sprintf("sample %d", id))
	}

	resized, err := s.resized(smp.ImagePath)
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewSource(*seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	crop, err := preprocess.Crop(resized, preprocess.ParseCropMethod(method), preprocess.Height, preprocess.Width, rng)
	if err != nil {
		return nil, err
	}
	return preprocess.EncodeJPEG(crop)
}

func (s *Service) resized(imagePath string) (*image.RGBA, error) {
	if v, ok := s.cache.Get(imagePath); ok {
		return v.(*image.RGBA), nil
	}

	raw, err := s.readFile(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFoundError("image " + filepath.Base(imagePath))
		}
		return nil, fmt.Errorf("reading image %s: %w", imagePath, err)
	}
	decoded, err := preprocess.Decode(raw)
	if err != nil {
		return nil, err
	}

	img := preprocess.ResizeMin(decoded, preprocess.ResizeFloor)
	s.cache.Add(imagePath, img)
	s.log.Debug("cached resized image", "path", imagePath, "entries", s.cache.Len())
	return img, nil
}

// PredictImage runs the CropSet prediction on uploaded image bytes.
func (s *Service) PredictImage(ctx context.Context, raw []byte) (predict.Record, error) {
	if s.agg == nil {
		return predict.Record{}, apperrors.UnsupportedError("no model loaded")
	}
	return s.agg.PredictImage(ctx, raw)
}
