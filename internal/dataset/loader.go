// Package dataset loads FashionAI label tables and partitions them into
// train, test and predict splits.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gocarina/gocsv"

	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
	"github.com/Brownie44l1/fashionai/internal/pkg/logger"
)

// row is one line of a label or question table.
type row struct {
	Image string `csv:"image"`
	Key   string `csv:"key"`
	Value string `csv:"value"`
}

// Source is a label table and the directory its image paths are relative to.
type Source struct {
	BaseDir string
	File    string
}

// Sources returns the label tables read for mode under dataDir.
func Sources(mode Mode, dataDir string) []Source {
	if mode == ModePredict {
		rank := filepath.Join(dataDir, "z_rank")
		return []Source{
			{BaseDir: rank, File: filepath.Join(rank, "Tests", "question.csv")},
		}
	}

	base := filepath.Join(dataDir, "base")
	web := filepath.Join(dataDir, "web")
	return []Source{
		{BaseDir: base, File: filepath.Join(base, "Annotations", "label.csv")},
		{BaseDir: web, File: filepath.Join(web, "Annotations", "skirt_length_labels.csv")},
	}
}

// Load reads every source for mode, keeps rows whose key equals attrKey and
// concatenates them in source order. Outside predict mode each row's token
// is decoded into a class index; a bad token fails the whole load.
func Load(mode Mode, dataDir, attrKey string, log *logger.Logger) ([]Sample, error) {
	var samples []Sample
	found := 0

	for _, src := range Sources(mode, dataDir) {
		rows, err := readRows(src.File)
		if os.IsNotExist(err) {
			log.Warn("label file missing, skipping", "file", src.File)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", src.File, err)
		}
		found++

		for i, r := range rows {
			if r.Key != attrKey {
				continue
			}
			smp := Sample{
				ID:        len(samples),
				Image:     r.Image,
				ImagePath: filepath.Join(src.BaseDir, filepath.FromSlash(r.Image)),
				Key:       r.Key,
				Label:     -1,
			}
			if mode != ModePredict {
				label, err := DecodeLabel(r.Value)
				if err != nil {
					// header is line 1
					return nil, fmt.Errorf("%s line %d: %w", src.File, i+2, err)
				}
				smp.Value = r.Value
				smp.Label = label
			}
			samples = append(samples, smp)
		}
		log.Debug("label file loaded", "file", src.File, "rows", len(rows), "kept", len(samples))
	}

	if found == 0 {
		return nil, apperrors.NotFoundError(fmt.Sprintf("label files for %s under %s", mode, dataDir))
	}
	return samples, nil
}

func readRows(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []row
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataFormat, "malformed label table", err)
	}
	return rows, nil
}

// Options configures Open.
type Options struct {
	DataDir string
	AttrKey string
	// PredictInputFile, when set, replaces the question table with a single image.
	PredictInputFile string
	Seed             int64
	TrainFraction    float64
	Logger           *logger.Logger
}

// Dataset is the loaded label set for one attribute key.
type Dataset struct {
	opts       Options
	all        []Sample
	train      *Split
	test       *Split
	numClasses int
	observed   []int

	mu      sync.Mutex
	predict *Split
}

// Open loads the training label set and partitions it once into train and
// test splits. The predict split is loaded on first use.
func Open(opts Options) (*Dataset, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.TrainFraction == 0 {
		opts.TrainFraction = 0.9
	}

	all, err := Load(ModeTrain, opts.DataDir, opts.AttrKey, opts.Logger)
	if err != nil {
		return nil, err
	}

	numClasses, observed, err := vocabulary(all)
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx := Partition(len(all), opts.TrainFraction, opts.Seed)

	d := &Dataset{
		opts:       opts,
		all:        all,
		train:      NewSplit(ModeTrain, pick(all, trainIdx)),
		test:       NewSplit(ModeEval, pick(all, testIdx)),
		numClasses: numClasses,
		observed:   observed,
	}

	opts.Logger.Info("dataset loaded",
		"attr_key", opts.AttrKey,
		"samples", len(all),
		"train", d.train.Len(),
		"test", d.test.Len(),
		"num_classes", numClasses,
	)
	return d, nil
}

// vocabulary returns the token width, which every row must share, and the
// sorted distinct labels observed.
func vocabulary(samples []Sample) (int, []int, error) {
	width := -1
	seen := make(map[int]bool)
	for _, smp := range samples {
		if width < 0 {
			width = len(smp.Value)
		} else if len(smp.Value) != width {
			return 0, nil, apperrors.DataFormatError("label tokens differ in width").
				WithDetail("image", smp.Image).
				WithDetail("token", smp.Value)
		}
		seen[smp.Label] = true
	}
	if width < 0 {
		width = 0
	}

	observed := make([]int, 0, len(seen))
	for l := range seen {
		observed = append(observed, l)
	}
	sort.Ints(observed)
	return width, observed, nil
}

func pick(all []Sample, idx []int) []Sample {
	out := make([]Sample, len(idx))
	for i, j := range idx {
		out[i] = all[j]
	}
	return out
}

// NumClasses returns the size of the label space for the attribute key: the
// label token width, which can exceed the count of distinct labels in Observed.
func (d *Dataset) NumClasses() int {
	return d.numClasses
}

// Observed returns the distinct class indices present in the label set.
func (d *Dataset) Observed() []int {
	return d.observed
}

// All returns the full filtered label set in load order.
func (d *Dataset) All() []Sample {
	return d.all
}

// Train returns the training split.
func (d *Dataset) Train() *Split {
	return d.train
}

// Test returns the held-out split.
func (d *Dataset) Test() *Split {
	return d.test
}

// Split returns the split used for mode.
func (d *Dataset) Split(mode Mode) (*Split, error) {
	switch mode {
	case ModeTrain:
		return d.train, nil
	case ModeEval:
		return d.test, nil
	default:
		return d.Predict()
	}
}

// Predict returns the predict split: the configured single input file, or
// the question table.
func (d *Dataset) Predict() (*Split, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.predict != nil {
		return d.predict, nil
	}

	if d.opts.PredictInputFile != "" {
		d.predict = NewSplit(ModePredict, []Sample{{
			ID:        0,
			Image:     d.opts.PredictInputFile,
			ImagePath: d.opts.PredictInputFile,
			Key:       d.opts.AttrKey,
			Label:     -1,
		}})
		return d.predict, nil
	}

	samples, err := Load(ModePredict, d.opts.DataDir, d.opts.AttrKey, d.opts.Logger)
	if err != nil {
		return nil, err
	}
	d.predict = NewSplit(ModePredict, samples)
	return d.predict, nil
}
