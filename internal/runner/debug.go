package runner

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/Brownie44l1/fashionai/internal/dataset"
	"github.com/Brownie44l1/fashionai/internal/preprocess"
)

const (
	debugHeadRows  = 5
	debugDumpCount = 3
)

// Debug prints split statistics and the first rows of each split. With a
// dump directory it also writes every preprocessing stage of a few train
// samples as JPEGs.
func (r *Runner) Debug(ctx context.Context) error {
	train, test := r.ds.Train(), r.ds.Test()

	fmt.Fprintf(r.out, "attr_key:    %s\n", r.cfg.AttrKey)
	fmt.Fprintf(r.out, "samples:     %s\n", humanize.Comma(int64(len(r.ds.All()))))
	fmt.Fprintf(r.out, "train:       %s\n", humanize.Comma(int64(train.Len())))
	fmt.Fprintf(r.out, "test:        %s\n", humanize.Comma(int64(test.Len())))
	fmt.Fprintf(r.out, "num_classes: %d (observed %v)\n\n", r.ds.NumClasses(), r.ds.Observed())

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "class\ttrain\ttest")
	trainCounts := train.ClassCounts(r.ds.NumClasses())
	testCounts := test.ClassCounts(r.ds.NumClasses())
	for c := range trainCounts {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", c, trainCounts[c], testCounts[c])
	}
	tw.Flush()

	for _, split := range []*dataset.Split{train, test} {
		fmt.Fprintf(r.out, "\n%s head:\n", split.Name)
		tw = tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "id\timage\tvalue\tlabel")
		for _, smp := range split.Slice(0, debugHeadRows) {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", smp.ID, smp.Image, smp.Value, smp.Label)
		}
		tw.Flush()
	}

	if r.cfg.DebugDumpDir == "" {
		return nil
	}
	return r.dumpStages(ctx, train.Slice(0, debugDumpCount))
}

func (r *Runner) dumpStages(ctx context.Context, samples []dataset.Sample) error {
	for _, smp := range samples {
		rng := rand.New(rand.NewSource(r.cfg.Train.Seed + int64(smp.ID)))
		dbg, err := r.parser.Debug(ctx, dataset.ModeTrain, smp, rng)
		if err != nil {
			return err
		}

		dir := filepath.Join(r.cfg.DebugDumpDir, fmt.Sprintf("%06d", smp.ID))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating dump directory: %w", err)
		}

		files := map[string]image.Image{
			"raw.jpg":     dbg.Stages.Raw,
			"resized.jpg": dbg.Stages.Resized,
		}
		for i, c := range dbg.Stages.Crops {
			files[fmt.Sprintf("crop_%d.jpg", i)] = c
		}

		var total uint64
		for name, img := range files {
			data, err := preprocess.EncodeJPEG(img)
			if err != nil {
				return fmt.Errorf("encoding %s: %w", name, err)
			}
			if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", name, err)
			}
			total += uint64(len(data))
		}

		r.log.Info("dumped preprocessing stages",
			"id", smp.ID,
			"label", smp.Label,
			"dir", dir,
			"size", humanize.Bytes(total),
		)
	}
	return nil
}
