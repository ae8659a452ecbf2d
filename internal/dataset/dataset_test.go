package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
	"github.com/Brownie44l1/fashionai/internal/pkg/logger"
)

const attr = "skirt_length_labels"

// tokens for ten rows, one 'y' each, width 6
var tokens = []string{
	"ynnnnn", "nynnnn", "nnynnn", "nnnynn", "nnnnyn",
	"nnnnny", "ynnnnn", "nynnnn", "nnynnn", "nnnynn",
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// writeLabels writes base/Annotations/label.csv with ten rows for attr and
// two rows for another key interleaved.
func writeLabels(t *testing.T, dir string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("image,key,value\n")
	for i, tok := range tokens {
		fmt.Fprintf(&b, "Images/%s/%d.jpg,%s,%s\n", attr, i, attr, tok)
		if i == 3 || i == 7 {
			fmt.Fprintf(&b, "Images/collar/%d.jpg,collar_design_labels,nnyn\n", i)
		}
	}
	writeFile(t, filepath.Join(dir, "base", "Annotations", "label.csv"), b.String())
}

func TestDecodeLabel(t *testing.T) {
	tests := []struct {
		token   string
		want    int
		wantErr bool
	}{
		{"ynnn", 0, false},
		{"nnny", 3, false},
		{"nnynnn", 2, false},
		{"nnnn", -1, true},
		{"", -1, true},
		{"ynyn", -1, true},
		{"mmym", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := DecodeLabel(tt.token)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.Is(err, apperrors.CodeDataFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOneHot(t *testing.T) {
	v, err := OneHot(2, 5)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1, 0, 0}, v)

	_, err = OneHot(5, 5)
	assert.Error(t, err)
	_, err = OneHot(-1, 5)
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeTrain, ParseMode("train"))
	assert.Equal(t, ModeEval, ParseMode("test"))
	assert.Equal(t, ModeEval, ParseMode("eval"))
	assert.Equal(t, ModePredict, ParseMode("predict"))
	assert.Equal(t, ModePredict, ParseMode("whatever"))
}

func TestLoad_FiltersAndResolves(t *testing.T) {
	dir := t.TempDir()
	writeLabels(t, dir)

	samples, err := Load(ModeTrain, dir, attr, logger.Discard())
	require.NoError(t, err)
	require.Len(t, samples, 10)

	for i, smp := range samples {
		assert.Equal(t, i, smp.ID)
		assert.Equal(t, attr, smp.Key)
		assert.Equal(t, fmt.Sprintf("Images/%s/%d.jpg", attr, i), smp.Image)
		assert.Equal(t, filepath.Join(dir, "base", "Images", attr, fmt.Sprintf("%d.jpg", i)), smp.ImagePath)
		assert.Equal(t, strings.IndexByte(tokens[i], 'y'), smp.Label)
	}
}

func TestLoad_ConcatenatesSources(t *testing.T) {
	dir := t.TempDir()
	writeLabels(t, dir)
	writeFile(t, filepath.Join(dir, "web", "Annotations", "skirt_length_labels.csv"),
		"image,key,value\nImages/w/0.jpg,"+attr+",nnnnny\n")

	samples, err := Load(ModeTrain, dir, attr, logger.Discard())
	require.NoError(t, err)
	require.Len(t, samples, 11)

	last := samples[10]
	assert.Equal(t, 10, last.ID)
	assert.Equal(t, filepath.Join(dir, "web", "Images", "w", "0.jpg"), last.ImagePath)
	assert.Equal(t, 5, last.Label)
}

func TestLoad_BadTokenFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base", "Annotations", "label.csv"),
		"image,key,value\na.jpg,"+attr+",nyn\nb.jpg,"+attr+",nnn\n")

	_, err := Load(ModeTrain, dir, attr, logger.Discard())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeDataFormat))
	assert.Contains(t, err.Error(), "line 3")
}

func TestLoad_NoSources(t *testing.T) {
	_, err := Load(ModeTrain, t.TempDir(), attr, logger.Discard())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestLoad_PredictIgnoresValue(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "z_rank", "Tests", "question.csv"),
		"image,key,value\nImages/q/0.jpg,"+attr+",\nImages/q/1.jpg,pant_length_labels,\nImages/q/2.jpg,"+attr+",?\n")

	samples, err := Load(ModePredict, dir, attr, logger.Discard())
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "Images/q/0.jpg", samples[0].Image)
	assert.Equal(t, filepath.Join(dir, "z_rank", "Images", "q", "2.jpg"), samples[1].ImagePath)
	assert.Equal(t, -1, samples[1].Label)
	assert.Equal(t, "", samples[1].Value)
}

func TestPartition_Deterministic(t *testing.T) {
	train1, test1 := Partition(50, 0.9, 1)
	train2, test2 := Partition(50, 0.9, 1)
	assert.Equal(t, train1, train2)
	assert.Equal(t, test1, test2)

	assert.Len(t, train1, 45)
	assert.Len(t, test1, 5)

	all := append(append([]int{}, train1...), test1...)
	sort.Ints(all)
	for i := range all {
		assert.Equal(t, i, all[i], "union must cover every index exactly once")
	}
	assert.True(t, sort.IntsAreSorted(test1))

	train3, _ := Partition(50, 0.9, 2)
	assert.NotEqual(t, train1, train3)
}

func TestPartition_Small(t *testing.T) {
	train, test := Partition(0, 0.9, 1)
	assert.Empty(t, train)
	assert.Empty(t, test)

	train, test = Partition(1, 0.9, 1)
	assert.Len(t, train, 1)
	assert.Empty(t, test)

	// 4.5 rounds half to even
	train, test = Partition(5, 0.9, 1)
	assert.Len(t, train, 4)
	assert.Len(t, test, 1)
}

func TestOpen_NumClassesIsTokenWidth(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base", "Annotations", "label.csv"),
		"image,key,value\na.jpg,"+attr+",ynnnn\nb.jpg,"+attr+",nynnn\n")

	ds, err := Open(Options{DataDir: dir, AttrKey: attr, Seed: 1, Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Equal(t, 5, ds.NumClasses())
	assert.Equal(t, []int{0, 1}, ds.Observed())
}

func TestOpen_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeLabels(t, dir)

	ds, err := Open(Options{DataDir: dir, AttrKey: attr, Seed: 1, TrainFraction: 0.9, Logger: logger.Discard()})
	require.NoError(t, err)

	assert.Equal(t, 6, ds.NumClasses())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, ds.Observed())
	assert.Equal(t, 9, ds.Train().Len())
	assert.Equal(t, 1, ds.Test().Len())

	seen := make(map[int]bool)
	for _, split := range []*Split{ds.Train(), ds.Test()} {
		for _, smp := range split.Samples {
			assert.False(t, seen[smp.ID], "sample %d in both splits", smp.ID)
			seen[smp.ID] = true

			vec, err := OneHot(smp.Label, ds.NumClasses())
			require.NoError(t, err)
			want := make([]float32, 6)
			want[strings.IndexByte(tokens[smp.ID], 'y')] = 1
			assert.Equal(t, want, vec)
			assert.Equal(t, fmt.Sprintf("Images/%s/%d.jpg", attr, smp.ID), smp.Image)
		}
	}
	assert.Len(t, seen, 10)

	again, err := Open(Options{DataDir: dir, AttrKey: attr, Seed: 1, TrainFraction: 0.9, Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Equal(t, ds.Train().Samples, again.Train().Samples)
	assert.Equal(t, ds.Test().Samples, again.Test().Samples)
}

func TestOpen_RaggedTokens(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base", "Annotations", "label.csv"),
		"image,key,value\na.jpg,"+attr+",nyn\nb.jpg,"+attr+",nnny\n")

	_, err := Open(Options{DataDir: dir, AttrKey: attr, Seed: 1, Logger: logger.Discard()})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeDataFormat))
}

func TestDataset_PredictSplit(t *testing.T) {
	dir := t.TempDir()
	writeLabels(t, dir)

	ds, err := Open(Options{DataDir: dir, AttrKey: attr, Seed: 1, PredictInputFile: "/tmp/one.jpg", Logger: logger.Discard()})
	require.NoError(t, err)

	split, err := ds.Split(ModePredict)
	require.NoError(t, err)
	require.Equal(t, 1, split.Len())
	assert.Equal(t, "/tmp/one.jpg", split.Samples[0].ImagePath)
	assert.Equal(t, attr, split.Samples[0].Key)

	again, err := ds.Predict()
	require.NoError(t, err)
	assert.Same(t, split, again)
}

func TestSplit_Paging(t *testing.T) {
	samples := make([]Sample, 5)
	for i := range samples {
		samples[i] = Sample{ID: i * 10, Label: i % 2}
	}
	s := NewSplit(ModeTrain, samples)

	page := s.Page(0, 2)
	require.Len(t, page, 2)
	assert.Equal(t, 0, page[0].ID)
	assert.Equal(t, 10, page[1].ID)

	assert.Len(t, s.Page(2, 2), 1)
	assert.Empty(t, s.Page(3, 2))
	assert.NotNil(t, s.Page(9, 2))
	assert.Empty(t, s.Page(-1, 2))
	assert.Empty(t, s.Page(1<<62, 4))
	assert.Empty(t, s.Page(1, int(^uint(0)>>1)))
	assert.Len(t, s.Page(0, int(^uint(0)>>1)), 5)
	assert.Empty(t, NewSplit(ModeTrain, nil).Page(0, 2))
	assert.Empty(t, s.Slice(4, 2))

	smp, ok := s.Lookup(30)
	assert.True(t, ok)
	assert.Equal(t, 1, smp.Label)
	_, ok = s.Lookup(31)
	assert.False(t, ok)

	assert.Equal(t, []int{3, 2}, s.ClassCounts(2))
}

func TestSplit_Shuffled(t *testing.T) {
	samples := make([]Sample, 20)
	for i := range samples {
		samples[i] = Sample{ID: i}
	}
	s := NewSplit(ModeTrain, samples)

	a := s.Shuffled(7)
	b := s.Shuffled(7)
	assert.Equal(t, a, b)
	assert.Equal(t, 0, s.Samples[0].ID, "original order untouched")
	assert.ElementsMatch(t, samples, a)
}
