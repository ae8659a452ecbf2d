package dataset

import (
	"math"
	"math/rand"
)

// Split is an ordered partition of samples. Row order is the order rows
// are served in, both to the training loop and to the viewer.
type Split struct {
	Name    Mode
	Samples []Sample
}

// NewSplit wraps samples as a split.
func NewSplit(name Mode, samples []Sample) *Split {
	return &Split{Name: name, Samples: samples}
}

// Len returns the number of samples.
func (s *Split) Len() int {
	return len(s.Samples)
}

// Slice returns rows [from, to) clamped to the split bounds. The returned
// slice shares storage with the split.
func (s *Split) Slice(from, to int) []Sample {
	if from < 0 {
		from = 0
	}
	if to > len(s.Samples) {
		to = len(s.Samples)
	}
	if from >= to {
		return []Sample{}
	}
	return s.Samples[from:to]
}

// Page returns rows [page*size, (page+1)*size). Pages past the end are empty.
func (s *Split) Page(page, size int) []Sample {
	if page < 0 || size <= 0 || len(s.Samples) == 0 {
		return []Sample{}
	}
	// checked before multiplying so huge pages cannot wrap around
	if page > (len(s.Samples)-1)/size {
		return []Sample{}
	}
	return s.Slice(page*size, (page+1)*size)
}

// Lookup finds a sample by ID.
func (s *Split) Lookup(id int) (Sample, bool) {
	for _, smp := range s.Samples {
		if smp.ID == id {
			return smp, true
		}
	}
	return Sample{}, false
}

// ClassCounts returns how many samples carry each label.
func (s *Split) ClassCounts(numClasses int) []int {
	counts := make([]int, numClasses)
	for _, smp := range s.Samples {
		if smp.Label >= 0 && smp.Label < numClasses {
			counts[smp.Label]++
		}
	}
	return counts
}

// Shuffled returns a copy of the split's samples in a seeded random order.
func (s *Split) Shuffled(seed int64) []Sample {
	out := make([]Sample, len(s.Samples))
	copy(out, s.Samples)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Partition draws round-half-even(fraction*n) indices for training from a seeded
// permutation of [0, n). train keeps the permutation order, test holds the
// remaining indices in ascending order.
func Partition(n int, fraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	k := int(math.RoundToEven(fraction * float64(n)))
	if k > n {
		k = n
	}

	train = perm[:k]
	inTrain := make([]bool, n)
	for _, i := range train {
		inTrain[i] = true
	}

	test = make([]int, 0, n-k)
	for i := 0; i < n; i++ {
		if !inTrain[i] {
			test = append(test, i)
		}
	}
	return train, test
}
