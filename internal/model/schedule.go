package model

// Optimizer names the update rule a training backend applies.
type Optimizer struct {
	Name        string  `json:"name"`
	Momentum    float64 `json:"momentum"`
	WeightDecay float64 `json:"weight_decay"`
}

// MomentumOptimizer returns SGD with momentum and L2 weight decay.
func MomentumOptimizer(momentum, weightDecay float64) Optimizer {
	return Optimizer{Name: "momentum", Momentum: momentum, WeightDecay: weightDecay}
}

const batchDenom = 256

var (
	boundaryEpochs = []float64{30, 60, 80, 90}
	decayRates     = []float64{1, 0.1, 0.01, 0.001, 1e-4}
)

// Schedule is a piecewise constant learning rate: Values[i] applies while
// step <= Boundaries[i], and the last value applies after the last boundary.
type Schedule struct {
	Boundaries []int64
	Values     []float64
}

// PiecewiseSchedule scales a base rate of 0.1 by batchSize/256 and decays it
// by 10x at epochs 30, 60, 80 and 90.
func PiecewiseSchedule(batchSize, trainImages int) Schedule {
	initial := 0.1 * float64(batchSize) / batchDenom
	batchesPerEpoch := float64(trainImages) / float64(batchSize)

	s := Schedule{
		Boundaries: make([]int64, len(boundaryEpochs)),
		Values:     make([]float64, len(decayRates)),
	}
	for i, e := range boundaryEpochs {
		s.Boundaries[i] = int64(batchesPerEpoch * e)
	}
	for i, d := range decayRates {
		s.Values[i] = initial * d
	}
	return s
}

// LearningRate returns the rate at global step.
func (s Schedule) LearningRate(step int64) float64 {
	for i, b := range s.Boundaries {
		if step <= b {
			return s.Values[i]
		}
	}
	return s.Values[len(s.Values)-1]
}
