package model

import (
	"math"

	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
)

// Softmax normalizes logits into probabilities.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}

	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - max))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// Score computes top-1 accuracy and mean cross-entropy of probs against
// one-hot labels.
func Score(probs [][]float32, labels [][]float32) (Metrics, error) {
	if len(probs) != len(labels) {
		return Metrics{}, apperrors.ValidationError("predictions and labels differ in length")
	}
	if len(probs) == 0 {
		return Metrics{}, nil
	}

	const eps = 1e-7
	var loss float64
	correct := 0
	for i, p := range probs {
		if len(p) != len(labels[i]) {
			return Metrics{}, apperrors.ValidationError("prediction width does not match label width")
		}
		truth, pred := argmax32(labels[i]), argmax32(p)
		if truth == pred {
			correct++
		}
		loss -= math.Log(math.Max(float64(p[truth]), eps))
	}

	n := float64(len(probs))
	return Metrics{Loss: loss / n, Accuracy: float64(correct) / n, Examples: len(probs)}, nil
}

func argmax32(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
