// Package predict averages per-crop classifier outputs into one probability
// vector per image and writes them out as CSV.
package predict

import (
	"fmt"
	"strings"

	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
)

// Aggregate returns the elementwise mean of outputs and its argmax. Ties
// resolve to the lowest index.
func Aggregate(outputs [][]float32) ([]float64, int, error) {
	if len(outputs) == 0 {
		return nil, 0, apperrors.ValidationError("no outputs to aggregate")
	}

	width := len(outputs[0])
	if width == 0 {
		return nil, 0, apperrors.ValidationError("empty probability vector")
	}

	mean := make([]float64, width)
	for i, out := range outputs {
		if len(out) != width {
			return nil, 0, apperrors.ValidationError(
				fmt.Sprintf("output %d has %d classes, expected %d", i, len(out), width))
		}
		for j, p := range out {
			mean[j] += float64(p)
		}
	}

	n := float64(len(outputs))
	for j := range mean {
		mean[j] /= n
	}
	return mean, Argmax(mean), nil
}

// Argmax returns the index of the largest value, the first one on ties.
func Argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// FormatEach renders each probability with four decimals.
func FormatEach(probs []float64) []string {
	out := make([]string, len(probs))
	for i, p := range probs {
		out[i] = fmt.Sprintf("%.4f", p)
	}
	return out
}

// FormatProbabilities joins FormatEach with ';' in class order.
func FormatProbabilities(probs []float64) string {
	return strings.Join(FormatEach(probs), ";")
}
