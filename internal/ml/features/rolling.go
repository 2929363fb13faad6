package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// window returns values[idx-size+1 : idx+1], or nil when there is not enough history.
func window(values []float64, idx, size int) []float64 {
	if size <= 0 || idx-size+1 < 0 || idx >= len(values) {
		return nil
	}
	return values[idx-size+1 : idx+1]
}

// histogramEntropy bins values into equal-width buckets spanning their min/max and
// returns the base-2 Shannon entropy of the bucket frequencies. The last bucket is
// closed on the right; a constant window falls into a single bucket.
func histogramEntropy(values []float64, bins int) float64 {
	if len(values) == 0 || bins <= 0 {
		return math.NaN()
	}
	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		return 0
	}

	p := make([]float64, bins)
	width := (hi - lo) / float64(bins)
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		p[idx]++
	}
	floats.Scale(1/float64(len(values)), p)
	return stat.Entropy(p) / math.Ln2
}
