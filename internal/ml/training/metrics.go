package training

import (
	"math"
	"sort"
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// computeMetrics scores held-out rows against their labels, treating the
// aggregate anomaly score as a probability.
func computeMetrics(labels []int, scores []float64) map[string]float64 {
	n := len(labels)
	if n == 0 || len(scores) != n {
		return map[string]float64{"auc": 0.5, "accuracy": 0, "precision": 0, "recall": 0, "f1": 0, "brier": 0, "n_test": 0}
	}
	var tp, fp, tn, fn, brier float64
	for i := 0; i < n; i++ {
		y := float64(labels[i])
		p := clamp01(scores[i])
		pred := 0.0
		if p >= 0.5 {
			pred = 1
		}
		switch {
		case pred == 1 && y == 1:
			tp++
		case pred == 1 && y == 0:
			fp++
		case pred == 0 && y == 0:
			tn++
		default:
			fn++
		}
		d := p - y
		brier += d * d
	}

	precision := 0.0
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	recall := 0.0
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return map[string]float64{
		"auc":       computeAUC(labels, scores),
		"accuracy":  (tp + tn) / float64(n),
		"precision": precision,
		"recall":    recall,
		"f1":        f1,
		"brier":     brier / float64(n),
		"n_test":    float64(n),
	}
}

// computeAUC is the rank-sum (Mann-Whitney) estimate with averaged ranks for ties.
func computeAUC(labels []int, scores []float64) float64 {
	type pair struct {
		p float64
		y int
	}
	pairs := make([]pair, len(labels))
	pos, neg := 0.0, 0.0
	for i := range labels {
		pairs[i] = pair{p: scores[i], y: labels[i]}
		if labels[i] == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].p < pairs[j].p })

	sumRankPos := 0.0
	for i := 0; i < len(pairs); {
		j := i + 1
		for j < len(pairs) && math.Abs(pairs[j].p-pairs[i].p) < 1e-12 {
			j++
		}
		avgRank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if pairs[k].y == 1 {
				sumRankPos += avgRank
			}
		}
		i = j
	}
	auc := (sumRankPos - pos*(pos+1)/2) / (pos * neg)
	if math.IsNaN(auc) || math.IsInf(auc, 0) {
		return 0.5
	}
	return auc
}
