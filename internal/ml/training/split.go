package training

import (
	"math"
	"math/rand"
	"sort"

	"pulse-sentinel/internal/ml/stack"

	"gonum.org/v1/gonum/mat"
)

// stratifiedSplit partitions row indices into train and test sets so that each
// label keeps roughly the same share in both. The shuffle is driven by seed, so
// the same labels always produce the same split.
func stratifiedSplit(labels []int, testFraction float64, seed int64) (train, test []int) {
	byLabel := make(map[int][]int)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], i)
	}
	keys := make([]int, 0, len(byLabel))
	for k := range byLabel {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	rng := rand.New(rand.NewSource(seed))
	for _, k := range keys {
		idx := byLabel[k]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(float64(len(idx)) * testFraction))
		if nTest >= len(idx) {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// oneHot encodes binary labels into an n x Classes target matrix. Both columns
// are always present, even when the training partition holds a single class.
func oneHot(labels []int) *mat.Dense {
	y := mat.NewDense(len(labels), stack.Classes, nil)
	for i, l := range labels {
		y.Set(i, l, 1)
	}
	return y
}
