package training

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularMatrix is returned when a layer's regularised Gram matrix cannot be
// inverted at all. Training aborts; there is no retry with a larger penalty.
var ErrSingularMatrix = errors.New("singular matrix in ridge solve")

// solveRidge fits the closed-form ridge regression of y on d. With more samples
// than columns it inverts the width x width primal system (DᵀD + λI); otherwise
// the n x n dual system (DDᵀ + λI). It returns the condition number of the
// inverted system when gonum flags it as ill-conditioned, and 0 otherwise.
func solveRidge(d, y *mat.Dense, lambda float64) (*mat.Dense, float64, error) {
	n, width := d.Dims()
	if yr, _ := y.Dims(); yr != n {
		return nil, 0, fmt.Errorf("ridge: %d targets for %d samples", yr, n)
	}

	var beta mat.Dense
	if n > width {
		var gram mat.Dense
		gram.Mul(d.T(), d)
		addDiagonal(&gram, lambda)
		var inv mat.Dense
		cond, err := invert(&inv, &gram)
		if err != nil {
			return nil, 0, err
		}
		var dty mat.Dense
		dty.Mul(d.T(), y)
		beta.Mul(&inv, &dty)
		return &beta, cond, nil
	}

	var gram mat.Dense
	gram.Mul(d, d.T())
	addDiagonal(&gram, lambda)
	var inv mat.Dense
	cond, err := invert(&inv, &gram)
	if err != nil {
		return nil, 0, err
	}
	var iy mat.Dense
	iy.Mul(&inv, y)
	beta.Mul(d.T(), &iy)
	return &beta, cond, nil
}

func addDiagonal(m *mat.Dense, v float64) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		m.Set(i, i, m.At(i, i)+v)
	}
}

// invert keeps gonum's explicit inverse even when it reports a large but finite
// condition number; only an exactly singular system is an error.
func invert(dst, a *mat.Dense) (float64, error) {
	err := dst.Inverse(a)
	if err == nil {
		return 0, nil
	}
	var cond mat.Condition
	if errors.As(err, &cond) && !math.IsInf(float64(cond), 1) {
		return float64(cond), nil
	}
	return 0, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
}
