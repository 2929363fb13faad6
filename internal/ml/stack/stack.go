// Package stack implements the stacked random-feature network: a fixed-depth
// chain of sigmoid layers whose weights are drawn once at random and never
// updated, plus one regression head per layer fitted in closed form.
package stack

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"pulse-sentinel/internal/ml/features"

	"gonum.org/v1/gonum/mat"
)

const (
	DefaultLayers = 10
	DefaultNodes  = 2048

	// Classes is the width of every regression head (normal, anomaly).
	Classes = 2
	// AnomalyClass is the head column read as the anomaly score.
	AnomalyClass = 1
)

var ErrShape = errors.New("stack: shape mismatch")

type Topology struct {
	Layers   int `json:"layers"`
	Features int `json:"features"`
	Nodes    int `json:"nodes"`
}

func DefaultTopology() Topology {
	return Topology{Layers: DefaultLayers, Features: features.Count, Nodes: DefaultNodes}
}

func (t Topology) Validate() error {
	if t.Layers < 1 || t.Features < 1 || t.Nodes < 1 {
		return fmt.Errorf("%w: invalid topology %+v", ErrShape, t)
	}
	return nil
}

// DesignWidth is the column count of layer i's design matrix.
func (t Topology) DesignWidth(layer int) int {
	if layer == 0 {
		return t.Nodes + t.Features
	}
	return 2*t.Nodes + t.Features
}

// Params holds every trained quantity of the network. A Params value is never
// mutated once training has attached its regression heads.
type Params struct {
	Topology

	FirstWeights *mat.Dense   // Features x Nodes
	LayerWeights []*mat.Dense // Layers-1 matrices, (Nodes+Features) x Nodes
	Biases       *mat.Dense   // Nodes x Layers, column i feeds layer i
	Betas        []*mat.Dense // Layers matrices, DesignWidth(i) x Classes
}

// Activations is the result of a forward pass.
type Activations struct {
	Hidden []*mat.Dense // n x Nodes per layer
	Design []*mat.Dense // n x DesignWidth(i) per layer
}

// NewRandomParams draws weights and biases uniformly from [0, 1). Betas are
// left empty for the trainer to fill.
func NewRandomParams(t Topology, rng *rand.Rand) (*Params, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	p := &Params{
		Topology:     t,
		FirstWeights: uniform(t.Features, t.Nodes, rng),
		LayerWeights: make([]*mat.Dense, t.Layers-1),
	}
	for i := range p.LayerWeights {
		p.LayerWeights[i] = uniform(t.Nodes+t.Features, t.Nodes, rng)
	}
	p.Biases = uniform(t.Nodes, t.Layers, rng)
	return p, nil
}

func uniform(r, c int, rng *rand.Rand) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.Float64()
	}
	return mat.NewDense(r, c, data)
}

// Validate checks every matrix against the topology.
func (p *Params) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil params", ErrShape)
	}
	if err := p.Topology.Validate(); err != nil {
		return err
	}
	if err := checkDims("first weights", p.FirstWeights, p.Features, p.Nodes); err != nil {
		return err
	}
	if len(p.LayerWeights) != p.Layers-1 {
		return fmt.Errorf("%w: %d layer weight matrices for %d layers", ErrShape, len(p.LayerWeights), p.Layers)
	}
	for i, w := range p.LayerWeights {
		if err := checkDims(fmt.Sprintf("layer %d weights", i+1), w, p.Nodes+p.Features, p.Nodes); err != nil {
			return err
		}
	}
	if err := checkDims("biases", p.Biases, p.Nodes, p.Layers); err != nil {
		return err
	}
	if len(p.Betas) != p.Layers {
		return fmt.Errorf("%w: %d regression heads for %d layers", ErrShape, len(p.Betas), p.Layers)
	}
	for i, b := range p.Betas {
		if err := checkDims(fmt.Sprintf("layer %d head", i), b, p.DesignWidth(i), Classes); err != nil {
			return err
		}
	}
	return nil
}

func checkDims(name string, m *mat.Dense, rows, cols int) error {
	if m == nil {
		return fmt.Errorf("%w: %s missing", ErrShape, name)
	}
	r, c := m.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrShape, name, r, c, rows, cols)
	}
	return nil
}

// Forward runs x (n x Features) through every layer. It only needs weights and
// biases, so the trainer calls it before any head exists.
func (p *Params) Forward(x mat.Matrix) (*Activations, error) {
	n, cols := x.Dims()
	if cols != p.Features {
		return nil, fmt.Errorf("%w: input has %d features, want %d", ErrShape, cols, p.Features)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrShape)
	}

	act := &Activations{
		Hidden: make([]*mat.Dense, p.Layers),
		Design: make([]*mat.Dense, p.Layers),
	}
	act.Hidden[0] = p.activate(x, p.FirstWeights, 0)
	for i := 1; i < p.Layers; i++ {
		in := hconcat(act.Hidden[i-1], x)
		act.Hidden[i] = p.activate(in, p.LayerWeights[i-1], i)
	}

	act.Design[0] = hconcat(act.Hidden[0], x)
	for i := 1; i < p.Layers; i++ {
		act.Design[i] = hconcat(act.Hidden[i], act.Hidden[i-1], x)
	}
	return act, nil
}

// activate computes sigmoid(in*w + b) with the layer's bias broadcast over rows.
func (p *Params) activate(in mat.Matrix, w *mat.Dense, layer int) *mat.Dense {
	var k mat.Dense
	k.Mul(in, w)
	bias := p.Biases.ColView(layer)
	k.Apply(func(_, j int, v float64) float64 {
		return Sigmoid(v + bias.AtVec(j))
	}, &k)
	return &k
}

// Scores returns one aggregate anomaly score per input row: the anomaly column of
// every layer's head output, summed and divided by the layer count.
func (p *Params) Scores(x mat.Matrix) ([]float64, error) {
	if len(p.Betas) != p.Layers {
		return nil, fmt.Errorf("%w: model has no regression heads", ErrShape)
	}
	act, err := p.Forward(x)
	if err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	sum := mat.NewDense(n, Classes, nil)
	for i, d := range act.Design {
		var out mat.Dense
		out.Mul(d, p.Betas[i])
		sum.Add(sum, &out)
	}
	scores := make([]float64, n)
	for r := range scores {
		scores[r] = sum.At(r, AnomalyClass) / float64(p.Layers)
	}
	return scores, nil
}

// Score is Scores for a single feature vector.
func (p *Params) Score(v features.Vector) (float64, error) {
	scores, err := p.Scores(mat.NewDense(1, features.Count, v.Slice()))
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// Sigmoid is the plain logistic function. Extreme inputs saturate to 0 or 1
// through floating point; no clamping is applied.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// hconcat places matrices with equal row counts side by side.
func hconcat(ms ...mat.Matrix) *mat.Dense {
	rows, total := 0, 0
	for i, m := range ms {
		r, c := m.Dims()
		if i == 0 {
			rows = r
		}
		total += c
	}
	out := mat.NewDense(rows, total, nil)
	col := 0
	for _, m := range ms {
		_, c := m.Dims()
		out.Slice(0, rows, col, col+c).(*mat.Dense).Copy(m)
		col += c
	}
	return out
}

// Matrix packs feature vectors into an n x Count dense matrix.
func Matrix(rows []features.Vector) *mat.Dense {
	data := make([]float64, 0, len(rows)*features.Count)
	for _, v := range rows {
		data = append(data, v[:]...)
	}
	return mat.NewDense(len(rows), features.Count, data)
}
