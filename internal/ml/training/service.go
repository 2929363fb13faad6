package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"pulse-sentinel/internal/domain"
	"pulse-sentinel/internal/ml/bundle"
	"pulse-sentinel/internal/ml/features"
	"pulse-sentinel/internal/ml/stack"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultLambda       = 0.02
	DefaultTestFraction = 0.2
	DefaultSplitSeed    = 42
	minTrainRows        = 2
)

var ErrInsufficientData = errors.New("not enough clean training rows")

// SampleSource supplies the per-day history the model is fitted on.
type SampleSource interface {
	ListSamples(ctx context.Context) ([]domain.RawSample, error)
}

type Options struct {
	Topology     stack.Topology
	Lambda       float64
	TestFraction float64
	SplitSeed    int64
	// WeightSeed drives weight and bias initialisation. Zero seeds from the clock.
	WeightSeed int64
}

func DefaultOptions() Options {
	return Options{
		Topology:     stack.DefaultTopology(),
		Lambda:       DefaultLambda,
		TestFraction: DefaultTestFraction,
		SplitSeed:    DefaultSplitSeed,
	}
}

type Service struct {
	tracer trace.Tracer
	source SampleSource
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

type Result struct {
	BundleID      string             `json:"bundle_id"`
	SampleCount   int                `json:"sample_count"`
	CleanRows     int                `json:"clean_rows"`
	TrainCount    int                `json:"train_count"`
	TestCount     int                `json:"test_count"`
	AnomalyRate   float64            `json:"anomaly_rate"`
	IllConditions int                `json:"ill_conditioned_layers"`
	Metrics       map[string]float64 `json:"metrics"`
	Duration      time.Duration      `json:"duration_ns"`
}

func NewService(tracer trace.Tracer, source SampleSource, opts Options, now func() time.Time) *Service {
	def := DefaultOptions()
	if opts.Topology == (stack.Topology{}) {
		opts.Topology = def.Topology
	}
	if opts.Lambda <= 0 {
		opts.Lambda = def.Lambda
	}
	if opts.TestFraction < 0 || opts.TestFraction >= 1 {
		opts.TestFraction = def.TestFraction
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		tracer: tracer,
		source: source,
		opts:   opts,
		now:    now,
		logger: slog.Default().With("component", "training"),
	}
}

// Train fits a fresh bundle from the configured sample source. It does not
// persist anything; the caller decides where the bundle lives.
func (s *Service) Train(ctx context.Context) (*bundle.Bundle, Result, error) {
	ctx, span := s.tracer.Start(ctx, "ml-training.train")
	defer span.End()

	started := s.now()
	samples, err := s.source.ListSamples(ctx)
	if err != nil {
		return nil, Result{}, fmt.Errorf("load training samples: %w", err)
	}
	b, res, err := s.Fit(ctx, samples)
	if err != nil {
		span.RecordError(err)
		return nil, res, err
	}
	res.Duration = s.now().Sub(started)
	span.SetAttributes(
		attribute.String("bundle.id", b.ID),
		attribute.Int("train.rows", res.TrainCount),
		attribute.Int("test.rows", res.TestCount),
	)
	return b, res, nil
}

// Fit derives features and labels from samples, draws the random layers and
// solves every layer's regression head in closed form.
func (s *Service) Fit(ctx context.Context, samples []domain.RawSample) (*bundle.Bundle, Result, error) {
	_, span := s.tracer.Start(ctx, "ml-training.fit")
	defer span.End()

	res := Result{SampleCount: len(samples)}
	rows := features.History(samples)
	res.CleanRows = len(rows)

	vectors := make([]features.Vector, len(rows))
	labels := make([]int, len(rows))
	positives := 0
	for i, r := range rows {
		vectors[i] = r.Features
		labels[i] = features.Label(r.Features)
		positives += labels[i]
	}
	if len(rows) > 0 {
		res.AnomalyRate = float64(positives) / float64(len(rows))
	}

	trainIdx, testIdx := stratifiedSplit(labels, s.opts.TestFraction, s.opts.SplitSeed)
	if len(trainIdx) < minTrainRows {
		return nil, res, fmt.Errorf("%w: %d usable of %d samples", ErrInsufficientData, len(trainIdx), len(samples))
	}
	res.TrainCount = len(trainIdx)
	res.TestCount = len(testIdx)

	xTrain, yTrain := subset(vectors, labels, trainIdx)
	y := oneHot(yTrain)

	seed := s.opts.WeightSeed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	params, err := stack.NewRandomParams(s.opts.Topology, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, res, err
	}

	act, err := params.Forward(xTrain)
	if err != nil {
		return nil, res, err
	}

	params.Betas = make([]*mat.Dense, 0, params.Layers)
	for i, d := range act.Design {
		if err := ctx.Err(); err != nil {
			return nil, res, err
		}
		beta, cond, err := solveRidge(d, y, s.opts.Lambda)
		if err != nil {
			return nil, res, fmt.Errorf("layer %d: %w", i, err)
		}
		if cond > 0 {
			res.IllConditions++
			s.logger.Warn("ill-conditioned ridge system", "layer", i, "condition", cond)
		}
		params.Betas = append(params.Betas, beta)
	}
	if err := params.Validate(); err != nil {
		return nil, res, err
	}

	b := &bundle.Bundle{
		ID:        uuid.NewString(),
		TrainedAt: s.now().UTC(),
		Params:    params,
	}
	res.BundleID = b.ID

	res.Metrics = computeMetrics(nil, nil)
	if len(testIdx) > 0 {
		xTest, yTest := subset(vectors, labels, testIdx)
		scores, err := params.Scores(xTest)
		if err != nil {
			return nil, res, err
		}
		res.Metrics = computeMetrics(yTest, scores)
	}

	s.logger.Info("model trained",
		"bundle_id", b.ID,
		"samples", res.SampleCount,
		"clean_rows", res.CleanRows,
		"train", res.TrainCount,
		"test", res.TestCount,
		"anomaly_rate", res.AnomalyRate,
		"test_accuracy", res.Metrics["accuracy"],
		"test_auc", res.Metrics["auc"],
	)
	return b, res, nil
}

func subset(vectors []features.Vector, labels []int, idx []int) (*mat.Dense, []int) {
	rows := make([]features.Vector, len(idx))
	out := make([]int, len(idx))
	for i, j := range idx {
		rows[i] = vectors[j]
		out[i] = labels[j]
	}
	return stack.Matrix(rows), out
}
