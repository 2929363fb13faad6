package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"pulse-sentinel/internal/domain"
	"pulse-sentinel/internal/metrics"
	"pulse-sentinel/internal/ml/bundle"
	"pulse-sentinel/internal/ml/features"
	"pulse-sentinel/internal/ml/training"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoModel = errors.New("no model available")

type BundleStore interface {
	Load(ctx context.Context) (*bundle.Bundle, error)
	Save(ctx context.Context, b *bundle.Bundle) error
}

type Trainer interface {
	Train(ctx context.Context) (*bundle.Bundle, training.Result, error)
}

type Prediction struct {
	Score    float64         `json:"score"`
	Tier     domain.Tier     `json:"tier"`
	ModelID  string          `json:"model_id"`
	Features features.Vector `json:"features"`
}

// Service owns the process-wide model. The first caller loads the persisted
// bundle or, when none exists, trains and persists one; concurrent callers
// wait for that single attempt. A failed attempt is not remembered.
type Service struct {
	tracer  trace.Tracer
	store   BundleStore
	trainer Trainer
	logger  *slog.Logger

	mu    sync.Mutex
	model *bundle.Bundle
}

func NewService(tracer trace.Tracer, store BundleStore, trainer Trainer) *Service {
	return &Service{
		tracer:  tracer,
		store:   store,
		trainer: trainer,
		logger:  slog.Default().With("component", "inference"),
	}
}

// Model returns the active bundle, initialising it on first use.
func (s *Service) Model(ctx context.Context) (*bundle.Bundle, error) {
	b, _, err := s.ensure(ctx)
	return b, err
}

// EnsureModel initialises the model if needed. trained reports whether this
// call had to fit a new bundle, in which case res describes the run.
func (s *Service) EnsureModel(ctx context.Context) (trained bool, res *training.Result, err error) {
	_, res, err = s.ensure(ctx)
	return res != nil, res, err
}

// Loaded reports the active bundle without triggering initialisation.
func (s *Service) Loaded() (*bundle.Bundle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model, s.model != nil
}

func (s *Service) ensure(ctx context.Context) (*bundle.Bundle, *training.Result, error) {
	ctx, span := s.tracer.Start(ctx, "ml-inference.ensure-model")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		return s.model, nil, nil
	}
	if s.store == nil {
		return nil, nil, ErrNoModel
	}

	b, err := s.store.Load(ctx)
	switch {
	case err == nil:
		if err := b.Params.Validate(); err != nil {
			return nil, nil, fmt.Errorf("persisted bundle: %w", err)
		}
		s.model = b
		s.logger.Info("model bundle loaded", "bundle_id", b.ID, "trained_at", b.TrainedAt)
		span.SetAttributes(attribute.String("bundle.id", b.ID), attribute.Bool("bundle.trained", false))
		return b, nil, nil
	case !errors.Is(err, bundle.ErrNotFound):
		span.RecordError(err)
		return nil, nil, err
	}

	if s.trainer == nil {
		return nil, nil, ErrNoModel
	}
	s.logger.Info("no persisted model bundle, training")
	b, res, err := s.trainAndPersist(ctx)
	metrics.ObserveTraining(err, res.Duration)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	s.model = b
	span.SetAttributes(attribute.String("bundle.id", b.ID), attribute.Bool("bundle.trained", true))
	return b, &res, nil
}

func (s *Service) trainAndPersist(ctx context.Context) (*bundle.Bundle, training.Result, error) {
	b, res, err := s.trainer.Train(ctx)
	if err != nil {
		return nil, res, fmt.Errorf("train model: %w", err)
	}
	if s.store != nil {
		if err := s.store.Save(ctx, b); err != nil {
			return nil, res, fmt.Errorf("persist model: %w", err)
		}
	}
	return b, res, nil
}

// Predict scores one set of weekly averages against the active model.
func (s *Service) Predict(ctx context.Context, w domain.WeeklyAverages) (Prediction, error) {
	ctx, span := s.tracer.Start(ctx, "ml-inference.predict")
	defer span.End()

	if err := w.Validate(); err != nil {
		return Prediction{}, err
	}
	b, err := s.Model(ctx)
	if err != nil {
		return Prediction{}, err
	}

	v := features.Snapshot(w)
	score, err := b.Params.Score(v)
	if err != nil {
		return Prediction{}, err
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Prediction{}, fmt.Errorf("model %s produced non-finite score", b.ID)
	}
	tier := domain.TierForScore(score)
	span.SetAttributes(
		attribute.String("bundle.id", b.ID),
		attribute.Float64("prediction.score", score),
		attribute.String("prediction.tier", string(tier)),
	)
	return Prediction{Score: score, Tier: tier, ModelID: b.ID, Features: v}, nil
}
