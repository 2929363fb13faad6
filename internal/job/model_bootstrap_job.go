package job

import (
	"context"
	"log/slog"
	"time"

	"pulse-sentinel/internal/ml/training"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultRetryInterval = 30 * time.Second
	maxRetryInterval     = 10 * time.Minute
)

type ModelInitializer interface {
	EnsureModel(ctx context.Context) (bool, *training.Result, error)
}

// ModelBootstrapJob makes the model ready at startup instead of on the first
// request. Failures are retried with doubling back-off until one attempt
// succeeds or ctx is cancelled.
type ModelBootstrapJob struct {
	tracer        trace.Tracer
	models        ModelInitializer
	retryInterval time.Duration
}

func NewModelBootstrapJob(tracer trace.Tracer, models ModelInitializer, retryInterval time.Duration) *ModelBootstrapJob {
	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}
	return &ModelBootstrapJob{tracer: tracer, models: models, retryInterval: retryInterval}
}

// Start blocks until the model is ready or ctx is cancelled.
func (j *ModelBootstrapJob) Start(ctx context.Context) {
	if j.models == nil {
		slog.Info("model bootstrap disabled: no model service")
		return
	}
	wait := j.retryInterval
	for attempt := 1; ; attempt++ {
		if err := j.runOnce(ctx, attempt); err == nil {
			return
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		wait *= 2
		if wait > maxRetryInterval {
			wait = maxRetryInterval
		}
	}
}

func (j *ModelBootstrapJob) runOnce(ctx context.Context, attempt int) error {
	ctx, span := j.tracer.Start(ctx, "model-bootstrap-job.run-once")
	defer span.End()
	span.SetAttributes(attribute.Int("attempt", attempt))

	trained, res, err := j.models.EnsureModel(ctx)
	if err != nil {
		span.RecordError(err)
		slog.Error("model bootstrap failed", "attempt", attempt, "error", err)
		return err
	}
	if !trained || res == nil {
		slog.Info("model ready from persisted bundle")
		return nil
	}
	slog.Info("model trained at startup",
		"bundle_id", res.BundleID,
		"clean_rows", res.CleanRows,
		"train", res.TrainCount,
		"test", res.TestCount,
		"auc", res.Metrics["auc"],
		"duration", res.Duration,
	)
	return nil
}
