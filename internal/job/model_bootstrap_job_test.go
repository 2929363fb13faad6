package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"pulse-sentinel/internal/ml/training"

	"go.opentelemetry.io/otel/trace/noop"
)

var testTracer = noop.NewTracerProvider().Tracer("test")

type stubModels struct {
	failures int32
	calls    atomic.Int32
	trained  bool
}

func (s *stubModels) EnsureModel(ctx context.Context) (bool, *training.Result, error) {
	n := s.calls.Add(1)
	if n <= s.failures {
		return false, nil, errors.New("no samples yet")
	}
	if s.trained {
		return true, &training.Result{BundleID: "m1", Metrics: map[string]float64{"auc": 0.8}}, nil
	}
	return false, nil, nil
}

func TestNewModelBootstrapJobDefaultInterval(t *testing.T) {
	j := NewModelBootstrapJob(testTracer, &stubModels{}, 0)
	if j.retryInterval != defaultRetryInterval {
		t.Fatalf("expected default interval, got %v", j.retryInterval)
	}
}

func TestModelBootstrapJobStopsAfterSuccess(t *testing.T) {
	models := &stubModels{trained: true}
	NewModelBootstrapJob(testTracer, models, time.Millisecond).Start(context.Background())
	if models.calls.Load() != 1 {
		t.Fatalf("expected one attempt, got %d", models.calls.Load())
	}
}

func TestModelBootstrapJobRetries(t *testing.T) {
	t.Parallel()

	models := &stubModels{failures: 2}
	done := make(chan struct{})
	go func() {
		NewModelBootstrapJob(testTracer, models, time.Millisecond).Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bootstrap did not finish")
	}
	if models.calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", models.calls.Load())
	}
}

func TestModelBootstrapJobCancelled(t *testing.T) {
	t.Parallel()

	models := &stubModels{failures: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewModelBootstrapJob(testTracer, models, time.Hour).Start(ctx)
		close(done)
	}()

	eventually(t, func() bool { return models.calls.Load() > 0 })
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bootstrap did not stop on cancel")
	}
}

func TestModelBootstrapJobWithoutService(t *testing.T) {
	NewModelBootstrapJob(testTracer, nil, time.Millisecond).Start(context.Background())
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
