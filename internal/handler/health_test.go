package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulse-sentinel/internal/domain"
	"pulse-sentinel/internal/ml/bundle"
	"pulse-sentinel/internal/ml/stack"
	"pulse-sentinel/internal/ml/training"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace/noop"
)

var testTracer = noop.NewTracerProvider().Tracer("handler-test")

type stubAssessor struct {
	got      domain.WeeklyAverages
	source   string
	csv      string
	filter   domain.AssessmentFilter
	listed   []domain.Assessment
	err      error
	csvRows  int
	assessed int
}

func (s *stubAssessor) Assess(ctx context.Context, source string, w domain.WeeklyAverages) (*domain.Assessment, error) {
	s.assessed++
	s.got = w
	s.source = source
	if s.err != nil {
		return nil, s.err
	}
	tier := domain.TierMinor
	return &domain.Assessment{ID: "a1", Source: source, Input: w, Score: 0.4, Tier: tier, Headline: tier.Headline()}, nil
}

func (s *stubAssessor) AssessCSV(ctx context.Context, r io.Reader) (*domain.Assessment, int, error) {
	data, _ := io.ReadAll(r)
	s.csv = string(data)
	if s.err != nil {
		return nil, 0, s.err
	}
	return &domain.Assessment{ID: "a2", Source: domain.SourceUpload, Tier: domain.TierNone}, s.csvRows, nil
}

func (s *stubAssessor) ListRecent(ctx context.Context, filter domain.AssessmentFilter) ([]domain.Assessment, error) {
	s.filter = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.listed, nil
}

type stubModels struct {
	model   *bundle.Bundle
	trained bool
	result  *training.Result
	err     error
	calls   int
}

func (s *stubModels) Loaded() (*bundle.Bundle, bool) {
	return s.model, s.model != nil
}

func (s *stubModels) EnsureModel(ctx context.Context) (bool, *training.Result, error) {
	s.calls++
	if s.err != nil {
		return false, nil, s.err
	}
	if s.model == nil {
		s.model = testBundle()
	}
	return s.trained, s.result, nil
}

func testBundle() *bundle.Bundle {
	return &bundle.Bundle{
		ID:        "m1",
		TrainedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Params:    &stack.Params{Topology: stack.DefaultTopology()},
	}
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error: %v (%s)", err, w.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	r := newTestRouter(New(testTracer, &stubAssessor{}, &stubModels{model: testBundle()}, ""))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "healthy" || body["model_loaded"] != true {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHealthWithoutModelService(t *testing.T) {
	r := newTestRouter(New(testTracer, &stubAssessor{}, nil, ""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if body := decodeBody(t, w); body["model_loaded"] != false {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	r := newTestRouter(New(testTracer, &stubAssessor{}, nil, ""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
