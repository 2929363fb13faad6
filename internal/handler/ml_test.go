package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulse-sentinel/internal/ml/training"
)

func TestGetModelNotLoaded(t *testing.T) {
	r := newTestRouter(New(testTracer, &stubAssessor{}, &stubModels{}, ""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ml/model", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["loaded"] != false {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestGetModelLoaded(t *testing.T) {
	r := newTestRouter(New(testTracer, &stubAssessor{}, &stubModels{model: testBundle()}, ""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ml/model", nil))

	body := decodeBody(t, w)
	model, ok := body["model"].(map[string]any)
	if !ok || model["id"] != "m1" {
		t.Fatalf("unexpected body: %v", body)
	}
	topology := model["topology"].(map[string]any)
	if topology["layers"] != float64(10) || topology["nodes"] != float64(2048) {
		t.Fatalf("unexpected topology: %v", topology)
	}
}

func TestGetModelServiceUnavailable(t *testing.T) {
	r := newTestRouter(New(testTracer, &stubAssessor{}, nil, ""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ml/model", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestTriggerTrainingTrains(t *testing.T) {
	models := &stubModels{trained: true, result: &training.Result{BundleID: "m1", CleanRows: 120}}
	r := newTestRouter(New(testTracer, &stubAssessor{}, models, ""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ml/train", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["trained"] != true || body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
	if res := body["result"].(map[string]any); res["clean_rows"] != float64(120) {
		t.Fatalf("unexpected result: %v", res)
	}
}

func TestTriggerTrainingKeepsExistingModel(t *testing.T) {
	models := &stubModels{model: testBundle()}
	r := newTestRouter(New(testTracer, &stubAssessor{}, models, ""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ml/train", nil))

	body := decodeBody(t, w)
	if body["trained"] != false {
		t.Fatalf("existing model should not be retrained: %v", body)
	}
	if _, ok := body["result"]; ok {
		t.Fatalf("no training result expected: %v", body)
	}
}

func TestTriggerTrainingErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("train model: %w", training.ErrInsufficientData), http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newTestRouter(New(testTracer, &stubAssessor{}, &stubModels{err: tc.err}, ""))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ml/train", nil))
		if w.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestTriggerTrainingRequiresAPIKey(t *testing.T) {
	models := &stubModels{}
	r := newTestRouter(New(testTracer, &stubAssessor{}, models, "secret"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ml/train", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ml/train", nil)
	req.Header.Set("X-API-Key", "wrong")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/ml/train", nil)
	req.Header.Set("X-API-Key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if models.calls != 1 {
		t.Fatalf("expected one training call, got %d", models.calls)
	}
}
