package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"pulse-sentinel/internal/dataset"
	"pulse-sentinel/internal/domain"
	"pulse-sentinel/internal/metrics"
	"pulse-sentinel/internal/ml/bundle"
	"pulse-sentinel/internal/ml/inference"
	"pulse-sentinel/internal/ml/training"
	"pulse-sentinel/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type Assessor interface {
	Assess(ctx context.Context, source string, w domain.WeeklyAverages) (*domain.Assessment, error)
	AssessCSV(ctx context.Context, r io.Reader) (*domain.Assessment, int, error)
	ListRecent(ctx context.Context, filter domain.AssessmentFilter) ([]domain.Assessment, error)
}

type ModelManager interface {
	Loaded() (*bundle.Bundle, bool)
	EnsureModel(ctx context.Context) (bool, *training.Result, error)
}

type Handler struct {
	tracer      trace.Tracer
	assessments Assessor
	models      ModelManager
	apiKey      string
}

func New(tracer trace.Tracer, assessments Assessor, models ModelManager, apiKey string) *Handler {
	return &Handler{
		tracer:      tracer,
		assessments: assessments,
		models:      models,
		apiKey:      apiKey,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.POST("/assessments", h.CreateAssessment)
	api.POST("/assessments/upload", h.UploadAssessment)
	api.GET("/assessments", h.ListAssessments)
	api.GET("/ml/model", h.GetModel)
	api.POST("/ml/train", APIKeyAuth(h.apiKey), h.TriggerTraining)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, dataset.ErrMissingColumns):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrStorageDisabled), errors.Is(err, inference.ErrNoModel):
		return http.StatusServiceUnavailable
	case errors.Is(err, training.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
