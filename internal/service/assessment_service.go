package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"pulse-sentinel/internal/dataset"
	"pulse-sentinel/internal/domain"
	"pulse-sentinel/internal/metrics"
	"pulse-sentinel/internal/ml/bundle"
	"pulse-sentinel/internal/ml/inference"
	"pulse-sentinel/internal/remedy"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrStorageDisabled = errors.New("assessment storage is not configured")

type Predictor interface {
	Model(ctx context.Context) (*bundle.Bundle, error)
	Predict(ctx context.Context, w domain.WeeklyAverages) (inference.Prediction, error)
}

type AssessmentStore interface {
	InsertAssessment(ctx context.Context, a domain.Assessment) error
	ListAssessments(ctx context.Context, filter domain.AssessmentFilter) ([]domain.Assessment, error)
}

// Narrator adds an optional free-text explanation to an assessment.
type Narrator interface {
	Narrate(ctx context.Context, a domain.Assessment) (string, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// cachedResult is what survives in redis; ids and timestamps are per request.
type cachedResult struct {
	Score     float64     `json:"score"`
	Tier      domain.Tier `json:"tier"`
	ModelID   string      `json:"model_id"`
	Narrative string      `json:"narrative,omitempty"`
}

// AssessmentService scores weekly averages and turns the result into a stored,
// user-facing assessment with headline, remedies and optional narrative.
type AssessmentService struct {
	tracer    trace.Tracer
	predictor Predictor
	store     AssessmentStore
	redis     RedisClient
	narrator  Narrator
	cacheTTL  time.Duration
	now       func() time.Time
	newID     func() string
}

func NewAssessmentService(
	tracer trace.Tracer,
	predictor Predictor,
	store AssessmentStore,
	redisClient RedisClient,
	narrator Narrator,
	cacheTTL time.Duration,
) *AssessmentService {
	return &AssessmentService{
		tracer:    tracer,
		predictor: predictor,
		store:     store,
		redis:     redisClient,
		narrator:  narrator,
		cacheTTL:  cacheTTL,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *AssessmentService) Assess(ctx context.Context, source string, w domain.WeeklyAverages) (*domain.Assessment, error) {
	ctx, span := s.tracer.Start(ctx, "assessment-service.assess")
	defer span.End()
	span.SetAttributes(attribute.String("assessment.source", source))

	if err := w.Validate(); err != nil {
		return nil, err
	}

	result, key, hit := s.lookup(ctx, w)
	if !hit {
		pred, err := s.predictor.Predict(ctx, w)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		result = cachedResult{Score: pred.Score, Tier: pred.Tier, ModelID: pred.ModelID}
	}

	a := &domain.Assessment{
		ID:        s.newID(),
		Source:    source,
		Input:     w,
		Score:     result.Score,
		Tier:      result.Tier,
		ModelID:   result.ModelID,
		Headline:  result.Tier.Headline(),
		Remedies:  remedy.ForTier(result.Tier, w),
		Narrative: result.Narrative,
		CreatedAt: s.now().UTC(),
	}

	if !hit {
		if s.narrator != nil {
			narrative, err := s.narrator.Narrate(ctx, *a)
			if err != nil {
				slog.Warn("narrative unavailable", "error", err)
			} else {
				a.Narrative = narrative
				result.Narrative = narrative
			}
		}
		s.remember(ctx, key, result)
	} else {
		metrics.AssessmentCacheHits.Inc()
	}

	if s.store != nil {
		if err := s.store.InsertAssessment(ctx, *a); err != nil {
			slog.Error("failed to store assessment", "assessment_id", a.ID, "error", err)
		}
	}

	metrics.ObserveAssessment(string(a.Tier), source, a.Score)
	span.SetAttributes(
		attribute.String("assessment.id", a.ID),
		attribute.String("assessment.tier", string(a.Tier)),
		attribute.Bool("assessment.cache_hit", hit),
	)
	return a, nil
}

// AssessCSV averages an uploaded multi-day table into one snapshot and
// assesses it. rows is the number of data rows averaged.
func (s *AssessmentService) AssessCSV(ctx context.Context, r io.Reader) (a *domain.Assessment, rows int, err error) {
	ctx, span := s.tracer.Start(ctx, "assessment-service.assess-csv")
	defer span.End()

	w, rows, err := dataset.AverageCSV(r)
	if err != nil {
		return nil, rows, err
	}
	span.SetAttributes(attribute.Int("upload.rows", rows))
	a, err = s.Assess(ctx, domain.SourceUpload, w)
	return a, rows, err
}

func (s *AssessmentService) ListRecent(ctx context.Context, filter domain.AssessmentFilter) ([]domain.Assessment, error) {
	ctx, span := s.tracer.Start(ctx, "assessment-service.list-recent")
	defer span.End()

	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	return s.store.ListAssessments(ctx, filter)
}

// lookup reads a cached result for the active model. The key is empty when
// caching is off or the model is not yet available.
func (s *AssessmentService) lookup(ctx context.Context, w domain.WeeklyAverages) (cachedResult, string, bool) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return cachedResult{}, "", false
	}
	b, err := s.predictor.Model(ctx)
	if err != nil {
		return cachedResult{}, "", false
	}
	key := cacheKey(b.ID, w)

	raw, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("redis cache read error", "error", err)
		}
		return cachedResult{}, key, false
	}
	var res cachedResult
	if err := json.Unmarshal(raw, &res); err != nil || !res.Tier.IsValid() {
		return cachedResult{}, key, false
	}
	return res, key, true
}

func (s *AssessmentService) remember(ctx context.Context, key string, res cachedResult) {
	if key == "" {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		slog.Warn("redis cache write error", "error", err)
	}
}

func cacheKey(modelID string, w domain.WeeklyAverages) string {
	var sb strings.Builder
	sb.WriteString("assessment:")
	sb.WriteString(modelID)
	for i, v := range w.Vector() {
		if i == 0 {
			sb.WriteByte(':')
		} else {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return sb.String()
}
