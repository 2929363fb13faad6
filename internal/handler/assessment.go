package handler

import (
	"net/http"
	"strconv"
	"strings"

	"pulse-sentinel/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const maxUploadBytes = 8 << 20

// AssessmentRequest carries one week of averaged wearable metrics. Every
// field is required.
type AssessmentRequest struct {
	SleepDuration    *float64 `json:"sleep_duration" binding:"required" example:"7.5"`
	StepCount        *float64 `json:"step_count" binding:"required" example:"7000"`
	RestingHeartRate *float64 `json:"resting_heart_rate" binding:"required" example:"70"`
	StressLevel      *float64 `json:"stress_level" binding:"required" example:"0.3"`
	SleepOnsetTime   *float64 `json:"sleep_onset_time" binding:"required" example:"20"`
	HRDayAvg         *float64 `json:"HR_day_avg" binding:"required" example:"80"`
	HRSleepMin       *float64 `json:"HR_sleep_min" binding:"required" example:"55"`
}

func (r AssessmentRequest) WeeklyAverages() domain.WeeklyAverages {
	return domain.WeeklyAverages{
		SleepDuration:    *r.SleepDuration,
		StepCount:        *r.StepCount,
		RestingHeartRate: *r.RestingHeartRate,
		StressLevel:      *r.StressLevel,
		SleepOnsetTime:   *r.SleepOnsetTime,
		HRDayAvg:         *r.HRDayAvg,
		HRSleepMin:       *r.HRSleepMin,
	}
}

// UploadResponse is returned for CSV uploads.
type UploadResponse struct {
	Rows       int                `json:"rows"`
	Assessment *domain.Assessment `json:"assessment"`
}

// CreateAssessment godoc
// @Summary      Assess weekly wearable metrics
// @Description  Scores one week of averaged metrics and returns the anomaly tier, headline and remedies
// @Tags         assessments
// @Accept       json
// @Produce      json
// @Param        request  body      AssessmentRequest  true  "Weekly averages"
// @Success      200      {object}  domain.Assessment
// @Failure      400      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /api/assessments [post]
func (h *Handler) CreateAssessment(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.create-assessment")
	defer span.End()

	var req AssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	a, err := h.assessments.Assess(ctx, domain.SourceAPI, req.WeeklyAverages())
	if err != nil {
		span.RecordError(err)
		abortWithError(c, err)
		return
	}
	span.SetAttributes(attribute.String("assessment.tier", string(a.Tier)))
	c.JSON(http.StatusOK, a)
}

// UploadAssessment godoc
// @Summary      Assess an uploaded CSV of daily readings
// @Description  Averages every row of the uploaded CSV into one weekly snapshot and assesses it
// @Tags         assessments
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "CSV with sleep_duration, step_count, resting_heart_rate, stress_level, sleep_onset_time, HR_day_avg, HR_sleep_min columns"
// @Success      200   {object}  UploadResponse
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/assessments/upload [post]
func (h *Handler) UploadAssessment(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.upload-assessment")
	defer span.End()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing csv file in form field \"file\""})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	span.SetAttributes(attribute.String("upload.filename", header.Filename), attribute.Int64("upload.size", header.Size))

	a, rows, err := h.assessments.AssessCSV(ctx, f)
	if err != nil {
		span.RecordError(err)
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, UploadResponse{Rows: rows, Assessment: a})
}

// ListAssessments godoc
// @Summary      List recent assessments
// @Description  Returns the most recent stored assessments, newest first
// @Tags         assessments
// @Produce      json
// @Param        tier   query  string  false  "Filter by tier (none, minor, major)"
// @Param        limit  query  int     false  "Number of assessments (default 20, max 200)"  default(20)
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]string
// @Failure      503    {object}  map[string]string
// @Router       /api/assessments [get]
func (h *Handler) ListAssessments(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-assessments")
	defer span.End()

	var filter domain.AssessmentFilter
	if raw := strings.ToLower(strings.TrimSpace(c.Query("tier"))); raw != "" {
		tier := domain.Tier(raw)
		if !tier.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported tier: " + raw})
			return
		}
		filter.Tier = &tier
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = n
	}

	out, err := h.assessments.ListRecent(ctx, filter)
	if err != nil {
		span.RecordError(err)
		abortWithError(c, err)
		return
	}
	if out == nil {
		out = []domain.Assessment{}
	}
	c.JSON(http.StatusOK, gin.H{"assessments": out, "count": len(out)})
}
