package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Assessments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_sentinel_assessments_total",
		Help: "Assessments served, by tier and source",
	}, []string{"tier", "source"})
	AssessmentCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_sentinel_assessment_cache_hits_total",
		Help: "Assessments answered from the redis cache",
	})
	AssessmentScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_sentinel_assessment_score",
		Help:    "Distribution of aggregate anomaly scores",
		Buckets: []float64{0, 0.1, 0.2, 0.33, 0.5, 0.66, 0.8, 1, 1.5},
	})
	TrainingRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_sentinel_training_runs_total",
		Help: "Model training attempts by outcome",
	}, []string{"outcome"})
	TrainingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_sentinel_training_duration_seconds",
		Help:    "Model training duration seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	IngestedSamples = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_sentinel_ingested_samples_total",
		Help: "Device samples stored from MQTT",
	})
	IngestErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_sentinel_ingest_errors_total",
		Help: "MQTT payloads rejected or failed to store",
	})
)

func init() {
	prometheus.MustRegister(Assessments, AssessmentCacheHits, AssessmentScore, TrainingRuns, TrainingDuration, IngestedSamples, IngestErrors)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveAssessment(tier, source string, score float64) {
	Assessments.WithLabelValues(tier, source).Inc()
	AssessmentScore.Observe(score)
}

// ObserveTraining records one training attempt; d is ignored for failures.
func ObserveTraining(err error, d time.Duration) {
	if err != nil {
		TrainingRuns.WithLabelValues("error").Inc()
		return
	}
	TrainingRuns.WithLabelValues("success").Inc()
	TrainingDuration.Observe(d.Seconds())
}
