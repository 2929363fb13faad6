// Package app assembles the assessment stack shared by the HTTP, SSH and MCP
// entry points.
package app

import (
	"context"
	"log/slog"
	"time"

	"pulse-sentinel/internal/advisor"
	"pulse-sentinel/internal/config"
	"pulse-sentinel/internal/dataset"
	"pulse-sentinel/internal/ml/bundle"
	"pulse-sentinel/internal/ml/inference"
	"pulse-sentinel/internal/ml/registry"
	"pulse-sentinel/internal/ml/training"
	"pulse-sentinel/internal/repository"
	"pulse-sentinel/internal/service"

	"go.opentelemetry.io/otel/trace"
)

var newLLMClient = advisor.NewOpenAIClient

type Components struct {
	Models      *inference.Service
	Trainer     *training.Service
	Assessments *service.AssessmentService
	// Samples and Bundles are nil when Postgres is not configured or, for
	// Bundles, when bundles are kept on disk.
	Samples *repository.SampleRepository
	Bundles *registry.Repository
}

// Migrate creates the tables used by the configured Postgres components.
func (c *Components) Migrate(ctx context.Context) error {
	if c.Samples != nil {
		if err := c.Samples.RunMigrations(ctx); err != nil {
			return err
		}
	}
	if c.Bundles != nil {
		return c.Bundles.RunMigrations(ctx)
	}
	return nil
}

// Build wires the model, storage, cache and narrator. pool and cache are
// optional; pass untyped nil when the backing store is unavailable.
func Build(cfg *config.Config, tracer trace.Tracer, pool repository.PgxPool, cache service.RedisClient) *Components {
	c := &Components{}

	var store service.AssessmentStore
	if pool != nil {
		c.Samples = repository.NewSampleRepository(pool, tracer)
		store = repository.NewAssessmentRepository(pool, tracer)
	}

	var source training.SampleSource = dataset.NewFileSource(cfg.MLTrainingCSV, tracer)
	if cfg.MLSampleSource == config.SampleSourcePostgres {
		if c.Samples != nil {
			source = c.Samples
		} else {
			slog.Warn("ML_SAMPLE_SOURCE=postgres but no database, training from csv", "path", cfg.MLTrainingCSV)
		}
	}

	opts := training.DefaultOptions()
	opts.WeightSeed = cfg.MLWeightSeed
	c.Trainer = training.NewService(tracer, source, opts, nil)

	var bundles inference.BundleStore = bundle.NewFileStore(cfg.MLBundlePath, tracer)
	if cfg.MLBundleStore == config.BundleStorePostgres {
		if pool != nil {
			c.Bundles = registry.NewRepository(pool, tracer)
			bundles = c.Bundles
		} else {
			slog.Warn("ML_BUNDLE_STORE=postgres but no database, keeping bundle on disk", "path", cfg.MLBundlePath)
		}
	}
	c.Models = inference.NewService(tracer, bundles, c.Trainer)

	var narrator service.Narrator
	if cfg.OpenAIAPIKey != "" {
		narrator = advisor.NewAdvisorService(tracer, newLLMClient(cfg.OpenAIAPIKey), cfg.OpenAIModel).
			WithRateLimit(cfg.OpenAIMaxCallsPerMinute, time.Minute)
		slog.Info("narrative advice enabled", "model", cfg.OpenAIModel, "max_calls_per_minute", cfg.OpenAIMaxCallsPerMinute)
	}

	cacheTTL := time.Duration(cfg.MLAssessmentCacheSecs) * time.Second
	c.Assessments = service.NewAssessmentService(tracer, c.Models, store, cache, narrator, cacheTTL)
	return c
}
