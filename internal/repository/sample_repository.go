package repository

import (
	"context"
	"fmt"

	"pulse-sentinel/internal/db"
	"pulse-sentinel/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type SampleRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSampleRepository(pool PgxPool, tracer trace.Tracer) *SampleRepository {
	return &SampleRepository{pool: pool, tracer: tracer}
}

// RunMigrations applies the sample and assessment up scripts; they are
// idempotent, so running them after cmd/migrate is harmless.
func (r *SampleRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "sample-repo.run-migrations")
	defer span.End()

	for _, name := range []string{"0001_sensor_samples", "0002_assessments"} {
		sql, err := db.UpScript(name)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, sql); err != nil {
			span.RecordError(err)
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

// UpsertSamples stores device readings; a repeated (user, day) replaces the
// earlier reading.
func (r *SampleRepository) UpsertSamples(ctx context.Context, samples []domain.RawSample) error {
	if len(samples) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "sample-repo.upsert-samples")
	defer span.End()
	span.SetAttributes(attribute.Int("samples.count", len(samples)))

	batch := &pgx.Batch{}
	for _, s := range samples {
		batch.Queue(
			`INSERT INTO sensor_samples (user_id, day_index, sleep_duration, step_count, resting_heart_rate,
			     stress_level, sleep_onset_time, hr_day_avg, hr_sleep_min)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (user_id, day_index) DO UPDATE SET
			     sleep_duration = EXCLUDED.sleep_duration,
			     step_count = EXCLUDED.step_count,
			     resting_heart_rate = EXCLUDED.resting_heart_rate,
			     stress_level = EXCLUDED.stress_level,
			     sleep_onset_time = EXCLUDED.sleep_onset_time,
			     hr_day_avg = EXCLUDED.hr_day_avg,
			     hr_sleep_min = EXCLUDED.hr_sleep_min,
			     received_at = NOW()`,
			s.UserID, s.DayIndex, s.SleepDuration, s.StepCount, s.RestingHeartRate,
			s.StressLevel, s.SleepOnsetTime, s.HRDayAvg, s.HRSleepMin,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range samples {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// ListSamples returns the full history ordered by (user, day), ready for
// feature derivation.
func (r *SampleRepository) ListSamples(ctx context.Context) ([]domain.RawSample, error) {
	_, span := r.tracer.Start(ctx, "sample-repo.list-samples")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT user_id, day_index, sleep_duration, step_count, resting_heart_rate,
		        stress_level, sleep_onset_time, hr_day_avg, hr_sleep_min
		 FROM sensor_samples
		 ORDER BY user_id, day_index`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []domain.RawSample
	for rows.Next() {
		var s domain.RawSample
		if err := rows.Scan(
			&s.UserID, &s.DayIndex, &s.SleepDuration, &s.StepCount, &s.RestingHeartRate,
			&s.StressLevel, &s.SleepOnsetTime, &s.HRDayAvg, &s.HRSleepMin,
		); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
