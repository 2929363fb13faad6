package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pulse-sentinel/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	defaultAssessmentLimit = 20
	maxAssessmentLimit     = 200
)

type AssessmentRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewAssessmentRepository(pool PgxPool, tracer trace.Tracer) *AssessmentRepository {
	return &AssessmentRepository{pool: pool, tracer: tracer}
}

func (r *AssessmentRepository) InsertAssessment(ctx context.Context, a domain.Assessment) error {
	_, span := r.tracer.Start(ctx, "assessment-repo.insert")
	defer span.End()

	input, err := json.Marshal(a.Input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	remedies := a.Remedies
	if remedies == nil {
		remedies = []domain.Remedy{}
	}
	remediesJSON, err := json.Marshal(remedies)
	if err != nil {
		return fmt.Errorf("encode remedies: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO assessments (id, source, input, score, tier, model_id, remedies, narrative, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Source, string(input), a.Score, string(a.Tier), a.ModelID, string(remediesJSON), a.Narrative, a.CreatedAt.UTC(),
	)
	return err
}

func (r *AssessmentRepository) ListAssessments(ctx context.Context, filter domain.AssessmentFilter) ([]domain.Assessment, error) {
	_, span := r.tracer.Start(ctx, "assessment-repo.list")
	defer span.End()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAssessmentLimit
	}
	if limit > maxAssessmentLimit {
		limit = maxAssessmentLimit
	}

	var tier any
	if filter.Tier != nil {
		tier = string(*filter.Tier)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id::text, source, input::text, score, tier, model_id, remedies::text, narrative, created_at
		 FROM assessments
		 WHERE ($1::text IS NULL OR tier = $1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		tier, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Assessment
	for rows.Next() {
		var (
			a            domain.Assessment
			tierText     string
			inputJSON    string
			remediesJSON string
			createdAt    time.Time
		)
		if err := rows.Scan(&a.ID, &a.Source, &inputJSON, &a.Score, &tierText, &a.ModelID, &remediesJSON, &a.Narrative, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(inputJSON), &a.Input); err != nil {
			return nil, fmt.Errorf("decode input of %s: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(remediesJSON), &a.Remedies); err != nil {
			return nil, fmt.Errorf("decode remedies of %s: %w", a.ID, err)
		}
		if len(a.Remedies) == 0 {
			a.Remedies = nil
		}
		a.Tier = domain.Tier(tierText)
		a.Headline = a.Tier.Headline()
		a.CreatedAt = createdAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
