// Package registry keeps model bundles in Postgres so replicas sharing a
// database load the same model.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"pulse-sentinel/internal/db"
	"pulse-sentinel/internal/ml/bundle"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository is a bundle store backed by the model_bundles table. At most one
// row is active; Load returns it.
type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

func (r *Repository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "model-registry.run-migrations")
	defer span.End()

	sql, err := db.UpScript("0003_model_bundles")
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, sql)
	return err
}

func (r *Repository) Load(ctx context.Context) (*bundle.Bundle, error) {
	_, span := r.tracer.Start(ctx, "model-registry.load")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT id, artifact FROM model_bundles WHERE is_active ORDER BY trained_at DESC LIMIT 1`)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, bundle.ErrNotFound
	}
	var (
		id       string
		artifact []byte
	)
	if err := rows.Scan(&id, &artifact); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("bundle.id", id), attribute.Int("bundle.bytes", len(artifact)))

	b, err := bundle.Decode(bytes.NewReader(artifact))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load bundle %s: %w", id, err)
	}
	return b, nil
}

// Save inserts the bundle and makes it the only active row in one statement.
func (r *Repository) Save(ctx context.Context, b *bundle.Bundle) error {
	_, span := r.tracer.Start(ctx, "model-registry.save")
	defer span.End()

	if b == nil || b.Params == nil {
		return errors.New("nil bundle")
	}
	var buf bytes.Buffer
	if err := bundle.Encode(&buf, b); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("bundle.id", b.ID), attribute.Int("bundle.bytes", buf.Len()))

	p := b.Params
	_, err := r.pool.Exec(ctx, `
WITH retired AS (
    UPDATE model_bundles SET is_active = FALSE WHERE is_active
)
INSERT INTO model_bundles (id, trained_at, layers, features, nodes, artifact, is_active)
VALUES ($1, $2, $3, $4, $5, $6, TRUE)`,
		b.ID, b.TrainedAt.UTC(), p.Layers, p.Features, p.Nodes, buf.Bytes(),
	)
	if err != nil {
		span.RecordError(err)
	}
	return err
}
