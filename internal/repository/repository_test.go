package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"pulse-sentinel/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace/noop"
)

var testTracer = noop.NewTracerProvider().Tracer("repository-test")

type fakeRows struct {
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.pos-1], nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *int:
			*p = row[i].(int)
		case *float64:
			*p = row[i].(float64)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type fakeBatchResults struct {
	execs   int
	failAt  int
	failErr error
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	b.execs++
	if b.failErr != nil && b.execs == b.failAt {
		return pgconn.CommandTag{}, b.failErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}
func (b *fakeBatchResults) Query() (pgx.Rows, error) { return &fakeRows{}, nil }
func (b *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (b *fakeBatchResults) Close() error             { return nil }

type fakePool struct {
	execSQL   []string
	execArgs  [][]any
	batch     *pgx.Batch
	results   *fakeBatchResults
	querySQL  string
	queryArgs []any
	rows      *fakeRows
	queryErr  error
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	p.execArgs = append(p.execArgs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (p *fakePool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	p.batch = b
	if p.results == nil {
		p.results = &fakeBatchResults{}
	}
	return p.results
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.querySQL = sql
	p.queryArgs = args
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.rows == nil {
		p.rows = &fakeRows{}
	}
	return p.rows, nil
}

func TestRunMigrationsCreatesTables(t *testing.T) {
	pool := &fakePool{}
	if err := NewSampleRepository(pool, testTracer).RunMigrations(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(pool.execSQL) != 2 || !strings.Contains(pool.execSQL[0], "sensor_samples") || !strings.Contains(pool.execSQL[1], "idx_assessments_tier_created_at") {
		t.Fatalf("unexpected ddl: %v", pool.execSQL)
	}
}

func TestUpsertSamplesQueuesOnePerSample(t *testing.T) {
	pool := &fakePool{}
	repo := NewSampleRepository(pool, testTracer)
	samples := []domain.RawSample{
		{UserID: "a", DayIndex: 0, SleepDuration: 7},
		{UserID: "a", DayIndex: 1, SleepDuration: 8},
	}
	if err := repo.UpsertSamples(context.Background(), samples); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if pool.batch.Len() != 2 || pool.results.execs != 2 {
		t.Fatalf("expected 2 queued and executed, got %d/%d", pool.batch.Len(), pool.results.execs)
	}
	if args := pool.batch.QueuedQueries[1].Arguments; args[0] != "a" || args[1] != 1 || args[2] != 8.0 {
		t.Fatalf("unexpected arguments: %v", args)
	}
}

func TestUpsertSamplesEmptyIsNoop(t *testing.T) {
	pool := &fakePool{}
	if err := NewSampleRepository(pool, testTracer).UpsertSamples(context.Background(), nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if pool.batch != nil {
		t.Fatal("empty upsert should not send a batch")
	}
}

func TestUpsertSamplesPropagatesBatchError(t *testing.T) {
	boom := errors.New("constraint violated")
	pool := &fakePool{results: &fakeBatchResults{failAt: 2, failErr: boom}}
	err := NewSampleRepository(pool, testTracer).UpsertSamples(context.Background(), []domain.RawSample{{UserID: "a"}, {UserID: "b"}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected batch error, got %v", err)
	}
}

func TestListSamplesScansRows(t *testing.T) {
	pool := &fakePool{rows: &fakeRows{data: [][]any{
		{"a", 0, 7.0, 8000.0, 60.0, 0.2, 15.0, 80.0, 55.0},
		{"a", 1, 6.5, 9000.0, 61.0, 0.3, 20.0, 82.0, 56.0},
	}}}
	samples, err := NewSampleRepository(pool, testTracer).ListSamples(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(samples) != 2 || samples[1].DayIndex != 1 || samples[1].HRSleepMin != 56 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
	if !strings.Contains(pool.querySQL, "ORDER BY user_id, day_index") {
		t.Fatalf("samples must be ordered by user and day: %s", pool.querySQL)
	}
}

func TestInsertAssessmentEncodesJSON(t *testing.T) {
	pool := &fakePool{}
	a := domain.Assessment{
		ID:        "0b7c1e9a-0000-4000-8000-000000000001",
		Source:    domain.SourceAPI,
		Input:     domain.DefaultWeeklyAverages(),
		Score:     0.4,
		Tier:      domain.TierMinor,
		ModelID:   "m1",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600)),
	}
	if err := NewAssessmentRepository(pool, testTracer).InsertAssessment(context.Background(), a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	args := pool.execArgs[0]
	if !strings.Contains(args[2].(string), `"sleep_duration":7.5`) {
		t.Fatalf("input not encoded: %v", args[2])
	}
	if args[6] != "[]" {
		t.Fatalf("nil remedies should be stored as empty array, got %v", args[6])
	}
	if args[8].(time.Time).Location() != time.UTC {
		t.Fatal("created_at should be stored in UTC")
	}
}

func TestListAssessmentsDecodesAndFilters(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pool := &fakePool{rows: &fakeRows{data: [][]any{{
		"id-1", "api", `{"sleep_duration":6,"step_count":4000}`, 0.5, "minor", "m1",
		`[{"factor":"Step count","advice":"walk"}]`, "", created,
	}}}}
	tier := domain.TierMinor
	out, err := NewAssessmentRepository(pool, testTracer).ListAssessments(context.Background(), domain.AssessmentFilter{Tier: &tier, Limit: 1000})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one assessment, got %d", len(out))
	}
	got := out[0]
	if got.Input.StepCount != 4000 || got.Tier != domain.TierMinor || got.Headline != "Minor anomaly detected." {
		t.Fatalf("unexpected assessment: %+v", got)
	}
	if len(got.Remedies) != 1 || got.Remedies[0].Factor != "Step count" {
		t.Fatalf("remedies not decoded: %+v", got.Remedies)
	}
	if pool.queryArgs[0] != "minor" || pool.queryArgs[1] != maxAssessmentLimit {
		t.Fatalf("unexpected query args: %v", pool.queryArgs)
	}
}

func TestListAssessmentsDefaultLimitNoTier(t *testing.T) {
	pool := &fakePool{}
	if _, err := NewAssessmentRepository(pool, testTracer).ListAssessments(context.Background(), domain.AssessmentFilter{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if pool.queryArgs[0] != nil || pool.queryArgs[1] != defaultAssessmentLimit {
		t.Fatalf("unexpected query args: %v", pool.queryArgs)
	}
}
