package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"pulse-sentinel/internal/ml/bundle"
	"pulse-sentinel/internal/ml/features"
	"pulse-sentinel/internal/ml/stack"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace/noop"
	"gonum.org/v1/gonum/mat"
)

var testTracer = noop.NewTracerProvider().Tracer("registry-test")

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
		case *[]byte:
			*p = row[i].([]byte)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type fakePool struct {
	rows     *fakeRows
	queryErr error
	execErr  error
	execSQL  string
	execArgs []any
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = sql
	p.execArgs = args
	return pgconn.CommandTag{}, p.execErr
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.rows, nil
}

func testBundle(t *testing.T) *bundle.Bundle {
	t.Helper()
	topo := stack.Topology{Layers: 2, Features: features.Count, Nodes: 4}
	rng := rand.New(rand.NewSource(3))
	p, err := stack.NewRandomParams(topo, rng)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	p.Betas = make([]*mat.Dense, topo.Layers)
	for i := range p.Betas {
		data := make([]float64, topo.DesignWidth(i)*stack.Classes)
		for j := range data {
			data[j] = rng.NormFloat64() * 0.01
		}
		p.Betas[i] = mat.NewDense(topo.DesignWidth(i), stack.Classes, data)
	}
	return &bundle.Bundle{
		ID:        "b-1",
		TrainedAt: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
		Params:    p,
	}
}

func TestSaveEncodesAndActivates(t *testing.T) {
	pool := &fakePool{}
	repo := NewRepository(pool, testTracer)
	b := testBundle(t)

	if err := repo.Save(context.Background(), b); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.Contains(pool.execSQL, "SET is_active = FALSE") || !strings.Contains(pool.execSQL, "INSERT INTO model_bundles") {
		t.Fatalf("unexpected sql: %s", pool.execSQL)
	}
	if pool.execArgs[0] != "b-1" || pool.execArgs[2] != 2 || pool.execArgs[4] != 4 {
		t.Fatalf("unexpected args: %v", pool.execArgs[:5])
	}
	artifact := pool.execArgs[5].([]byte)
	decoded, err := bundle.Decode(bytes.NewReader(artifact))
	if err != nil {
		t.Fatalf("artifact does not decode: %v", err)
	}
	if decoded.ID != b.ID || !decoded.TrainedAt.Equal(b.TrainedAt) {
		t.Fatalf("unexpected decoded bundle: %s %v", decoded.ID, decoded.TrainedAt)
	}
}

func TestSaveRejectsNil(t *testing.T) {
	repo := NewRepository(&fakePool{}, testTracer)
	if err := repo.Save(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil bundle")
	}
}

func TestLoadActiveBundle(t *testing.T) {
	var buf bytes.Buffer
	if err := bundle.Encode(&buf, testBundle(t)); err != nil {
		t.Fatal(err)
	}
	pool := &fakePool{rows: &fakeRows{data: [][]any{{"b-1", buf.Bytes()}}}}

	b, err := NewRepository(pool, testTracer).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b.ID != "b-1" || b.Params.Nodes != 4 {
		t.Fatalf("unexpected bundle: %+v", b.Info())
	}
}

func TestLoadNotFound(t *testing.T) {
	pool := &fakePool{rows: &fakeRows{}}
	if _, err := NewRepository(pool, testTracer).Load(context.Background()); !errors.Is(err, bundle.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCorruptArtifact(t *testing.T) {
	pool := &fakePool{rows: &fakeRows{data: [][]any{{"b-2", []byte("garbage")}}}}
	_, err := NewRepository(pool, testTracer).Load(context.Background())
	if !errors.Is(err, bundle.ErrCorrupt) || !strings.Contains(err.Error(), "b-2") {
		t.Fatalf("expected corrupt error naming the bundle, got %v", err)
	}
}

func TestLoadQueryError(t *testing.T) {
	boom := errors.New("relation model_bundles does not exist")
	pool := &fakePool{queryErr: boom}
	if _, err := NewRepository(pool, testTracer).Load(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestRunMigrationsUsesBundleScript(t *testing.T) {
	pool := &fakePool{}
	if err := NewRepository(pool, testTracer).RunMigrations(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(pool.execSQL, "CREATE TABLE IF NOT EXISTS model_bundles") {
		t.Fatalf("unexpected ddl: %s", pool.execSQL)
	}
}
