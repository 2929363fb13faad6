package bundle

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"pulse-sentinel/internal/ml/features"
	"pulse-sentinel/internal/ml/stack"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"
)

const (
	formatVersion = uint32(1)
	maxIDLength   = 256

	// Upper bounds on header shapes, checked before anything is allocated.
	maxLayers = 4 * stack.DefaultLayers
	maxNodes  = 4 * stack.DefaultNodes
)

var magic = [4]byte{'P', 'S', 'B', 'N'}

var (
	ErrNotFound = errors.New("model bundle not found")
	ErrCorrupt  = errors.New("model bundle corrupt")
)

// Bundle is the persisted, immutable result of one training run.
type Bundle struct {
	ID        string
	TrainedAt time.Time
	Params    *stack.Params
}

type Info struct {
	ID        string         `json:"id"`
	TrainedAt time.Time      `json:"trained_at"`
	Topology  stack.Topology `json:"topology"`
}

func (b *Bundle) Info() Info {
	return Info{ID: b.ID, TrainedAt: b.TrainedAt, Topology: b.Params.Topology}
}

type header struct {
	Magic     [4]byte
	Version   uint32
	Layers    int64
	Features  int64
	Nodes     int64
	TrainedAt int64
	IDLength  uint16
}

// Encode writes the bundle header followed by every matrix in a fixed order:
// first weights, layer weights, biases, regression heads.
func Encode(w io.Writer, b *Bundle) error {
	if b == nil || b.Params == nil {
		return errors.New("nil bundle")
	}
	if err := b.Params.Validate(); err != nil {
		return err
	}
	if len(b.ID) > maxIDLength {
		return fmt.Errorf("bundle id too long: %d bytes", len(b.ID))
	}
	p := b.Params
	h := header{
		Magic:     magic,
		Version:   formatVersion,
		Layers:    int64(p.Layers),
		Features:  int64(p.Features),
		Nodes:     int64(p.Nodes),
		TrainedAt: b.TrainedAt.UTC().UnixNano(),
		IDLength:  uint16(len(b.ID)),
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	if _, err := io.WriteString(w, b.ID); err != nil {
		return err
	}
	for _, m := range matrices(p) {
		if _, err := m.MarshalBinaryTo(w); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a bundle written by Encode and validates its shapes.
func Decode(r io.Reader) (*Bundle, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Magic != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, h.Magic[:])
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	if h.IDLength > maxIDLength {
		return nil, fmt.Errorf("%w: id length %d", ErrCorrupt, h.IDLength)
	}
	id := make([]byte, h.IDLength)
	if _, err := io.ReadFull(r, id); err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrCorrupt, err)
	}

	if err := checkShape(h); err != nil {
		return nil, err
	}
	topo := stack.Topology{Layers: int(h.Layers), Features: int(h.Features), Nodes: int(h.Nodes)}
	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	p := &stack.Params{
		Topology:     topo,
		LayerWeights: make([]*mat.Dense, topo.Layers-1),
		Betas:        make([]*mat.Dense, topo.Layers),
	}
	next := func() (*mat.Dense, error) {
		var m mat.Dense
		if _, err := m.UnmarshalBinaryFrom(r); err != nil {
			return nil, fmt.Errorf("%w: matrix: %v", ErrCorrupt, err)
		}
		return &m, nil
	}

	var err error
	if p.FirstWeights, err = next(); err != nil {
		return nil, err
	}
	for i := range p.LayerWeights {
		if p.LayerWeights[i], err = next(); err != nil {
			return nil, err
		}
	}
	if p.Biases, err = next(); err != nil {
		return nil, err
	}
	for i := range p.Betas {
		if p.Betas[i], err = next(); err != nil {
			return nil, err
		}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &Bundle{
		ID:        string(id),
		TrainedAt: time.Unix(0, h.TrainedAt).UTC(),
		Params:    p,
	}, nil
}

func checkShape(h header) error {
	switch {
	case h.Features != features.Count:
		return fmt.Errorf("%w: %d features, want %d", ErrCorrupt, h.Features, features.Count)
	case h.Layers < 1 || h.Layers > maxLayers:
		return fmt.Errorf("%w: layer count %d out of range", ErrCorrupt, h.Layers)
	case h.Nodes < 1 || h.Nodes > maxNodes:
		return fmt.Errorf("%w: node count %d out of range", ErrCorrupt, h.Nodes)
	}
	return nil
}

func matrices(p *stack.Params) []*mat.Dense {
	out := make([]*mat.Dense, 0, 2+len(p.LayerWeights)+len(p.Betas))
	out = append(out, p.FirstWeights)
	out = append(out, p.LayerWeights...)
	out = append(out, p.Biases)
	out = append(out, p.Betas...)
	return out
}

// FileStore keeps the single model bundle at a fixed path.
type FileStore struct {
	path   string
	tracer trace.Tracer
}

func NewFileStore(path string, tracer trace.Tracer) *FileStore {
	return &FileStore{path: path, tracer: tracer}
}

func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *FileStore) Load(ctx context.Context) (*Bundle, error) {
	_, span := s.tracer.Start(ctx, "model-bundle.load")
	defer span.End()
	span.SetAttributes(attribute.String("bundle.path", s.path))

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	b, err := Decode(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return b, nil
}

// Save writes the bundle to a temporary sibling file and renames it into place,
// so readers never observe a partial bundle.
func (s *FileStore) Save(ctx context.Context, b *Bundle) error {
	_, span := s.tracer.Start(ctx, "model-bundle.save")
	defer span.End()
	span.SetAttributes(attribute.String("bundle.path", s.path))

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".bundle-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriterSize(tmp, 1<<20)
	if err := Encode(w, b); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
