package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"pulse-sentinel/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrMissingColumns = errors.New("csv is missing required columns")

// TrainingColumns is the header of a per-day training log.
var TrainingColumns = append([]string{"user_id", "day_index"}, domain.MetricNames[:]...)

// ReadSamples parses a per-day training log. Columns are located by name, so
// extra columns and any column order are accepted. Rows with a missing or
// unparseable value are skipped and counted in dropped.
func ReadSamples(r io.Reader) (samples []domain.RawSample, dropped int, err error) {
	cr := newReader(r)
	index, err := readHeader(cr, TrainingColumns)
	if err != nil {
		return nil, 0, err
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				dropped++
				continue
			}
			return nil, dropped, err
		}
		s, ok := parseSample(record, index)
		if !ok {
			dropped++
			continue
		}
		samples = append(samples, s)
	}
	return samples, dropped, nil
}

func parseSample(record []string, index map[string]int) (domain.RawSample, bool) {
	field := func(name string) (string, bool) {
		i := index[name]
		if i >= len(record) {
			return "", false
		}
		v := strings.TrimSpace(record[i])
		return v, v != ""
	}

	user, ok := field("user_id")
	if !ok {
		return domain.RawSample{}, false
	}
	dayRaw, ok := field("day_index")
	if !ok {
		return domain.RawSample{}, false
	}
	day, err := strconv.ParseFloat(dayRaw, 64)
	if err != nil || day != math.Trunc(day) {
		return domain.RawSample{}, false
	}

	var metrics [len(domain.MetricNames)]float64
	for i, name := range domain.MetricNames {
		raw, ok := field(name)
		if !ok {
			return domain.RawSample{}, false
		}
		v, err := parseFinite(raw)
		if err != nil {
			return domain.RawSample{}, false
		}
		metrics[i] = v
	}
	return domain.RawSample{
		UserID:           user,
		DayIndex:         int(day),
		SleepDuration:    metrics[0],
		StepCount:        metrics[1],
		RestingHeartRate: metrics[2],
		StressLevel:      metrics[3],
		SleepOnsetTime:   metrics[4],
		HRDayAvg:         metrics[5],
		HRSleepMin:       metrics[6],
	}, true
}

// AverageCSV collapses an uploaded multi-day table into one weekly snapshot by
// taking the arithmetic mean of each metric column. Every data row must carry
// a numeric value for every metric.
func AverageCSV(r io.Reader) (domain.WeeklyAverages, int, error) {
	cr := newReader(r)
	index, err := readHeader(cr, domain.MetricNames[:])
	if err != nil {
		return domain.WeeklyAverages{}, 0, err
	}

	var sums [len(domain.MetricNames)]float64
	rows := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.WeeklyAverages{}, rows, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		if blank(record) {
			continue
		}
		rows++
		for i, name := range domain.MetricNames {
			col := index[name]
			if col >= len(record) {
				return domain.WeeklyAverages{}, rows, fmt.Errorf("%w: row %d has no %s value", domain.ErrInvalidInput, rows, name)
			}
			v, err := parseFinite(strings.TrimSpace(record[col]))
			if err != nil {
				return domain.WeeklyAverages{}, rows, fmt.Errorf("%w: row %d %s: %v", domain.ErrInvalidInput, rows, name, err)
			}
			sums[i] += v
		}
	}
	if rows == 0 {
		return domain.WeeklyAverages{}, 0, fmt.Errorf("%w: csv has no data rows", domain.ErrInvalidInput)
	}

	means := make([]float64, len(sums))
	for i, s := range sums {
		means[i] = s / float64(rows)
	}
	w, err := domain.WeeklyAveragesFromSlice(means)
	return w, rows, err
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return cr
}

func readHeader(cr *csv.Reader, required []string) (map[string]int, error) {
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	var missing []string
	for _, name := range required {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return index, nil
}

func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not finite", raw)
	}
	return v, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// FileSource serves training samples from a CSV log on disk.
type FileSource struct {
	path   string
	tracer trace.Tracer
}

func NewFileSource(path string, tracer trace.Tracer) *FileSource {
	return &FileSource{path: path, tracer: tracer}
}

func (s *FileSource) ListSamples(ctx context.Context) ([]domain.RawSample, error) {
	_, span := s.tracer.Start(ctx, "dataset.list-samples")
	defer span.End()
	span.SetAttributes(attribute.String("dataset.path", s.path))

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open training data: %w", err)
	}
	defer f.Close()

	samples, dropped, err := ReadSamples(f)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if dropped > 0 {
		slog.Warn("skipped malformed training rows", "path", s.path, "dropped", dropped)
	}
	span.SetAttributes(attribute.Int("dataset.samples", len(samples)), attribute.Int("dataset.dropped", dropped))
	return samples, nil
}
