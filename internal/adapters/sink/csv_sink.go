package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// CSVSink writes a batch as a two column table: waveform,<kind>. Each batch
// replaces the file.
type CSVSink struct {
	path string
}

func NewCSVSink(path string) *CSVSink { return &CSVSink{path: path} }

func (s *CSVSink) Name() string { return "csv:" + s.path }

func (s *CSVSink) WriteBatch(metrics []domain.PulseMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	kind := metrics[0].Kind
	for _, m := range metrics {
		if m.Kind != kind {
			return fmt.Errorf("csv sink: mixed metric kinds %q and %q", kind, m.Kind)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".metrics-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := writeMetrics(tmp, kind, metrics); err != nil {
		tmp.Close()
		return fmt.Errorf("csv sink %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func writeMetrics(f *os.File, kind domain.MetricKind, metrics []domain.PulseMetric) error {
	w := csv.NewWriter(f)
	if err := w.Write([]string{"waveform", string(kind)}); err != nil {
		return err
	}
	for _, m := range metrics {
		if err := w.Write([]string{m.Waveform, strconv.FormatFloat(m.Value, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadCSV loads a table written by CSVSink.
func ReadCSV(path string) ([]domain.PulseMetric, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 || rows[0][0] != "waveform" {
		return nil, fmt.Errorf("read %s: missing waveform header", path)
	}
	kind, err := domain.ParseMetricKind(rows[0][1])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := make([]domain.PulseMetric, 0, len(rows)-1)
	for i, row := range rows[1:] {
		v, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", path, i+2, err)
		}
		out = append(out, domain.PulseMetric{Waveform: row[0], Kind: kind, Value: v})
	}
	return out, nil
}

// Multi fans one batch out to several sinks, stopping at the first failure.
type Multi []ports.MetricSink

func (m Multi) Name() string { return "multi" }

func (m Multi) WriteBatch(metrics []domain.PulseMetric) error {
	for _, s := range m {
		if err := s.WriteBatch(metrics); err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return nil
}

var (
	_ ports.MetricSink = (*CSVSink)(nil)
	_ ports.MetricSink = Multi(nil)
)
