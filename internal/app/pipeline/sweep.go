package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ghalamif/PulseFlow/internal/app/config"
	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/store"
)

// SweepInput is one waveform table taken at one instrument setting.
type SweepInput struct {
	Setting float64
	Path    string
}

// SweepPoint is the averaged pulse of one setting.
type SweepPoint struct {
	Setting   float64
	Waveforms int
	Charge    float64
	Peak      float64
}

// RunSweep averages the window-selected pulses of every input and reports the
// magnitude of charge and peak of each average, sorted by setting.
func RunSweep(inputs []SweepInput, cfg config.AnalysisConfig, obs ports.Observability) ([]SweepPoint, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("sweep: no inputs")
	}
	ex, err := NewExtractor(cfg, obs)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	points := make([]SweepPoint, 0, len(inputs))
	for _, in := range inputs {
		coll, err := store.LoadFile(in.Path)
		if err != nil {
			return nil, fmt.Errorf("sweep %g: %w", in.Setting, err)
		}
		avg, err := ex.Average(coll)
		if err != nil {
			return nil, fmt.Errorf("sweep %g (%s): %w", in.Setting, in.Path, err)
		}
		sum, err := ex.Summarize(avg)
		if err != nil {
			return nil, fmt.Errorf("sweep %g (%s): %w", in.Setting, in.Path, err)
		}
		p := SweepPoint{
			Setting:   in.Setting,
			Waveforms: coll.Len(),
			Charge:    sum.Charge,
			Peak:      sum.Peak.Height(),
		}
		obs.LogInfo("sweep_point",
			ports.Field{Key: "setting", Value: p.Setting},
			ports.Field{Key: "waveforms", Value: p.Waveforms},
			ports.Field{Key: "charge", Value: p.Charge},
			ports.Field{Key: "peak", Value: p.Peak})
		points = append(points, p)
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Setting < points[j].Setting })
	return points, nil
}

// SweepMetrics returns the kind metric of every point for a sink.
func SweepMetrics(points []SweepPoint, meta RunMeta, kind domain.MetricKind) []domain.PulseMetric {
	out := make([]domain.PulseMetric, 0, len(points))
	for _, p := range points {
		m := domain.PulseMetric{RunID: meta.RunID, DeviceID: meta.DeviceID, Setting: p.Setting, Waveform: "average", Kind: kind}
		if kind == domain.MetricPeak {
			m.Value = p.Peak
		} else {
			m.Value = p.Charge
		}
		out = append(out, m)
	}
	return out
}

// WriteSweepMetrics writes the charge batch and then the peak batch of points
// to sink. Each batch carries a single metric kind.
func WriteSweepMetrics(points []SweepPoint, meta RunMeta, sink ports.MetricSink, obs ports.Observability) error {
	for _, kind := range []domain.MetricKind{domain.MetricCharge, domain.MetricPeak} {
		if err := writeBatch(sink, SweepMetrics(points, meta, kind), obs); err != nil {
			return err
		}
	}
	return nil
}

// WriteSweepCSV writes setting,waveforms,charge,peak rows to path. The table
// is written to a temporary file and renamed over path.
func WriteSweepCSV(path string, points []SweepPoint) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := writeSweep(tmp, points); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeSweep(f *os.File, points []SweepPoint) error {
	w := csv.NewWriter(f)
	if err := w.Write([]string{"setting", "waveforms", "charge", "peak"}); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			strconv.FormatFloat(p.Setting, 'g', -1, 64),
			strconv.Itoa(p.Waveforms),
			strconv.FormatFloat(p.Charge, 'g', -1, 64),
			strconv.FormatFloat(p.Peak, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
