package domain

import "fmt"

// MetricKind names the scalar derived from a single pulse.
type MetricKind string

const (
	MetricCharge MetricKind = "charge"
	MetricPeak   MetricKind = "peak"
)

// Unit returns the SI unit of the metric.
func (k MetricKind) Unit() string {
	switch k {
	case MetricCharge:
		return "C"
	case MetricPeak:
		return "V"
	default:
		return ""
	}
}

func ParseMetricKind(s string) (MetricKind, error) {
	switch MetricKind(s) {
	case MetricCharge, MetricPeak:
		return MetricKind(s), nil
	default:
		return "", fmt.Errorf("unknown metric %q (want charge or peak)", s)
	}
}

// PulseMetric is one scalar computed from one waveform under one window.
// Setting carries the instrument setting the waveform was taken at, usually
// the detector supply voltage.
type PulseMetric struct {
	RunID    string     `json:"run_id" db:"run_id"`
	DeviceID string     `json:"device_id" db:"device_id"`
	Setting  float64    `json:"setting" db:"setting"`
	Waveform string     `json:"waveform" db:"waveform"`
	Kind     MetricKind `json:"kind" db:"kind"`
	Value    float64    `json:"value" db:"value"`
}

// Values extracts the metric values in order.
func Values(metrics []PulseMetric) []float64 {
	out := make([]float64, len(metrics))
	for i, m := range metrics {
		out[i] = m.Value
	}
	return out
}
