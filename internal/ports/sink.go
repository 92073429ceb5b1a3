package ports

import "github.com/ghalamif/PulseFlow/internal/domain"

// MetricSink persists per-pulse metrics.
type MetricSink interface {
	WriteBatch(metrics []domain.PulseMetric) error
	Name() string
}
