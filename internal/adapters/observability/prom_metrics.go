package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/PulseFlow/internal/ports"
)

// LevelCritical sits above slog.LevelError for session-ending failures.
const LevelCritical = slog.Level(12)

type PromObs struct {
	log      *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the pulse collectors on reg (the default registerer
// when nil) and logs through logger (a bracketed stderr logger when nil).
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.New(NewHandler(os.Stderr, nil))
	}

	captures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_captures_total",
		Help: "Waveforms captured and appended to the collection.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_capture_failures_total",
		Help: "Captures that failed and were skipped or aborted the session.",
	})
	timeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_capture_timeouts_total",
		Help: "Captures that hit the trigger deadline.",
	})
	metrics := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_metrics_written_total",
		Help: "Pulse metrics written to the metric sink.",
	})
	collection := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_collection_size",
		Help: "Waveforms in the current collection.",
	})
	journalSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_journal_size_bytes",
		Help: "Size of the capture journal on disk.",
	})
	triggerWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_trigger_wait_seconds",
		Help:    "Time from arming the instrument to a detected trigger.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	})
	sinkLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_sink_latency_seconds",
		Help:    "Time spent writing one metric batch to the sink.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(captures, failures, timeouts, metrics, collection, journalSize, triggerWait, sinkLatency)

	return &PromObs{
		log: logger,
		counters: map[string]prometheus.Counter{
			"pulse_captures_total":         captures,
			"pulse_capture_failures_total": failures,
			"pulse_capture_timeouts_total": timeouts,
			"pulse_metrics_written_total":  metrics,
		},
		gauges: map[string]prometheus.Gauge{
			"pulse_collection_size":    collection,
			"pulse_journal_size_bytes": journalSize,
		},
		histos: map[string]prometheus.Observer{
			"pulse_trigger_wait_seconds": triggerWait,
			"pulse_sink_latency_seconds": sinkLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, attrs(nil, fields)...)
}

func (p *PromObs) LogWarn(msg string, err error, fields ...ports.Field) {
	p.log.Warn(msg, attrs(err, fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, attrs(err, fields)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Log(context.Background(), LevelCritical, msg, attrs(err, fields)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordFailedCapture(seq uint64, err error) {
	p.IncCounter("pulse_capture_failures_total", 1)
	if err != nil {
		p.log.Warn("capture_failed", "seq", seq, "err", err)
	}
}

func attrs(err error, fields []ports.Field) []any {
	out := make([]any, 0, 2*len(fields)+2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	if err != nil {
		out = append(out, "err", err)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
