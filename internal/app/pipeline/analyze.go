package pipeline

import (
	"fmt"
	"time"

	"github.com/ghalamif/PulseFlow/internal/app/config"
	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/fit"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/pulse"
	"github.com/ghalamif/PulseFlow/internal/store"
)

// RunMeta labels every metric written by one analysis.
type RunMeta struct {
	RunID    string
	DeviceID string
	Setting  float64
}

// Analysis is the outcome of RunAnalysis. Fit is nil when fitting failed;
// FitErr then says why.
type Analysis struct {
	Kind    domain.MetricKind
	Metrics []domain.PulseMetric
	Fit     *fit.Result
	FitErr  error
}

// NewExtractor builds the extractor an analysis section describes.
func NewExtractor(cfg config.AnalysisConfig, obs ports.Observability) (*pulse.Extractor, error) {
	pol, err := pulse.ParsePolarity(cfg.Polarity)
	if err != nil {
		return nil, err
	}
	return pulse.NewExtractor(cfg.Window, pulse.Options{
		Resistance:      cfg.Resistance,
		Polarity:        pol,
		BaselineCorrect: cfg.BaselineEnabled(),
	}, obs)
}

// RunAnalysis extracts the configured metric from every waveform of coll,
// writes the metrics to sink and fits the configured model to their
// distribution. Extraction and sink errors abort; a fit that does not
// converge is reported in Analysis.FitErr with the metrics intact.
func RunAnalysis(coll *store.Collection, cfg config.AnalysisConfig, meta RunMeta, sink ports.MetricSink, obs ports.Observability) (*Analysis, error) {
	kind, err := domain.ParseMetricKind(cfg.Metric)
	if err != nil {
		return nil, err
	}
	model, err := fit.ModelByName(cfg.Model)
	if err != nil {
		return nil, err
	}
	ex, err := NewExtractor(cfg, obs)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	metrics, err := ex.Extract(coll, kind)
	if err != nil {
		return nil, err
	}
	for i := range metrics {
		metrics[i].RunID = meta.RunID
		metrics[i].DeviceID = meta.DeviceID
		metrics[i].Setting = meta.Setting
	}
	obs.LogInfo("metrics_extracted",
		ports.Field{Key: "kind", Value: string(kind)},
		ports.Field{Key: "waveforms", Value: len(metrics)})

	if sink != nil && len(metrics) > 0 {
		if err := writeBatch(sink, metrics, obs); err != nil {
			return nil, err
		}
	}

	out := &Analysis{Kind: kind, Metrics: metrics}
	if len(metrics) == 0 {
		out.FitErr = fmt.Errorf("no %s values to fit", kind)
		return out, nil
	}
	res, err := fit.Fit(domain.Values(metrics), cfg.Bins, model)
	if err != nil {
		obs.LogWarn("fit_failed", err, ports.Field{Key: "model", Value: model.Name()})
		out.FitErr = err
		return out, nil
	}
	out.Fit = res
	fields := []ports.Field{
		{Key: "model", Value: res.Model},
		{Key: "r2", Value: res.RSquared},
		{Key: "iterations", Value: res.Iterations},
	}
	for i, name := range res.ParamNames {
		fields = append(fields, ports.Field{Key: name, Value: res.Params[i]})
	}
	obs.LogInfo("fit_converged", fields...)
	return out, nil
}

// ExportAverage writes the mean window-selected pulse of coll to path as a
// single-waveform table named "average".
func ExportAverage(coll *store.Collection, cfg config.AnalysisConfig, path string, obs ports.Observability) (domain.Waveform, error) {
	ex, err := NewExtractor(cfg, obs)
	if err != nil {
		return domain.Waveform{}, err
	}
	avg, err := ex.Average(coll)
	if err != nil {
		return domain.Waveform{}, err
	}
	out := store.NewCollection()
	if err := out.AppendNamed("average", avg); err != nil {
		return domain.Waveform{}, err
	}
	if err := store.SaveFile(path, out); err != nil {
		return domain.Waveform{}, err
	}
	return avg, nil
}

func writeBatch(sink ports.MetricSink, metrics []domain.PulseMetric, obs ports.Observability) error {
	start := time.Now()
	if err := sink.WriteBatch(metrics); err != nil {
		obs.LogError("sink_write_failed", err, ports.Field{Key: "sink", Value: sink.Name()})
		return fmt.Errorf("sink %s: %w", sink.Name(), err)
	}
	obs.ObserveLatency("pulse_sink_latency_seconds", time.Since(start).Seconds())
	obs.IncCounter("pulse_metrics_written_total", float64(len(metrics)))
	return nil
}
