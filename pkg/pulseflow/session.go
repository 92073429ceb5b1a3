package pulseflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/PulseFlow/internal/adapters/journal"
	"github.com/ghalamif/PulseFlow/internal/adapters/observability"
	"github.com/ghalamif/PulseFlow/internal/adapters/scpi"
	"github.com/ghalamif/PulseFlow/internal/adapters/sink"
	"github.com/ghalamif/PulseFlow/internal/app/acquisition"
	"github.com/ghalamif/PulseFlow/internal/app/pipeline"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/store"
)

// SessionOption customizes the dependencies used by a Session.
type SessionOption func(*sessionOverrides)

type sessionOverrides struct {
	instrument    Instrument
	dialer        Dialer
	journal       CaptureJournal
	observability Observability
	sink          MetricSink
	runID         string
}

// WithInstrument uses an already open instrument. The caller keeps ownership
// and closes it.
func WithInstrument(inst Instrument) SessionOption {
	return func(o *sessionOverrides) {
		o.instrument = inst
	}
}

// WithDialer replaces the SCPI dialer, e.g. with a simulator. Instruments it
// returns are closed at the end of every acquisition.
func WithDialer(d Dialer) SessionOption {
	return func(o *sessionOverrides) {
		o.dialer = d
	}
}

// WithJournal lets callers bring their own capture journal.
func WithJournal(j CaptureJournal) SessionOption {
	return func(o *sessionOverrides) {
		o.journal = j
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) SessionOption {
	return func(o *sessionOverrides) {
		o.observability = obs
	}
}

// WithSink adds a metric sink next to the CSV table; it replaces the SQL sink
// from the configuration.
func WithSink(s MetricSink) SessionOption {
	return func(o *sessionOverrides) {
		o.sink = s
	}
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) SessionOption {
	return func(o *sessionOverrides) {
		o.runID = id
	}
}

// AcquireResult describes one finished acquisition. Persisted reports
// whether the table at Output was written.
type AcquireResult struct {
	RunID     string
	Identity  string
	Output    string
	Waveforms int
	Persisted bool
	Report    Report
}

// Session ties an instrument, a capture journal and the analysis stages to
// one configuration. Every metric it writes carries the same run ID.
type Session struct {
	cfg      *Config
	runID    string
	obs      ports.Observability
	registry *prometheus.Registry

	instrument ports.Instrument
	dial       ports.Dialer

	journalMu  sync.Mutex
	journal    ports.CaptureJournal
	ownJournal bool

	sink    ports.MetricSink
	sqlSink *sink.SQLSink

	metricsOnce sync.Once
	metricsSrv  *http.Server
	gaugeStopCh chan struct{}
}

// NewSession validates cfg and bootstraps the default adapters (SCPI dialer,
// file journal, Prometheus observability, SQL sink when sink.driver is set).
// SessionOption values override any of them.
func NewSession(cfg *Config, opts ...SessionOption) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var overrides sessionOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	s := &Session{
		cfg:        cfg,
		runID:      overrides.runID,
		instrument: overrides.instrument,
		dial:       overrides.dialer,
		journal:    overrides.journal,
		sink:       overrides.sink,
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}

	s.obs = overrides.observability
	if s.obs == nil {
		s.registry = prometheus.NewRegistry()
		s.obs = observability.NewPromObs(s.registry, nil)
	}

	if s.dial == nil {
		s.dial = scpi.NewDialer(cfg.Instrument.Timeout)
	}

	if s.sink == nil && cfg.Sink.Driver != "" {
		sq, err := sink.OpenSQLSink(cfg.Sink.Driver, cfg.Sink.DSN, cfg.Sink.Table)
		if err != nil {
			return nil, err
		}
		if err := sq.EnsureTable(); err != nil {
			sq.Close()
			return nil, fmt.Errorf("sink table %s: %w", cfg.Sink.Table, err)
		}
		s.sqlSink = sq
		s.sink = sq
	}
	return s, nil
}

func (s *Session) RunID() string { return s.runID }

func (s *Session) Config() *Config { return s.cfg }

// Gatherer exposes the session's Prometheus registry. It is nil when a
// custom Observability was injected.
func (s *Session) Gatherer() prometheus.Gatherer {
	if s.registry == nil {
		return nil
	}
	return s.registry
}

// Acquire opens the instrument, runs one acquisition session and writes the
// waveform table to acquisition.output. The table is written even when the
// session ends early. Every terminal error is a *SessionError and the result
// is always filled in. A journal still holding captures of an earlier
// session fails with ErrJournalPending before the instrument is opened.
func (s *Session) Acquire(ctx context.Context) (*AcquireResult, error) {
	s.startMetrics()

	res := &AcquireResult{
		RunID:  s.runID,
		Output: s.cfg.Acquisition.Output,
		Report: Report{Requested: s.cfg.Acquisition.TargetCount},
	}
	abort := func(err error) (*AcquireResult, error) {
		return res, &SessionError{Requested: s.cfg.Acquisition.TargetCount, Err: err}
	}

	j, err := s.openJournal()
	if err != nil {
		return abort(err)
	}
	if err := pipeline.CheckJournal(j); err != nil {
		s.obs.LogCritical("journal_pending", err)
		return abort(err)
	}

	inst := s.instrument
	if inst == nil {
		inst, err = s.dial(s.cfg.Instrument.Resource)
		if err != nil {
			s.obs.LogCritical("instrument_unreachable", err, ports.Field{Key: "resource", Value: s.cfg.Instrument.Resource})
			return abort(err)
		}
		defer func() {
			if cerr := inst.Close(); cerr != nil {
				s.obs.LogError("instrument_close_failed", cerr)
			}
		}()
	}

	ctl := acquisition.NewController(inst, s.cfg.Instrument, s.cfg.Acquisition, s.obs,
		acquisition.WithJournal(j), acquisition.WithSessionID(s.runID))
	s.obs.LogInfo("acquisition_started",
		ports.Field{Key: "run_id", Value: s.runID},
		ports.Field{Key: "resource", Value: s.cfg.Instrument.Resource},
		ports.Field{Key: "device_id", Value: s.cfg.Acquisition.DeviceID})

	coll, rep, err := pipeline.RunAcquisition(ctx, ctl, j, s.cfg.Acquisition.Output, s.obs)
	res.Identity = ctl.Identity()
	res.Waveforms = coll.Len()
	res.Report = rep
	var se *SessionError
	switch {
	case err == nil:
		res.Persisted = true
	case errors.As(err, &se):
		res.Persisted = se.Persisted
	default:
		err = &SessionError{Captured: rep.Captured, Requested: rep.Requested, Err: err}
	}
	return res, err
}

// Analyze extracts the configured metric from the waveform table at path,
// writes it to analysis.output and any extra sink, and fits the model.
func (s *Session) Analyze(path string) (*Analysis, error) {
	coll, err := store.LoadFile(path)
	if err != nil {
		return nil, err
	}
	out := sink.Multi{sink.NewCSVSink(s.cfg.Analysis.Output)}
	if s.sink != nil {
		out = append(out, s.sink)
	}
	return pipeline.RunAnalysis(coll, s.cfg.Analysis, s.meta(), out, s.obs)
}

// Average writes the mean window-selected pulse of the table at path to out.
func (s *Session) Average(path, out string) (Waveform, error) {
	coll, err := store.LoadFile(path)
	if err != nil {
		return Waveform{}, err
	}
	return pipeline.ExportAverage(coll, s.cfg.Analysis, out, s.obs)
}

// Sweep summarises one averaged pulse per input table. Points go to output
// as CSV when output is set, and to the extra sink when there is one, as a
// charge batch followed by a peak batch.
func (s *Session) Sweep(inputs []SweepInput, output string) ([]SweepPoint, error) {
	points, err := pipeline.RunSweep(inputs, s.cfg.Analysis, s.obs)
	if err != nil {
		return nil, err
	}
	if output != "" {
		if err := pipeline.WriteSweepCSV(output, points); err != nil {
			return points, err
		}
	}
	if s.sink != nil {
		if err := pipeline.WriteSweepMetrics(points, s.meta(), s.sink, s.obs); err != nil {
			return points, err
		}
	}
	return points, nil
}

// Recover rebuilds a waveform table at output from the uncommitted journal
// entries of the oldest interrupted acquisition. Recovery.Pending counts the
// entries of later sessions; call Recover again to rebuild them.
func (s *Session) Recover(output string) (Recovery, error) {
	j, err := s.openJournal()
	if err != nil {
		return Recovery{}, err
	}
	_, rec, err := pipeline.Recover(j, output, s.obs)
	return rec, err
}

// JournalStats reports the state of the capture journal.
func (s *Session) JournalStats() (JournalStats, error) {
	j, err := s.openJournal()
	if err != nil {
		return JournalStats{}, err
	}
	return j.Stats(), nil
}

// Close stops the metrics server and releases the journal and the SQL sink.
func (s *Session) Close() error {
	var errs []error

	if s.gaugeStopCh != nil {
		close(s.gaugeStopCh)
		s.gaugeStopCh = nil
	}

	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	s.journalMu.Lock()
	if s.ownJournal && s.journal != nil {
		if err := s.journal.Close(); err != nil {
			errs = append(errs, err)
		}
		s.journal = nil
	}
	s.journalMu.Unlock()

	if s.sqlSink != nil {
		if err := s.sqlSink.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Session) meta() pipeline.RunMeta {
	return pipeline.RunMeta{
		RunID:    s.runID,
		DeviceID: s.cfg.Acquisition.DeviceID,
		Setting:  s.cfg.Acquisition.SupplyVoltage,
	}
}

func (s *Session) openJournal() (ports.CaptureJournal, error) {
	s.journalMu.Lock()
	defer s.journalMu.Unlock()
	if s.journal != nil {
		return s.journal, nil
	}
	j, err := journal.Open(s.cfg.Journal.Dir)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", s.cfg.Journal.Dir, err)
	}
	s.journal = j
	s.ownJournal = true
	return j, nil
}

func (s *Session) startMetrics() {
	if s.cfg.Metrics.Addr == "" {
		return
	}
	s.metricsOnce.Do(func() {
		var handler http.Handler = promhttp.Handler()
		if s.registry != nil {
			handler = promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		s.metricsSrv = &http.Server{
			Addr:    s.cfg.Metrics.Addr,
			Handler: mux,
		}

		go func() {
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.obs.LogError("metrics_server_exited", err)
			}
		}()

		s.gaugeStopCh = make(chan struct{})
		go s.recordJournalGauge(s.gaugeStopCh, time.Second)
	})
}

func (s *Session) recordJournalGauge(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.journalMu.Lock()
			j := s.journal
			s.journalMu.Unlock()
			if j != nil {
				s.obs.SetGauge("pulse_journal_size_bytes", float64(j.Stats().SizeBytes))
			}
		}
	}
}
