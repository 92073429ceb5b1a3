package pulseflow

import (
	base "github.com/ghalamif/PulseFlow/pkg/pulseflow"
)

// Re-exported errors for convenience.
var (
	ErrInstrumentUnreachable = base.ErrInstrumentUnreachable
	ErrAcquisitionTimeout    = base.ErrAcquisitionTimeout
	ErrShapeMismatch         = base.ErrShapeMismatch
	ErrWindowMismatch        = base.ErrWindowMismatch
	ErrInsufficientBaseline  = base.ErrInsufficientBaseline
	ErrFitDidNotConverge     = base.ErrFitDidNotConverge
	ErrEmptyWindow           = base.ErrEmptyWindow
	ErrInvalidScaling        = base.ErrInvalidScaling
	ErrJournalPending        = base.ErrJournalPending
	ErrChannelSinkClosed     = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/PulseFlow directly.
type (
	Config            = base.Config
	InstrumentConfig  = base.InstrumentConfig
	Commands          = base.Commands
	AcquisitionConfig = base.AcquisitionConfig
	Policy            = base.Policy
	AnalysisConfig    = base.AnalysisConfig
	Window            = base.Window
	SinkConfig        = base.SinkConfig
	MetricsConfig     = base.MetricsConfig
	JournalConfig     = base.JournalConfig
	Session           = base.Session
	SessionOption     = base.SessionOption
	AcquireResult     = base.AcquireResult
	Report            = base.Report
	SessionError      = base.SessionError
	Analysis          = base.Analysis
	FitResult         = base.FitResult
	SweepInput        = base.SweepInput
	SweepPoint        = base.SweepPoint
	Recovery          = base.Recovery
	Instrument        = base.Instrument
	Dialer            = base.Dialer
	Observability     = base.Observability
	Field             = base.Field
	CaptureJournal    = base.CaptureJournal
	JournalStats      = base.JournalStats
	MetricSink        = base.MetricSink
	MetricBatchSink   = base.MetricBatchSink
	Waveform          = base.Waveform
	Capture           = base.Capture
	PulseMetric       = base.PulseMetric
	MetricKind        = base.MetricKind
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Session and options.
func NewSession(cfg *Config, opts ...SessionOption) (*Session, error) {
	return base.NewSession(cfg, opts...)
}

func WithInstrument(inst Instrument) SessionOption {
	return base.WithInstrument(inst)
}

func WithDialer(d Dialer) SessionOption {
	return base.WithDialer(d)
}

func WithJournal(j CaptureJournal) SessionOption {
	return base.WithJournal(j)
}

func WithObservability(obs Observability) SessionOption {
	return base.WithObservability(obs)
}

func WithSink(s MetricSink) SessionOption {
	return base.WithSink(s)
}

func WithRunID(id string) SessionOption {
	return base.WithRunID(id)
}

// Sink adapters.
func NewCallbackSink(name string, fn MetricBatchSink) MetricSink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (MetricSink, <-chan []PulseMetric, func()) {
	return base.NewChannelSink(name, buffer)
}
