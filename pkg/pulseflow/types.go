package pulseflow

import (
	"github.com/ghalamif/PulseFlow/internal/app/acquisition"
	"github.com/ghalamif/PulseFlow/internal/app/pipeline"
	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/fit"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// Instrument is the command capability an oscilloscope exposes.
type Instrument = ports.Instrument

// Dialer opens an Instrument for a resource string.
type Dialer = ports.Dialer

// Observability emits logs and metrics about captures, failures and sinks.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// CaptureJournal durably records raw captures during a session.
type CaptureJournal = ports.CaptureJournal

// JournalStats exposes journal metadata for observability.
type JournalStats = ports.JournalStats

// MetricSink persists pulse metrics to any downstream system.
type MetricSink = ports.MetricSink

type (
	Waveform    = domain.Waveform
	Capture     = domain.Capture
	PulseMetric = domain.PulseMetric
	MetricKind  = domain.MetricKind
	SweepInput  = pipeline.SweepInput
	SweepPoint  = pipeline.SweepPoint
	Recovery    = pipeline.Recovery
)

type (
	// Report summarises one acquisition session.
	Report = acquisition.Report
	// SessionError ends an acquisition early; captured waveforms are kept.
	SessionError = acquisition.SessionError
	// Analysis holds extracted metrics and the distribution fit.
	Analysis = pipeline.Analysis
	// FitResult holds fitted parameters, their errors and R².
	FitResult = fit.Result
)

var (
	ErrInstrumentUnreachable = domain.ErrInstrumentUnreachable
	ErrAcquisitionTimeout    = domain.ErrAcquisitionTimeout
	ErrShapeMismatch         = domain.ErrShapeMismatch
	ErrWindowMismatch        = domain.ErrWindowMismatch
	ErrInsufficientBaseline  = domain.ErrInsufficientBaseline
	ErrFitDidNotConverge     = domain.ErrFitDidNotConverge
	ErrEmptyWindow           = domain.ErrEmptyWindow
	ErrInvalidScaling        = domain.ErrInvalidScaling
	ErrJournalPending        = domain.ErrJournalPending
)
