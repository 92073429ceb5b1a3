package domain

import "errors"

var (
	// ErrInstrumentUnreachable is fatal for a session: the connection could not
	// be opened or stopped answering.
	ErrInstrumentUnreachable = errors.New("instrument unreachable")
	// ErrAcquisitionTimeout ends collection early; data captured so far is kept.
	ErrAcquisitionTimeout = errors.New("acquisition timeout")
	ErrShapeMismatch      = errors.New("waveform shape mismatch")
	ErrWindowMismatch     = errors.New("window mismatch")
	// ErrInsufficientBaseline means no samples precede the window.
	ErrInsufficientBaseline = errors.New("insufficient baseline")
	ErrFitDidNotConverge    = errors.New("fit did not converge")
	// ErrEmptyWindow is reported when a window selects no samples.
	ErrEmptyWindow    = errors.New("empty window")
	ErrInvalidScaling = errors.New("invalid scaling coefficients")
	// ErrJournalPending refuses a new session while the capture journal holds
	// entries of an earlier session whose table was never written.
	ErrJournalPending = errors.New("capture journal holds uncommitted captures")
)
