package acquisition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/store"
)

// Report summarises one session.
type Report struct {
	Requested int // 0 for deadline-driven sessions
	Captured  int
	Failed    int
	TimedOut  bool
	Elapsed   time.Duration
	// LastJournalID is the journal entry of the last appended capture.
	LastJournalID ports.JournalEntryID
}

// SessionError ends a session early. Captured waveforms stay in the
// collection; Persisted is filled in by whoever writes them out.
type SessionError struct {
	Captured  int
	Requested int
	Persisted bool
	Err       error
}

func (e *SessionError) Error() string {
	state := "not persisted"
	if e.Persisted {
		state = "persisted"
	}
	if e.Requested > 0 {
		return fmt.Sprintf("acquisition stopped after %d/%d waveforms (%s): %v", e.Captured, e.Requested, state, e.Err)
	}
	return fmt.Sprintf("acquisition stopped after %d waveforms (%s): %v", e.Captured, state, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Run configures the instrument if needed and captures into coll until the
// target count is reached or the session duration elapses. Reaching the
// duration is a normal end; a per-capture timeout in a count-driven session
// is not.
func (c *Controller) Run(ctx context.Context, coll *store.Collection) (Report, error) {
	start := c.now()
	rep := Report{Requested: c.acq.TargetCount}
	fail := func(err error) (Report, error) {
		rep.Elapsed = c.now().Sub(start)
		return rep, &SessionError{Captured: rep.Captured, Requested: rep.Requested, Err: err}
	}

	if !c.configured {
		if err := c.Configure(); err != nil {
			c.obs.LogCritical("configure_failed", err)
			return fail(err)
		}
	}

	var sessionEnd time.Time
	if c.acq.Duration > 0 {
		sessionEnd = start.Add(c.acq.Duration)
	}
	consecutive := 0

	for {
		if rep.Requested > 0 && rep.Captured >= rep.Requested {
			break
		}
		if !sessionEnd.IsZero() && !c.now().Before(sessionEnd) {
			break
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		deadline := sessionEnd
		if deadline.IsZero() && c.acq.CaptureTimeout > 0 {
			deadline = c.now().Add(c.acq.CaptureTimeout)
		}

		seq := c.seq + 1
		capture, w, err := c.Capture(ctx, deadline)
		if err == nil {
			err = c.accept(coll, capture, w, &rep)
		}
		switch {
		case err == nil:
			consecutive = 0
			continue
		case errors.Is(err, domain.ErrAcquisitionTimeout):
			if !sessionEnd.IsZero() {
				// the session deadline passed while waiting; normal end
				c.obs.LogInfo("session_deadline_reached", ports.Field{Key: "captured", Value: rep.Captured})
				rep.Elapsed = c.now().Sub(start)
				return rep, nil
			}
			rep.TimedOut = true
			c.obs.IncCounter("pulse_capture_timeouts_total", 1)
			c.obs.LogWarn("capture_timeout", err,
				ports.Field{Key: "captured", Value: rep.Captured},
				ports.Field{Key: "requested", Value: rep.Requested})
			return fail(err)
		case errors.Is(err, domain.ErrInstrumentUnreachable), errors.Is(err, errJournal):
			c.obs.LogCritical("session_aborted", err, ports.Field{Key: "captured", Value: rep.Captured})
			return fail(err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return fail(err)
		}

		rep.Failed++
		consecutive++
		c.obs.RecordFailedCapture(seq, err)
		if c.acq.OnCaptureError == "abort" {
			return fail(err)
		}
		if c.acq.MaxConsecutiveFailures > 0 && consecutive >= c.acq.MaxConsecutiveFailures {
			return fail(fmt.Errorf("%d consecutive capture failures: %w", consecutive, err))
		}
	}

	rep.Elapsed = c.now().Sub(start)
	return rep, nil
}

var errJournal = errors.New("capture journal")

// accept journals a capture and appends its waveform. A waveform that does
// not fit the collection is rejected before anything is written.
func (c *Controller) accept(coll *store.Collection, capture *domain.Capture, w domain.Waveform, rep *Report) error {
	if err := coll.Check(w); err != nil {
		return fmt.Errorf("capture %d: %w", capture.Seq, err)
	}
	if c.journal != nil {
		id, err := c.journal.Append(capture)
		if err != nil {
			return fmt.Errorf("%w: append capture %d: %w", errJournal, capture.Seq, err)
		}
		rep.LastJournalID = id
		c.obs.SetGauge("pulse_journal_size_bytes", float64(c.journal.Stats().SizeBytes))
	}
	if err := coll.Append(w); err != nil {
		return err
	}
	rep.Captured++
	c.obs.IncCounter("pulse_captures_total", 1)
	c.obs.SetGauge("pulse_collection_size", float64(coll.Len()))
	return nil
}
