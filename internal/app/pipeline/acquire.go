package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghalamif/PulseFlow/internal/app/acquisition"
	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/store"
)

// CheckJournal fails with domain.ErrJournalPending when journal still holds
// captures of an earlier session. Those must be recovered before a new
// session commits past them.
func CheckJournal(journal ports.CaptureJournal) error {
	if journal == nil {
		return nil
	}
	st := journal.Stats()
	if st.LatestAppended == 0 || st.OldestUncommitted > st.LatestAppended {
		return nil
	}
	return fmt.Errorf("%w: entries %d..%d, run recover first",
		domain.ErrJournalPending, st.OldestUncommitted, st.LatestAppended)
}

// RunAcquisition runs one session into a fresh collection and writes the
// table to output whatever the outcome, zero waveforms included. Journal
// entries are committed only after the table is on disk, and the journal is
// then compacted. A journal with pending entries refuses the session before
// anything is captured or written.
func RunAcquisition(ctx context.Context, ctl *acquisition.Controller, journal ports.CaptureJournal, output string, obs ports.Observability) (*store.Collection, acquisition.Report, error) {
	coll := store.NewCollection()
	if err := CheckJournal(journal); err != nil {
		obs.LogCritical("journal_pending", err)
		return coll, acquisition.Report{}, &acquisition.SessionError{Err: err}
	}
	rep, runErr := ctl.Run(ctx, coll)
	var se *acquisition.SessionError
	errors.As(runErr, &se)

	if err := store.SaveFile(output, coll); err != nil {
		err = fmt.Errorf("persist %s: %w", output, err)
		obs.LogCritical("table_persist_failed", err, ports.Field{Key: "waveforms", Value: coll.Len()})
		// journal stays uncommitted; recover can rebuild the table
		return coll, rep, joinSession(se, runErr, err, rep)
	}
	obs.LogInfo("table_persisted",
		ports.Field{Key: "path", Value: output},
		ports.Field{Key: "waveforms", Value: coll.Len()},
		ports.Field{Key: "samples", Value: coll.Samples()})

	if se != nil {
		se.Persisted = true
	}

	if journal != nil && rep.LastJournalID > 0 {
		if err := commitJournal(journal, rep.LastJournalID, obs); err != nil {
			if se == nil {
				return coll, rep, &acquisition.SessionError{Captured: rep.Captured, Requested: rep.Requested, Persisted: true, Err: err}
			}
			return coll, rep, errors.Join(runErr, err)
		}
	}
	return coll, rep, runErr
}

// joinSession adds err to the session error of a run, or wraps it in one
// when the run itself succeeded.
func joinSession(se *acquisition.SessionError, runErr, err error, rep acquisition.Report) error {
	if se == nil {
		return &acquisition.SessionError{Captured: rep.Captured, Requested: rep.Requested, Err: err}
	}
	return errors.Join(runErr, err)
}

// commitJournal marks entries up to id as persisted and drops them from
// storage. A failed compaction only costs disk space and is logged.
func commitJournal(journal ports.CaptureJournal, id ports.JournalEntryID, obs ports.Observability) error {
	if err := journal.Commit(id); err != nil {
		obs.LogError("journal_commit_failed", err)
		return fmt.Errorf("commit journal: %w", err)
	}
	if err := journal.Compact(); err != nil {
		obs.LogWarn("journal_compact_failed", err)
	}
	obs.SetGauge("pulse_journal_size_bytes", float64(journal.Stats().SizeBytes))
	return nil
}
