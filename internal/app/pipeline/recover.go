package pipeline

import (
	"errors"
	"fmt"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/scaling"
	"github.com/ghalamif/PulseFlow/internal/store"
)

// Recovery describes what Recover rebuilt. Pending counts uncommitted
// entries of later sessions left for the next Recover.
type Recovery struct {
	Replayed int
	Skipped  int
	LastID   ports.JournalEntryID
	Pending  int
}

var errSessionBoundary = errors.New("session boundary")

// Recover rebuilds the collection of the oldest interrupted session from the
// uncommitted journal entries and writes it to output. The session ends where
// the session id changes or the capture sequence restarts. Captures whose
// coefficients are invalid or whose length differs from the first replayed
// one are skipped. Nothing is written when the journal holds no uncommitted
// entries. The journal is committed up to the last entry of the session once
// the table is on disk.
func Recover(journal ports.CaptureJournal, output string, obs ports.Observability) (*store.Collection, Recovery, error) {
	var (
		rec     Recovery
		started bool
		session string
		lastSeq uint64
	)
	coll := store.NewCollection()
	from := journal.Stats().OldestUncommitted

	err := journal.Iterate(from, func(id ports.JournalEntryID, c *domain.Capture) error {
		if !started {
			session, started = c.Session, true
		} else if c.Session != session || c.Seq <= lastSeq {
			return errSessionBoundary
		}
		lastSeq = c.Seq
		rec.LastID = id

		w, err := scaling.ConvertCapture(c)
		if err == nil {
			err = coll.Append(w)
		}
		if err != nil {
			rec.Skipped++
			obs.LogWarn("recover_skipped", err,
				ports.Field{Key: "entry", Value: uint64(id)},
				ports.Field{Key: "seq", Value: c.Seq})
			return nil
		}
		rec.Replayed++
		return nil
	})
	if err != nil && !errors.Is(err, errSessionBoundary) {
		return nil, rec, fmt.Errorf("replay journal: %w", err)
	}

	if rec.LastID == 0 {
		obs.LogInfo("journal_clean")
		return coll, rec, nil
	}
	if err := store.SaveFile(output, coll); err != nil {
		return coll, rec, fmt.Errorf("persist %s: %w", output, err)
	}
	if err := commitJournal(journal, rec.LastID, obs); err != nil {
		return coll, rec, err
	}
	if st := journal.Stats(); st.LatestAppended >= st.OldestUncommitted {
		rec.Pending = int(st.LatestAppended - st.OldestUncommitted + 1)
	}
	obs.LogInfo("journal_recovered",
		ports.Field{Key: "path", Value: output},
		ports.Field{Key: "session", Value: session},
		ports.Field{Key: "replayed", Value: rec.Replayed},
		ports.Field{Key: "skipped", Value: rec.Skipped},
		ports.Field{Key: "pending", Value: rec.Pending})
	return coll, rec, nil
}
