package ports

import "github.com/ghalamif/PulseFlow/internal/domain"

type JournalEntryID uint64

// CaptureJournal durably records raw captures while a session runs so that an
// interrupted session can be rebuilt.
type CaptureJournal interface {
	Append(c *domain.Capture) (JournalEntryID, error)
	Iterate(from JournalEntryID, fn func(id JournalEntryID, c *domain.Capture) error) error
	Commit(upto JournalEntryID) error
	// Compact drops committed entries from storage.
	Compact() error
	Stats() JournalStats
	Close() error
}

// JournalStats describes the journal. Entries OldestUncommitted through
// LatestAppended, when that range is not empty, await a table.
type JournalStats struct {
	OldestUncommitted JournalEntryID
	LatestAppended    JournalEntryID
	SizeBytes         int64
}
