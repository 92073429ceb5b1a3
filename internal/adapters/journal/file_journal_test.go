package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

func TestFileJournalAppendIterateAndReplay(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}

	c1 := &domain.Capture{Seq: 1, Channel: "CH1", Raw: []int32{1, 2, 3}, Scaling: domain.ScalingCoefficients{SampleInterval: 1e-9}}
	c2 := &domain.Capture{Seq: 2, Channel: "CH1", Raw: []int32{4, 5, 6}, Scaling: domain.ScalingCoefficients{SampleInterval: 1e-9}}

	id1, err := j.Append(c1)
	if err != nil || id1 == 0 {
		t.Fatalf("append capture 1: %v id=%d", err, id1)
	}
	id2, err := j.Append(c2)
	if err != nil || id2 == 0 {
		t.Fatalf("append capture 2: %v id=%d", err, id2)
	}

	var seqs []uint64
	if err := j.Iterate(1, func(id ports.JournalEntryID, c *domain.Capture) error {
		seqs = append(seqs, c.Seq)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("expected captures 1,2 got %v", seqs)
	}

	if err := j.Commit(id1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	// Reopen and ensure the commit marker was persisted.
	j2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	stats := j2.Stats()
	if stats.LatestAppended != id2 {
		t.Fatalf("expected latest appended %d, got %d", id2, stats.LatestAppended)
	}
	if stats.OldestUncommitted != id2 {
		t.Fatalf("expected oldest uncommitted %d, got %d", id2, stats.OldestUncommitted)
	}

	var replayed []*domain.Capture
	if err := j2.Iterate(stats.OldestUncommitted, func(_ ports.JournalEntryID, c *domain.Capture) error {
		replayed = append(replayed, c)
		return nil
	}); err != nil {
		t.Fatalf("iterate after reopen: %v", err)
	}
	if len(replayed) != 1 || replayed[0].Raw[2] != 6 || replayed[0].Scaling.SampleInterval != 1e-9 {
		t.Fatalf("unexpected replay %+v", replayed)
	}
	if err := j2.Close(); err != nil {
		t.Fatalf("close journal 2: %v", err)
	}

	// A torn tail from a crash mid-append is cut off on open.
	path := filepath.Join(dir, "captures.log")
	before, _ := os.Stat(path)
	if err := appendGarbage(path); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	j3, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen after garbage: %v", err)
	}
	defer j3.Close()
	if got := j3.Stats().SizeBytes; got != before.Size() {
		t.Fatalf("expected size %d after truncation, got %d", before.Size(), got)
	}
	if id, err := j3.Append(c1); err != nil || id != id2+1 {
		t.Fatalf("append after recovery: id=%d err=%v", id, err)
	}
}

func TestFileJournalCompactDropsCommitted(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	var last ports.JournalEntryID
	for i := 1; i <= 3; i++ {
		last, err = j.Append(&domain.Capture{Seq: uint64(i), Raw: []int32{int32(i)}})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Commit(last - 1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	full := j.Stats().SizeBytes
	if err := j.Compact(); err != nil {
		t.Fatalf("compact: %v", err)
	}
	if j.Stats().SizeBytes >= full {
		t.Fatalf("expected journal to shrink below %d, got %d", full, j.Stats().SizeBytes)
	}

	var seqs []uint64
	if err := j.Iterate(0, func(_ ports.JournalEntryID, c *domain.Capture) error {
		seqs = append(seqs, c.Seq)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seqs) != 1 || seqs[0] != 3 {
		t.Fatalf("expected only capture 3 to survive, got %v", seqs)
	}
	if id, err := j.Append(&domain.Capture{Seq: 4}); err != nil || id != last+1 {
		t.Fatalf("append after compact: id=%d err=%v", id, err)
	}
}

func appendGarbage(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte{0xFF, 0xAA})
	return err
}
