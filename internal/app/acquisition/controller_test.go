package acquisition

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/PulseFlow/internal/adapters/sim"
	"github.com/ghalamif/PulseFlow/internal/app/config"
	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/store"
)

func testConfig(mutate func(a *config.AcquisitionConfig)) (config.InstrumentConfig, config.AcquisitionConfig) {
	cfg := config.Default()
	cfg.Acquisition.PollInterval = time.Millisecond
	cfg.Acquisition.RecordLength = 400
	if mutate != nil {
		mutate(&cfg.Acquisition)
	}
	return cfg.Instrument, cfg.Acquisition
}

func TestRunCountDrivenConfiguresTriggerOnce(t *testing.T) {
	scope := sim.New(sim.Config{PollsUntilStop: 2})
	ic, ac := testConfig(func(a *config.AcquisitionConfig) { a.TargetCount = 5 })
	obs := &recObs{}
	ctl := NewController(scope, ic, ac, obs)
	coll := store.NewCollection()

	rep, err := ctl.Run(context.Background(), coll)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Captured != 5 || coll.Len() != 5 || rep.Failed != 0 {
		t.Fatalf("expected 5 captures, got %+v (collection %d)", rep, coll.Len())
	}
	if coll.Samples() != 400 {
		t.Fatalf("expected 400 samples, got %d", coll.Samples())
	}

	for _, prefix := range []string{
		"ACQuire:STOPAfter SEQuence",
		"TRIGger:A:TYPe ",
		"TRIGger:A:EDGE:SOUrce ",
		"TRIGger:A:EDGE:SLOpe ",
		"TRIGger:A:LEVel:CH1 ",
		"DATA:SOURCE ",
	} {
		if n := scope.Count(prefix); n != 1 {
			t.Fatalf("%q issued %d times, want exactly once", prefix, n)
		}
	}
	if n := scope.Count("ACQuire:STATE RUN"); n != 5 {
		t.Fatalf("expected 5 arm commands, got %d", n)
	}
	if ctl.State() != Captured {
		t.Fatalf("expected final state CAPTURED, got %s", ctl.State())
	}
	if ctl.Identity() == "" || obs.counters["pulse_captures_total"] != 5 {
		t.Fatalf("expected identity and capture counter, got %q %v", ctl.Identity(), obs.counters)
	}

	min := math.Inf(1)
	for _, v := range coll.Voltages(0) {
		min = math.Min(min, v)
	}
	if math.Abs(min+0.5) > 0.02 {
		t.Fatalf("expected simulated pulse near -0.5 V, got %v", min)
	}
}

func TestRunDeadlineWithNeverStoppingScope(t *testing.T) {
	scope := sim.New(sim.Config{NeverTrigger: true})
	ic, ac := testConfig(func(a *config.AcquisitionConfig) { a.Duration = 30 * time.Millisecond })
	ctl := NewController(scope, ic, ac, &recObs{})
	coll := store.NewCollection()

	start := time.Now()
	rep, err := ctl.Run(context.Background(), coll)
	if err != nil {
		t.Fatalf("deadline end must not be an error, got %v", err)
	}
	if rep.Captured != 0 || coll.Len() != 0 {
		t.Fatalf("expected zero captures, got %+v", rep)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("run did not stop at the deadline")
	}
	if ctl.State() != TimedOut {
		t.Fatalf("expected TIMED_OUT, got %s", ctl.State())
	}
}

func TestRunCountDrivenTimeoutKeepsCaptures(t *testing.T) {
	scope := sim.New(sim.Config{})
	ic, ac := testConfig(func(a *config.AcquisitionConfig) {
		a.TargetCount = 10
		a.CaptureTimeout = 20 * time.Millisecond
	})
	ctl := NewController(scope, ic, ac, &recObs{})
	coll := store.NewCollection()

	if err := ctl.Configure(); err != nil {
		t.Fatalf("configure: %v", err)
	}
	for i := 0; i < 2; i++ {
		c, w, err := ctl.Capture(context.Background(), time.Time{})
		if err != nil {
			t.Fatalf("capture: %v", err)
		}
		if c.Seq != uint64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, c.Seq)
		}
		coll.Append(w)
	}

	// from here on the scope never triggers again
	stuck := sim.New(sim.Config{NeverTrigger: true})
	ctl.inst = stuck
	rep, err := ctl.Run(context.Background(), coll)
	if !errors.Is(err, domain.ErrAcquisitionTimeout) {
		t.Fatalf("expected ErrAcquisitionTimeout, got %v", err)
	}
	var se *SessionError
	if !errors.As(err, &se) || se.Requested != 10 {
		t.Fatalf("expected SessionError with requested count, got %#v", err)
	}
	if !rep.TimedOut || coll.Len() != 2 {
		t.Fatalf("expected timed out report with 2 kept waveforms, got %+v / %d", rep, coll.Len())
	}
	if n := stuck.Count("TRIGger:A:TYPe"); n != 0 {
		t.Fatalf("trigger must not be reconfigured, got %d", n)
	}
}

func TestRunIsolatesFailedCaptures(t *testing.T) {
	scope := sim.New(sim.Config{FailCurve: map[int]bool{2: true}})
	ic, ac := testConfig(func(a *config.AcquisitionConfig) { a.TargetCount = 3 })
	obs := &recObs{}
	rep, err := NewController(scope, ic, ac, obs).Run(context.Background(), store.NewCollection())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Captured != 3 || rep.Failed != 1 || len(obs.failed) != 1 || obs.failed[0] != 2 {
		t.Fatalf("expected 3 captured and capture 2 failed, got %+v failed=%v", rep, obs.failed)
	}

	abortScope := sim.New(sim.Config{FailCurve: map[int]bool{2: true}})
	ic, ac = testConfig(func(a *config.AcquisitionConfig) {
		a.TargetCount = 3
		a.OnCaptureError = "abort"
	})
	coll := store.NewCollection()
	_, err = NewController(abortScope, ic, ac, &recObs{}).Run(context.Background(), coll)
	var se *SessionError
	if !errors.As(err, &se) || se.Captured != 1 || coll.Len() != 1 {
		t.Fatalf("expected abort after 1 capture, got %v (collection %d)", err, coll.Len())
	}
}

func TestRunStopsAfterConsecutiveFailures(t *testing.T) {
	scope := sim.New(sim.Config{FailCurve: map[int]bool{1: true, 2: true, 3: true}})
	ic, ac := testConfig(func(a *config.AcquisitionConfig) {
		a.TargetCount = 3
		a.MaxConsecutiveFailures = 3
	})
	rep, err := NewController(scope, ic, ac, &recObs{}).Run(context.Background(), store.NewCollection())
	if err == nil || rep.Failed != 3 || rep.Captured != 0 {
		t.Fatalf("expected failure after 3 attempts, got %+v err=%v", rep, err)
	}
}

func TestRunStopModeAndJournal(t *testing.T) {
	scope := sim.New(sim.Config{PollsUntilStop: 1})
	ic, ac := testConfig(func(a *config.AcquisitionConfig) {
		a.TargetCount = 4
		a.Mode = config.ModeRunStop
	})
	j := &memJournal{}
	rep, err := NewController(scope, ic, ac, &recObs{}, WithJournal(j), WithSessionID("run-9")).Run(context.Background(), store.NewCollection())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(j.entries) != 4 || rep.LastJournalID != 4 {
		t.Fatalf("expected 4 journaled captures, got %d (last %d)", len(j.entries), rep.LastJournalID)
	}
	for i, c := range j.entries {
		if c.Session != "run-9" || c.Seq != uint64(i+1) {
			t.Fatalf("capture %d tagged %q seq %d", i, c.Session, c.Seq)
		}
	}
	if scope.Count("ACQuire:STOPAfter RUNSTop") != 1 || scope.Count("ACQuire:STATE?") != 0 {
		t.Fatalf("run/stop mode must poll the trigger state only")
	}
}

func TestRunAbortsWhenInstrumentUnreachable(t *testing.T) {
	scope := sim.New(sim.Config{})
	scope.Close()
	ic, ac := testConfig(func(a *config.AcquisitionConfig) { a.TargetCount = 1 })
	_, err := NewController(scope, ic, ac, &recObs{}).Run(context.Background(), store.NewCollection())
	if !errors.Is(err, domain.ErrInstrumentUnreachable) {
		t.Fatalf("expected ErrInstrumentUnreachable, got %v", err)
	}
}

func TestConfigureOnlyOnce(t *testing.T) {
	ic, ac := testConfig(func(a *config.AcquisitionConfig) { a.TargetCount = 1 })
	ctl := NewController(sim.New(sim.Config{}), ic, ac, &recObs{})
	if _, _, err := ctl.Capture(context.Background(), time.Time{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := ctl.Configure(); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := ctl.Configure(); !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("expected ErrAlreadyConfigured, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	want := []string{"IDLE", "ARMED", "WAITING_TRIGGER", "TRIGGERED", "TIMED_OUT", "CAPTURED"}
	for i, w := range want {
		if got := State(i).String(); got != w {
			t.Fatalf("state %d: expected %s, got %s", i, w, got)
		}
	}
}

type recObs struct {
	mu       sync.Mutex
	counters map[string]float64
	failed   []uint64
}

func (r *recObs) LogInfo(string, ...ports.Field)            {}
func (r *recObs) LogWarn(string, error, ...ports.Field)     {}
func (r *recObs) LogError(string, error, ...ports.Field)    {}
func (r *recObs) LogCritical(string, error, ...ports.Field) {}
func (r *recObs) ObserveLatency(string, float64)            {}
func (r *recObs) SetGauge(string, float64)                  {}

func (r *recObs) IncCounter(name string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = map[string]float64{}
	}
	r.counters[name] += v
}

func (r *recObs) RecordFailedCapture(seq uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, seq)
}

type memJournal struct {
	entries []*domain.Capture
}

func (m *memJournal) Append(c *domain.Capture) (ports.JournalEntryID, error) {
	m.entries = append(m.entries, c)
	return ports.JournalEntryID(len(m.entries)), nil
}

func (m *memJournal) Iterate(from ports.JournalEntryID, fn func(ports.JournalEntryID, *domain.Capture) error) error {
	for i, c := range m.entries {
		if id := ports.JournalEntryID(i + 1); id >= from {
			if err := fn(id, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *memJournal) Commit(ports.JournalEntryID) error { return nil }
func (m *memJournal) Compact() error                    { return nil }
func (m *memJournal) Stats() ports.JournalStats         { return ports.JournalStats{} }
func (m *memJournal) Close() error                      { return nil }
