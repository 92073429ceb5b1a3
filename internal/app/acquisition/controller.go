// Package acquisition drives an oscilloscope through arm / wait / read cycles
// and collects the resulting waveforms.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ghalamif/PulseFlow/internal/app/config"
	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/scaling"
)

type State int

const (
	Idle State = iota
	Armed
	WaitingTrigger
	Triggered
	TimedOut
	Captured
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Armed:
		return "ARMED"
	case WaitingTrigger:
		return "WAITING_TRIGGER"
	case Triggered:
		return "TRIGGERED"
	case TimedOut:
		return "TIMED_OUT"
	case Captured:
		return "CAPTURED"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

var (
	ErrNotConfigured     = errors.New("acquisition: instrument not configured")
	ErrAlreadyConfigured = errors.New("acquisition: instrument already configured")
)

// Controller owns one instrument for one session. It is not safe for
// concurrent use.
type Controller struct {
	inst ports.Instrument
	cmds config.Commands
	pre  config.Preamble
	ch   string
	acq  config.AcquisitionConfig
	obs  ports.Observability

	state      State
	configured bool
	seq        uint64
	idn        string

	journal ports.CaptureJournal
	session string
	now     func() time.Time
}

type Option func(*Controller)

// WithJournal records every capture in j before it joins the collection.
func WithJournal(j ports.CaptureJournal) Option {
	return func(c *Controller) { c.journal = j }
}

// WithSessionID tags every capture with id.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.session = id }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(inst ports.Instrument, ic config.InstrumentConfig, ac config.AcquisitionConfig, obs ports.Observability, opts ...Option) *Controller {
	c := &Controller{
		inst: inst,
		cmds: ic.Commands,
		pre:  ic.Preamble,
		ch:   ic.Channel,
		acq:  ac,
		obs:  obs,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State { return c.state }

// Identity is the *IDN? reply read by Configure.
func (c *Controller) Identity() string { return c.idn }

// Configure identifies the instrument and issues the session-invariant
// settings: stop-after mode, trigger and data transfer format. It may be
// called once; the trigger is never touched again during the session.
func (c *Controller) Configure() error {
	if c.configured {
		return ErrAlreadyConfigured
	}
	idn, err := c.inst.Query(c.cmds.Identify)
	if err != nil {
		return unreachable("identify", err)
	}
	c.idn = strings.TrimSpace(idn)
	c.obs.LogInfo("instrument_identified", ports.Field{Key: "idn", Value: c.idn})

	stopAfter := c.cmds.StopAfterSequence
	if c.acq.Mode == config.ModeRunStop {
		stopAfter = c.cmds.StopAfterRunStop
	}
	tr := c.acq.Trigger
	setup := []string{
		stopAfter,
		fmt.Sprintf(c.cmds.TriggerType, tr.Type),
		fmt.Sprintf(c.cmds.TriggerSource, tr.Source),
		fmt.Sprintf(c.cmds.TriggerSlope, tr.Slope),
		fmt.Sprintf(c.cmds.TriggerLevel, tr.Source, tr.Level),
		fmt.Sprintf(c.cmds.DataEncoding, c.acq.DataEncoding),
		fmt.Sprintf(c.cmds.DataWidth, c.acq.DataWidth),
		c.cmds.DataStart,
		fmt.Sprintf(c.cmds.DataStop, c.acq.RecordLength),
		fmt.Sprintf(c.cmds.DataSource, c.ch),
	}
	for _, cmd := range setup {
		if err := c.inst.Write(cmd); err != nil {
			return unreachable("configure", err)
		}
	}

	slope, err := c.inst.Query(c.cmds.TriggerSlopeQuery)
	if err != nil {
		return unreachable("trigger readback", err)
	}
	level, err := c.inst.Query(fmt.Sprintf(c.cmds.TriggerLevelQuery, tr.Source))
	if err != nil {
		return unreachable("trigger readback", err)
	}
	c.obs.LogInfo("trigger_configured",
		ports.Field{Key: "mode", Value: c.acq.Mode},
		ports.Field{Key: "source", Value: tr.Source},
		ports.Field{Key: "slope", Value: strings.TrimSpace(slope)},
		ports.Field{Key: "level", Value: strings.TrimSpace(level)})

	c.configured = true
	return nil
}

// Capture runs one IDLE -> ... -> CAPTURED cycle. A zero deadline waits for
// the trigger indefinitely (until ctx is done). Past the deadline the state
// is TIMED_OUT and ErrAcquisitionTimeout is returned.
func (c *Controller) Capture(ctx context.Context, deadline time.Time) (*domain.Capture, domain.Waveform, error) {
	if !c.configured {
		return nil, domain.Waveform{}, ErrNotConfigured
	}
	c.state = Idle

	if err := c.inst.Write(c.cmds.Arm); err != nil {
		return nil, domain.Waveform{}, unreachable("arm", err)
	}
	c.state = Armed

	armedAt := c.now()
	c.state = WaitingTrigger
	for {
		done, err := c.poll()
		if err != nil {
			return nil, domain.Waveform{}, err
		}
		if done {
			break
		}
		if !deadline.IsZero() && !c.now().Before(deadline) {
			c.state = TimedOut
			return nil, domain.Waveform{}, domain.ErrAcquisitionTimeout
		}
		if err := sleep(ctx, c.acq.PollInterval); err != nil {
			return nil, domain.Waveform{}, err
		}
	}
	c.state = Triggered
	c.obs.ObserveLatency("pulse_trigger_wait_seconds", c.now().Sub(armedAt).Seconds())

	capture, err := c.read()
	if err != nil {
		return nil, domain.Waveform{}, err
	}
	w, err := scaling.ConvertCapture(capture)
	if err != nil {
		return nil, domain.Waveform{}, fmt.Errorf("capture %d: %w", capture.Seq, err)
	}
	c.seq = capture.Seq
	c.state = Captured
	return capture, w, nil
}

// poll queries the stop flag (sequence mode) or the trigger state (runstop
// mode) once.
func (c *Controller) poll() (bool, error) {
	if c.acq.Mode == config.ModeRunStop {
		st, err := c.inst.Query(c.cmds.TriggerState)
		if err != nil {
			return false, unreachable("trigger state", err)
		}
		return c.cmds.Triggered(st), nil
	}
	st, err := c.inst.Query(c.cmds.AcquisitionState)
	if err != nil {
		return false, unreachable("acquisition state", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(st), 64)
	if err != nil {
		return false, fmt.Errorf("acquisition state %q: %w", st, err)
	}
	return v == 0, nil
}

func (c *Controller) read() (*domain.Capture, error) {
	seq := c.seq + 1
	buf, err := c.inst.QueryBinary(c.cmds.Curve)
	if err != nil {
		return nil, fmt.Errorf("curve: %w", err)
	}
	raw, err := scaling.DecodeSamples(buf, c.acq.DataWidth, c.acq.DataEncoding == "RIB", nil)
	if err != nil {
		return nil, fmt.Errorf("capture %d: %w", seq, err)
	}

	reply, err := c.inst.Query(c.cmds.Preamble)
	if err != nil {
		return nil, fmt.Errorf("preamble: %w", err)
	}
	coeff, err := c.pre.Parse(reply)
	if err != nil {
		return nil, fmt.Errorf("capture %d: %w", seq, err)
	}
	if coeff.HorizontalDelay, err = c.queryFloat(c.cmds.HorizontalDelay); err != nil {
		return nil, err
	}
	if coeff.HorizontalPositionPercent, err = c.queryFloat(c.cmds.HorizontalPosition); err != nil {
		return nil, err
	}

	return &domain.Capture{
		Session:   c.session,
		Seq:       seq,
		Timestamp: c.now().UTC(),
		Channel:   c.ch,
		Raw:       raw,
		Scaling:   coeff,
	}, nil
}

func (c *Controller) queryFloat(cmd string) (float64, error) {
	s, err := c.inst.Query(cmd)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	return v, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// unreachable tags a failure on a command every session depends on.
func unreachable(op string, err error) error {
	if errors.Is(err, domain.ErrInstrumentUnreachable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrInstrumentUnreachable, err)
}
