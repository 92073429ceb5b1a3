// Package sim is a software stand-in for a Tektronix oscilloscope watching a
// photodetector. It answers the default command set with synthetic negative
// pulses so acquisition can run without hardware.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

type Config struct {
	// PollsUntilStop is how many state polls report "running" after arming.
	PollsUntilStop int
	// NeverTrigger keeps the scope armed forever.
	NeverTrigger bool
	// RecordLength is used until the client sets DAT:STOP.
	RecordLength int
	Scaling      domain.ScalingCoefficients
	// Pulse shape, in seconds and volts.
	PulseStart      float64
	PulseWidth      float64
	PulseAmplitude  float64
	AmplitudeSpread float64
	NoiseCodes      float64
	Seed            int64
	// FailCurve makes the n-th curve read (1-based) fail.
	FailCurve map[int]bool
}

func (c *Config) applyDefaults() {
	if c.RecordLength == 0 {
		c.RecordLength = 1000
	}
	if c.Scaling == (domain.ScalingCoefficients{}) {
		c.Scaling = domain.ScalingCoefficients{
			SampleInterval:            4e-10,
			HorizontalPositionPercent: 10,
			VerticalScale:             8e-3,
			VerticalOffset:            128,
		}
	}
	if c.PulseStart == 0 {
		c.PulseStart = 0.5e-7
	}
	if c.PulseWidth == 0 {
		c.PulseWidth = 0.5e-7
	}
	if c.PulseAmplitude == 0 {
		c.PulseAmplitude = 0.5
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// Scope implements ports.Instrument. It records every command it receives.
type Scope struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand

	log      []string
	running  bool
	polls    int
	curves   int
	width    int
	encoding string
	stop     int
	slope    string
	level    float64
	stopMode string
	closed   bool
}

func New(cfg Config) *Scope {
	cfg.applyDefaults()
	return &Scope{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		width:    1,
		encoding: "RPB",
		stop:     cfg.RecordLength,
		slope:    "FALL",
		stopMode: "SEQUENCE",
	}
}

// Dial lets the scope stand in for a real ports.Dialer.
func (s *Scope) Dial(string) (ports.Instrument, error) { return s, nil }

func (s *Scope) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: simulator closed", domain.ErrInstrumentUnreachable)
	}
	s.log = append(s.log, cmd)

	head, arg := split(cmd)
	switch head {
	case "ACQUIRE:STATE", "ACQ:STATE":
		if strings.EqualFold(arg, "RUN") || arg == "1" || strings.EqualFold(arg, "ON") {
			s.running = true
			s.polls = 0
		} else {
			s.running = false
		}
	case "ACQUIRE:STOPAFTER", "ACQ:STOPA":
		s.stopMode = strings.ToUpper(arg)
	case "TRIGGER:A:EDGE:SLOPE":
		s.slope = strings.ToUpper(arg)
	case "DAT:WID", "DATA:WIDTH":
		n, err := strconv.Atoi(arg)
		if err != nil || (n != 1 && n != 2) {
			return fmt.Errorf("sim: bad width %q", arg)
		}
		s.width = n
	case "DAT:ENC", "DATA:ENCDG":
		s.encoding = strings.ToUpper(arg)
	case "DAT:STOP", "DATA:STOP":
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return fmt.Errorf("sim: bad stop %q", arg)
		}
		s.stop = n
	default:
		if strings.HasPrefix(head, "TRIGGER:A:LEVEL") {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("sim: bad level %q", arg)
			}
			s.level = v
		}
	}
	return nil
}

func (s *Scope) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("%w: simulator closed", domain.ErrInstrumentUnreachable)
	}
	s.log = append(s.log, cmd)

	head, _ := split(cmd)
	switch head {
	case "*IDN?":
		return "TEKTRONIX,SIM-PULSE,0,CF:91.1CT FV:v1.0", nil
	case "ACQUIRE:STATE?", "ACQ:STATE?":
		if s.advance() {
			return "0", nil
		}
		return "1", nil
	case "TRIGGER:STATE?":
		if s.advance() {
			return "TRIGGER", nil
		}
		return "READY", nil
	case "TRIGGER:A:EDGE:SLOPE?":
		return s.slope, nil
	case "WFMOUTPRE?", "WFMO?":
		return s.preamble(), nil
	case "HORIZONTAL:DELAY:TIME?", "HOR:DEL:TIM?":
		return strconv.FormatFloat(s.cfg.Scaling.HorizontalDelay, 'E', -1, 64), nil
	case "HORIZONTAL:POSITION?", "HOR:POS?":
		return strconv.FormatFloat(s.cfg.Scaling.HorizontalPositionPercent, 'E', -1, 64), nil
	}
	if strings.HasPrefix(head, "TRIGGER:A:LEVEL") && strings.HasSuffix(head, "?") {
		return strconv.FormatFloat(s.level, 'E', -1, 64), nil
	}
	return "", fmt.Errorf("sim: unsupported query %q", cmd)
}

func (s *Scope) QueryBinary(cmd string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: simulator closed", domain.ErrInstrumentUnreachable)
	}
	s.log = append(s.log, cmd)

	head, _ := split(cmd)
	if head != "CURV?" && head != "CURVE?" {
		return nil, fmt.Errorf("sim: unsupported binary query %q", cmd)
	}
	s.curves++
	if s.cfg.FailCurve[s.curves] {
		return nil, fmt.Errorf("sim: curve %d corrupted", s.curves)
	}
	return s.curve(), nil
}

func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Commands returns every command received so far.
func (s *Scope) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// Count returns how many received commands start with prefix, ignoring case.
func (s *Scope) Count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.log {
		if strings.HasPrefix(strings.ToUpper(c), strings.ToUpper(prefix)) {
			n++
		}
	}
	return n
}

func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// advance counts one state poll and reports whether the acquisition is done.
func (s *Scope) advance() bool {
	if !s.running {
		return !s.cfg.NeverTrigger
	}
	if s.cfg.NeverTrigger {
		return false
	}
	s.polls++
	if s.polls > s.cfg.PollsUntilStop {
		if s.stopMode != "RUNSTOP" {
			s.running = false
		}
		return true
	}
	return false
}

// vertical returns the volts-per-code and offset matching the current data
// width and encoding.
func (s *Scope) vertical() (ymult, yoff float64) {
	c := s.cfg.Scaling
	scale := 1.0
	if s.width == 2 {
		scale = 256
	}
	yoff = c.VerticalOffset
	if s.encoding == "RIB" {
		yoff -= 128
	}
	return c.VerticalScale / scale, yoff * scale
}

func (s *Scope) preamble() string {
	c := s.cfg.Scaling
	ymult, yoff := s.vertical()
	fields := []string{
		strconv.Itoa(s.width), strconv.Itoa(8 * s.width), "BINARY", s.encoding, "MSB",
		strconv.FormatFloat(c.SampleInterval, 'E', -1, 64),
		strconv.Itoa(s.stop), "Y", `"V"`,
		strconv.FormatFloat(ymult, 'E', -1, 64),
		strconv.FormatFloat(yoff, 'E', -1, 64),
		strconv.FormatFloat(c.VerticalZero, 'E', -1, 64),
		"TIME", "ANALOG",
	}
	return `"Ch1, DC coupling, 100.0mV/div, 40.00ns/div",` + strings.Join(fields, ";")
}

func (s *Scope) curve() []byte {
	c := s.cfg.Scaling
	ymult, yoff := s.vertical()
	n := s.stop
	amp := s.cfg.PulseAmplitude + s.cfg.AmplitudeSpread*s.rng.NormFloat64()
	shift := float64(n) * c.HorizontalPositionPercent / 100
	half := s.cfg.PulseWidth / 2
	apex := s.cfg.PulseStart + half
	noise := s.cfg.NoiseCodes * c.VerticalScale / ymult

	out := make([]byte, 0, n*s.width)
	for i := 0; i < n; i++ {
		t := (float64(i)-shift)*c.SampleInterval + c.HorizontalDelay
		v := 0.0
		if d := math.Abs(t - apex); d < half {
			v = -amp * (1 - d/half)
		}
		code := (v-c.VerticalZero)/ymult + yoff
		if noise > 0 {
			code += noise * s.rng.NormFloat64()
		}
		out = appendCode(out, math.Round(code), s.width, s.encoding == "RIB")
	}
	return out
}

func appendCode(out []byte, code float64, width int, signed bool) []byte {
	lo, hi := 0.0, 255.0
	if width == 2 {
		hi = 65535
	}
	if signed {
		lo, hi = lo-(hi+1)/2, (hi-1)/2
	}
	code = math.Max(lo, math.Min(hi, code))
	u := uint16(int32(code))
	if width == 1 {
		return append(out, byte(u))
	}
	return append(out, byte(u>>8), byte(u))
}

// split upper-cases the command header and returns its argument.
func split(cmd string) (string, string) {
	cmd = strings.TrimSpace(cmd)
	head, arg, _ := strings.Cut(cmd, " ")
	return strings.ToUpper(head), strings.TrimSpace(arg)
}

var _ ports.Instrument = (*Scope)(nil)
