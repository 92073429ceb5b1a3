package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ghalamif/PulseFlow/internal/domain"
)

// Commands are the instrument command strings. Defaults target Tektronix
// MSO/DPO scopes; fields holding a %s or %g verb are format templates.
type Commands struct {
	Identify           string   `yaml:"identify"`
	StopAfterSequence  string   `yaml:"stop_after_sequence"`
	StopAfterRunStop   string   `yaml:"stop_after_runstop"`
	TriggerType        string   `yaml:"trigger_type"`   // %s type
	TriggerSource      string   `yaml:"trigger_source"` // %s source
	TriggerSlope       string   `yaml:"trigger_slope"`  // %s slope
	TriggerLevel       string   `yaml:"trigger_level"`  // %s source, %g volts
	TriggerSlopeQuery  string   `yaml:"trigger_slope_query"`
	TriggerLevelQuery  string   `yaml:"trigger_level_query"` // %s source
	DataEncoding       string   `yaml:"data_encoding"`       // %s
	DataWidth          string   `yaml:"data_width"`          // %d
	DataStart          string   `yaml:"data_start"`
	DataStop           string   `yaml:"data_stop"`   // %d
	DataSource         string   `yaml:"data_source"` // %s channel
	Arm                string   `yaml:"arm"`
	AcquisitionState   string   `yaml:"acquisition_state"`
	TriggerState       string   `yaml:"trigger_state"`
	TriggeredStates    []string `yaml:"triggered_states"`
	Curve              string   `yaml:"curve"`
	Preamble           string   `yaml:"preamble"`
	HorizontalDelay    string   `yaml:"horizontal_delay"`
	HorizontalPosition string   `yaml:"horizontal_position"`
}

func (c *Commands) applyDefaults() {
	def := func(p *string, v string) {
		if *p == "" {
			*p = v
		}
	}
	def(&c.Identify, "*IDN?")
	def(&c.StopAfterSequence, "ACQuire:STOPAfter SEQuence")
	def(&c.StopAfterRunStop, "ACQuire:STOPAfter RUNSTop")
	def(&c.TriggerType, "TRIGger:A:TYPe %s")
	def(&c.TriggerSource, "TRIGger:A:EDGE:SOUrce %s")
	def(&c.TriggerSlope, "TRIGger:A:EDGE:SLOpe %s")
	def(&c.TriggerLevel, "TRIGger:A:LEVel:%s %g")
	def(&c.TriggerSlopeQuery, "TRIGger:A:EDGE:SLOpe?")
	def(&c.TriggerLevelQuery, "TRIGger:A:LEVel:%s?")
	def(&c.DataEncoding, "DAT:ENC %s")
	def(&c.DataWidth, "DAT:WID %d")
	def(&c.DataStart, "DAT:STAR 1")
	def(&c.DataStop, "DAT:STOP %d")
	def(&c.DataSource, "DATA:SOURCE %s")
	def(&c.Arm, "ACQuire:STATE RUN")
	def(&c.AcquisitionState, "ACQuire:STATE?")
	def(&c.TriggerState, "TRIGger:STATE?")
	def(&c.Curve, "CURV?")
	def(&c.Preamble, "WFMOutpre?")
	def(&c.HorizontalDelay, "HORizontal:DELay:TIMe?")
	def(&c.HorizontalPosition, "HORizontal:POSition?")
	if len(c.TriggeredStates) == 0 {
		c.TriggeredStates = []string{"TRIGGER", "TRIG", "SAVE", "SAV"}
	}
}

// Triggered reports whether a trigger state reply means a waveform is ready.
func (c *Commands) Triggered(state string) bool {
	state = strings.ToUpper(strings.TrimSpace(state))
	for _, s := range c.TriggeredStates {
		if state == strings.ToUpper(s) {
			return true
		}
	}
	return false
}

// Preamble locates the scaling fields inside the preamble reply. The reply is
// split on Separator, the last part is split on FieldSeparator and the
// indexes refer to that final list.
type Preamble struct {
	Separator      string `yaml:"separator"`
	FieldSeparator string `yaml:"field_separator"`
	XIncr          int    `yaml:"xincr"`
	YMult          int    `yaml:"ymult"`
	YOff           int    `yaml:"yoff"`
	YZero          int    `yaml:"yzero"`
}

func (p *Preamble) applyDefaults() {
	if p.Separator == "" {
		p.Separator = ","
	}
	if p.FieldSeparator == "" {
		p.FieldSeparator = ";"
	}
	if p.XIncr == 0 && p.YMult == 0 && p.YOff == 0 && p.YZero == 0 {
		p.XIncr, p.YMult, p.YOff, p.YZero = 5, 9, 10, 11
	}
}

// Parse reads sample interval and vertical scaling from a preamble reply.
// Horizontal delay and position come from separate queries.
func (p Preamble) Parse(reply string) (domain.ScalingCoefficients, error) {
	parts := strings.Split(strings.TrimSpace(reply), p.Separator)
	fields := strings.Split(parts[len(parts)-1], p.FieldSeparator)

	get := func(name string, idx int) (float64, error) {
		if idx < 0 || idx >= len(fields) {
			return 0, fmt.Errorf("preamble: %s index %d out of range (%d fields)", name, idx, len(fields))
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[idx]), 64)
		if err != nil {
			return 0, fmt.Errorf("preamble: %s: %w", name, err)
		}
		return v, nil
	}

	var (
		c   domain.ScalingCoefficients
		err error
	)
	if c.SampleInterval, err = get("xincr", p.XIncr); err != nil {
		return c, err
	}
	if c.VerticalScale, err = get("ymult", p.YMult); err != nil {
		return c, err
	}
	if c.VerticalOffset, err = get("yoff", p.YOff); err != nil {
		return c, err
	}
	if c.VerticalZero, err = get("yzero", p.YZero); err != nil {
		return c, err
	}
	return c, nil
}
