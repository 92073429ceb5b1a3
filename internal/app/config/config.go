package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

const (
	ModeSequence = "sequence" // one-shot: the scope stops after each trigger
	ModeRunStop  = "runstop"  // continuous: trigger state is polled
)

type Config struct {
	Instrument  InstrumentConfig  `yaml:"instrument"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Journal     JournalConfig     `yaml:"journal"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Sink        SinkConfig        `yaml:"sink"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type InstrumentConfig struct {
	Resource string        `yaml:"resource"`
	Timeout  time.Duration `yaml:"timeout"`
	Channel  string        `yaml:"channel"`
	Commands Commands      `yaml:"commands"`
	Preamble Preamble      `yaml:"preamble"`
}

type AcquisitionConfig struct {
	DeviceID      string  `yaml:"device_id"`
	SupplyVoltage float64 `yaml:"supply_voltage"`
	Mode          string  `yaml:"mode"`
	// Exactly one of TargetCount and Duration drives the session.
	TargetCount int           `yaml:"target_count"`
	Duration    time.Duration `yaml:"duration"`

	ports.Policy `yaml:",inline"`

	RecordLength int           `yaml:"record_length"`
	DataEncoding string        `yaml:"data_encoding"`
	DataWidth    int           `yaml:"data_width"`
	Trigger      TriggerConfig `yaml:"trigger"`
	Output       string        `yaml:"output"`
}

type TriggerConfig struct {
	Type   string  `yaml:"type"`
	Source string  `yaml:"source"`
	Slope  string  `yaml:"slope"`
	Level  float64 `yaml:"level"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

type AnalysisConfig struct {
	Window          domain.Window `yaml:"window"`
	Resistance      float64       `yaml:"resistance"`
	Bins            int           `yaml:"bins"`
	Model           string        `yaml:"model"`
	Polarity        string        `yaml:"polarity"`
	BaselineCorrect *bool         `yaml:"baseline_correct"`
	Metric          string        `yaml:"metric"`
	Output          string        `yaml:"output"`
}

// SinkConfig selects an optional SQL table receiving pulse metrics.
type SinkConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, suitable for
// the simulator.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	cfg.Acquisition.TargetCount = 100
	return &cfg
}

func (c *Config) ApplyDefaults() {
	if c.Instrument.Timeout == 0 {
		c.Instrument.Timeout = 10 * time.Second
	}
	if c.Instrument.Channel == "" {
		c.Instrument.Channel = "CH1"
	}
	c.Instrument.Commands.applyDefaults()
	c.Instrument.Preamble.applyDefaults()

	a := &c.Acquisition
	if a.Mode == "" {
		a.Mode = ModeSequence
	}
	if a.PollInterval == 0 {
		a.PollInterval = 5 * time.Millisecond
	}
	if a.OnCaptureError == "" {
		a.OnCaptureError = "skip"
	}
	if a.MaxConsecutiveFailures == 0 {
		a.MaxConsecutiveFailures = 5
	}
	if a.RecordLength == 0 {
		a.RecordLength = 10000
	}
	if a.DataEncoding == "" {
		a.DataEncoding = "RPB"
	}
	if a.DataWidth == 0 {
		a.DataWidth = 1
	}
	if a.Trigger.Type == "" {
		a.Trigger.Type = "EDGE"
	}
	if a.Trigger.Source == "" {
		a.Trigger.Source = c.Instrument.Channel
	}
	if a.Trigger.Slope == "" {
		a.Trigger.Slope = "FALL"
	}
	if a.Output == "" {
		a.Output = "./data/waveforms.csv"
	}

	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}

	an := &c.Analysis
	if an.Resistance == 0 {
		an.Resistance = 50
	}
	if an.Bins == 0 {
		an.Bins = 20
	}
	if an.Model == "" {
		an.Model = "gaussian"
	}
	if an.Polarity == "" {
		an.Polarity = "negative"
	}
	if an.BaselineCorrect == nil {
		on := true
		an.BaselineCorrect = &on
	}
	if an.Metric == "" {
		an.Metric = string(domain.MetricCharge)
	}
	if an.Output == "" {
		an.Output = "./data/metrics.csv"
	}

	if c.Sink.Table == "" {
		c.Sink.Table = "pulse_metrics"
	}
}

func (c *Config) Validate() error {
	a := c.Acquisition
	switch a.Mode {
	case ModeSequence, ModeRunStop:
	default:
		return fmt.Errorf("acquisition.mode %q must be %s or %s", a.Mode, ModeSequence, ModeRunStop)
	}
	if a.TargetCount < 0 || a.Duration < 0 {
		return fmt.Errorf("acquisition.target_count and acquisition.duration must be >= 0")
	}
	if (a.TargetCount > 0) == (a.Duration > 0) {
		return fmt.Errorf("exactly one of acquisition.target_count and acquisition.duration must be set")
	}
	if a.Duration > 0 && a.CaptureTimeout > 0 {
		return fmt.Errorf("acquisition.capture_timeout applies to count-driven sessions only")
	}
	switch a.OnCaptureError {
	case "skip", "abort":
	default:
		return fmt.Errorf("acquisition.on_capture_error %q must be skip or abort", a.OnCaptureError)
	}
	if a.PollInterval < 0 {
		return fmt.Errorf("acquisition.poll_interval must be >= 0")
	}
	if a.DataWidth != 1 && a.DataWidth != 2 {
		return fmt.Errorf("acquisition.data_width %d must be 1 or 2", a.DataWidth)
	}
	if a.DataEncoding != "RPB" && a.DataEncoding != "RIB" {
		return fmt.Errorf("acquisition.data_encoding %q must be RPB or RIB", a.DataEncoding)
	}
	if a.RecordLength <= 0 {
		return fmt.Errorf("acquisition.record_length must be > 0")
	}
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	if c.Sink.DSN != "" && c.Sink.Driver == "" {
		return fmt.Errorf("sink.driver is required when sink.dsn is set")
	}
	return nil
}

// Validate checks only the analysis section, for runs that never touch an
// instrument.
func (a AnalysisConfig) Validate() error {
	if a.Window != (domain.Window{}) {
		if err := a.Window.Validate(); err != nil {
			return fmt.Errorf("analysis.window: %w", err)
		}
	}
	if !(a.Resistance > 0) {
		return fmt.Errorf("analysis.resistance must be > 0")
	}
	if a.Bins <= 0 {
		return fmt.Errorf("analysis.bins must be > 0")
	}
	switch a.Model {
	case "gaussian", "double_gaussian", "poisson_gaussian":
	default:
		return fmt.Errorf("analysis.model %q is not a known fit model", a.Model)
	}
	switch a.Polarity {
	case "negative", "positive":
	default:
		return fmt.Errorf("analysis.polarity %q must be negative or positive", a.Polarity)
	}
	if _, err := domain.ParseMetricKind(a.Metric); err != nil {
		return fmt.Errorf("analysis.metric: %w", err)
	}
	return nil
}

// BaselineEnabled reports whether baseline correction is on.
func (a AnalysisConfig) BaselineEnabled() bool {
	return a.BaselineCorrect == nil || *a.BaselineCorrect
}
