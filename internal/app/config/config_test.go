package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
instrument:
  resource: tcp://192.168.1.20:4000
acquisition:
  device_id: MPPC-7
  supply_voltage: 56.5
  target_count: 500
analysis:
  window:
    t0: 0.5e-7
    t1: 1.0e-7
    tol: 1e-9
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Acquisition.PollInterval != 5*time.Millisecond {
		t.Fatalf("expected PollInterval default 5ms, got %s", cfg.Acquisition.PollInterval)
	}
	if cfg.Acquisition.Mode != ModeSequence {
		t.Fatalf("expected sequence mode, got %s", cfg.Acquisition.Mode)
	}
	if cfg.Acquisition.Trigger.Source != "CH1" {
		t.Fatalf("expected trigger source to follow channel, got %s", cfg.Acquisition.Trigger.Source)
	}
	if cfg.Analysis.Resistance != 50 || cfg.Analysis.Bins != 20 {
		t.Fatalf("expected 50 ohm and 20 bins, got %v and %d", cfg.Analysis.Resistance, cfg.Analysis.Bins)
	}
	if !cfg.Analysis.BaselineEnabled() {
		t.Fatalf("expected baseline correction on by default")
	}
	if cfg.Journal.Dir != "./data/journal" {
		t.Fatalf("expected default journal dir ./data/journal, got %s", cfg.Journal.Dir)
	}
	if cfg.Instrument.Commands.Curve != "CURV?" {
		t.Fatalf("expected Tektronix curve query, got %q", cfg.Instrument.Commands.Curve)
	}
	if cfg.Analysis.Window.T1 != 1e-7 {
		t.Fatalf("unexpected window %+v", cfg.Analysis.Window)
	}
}

func TestParseInlinePolicyAndOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
acquisition:
  mode: runstop
  duration: 2m
  poll_interval: 1ms
  on_capture_error: abort
  trigger:
    source: AUX
    slope: RISE
    level: 1
analysis:
  baseline_correct: false
  polarity: positive
  metric: peak
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	a := cfg.Acquisition
	if a.Duration != 2*time.Minute || a.PollInterval != time.Millisecond || a.OnCaptureError != "abort" {
		t.Fatalf("unexpected acquisition %+v", a)
	}
	if a.Trigger.Source != "AUX" || a.Trigger.Level != 1 {
		t.Fatalf("unexpected trigger %+v", a.Trigger)
	}
	if cfg.Analysis.BaselineEnabled() {
		t.Fatalf("expected baseline correction off")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"both drivers":    "acquisition: {target_count: 10, duration: 1s}",
		"no driver":       "acquisition: {mode: sequence}",
		"bad mode":        "acquisition: {target_count: 1, mode: burst}",
		"inverted window": "acquisition: {target_count: 1}\nanalysis: {window: {t0: 2e-7, t1: 1e-7}}",
		"bad model":       "acquisition: {target_count: 1}\nanalysis: {model: landau}",
		"bad width":       "acquisition: {target_count: 1, data_width: 4}",
		"dsn no driver":   "acquisition: {target_count: 1}\nsink: {dsn: 'postgres://x'}",
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestPreambleParse(t *testing.T) {
	var p Preamble
	p.applyDefaults()
	synthetic := "a,b,c;d;e;f;g;4.0E-10;h;i;j;8.0E-4;128;1.0E-3"
	c, err := p.Parse(synthetic)
	if err != nil {
		t.Fatalf("parse synthetic: %v", err)
	}
	if c.SampleInterval != 4e-10 || c.VerticalScale != 8e-4 || c.VerticalOffset != 128 || c.VerticalZero != 1e-3 {
		t.Fatalf("unexpected coefficients %+v", c)
	}

	if _, err := p.Parse("1;2;3"); err == nil {
		t.Fatalf("expected index error")
	}
}

func TestTriggeredStates(t *testing.T) {
	var c Commands
	c.applyDefaults()
	if !c.Triggered("TRIGGER\n") || !c.Triggered("sav") || c.Triggered("READY") || c.Triggered("ARMED") {
		t.Fatalf("unexpected trigger state mapping")
	}
}
