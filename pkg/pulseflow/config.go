package pulseflow

import (
	"github.com/ghalamif/PulseFlow/internal/app/config"
	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// InstrumentConfig names the oscilloscope resource and its command set.
	InstrumentConfig = config.InstrumentConfig
	// Commands holds the instrument-specific command strings.
	Commands = config.Commands
	// AcquisitionConfig controls trigger setup and session length.
	AcquisitionConfig = config.AcquisitionConfig
	// Policy controls pacing and per-capture error isolation.
	Policy = ports.Policy
	// AnalysisConfig selects the window, metric and fit model.
	AnalysisConfig = config.AnalysisConfig
	// Window is an inclusive time range with a matching tolerance.
	Window = domain.Window
	// SinkConfig configures the optional SQL metric table.
	SinkConfig = config.SinkConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// JournalConfig configures on-disk capture durability.
	JournalConfig = config.JournalConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
