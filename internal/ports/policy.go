package ports

import "time"

// Policy controls how an acquisition session paces and isolates captures.
type Policy struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`

	OnCaptureError         string `yaml:"on_capture_error"` // "skip", "abort"
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures"`
}
