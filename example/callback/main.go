package main

import (
	"fmt"
	"log"

	"github.com/ghalamif/PulseFlow"
)

// Prints every pulse metric of an existing waveform table as it is written.
func main() {
	cfg, err := pulseflow.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	callback := func(batch []pulseflow.PulseMetric) error {
		for _, m := range batch {
			fmt.Printf("run=%s %s %s=%g\n", m.RunID, m.Waveform, m.Kind, m.Value)
		}
		return nil
	}

	s, err := pulseflow.NewSession(cfg, pulseflow.WithSink(pulseflow.NewCallbackSink("stdout", callback)))
	if err != nil {
		log.Fatalf("session: %v", err)
	}
	defer s.Close()

	if _, err := s.Analyze(cfg.Acquisition.Output); err != nil {
		log.Fatalf("analyze: %v", err)
	}
}
