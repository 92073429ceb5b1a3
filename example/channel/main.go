package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/ghalamif/PulseFlow"
)

// Runs a supply-voltage sweep over tables given as setting=path arguments
// and consumes the summary metrics from a channel.
func main() {
	cfg, err := pulseflow.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	sink, ch, closeFn := pulseflow.NewChannelSink("sweep", 1)
	s, err := pulseflow.NewSession(cfg, pulseflow.WithSink(sink))
	if err != nil {
		log.Fatalf("session: %v", err)
	}
	defer s.Close()

	var inputs []pulseflow.SweepInput
	for _, a := range os.Args[1:] {
		setting, path, _ := strings.Cut(a, "=")
		v, err := strconv.ParseFloat(setting, 64)
		if err != nil || path == "" {
			log.Fatalf("argument %q: want setting=path", a)
		}
		inputs = append(inputs, pulseflow.SweepInput{Setting: v, Path: path})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for batch := range ch {
			for _, m := range batch {
				fmt.Printf("setting=%g %s=%g\n", m.Setting, m.Kind, m.Value)
			}
		}
	}()

	if _, err := s.Sweep(inputs, ""); err != nil {
		log.Fatalf("sweep: %v", err)
	}
	closeFn()
	<-done
}
