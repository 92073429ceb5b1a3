package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/PulseFlow"
	"github.com/ghalamif/PulseFlow/internal/adapters/sim"
)

// Acquires 500 simulated pulses and fits the charge spectrum.
func main() {
	cfg := pulseflow.DefaultConfig()
	cfg.Acquisition.TargetCount = 500
	cfg.Acquisition.RecordLength = 1000
	cfg.Acquisition.Output = "./data/sim-waveforms.csv"
	cfg.Analysis.Window = pulseflow.Window{T0: 0.3e-7, T1: 1.2e-7, Tol: 1e-12}

	scope := sim.New(sim.Config{AmplitudeSpread: 0.05, NoiseCodes: 0.5})
	s, err := pulseflow.NewSession(cfg, pulseflow.WithDialer(scope.Dial))
	if err != nil {
		log.Fatalf("session: %v", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := s.Acquire(ctx)
	if err != nil {
		log.Fatalf("acquire: %v", err)
	}
	an, err := s.Analyze(res.Output)
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}
	if an.FitErr != nil {
		log.Fatalf("fit: %v", an.FitErr)
	}
	mu, dmu, _ := an.Fit.Param("mu")
	sigma, dsigma, _ := an.Fit.Param("sigma")
	fmt.Printf("charge: mu=%.4g±%.2g C sigma=%.4g±%.2g C (R²=%.3f)\n", mu, dmu, sigma, dsigma, an.Fit.RSquared)
}
