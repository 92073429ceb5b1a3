package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ghalamif/PulseFlow"
	"github.com/ghalamif/PulseFlow/internal/adapters/sim"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "acquire":
		err = acquireCommand(os.Args[2:])
	case "analyze":
		err = analyzeCommand(os.Args[2:])
	case "sweep":
		err = sweepCommand(os.Args[2:])
	case "recover":
		err = recoverCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("pulse-bench %s: %v", cmd, err)
	}
}

func acquireCommand(args []string) error {
	fs := flag.NewFlagSet("acquire", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to bench configuration file")
	simulate := fs.Bool("simulate", false, "Acquire from the built-in simulated oscilloscope")
	count := fs.Int("count", 0, "Override acquisition.target_count")
	duration := fs.Duration("duration", 0, "Override acquisition.duration")
	output := fs.String("output", "", "Override acquisition.output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := pulseflow.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *count > 0 {
		cfg.Acquisition.TargetCount, cfg.Acquisition.Duration = *count, 0
	}
	if *duration > 0 {
		cfg.Acquisition.TargetCount, cfg.Acquisition.Duration = 0, *duration
		cfg.Acquisition.CaptureTimeout = 0
	}
	if *output != "" {
		cfg.Acquisition.Output = *output
	}

	var opts []pulseflow.SessionOption
	if *simulate {
		scope := sim.New(sim.Config{AmplitudeSpread: 0.05, NoiseCodes: 0.5})
		opts = append(opts, pulseflow.WithDialer(scope.Dial))
	}
	s, err := pulseflow.NewSession(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, runErr := s.Acquire(ctx)
	if res.Persisted {
		fmt.Printf("run %s: %d waveforms from %q in %s (failed %d) -> %s\n",
			res.RunID, res.Waveforms, res.Identity, res.Report.Elapsed.Round(time.Millisecond),
			res.Report.Failed, res.Output)
	}
	return errors.Join(runErr, s.Close())
}

func analyzeCommand(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to bench configuration file")
	input := fs.String("input", "", "Waveform table (default acquisition.output)")
	average := fs.String("average", "", "Also write the average window-selected pulse to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := pulseflow.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *input == "" {
		*input = cfg.Acquisition.Output
	}
	s, err := pulseflow.NewSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	an, err := s.Analyze(*input)
	if err != nil {
		return err
	}
	fmt.Printf("%d %s values -> %s\n", len(an.Metrics), an.Kind, cfg.Analysis.Output)
	if an.FitErr != nil {
		fmt.Printf("fit: %v\n", an.FitErr)
	} else {
		printFit(an.Fit)
	}

	if *average != "" {
		avg, err := s.Average(*input, *average)
		if err != nil {
			return fmt.Errorf("average: %w", err)
		}
		fmt.Printf("average pulse: %d samples -> %s\n", avg.Len(), *average)
	}
	return nil
}

func printFit(r *pulseflow.FitResult) {
	fmt.Printf("fit %s: R²=%.4f after %d iterations\n", r.Model, r.RSquared, r.Iterations)
	for i, name := range r.ParamNames {
		fmt.Printf("  %-6s = %.6g ± %.3g\n", name, r.Params[i], r.Errors[i])
	}
}

func sweepCommand(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to bench configuration file")
	output := fs.String("output", "./data/sweep.csv", "Sweep table to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	inputs, err := parseSweepInputs(fs.Args())
	if err != nil {
		return err
	}

	cfg, err := pulseflow.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s, err := pulseflow.NewSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	points, err := s.Sweep(inputs, *output)
	if err != nil {
		return err
	}
	fmt.Printf("%10s %9s %14s %10s\n", "setting", "waveforms", "charge[C]", "peak[V]")
	for _, p := range points {
		fmt.Printf("%10g %9d %14.6g %10.4g\n", p.Setting, p.Waveforms, p.Charge, p.Peak)
	}
	return nil
}

// parseSweepInputs reads "setting=path" arguments.
func parseSweepInputs(args []string) ([]pulseflow.SweepInput, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expected setting=path arguments")
	}
	out := make([]pulseflow.SweepInput, 0, len(args))
	for _, a := range args {
		setting, path, ok := strings.Cut(a, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("argument %q: want setting=path", a)
		}
		v, err := strconv.ParseFloat(setting, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", a, err)
		}
		out = append(out, pulseflow.SweepInput{Setting: v, Path: path})
	}
	return out, nil
}

func recoverCommand(args []string) error {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to bench configuration file")
	output := fs.String("output", "./data/recovered.csv", "Table to rebuild from the journal")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := pulseflow.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s, err := pulseflow.NewSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Recover(*output)
	if err != nil {
		return err
	}
	if rec.Replayed == 0 && rec.Skipped == 0 {
		fmt.Println("journal has no uncommitted captures")
		return nil
	}
	fmt.Printf("recovered %d waveforms (%d skipped) -> %s\n", rec.Replayed, rec.Skipped, *output)
	if rec.Pending > 0 {
		fmt.Printf("%d captures of later sessions remain; run recover again with another -output\n", rec.Pending)
	}
	return nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := pulseflow.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"pulse_captures_total":         0,
		"pulse_capture_failures_total": 0,
		"pulse_collection_size":        0,
		"pulse_journal_size_bytes":     0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] captures=%.0f failures=%.0f collection=%.0f journal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["pulse_captures_total"],
		targets["pulse_capture_failures_total"],
		targets["pulse_collection_size"],
		targets["pulse_journal_size_bytes"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`PulseFlow bench CLI

Usage:
  pulse-bench <command> [flags]

Commands:
  acquire    Capture waveforms into a table (use -simulate for a dry run)
  analyze    Extract pulse metrics from a table and fit their distribution
  sweep      Average pulses per setting and tabulate charge and peak
  recover    Rebuild a table from captures left in the journal
  validate   Load and validate a config file without touching an instrument
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  pulse-bench acquire -config ./data/config.yaml -count 500
  pulse-bench acquire -simulate -duration 30s -output ./data/dry.csv
  pulse-bench analyze -config ./data/config.yaml -average ./data/avg.csv
  pulse-bench sweep -output ./data/sweep.csv 900=./data/900V.csv 1000=./data/1000V.csv
  pulse-bench stats -url http://localhost:9100/metrics -interval 1s
`)
}
