package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OldStager01/packet-anomaly/internal/logger"
	"github.com/OldStager01/packet-anomaly/internal/simulator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	out := flag.String("out", "capture.log", "output file, or directory when -files > 1 (.gz compresses)")
	files := flag.Int("files", 1, "number of log files to write")
	records := flag.Int("records", 500, "records per file")
	rate := flag.Float64("anomaly-rate", 0.02, "fraction of records with an injected anomaly")
	pattern := flag.String("pattern", "steady", "traffic pattern: steady, web, wave")
	anomalies := flag.String("anomalies", "", "comma-separated anomaly kinds (default: all)")
	seed := flag.Int64("seed", 1, "random seed")
	interval := flag.Duration("interval", time.Second, "time between records")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger.Setup(*logLevel, "development")

	kinds, err := parseAnomalies(*anomalies)
	if err != nil {
		return err
	}

	paths, err := outputPaths(*out, *files)
	if err != nil {
		return err
	}

	sim := simulator.New(simulator.Config{
		Records:     *records,
		AnomalyRate: *rate,
		Pattern:     simulator.ParsePattern(*pattern),
		Anomalies:   kinds,
		Seed:        *seed,
		Interval:    *interval,
	})

	for _, path := range paths {
		if err := simulator.WriteFile(path, sim.Generate()); err != nil {
			return err
		}
	}

	logger.Infof("Wrote %d capture log(s)", len(paths))
	return nil
}

func parseAnomalies(list string) ([]simulator.Anomaly, error) {
	if list == "" {
		return nil, nil
	}

	var kinds []simulator.Anomaly
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		a, ok := simulator.ParseAnomaly(name)
		if !ok {
			return nil, fmt.Errorf("unknown anomaly kind %q", name)
		}
		kinds = append(kinds, a)
	}
	return kinds, nil
}

func outputPaths(out string, files int) ([]string, error) {
	if files <= 1 {
		return []string{out}, nil
	}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", out, err)
	}
	paths := make([]string, files)
	for i := range paths {
		paths[i] = filepath.Join(out, fmt.Sprintf("capture-%03d.log", i+1))
	}
	return paths, nil
}
