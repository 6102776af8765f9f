// Package simulator generates synthetic capture logs in the format the
// parser reads, with a known set of injected anomalies.
package simulator

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/OldStager01/packet-anomaly/internal/logger"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

const timestampLayout = "Mon Jan 02 15:04:05 2006"

type Config struct {
	Records     int
	AnomalyRate float64
	Pattern     Pattern
	Anomalies   []Anomaly
	Seed        int64
	Start       time.Time
	Interval    time.Duration
}

// Sample is one generated record and whether an anomaly was injected.
type Sample struct {
	Timestamp time.Time
	Packet    Packet
	Injected  string
}

func (s Sample) IsAnomaly() bool {
	return s.Injected != ""
}

// Record is the record the parser is expected to reassemble from s.
func (s Sample) Record() models.LogRecord {
	var sum int64
	for _, b := range s.Packet.Payload {
		sum += int64(b)
	}
	return models.LogRecord{
		Timestamp:    s.Timestamp.Format(timestampLayout),
		PacketLength: int64(s.Packet.Length),
		SourceIP:     s.Packet.Source,
		DestIP:       s.Packet.Dest,
		PayloadSum:   sum,
		PayloadLen:   int64(len(s.Packet.Payload)),
	}
}

type Simulator struct {
	config Config
	rng    *rand.Rand
}

func New(cfg Config) *Simulator {
	if cfg.Records <= 0 {
		cfg.Records = 500
	}
	if cfg.AnomalyRate < 0 || cfg.AnomalyRate > 1 {
		cfg.AnomalyRate = 0.02
	}
	if cfg.Pattern == nil {
		cfg.Pattern = PatternSteady
	}
	if len(cfg.Anomalies) == 0 {
		cfg.Anomalies = defaultAnomalies
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}

	return &Simulator{
		config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Generate produces the configured number of samples. Every call continues
// the same random stream.
func (s *Simulator) Generate() []Sample {
	samples := make([]Sample, s.config.Records)
	ts := s.config.Start

	for i := range samples {
		pkt := s.config.Pattern.Next(s.rng, i)
		sample := Sample{Timestamp: ts, Packet: pkt}

		if s.rng.Float64() < s.config.AnomalyRate {
			a := s.config.Anomalies[s.rng.Intn(len(s.config.Anomalies))]
			sample.Packet = a.Inject(s.rng, pkt)
			sample.Injected = a.Name()
		}

		samples[i] = sample
		ts = ts.Add(s.config.Interval)
	}

	return samples
}

// WriteLog renders samples as capture log blocks.
func WriteLog(w io.Writer, samples []Sample) error {
	bw := bufio.NewWriter(w)
	for _, s := range samples {
		if err := writeBlock(bw, s); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeBlock(w io.Writer, s Sample) error {
	hex := make([]string, len(s.Packet.Payload))
	for i, b := range s.Packet.Payload {
		hex[i] = fmt.Sprintf("%02x", b)
	}

	_, err := fmt.Fprintf(w, "%s\nPacket length: %d\nSource: %s\nDest: %s\nPayload (hex): %s\n\n",
		s.Timestamp.Format(timestampLayout),
		s.Packet.Length,
		s.Packet.Source,
		s.Packet.Dest,
		strings.Join(hex, " "),
	)
	return err
}

// WriteFile writes samples to path, gzip-compressed when path ends in .gz.
func WriteFile(path string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := WriteLog(w, samples); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finish %s: %w", path, err)
		}
	}

	injected := 0
	for _, s := range samples {
		if s.IsAnomaly() {
			injected++
		}
	}
	logger.WithFields(map[string]interface{}{
		"path":      path,
		"records":   len(samples),
		"anomalies": injected,
	}).Debug("Wrote synthetic capture log")

	return f.Close()
}
