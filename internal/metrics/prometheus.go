package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OldStager01/packet-anomaly/internal/logger"
)

const namespace = "packet_anomaly"

type Metrics struct {
	registry *prometheus.Registry

	// Counters
	runsTotal        *prometheus.CounterVec
	recordsParsed    prometheus.Counter
	filesSkipped     prometheus.Counter
	parseErrors      prometheus.Counter
	anomaliesFlagged prometheus.Counter
	modelFailures    *prometheus.CounterVec

	// Gauges
	modelAccuracy *prometheus.GaugeVec
	lastThreshold prometheus.Gauge
	activeRuns    prometheus.Gauge

	// Histograms
	trainingDuration *prometheus.HistogramVec
	runDuration      prometheus.Histogram
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics set.
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New builds a metrics set on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Detection runs by final status",
			},
			[]string{"status"},
		),
		recordsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      "Log records reassembled by the parser",
		}),
		filesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Input files skipped because they were missing or invalid",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Parse failures that aborted a run",
		}),
		anomaliesFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_flagged_total",
			Help:      "Records flagged as anomalous",
		}),
		modelFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_failures_total",
				Help:      "Models that failed to train or predict",
			},
			[]string{"model"},
		),
		modelAccuracy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_accuracy",
				Help:      "Accuracy (1 - MSE) of the most recent training per model",
			},
			[]string{"model"},
		),
		lastThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_threshold",
			Help:      "Reconstruction error threshold of the most recent run",
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently in progress",
		}),
		trainingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_training_duration_seconds",
				Help:      "Wall-clock training time per model",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"model"},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of detection runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.recordsParsed,
		m.filesSkipped,
		m.parseErrors,
		m.anomaliesFlagged,
		m.modelFailures,
		m.modelAccuracy,
		m.lastThreshold,
		m.activeRuns,
		m.trainingDuration,
		m.runDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RunStarted() {
	m.activeRuns.Inc()
}

func (m *Metrics) RunFinished(status string, d time.Duration) {
	m.activeRuns.Dec()
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) AddRecords(n int) {
	m.recordsParsed.Add(float64(n))
}

func (m *Metrics) IncSkippedFiles(n int) {
	m.filesSkipped.Add(float64(n))
}

func (m *Metrics) IncParseErrors() {
	m.parseErrors.Inc()
}

func (m *Metrics) AddAnomalies(n int) {
	m.anomaliesFlagged.Add(float64(n))
}

func (m *Metrics) IncModelFailure(model string) {
	m.modelFailures.WithLabelValues(model).Inc()
}

func (m *Metrics) ObserveTraining(model string, d time.Duration, accuracy float64) {
	m.trainingDuration.WithLabelValues(model).Observe(d.Seconds())
	m.modelAccuracy.WithLabelValues(model).Set(accuracy)
}

func (m *Metrics) SetThreshold(v float64) {
	m.lastThreshold.Set(v)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func StartServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Get().Handler())

	addr := ":" + strconv.Itoa(port)
	logger.Infof("Prometheus metrics server listening on %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("Prometheus server error: %v", err)
		}
	}()
}
