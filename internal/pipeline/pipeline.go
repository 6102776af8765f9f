// Package pipeline runs one detection pass: parse the capture logs, encode
// and normalize the records, train the model pool, pick the best model and
// flag the records it reconstructs worst.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OldStager01/packet-anomaly/internal/autoencoder"
	"github.com/OldStager01/packet-anomaly/internal/detector"
	"github.com/OldStager01/packet-anomaly/internal/events"
	"github.com/OldStager01/packet-anomaly/internal/features"
	"github.com/OldStager01/packet-anomaly/internal/logger"
	"github.com/OldStager01/packet-anomaly/internal/metrics"
	"github.com/OldStager01/packet-anomaly/internal/normalizer"
	"github.com/OldStager01/packet-anomaly/internal/parser"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

var ErrAllModelsFailed = errors.New("every model in the pool failed")

type Config struct {
	Parser   parser.Config
	Model    autoencoder.Config
	Variants []autoencoder.Variant
	// Percentile is used as given; 0 flags every record above the smallest
	// reconstruction error.
	Percentile       float64
	ParallelTraining bool
	// NewPool overrides how the model pool is built for a matrix width.
	NewPool        func(inputDim int) (*autoencoder.Pool, error)
	EventPublisher *events.Publisher
	Metrics        *metrics.Metrics
}

type Pipeline struct {
	config Config
	parser *parser.Parser
}

func New(cfg Config) *Pipeline {
	if len(cfg.Variants) == 0 {
		cfg.Variants = autoencoder.DefaultVariants
	}

	if cfg.NewPool == nil {
		variants, modelCfg := cfg.Variants, cfg.Model
		cfg.NewPool = func(inputDim int) (*autoencoder.Pool, error) {
			return autoencoder.BuildPool(variants, inputDim, modelCfg)
		}
	}

	return &Pipeline{
		config: cfg,
		parser: parser.New(cfg.Parser),
	}
}

// trained is the outcome of one pool model. err is set when it failed.
type trained struct {
	result models.ModelResult
	err    error
}

// Run executes the whole detection pass for run. The run's status is left
// to the caller.
func (p *Pipeline) Run(ctx context.Context, run *models.Run) (*models.RunReport, error) {
	started := time.Now()
	pub := p.config.EventPublisher.WithTraceID(logger.TraceIDFromContext(ctx))
	if p.config.Metrics != nil {
		p.config.Metrics.RunStarted()
	}
	pub.RunStarted(run)

	report, err := p.run(ctx, run, pub)
	if err != nil {
		logger.WithRun(run.ID).Errorf("Run failed: %v", err)
		pub.RunFailed(run.ID, err)
		p.finish("failed", started)
		return nil, err
	}

	report.StartedAt = started
	report.CompletedAt = time.Now()
	pub.RunCompleted(report)
	p.finish("completed", started)
	return report, nil
}

func (p *Pipeline) finish(status string, started time.Time) {
	if p.config.Metrics != nil {
		p.config.Metrics.RunFinished(status, time.Since(started))
	}
}

func (p *Pipeline) run(ctx context.Context, run *models.Run, pub *events.Publisher) (*models.RunReport, error) {
	log := logger.WithRun(run.ID)

	// Step 1: Parse
	parsed, err := p.parser.ParseFiles(ctx, run.Paths)
	if err != nil {
		if p.config.Metrics != nil {
			p.config.Metrics.IncParseErrors()
		}
		return nil, fmt.Errorf("parse: %w", err)
	}

	report := &models.RunReport{
		RunID:       run.ID,
		Paths:       run.Paths,
		RecordCount: len(parsed.Records),
		Percentile:  p.config.Percentile,
		Models:      []models.ModelResult{},
		Records:     []models.ScoredRecord{},
	}
	for _, f := range parsed.Files {
		if f.Skipped {
			report.SkippedFiles = append(report.SkippedFiles, f.Path)
		}
	}
	if p.config.Metrics != nil {
		p.config.Metrics.AddRecords(len(parsed.Records))
		p.config.Metrics.IncSkippedFiles(len(report.SkippedFiles))
	}
	pub.RecordsParsed(run.ID, len(parsed.Files), len(parsed.Records))
	log.Infof("Parsed %d records from %d file(s)", len(parsed.Records), len(parsed.Files))

	if len(parsed.Records) == 0 {
		log.Warn("No records parsed, nothing to score")
		return report, nil
	}

	// Step 2: Encode and normalize
	vectors, matrix := features.Encode(parsed.Records)
	scaled, _, err := normalizer.FitTransform(matrix)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	// Step 3: Train the pool
	_, width := scaled.Dims()
	pool, err := p.config.NewPool(width)
	if err != nil {
		return nil, fmt.Errorf("build model pool: %w", err)
	}

	outcomes := p.trainPool(ctx, pub, run.ID, pool, scaled)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		if o.err != nil {
			if report.FailedModels == nil {
				report.FailedModels = make(map[string]string)
			}
			report.FailedModels[o.result.Name] = o.err.Error()
			continue
		}
		report.Models = append(report.Models, o.result)
	}

	// Step 4: Select the best model
	best, err := detector.SelectBest(report.Models)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllModelsFailed, err)
	}
	selected := report.Models[best]
	report.BestModel = selected.Name
	log.Infof("Best Model: %s with Accuracy %.4f", selected.Name, selected.Accuracy)
	pub.ModelSelected(run.ID, selected)

	// Step 5: Flag records against the full normalized matrix
	detection, err := detector.Detect(scaled, selected.Reconstructions, p.config.Percentile)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	report.Threshold = detection.Threshold
	report.AnomalyCount = detection.Count
	report.ErrorSummary = detector.Summarize(detection.Errors)
	report.Records = make([]models.ScoredRecord, len(parsed.Records))
	for i, rec := range parsed.Records {
		report.Records[i] = models.ScoredRecord{
			Index:    i,
			Record:   rec,
			Features: vectors[i],
			Error:    detection.Errors[i],
			Anomaly:  detection.Flags[i],
		}
	}

	if p.config.Metrics != nil {
		p.config.Metrics.AddAnomalies(detection.Count)
		p.config.Metrics.SetThreshold(detection.Threshold)
	}
	log.Infof("Flagged %d of %d records above threshold %.6f", detection.Count, len(parsed.Records), detection.Threshold)

	return report, nil
}

// trainPool trains every model on the shared read-only matrix and returns the
// outcomes in pool order.
func (p *Pipeline) trainPool(ctx context.Context, pub *events.Publisher, runID string, pool *autoencoder.Pool, m models.Matrix) []trained {
	poolModels := pool.Models()
	outcomes := make([]trained, len(poolModels))

	if !p.config.ParallelTraining {
		for i, model := range poolModels {
			outcomes[i] = p.trainModel(ctx, pub, runID, model, m)
		}
		return outcomes
	}

	var wg sync.WaitGroup
	for i, model := range poolModels {
		wg.Add(1)
		go func(i int, model autoencoder.Model) {
			defer wg.Done()
			outcomes[i] = p.trainModel(ctx, pub, runID, model, m)
		}(i, model)
	}
	wg.Wait()
	return outcomes
}

func (p *Pipeline) trainModel(ctx context.Context, pub *events.Publisher, runID string, model autoencoder.Model, m models.Matrix) trained {
	log := logger.WithModel(runID, model.Name())
	result := models.ModelResult{
		Name:    model.Name(),
		Variant: string(model.Variant()),
	}

	fail := func(err error) trained {
		log.Warnf("Model excluded: %v", err)
		pub.ModelFailed(runID, model.Name(), err)
		if p.config.Metrics != nil {
			p.config.Metrics.IncModelFailure(model.Name())
		}
		return trained{result: result, err: err}
	}

	start := time.Now()
	history, err := model.Train(ctx, m)
	result.TrainingTime = time.Since(start)
	if err != nil {
		return fail(fmt.Errorf("train: %w", err))
	}
	result.History = history

	recon, err := model.Predict(m)
	if err != nil {
		return fail(fmt.Errorf("predict: %w", err))
	}

	mse, err := detector.MSE(m, recon)
	if err != nil {
		return fail(err)
	}

	result.ReconstructionError = mse
	result.Accuracy = detector.Accuracy(mse)
	result.Reconstructions = recon

	log.Infof("%s: Accuracy=%.4f, MSE=%.6f, Training Time=%.2fs",
		result.Name, result.Accuracy, result.ReconstructionError, result.TrainingTime.Seconds())
	pub.ModelTrained(runID, result)
	if p.config.Metrics != nil {
		p.config.Metrics.ObserveTraining(result.Name, result.TrainingTime, result.Accuracy)
	}

	return trained{result: result}
}
