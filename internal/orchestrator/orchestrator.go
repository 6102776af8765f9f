package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/packet-anomaly/internal/autoencoder"
	"github.com/OldStager01/packet-anomaly/internal/events"
	"github.com/OldStager01/packet-anomaly/internal/logger"
	"github.com/OldStager01/packet-anomaly/internal/metrics"
	"github.com/OldStager01/packet-anomaly/internal/parser"
	"github.com/OldStager01/packet-anomaly/internal/pipeline"
	"github.com/OldStager01/packet-anomaly/internal/resilience"
	"github.com/OldStager01/packet-anomaly/pkg/config"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrShuttingDown = errors.New("orchestrator is shutting down")
	ErrNoPaths      = errors.New("no input paths given")
)

const persistTimeout = 30 * time.Second

type runState struct {
	run    models.Run
	report *models.RunReport
	cancel context.CancelFunc
}

// Orchestrator owns the event bus and tracks detection runs. Runs started
// with StartRun execute in the background; Execute runs in the caller's
// goroutine.
type Orchestrator struct {
	config      *config.Config
	eventBus    *events.EventBus
	eventLogger *events.EventLogger
	store       events.Store
	metrics     *metrics.Metrics
	variants    []autoencoder.Variant

	runs    map[string]*runState
	mu      sync.RWMutex
	wg      sync.WaitGroup
	slots   chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
}

// New wires an orchestrator. store may be nil when persistence is disabled.
func New(cfg *config.Config, store events.Store, m *metrics.Metrics) (*Orchestrator, error) {
	variants, err := cfg.Detector.Variants()
	if err != nil {
		return nil, fmt.Errorf("invalid model list: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	eventBus := events.NewEventBus(cfg.Events.BufferSize)

	if store != nil {
		store = resilience.NewGuardedStore(store, resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "run-store",
			MaxFailures:  cfg.Database.BreakerMaxFailures,
			ResetTimeout: cfg.Database.BreakerResetTimeout,
		}))
	}

	eventLogger := events.NewEventLogger(store, eventBus.SubscribeAll())

	maxRuns := cfg.Detector.MaxConcurrent
	if maxRuns <= 0 {
		maxRuns = 1
	}

	return &Orchestrator{
		config:      cfg,
		eventBus:    eventBus,
		eventLogger: eventLogger,
		store:       store,
		metrics:     m,
		variants:    variants,
		runs:        make(map[string]*runState),
		slots:       make(chan struct{}, maxRuns),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

func (o *Orchestrator) Start() error {
	logger.Info("Orchestrator starting")
	o.mu.Lock()
	o.started = true
	o.mu.Unlock()
	o.eventLogger.Start()
	return nil
}

func (o *Orchestrator) Stop() {
	logger.Info("Orchestrator stopping")

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	started := o.started
	for runID, state := range o.runs {
		if state.cancel != nil && !state.run.IsFinished() {
			logger.WithRun(runID).Info("Cancelling run")
			state.cancel()
		}
	}
	o.mu.Unlock()

	// Wait for in-flight runs to publish their final events
	o.wg.Wait()
	o.cancel()

	// Close the bus first so the logger drains what is buffered
	o.eventBus.Close()
	if started {
		<-o.eventLogger.Done()
	}
	o.eventLogger.Stop()

	logger.Info("Orchestrator stopped")
}

func (o *Orchestrator) newPipeline() *pipeline.Pipeline {
	return pipeline.New(pipeline.Config{
		Parser:           parser.Config{SkipInvalidFiles: o.config.Parser.SkipInvalidFiles},
		Model:            o.config.Model.ToAutoencoderConfig(),
		Variants:         o.variants,
		Percentile:       o.config.Detector.Percentile,
		ParallelTraining: o.config.Detector.ParallelTraining,
		EventPublisher:   events.NewPublisher(o.eventBus),
		Metrics:          o.metrics,
	})
}

// register adds a pending run together with its cancel func, so Stop and
// CancelRun can always reach a registered run.
func (o *Orchestrator) register(parent context.Context, paths []string, link bool) (*runState, context.Context, models.Run, error) {
	if len(paths) == 0 {
		return nil, nil, models.Run{}, ErrNoPaths
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return nil, nil, models.Run{}, ErrShuttingDown
	}

	runCtx, cancel := o.runContext(parent, link)
	state := &runState{run: *models.NewRun(paths), cancel: cancel}
	o.runs[state.run.ID] = state
	o.wg.Add(1)
	return state, runCtx, state.run, nil
}

// persist writes to the run store outside the run context, so a cancelled
// run still records how it ended.
func (o *Orchestrator) persist(runID, what string, fn func(ctx context.Context) error) {
	if o.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.WithRun(runID).Errorf("Failed to persist %s: %v", what, err)
	}
}

// StartRun registers a run and executes it in the background. The returned
// run is a snapshot taken before execution starts.
func (o *Orchestrator) StartRun(ctx context.Context, paths []string) (*models.Run, error) {
	// Background runs outlive the request that started them, so only the
	// trace id is taken from ctx.
	state, runCtx, snapshot, err := o.register(ctx, paths, false)
	if err != nil {
		return nil, err
	}

	o.persist(snapshot.ID, "run", func(ctx context.Context) error {
		return o.store.RegisterRun(ctx, &snapshot)
	})

	go func() {
		defer o.wg.Done()
		defer state.cancel()

		select {
		case o.slots <- struct{}{}:
			defer func() { <-o.slots }()
		case <-runCtx.Done():
			o.finish(state, nil, runCtx.Err())
			return
		}

		o.execute(runCtx, state)
	}()

	logger.WithRun(snapshot.ID).Infof("Run queued for %d path(s)", len(paths))
	return &snapshot, nil
}

// Execute runs the pipeline synchronously and returns its report.
func (o *Orchestrator) Execute(ctx context.Context, paths []string) (*models.RunReport, error) {
	state, runCtx, snapshot, err := o.register(ctx, paths, true)
	if err != nil {
		return nil, err
	}
	defer o.wg.Done()
	defer state.cancel()

	o.persist(snapshot.ID, "run", func(ctx context.Context) error {
		return o.store.RegisterRun(ctx, &snapshot)
	})

	return o.execute(runCtx, state)
}

// runContext derives a run context from the orchestrator's lifetime. When
// link is set, cancelling parent also cancels the run.
func (o *Orchestrator) runContext(parent context.Context, link bool) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(o.ctx)
	if traceID := logger.TraceIDFromContext(parent); traceID != "" {
		ctx = logger.WithTraceID(ctx, traceID)
	}

	stop := func() bool { return false }
	if link {
		stop = context.AfterFunc(parent, cancel)
	}

	if timeout := o.config.Detector.RunTimeout; timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, timeout)
		return ctx, func() {
			stop()
			tcancel()
			cancel()
		}
	}
	return ctx, func() {
		stop()
		cancel()
	}
}

func (o *Orchestrator) execute(ctx context.Context, state *runState) (*models.RunReport, error) {
	o.mu.Lock()
	state.run.Status = models.RunStatusRunning
	run := state.run
	o.mu.Unlock()

	report, err := o.newPipeline().Run(ctx, &run)
	o.finish(state, report, err)
	return report, err
}

// finish records the outcome in memory and then in the store. The store is
// written directly rather than through the event bus, which may drop events.
func (o *Orchestrator) finish(state *runState, report *models.RunReport, err error) {
	o.mu.Lock()
	now := time.Now()
	state.run.CompletedAt = &now
	if err != nil {
		state.run.Status = models.RunStatusFailed
		state.run.Error = err.Error()
	} else {
		state.run.Status = models.RunStatusCompleted
		state.report = report
	}
	run := state.run
	o.mu.Unlock()

	if err != nil {
		o.persist(run.ID, "run failure", func(ctx context.Context) error {
			return o.store.MarkFailed(ctx, run.ID, run.Error, now)
		})
		return
	}
	o.persist(run.ID, "run report", func(ctx context.Context) error {
		return o.store.SaveReport(ctx, report)
	})
}

// GetRun returns a snapshot of the run and, once it completed, its report.
func (o *Orchestrator) GetRun(id string) (*models.Run, *models.RunReport, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	state, ok := o.runs[id]
	if !ok {
		return nil, nil, ErrRunNotFound
	}
	run := state.run
	return &run, state.report, nil
}

// ListRuns returns snapshots of all known runs, newest first.
func (o *Orchestrator) ListRuns() []*models.Run {
	o.mu.RLock()
	defer o.mu.RUnlock()

	runs := make([]*models.Run, 0, len(o.runs))
	for _, state := range o.runs {
		run := state.run
		runs = append(runs, &run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs
}

func (o *Orchestrator) CancelRun(id string) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	state, ok := o.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if state.cancel != nil && !state.run.IsFinished() {
		state.cancel()
	}
	return nil
}

func (o *Orchestrator) SubscribeAllEvents() <-chan *models.Event {
	return o.eventBus.SubscribeAll()
}
