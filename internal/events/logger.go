package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/OldStager01/packet-anomaly/internal/logger"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

// Store is where runs are persisted. database.RunStore implements it.
type Store interface {
	RegisterRun(ctx context.Context, run *models.Run) error
	MarkRunning(ctx context.Context, runID string) error
	SaveReport(ctx context.Context, report *models.RunReport) error
	MarkFailed(ctx context.Context, runID, reason string, at time.Time) error
}

// EventLogger writes every event to the structured log and, when a store is
// configured, records the running transition. Final outcomes are written by
// the orchestrator itself.
type EventLogger struct {
	store     Store
	eventChan <-chan *models.Event
	ctx       context.Context
	cancel    context.CancelFunc
	started   atomic.Bool
	done      chan struct{}
}

func NewEventLogger(store Store, eventChan <-chan *models.Event) *EventLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		store:     store,
		eventChan: eventChan,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (l *EventLogger) Start() {
	if l.started.CompareAndSwap(false, true) {
		go l.run()
	}
}

// Stop returns once the logger goroutine has exited.
func (l *EventLogger) Stop() {
	l.cancel()
	if l.started.Load() {
		<-l.done
	}
}

// Done is closed when the logger goroutine exits, either after Stop or once
// the event channel is closed.
func (l *EventLogger) Done() <-chan struct{} {
	return l.done
}

func (l *EventLogger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

func (l *EventLogger) processEvent(event *models.Event) {
	entry := logger.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"run_id":     event.RunID,
		"severity":   event.Severity,
		"trace_id":   event.TraceID,
	})

	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}

	if l.store == nil {
		return
	}

	if event.Type == models.EventTypeRunStarted {
		if err := l.store.MarkRunning(l.ctx, event.RunID); err != nil {
			logger.WithRun(event.RunID).Errorf("Failed to mark run as running: %v", err)
		}
	}
}

func (l *EventLogger) LogToJSON(event *models.Event) string {
	data, _ := json.Marshal(event)
	return string(data)
}
