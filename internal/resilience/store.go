package resilience

import (
	"context"
	"time"

	"github.com/OldStager01/packet-anomaly/internal/events"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

// GuardedStore sends run persistence through a circuit breaker so a database
// outage costs one fast ErrCircuitOpen per call instead of a timeout.
type GuardedStore struct {
	inner   events.Store
	breaker *CircuitBreaker
}

func NewGuardedStore(inner events.Store, breaker *CircuitBreaker) *GuardedStore {
	return &GuardedStore{inner: inner, breaker: breaker}
}

func (s *GuardedStore) Breaker() *CircuitBreaker {
	return s.breaker
}

func (s *GuardedStore) RegisterRun(ctx context.Context, run *models.Run) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.inner.RegisterRun(ctx, run)
	})
}

func (s *GuardedStore) MarkRunning(ctx context.Context, runID string) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.inner.MarkRunning(ctx, runID)
	})
}

func (s *GuardedStore) SaveReport(ctx context.Context, report *models.RunReport) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.inner.SaveReport(ctx, report)
	})
}

func (s *GuardedStore) MarkFailed(ctx context.Context, runID, reason string, at time.Time) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.inner.MarkFailed(ctx, runID, reason, at)
	})
}
