package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: maxFailures, ResetTimeout: time.Minute})
	now := time.Unix(1000, 0)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		calls    []func(context.Context) error
		expected State
	}{
		{"successes stay closed", []func(context.Context) error{succeed, succeed}, StateClosed},
		{"failures below limit stay closed", []func(context.Context) error{fail, fail}, StateClosed},
		{"limit reached opens", []func(context.Context) error{fail, fail, fail}, StateOpen},
		{"success resets the count", []func(context.Context) error{fail, fail, succeed, fail, fail}, StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, _ := newTestBreaker(3)
			for _, call := range tt.calls {
				_ = cb.Execute(context.Background(), call)
			}
			assert.Equal(t, tt.expected, cb.State())
		})
	}
}

func TestCircuitBreaker_OpenRejectsUntilTimeout(t *testing.T) {
	cb, now := newTestBreaker(1)

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	require.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	*now = now.Add(time.Minute)
	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1)
	_ = cb.Execute(context.Background(), fail)

	*now = now.Add(2 * time.Minute)
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb, _ := newTestBreaker(1)

	err := cb.Execute(context.Background(), func(context.Context) error { return context.DeadlineExceeded })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateClosed, cb.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, cb.Execute(ctx, succeed), context.Canceled)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1)
	_ = cb.Execute(context.Background(), fail)
	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}

type flakyStore struct {
	err   error
	calls int
}

func (s *flakyStore) RegisterRun(context.Context, *models.Run) error {
	s.calls++
	return s.err
}

func (s *flakyStore) MarkRunning(context.Context, string) error {
	s.calls++
	return s.err
}

func (s *flakyStore) SaveReport(context.Context, *models.RunReport) error {
	s.calls++
	return s.err
}

func (s *flakyStore) MarkFailed(context.Context, string, string, time.Time) error {
	s.calls++
	return s.err
}

func TestGuardedStore_ShortCircuits(t *testing.T) {
	inner := &flakyStore{err: errBoom}
	cb, _ := newTestBreaker(2)
	store := NewGuardedStore(inner, cb)
	ctx := context.Background()

	assert.ErrorIs(t, store.RegisterRun(ctx, models.NewRun([]string{"a"})), errBoom)
	assert.ErrorIs(t, store.SaveReport(ctx, &models.RunReport{RunID: "r"}), errBoom)
	assert.ErrorIs(t, store.MarkFailed(ctx, "r", "x", time.Now()), ErrCircuitOpen)
	assert.ErrorIs(t, store.MarkRunning(ctx, "r"), ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, StateOpen, store.Breaker().State())
}
