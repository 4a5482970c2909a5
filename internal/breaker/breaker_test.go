package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time           { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func fail(context.Context) error { return assert.AnError }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var transitions []string
	cb := NewCircuitBreaker(Settings{
		Name:        "test",
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
		Timeout:     100 * time.Millisecond,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	}).WithClock(clock.Now)
	ctx := context.Background()

	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Do(ctx, fail), assert.AnError)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Do(ctx, fail), assert.AnError)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpenState)
	assert.False(t, called)

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Do(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"closed>open", "open>half_open", "half_open>closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker(Settings{
		ReadyToTrip: func(Counts) bool { return true },
		Timeout:     10 * time.Millisecond,
	}).WithClock(clock.Now)
	ctx := context.Background()

	_ = cb.Do(ctx, fail)
	clock.Advance(10 * time.Millisecond)
	_ = cb.Do(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenMaxRequests(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker(Settings{
		MaxRequests: 1,
		ReadyToTrip: func(Counts) bool { return true },
		Timeout:     10 * time.Millisecond,
	}).WithClock(clock.Now)
	ctx := context.Background()

	_ = cb.Do(ctx, fail)
	clock.Advance(20 * time.Millisecond)

	probing := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Do(ctx, func(context.Context) error {
			close(probing)
			<-release
			return nil
		})
	}()
	<-probing
	assert.ErrorIs(t, cb.Do(ctx, ok), ErrOpenState, "second probe rejected")
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancellationIsNotFailure(t *testing.T) {
	cb := NewCircuitBreaker(Settings{ReadyToTrip: func(Counts) bool { return true }})
	err := cb.Do(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}
