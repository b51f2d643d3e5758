package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("alpaca", 2, time.Minute)
	cb.SetClock(clock.now)
	cb.SetStateChangeHandler(func(string, State, State) {})

	boom := errors.New("boom")
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	clock.t = clock.t.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("binance", 1, time.Second)
	cb.SetClock(clock.now)
	cb.SetStateChangeHandler(func(string, State, State) {})

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	clock.t = clock.t.Add(2 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
	assert.Equal(t, "OPEN", cb.State().String())
}
