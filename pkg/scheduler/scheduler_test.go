package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(nil)
	require.NoError(t, err)
	return s
}

func TestAdd_Validation(t *testing.T) {
	s := newScheduler(t)
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Task{Interval: time.Second, Run: noop}))
	assert.Error(t, s.Add(Task{Name: "a", Run: noop}))
	assert.Error(t, s.Add(Task{Name: "a", Interval: time.Second}))

	require.NoError(t, s.Add(Task{Name: "a", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Add(Task{Name: "a", Interval: time.Second, Run: noop}), "duplicate")
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	s := newScheduler(t)

	var fast, slow atomic.Int64
	require.NoError(t, s.Add(Task{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		fast.Add(1)
		return nil
	}}))
	require.NoError(t, s.Add(Task{Name: "slow", Interval: 40 * time.Millisecond, Run: func(context.Context) error {
		slow.Add(1)
		return nil
	}}))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Greater(t, fast.Load(), slow.Load())
	assert.GreaterOrEqual(t, slow.Load(), int64(2))

	stopped := fast.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, fast.Load(), "no ticks after Run returns")
}

func TestRun_ErrorsAndPanicsDoNotStopLoop(t *testing.T) {
	s := newScheduler(t)

	var calls atomic.Int64
	require.NoError(t, s.Add(Task{Name: "flaky", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		n := calls.Add(1)
		switch n {
		case 1:
			return errors.New("sensor timeout")
		case 2:
			panic("nil reading")
		}
		return nil
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for calls.Load() < 5 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	require.NoError(t, s.Run(ctx))

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.GreaterOrEqual(t, stats[0].Ticks, int64(5))
	assert.Equal(t, int64(2), stats[0].Errors)
	assert.Contains(t, stats[0].LastError, "nil reading")
}

func TestRun_CountsOverruns(t *testing.T) {
	s := newScheduler(t)

	require.NoError(t, s.Add(Task{Name: "heavy", Interval: time.Millisecond, Run: func(context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.Positive(t, stats[0].Overruns)
	assert.GreaterOrEqual(t, stats[0].LastDuration, 5*time.Millisecond)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	s := newScheduler(t)
	started := make(chan struct{})
	var once atomic.Bool

	require.NoError(t, s.Add(Task{Name: "a", Interval: time.Millisecond, Run: func(context.Context) error {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		return nil
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-started

	assert.Error(t, s.Run(ctx))
	assert.Error(t, s.Add(Task{Name: "b", Interval: time.Millisecond, Run: func(context.Context) error { return nil }}))

	cancel()
	require.NoError(t, <-done)
}
