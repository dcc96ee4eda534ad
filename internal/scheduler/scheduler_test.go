package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsOnInterval(t *testing.T) {
	s := NewScheduler(logrus.New())
	var runs atomic.Int32

	s.Start(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	assert.True(t, s.Running())
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	stopped := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())

	// Stop is idempotent
	s.Stop()
}

func TestScheduler_RestartDoesNotStack(t *testing.T) {
	s := NewScheduler(logrus.New())
	var first, second atomic.Int32

	s.Start(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		first.Add(1)
		return nil
	})
	s.Start(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		second.Add(1)
		return nil
	})
	defer s.Stop()

	assert.Eventually(t, func() bool { return second.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestScheduler_DropsOverlappingTicks(t *testing.T) {
	s := NewScheduler(logrus.New())
	var active, maxActive, runs atomic.Int32
	release := make(chan struct{})

	s.Start(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		active.Add(-1)
		return nil
	})

	// Many ticks elapse while the first refresh is blocked
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	s.Stop()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestScheduler_Trigger(t *testing.T) {
	s := NewScheduler(logrus.New())
	assert.Equal(t, ErrNotStarted, s.Trigger(context.Background()))

	failure := errors.New("offline")
	var runs atomic.Int32
	s.Start(context.Background(), time.Hour, func(ctx context.Context) error {
		if runs.Add(1) == 2 {
			return failure
		}
		return nil
	})
	defer s.Stop()

	require.NoError(t, s.Trigger(context.Background()))
	assert.Equal(t, failure, s.Trigger(context.Background()))
	assert.Equal(t, int32(2), runs.Load())
}
