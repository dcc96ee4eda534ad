package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"homefeed/client/internal/timer"
)

var ErrNotStarted = errors.New("scheduler is not started")

// RefreshFunc revalidates the feed.
type RefreshFunc func(ctx context.Context) error

// Scheduler runs a refresh on a fixed period and on demand. At most one
// refresh runs at a time; a tick that finds one running is dropped.
type Scheduler struct {
	logger   *logrus.Logger
	jobMutex sync.Mutex // Ensures one refresh at a time
	wg       sync.WaitGroup

	mu      sync.Mutex
	handle  *timer.Handle
	refresh RefreshFunc
	cancel  context.CancelFunc
	ctx     context.Context
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	return &Scheduler{logger: logger}
}

// Start arms the periodic refresh. Calling Start again replaces the
// previous timer, so timers never stack.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, fn RefreshFunc) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.refresh = fn
	s.handle = timer.Every(interval, s.tick)

	s.logger.WithField("interval", interval.String()).Info("Refresh scheduler started")
}

// tick runs on the timer goroutine and never blocks it.
func (s *Scheduler) tick(t time.Time) {
	s.mu.Lock()
	ctx, fn := s.ctx, s.refresh
	s.mu.Unlock()
	if fn == nil {
		return
	}

	if !s.jobMutex.TryLock() {
		s.logger.WithField("tick", t.Format(time.RFC3339)).Debug("Refresh in progress, dropping tick")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.jobMutex.Unlock()
		s.run(ctx, fn, "timer")
	}()
}

// Trigger runs a refresh now, waiting for one already running to finish first.
func (s *Scheduler) Trigger(ctx context.Context) error {
	s.mu.Lock()
	fn := s.refresh
	s.mu.Unlock()
	if fn == nil {
		return ErrNotStarted
	}

	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()
	return s.run(ctx, fn, "manual")
}

func (s *Scheduler) run(ctx context.Context, fn RefreshFunc, trigger string) error {
	start := time.Now()
	err := fn(ctx)
	fields := logrus.Fields{
		"trigger":     trigger,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Error("Refresh failed")
		return err
	}
	s.logger.WithFields(fields).Debug("Refresh completed")
	return nil
}

// Running reports whether the periodic refresh is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Stop disarms the timer and waits for a timer-started refresh to finish.
// Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	handle, cancel := s.handle, s.cancel
	s.handle, s.cancel = nil, nil
	s.refresh = nil
	s.mu.Unlock()

	if handle == nil {
		return
	}
	handle.Cancel()
	cancel()
	s.wg.Wait()
	s.logger.Info("Refresh scheduler stopped")
}
