package queue

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"homefeed/client/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// Handler applies one toggle. Its error is delivered on the toggle's Done channel.
type Handler func(ctx context.Context, toggle *models.InterestToggle) error

// ToggleQueue is an in-memory FIFO of interest toggles served by a single
// worker, so remote calls fire in issue order.
type ToggleQueue struct {
	items    chan *models.InterestToggle
	done     chan struct{}
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []Handler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewToggleQueue creates a new toggle queue with the specified buffer size
func NewToggleQueue(bufferSize int, logger *logrus.Logger) *ToggleQueue {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &ToggleQueue{
		items:    make(chan *models.InterestToggle, bufferSize),
		done:     make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]Handler, 0),
	}
}

// Push adds a toggle to the queue without blocking.
func (q *ToggleQueue) Push(toggle *models.InterestToggle) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- toggle:
		q.logger.WithFields(logrus.Fields{
			"unique_property_id": toggle.UniquePropertyID,
			"seq":                toggle.Seq,
		}).Debug("Pushed toggle to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler that will be called for each toggle
func (q *ToggleQueue) Subscribe(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing toggles. The context passed to handlers is
// cancelled by Close.
func (q *ToggleQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.process(ctx)
}

func (q *ToggleQueue) process(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case toggle, ok := <-q.items:
			if !ok {
				return
			}
			if q.IsClosed() {
				toggle.Done <- ErrQueueClosed
				continue
			}
			q.processToggle(ctx, toggle)
		}
	}
}

// processToggle runs every handler in order; the first error is the outcome.
func (q *ToggleQueue) processToggle(ctx context.Context, toggle *models.InterestToggle) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	var outcome error
	for _, handler := range handlers {
		if err := handler(ctx, toggle); err != nil {
			q.logger.WithError(err).WithField("unique_property_id", toggle.UniquePropertyID).Error("Handler failed to apply toggle")
			if outcome == nil {
				outcome = err
			}
		}
	}
	toggle.Done <- outcome
}

// Close stops the worker, waits for the toggle in progress and fails every
// toggle still queued with ErrQueueClosed.
func (q *ToggleQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	close(q.items)
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()

	for toggle := range q.items {
		toggle.Done <- ErrQueueClosed
	}
	return nil
}

// Len returns the current number of toggles in the queue
func (q *ToggleQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *ToggleQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
