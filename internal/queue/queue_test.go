package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefeed/client/internal/models"
)

func waitDone(t *testing.T, toggle *models.InterestToggle) error {
	t.Helper()
	select {
	case err := <-toggle.Done:
		return err
	case <-time.After(time.Second):
		t.Fatal("toggle was not completed")
		return nil
	}
}

func TestNewToggleQueue(t *testing.T) {
	q := NewToggleQueue(10, logrus.New())
	assert.NotNil(t, q)
	assert.Equal(t, 10, q.maxSize)
	assert.False(t, q.IsClosed())
}

func TestToggleQueue_Push(t *testing.T) {
	q := NewToggleQueue(2, logrus.New())

	err := q.Push(models.NewInterestToggle("u-1", "MO-1", true, 1))
	assert.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	assert.NoError(t, q.Push(models.NewInterestToggle("u-1", "MO-2", true, 1)))
	err = q.Push(models.NewInterestToggle("u-1", "MO-3", true, 1))
	assert.Equal(t, ErrQueueFull, err)

	q.Close()
	err = q.Push(models.NewInterestToggle("u-1", "MO-4", true, 1))
	assert.Equal(t, ErrQueueClosed, err)
}

func TestToggleQueue_ProcessesInIssueOrder(t *testing.T) {
	q := NewToggleQueue(10, logrus.New())

	var mu sync.Mutex
	var order []uint64
	q.Subscribe(func(ctx context.Context, toggle *models.InterestToggle) error {
		// Earlier toggles are slower; order must still hold
		time.Sleep(time.Duration(5-toggle.Seq) * time.Millisecond)
		mu.Lock()
		order = append(order, toggle.Seq)
		mu.Unlock()
		return nil
	})
	q.Start(context.Background())
	defer q.Close()

	toggles := make([]*models.InterestToggle, 0, 4)
	for seq := uint64(1); seq <= 4; seq++ {
		toggle := models.NewInterestToggle("u-1", "MO-1", seq%2 == 1, seq)
		require.NoError(t, q.Push(toggle))
		toggles = append(toggles, toggle)
	}
	for _, toggle := range toggles {
		assert.NoError(t, waitDone(t, toggle))
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3, 4}, order)
}

func TestToggleQueue_HandlerError(t *testing.T) {
	q := NewToggleQueue(10, logrus.New())
	failure := errors.New("remote rejected")

	var calls int
	q.Subscribe(func(ctx context.Context, toggle *models.InterestToggle) error { return failure })
	q.Subscribe(func(ctx context.Context, toggle *models.InterestToggle) error {
		calls++
		return nil
	})
	q.Start(context.Background())
	defer q.Close()

	toggle := models.NewInterestToggle("u-1", "MO-1", true, 1)
	require.NoError(t, q.Push(toggle))
	assert.Equal(t, failure, waitDone(t, toggle))
	assert.Equal(t, 1, calls)
}

func TestToggleQueue_Close(t *testing.T) {
	q := NewToggleQueue(10, logrus.New())

	// Not started: queued toggles are failed on close
	pending := models.NewInterestToggle("u-1", "MO-1", true, 1)
	require.NoError(t, q.Push(pending))

	assert.NoError(t, q.Close())
	assert.True(t, q.IsClosed())
	assert.Equal(t, ErrQueueClosed, waitDone(t, pending))

	// Second close is a no-op
	assert.NoError(t, q.Close())
}

func TestToggleQueue_CloseCancelsInFlight(t *testing.T) {
	q := NewToggleQueue(10, logrus.New())

	started := make(chan struct{})
	q.Subscribe(func(ctx context.Context, toggle *models.InterestToggle) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	q.Start(context.Background())

	toggle := models.NewInterestToggle("u-1", "MO-1", true, 1)
	require.NoError(t, q.Push(toggle))
	<-started

	require.NoError(t, q.Close())
	assert.ErrorIs(t, waitDone(t, toggle), context.Canceled)
}
