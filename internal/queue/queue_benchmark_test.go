package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"homefeed/client/internal/models"
)

func generateToggles(count int) []*models.InterestToggle {
	toggles := make([]*models.InterestToggle, count)
	for i := range toggles {
		toggles[i] = models.NewInterestToggle("u-1", fmt.Sprintf("MO-%d", i%50), i%2 == 0, uint64(i+1))
	}
	return toggles
}

func BenchmarkToggleQueue(b *testing.B) {
	bufferSizes := []int{16, 64, 256}
	toggleCounts := []int{100, 1000}

	for _, bufferSize := range bufferSizes {
		for _, toggleCount := range toggleCounts {
			b.Run(fmt.Sprintf("Buffer_%d_Toggles_%d", bufferSize, toggleCount), func(b *testing.B) {
				logger := logrus.New()
				logger.SetLevel(logrus.WarnLevel) // Reduce logging noise during benchmarks

				for i := 0; i < b.N; i++ {
					b.StopTimer()
					q := NewToggleQueue(bufferSize, logger)
					q.Subscribe(func(ctx context.Context, toggle *models.InterestToggle) error {
						return nil
					})
					q.Start(context.Background())
					toggles := generateToggles(toggleCount)
					b.StartTimer()

					// Push as fast as the worker drains, waiting on the oldest
					// outstanding toggle when the buffer is full
					next := 0
					for _, toggle := range toggles {
						for q.Push(toggle) == ErrQueueFull {
							require.NoError(b, <-toggles[next].Done)
							next++
						}
					}
					for ; next < len(toggles); next++ {
						require.NoError(b, <-toggles[next].Done)
					}

					b.StopTimer()
					require.NoError(b, q.Close())
				}
			})
		}
	}
}
