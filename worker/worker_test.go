package worker

import (
	"context"
	"testing"
	"time"

	"github.com/jupark12/portfolio-grader/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolDrainsQueue(t *testing.T) {
	h := newHarness(t, "https://example.com/a")
	c, err := NewCoordinator(h.deps)
	require.NoError(t, err)

	var ids []string
	for range 3 {
		job, err := h.status.Enqueue(context.Background(), &models.Job{PortfolioURL: portfolioURL})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	pool := NewPool(2, h.status.Board, c)
	require.Len(t, pool.Workers, 2)
	assert.Equal(t, "worker-1", pool.Workers[0].ID)
	for _, w := range pool.Workers {
		w.PollInterval = 10 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := h.status.GetStatus(context.Background(), id)
			if err != nil || job.Status != models.StatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	pool.Wait()
	assert.Zero(t, pool.Busy())
	assert.Zero(t, h.status.PendingCount())
}

func TestWorkerStopsWhenIdle(t *testing.T) {
	h := newHarness(t)
	c, err := NewCoordinator(h.deps)
	require.NoError(t, err)

	w := NewWorker("worker-1", h.status.Board, c)
	w.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	assert.False(t, w.Processing())
}
