package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jupark12/portfolio-grader/models"
	"github.com/jupark12/portfolio-grader/queue"
)

// DefaultPollInterval is how long an idle worker waits before asking the
// queue again.
const DefaultPollInterval = 2 * time.Second

// JobSource hands queued jobs to workers.
type JobSource interface {
	Dequeue(workerID string) (*models.Job, error)
}

// Worker represents a processing node that consumes jobs
type Worker struct {
	ID           string
	Queue        JobSource
	Coordinator  *Coordinator
	PollInterval time.Duration
	processing   bool
	mu           sync.Mutex
}

// NewWorker creates a new worker instance
func NewWorker(id string, queue JobSource, coordinator *Coordinator) *Worker {
	return &Worker{
		ID:           id,
		Queue:        queue,
		Coordinator:  coordinator,
		PollInterval: DefaultPollInterval,
	}
}

// Processing reports whether the worker is running a job.
func (w *Worker) Processing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processing
}

func (w *Worker) setProcessing(v bool) {
	w.mu.Lock()
	w.processing = v
	w.mu.Unlock()
}

// Start begins processing jobs in the background until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	go w.Run(ctx)
}

// Run processes jobs until ctx is cancelled. A job that is running when ctx
// is cancelled is failed by its coordinator.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker starting", "worker", w.ID)
	defer slog.Info("worker stopped", "worker", w.ID)

	for {
		w.setProcessing(false)
		if ctx.Err() != nil {
			return
		}

		job, err := w.Queue.Dequeue(w.ID)
		if err != nil {
			if !errors.Is(err, queue.ErrNoPendingJobs) {
				slog.Warn("failed to dequeue job", "worker", w.ID, "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.PollInterval):
			}
			continue
		}

		w.setProcessing(true)
		slog.Info("worker processing job", "worker", w.ID, "job_id", job.ID)

		if _, err := w.Coordinator.Run(ctx, job); err != nil {
			slog.Warn("worker failed job", "worker", w.ID, "job_id", job.ID, "err", err)
		} else {
			slog.Info("worker completed job", "worker", w.ID, "job_id", job.ID)
		}
	}
}

// Pool is a fixed set of workers sharing one queue.
type Pool struct {
	Workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates n workers named worker-1..worker-n.
func NewPool(n int, queue JobSource, coordinator *Coordinator) *Pool {
	p := &Pool{Workers: make([]*Worker, n)}
	for i := range n {
		p.Workers[i] = NewWorker(fmt.Sprintf("worker-%d", i+1), queue, coordinator)
	}
	return p
}

// Start runs every worker until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.Workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}
}

// Wait blocks until every worker has stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Busy returns the number of workers running a job.
func (p *Pool) Busy() int {
	n := 0
	for _, w := range p.Workers {
		if w.Processing() {
			n++
		}
	}
	return n
}
