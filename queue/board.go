package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jupark12/portfolio-grader/docstore"
	"github.com/jupark12/portfolio-grader/models"
)

var (
	// ErrJobNotFound is returned when no status record exists for a job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrNoPendingJobs is returned by Dequeue when the queue is empty.
	ErrNoPendingJobs = errors.New("no pending jobs available")
)

// Board holds the status record of every job and the FIFO of jobs waiting
// for a worker. Records are persisted as JSON files in dataDir and mirrored
// into the document store.
type Board struct {
	mu            sync.RWMutex
	pendingJobs   []*models.Job
	jobsByID      map[string]*models.Job
	dataDir       string
	docs          docstore.Store
	jobUpdateChan chan *models.Job
}

// NewBoard creates a new Board persisting into dataDir. docs may be
// docstore.Noop{}.
func NewBoard(dataDir string, docs docstore.Store) (*Board, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if docs == nil {
		docs = docstore.Noop{}
	}
	return &Board{
		pendingJobs:   make([]*models.Job, 0),
		jobsByID:      make(map[string]*models.Job),
		dataDir:       dataDir,
		docs:          docs,
		jobUpdateChan: make(chan *models.Job, 100),
	}, nil
}

// Enqueue creates the queued record for a new job and puts it at the back
// of the queue. An empty job ID is filled in.
func (b *Board) Enqueue(ctx context.Context, job *models.Job) (*models.Job, error) {
	now := time.Now().UTC()
	job = job.Clone()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = models.StatusQueued
	job.Progress = 0
	if job.Message == "" {
		job.Message = "Job queued"
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	b.mu.Lock()
	if _, exists := b.jobsByID[job.ID]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("job %s already exists", job.ID)
	}
	if err := b.persistJob(job); err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	b.pendingJobs = append(b.pendingJobs, job)
	b.jobsByID[job.ID] = job
	snapshot := job.Clone()
	b.mu.Unlock()

	slog.Info("job enqueued", "job_id", job.ID, "url", job.PortfolioURL)
	b.mirror(ctx, snapshot)
	b.notify(snapshot)
	return snapshot, nil
}

// Dequeue hands the oldest queued job to a worker. The job stays queued
// until its coordinator reports processing.
func (b *Board) Dequeue(workerID string) (*models.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.pendingJobs) > 0 {
		job := b.pendingJobs[0]
		b.pendingJobs = b.pendingJobs[1:]
		// Skip jobs that were failed while waiting.
		if job.Status != models.StatusQueued {
			continue
		}
		slog.Debug("job dequeued", "job_id", job.ID, "worker", workerID)
		return job.Clone(), nil
	}
	return nil, ErrNoPendingJobs
}

// SetStatus writes a status update. Result keys are merged into the stored
// result map one by one and nil values are skipped. Unknown job ids get a
// new record.
func (b *Board) SetStatus(ctx context.Context, jobID string, u models.StatusUpdate) error {
	if !u.Status.Valid() {
		return fmt.Errorf("invalid status %q", u.Status)
	}

	b.mu.Lock()
	job, exists := b.jobsByID[jobID]
	if !exists {
		now := time.Now().UTC()
		job = &models.Job{ID: jobID, Status: u.Status, CreatedAt: now}
		b.jobsByID[jobID] = job
	} else if err := models.ValidateTransition(job.Status, u.Status); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("job %s: %w", jobID, err)
	}

	job.Status = u.Status
	job.Progress = clampProgress(u.Progress)
	job.Message = u.Message
	mergeResult(job, u.Result)
	job.UpdatedAt = time.Now().UTC()

	err := b.persistJob(job)
	snapshot := job.Clone()
	b.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to persist job %s: %w", jobID, err)
	}
	b.mirror(ctx, snapshot)
	b.notify(snapshot)
	return nil
}

// GetStatus returns a copy of a job's current record. Jobs that are not on
// this board are looked up in the document store.
func (b *Board) GetStatus(ctx context.Context, jobID string) (*models.Job, error) {
	b.mu.RLock()
	job, exists := b.jobsByID[jobID]
	if exists {
		snapshot := job.Clone()
		b.mu.RUnlock()
		return snapshot, nil
	}
	b.mu.RUnlock()

	body, err := b.docs.Get(ctx, docstore.JobPath(jobID))
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrUnavailable) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	var stored models.Job
	if err := docstore.Decode(body, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	stored.ID = jobID
	return &stored, nil
}

// ListJobs returns copies of all jobs with the given status, oldest first.
// An empty status returns every job.
func (b *Board) ListJobs(status models.JobStatus) []*models.Job {
	b.mu.RLock()
	defer b.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(b.jobsByID))
	for _, job := range b.jobsByID {
		if status == "" || job.Status == status {
			jobs = append(jobs, job.Clone())
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// PendingCount returns the number of jobs waiting for a worker.
func (b *Board) PendingCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pendingJobs)
}

// Updates returns the channel every written record is published on.
// Updates are dropped when nobody keeps up with the channel.
func (b *Board) Updates() <-chan *models.Job {
	return b.jobUpdateChan
}

// LoadJobs loads all persisted jobs from disk. Queued jobs go back on the
// queue; jobs that were processing when the process stopped are failed.
func (b *Board) LoadJobs(ctx context.Context) error {
	files, err := os.ReadDir(b.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	var interrupted []string
	b.mu.Lock()
	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}

		jobPath := filepath.Join(b.dataDir, file.Name())
		data, err := os.ReadFile(jobPath)
		if err != nil {
			slog.Warn("failed to read job file", "path", jobPath, "err", err)
			continue
		}

		var job models.Job
		if err := json.Unmarshal(data, &job); err != nil {
			slog.Warn("failed to unmarshal job file", "path", jobPath, "err", err)
			continue
		}
		if job.ID == "" || !job.Status.Valid() {
			slog.Warn("skipping invalid job file", "path", jobPath)
			continue
		}

		b.jobsByID[job.ID] = &job
		switch job.Status {
		case models.StatusQueued:
			b.pendingJobs = append(b.pendingJobs, &job)
		case models.StatusProcessing:
			interrupted = append(interrupted, job.ID)
		}
	}
	sort.Slice(b.pendingJobs, func(i, j int) bool {
		return b.pendingJobs[i].CreatedAt.Before(b.pendingJobs[j].CreatedAt)
	})
	loaded := len(b.jobsByID)
	b.mu.Unlock()

	for _, id := range interrupted {
		current, err := b.GetStatus(ctx, id)
		if err != nil {
			continue
		}
		err = b.SetStatus(ctx, id, models.StatusUpdate{
			Status:   models.StatusFailed,
			Progress: current.Progress,
			Message:  "Job interrupted by server restart",
		})
		if err != nil {
			slog.Warn("failed to fail interrupted job", "job_id", id, "err", err)
		}
	}

	slog.Info("loaded jobs from disk", "jobs", loaded, "requeued", b.PendingCount(), "interrupted", len(interrupted))
	return nil
}

// persistJob saves job data to disk. Callers hold b.mu.
func (b *Board) persistJob(job *models.Job) error {
	jobPath := filepath.Join(b.dataDir, job.ID+".json")

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}

	tmp := jobPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write job file: %w", err)
	}
	return os.Rename(tmp, jobPath)
}

// mirror copies the full record into the document store. Failures never
// reach the caller.
func (b *Board) mirror(ctx context.Context, job *models.Job) {
	err := docstore.SetStruct(ctx, b.docs, docstore.JobPath(job.ID), job)
	if err != nil && !errors.Is(err, docstore.ErrUnavailable) {
		slog.Warn("failed to mirror job status", "job_id", job.ID, "err", err)
	}
}

func (b *Board) notify(job *models.Job) {
	select {
	case b.jobUpdateChan <- job:
	default:
		slog.Debug("job update channel full, dropping update", "job_id", job.ID)
	}
}

func mergeResult(job *models.Job, result map[string]any) {
	for k, v := range result {
		if v == nil {
			continue
		}
		if job.Result == nil {
			job.Result = make(map[string]any, len(result))
		}
		job.Result[k] = v
	}
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
