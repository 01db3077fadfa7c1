// Package service implements the marking pipeline and the background jobs that run it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/raphaelgruber/homework-marker/internal/models"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobStage names the pipeline step a job is in.
type JobStage string

const (
	StageQueued     JobStage = "queued"
	StageExtracting JobStage = "extracting"
	StageRetrieving JobStage = "retrieving"
	StageGenerating JobStage = "generating"
	StageRendering  JobStage = "rendering"
	StageDone       JobStage = "done"
)

// pipelineStages are the working stages in order; Progress counts how many have finished.
var pipelineStages = []JobStage{StageExtracting, StageRetrieving, StageGenerating, StageRendering}

// TotalStages is the Total reported for every job.
var TotalStages = len(pipelineStages)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("job queue is full")
	// ErrShuttingDown is returned by Submit after Shutdown has begun.
	ErrShuttingDown = errors.New("job manager is shutting down")
	// ErrJobNotFound is returned by Get for unknown ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrInterrupted marks jobs that were in flight when the server stopped.
	ErrInterrupted = errors.New("interrupted by server restart")
)

// JobRequest describes a marking job to submit. ID is generated when empty.
type JobRequest struct {
	ID              string
	StudentName     string
	AssignmentTitle string
	CriteriaPath    string
	HomeworkPath    string
	ResultPath      string
}

// Job is a marking job tracked by the manager. Fields are guarded by mu;
// read them through Snapshot.
type Job struct {
	ID              string
	Status          JobStatus
	Stage           JobStage
	Progress        int
	Total           int
	StudentName     string
	AssignmentTitle string
	CriteriaPath    string
	HomeworkPath    string
	ResultPath      string
	Mark            string
	Error           string
	StartedAt       time.Time
	CompletedAt     *time.Time

	mu sync.RWMutex
	// persistMu orders store writes so the last write carries the latest state.
	persistMu sync.Mutex
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() models.JobRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return models.JobRecord{
		ID:              j.ID,
		Status:          string(j.Status),
		Stage:           string(j.Stage),
		Progress:        j.Progress,
		Total:           j.Total,
		StudentName:     j.StudentName,
		AssignmentTitle: j.AssignmentTitle,
		CriteriaPath:    j.CriteriaPath,
		HomeworkPath:    j.HomeworkPath,
		ResultPath:      j.ResultPath,
		Mark:            j.Mark,
		Error:           j.Error,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}

// JobStore persists job records. GetJob returns (nil, nil) for unknown ids.
type JobStore interface {
	SaveJob(ctx context.Context, job models.JobRecord) error
	GetJob(ctx context.Context, id string) (*models.JobRecord, error)
	ListJobs(ctx context.Context) ([]models.JobRecord, error)
}

// Outcome is what a successful run produces.
type Outcome struct {
	ResultPath string
	Mark       string
}

// Processor runs one job. advance is called as each stage starts.
type Processor interface {
	Process(ctx context.Context, job models.JobRecord, advance func(JobStage)) (Outcome, error)
}

// ManagerOptions configures a JobManager. Zero values pick defaults.
type ManagerOptions struct {
	Workers   int
	QueueSize int
	Store     JobStore
	Metrics   *metrics.Collector
}

// JobManager queues jobs and runs them on a fixed pool of workers.
type JobManager struct {
	processor Processor
	store     JobStore
	metrics   *metrics.Collector
	workers   int

	mu     sync.RWMutex
	jobs   map[string]*Job
	queue  chan *Job
	closed bool
	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewJobManager creates a job manager. Call Start to begin processing.
func NewJobManager(processor Processor, opts ManagerOptions) *JobManager {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &JobManager{
		processor: processor,
		store:     opts.Store,
		metrics:   opts.Metrics,
		workers:   opts.Workers,
		jobs:      make(map[string]*Job),
		queue:     make(chan *Job, opts.QueueSize),
	}
}

// Workers returns the size of the worker pool.
func (m *JobManager) Workers() int {
	return m.workers
}

// Queued returns the number of jobs waiting for a worker.
func (m *JobManager) Queued() int {
	return len(m.queue)
}

// Start launches the worker pool. Workers stop when ctx is cancelled or
// after Shutdown drains the queue.
func (m *JobManager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.group != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for range m.workers {
		g.Go(func() error {
			m.worker(gctx)
			return nil
		})
	}
	m.group = g

	slog.Info("job workers started", "workers", m.workers, "queue_size", cap(m.queue))
}

func (m *JobManager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-m.queue:
			if !ok {
				return
			}
			m.run(ctx, job)
		}
	}
}

// Submit registers a job and queues it without blocking.
func (m *JobManager) Submit(ctx context.Context, req JobRequest) (models.JobRecord, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	job := &Job{
		ID:              id,
		Status:          JobStatusPending,
		Stage:           StageQueued,
		Total:           TotalStages,
		StudentName:     req.StudentName,
		AssignmentTitle: req.AssignmentTitle,
		CriteriaPath:    req.CriteriaPath,
		HomeworkPath:    req.HomeworkPath,
		ResultPath:      req.ResultPath,
		StartedAt:       time.Now().UTC(),
	}

	if err := m.enqueue(job); err != nil {
		if errors.Is(err, ErrQueueFull) {
			m.recordJob("rejected")
			slog.Warn("job rejected", "job_id", id, "error", err)
		}
		return models.JobRecord{}, err
	}

	m.persist(ctx, job)
	m.recordJob("submitted")
	slog.Info("job created", "job_id", id, "student", req.StudentName, "assignment", req.AssignmentTitle)

	return job.Snapshot(), nil
}

func (m *JobManager) enqueue(job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrShuttingDown
	}
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	m.jobs[job.ID] = job
	select {
	case m.queue <- job:
		return nil
	default:
		delete(m.jobs, job.ID)
		return ErrQueueFull
	}
}

// run processes one job; panics fail the job instead of the worker.
func (m *JobManager) run(ctx context.Context, job *Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job goroutine panicked", "job_id", job.ID, "panic", r)
			m.fail(ctx, job, fmt.Errorf("internal panic: %v", r))
		}
	}()

	m.setRunning(ctx, job)

	outcome, err := m.processor.Process(ctx, job.Snapshot(), func(stage JobStage) {
		m.advance(ctx, job, stage)
	})
	if err != nil {
		m.fail(ctx, job, err)
		return
	}
	m.complete(ctx, job, outcome)
}

func (m *JobManager) setRunning(ctx context.Context, job *Job) {
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()

	m.persist(ctx, job)
}

// advance moves the job to stage; Progress is the number of finished stages.
func (m *JobManager) advance(ctx context.Context, job *Job, stage JobStage) {
	done := slices.Index(pipelineStages, stage)
	if done < 0 {
		return
	}

	job.mu.Lock()
	job.Stage = stage
	job.Progress = done
	job.mu.Unlock()

	slog.Info("job progress", "job_id", job.ID, "stage", stage, "progress", done, "total", TotalStages)
	m.persist(ctx, job)
}

func (m *JobManager) complete(ctx context.Context, job *Job, outcome Outcome) {
	now := time.Now().UTC()

	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.Stage = StageDone
	job.Progress = job.Total
	job.ResultPath = outcome.ResultPath
	job.Mark = outcome.Mark
	job.CompletedAt = &now
	started := job.StartedAt
	job.mu.Unlock()

	m.persist(ctx, job)
	m.recordJob(string(JobStatusCompleted))

	slog.Info("job completed", "job_id", job.ID, "mark", outcome.Mark, "duration_ms", now.Sub(started).Milliseconds())
}

func (m *JobManager) fail(ctx context.Context, job *Job, err error) {
	now := time.Now().UTC()

	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	job.CompletedAt = &now
	job.mu.Unlock()

	m.persist(ctx, job)
	m.recordJob(string(JobStatusFailed))

	slog.Error("job failed", "job_id", job.ID, "error", err)
}

// persist writes the current job state to the store. Failures are logged;
// the in-memory record stays authoritative.
func (m *JobManager) persist(ctx context.Context, job *Job) {
	if m.store == nil {
		return
	}

	job.persistMu.Lock()
	defer job.persistMu.Unlock()

	if err := m.store.SaveJob(context.WithoutCancel(ctx), job.Snapshot()); err != nil {
		slog.Warn("failed to persist job", "job_id", job.ID, "error", err)
	}
}

func (m *JobManager) recordJob(status string) {
	if m.metrics != nil {
		m.metrics.RecordJob(status)
	}
}

// Get returns a job by id, consulting the store for jobs from earlier runs.
func (m *JobManager) Get(ctx context.Context, id string) (models.JobRecord, error) {
	m.mu.RLock()
	job := m.jobs[id]
	m.mu.RUnlock()

	if job != nil {
		return job.Snapshot(), nil
	}
	if m.store == nil {
		return models.JobRecord{}, ErrJobNotFound
	}

	rec, err := m.store.GetJob(ctx, id)
	if err != nil {
		return models.JobRecord{}, fmt.Errorf("get job %s: %w", id, err)
	}
	if rec == nil {
		return models.JobRecord{}, ErrJobNotFound
	}
	return *rec, nil
}

// List returns all known jobs, most recent first.
func (m *JobManager) List(ctx context.Context) ([]models.JobRecord, error) {
	m.mu.RLock()
	records := make([]models.JobRecord, 0, len(m.jobs))
	seen := make(map[string]bool, len(m.jobs))
	for id, job := range m.jobs {
		records = append(records, job.Snapshot())
		seen[id] = true
	}
	m.mu.RUnlock()

	if m.store != nil {
		stored, err := m.store.ListJobs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		for _, rec := range stored {
			if !seen[rec.ID] {
				records = append(records, rec)
			}
		}
	}

	slices.SortFunc(records, func(a, b models.JobRecord) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return records, nil
}

// ResumeIncompleteJobs requeues persisted jobs that never finished. Jobs whose
// uploads are gone, or that no longer fit in the queue, are marked failed.
func (m *JobManager) ResumeIncompleteJobs(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}

	stored, err := m.store.ListJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored jobs: %w", err)
	}

	resumed := 0
	for _, rec := range stored {
		if rec.Terminal() {
			continue
		}
		m.mu.RLock()
		_, known := m.jobs[rec.ID]
		m.mu.RUnlock()
		if known {
			continue
		}

		job := &Job{
			ID:              rec.ID,
			Status:          JobStatusPending,
			Stage:           StageQueued,
			Total:           TotalStages,
			StudentName:     rec.StudentName,
			AssignmentTitle: rec.AssignmentTitle,
			CriteriaPath:    rec.CriteriaPath,
			HomeworkPath:    rec.HomeworkPath,
			ResultPath:      rec.ResultPath,
			StartedAt:       rec.StartedAt,
		}

		if !fileExists(rec.CriteriaPath) || !fileExists(rec.HomeworkPath) {
			m.register(job)
			m.fail(ctx, job, fmt.Errorf("%w: uploaded files are missing", ErrInterrupted))
			continue
		}
		if err := m.enqueue(job); err != nil {
			m.register(job)
			m.fail(ctx, job, fmt.Errorf("%w: %v", ErrInterrupted, err))
			continue
		}

		m.persist(ctx, job)
		resumed++
		slog.Info("resuming job", "job_id", job.ID)
	}

	if resumed == 0 {
		slog.Info("no incomplete jobs to resume")
	}
	return resumed, nil
}

func (m *JobManager) register(job *Job) {
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
}

// Shutdown stops accepting jobs and lets workers drain the queue. When ctx
// ends first, in-flight jobs are cancelled.
func (m *JobManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	group, cancel := m.group, m.cancel
	m.mu.Unlock()

	if group == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		cancel()
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
