package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/repositories"
)

// memJobRepo mirrors the status transitions of the gorm job repository.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.ProcessingJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]*models.ProcessingJob)}
}

func (r *memJobRepo) Create(_ context.Context, job *models.ProcessingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.Name == job.Name {
			return fmt.Errorf("%w: %s", repositories.ErrJobExists, job.Name)
		}
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobRepo) FindByID(_ context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, repositories.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) FindByName(_ context.Context, name string) (*models.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.Name == name {
			cp := *j
			return &cp, nil
		}
	}
	return nil, repositories.ErrJobNotFound
}

func (r *memJobRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != models.JobQueued {
		return repositories.ErrJobNotFound
	}
	j.Status = models.JobRunning
	j.Attempts++
	j.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) MarkSucceeded(ctx context.Context, id uuid.UUID, location, result string) error {
	return r.update(ctx, id, func(j *models.ProcessingJob) {
		j.Status = models.JobSucceeded
		j.ResultLocation = location
		j.Result = result
		j.ErrorMessage = ""
	})
}

func (r *memJobRepo) MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error {
	return r.update(ctx, id, func(j *models.ProcessingJob) {
		j.Status = models.JobFailed
		j.ErrorMessage = errorMsg
	})
}

func (r *memJobRepo) Requeue(ctx context.Context, id uuid.UUID, errorMsg string, notBefore time.Time) error {
	return r.update(ctx, id, func(j *models.ProcessingJob) {
		j.Status = models.JobQueued
		j.ErrorMessage = errorMsg
		j.NotBefore = notBefore
	})
}

func (r *memJobRepo) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, j := range r.jobs {
		if j.Status == models.JobRunning && j.UpdatedAt.Before(before) {
			j.Status = models.JobQueued
			j.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) MarkNotified(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, func(j *models.ProcessingJob) {
		j.Notified = true
	})
}

// update rejects writes on a finished context the way gorm does.
func (r *memJobRepo) update(ctx context.Context, id uuid.UUID, fn func(*models.ProcessingJob)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return repositories.ErrJobNotFound
	}
	fn(j)
	j.UpdatedAt = time.Now()
	return nil
}

// setUpdatedAt backdates a job so it looks abandoned.
func (r *memJobRepo) setUpdatedAt(id uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].UpdatedAt = at
}

func (r *memJobRepo) FindPendingJobs(_ context.Context, limit int) ([]models.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []models.ProcessingJob
	for _, j := range r.jobs {
		if j.Status == models.JobQueued && !j.NotBefore.After(now) && len(out) < limit {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *memJobRepo) FindUnnotified(_ context.Context, limit int) ([]models.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ProcessingJob
	for _, j := range r.jobs {
		if j.Status.Terminal() && j.NeedsNotification() && !j.Notified && len(out) < limit {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *memJobRepo) DeleteByName(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, j := range r.jobs {
		if j.Name == name {
			delete(r.jobs, id)
			return nil
		}
	}
	return repositories.ErrJobNotFound
}

// executorFunc adapts a function to JobExecutor.
type executorFunc func(ctx context.Context, job *models.ProcessingJob) (JobOutput, error)

func (f executorFunc) Execute(ctx context.Context, job *models.ProcessingJob) (JobOutput, error) {
	return f(ctx, job)
}

// syncWorker runs every enqueued job inline through processJob.
type syncWorker struct {
	w *worker
}

func (s *syncWorker) Start(context.Context) {}
func (s *syncWorker) Stop()                 {}
func (s *syncWorker) EnqueueJob(id uuid.UUID) {
	_ = s.w.processJob(context.Background(), id)
}

// recordingWorker only remembers what was enqueued.
type recordingWorker struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (r *recordingWorker) Start(context.Context) {}
func (r *recordingWorker) Stop()                 {}
func (r *recordingWorker) EnqueueJob(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

// instantClock fires every wait immediately.
type instantClock struct{}

func (instantClock) Now() time.Time { return time.Unix(0, 0) }
func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}
