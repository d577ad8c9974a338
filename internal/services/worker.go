package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/pipeline"
	"alfredoptarigan/candidate-screener/internal/repositories"
	"alfredoptarigan/candidate-screener/internal/retry"
)

// JobOutput is what an executor produced for a successful job.
type JobOutput struct {
	Location string
	Payload  string
}

// JobExecutor runs one kind of processing job.
type JobExecutor interface {
	Execute(ctx context.Context, job *models.ProcessingJob) (JobOutput, error)
}

// Worker runs queued processing jobs and announces finished tagged
// face-detection jobs on the notifier.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueJob(jobID uuid.UUID)
}

type WorkerOptions struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int

	// Retry paces requeued jobs and completion publishing.
	Retry retry.Policy

	// StaleAfter is how long a running job may go without an update
	// before the poller hands it back to the queue.
	StaleAfter time.Duration
}

var errExecutorPanic = errors.New("job executor panicked")

type worker struct {
	jobRepo      repositories.JobRepository
	executors    map[models.JobKind]JobExecutor
	notifier     Notifier
	jobQueue     chan uuid.UUID
	concurrency  int
	pollInterval time.Duration
	maxAttempts  int
	retry        retry.Policy
	staleAfter   time.Duration
	wg           sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
	log          *zap.Logger
}

func NewWorker(
	jobRepo repositories.JobRepository,
	executors map[models.JobKind]JobExecutor,
	notifier Notifier,
	opts WorkerOptions,
	log *zap.Logger,
) Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Retry == (retry.Policy{}) {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}

	return &worker{
		jobRepo:      jobRepo,
		executors:    executors,
		notifier:     notifier,
		jobQueue:     make(chan uuid.UUID, 100),
		concurrency:  opts.Concurrency,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		retry:        opts.Retry,
		staleAfter:   opts.StaleAfter,
		stopChan:     make(chan struct{}),
		log:          logger.OrNop(log).Named("worker"),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	w.log.Info("starting worker", zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i+1)
	}

	w.wg.Add(1)
	go w.pollPendingJobs(ctx)
}

// Stop implements Worker.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		w.log.Info("stopping worker")
		close(w.stopChan)
		w.wg.Wait()
		w.log.Info("worker stopped")
	})
}

// EnqueueJob implements Worker. When the queue is full the job stays
// queued in the database and the pending poller picks it up later.
func (w *worker) EnqueueJob(jobID uuid.UUID) {
	select {
	case w.jobQueue <- jobID:
		w.log.Debug("job enqueued", zap.String(logger.FieldJobID, jobID.String()))
	case <-w.stopChan:
		w.log.Warn("worker stopped, cannot enqueue job", zap.String(logger.FieldJobID, jobID.String()))
	default:
		w.log.Warn("job queue full, deferring to poller", zap.String(logger.FieldJobID, jobID.String()))
	}
}

func (w *worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()
	log := w.log.With(zap.Int("worker", workerID))

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case jobID := <-w.jobQueue:
			if err := w.processJob(ctx, jobID); err != nil {
				log.Error("failed to process job", zap.String(logger.FieldJobID, jobID.String()), zap.Error(err))
			}
		}
	}
}

func (w *worker) processJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := w.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			return nil
		}
		return err
	}

	// Another worker claimed it, or it was withdrawn.
	if err := w.jobRepo.MarkRunning(ctx, jobID); err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			return nil
		}
		return err
	}
	attempt := job.Attempts + 1

	log := logger.ForObject(w.log, job.Tag, job.Bucket, job.Key).With(
		zap.String(logger.FieldJobID, jobID.String()),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", attempt),
	)
	log.Info("running job")

	executor, ok := w.executors[job.Kind]
	if !ok {
		return w.finish(ctx, log, job, JobOutput{}, fmt.Errorf("no executor for job kind %q", job.Kind))
	}

	out, err := runExecutor(ctx, executor, job)
	// Outcomes are recorded even when the runner is shutting down.
	persistCtx := context.WithoutCancel(ctx)

	if err != nil && ctx.Err() != nil {
		log.Warn("job interrupted by shutdown, requeueing", zap.Error(err))
		return w.jobRepo.Requeue(persistCtx, jobID, err.Error(), time.Time{})
	}

	if err != nil && retry.IsTransient(err) && attempt < w.maxAttempts {
		delay := retry.Delay(w.retry, attempt)
		log.Warn("job failed transiently, requeueing", zap.Duration("delay", delay), zap.Error(err))
		if rerr := w.jobRepo.Requeue(persistCtx, jobID, err.Error(), time.Now().Add(delay)); rerr != nil {
			return rerr
		}
		w.enqueueAfter(ctx, jobID, delay)
		return nil
	}

	return w.finish(ctx, log, job, out, err)
}

// runExecutor turns an executor panic into a permanent job failure.
func runExecutor(ctx context.Context, executor JobExecutor, job *models.ProcessingJob) (out JobOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errExecutorPanic, r)
		}
	}()
	return executor.Execute(ctx, job)
}

func (w *worker) enqueueAfter(ctx context.Context, jobID uuid.UUID, delay time.Duration) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			w.EnqueueJob(jobID)
		case <-w.stopChan:
		case <-ctx.Done():
		}
	}()
}

// finish records the terminal status and then announces it. A job whose
// announcement fails stays unnotified and is published again by the poller.
func (w *worker) finish(ctx context.Context, log *zap.Logger, job *models.ProcessingJob, out JobOutput, jobErr error) error {
	persistCtx := context.WithoutCancel(ctx)

	if jobErr != nil {
		log.Error("job failed", zap.Error(jobErr))
		if err := w.jobRepo.MarkFailed(persistCtx, job.ID, jobErr.Error()); err != nil {
			return err
		}
		job.Status = models.JobFailed
	} else {
		log.Info("job succeeded", zap.String("location", out.Location))
		if err := w.jobRepo.MarkSucceeded(persistCtx, job.ID, out.Location, out.Payload); err != nil {
			return err
		}
		job.Status = models.JobSucceeded
	}

	return w.notify(ctx, log, job)
}

func (w *worker) notify(ctx context.Context, log *zap.Logger, job *models.ProcessingJob) error {
	if !job.NeedsNotification() || w.notifier == nil {
		return nil
	}

	status := pipeline.NotificationSucceeded
	if job.Status == models.JobFailed {
		status = pipeline.NotificationFailed
	}
	note := pipeline.JobNotification{
		JobID:  job.ID.String(),
		Status: status,
		API:    "StartFaceDetection",
		JobTag: job.Tag,
		Video: pipeline.VideoRef{
			S3Bucket:     job.Bucket,
			S3ObjectName: job.Key,
		},
	}

	err := retry.Do(ctx, w.retry, func(err error, wait time.Duration) {
		log.Warn("publishing completion failed, retrying", zap.Duration("wait", wait), zap.Error(err))
	}, func(ctx context.Context) error {
		return retry.Transient(w.notifier.Publish(ctx, note))
	})
	if err != nil {
		return fmt.Errorf("failed to publish completion of job %s: %w", job.ID, err)
	}

	if err := w.jobRepo.MarkNotified(context.WithoutCancel(ctx), job.ID); err != nil {
		return fmt.Errorf("failed to record notification of job %s: %w", job.ID, err)
	}
	return nil
}

func (w *worker) pollPendingJobs(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep reclaims abandoned jobs, enqueues queued ones and republishes
// completions that never reached the notifier.
func (w *worker) sweep(ctx context.Context) {
	reclaimed, err := w.jobRepo.RequeueStale(ctx, time.Now().Add(-w.staleAfter))
	if err != nil {
		w.log.Warn("failed to reclaim stale jobs", zap.Error(err))
	} else if reclaimed > 0 {
		w.log.Info("reclaimed stale jobs", zap.Int64("count", reclaimed))
	}

	pendingJobs, err := w.jobRepo.FindPendingJobs(ctx, 10)
	if err != nil {
		w.log.Warn("failed to fetch pending jobs", zap.Error(err))
	} else {
		if len(pendingJobs) > 0 {
			w.log.Debug("found pending jobs", zap.Int("count", len(pendingJobs)))
		}
		for _, job := range pendingJobs {
			w.EnqueueJob(job.ID)
		}
	}

	if w.notifier == nil {
		return
	}
	unnotified, err := w.jobRepo.FindUnnotified(ctx, 10)
	if err != nil {
		w.log.Warn("failed to fetch unnotified jobs", zap.Error(err))
		return
	}
	for i := range unnotified {
		job := &unnotified[i]
		log := logger.ForObject(w.log, job.Tag, job.Bucket, job.Key).With(zap.String(logger.FieldJobID, job.ID.String()))
		if err := w.notify(ctx, log, job); err != nil {
			log.Warn("republishing completion failed", zap.Error(err))
		}
	}
}
