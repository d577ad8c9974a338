package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/pipeline"
	"alfredoptarigan/candidate-screener/internal/retry"
)

func newTestWorker(repo *memJobRepo, executors map[models.JobKind]JobExecutor, notifier Notifier, maxAttempts int) *worker {
	return newTestWorkerWith(repo, executors, notifier, WorkerOptions{MaxAttempts: maxAttempts})
}

func newTestWorkerWith(repo *memJobRepo, executors map[models.JobKind]JobExecutor, notifier Notifier, opts WorkerOptions) *worker {
	if opts.Retry == (retry.Policy{}) {
		opts.Retry = retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	}
	return NewWorker(repo, executors, notifier, opts, nil).(*worker)
}

func createJob(t *testing.T, repo *memJobRepo, kind models.JobKind, tag string) *models.ProcessingJob {
	t.Helper()
	job := &models.ProcessingJob{
		ID:     uuid.New(),
		Kind:   kind,
		Name:   string(kind) + "-" + uuid.NewString(),
		Bucket: "videos",
		Key:    "interview.mp4",
		Tag:    tag,
		Status: models.JobQueued,
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func TestWorkerMarksJobSucceeded(t *testing.T) {
	repo := newMemJobRepo()
	exec := executorFunc(func(context.Context, *models.ProcessingJob) (JobOutput, error) {
		return JobOutput{Location: "http://objects/t.json", Payload: "{}"}, nil
	})
	w := newTestWorker(repo, map[models.JobKind]JobExecutor{models.JobKindTranscription: exec}, nil, 3)
	job := createJob(t, repo, models.JobKindTranscription, "")

	require.NoError(t, w.processJob(context.Background(), job.ID))

	got, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, got.Status)
	assert.Equal(t, "http://objects/t.json", got.ResultLocation)
	assert.Equal(t, 1, got.Attempts)
}

func TestWorkerRequeuesTransientFailures(t *testing.T) {
	repo := newMemJobRepo()
	var calls atomic.Int32
	exec := executorFunc(func(context.Context, *models.ProcessingJob) (JobOutput, error) {
		if calls.Add(1) < 3 {
			return JobOutput{}, retry.Transient(errors.New("throttled"))
		}
		return JobOutput{Payload: `{"lines":[]}`}, nil
	})
	w := newTestWorker(repo, map[models.JobKind]JobExecutor{models.JobKindTextDetection: exec}, nil, 3)
	job := createJob(t, repo, models.JobKindTextDetection, "")

	for i := 0; i < 3; i++ {
		require.NoError(t, w.processJob(context.Background(), job.ID))
	}

	got, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorkerFailsAfterMaxAttempts(t *testing.T) {
	repo := newMemJobRepo()
	exec := executorFunc(func(context.Context, *models.ProcessingJob) (JobOutput, error) {
		return JobOutput{}, retry.Transient(errors.New("throttled"))
	})
	w := newTestWorker(repo, map[models.JobKind]JobExecutor{models.JobKindTextDetection: exec}, nil, 2)
	job := createJob(t, repo, models.JobKindTextDetection, "")

	require.NoError(t, w.processJob(context.Background(), job.ID))
	require.NoError(t, w.processJob(context.Background(), job.ID))

	got, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "throttled")
}

func TestWorkerSkipsClaimedJobs(t *testing.T) {
	repo := newMemJobRepo()
	var calls atomic.Int32
	exec := executorFunc(func(context.Context, *models.ProcessingJob) (JobOutput, error) {
		calls.Add(1)
		return JobOutput{}, nil
	})
	w := newTestWorker(repo, map[models.JobKind]JobExecutor{models.JobKindTranscription: exec}, nil, 1)
	job := createJob(t, repo, models.JobKindTranscription, "")
	require.NoError(t, repo.MarkRunning(context.Background(), job.ID))

	require.NoError(t, w.processJob(context.Background(), job.ID))
	require.NoError(t, w.processJob(context.Background(), uuid.New()))
	assert.Zero(t, calls.Load())
}

func TestWorkerPublishesFaceDetectionCompletion(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{name: "succeeded", status: pipeline.NotificationSucceeded},
		{name: "failed", err: errors.New("bad video"), status: pipeline.NotificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemJobRepo()
			notifier := NewMemoryNotifier(1)
			exec := executorFunc(func(context.Context, *models.ProcessingJob) (JobOutput, error) {
				return JobOutput{Payload: `{"Faces":[]}`}, tt.err
			})
			w := newTestWorker(repo, map[models.JobKind]JobExecutor{models.JobKindFaceDetection: exec}, notifier, 1)
			job := createJob(t, repo, models.JobKindFaceDetection, "analysis-1")

			require.NoError(t, w.processJob(context.Background(), job.ID))

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			var got pipeline.JobNotification
			_ = notifier.Consume(ctx, func(_ context.Context, note pipeline.JobNotification) {
				got = note
				cancel()
			})

			assert.Equal(t, job.ID.String(), got.JobID)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, "analysis-1", got.JobTag)
			assert.Equal(t, "videos", got.Video.S3Bucket)
			assert.Equal(t, "interview.mp4", got.Video.S3ObjectName)
		})
	}
}

func TestWorkerDoesNotNotifyForTranscription(t *testing.T) {
	repo := newMemJobRepo()
	notifier := &countingNotifier{}
	exec := executorFunc(func(context.Context, *models.ProcessingJob) (JobOutput, error) {
		return JobOutput{}, nil
	})
	w := newTestWorker(repo, map[models.JobKind]JobExecutor{models.JobKindTranscription: exec}, notifier, 1)
	job := createJob(t, repo, models.JobKindTranscription, "analysis-1")

	require.NoError(t, w.processJob(context.Background(), job.ID))
	assert.Zero(t, notifier.published.Load())
}

func TestWorkerFailsUnknownKind(t *testing.T) {
	repo := newMemJobRepo()
	w := newTestWorker(repo, map[models.JobKind]JobExecutor{}, nil, 1)
	job := createJob(t, repo, models.JobKindTranscription, "")

	require.NoError(t, w.processJob(context.Background(), job.ID))

	got, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
}

func TestWorkerRunsEnqueuedJobs(t *testing.T) {
	repo := newMemJobRepo()
	exec := executorFunc(func(context.Context, *models.ProcessingJob) (JobOutput, error) {
		return JobOutput{}, nil
	})
	w := NewWorker(repo, map[models.JobKind]JobExecutor{models.JobKindTranscription: exec}, nil, WorkerOptions{Concurrency: 2}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	job := createJob(t, repo, models.JobKindTranscription, "")
	w.EnqueueJob(job.ID)

	require.Eventually(t, func() bool {
		got, err := repo.FindByID(context.Background(), job.ID)
		return err == nil && got.Status == models.JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)
}

type countingNotifier struct {
	published atomic.Int32
}

func (n *countingNotifier) Publish(context.Context, pipeline.JobNotification) error {
	n.published.Add(1)
	return nil
}

func (n *countingNotifier) Consume(ctx context.Context, _ NotificationHandler) error {
	<-ctx.Done()
	return nil
}

func TestWorkerRepublishesCompletionAfterPublishFailure(t *testing.T) {
	repo := newMemJobRepo()
	notifier := &flakyNotifier{}
	notifier.failing.Store(true)
	exec := executorFunc(func(context.Context, *models.ProcessingJob) (JobOutput, error) {
		return JobOutput{Payload: `{"Faces":[]}`}, nil
	})
	w := newTestWorker(repo, map[models.JobKind]JobExecutor{models.JobKindFaceDetection: exec}, notifier, 1)
	job := createJob(t, repo, models.JobKindFaceDetection, "analysis-1")
	ctx := context.Background()

	err := w.processJob(ctx, job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish")

	got, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, got.Status)
	assert.False(t, got.Notified)
	assert.Equal(t, int32(2), notifier.attempts.Load())

	notifier.failing.Store(false)
	w.sweep(ctx)

	got, err = repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified)
	require.Len(t, notifier.sent(), 1)
	assert.Equal(t, pipeline.NotificationSucceeded, notifier.sent()[0].Status)
	assert.Equal(t, "analysis-1", notifier.sent()[0].JobTag)

	// Announced jobs are not published again.
	w.sweep(ctx)
	assert.Len(t, notifier.sent(), 1)
}

func TestWorkerRequeuesJobInterruptedByShutdown(t *testing.T) {
	repo := newMemJobRepo()
	ctx, cancel := context.WithCancel(context.Background())
	exec := executorFunc(func(ctx context.Context, _ *models.ProcessingJob) (JobOutput, error) {
		cancel()
		return JobOutput{}, ctx.Err()
	})
	w := newTestWorker(repo, map[models.JobKind]JobExecutor{models.JobKindFaceDetection: exec}, nil, 3)
	job := createJob(t, repo, models.JobKindFaceDetection, "analysis-1")

	require.NoError(t, w.processJob(ctx, job.ID))

	got, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, got.Status)

	pending, err := repo.FindPendingJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, job.ID, pending[0].ID)
}

func TestWorkerReclaimsStaleRunningJobs(t *testing.T) {
	repo := newMemJobRepo()
	w := newTestWorkerWith(repo, map[models.JobKind]JobExecutor{}, nil, WorkerOptions{StaleAfter: 10 * time.Minute})
	stale := createJob(t, repo, models.JobKindTranscription, "")
	fresh := createJob(t, repo, models.JobKindTranscription, "")
	require.NoError(t, repo.MarkRunning(context.Background(), stale.ID))
	require.NoError(t, repo.MarkRunning(context.Background(), fresh.ID))
	repo.setUpdatedAt(stale.ID, time.Now().Add(-time.Hour))

	w.sweep(context.Background())

	got, err := repo.FindByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, got.Status)
	got, err = repo.FindByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, got.Status)

	require.Len(t, w.jobQueue, 1)
	assert.Equal(t, stale.ID, <-w.jobQueue)
}

func TestWorkerFailsJobWhenExecutorPanics(t *testing.T) {
	repo := newMemJobRepo()
	notifier := NewMemoryNotifier(1)
	exec := executorFunc(func(context.Context, *models.ProcessingJob) (JobOutput, error) {
		panic("malformed xref table")
	})
	w := newTestWorker(repo, map[models.JobKind]JobExecutor{models.JobKindFaceDetection: exec}, notifier, 3)
	job := createJob(t, repo, models.JobKindFaceDetection, "analysis-1")

	require.NotPanics(t, func() {
		require.NoError(t, w.processJob(context.Background(), job.ID))
	})

	got, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "malformed xref table")
	assert.True(t, got.Notified)
}

func TestWorkerDelaysTransientRequeue(t *testing.T) {
	repo := newMemJobRepo()
	exec := executorFunc(func(context.Context, *models.ProcessingJob) (JobOutput, error) {
		return JobOutput{}, retry.Transient(errors.New("throttled"))
	})
	w := newTestWorkerWith(repo, map[models.JobKind]JobExecutor{models.JobKindTextDetection: exec}, nil, WorkerOptions{
		MaxAttempts: 3,
		Retry:       retry.Policy{InitialInterval: time.Hour, MaxInterval: time.Hour},
	})
	job := createJob(t, repo, models.JobKindTextDetection, "")

	require.NoError(t, w.processJob(context.Background(), job.ID))

	got, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, got.Status)
	assert.True(t, got.NotBefore.After(time.Now().Add(20*time.Minute)))

	pending, err := repo.FindPendingJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Empty(t, w.jobQueue)
	w.Stop()
}

type flakyNotifier struct {
	failing  atomic.Bool
	attempts atomic.Int32
	mu       sync.Mutex
	notes    []pipeline.JobNotification
}

func (n *flakyNotifier) Publish(_ context.Context, note pipeline.JobNotification) error {
	n.attempts.Add(1)
	if n.failing.Load() {
		return errors.New("connection refused")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

func (n *flakyNotifier) Consume(ctx context.Context, _ NotificationHandler) error {
	<-ctx.Done()
	return nil
}

func (n *flakyNotifier) sent() []pipeline.JobNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pipeline.JobNotification(nil), n.notes...)
}
