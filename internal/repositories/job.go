package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/candidate-screener/internal/models"
)

var (
	ErrJobNotFound = errors.New("processing job not found")
	ErrJobExists   = errors.New("processing job already exists")
)

type JobRepository interface {
	Create(ctx context.Context, job *models.ProcessingJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error)
	FindByName(ctx context.Context, name string) (*models.ProcessingJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID, location, result string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error
	Requeue(ctx context.Context, id uuid.UUID, errorMsg string, notBefore time.Time) error
	RequeueStale(ctx context.Context, before time.Time) (int64, error)
	MarkNotified(ctx context.Context, id uuid.UUID) error
	FindPendingJobs(ctx context.Context, limit int) ([]models.ProcessingJob, error)
	FindUnnotified(ctx context.Context, limit int) ([]models.ProcessingJob, error)
	DeleteByName(ctx context.Context, name string) error
}

type jobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(ctx context.Context, job *models.ProcessingJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
		}
		return fmt.Errorf("failed to create processing job: %w", err)
	}
	return nil
}

func (r *jobRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *jobRepository) FindByName(ctx context.Context, name string) (*models.ProcessingJob, error) {
	return r.findOne(ctx, "name = ?", name)
}

func (r *jobRepository) findOne(ctx context.Context, query string, arg any) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	if err := r.db.WithContext(ctx).Where(query, arg).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to find processing job: %w", err)
	}
	return &job, nil
}

// MarkRunning claims a queued job. It fails with ErrJobNotFound when the
// job is gone or another worker already claimed it.
func (r *jobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.ProcessingJob{}).
		Where("id = ? AND status = ?", id, models.JobQueued).
		Updates(map[string]interface{}{
			"status":     models.JobRunning,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *jobRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, location, payload string) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":          models.JobSucceeded,
		"result_location": location,
		"result":          payload,
		"error_message":   "",
		"updated_at":      time.Now(),
	})
}

func (r *jobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        models.JobFailed,
		"error_message": errorMsg,
		"updated_at":    time.Now(),
	})
}

// Requeue puts a job back in the queue. The pending scan skips it until
// notBefore.
func (r *jobRepository) Requeue(ctx context.Context, id uuid.UUID, errorMsg string, notBefore time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        models.JobQueued,
		"error_message": errorMsg,
		"not_before":    notBefore,
		"updated_at":    time.Now(),
	})
}

// RequeueStale returns running jobs untouched since before to the queue.
// Those were claimed by a runner that stopped without recording an outcome.
func (r *jobRepository) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.ProcessingJob{}).
		Where("status = ? AND updated_at < ?", models.JobRunning, before).
		Updates(map[string]interface{}{
			"status":        models.JobQueued,
			"error_message": "reclaimed after runner stopped",
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *jobRepository) MarkNotified(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, map[string]interface{}{
		"notified":   true,
		"updated_at": time.Now(),
	})
}

func (r *jobRepository) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.ProcessingJob{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update processing job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *jobRepository) FindPendingJobs(ctx context.Context, limit int) ([]models.ProcessingJob, error) {
	var jobs []models.ProcessingJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND (not_before IS NULL OR not_before <= ?)", models.JobQueued, time.Now()).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	return jobs, nil
}

func (r *jobRepository) DeleteByName(ctx context.Context, name string) error {
	result := r.db.WithContext(ctx).Where("name = ?", name).Delete(&models.ProcessingJob{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete processing job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// FindUnnotified returns finished tagged jobs whose completion was never
// published.
func (r *jobRepository) FindUnnotified(ctx context.Context, limit int) ([]models.ProcessingJob, error) {
	var jobs []models.ProcessingJob
	err := r.db.WithContext(ctx).
		Where("status IN ? AND kind = ? AND tag <> '' AND notified = ?",
			[]models.JobStatus{models.JobSucceeded, models.JobFailed}, models.JobKindFaceDetection, false).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find unnotified jobs: %w", err)
	}

	return jobs, nil
}
