package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/candidate-screener/internal/models"
)

var ErrResultNotFound = errors.New("analysis result not found")

type AnalysisRepository interface {
	Upsert(ctx context.Context, result *models.AnalysisResult) error
	FindByID(ctx context.Context, id string) (*models.AnalysisResult, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.AnalysisResult, error)
	Delete(ctx context.Context, id string) error
}

type analysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepository{db: db}
}

// Upsert writes the whole record in one statement. A second write for the
// same ID replaces every column except created_at.
func (r *analysisRepository) Upsert(ctx context.Context, result *models.AnalysisResult) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(result).Error
	if err != nil {
		return fmt.Errorf("failed to upsert analysis result %s: %w", result.ID, err)
	}
	return nil
}

var upsertColumns = []string{
	"source", "bucket", "file_key", "score", "skills",
	"project_detected", "internship_detected", "internship_type", "certifications_count",
	"low_confidence", "dominant_emotion", "emotion_confidence", "smile_detected",
	"sentiment", "degraded", "updated_at",
}

func (r *analysisRepository) FindByID(ctx context.Context, id string) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to find analysis result: %w", err)
	}
	return &result, nil
}

func (r *analysisRepository) FindByIDs(ctx context.Context, ids []string) ([]models.AnalysisResult, error) {
	var results []models.AnalysisResult
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to find analysis results: %w", err)
	}
	return results, nil
}

func (r *analysisRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.AnalysisResult{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete analysis result: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrResultNotFound
	}
	return nil
}
