package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/scoring"
	"alfredoptarigan/candidate-screener/internal/signals"
)

type ResumeBody struct {
	Message             string   `json:"message"`
	ResumeID            string   `json:"resume_id"`
	ResumeFile          string   `json:"resume_file"`
	Score               int      `json:"score"`
	Skills              []string `json:"skills"`
	ProjectDetected     bool     `json:"project_detected"`
	InternshipDetected  bool     `json:"internship_detected"`
	InternshipType      string   `json:"internship_type"`
	CertificationsCount int      `json:"certifications_count"`
	LowConfidence       bool     `json:"low_confidence"`
}

type ResumePipeline interface {
	Handle(ctx context.Context, event UploadEvent) Response
}

type ResumeDeps struct {
	Extractor TextExtractor
	Metadata  MetadataReader
	Store     ResultStore
	Indexer   Indexer
	Logger    *zap.Logger
	NewID     IDFunc
}

type resumePipeline struct {
	extractor TextExtractor
	metadata  MetadataReader
	store     ResultStore
	indexer   Indexer
	log       *zap.Logger
	newID     IDFunc
}

func NewResumePipeline(deps ResumeDeps) ResumePipeline {
	if deps.NewID == nil {
		deps.NewID = newUUID
	}
	return &resumePipeline{
		extractor: deps.Extractor,
		metadata:  deps.Metadata,
		store:     deps.Store,
		indexer:   deps.Indexer,
		log:       logger.OrNop(deps.Logger).Named("resume"),
		newID:     deps.NewID,
	}
}

// Handle runs RECEIVED -> EXTRACTED -> SCORED -> PERSISTED for one upload.
func (p *resumePipeline) Handle(ctx context.Context, event UploadEvent) (resp Response) {
	defer guard(p.log, &resp)

	req, err := newRequest(ctx, event, p.metadata, p.newID)
	if err != nil {
		p.log.Warn("rejected upload event", zap.Error(err))
		return failure(err)
	}
	bucket, key, id := req.Bucket, req.Key, req.ID
	log := logger.ForObject(p.log, id, bucket, key)
	log.Info("processing resume")

	var degraded []string
	text, err := p.extractor.ExtractText(ctx, bucket, key)
	if err != nil {
		log.Warn("text extraction failed, continuing with empty text", zap.Error(err))
		text = ""
		degraded = append(degraded, models.DegradedText)
	}

	set := signals.Extract(text)
	if set.LowConfidence {
		log.Warn("extracted text is short, document may be image-based", zap.Int("length", len(text)))
	}
	score := scoring.TextScore(set)
	log.Info("resume scored", zap.Int("score", score), zap.Int("skills", len(set.Skills)))

	result := &models.AnalysisResult{
		ID:                  id,
		Source:              models.SourceResume,
		Bucket:              bucket,
		FileKey:             key,
		Score:               score,
		Skills:              set.Skills,
		ProjectDetected:     set.ProjectDetected,
		InternshipDetected:  set.InternshipDetected,
		InternshipType:      internshipLabel(set.InternshipType),
		CertificationsCount: set.CertificationCount,
		LowConfidence:       set.LowConfidence,
		Degraded:            degraded,
	}

	if err := p.store.Upsert(ctx, result); err != nil {
		log.Error("failed to persist result", zap.Error(err))
		return failure(fmt.Errorf("failed to persist result: %w", err))
	}

	index(ctx, log, p.indexer, result, text)

	return ok(ResumeBody{
		Message:             "Success",
		ResumeID:            id,
		ResumeFile:          key,
		Score:               score,
		Skills:              set.Skills,
		ProjectDetected:     set.ProjectDetected,
		InternshipDetected:  set.InternshipDetected,
		InternshipType:      internshipLabel(set.InternshipType),
		CertificationsCount: set.CertificationCount,
		LowConfidence:       set.LowConfidence,
	})
}

func internshipLabel(t signals.InternshipType) string {
	if t == signals.InternshipNone {
		return "None"
	}
	return string(t)
}

func index(ctx context.Context, log *zap.Logger, indexer Indexer, result *models.AnalysisResult, text string) {
	if indexer == nil || text == "" {
		return
	}
	if err := indexer.IndexResult(ctx, result, text); err != nil {
		log.Warn("failed to index result", zap.Error(err))
	}
}
