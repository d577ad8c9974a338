package pipeline

import (
	"context"

	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/signals"
)

// MetadataKeyResumeID is the object metadata entry that, when present,
// supplies the analysis identifier.
const MetadataKeyResumeID = "resumeid"

// TextExtractor runs OCR on a stored document and waits for the text.
type TextExtractor interface {
	ExtractText(ctx context.Context, bucket, key string) (string, error)
}

// MetadataReader returns the user metadata stored with an object.
type MetadataReader interface {
	ObjectMetadata(ctx context.Context, bucket, key string) (map[string]string, error)
}

type TranscriptionJob struct {
	Name          string
	Status        models.JobStatus
	TranscriptURI string
	FailureReason string
}

// Transcriber manages named speech-to-text jobs.
type Transcriber interface {
	StartTranscription(ctx context.Context, name, bucket, key string) error
	TranscriptionJob(ctx context.Context, name string) (TranscriptionJob, error)
	DeleteTranscription(ctx context.Context, name string) error
}

type FaceDetectionJob struct {
	JobID         string
	Status        models.JobStatus
	Faces         []signals.FaceDetection
	FailureReason string
}

// FaceDetector manages tagged face/emotion detection jobs. Completion of a
// tagged job raises a notification.
type FaceDetector interface {
	StartFaceDetection(ctx context.Context, bucket, key, tag string) (string, error)
	FaceDetectionJob(ctx context.Context, jobID string) (FaceDetectionJob, error)
}

// TranscriptFetcher downloads a transcript document and flattens it to text.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, uri string) (string, error)
}

type SentimentClassifier interface {
	ClassifySentiment(ctx context.Context, text string) (signals.Sentiment, error)
}

// ResultStore persists results. Upsert must be idempotent per ID.
type ResultStore interface {
	Upsert(ctx context.Context, result *models.AnalysisResult) error
}

// Indexer makes a persisted result searchable. Failures never fail the
// pipeline.
type Indexer interface {
	IndexResult(ctx context.Context, result *models.AnalysisResult, text string) error
}
