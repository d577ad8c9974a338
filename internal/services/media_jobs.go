package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/pipeline"
	"alfredoptarigan/candidate-screener/internal/poll"
	"alfredoptarigan/candidate-screener/internal/repositories"
	"alfredoptarigan/candidate-screener/internal/signals"
)

// ErrJobFailed is returned when a media job ended in the failed state.
var ErrJobFailed = errors.New("media job failed")

// MediaJobService submits media jobs to the job runner and reads their
// results back. It backs the pipeline's OCR, transcription and
// face-detection collaborators.
type MediaJobService interface {
	pipeline.TextExtractor
	pipeline.Transcriber
	pipeline.FaceDetector
}

type mediaJobService struct {
	jobRepo repositories.JobRepository
	worker  Worker
	policy  poll.Policy
	clock   poll.Clock
	log     *zap.Logger
}

func NewMediaJobService(jobRepo repositories.JobRepository, worker Worker, policy poll.Policy, clock poll.Clock, log *zap.Logger) MediaJobService {
	if policy.Timeout <= 0 && policy.MaxAttempts <= 0 {
		policy = poll.DefaultPolicy()
	}
	if clock == nil {
		clock = poll.RealClock
	}
	return &mediaJobService{
		jobRepo: jobRepo,
		worker:  worker,
		policy:  policy,
		clock:   clock,
		log:     logger.OrNop(log).Named("media_jobs"),
	}
}

func (s *mediaJobService) submit(ctx context.Context, kind models.JobKind, name, bucket, key, tag string) (*models.ProcessingJob, error) {
	job := &models.ProcessingJob{
		ID:     uuid.New(),
		Kind:   kind,
		Name:   name,
		Bucket: bucket,
		Key:    key,
		Tag:    tag,
		Status: models.JobQueued,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	s.worker.EnqueueJob(job.ID)
	s.log.Debug("job submitted",
		zap.String(logger.FieldJobID, job.ID.String()),
		zap.String("kind", string(kind)),
		zap.String("name", name),
	)
	return job, nil
}

// ExtractText runs a text-detection job and waits for its lines. The
// lines are joined with a newline.
func (s *mediaJobService) ExtractText(ctx context.Context, bucket, key string) (string, error) {
	job, err := s.submit(ctx, models.JobKindTextDetection, "text-detection-"+uuid.NewString(), bucket, key, "")
	if err != nil {
		return "", err
	}

	var done *models.ProcessingJob
	err = poll.Until(ctx, s.clock, s.policy, func(ctx context.Context) (bool, error) {
		current, err := s.jobRepo.FindByID(ctx, job.ID)
		if err != nil {
			return false, err
		}
		done = current
		return current.Status.Terminal(), nil
	})
	if err != nil {
		return "", fmt.Errorf("text detection for %s/%s: %w", bucket, key, err)
	}
	if done.Status == models.JobFailed {
		return "", fmt.Errorf("%w: %s", ErrJobFailed, done.ErrorMessage)
	}

	lines := make([]string, 0)
	gjson.Get(done.Result, "lines").ForEach(func(_, line gjson.Result) bool {
		lines = append(lines, line.String())
		return true
	})
	return strings.Join(lines, "\n"), nil
}

func (s *mediaJobService) StartTranscription(ctx context.Context, name, bucket, key string) error {
	_, err := s.submit(ctx, models.JobKindTranscription, name, bucket, key, "")
	return err
}

func (s *mediaJobService) TranscriptionJob(ctx context.Context, name string) (pipeline.TranscriptionJob, error) {
	job, err := s.jobRepo.FindByName(ctx, name)
	if err != nil {
		return pipeline.TranscriptionJob{}, err
	}
	return pipeline.TranscriptionJob{
		Name:          job.Name,
		Status:        job.Status,
		TranscriptURI: job.ResultLocation,
		FailureReason: job.ErrorMessage,
	}, nil
}

func (s *mediaJobService) DeleteTranscription(ctx context.Context, name string) error {
	return s.jobRepo.DeleteByName(ctx, name)
}

func (s *mediaJobService) StartFaceDetection(ctx context.Context, bucket, key, tag string) (string, error) {
	job, err := s.submit(ctx, models.JobKindFaceDetection, "face-detection-"+uuid.NewString(), bucket, key, tag)
	if err != nil {
		return "", err
	}
	return job.ID.String(), nil
}

func (s *mediaJobService) FaceDetectionJob(ctx context.Context, jobID string) (pipeline.FaceDetectionJob, error) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return pipeline.FaceDetectionJob{}, fmt.Errorf("invalid face detection job id %q: %w", jobID, err)
	}

	job, err := s.jobRepo.FindByID(ctx, id)
	if err != nil {
		return pipeline.FaceDetectionJob{}, err
	}

	out := pipeline.FaceDetectionJob{
		JobID:         jobID,
		Status:        job.Status,
		FailureReason: job.ErrorMessage,
	}
	if job.Status != models.JobSucceeded {
		return out, nil
	}

	records, err := parseFaceRecords(job.Result)
	if err != nil {
		return pipeline.FaceDetectionJob{}, err
	}
	out.Faces = toFaceDetections(records)
	return out, nil
}

func toFaceDetections(records []faceRecord) []signals.FaceDetection {
	faces := make([]signals.FaceDetection, 0, len(records))
	for _, r := range records {
		face := signals.FaceDetection{
			Timestamp: r.Timestamp,
			Smile:     signals.Smile{Value: r.Face.Smile.Value, Confidence: r.Face.Smile.Confidence},
		}
		for _, e := range r.Face.Emotions {
			face.Emotions = append(face.Emotions, signals.Emotion{Type: e.Type, Confidence: e.Confidence})
		}
		faces = append(faces, face)
	}
	return faces
}
