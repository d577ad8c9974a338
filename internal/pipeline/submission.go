package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
)

type SubmissionBody struct {
	Message              string `json:"message"`
	AnalysisID           string `json:"analysisId"`
	FaceDetectionJobID   string `json:"faceDetectionJobId"`
	TranscriptionJobName string `json:"transcriptionJobName"`
	Bucket               string `json:"bucket"`
	File                 string `json:"file"`
}

// JobHandles links the two submitted jobs to one analysis.
type JobHandles struct {
	AnalysisID           string
	FaceDetectionJobID   string
	TranscriptionJobName string
}

type SubmissionStage interface {
	Handle(ctx context.Context, event UploadEvent) Response
}

type SubmissionDeps struct {
	Transcriber  Transcriber
	FaceDetector FaceDetector
	Metadata     MetadataReader
	Logger       *zap.Logger
	NewID        IDFunc
}

type submissionStage struct {
	transcriber  Transcriber
	faceDetector FaceDetector
	metadata     MetadataReader
	log          *zap.Logger
	newID        IDFunc
}

func NewSubmissionStage(deps SubmissionDeps) SubmissionStage {
	if deps.NewID == nil {
		deps.NewID = newUUID
	}
	return &submissionStage{
		transcriber:  deps.Transcriber,
		faceDetector: deps.FaceDetector,
		metadata:     deps.Metadata,
		log:          logger.OrNop(deps.Logger).Named("submission"),
		newID:        deps.NewID,
	}
}

// Handle submits the transcription and face-detection jobs for one video
// and returns without waiting for either.
func (s *submissionStage) Handle(ctx context.Context, event UploadEvent) (resp Response) {
	defer guard(s.log, &resp)

	req, err := newRequest(ctx, event, s.metadata, s.newID)
	if err != nil {
		s.log.Warn("rejected upload event", zap.Error(err))
		return failure(err)
	}
	bucket, key, id := req.Bucket, req.Key, req.ID
	log := logger.ForObject(s.log, id, bucket, key)

	handles, err := s.submit(ctx, log, id, bucket, key)
	if err != nil {
		return failure(err)
	}

	log.Info("video analysis submitted",
		zap.String(logger.FieldJobID, handles.FaceDetectionJobID),
		zap.String("transcription_job", handles.TranscriptionJobName),
	)

	return ok(SubmissionBody{
		Message:              "Video analysis started",
		AnalysisID:           handles.AnalysisID,
		FaceDetectionJobID:   handles.FaceDetectionJobID,
		TranscriptionJobName: handles.TranscriptionJobName,
		Bucket:               bucket,
		File:                 key,
	})
}

// submit starts the transcription job first. Only the face-detection job
// raises the completion notification, so if it cannot be started the
// transcription job is withdrawn and nothing downstream ever runs.
func (s *submissionStage) submit(ctx context.Context, log *zap.Logger, id, bucket, key string) (JobHandles, error) {
	handles := JobHandles{
		AnalysisID:           id,
		TranscriptionJobName: TranscriptionJobName(id),
	}

	if err := s.transcriber.StartTranscription(ctx, handles.TranscriptionJobName, bucket, key); err != nil {
		log.Error("failed to start transcription", zap.Error(err))
		return JobHandles{}, fmt.Errorf("failed to start transcription job: %w", err)
	}

	jobID, err := s.faceDetector.StartFaceDetection(ctx, bucket, key, id)
	if err == nil && jobID == "" {
		err = fmt.Errorf("face detection returned an empty job id")
	}
	if err != nil {
		log.Error("failed to start face detection", zap.Error(err))
		if derr := s.transcriber.DeleteTranscription(context.WithoutCancel(ctx), handles.TranscriptionJobName); derr != nil {
			log.Warn("failed to withdraw transcription job", zap.String("transcription_job", handles.TranscriptionJobName), zap.Error(derr))
		}
		return JobHandles{}, fmt.Errorf("failed to start face detection job: %w", err)
	}

	handles.FaceDetectionJobID = jobID
	return handles, nil
}
