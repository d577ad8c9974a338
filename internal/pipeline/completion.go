package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/poll"
	"alfredoptarigan/candidate-screener/internal/retry"
	"alfredoptarigan/candidate-screener/internal/scoring"
	"alfredoptarigan/candidate-screener/internal/signals"
)

type CompletionBody struct {
	Message             string   `json:"message"`
	ResumeID            string   `json:"resume_id"`
	Score               int      `json:"score"`
	Skills              []string `json:"skills"`
	ProjectDetected     bool     `json:"project_detected"`
	InternshipDetected  bool     `json:"internship_detected"`
	InternshipType      string   `json:"internship_type"`
	CertificationsCount int      `json:"certifications_count"`
	DominantEmotion     string   `json:"dominant_emotion"`
	EmotionConfidence   float64  `json:"emotion_confidence"`
	SmileDetected       bool     `json:"smile_detected"`
	Sentiment           string   `json:"sentiment"`
	Degraded            []string `json:"degraded"`
}

type CompletionStage interface {
	Handle(ctx context.Context, event NotificationEvent) Response
}

type CompletionDeps struct {
	Transcriber  Transcriber
	FaceDetector FaceDetector
	Transcripts  TranscriptFetcher
	Sentiment    SentimentClassifier
	Store        ResultStore
	Indexer      Indexer
	Poll         poll.Policy
	Retry        retry.Policy
	Clock        poll.Clock
	Logger       *zap.Logger
}

type completionStage struct {
	transcriber  Transcriber
	faceDetector FaceDetector
	transcripts  TranscriptFetcher
	sentiment    SentimentClassifier
	store        ResultStore
	indexer      Indexer
	poll         poll.Policy
	retry        retry.Policy
	clock        poll.Clock
	log          *zap.Logger
}

func NewCompletionStage(deps CompletionDeps) CompletionStage {
	if deps.Clock == nil {
		deps.Clock = poll.RealClock
	}
	if deps.Poll.Timeout <= 0 && deps.Poll.MaxAttempts <= 0 {
		deps.Poll = poll.DefaultPolicy()
	}
	return &completionStage{
		transcriber:  deps.Transcriber,
		faceDetector: deps.FaceDetector,
		transcripts:  deps.Transcripts,
		sentiment:    deps.Sentiment,
		store:        deps.Store,
		indexer:      deps.Indexer,
		poll:         deps.Poll,
		retry:        deps.Retry,
		clock:        deps.Clock,
		log:          logger.OrNop(deps.Logger).Named("completion"),
	}
}

// Handle collects both job results for the tagged analysis, scores them and
// persists one record keyed by the tag. Signals whose source failed are
// degraded, never fatal; only persistence failure fails the invocation.
func (c *completionStage) Handle(ctx context.Context, event NotificationEvent) (resp Response) {
	defer guard(c.log, &resp)

	note, err := event.Notification()
	if err != nil {
		c.log.Warn("rejected notification", zap.Error(err))
		return failure(err)
	}

	id := note.JobTag
	log := logger.ForObject(c.log, id, note.Video.S3Bucket, note.Video.S3ObjectName).
		With(zap.String(logger.FieldJobID, note.JobID))
	log.Info("collecting video analysis")

	var (
		transcript         string
		transcriptDegraded bool
		affect             signals.Affect
		affectDegraded     bool
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		transcript, err = c.transcriptText(ctx, log, TranscriptionJobName(id))
		if err != nil {
			log.Warn("transcript unavailable, continuing with empty text", zap.Error(err))
			transcript, transcriptDegraded = "", true
		}
		return nil
	})
	g.Go(func() error {
		var err error
		affect, err = c.faceAffect(ctx, log, note)
		if err != nil {
			log.Warn("face detection unavailable, continuing without affect", zap.Error(err))
			affect, affectDegraded = signals.Affect{}, true
		}
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Error("invocation cancelled before persisting", zap.Error(err))
		return failure(fmt.Errorf("analysis %s cancelled: %w", id, err))
	}

	sentiment, err := c.classify(ctx, transcript)
	sentimentDegraded := false
	if err != nil {
		log.Warn("sentiment unavailable", zap.Error(err))
		sentiment, sentimentDegraded = signals.SentimentUnknown, true
	}

	set := signals.Extract(transcript)
	score := scoring.VideoScore(set, sentiment, affect)

	degraded := make([]string, 0, 3)
	if transcriptDegraded {
		degraded = append(degraded, models.DegradedTranscript)
	}
	if affectDegraded {
		degraded = append(degraded, models.DegradedFaceDetection)
	}
	if sentimentDegraded {
		degraded = append(degraded, models.DegradedSentiment)
	}

	log.Info("video scored",
		zap.Int("score", score),
		zap.String("sentiment", string(sentiment)),
		zap.String("emotion", affect.DominantEmotion),
		zap.Strings("degraded", degraded),
	)

	result := &models.AnalysisResult{
		ID:                  id,
		Source:              models.SourceVideo,
		Bucket:              note.Video.S3Bucket,
		FileKey:             note.Video.S3ObjectName,
		Score:               score,
		Skills:              set.Skills,
		ProjectDetected:     set.ProjectDetected,
		InternshipDetected:  set.InternshipDetected,
		InternshipType:      internshipLabel(set.InternshipType),
		CertificationsCount: set.CertificationCount,
		LowConfidence:       set.LowConfidence,
		DominantEmotion:     affect.DominantEmotion,
		EmotionConfidence:   affect.EmotionConfidence,
		SmileDetected:       affect.SmileDetected,
		Sentiment:           string(sentiment),
		Degraded:            degraded,
	}

	if err := c.store.Upsert(ctx, result); err != nil {
		log.Error("failed to persist result", zap.Error(err))
		return failure(fmt.Errorf("failed to persist result: %w", err))
	}

	index(ctx, log, c.indexer, result, transcript)

	return ok(CompletionBody{
		Message:             "Analysis saved",
		ResumeID:            id,
		Score:               score,
		Skills:              set.Skills,
		ProjectDetected:     set.ProjectDetected,
		InternshipDetected:  set.InternshipDetected,
		InternshipType:      internshipLabel(set.InternshipType),
		CertificationsCount: set.CertificationCount,
		DominantEmotion:     affect.DominantEmotion,
		EmotionConfidence:   affect.EmotionConfidence,
		SmileDetected:       affect.SmileDetected,
		Sentiment:           string(sentiment),
		Degraded:            degraded,
	})
}

func (c *completionStage) retryNotify(log *zap.Logger, op string) retry.Notify {
	return func(err error, wait time.Duration) {
		log.Debug("retrying after transient error", zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	}
}

// transcriptText waits for the named transcription job and downloads its
// transcript. A failed job or an exhausted wait is returned as an error.
func (c *completionStage) transcriptText(ctx context.Context, log *zap.Logger, name string) (string, error) {
	var job TranscriptionJob

	err := poll.Until(ctx, c.clock, c.poll, func(ctx context.Context) (bool, error) {
		var err error
		job, err = retry.DoValue(ctx, c.retry, c.retryNotify(log, "transcription_status"), func(ctx context.Context) (TranscriptionJob, error) {
			return c.transcriber.TranscriptionJob(ctx, name)
		})
		if err != nil {
			return false, fmt.Errorf("failed to get transcription job %s: %w", name, err)
		}
		log.Debug("transcription status", zap.String("status", string(job.Status)))
		return job.Status.Terminal(), nil
	})
	if err != nil {
		return "", err
	}

	if job.Status == models.JobFailed {
		return "", fmt.Errorf("transcription job %s failed: %s", name, job.FailureReason)
	}
	if job.TranscriptURI == "" {
		return "", fmt.Errorf("transcription job %s has no transcript location", name)
	}

	return retry.DoValue(ctx, c.retry, c.retryNotify(log, "fetch_transcript"), func(ctx context.Context) (string, error) {
		return c.transcripts.FetchTranscript(ctx, job.TranscriptURI)
	})
}

// faceAffect reads the face-detection result named in the notification and
// reduces it to a single affect.
func (c *completionStage) faceAffect(ctx context.Context, log *zap.Logger, note JobNotification) (signals.Affect, error) {
	if note.Status == NotificationFailed {
		return signals.Affect{}, fmt.Errorf("face detection job %s reported failure", note.JobID)
	}

	var job FaceDetectionJob
	err := poll.Until(ctx, c.clock, c.poll, func(ctx context.Context) (bool, error) {
		var err error
		job, err = retry.DoValue(ctx, c.retry, c.retryNotify(log, "face_detection"), func(ctx context.Context) (FaceDetectionJob, error) {
			return c.faceDetector.FaceDetectionJob(ctx, note.JobID)
		})
		if err != nil {
			return false, fmt.Errorf("failed to get face detection job %s: %w", note.JobID, err)
		}
		return job.Status.Terminal(), nil
	})
	if err != nil {
		return signals.Affect{}, err
	}

	if job.Status == models.JobFailed {
		return signals.Affect{}, fmt.Errorf("face detection job %s failed: %s", note.JobID, job.FailureReason)
	}

	return signals.ReduceAffect(job.Faces), nil
}

// classify labels the transcript. Empty text is neutral without a call.
func (c *completionStage) classify(ctx context.Context, text string) (signals.Sentiment, error) {
	if text == "" {
		return signals.SentimentNeutral, nil
	}

	label, err := retry.DoValue(ctx, c.retry, c.retryNotify(c.log, "sentiment"), func(ctx context.Context) (signals.Sentiment, error) {
		return c.sentiment.ClassifySentiment(ctx, text)
	})
	if err != nil {
		return signals.SentimentUnknown, fmt.Errorf("failed to classify sentiment: %w", err)
	}
	return label, nil
}
