package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"alfredoptarigan/candidate-screener/internal/config"
	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/pipeline"
	"alfredoptarigan/candidate-screener/internal/poll"
	"alfredoptarigan/candidate-screener/internal/repositories"
	"alfredoptarigan/candidate-screener/internal/services"
)

const transcriptBucket = "transcripts"

// components is the fully wired process.
type components struct {
	cfg *config.Config
	log *zap.Logger

	db           *gorm.DB
	redis        *redis.Client
	analysisRepo repositories.AnalysisRepository
	jobRepo      repositories.JobRepository
	storage      services.StorageService
	gemini       services.GeminiService
	index        services.CandidateIndex
	notifier     services.Notifier
	worker       services.Worker

	resume     pipeline.ResumePipeline
	submission pipeline.SubmissionStage
	completion pipeline.CompletionStage

	inflight sync.WaitGroup
}

func wire(ctx context.Context, cfg *config.Config, log *zap.Logger) (*components, error) {
	c := &components{cfg: cfg, log: log}

	db, err := config.InitDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	c.db = db
	c.analysisRepo = repositories.NewAnalysisRepository(db)
	c.jobRepo = repositories.NewJobRepository(db)

	c.storage = services.NewStorageService(cfg.Storage.Root, cfg.BaseURL())
	for _, bucket := range []string{cfg.Storage.ResumeBucket, cfg.Storage.VideoBucket, transcriptBucket} {
		if err := c.storage.EnsureBucket(bucket); err != nil {
			return nil, err
		}
	}

	if cfg.Gemini.APIKey != "" {
		c.gemini, err = services.NewGeminiService(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.EmbedModel, cfg.Gemini.RequestsPerMin, log)
		if err != nil {
			return nil, err
		}
		log.Info("gemini initialized", zap.String("model", cfg.Gemini.Model))
	} else {
		log.Warn("GEMINI_API_KEY is not set, media jobs and sentiment will degrade")
	}

	var indexer pipeline.Indexer
	if cfg.Qdrant.Enabled && c.gemini != nil {
		index, err := services.NewQdrantIndex(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, log)
		if err != nil {
			return nil, err
		}
		if err := index.InitCollection(ctx); err != nil {
			log.Warn("qdrant unavailable, similarity search disabled", zap.Error(err))
		} else {
			c.index = index
			indexer = services.NewCandidateIndexer(c.gemini, index)
			log.Info("qdrant initialized", zap.String("collection", cfg.Qdrant.Collection))
		}
	}

	if cfg.Redis.Addr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.notifier = services.NewRedisNotifier(c.redis, cfg.Redis.Queue, log)
		log.Info("redis notifier initialized", zap.String("queue", cfg.Redis.Queue))
	} else {
		c.notifier = services.NewMemoryNotifier(0)
	}

	pdfParser := services.NewPDFParserService()
	executors := map[models.JobKind]services.JobExecutor{
		models.JobKindTextDetection: services.NewTextDetectionExecutor(c.storage, pdfParser, c.gemini, log),
		models.JobKindTranscription: services.NewTranscriptionExecutor(c.storage, c.gemini, transcriptBucket),
		models.JobKindFaceDetection: services.NewFaceDetectionExecutor(c.storage, c.gemini),
	}
	c.worker = services.NewWorker(c.jobRepo, executors, c.notifier, services.WorkerOptions{
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		Retry:        cfg.Pipeline.Retry,
		StaleAfter:   cfg.Worker.StaleAfter,
	}, log)

	mediaJobs := services.NewMediaJobService(c.jobRepo, c.worker, cfg.Pipeline.Poll, poll.RealClock, log)

	c.resume = pipeline.NewResumePipeline(pipeline.ResumeDeps{
		Extractor: mediaJobs,
		Metadata:  c.storage,
		Store:     c.analysisRepo,
		Indexer:   indexer,
		Logger:    log,
	})
	c.submission = pipeline.NewSubmissionStage(pipeline.SubmissionDeps{
		Transcriber:  mediaJobs,
		FaceDetector: mediaJobs,
		Metadata:     c.storage,
		Logger:       log,
	})
	c.completion = pipeline.NewCompletionStage(pipeline.CompletionDeps{
		Transcriber:  mediaJobs,
		FaceDetector: mediaJobs,
		Transcripts:  services.NewStorageTranscriptFetcher(c.storage, services.NewTranscriptFetcher(0)),
		Sentiment:    services.NewSentimentClassifier(c.gemini, services.NewTextChunker(), cfg.Pipeline.SentimentChunkSize, log),
		Store:        c.analysisRepo,
		Indexer:      indexer,
		Poll:         cfg.Pipeline.Poll,
		Retry:        cfg.Pipeline.Retry,
		Logger:       log,
	})

	return c, nil
}

// consumeNotifications runs the completion stage for every published job
// notification until ctx is cancelled. Each notification is its own
// invocation.
func (c *components) consumeNotifications(ctx context.Context) error {
	return c.notifier.Consume(ctx, func(ctx context.Context, note pipeline.JobNotification) {
		event, err := pipeline.NewNotificationEvent(note)
		if err != nil {
			c.log.Error("failed to wrap notification", zap.Error(err))
			return
		}

		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			resp := c.completion.Handle(ctx, event)
			if resp.StatusCode >= 300 {
				c.log.Error("completion failed", zap.String(logger.FieldAnalysisID, note.JobTag), zap.Any("body", resp.Body))
			}
		}()
	})
}

func (c *components) close() {
	c.inflight.Wait()
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.db != nil {
		if sqlDB, err := c.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = c.log.Sync()
}
