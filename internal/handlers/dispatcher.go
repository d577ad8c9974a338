package handlers

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/pipeline"
)

// Dispatcher hands a stored upload to the matching pipeline, the way an
// object-created trigger would.
type Dispatcher interface {
	Dispatch(kind models.SourceKind, event pipeline.UploadEvent)
}

// AsyncDispatcher runs each pipeline invocation on its own goroutine.
type AsyncDispatcher struct {
	ctx        context.Context
	resume     pipeline.ResumePipeline
	submission pipeline.SubmissionStage
	wg         sync.WaitGroup
	log        *zap.Logger
}

func NewAsyncDispatcher(ctx context.Context, resume pipeline.ResumePipeline, submission pipeline.SubmissionStage, log *zap.Logger) *AsyncDispatcher {
	return &AsyncDispatcher{
		ctx:        ctx,
		resume:     resume,
		submission: submission,
		log:        logger.OrNop(log).Named("dispatcher"),
	}
}

func (d *AsyncDispatcher) Dispatch(kind models.SourceKind, event pipeline.UploadEvent) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		var resp pipeline.Response
		switch kind {
		case models.SourceResume:
			resp = d.resume.Handle(d.ctx, event)
		case models.SourceVideo:
			resp = d.submission.Handle(d.ctx, event)
		default:
			d.log.Warn("no pipeline for upload kind", zap.String("kind", string(kind)))
			return
		}

		if resp.StatusCode >= 300 {
			d.log.Error("upload pipeline failed", zap.String("kind", string(kind)), zap.Int("status", resp.StatusCode), zap.Any("body", resp.Body))
			return
		}
		d.log.Info("upload pipeline finished", zap.String("kind", string(kind)))
	}()
}

// Wait blocks until every dispatched invocation returned.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}
