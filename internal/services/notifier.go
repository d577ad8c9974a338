package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/pipeline"
)

// NotificationHandler processes one job notification.
type NotificationHandler func(ctx context.Context, note pipeline.JobNotification)

// Notifier is the channel between the job runner and the completion stage.
type Notifier interface {
	Publish(ctx context.Context, note pipeline.JobNotification) error
	// Consume calls handle for every message until ctx is cancelled.
	Consume(ctx context.Context, handle NotificationHandler) error
}

type redisNotifier struct {
	client *redis.Client
	queue  string
	wait   time.Duration
	log    *zap.Logger
}

// NewRedisNotifier uses a Redis list as a durable queue: RPUSH to publish,
// BLPOP to consume.
func NewRedisNotifier(client *redis.Client, queue string, log *zap.Logger) Notifier {
	return &redisNotifier{
		client: client,
		queue:  queue,
		wait:   5 * time.Second,
		log:    logger.OrNop(log).Named("notifier"),
	}
}

func (n *redisNotifier) Publish(ctx context.Context, note pipeline.JobNotification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := n.client.RPush(ctx, n.queue, body).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	n.log.Debug("notification published", zap.String(logger.FieldJobID, note.JobID), zap.String("tag", note.JobTag))
	return nil
}

func (n *redisNotifier) Consume(ctx context.Context, handle NotificationHandler) error {
	n.log.Info("consuming notifications", zap.String("queue", n.queue))
	for {
		res, err := n.client.BLPop(ctx, n.wait, n.queue).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			n.log.Warn("failed to read notification queue", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(n.wait):
			}
			continue
		}

		// BLPOP returns [queue, value].
		if len(res) != 2 {
			continue
		}
		var note pipeline.JobNotification
		if err := json.Unmarshal([]byte(res[1]), &note); err != nil {
			n.log.Warn("dropping malformed notification", zap.Error(err), zap.String("message", logger.TruncateForLog(res[1], 200)))
			continue
		}
		handle(ctx, note)
	}
}

type memoryNotifier struct {
	ch chan pipeline.JobNotification
}

// NewMemoryNotifier is an in-process notifier for single-node runs and
// tests.
func NewMemoryNotifier(buffer int) Notifier {
	if buffer <= 0 {
		buffer = 100
	}
	return &memoryNotifier{ch: make(chan pipeline.JobNotification, buffer)}
}

func (n *memoryNotifier) Publish(ctx context.Context, note pipeline.JobNotification) error {
	select {
	case n.ch <- note:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *memoryNotifier) Consume(ctx context.Context, handle NotificationHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case note := <-n.ch:
			handle(ctx, note)
		}
	}
}
