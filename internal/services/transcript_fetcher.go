package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/pipeline"
	"alfredoptarigan/candidate-screener/internal/retry"
)

type transcriptFetcher struct {
	client *resty.Client
}

// NewTranscriptFetcher downloads transcript documents over HTTP.
func NewTranscriptFetcher(timeout time.Duration) pipeline.TranscriptFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &transcriptFetcher{
		client: resty.New().SetTimeout(timeout),
	}
}

// FetchTranscript returns every transcript segment of the document at uri
// joined by a single space. Throttling and server errors are transient.
func (f *transcriptFetcher) FetchTranscript(ctx context.Context, uri string) (string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(uri)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", retry.Transient(fmt.Errorf("failed to download transcript: %w", err))
	}

	if resp.IsError() {
		err := fmt.Errorf("transcript download returned %d: %s", resp.StatusCode(), logger.TruncateForLog(resp.String(), 100))
		if retry.IsRetryableStatus(resp.StatusCode()) {
			return "", retry.Transient(err)
		}
		return "", err
	}

	return parseTranscript(resp.String())
}

func parseTranscript(body string) (string, error) {
	if !gjson.Valid(body) {
		return "", fmt.Errorf("transcript document is not valid JSON")
	}

	segments := make([]string, 0)
	for _, segment := range gjson.Get(body, "results.transcripts.#.transcript").Array() {
		if s := strings.TrimSpace(segment.String()); s != "" {
			segments = append(segments, s)
		}
	}
	return strings.Join(segments, " "), nil
}

type storageTranscriptFetcher struct {
	storage StorageService
	next    pipeline.TranscriptFetcher
}

// NewStorageTranscriptFetcher reads transcripts kept in storage directly
// and hands every other address to next. Locally produced transcripts are
// then readable without a running HTTP server.
func NewStorageTranscriptFetcher(storage StorageService, next pipeline.TranscriptFetcher) pipeline.TranscriptFetcher {
	return &storageTranscriptFetcher{storage: storage, next: next}
}

func (f *storageTranscriptFetcher) FetchTranscript(ctx context.Context, uri string) (string, error) {
	bucket, key, ok := f.storage.ObjectFromURL(uri)
	if !ok {
		return f.next.FetchTranscript(ctx, uri)
	}

	data, err := f.storage.ReadObject(ctx, bucket, key)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return parseTranscript(string(data))
}
