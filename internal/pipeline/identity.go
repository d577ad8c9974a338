package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Request is one analysis of one stored object.
type Request struct {
	Bucket string
	Key    string
	ID     string
}

// newRequest validates event and resolves the analysis identifier.
func newRequest(ctx context.Context, event UploadEvent, meta MetadataReader, newID IDFunc) (Request, error) {
	bucket, key, err := event.Object()
	if err != nil {
		return Request{}, err
	}
	id, err := resolveID(ctx, meta, newID, bucket, key)
	if err != nil {
		return Request{}, err
	}
	return Request{Bucket: bucket, Key: key, ID: id}, nil
}

// IDFunc generates a fresh analysis identifier.
type IDFunc func() string

func newUUID() string {
	return uuid.New().String()
}

// resolveID returns the object's resumeid metadata entry when present, and a
// fresh identifier otherwise.
func resolveID(ctx context.Context, meta MetadataReader, newID IDFunc, bucket, key string) (string, error) {
	if meta != nil {
		md, err := meta.ObjectMetadata(ctx, bucket, key)
		if err != nil {
			return "", fmt.Errorf("failed to read object metadata: %w", err)
		}
		for k, v := range md {
			if strings.EqualFold(k, MetadataKeyResumeID) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), nil
			}
		}
	}
	return newID(), nil
}

// TranscriptionJobName derives the transcription job name from the
// analysis identifier so either can be recovered from the other.
func TranscriptionJobName(analysisID string) string {
	return "video-analysis-" + analysisID
}
