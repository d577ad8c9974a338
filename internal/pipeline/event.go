package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidEvent = errors.New("invalid event")

// UploadEvent is an object-storage notification for one or more new objects.
// Only the first record is processed.
type UploadEvent struct {
	Records []UploadRecord `json:"Records"`
}

type UploadRecord struct {
	EventName string   `json:"eventName,omitempty"`
	S3        S3Entity `json:"s3"`
}

type S3Entity struct {
	Bucket S3Bucket `json:"bucket"`
	Object S3Object `json:"object"`
}

type S3Bucket struct {
	Name string `json:"name"`
}

type S3Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size,omitempty"`
}

// NewUploadEvent builds a single-record upload event.
func NewUploadEvent(bucket, key string) UploadEvent {
	return UploadEvent{Records: []UploadRecord{{
		EventName: "ObjectCreated:Put",
		S3: S3Entity{
			Bucket: S3Bucket{Name: bucket},
			Object: S3Object{Key: url.QueryEscape(key)},
		},
	}}}
}

// Object returns the bucket and the decoded object key of the first record.
func (e UploadEvent) Object() (string, string, error) {
	if len(e.Records) == 0 {
		return "", "", fmt.Errorf("%w: no records", ErrInvalidEvent)
	}

	rec := e.Records[0]
	bucket := strings.TrimSpace(rec.S3.Bucket.Name)
	if bucket == "" {
		return "", "", fmt.Errorf("%w: missing bucket name", ErrInvalidEvent)
	}

	key, err := url.QueryUnescape(rec.S3.Object.Key)
	if err != nil {
		return "", "", fmt.Errorf("%w: malformed object key %q: %v", ErrInvalidEvent, rec.S3.Object.Key, err)
	}
	if strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("%w: missing object key", ErrInvalidEvent)
	}

	return bucket, key, nil
}

// NotificationEvent carries a job-completion message from the notification
// channel. The message itself is a JSON-encoded JobNotification.
type NotificationEvent struct {
	Records []NotificationRecord `json:"Records"`
}

type NotificationRecord struct {
	Sns SNSMessage `json:"Sns"`
}

type SNSMessage struct {
	MessageID string `json:"MessageId,omitempty"`
	Message   string `json:"Message"`
}

// JobNotification is published when a tagged face-detection job finishes.
type JobNotification struct {
	JobID  string   `json:"JobId"`
	Status string   `json:"Status"`
	API    string   `json:"API,omitempty"`
	JobTag string   `json:"JobTag"`
	Video  VideoRef `json:"Video"`
}

type VideoRef struct {
	S3Bucket     string `json:"S3Bucket"`
	S3ObjectName string `json:"S3ObjectName"`
}

const (
	NotificationSucceeded = "SUCCEEDED"
	NotificationFailed    = "FAILED"
)

// NewNotificationEvent wraps note the way the notification channel does.
func NewNotificationEvent(note JobNotification) (NotificationEvent, error) {
	body, err := json.Marshal(note)
	if err != nil {
		return NotificationEvent{}, fmt.Errorf("failed to encode notification: %w", err)
	}
	return NotificationEvent{Records: []NotificationRecord{{Sns: SNSMessage{Message: string(body)}}}}, nil
}

// Notification decodes and validates the first record's message.
func (e NotificationEvent) Notification() (JobNotification, error) {
	var note JobNotification
	if len(e.Records) == 0 {
		return note, fmt.Errorf("%w: no records", ErrInvalidEvent)
	}

	msg := strings.TrimSpace(e.Records[0].Sns.Message)
	if msg == "" {
		return note, fmt.Errorf("%w: empty notification message", ErrInvalidEvent)
	}
	if err := json.Unmarshal([]byte(msg), &note); err != nil {
		return note, fmt.Errorf("%w: notification message is not valid JSON: %v", ErrInvalidEvent, err)
	}

	switch {
	case note.JobID == "":
		return note, fmt.Errorf("%w: missing JobId", ErrInvalidEvent)
	case note.JobTag == "":
		return note, fmt.Errorf("%w: missing JobTag", ErrInvalidEvent)
	case note.Video.S3Bucket == "" || note.Video.S3ObjectName == "":
		return note, fmt.Errorf("%w: missing video reference", ErrInvalidEvent)
	}

	return note, nil
}
