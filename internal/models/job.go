package models

import (
	"time"

	"github.com/google/uuid"
)

type JobKind string

const (
	JobKindTextDetection JobKind = "text_detection"
	JobKindTranscription JobKind = "transcription"
	JobKindFaceDetection JobKind = "face_detection"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further progress will happen for the job.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// ProcessingJob is one asynchronous media job run by the job runner.
type ProcessingJob struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Kind           JobKind   `gorm:"type:text;not null;index" json:"kind"`
	Name           string    `gorm:"type:text;uniqueIndex" json:"name"`
	Bucket         string    `gorm:"type:text;not null" json:"bucket"`
	Key            string    `gorm:"type:text;not null" json:"key"`
	Tag            string    `gorm:"type:text;index" json:"tag,omitempty"`
	Status         JobStatus `gorm:"not null;default:'queued';index" json:"status"`
	ResultLocation string    `gorm:"type:text" json:"result_location,omitempty"`
	Result         string    `gorm:"type:text" json:"-"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message,omitempty"`
	Attempts       int       `gorm:"not null;default:0" json:"attempts"`

	// NotBefore delays a requeued job until its retry backoff has passed.
	NotBefore time.Time `gorm:"index" json:"-"`

	// Notified is set once the completion of a tagged job was published.
	Notified bool `gorm:"not null;default:false" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NeedsNotification reports whether finishing the job must be announced
// on the notification bus.
func (j ProcessingJob) NeedsNotification() bool {
	return j.Kind == JobKindFaceDetection && j.Tag != ""
}

func (ProcessingJob) TableName() string {
	return "processing_jobs"
}
