package models

import (
	"time"
)

type SourceKind string

const (
	SourceResume SourceKind = "resume"
	SourceVideo  SourceKind = "video"
)

// Names used in AnalysisResult.Degraded for signals whose source failed.
const (
	DegradedText          = "text"
	DegradedTranscript    = "transcript"
	DegradedFaceDetection = "face_detection"
	DegradedSentiment     = "sentiment"
)

// AnalysisResult is the persisted outcome of one analysis. It is written
// whole by upsert on ID and never updated field by field.
type AnalysisResult struct {
	ID                  string     `gorm:"type:text;primaryKey" json:"id"`
	Source              SourceKind `gorm:"type:text;not null;index" json:"source"`
	Bucket              string     `gorm:"type:text;not null" json:"bucket"`
	FileKey             string     `gorm:"type:text;not null" json:"file"`
	Score               int        `gorm:"not null" json:"score"`
	Skills              []string   `gorm:"type:jsonb;serializer:json" json:"skills"`
	ProjectDetected     bool       `json:"project_detected"`
	InternshipDetected  bool       `json:"internship_detected"`
	InternshipType      string     `gorm:"type:text" json:"internship_type,omitempty"`
	CertificationsCount int        `json:"certifications_count"`
	LowConfidence       bool       `json:"low_confidence"`
	DominantEmotion     string     `gorm:"type:text" json:"dominant_emotion,omitempty"`
	EmotionConfidence   float64    `json:"emotion_confidence,omitempty"`
	SmileDetected       bool       `json:"smile_detected"`
	Sentiment           string     `gorm:"type:text" json:"sentiment,omitempty"`
	Degraded            []string   `gorm:"type:jsonb;serializer:json" json:"degraded,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (AnalysisResult) TableName() string {
	return "analysis_results"
}
