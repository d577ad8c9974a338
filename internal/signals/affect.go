package signals

import "strings"

type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentMixed    Sentiment = "MIXED"
	SentimentUnknown  Sentiment = ""
)

// ParseSentiment maps a classifier label onto the closed enumeration.
// Anything unrecognised becomes SentimentUnknown.
func ParseSentiment(label string) Sentiment {
	switch Sentiment(strings.ToUpper(strings.TrimSpace(label))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	case SentimentNeutral:
		return SentimentNeutral
	case SentimentMixed:
		return SentimentMixed
	default:
		return SentimentUnknown
	}
}

type Emotion struct {
	Type       string  `json:"Type"`
	Confidence float64 `json:"Confidence"`
}

type Smile struct {
	Value      bool    `json:"Value"`
	Confidence float64 `json:"Confidence"`
}

// FaceDetection is one detected face in one video frame.
type FaceDetection struct {
	Timestamp int64     `json:"Timestamp"`
	Emotions  []Emotion `json:"Emotions"`
	Smile     Smile     `json:"Smile"`
}

// Affect is the reduced, single-label view of a face-detection result.
type Affect struct {
	DominantEmotion   string  `json:"dominant_emotion,omitempty"`
	EmotionConfidence float64 `json:"emotion_confidence"`
	SmileDetected     bool    `json:"smile_detected"`
}

// ReduceAffect picks the highest-confidence emotion across all frames.
// On equal confidence the earliest occurrence wins. A smile counts as
// detected when any frame reports one.
func ReduceAffect(faces []FaceDetection) Affect {
	var affect Affect
	found := false

	for _, face := range faces {
		if face.Smile.Value {
			affect.SmileDetected = true
		}
		for _, emotion := range face.Emotions {
			if emotion.Type == "" {
				continue
			}
			if !found || emotion.Confidence > affect.EmotionConfidence {
				affect.DominantEmotion = strings.ToUpper(emotion.Type)
				affect.EmotionConfidence = emotion.Confidence
				found = true
			}
		}
	}

	return affect
}
