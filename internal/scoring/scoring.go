// Package scoring turns extracted signals into a bounded suitability score.
package scoring

import (
	"alfredoptarigan/candidate-screener/internal/signals"
)

const (
	BaseScore = 10
	MaxScore  = 100
	MinScore  = 0

	PointsPerSkill         = 3
	ProjectPoints          = 10
	InternshipPoints       = 10
	PointsPerCertification = 5

	MaxAffectBonus = 5
	SmileBonus     = 3
	PositiveAffect = 2

	// PositiveAffectConfidence is the minimum confidence for a dominant
	// emotion to count as positive affect.
	PositiveAffectConfidence = 50.0
)

var sentimentAdjustment = map[signals.Sentiment]int{
	signals.SentimentPositive: 5,
	signals.SentimentNeutral:  0,
	signals.SentimentMixed:    -2,
	signals.SentimentNegative: -5,
}

var positiveEmotions = map[string]struct{}{
	"HAPPY": {},
	"CALM":  {},
}

// TextScore scores a text signal set. The result is capped at MaxScore and
// is never below BaseScore.
func TextScore(set signals.Set) int {
	score := BaseScore +
		PointsPerSkill*len(set.Skills) +
		PointsPerCertification*set.CertificationCount

	if set.ProjectDetected {
		score += ProjectPoints
	}
	if set.InternshipDetected {
		score += InternshipPoints
	}

	if score > MaxScore {
		return MaxScore
	}
	return score
}

// SentimentAdjustment is the additive adjustment for a sentiment label.
// Unknown or missing labels adjust by zero.
func SentimentAdjustment(s signals.Sentiment) int {
	return sentimentAdjustment[s]
}

// AffectBonus rewards a detected smile and a confident positive dominant
// emotion, capped at MaxAffectBonus.
func AffectBonus(a signals.Affect) int {
	bonus := 0
	if a.SmileDetected {
		bonus += SmileBonus
	}
	if _, ok := positiveEmotions[a.DominantEmotion]; ok && a.EmotionConfidence >= PositiveAffectConfidence {
		bonus += PositiveAffect
	}

	if bonus > MaxAffectBonus {
		return MaxAffectBonus
	}
	return bonus
}

// VideoScore combines the transcript's text score with sentiment and affect.
// The result always lies in [MinScore, MaxScore].
func VideoScore(transcript signals.Set, sentiment signals.Sentiment, affect signals.Affect) int {
	score := TextScore(transcript) + SentimentAdjustment(sentiment) + AffectBonus(affect)
	return clamp(score, MinScore, MaxScore)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
