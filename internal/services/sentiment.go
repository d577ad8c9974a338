package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/pipeline"
	"alfredoptarigan/candidate-screener/internal/signals"
)

type sentimentClassifier struct {
	gemini    GeminiService
	chunker   TextChunker
	prompts   *PromptBuilder
	chunkSize int
	log       *zap.Logger
}

// NewSentimentClassifier classifies text chunk by chunk, chunkSize runes at
// a time, and reduces the per-chunk labels to one.
func NewSentimentClassifier(gemini GeminiService, chunker TextChunker, chunkSize int, log *zap.Logger) pipeline.SentimentClassifier {
	if chunker == nil {
		chunker = NewTextChunker()
	}
	return &sentimentClassifier{
		gemini:    gemini,
		chunker:   chunker,
		prompts:   NewPromptBuilder(),
		chunkSize: chunkSize,
		log:       logger.OrNop(log).Named("sentiment"),
	}
}

func (c *sentimentClassifier) ClassifySentiment(ctx context.Context, text string) (signals.Sentiment, error) {
	chunks := c.chunker.ChunkText(text, c.chunkSize)
	if len(chunks) == 0 {
		return signals.SentimentNeutral, nil
	}

	if c.gemini == nil {
		return signals.SentimentUnknown, fmt.Errorf("sentiment unavailable: %w", errNoModel)
	}

	labels := make([]signals.Sentiment, 0, len(chunks))
	for i, chunk := range chunks {
		resp, err := c.gemini.GenerateText(ctx, c.prompts.BuildSentimentPrompt(chunk), 0)
		if err != nil {
			return signals.SentimentUnknown, fmt.Errorf("failed to classify chunk %d/%d: %w", i+1, len(chunks), err)
		}

		label := parseSentimentResponse(resp)
		if label == signals.SentimentUnknown {
			return signals.SentimentUnknown, fmt.Errorf("unrecognised sentiment label %q", logger.TruncateForLog(resp, 50))
		}
		labels = append(labels, label)
	}

	result := ReduceSentiments(labels)
	c.log.Debug("sentiment classified", zap.Int("chunks", len(chunks)), zap.String("sentiment", string(result)))
	return result, nil
}

// parseSentimentResponse takes the first word of a model answer.
func parseSentimentResponse(resp string) signals.Sentiment {
	fields := strings.FieldsFunc(resp, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) == 0 {
		return signals.SentimentUnknown
	}
	return signals.ParseSentiment(fields[0])
}

// ReduceSentiments folds per-chunk labels into one. Identical labels keep
// that label; POSITIVE together with NEGATIVE is MIXED; otherwise the most
// frequent non-neutral label wins, earliest first on ties, and NEUTRAL when
// there is none.
func ReduceSentiments(labels []signals.Sentiment) signals.Sentiment {
	if len(labels) == 0 {
		return signals.SentimentNeutral
	}

	counts := make(map[signals.Sentiment]int, 4)
	order := make([]signals.Sentiment, 0, 4)
	for _, l := range labels {
		if _, ok := counts[l]; !ok {
			order = append(order, l)
		}
		counts[l]++
	}

	if len(order) == 1 {
		return order[0]
	}
	if counts[signals.SentimentPositive] > 0 && counts[signals.SentimentNegative] > 0 {
		return signals.SentimentMixed
	}

	best, bestCount := signals.SentimentNeutral, 0
	for _, l := range order {
		if l == signals.SentimentNeutral {
			continue
		}
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best
}
