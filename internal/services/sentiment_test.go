package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/candidate-screener/internal/signals"
)

type fakeGemini struct {
	mu        sync.Mutex
	texts     []string
	textErr   error
	media     string
	mediaErr  error
	prompts   []string
	mediaSeen []MediaPart
}

func (f *fakeGemini) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeGemini) GenerateText(_ context.Context, prompt string, _ float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.textErr != nil {
		return "", f.textErr
	}
	if len(f.texts) == 0 {
		return "NEUTRAL", nil
	}
	next := f.texts[0]
	if len(f.texts) > 1 {
		f.texts = f.texts[1:]
	}
	return next, nil
}

func (f *fakeGemini) AnalyzeMedia(_ context.Context, media []MediaPart, prompt string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.mediaSeen = append(f.mediaSeen, media...)
	return f.media, f.mediaErr
}

func TestReduceSentiments(t *testing.T) {
	P, N, U, M := signals.SentimentPositive, signals.SentimentNegative, signals.SentimentNeutral, signals.SentimentMixed

	tests := []struct {
		name   string
		labels []signals.Sentiment
		want   signals.Sentiment
	}{
		{name: "none", want: U},
		{name: "all positive", labels: []signals.Sentiment{P, P}, want: P},
		{name: "all mixed", labels: []signals.Sentiment{M, M}, want: M},
		{name: "positive and negative", labels: []signals.Sentiment{P, U, N}, want: M},
		{name: "positive over neutral", labels: []signals.Sentiment{U, U, P}, want: P},
		{name: "mixed and negative", labels: []signals.Sentiment{N, M, M}, want: M},
		{name: "tie keeps earliest", labels: []signals.Sentiment{N, M}, want: N},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReduceSentiments(tt.labels))
		})
	}
}

func TestClassifySentimentSingleChunk(t *testing.T) {
	gemini := &fakeGemini{texts: []string{"Positive."}}
	c := NewSentimentClassifier(gemini, nil, 100, nil)

	got, err := c.ClassifySentiment(context.Background(), "I loved building this project.")
	require.NoError(t, err)
	assert.Equal(t, signals.SentimentPositive, got)
	require.Len(t, gemini.prompts, 1)
	assert.Contains(t, gemini.prompts[0], "I loved building this project.")
}

func TestClassifySentimentChunksLongText(t *testing.T) {
	gemini := &fakeGemini{texts: []string{"POSITIVE", "NEGATIVE", "NEUTRAL"}}
	c := NewSentimentClassifier(gemini, nil, 40, nil)

	text := strings.Repeat("This sentence is about twenty. ", 6)
	got, err := c.ClassifySentiment(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, signals.SentimentMixed, got)
	assert.Greater(t, len(gemini.prompts), 1)
}

func TestClassifySentimentEmptyText(t *testing.T) {
	gemini := &fakeGemini{}
	c := NewSentimentClassifier(gemini, nil, 100, nil)

	got, err := c.ClassifySentiment(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, signals.SentimentNeutral, got)
	assert.Empty(t, gemini.prompts)
}

func TestClassifySentimentErrors(t *testing.T) {
	boom := errors.New("boom")
	c := NewSentimentClassifier(&fakeGemini{textErr: boom}, nil, 100, nil)
	got, err := c.ClassifySentiment(context.Background(), "hello")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, signals.SentimentUnknown, got)

	c = NewSentimentClassifier(&fakeGemini{texts: []string{"ecstatic"}}, nil, 100, nil)
	_, err = c.ClassifySentiment(context.Background(), "hello")
	require.Error(t, err)
}
