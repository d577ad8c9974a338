package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/retry"
)

const maxEmbeddingBytes = 40000

// ErrEmptyResponse is returned when the model answered without any text.
var ErrEmptyResponse = errors.New("no text content in response")

// GeminiService is the model backend behind transcription, face detection,
// OCR, sentiment and embeddings.
type GeminiService interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateText(ctx context.Context, prompt string, temperature float32) (string, error)
	AnalyzeMedia(ctx context.Context, media []MediaPart, prompt string, jsonOutput bool) (string, error)
}

// MediaPart is one inline binary input for a multimodal request.
type MediaPart struct {
	Data     []byte
	MIMEType string
}

type geminiService struct {
	client     *genai.Client
	modelName  string
	embedModel string
	limiter    *rate.Limiter
	log        *zap.Logger
}

func NewGeminiService(ctx context.Context, apiKey, model, embedModel string, requestsPerMinute int, log *zap.Logger) (GeminiService, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-2.5-flash"
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}

	return &geminiService{
		client:     client,
		modelName:  model,
		embedModel: embedModel,
		limiter:    limiter,
		log:        logger.OrNop(log).Named("gemini").With(zap.String("ai_model", model)),
	}, nil
}

// GenerateEmbedding implements GeminiService.
func (g *geminiService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	// Truncate text if too long (max ~10000 tokens for embedding)
	text = truncateUTF8(text, maxEmbeddingBytes)

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, classifyGeminiError(fmt.Errorf("failed to generate embedding: %w", err))
	}

	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	return result.Embeddings[0].Values, nil
}

// GenerateText implements GeminiService.
func (g *geminiService) GenerateText(ctx context.Context, prompt string, temperature float32) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 4096,
	}
	return g.generate(ctx, genai.Text(prompt), config)
}

// AnalyzeMedia implements GeminiService.
func (g *geminiService) AnalyzeMedia(ctx context.Context, media []MediaPart, prompt string, jsonOutput bool) (string, error) {
	parts := make([]*genai.Part, 0, len(media)+1)
	for _, m := range media {
		parts = append(parts, genai.NewPartFromBytes(m.Data, m.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if jsonOutput {
		config.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	return g.generate(ctx, contents, config)
}

func (g *geminiService) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, config)
	if err != nil {
		g.log.Warn("gemini request failed", zap.Error(err))
		return "", classifyGeminiError(fmt.Errorf("failed to generate content: %w", err))
	}

	if resp == nil {
		return "", fmt.Errorf("no response generated (nil response)")
	}

	text := resp.Text()
	g.log.Debug("gemini response received",
		zap.Duration("latency", time.Since(start)),
		zap.String("response", logger.TruncateForLog(text, 200)),
	)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

// classifyGeminiError marks throttling and server-side failures transient.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && retry.IsRetryableStatus(apiErr.Code) {
		return retry.Transient(err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && retry.IsRetryableStatus(apiErrPtr.Code) {
		return retry.Transient(err)
	}
	return err
}

// extractJSON strips markdown fences and surrounding prose from a model
// response, returning the outermost JSON object or array.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	startObj := strings.Index(text, "{")
	startArr := strings.Index(text, "[")
	endObj := strings.LastIndex(text, "}")
	endArr := strings.LastIndex(text, "]")

	if startArr != -1 && endArr > startArr && (startObj == -1 || startArr < startObj) {
		return text[startArr : endArr+1]
	}
	if startObj != -1 && endObj > startObj {
		return text[startObj : endObj+1]
	}

	return strings.TrimSpace(text)
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
