package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/models"
)

const (
	// minEmbeddedText is the shortest text layer trusted over OCR.
	minEmbeddedText = 50
	maxOCRPages     = 10
	faceSampleMs    = 1000
)

var errNoModel = errors.New("no model backend configured")

// textDetectionResult mirrors the line blocks of a document text
// detection result.
type textDetectionResult struct {
	Lines []string `json:"lines"`
}

// transcriptDocument is the stored transcript file.
type transcriptDocument struct {
	JobName string            `json:"jobName"`
	Status  string            `json:"status"`
	Results transcriptResults `json:"results"`
}

type transcriptResults struct {
	Transcripts []transcriptText `json:"transcripts"`
}

type transcriptText struct {
	Transcript string `json:"transcript"`
}

// faceRecord is one entry of a stored face-detection result.
type faceRecord struct {
	Timestamp int64 `json:"Timestamp"`
	Face      struct {
		Emotions []struct {
			Type       string  `json:"Type"`
			Confidence float64 `json:"Confidence"`
		} `json:"Emotions"`
		Smile struct {
			Value      bool    `json:"Value"`
			Confidence float64 `json:"Confidence"`
		} `json:"Smile"`
	} `json:"Face"`
}

type textDetectionExecutor struct {
	storage StorageService
	pdf     PDFParserService
	gemini  GeminiService
	prompts *PromptBuilder
	log     *zap.Logger
}

func NewTextDetectionExecutor(storage StorageService, pdf PDFParserService, gemini GeminiService, log *zap.Logger) JobExecutor {
	return &textDetectionExecutor{
		storage: storage,
		pdf:     pdf,
		gemini:  gemini,
		prompts: NewPromptBuilder(),
		log:     logger.OrNop(log).Named("text_detection"),
	}
}

// Execute reads the PDF text layer, falling back to OCR of rendered pages
// for scanned documents. Images go straight to OCR.
func (e *textDetectionExecutor) Execute(ctx context.Context, job *models.ProcessingJob) (JobOutput, error) {
	path, err := e.storage.GetFilePath(job.Bucket, job.Key)
	if err != nil {
		return JobOutput{}, err
	}

	var lines []string
	switch ext := strings.ToLower(filepath.Ext(job.Key)); ext {
	case ".pdf":
		text, err := e.pdf.ExtractText(path)
		if err != nil {
			e.log.Warn("failed to read PDF text layer", zap.String(logger.FieldKey, job.Key), zap.Error(err))
		}
		if len(strings.TrimSpace(text)) >= minEmbeddedText {
			lines = strings.Split(text, "\n")
			break
		}

		pages, err := e.pdf.RenderPages(path, maxOCRPages)
		if err != nil {
			return JobOutput{}, err
		}
		media := make([]MediaPart, 0, len(pages))
		for _, page := range pages {
			media = append(media, MediaPart{Data: page, MIMEType: "image/png"})
		}
		lines, err = e.ocr(ctx, media)
		if err != nil {
			return JobOutput{}, err
		}
	case ".png", ".jpg", ".jpeg":
		data, err := e.storage.ReadObject(ctx, job.Bucket, job.Key)
		if err != nil {
			return JobOutput{}, err
		}
		lines, err = e.ocr(ctx, []MediaPart{{Data: data, MIMEType: mimeTypeFor(job.Key, "image/png")}})
		if err != nil {
			return JobOutput{}, err
		}
	default:
		return JobOutput{}, fmt.Errorf("unsupported document type %q", ext)
	}

	payload, err := json.Marshal(textDetectionResult{Lines: lines})
	if err != nil {
		return JobOutput{}, fmt.Errorf("failed to encode text detection result: %w", err)
	}
	return JobOutput{Payload: string(payload)}, nil
}

func (e *textDetectionExecutor) ocr(ctx context.Context, media []MediaPart) ([]string, error) {
	if e.gemini == nil {
		return nil, fmt.Errorf("ocr unavailable: %w", errNoModel)
	}
	if len(media) == 0 {
		return []string{}, nil
	}

	resp, err := e.gemini.AnalyzeMedia(ctx, media, e.prompts.BuildOCRPrompt(), true)
	if err != nil {
		return nil, err
	}

	raw := extractJSON(resp)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("ocr response is not valid JSON: %s", logger.TruncateForLog(resp, 100))
	}

	lines := []string{}
	gjson.Get(raw, "lines").ForEach(func(_, line gjson.Result) bool {
		if s := strings.TrimSpace(line.String()); s != "" {
			lines = append(lines, s)
		}
		return true
	})
	return lines, nil
}

type transcriptionExecutor struct {
	storage StorageService
	gemini  GeminiService
	prompts *PromptBuilder
	bucket  string
}

// NewTranscriptionExecutor writes transcripts to bucket and reports their
// URL as the job's result location.
func NewTranscriptionExecutor(storage StorageService, gemini GeminiService, bucket string) JobExecutor {
	return &transcriptionExecutor{
		storage: storage,
		gemini:  gemini,
		prompts: NewPromptBuilder(),
		bucket:  bucket,
	}
}

func (e *transcriptionExecutor) Execute(ctx context.Context, job *models.ProcessingJob) (JobOutput, error) {
	if e.gemini == nil {
		return JobOutput{}, fmt.Errorf("transcription unavailable: %w", errNoModel)
	}

	data, err := e.storage.ReadObject(ctx, job.Bucket, job.Key)
	if err != nil {
		return JobOutput{}, err
	}

	text, err := e.gemini.AnalyzeMedia(ctx, []MediaPart{{Data: data, MIMEType: mimeTypeFor(job.Key, "video/mp4")}}, e.prompts.BuildTranscriptionPrompt(), false)
	if err != nil && !errors.Is(err, ErrEmptyResponse) {
		return JobOutput{}, err
	}

	doc := transcriptDocument{
		JobName: job.Name,
		Status:  "COMPLETED",
		Results: transcriptResults{Transcripts: []transcriptText{{Transcript: strings.TrimSpace(text)}}},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return JobOutput{}, fmt.Errorf("failed to encode transcript: %w", err)
	}

	key := job.Name + ".json"
	if _, err := e.storage.PutObject(ctx, e.bucket, key, bytes.NewReader(body), nil); err != nil {
		return JobOutput{}, err
	}

	return JobOutput{Location: e.storage.ObjectURL(e.bucket, key)}, nil
}

type faceDetectionExecutor struct {
	storage StorageService
	gemini  GeminiService
	prompts *PromptBuilder
}

func NewFaceDetectionExecutor(storage StorageService, gemini GeminiService) JobExecutor {
	return &faceDetectionExecutor{
		storage: storage,
		gemini:  gemini,
		prompts: NewPromptBuilder(),
	}
}

func (e *faceDetectionExecutor) Execute(ctx context.Context, job *models.ProcessingJob) (JobOutput, error) {
	if e.gemini == nil {
		return JobOutput{}, fmt.Errorf("face detection unavailable: %w", errNoModel)
	}

	data, err := e.storage.ReadObject(ctx, job.Bucket, job.Key)
	if err != nil {
		return JobOutput{}, err
	}

	resp, err := e.gemini.AnalyzeMedia(ctx, []MediaPart{{Data: data, MIMEType: mimeTypeFor(job.Key, "video/mp4")}}, e.prompts.BuildFaceDetectionPrompt(faceSampleMs), true)
	if err != nil {
		return JobOutput{}, err
	}

	faces, err := parseFaceRecords(extractJSON(resp))
	if err != nil {
		return JobOutput{}, err
	}

	payload, err := json.Marshal(map[string]any{"Faces": faces})
	if err != nil {
		return JobOutput{}, fmt.Errorf("failed to encode face detection result: %w", err)
	}
	return JobOutput{Payload: string(payload)}, nil
}

// parseFaceRecords accepts either {"Faces": [...]} or a bare array.
func parseFaceRecords(raw string) ([]faceRecord, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("face detection result is not valid JSON: %s", logger.TruncateForLog(raw, 100))
	}

	list := gjson.Parse(raw)
	if !list.IsArray() {
		list = list.Get("Faces")
	}
	if !list.Exists() {
		return []faceRecord{}, nil
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("face detection result has no face list")
	}

	faces := []faceRecord{}
	if err := json.Unmarshal([]byte(list.Raw), &faces); err != nil {
		return nil, fmt.Errorf("failed to decode face detection result: %w", err)
	}
	return faces, nil
}

func mimeTypeFor(key, fallback string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(key))); t != "" {
		return strings.SplitN(t, ";", 2)[0]
	}
	return fallback
}
