package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/pipeline"
)

const embeddingSize = 768

// CandidateIndex stores one embedding per analysis and answers
// nearest-candidate queries.
type CandidateIndex interface {
	InitCollection(ctx context.Context) error
	UpsertCandidate(ctx context.Context, result *models.AnalysisResult, embedding []float32) error
	SimilarTo(ctx context.Context, analysisID string, limit int) ([]models.SimilarCandidate, error)
	DeleteCandidate(ctx context.Context, analysisID string) error
}

type qdrantIndex struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
	log            *zap.Logger
}

func NewQdrantIndex(urlStr, apiKey, collectionName string, log *zap.Logger) (CandidateIndex, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	// gRPC port
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   parsed.Hostname(),
		Port:   port,
		APIKey: apiKey,
		UseTLS: parsed.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &qdrantIndex{
		client:         client,
		collectionName: collectionName,
		vectorSize:     embeddingSize,
		log:            logger.OrNop(log).Named("qdrant"),
	}, nil
}

// pointID maps an analysis id onto a stable point id so re-indexing the
// same analysis replaces its point.
func pointID(analysisID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(analysisID)).String())
}

// InitCollection implements CandidateIndex.
func (q *qdrantIndex) InitCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		q.log.Debug("collection already exists", zap.String("collection", q.collectionName))
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	q.log.Info("collection created", zap.String("collection", q.collectionName))
	return nil
}

// UpsertCandidate implements CandidateIndex.
func (q *qdrantIndex) UpsertCandidate(ctx context.Context, result *models.AnalysisResult, embedding []float32) error {
	point := &qdrant.PointStruct{
		Id:      pointID(result.ID),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			"analysis_id": result.ID,
			"source":      string(result.Source),
			"file":        result.FileKey,
			"score":       int64(result.Score),
			"skills":      strings.Join(result.Skills, ","),
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

// SimilarTo implements CandidateIndex. The queried analysis itself is
// never part of the answer.
func (q *qdrantIndex) SimilarTo(ctx context.Context, analysisID string, limit int) ([]models.SimilarCandidate, error) {
	if limit <= 0 {
		limit = 5
	}

	id := pointID(analysisID)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQueryID(id),
		Filter: &qdrant.Filter{
			MustNot: []*qdrant.Condition{qdrant.NewHasID(id)},
		},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	candidates := make([]models.SimilarCandidate, 0, len(points))
	for _, point := range points {
		payload := point.GetPayload()
		candidates = append(candidates, models.SimilarCandidate{
			ID:    payload["analysis_id"].GetStringValue(),
			Score: point.GetScore(),
			Kind:  payload["source"].GetStringValue(),
			File:  payload["file"].GetStringValue(),
		})
	}
	return candidates, nil
}

// DeleteCandidate implements CandidateIndex.
func (q *qdrantIndex) DeleteCandidate(ctx context.Context, analysisID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points:         qdrant.NewPointsSelector(pointID(analysisID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}

type candidateIndexer struct {
	gemini GeminiService
	index  CandidateIndex
}

// NewCandidateIndexer embeds analysed text and stores it in index.
func NewCandidateIndexer(gemini GeminiService, index CandidateIndex) pipeline.Indexer {
	return &candidateIndexer{gemini: gemini, index: index}
}

func (i *candidateIndexer) IndexResult(ctx context.Context, result *models.AnalysisResult, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = strings.Join(result.Skills, " ")
	}
	if text == "" {
		return nil
	}

	embedding, err := i.gemini.GenerateEmbedding(ctx, text)
	if err != nil {
		return err
	}
	return i.index.UpsertCandidate(ctx, result, embedding)
}
