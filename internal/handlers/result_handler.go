package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/repositories"
	"alfredoptarigan/candidate-screener/internal/services"
)

type ResultHandler struct {
	analysisRepo repositories.AnalysisRepository
	index        services.CandidateIndex
	storage      services.StorageService
	log          *zap.Logger
}

// NewResultHandler serves stored analyses. index may be nil when no
// vector index is configured.
func NewResultHandler(analysisRepo repositories.AnalysisRepository, index services.CandidateIndex, storage services.StorageService, log *zap.Logger) *ResultHandler {
	return &ResultHandler{
		analysisRepo: analysisRepo,
		index:        index,
		storage:      storage,
		log:          logger.OrNop(log).Named("results"),
	}
}

// HandleGetResult handles GET /results/:id
func (h *ResultHandler) HandleGetResult(c *fiber.Ctx) error {
	result, ok, err := h.find(c)
	if !ok {
		return err
	}

	return c.JSON(models.ResultResponse{
		ID:     result.ID,
		Source: string(result.Source),
		Result: result,
	})
}

// HandleGetSimilar handles GET /results/:id/similar
func (h *ResultHandler) HandleGetSimilar(c *fiber.Ctx) error {
	if h.index == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Similarity search is not configured",
		})
	}

	result, ok, err := h.find(c)
	if !ok {
		return err
	}

	limit := c.QueryInt("limit", 5)
	if limit <= 0 || limit > 50 {
		return badRequest(c, "limit must be between 1 and 50")
	}

	candidates, err := h.index.SimilarTo(c.UserContext(), result.ID, limit)
	if err != nil {
		h.log.Error("similarity search failed", zap.String(logger.FieldAnalysisID, result.ID), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Similarity search failed",
		})
	}

	// Drop index entries whose analysis no longer exists.
	ids := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		ids = append(ids, cand.ID)
	}
	stored, err := h.analysisRepo.FindByIDs(c.UserContext(), ids)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load similar candidates",
		})
	}
	known := make(map[string]struct{}, len(stored))
	for _, r := range stored {
		known[r.ID] = struct{}{}
	}

	resp := models.SimilarResponse{ID: result.ID, Candidates: make([]models.SimilarCandidate, 0, len(candidates))}
	for _, cand := range candidates {
		if _, ok := known[cand.ID]; ok {
			resp.Candidates = append(resp.Candidates, cand)
		}
	}
	return c.JSON(resp)
}

// HandleDeleteResult handles DELETE /results/:id. It removes the uploaded
// object, the similarity entry and the stored analysis, in that order, so
// a failed request can be repeated.
func (h *ResultHandler) HandleDeleteResult(c *fiber.Ctx) error {
	result, ok, err := h.find(c)
	if !ok {
		return err
	}
	ctx := c.UserContext()
	log := logger.ForObject(h.log, result.ID, result.Bucket, result.FileKey)

	if err := h.storage.DeleteObject(ctx, result.Bucket, result.FileKey); err != nil && !errors.Is(err, services.ErrObjectNotFound) {
		log.Error("failed to delete uploaded object", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete uploaded file",
		})
	}

	// Stale index entries are filtered out by the similar endpoint.
	if h.index != nil {
		if err := h.index.DeleteCandidate(ctx, result.ID); err != nil {
			log.Warn("failed to delete similarity entry", zap.Error(err))
		}
	}

	if err := h.analysisRepo.Delete(ctx, result.ID); err != nil && !errors.Is(err, repositories.ErrResultNotFound) {
		log.Error("failed to delete analysis", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete analysis",
		})
	}

	log.Info("analysis deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ResultHandler) find(c *fiber.Ctx) (*models.AnalysisResult, bool, error) {
	id := c.Params("id")
	if id == "" {
		return nil, false, badRequest(c, "Invalid analysis ID")
	}

	result, err := h.analysisRepo.FindByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrResultNotFound) {
			return nil, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Analysis not found",
			})
		}
		h.log.Error("failed to load analysis", zap.String(logger.FieldAnalysisID, id), zap.Error(err))
		return nil, false, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load analysis",
		})
	}
	return result, true, nil
}
