package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/pipeline"
	"alfredoptarigan/candidate-screener/internal/services"
)

var uploadKinds = map[string]models.SourceKind{
	".pdf":  models.SourceResume,
	".png":  models.SourceResume,
	".jpg":  models.SourceResume,
	".jpeg": models.SourceResume,
	".mp4":  models.SourceVideo,
	".mov":  models.SourceVideo,
	".webm": models.SourceVideo,
}

type UploadHandler struct {
	storageService services.StorageService
	dispatcher     Dispatcher
	resumeBucket   string
	videoBucket    string
	maxFileSize    int64
	log            *zap.Logger
}

func NewUploadHandler(
	storageService services.StorageService,
	dispatcher Dispatcher,
	resumeBucket, videoBucket string,
	maxFileSize int64,
	log *zap.Logger,
) *UploadHandler {
	return &UploadHandler{
		storageService: storageService,
		dispatcher:     dispatcher,
		resumeBucket:   resumeBucket,
		videoBucket:    videoBucket,
		maxFileSize:    maxFileSize,
		log:            logger.OrNop(log).Named("upload"),
	}
}

// HandleUpload handles POST /upload. The file lands in the resume or video
// bucket by extension and the matching pipeline starts in the background.
// An optional resume_id form value is stored as object metadata.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file uploaded. Please upload a resume or video as 'file'.")
	}

	if file.Size > h.maxFileSize {
		return badRequest(c, fmt.Sprintf("File too large. Max size: %d bytes", h.maxFileSize))
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	kind, ok := uploadKinds[ext]
	if !ok {
		return badRequest(c, fmt.Sprintf("Unsupported file type %q", ext))
	}

	bucket := h.resumeBucket
	if kind == models.SourceVideo {
		bucket = h.videoBucket
	}

	var metadata map[string]string
	if id := strings.TrimSpace(c.FormValue("resume_id")); id != "" {
		metadata = map[string]string{pipeline.MetadataKeyResumeID: id}
	}

	key, err := h.storageService.SaveFile(file, bucket, metadata)
	if err != nil {
		h.log.Error("failed to save upload", zap.String(logger.FieldBucket, bucket), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("failed to save file: %v", err),
		})
	}

	h.log.Info("upload stored", zap.String(logger.FieldBucket, bucket), zap.String(logger.FieldKey, key), zap.String("kind", string(kind)))
	h.dispatcher.Dispatch(kind, pipeline.NewUploadEvent(bucket, key))

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "File uploaded successfully",
		"object": models.UploadResponse{
			Bucket: bucket,
			Key:    key,
			Size:   file.Size,
			Kind:   string(kind),
		},
	})
}
