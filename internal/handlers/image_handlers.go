package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/khangpv/imgprep/internal/config"
	"github.com/khangpv/imgprep/internal/models"
	"github.com/khangpv/imgprep/internal/service"
	"go.uber.org/zap"
)

const imageParamKey = "image"

type ImageHandler struct {
	processor *service.ImageProcessor
	storage   *service.StorageService
	queue     *service.QueueService
	logger    *zap.Logger
	config    *config.Config
}

func NewImageHandler(
	processor *service.ImageProcessor,
	storage *service.StorageService,
	queue *service.QueueService,
	logger *zap.Logger,
	config *config.Config,
) *ImageHandler {
	return &ImageHandler{
		processor: processor,
		storage:   storage,
		queue:     queue,
		logger:    logger,
		config:    config,
	}
}

// ResizeImage accepts a multipart upload and responds with the bounded JPEG.
// When object storage is configured the rendition is uploaded and the
// response carries its URL instead of the raw bytes.
func (h *ImageHandler) ResizeImage(c *gin.Context) {
	file, header, err := c.Request.FormFile(imageParamKey)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	maxDim, err := h.parseMaxDimension(c.PostForm("max_dimension"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.config.Processing.MaxFileSize+1))
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, "Failed to read upload")
		return
	}
	if err := h.processor.ValidateImage(data, h.config.Processing.MaxFileSize); err != nil {
		h.respondError(c, http.StatusBadRequest, fmt.Sprintf("Invalid image: %v", err))
		return
	}

	cacheKey := service.CacheKey(data, maxDim)
	if cached, err := h.storage.GetFromCache(c.Request.Context(), cacheKey); err == nil && cached != nil {
		h.logger.Info("Cache hit", zap.String("cache_key", cacheKey))
		c.Data(http.StatusOK, "image/jpeg", cached)
		return
	}

	buffer, width, height, err := h.processor.ProcessBytes(data, maxDim)
	if err != nil {
		h.logger.Error("Processing failed", zap.Error(err))
		h.respondError(c, http.StatusBadRequest, fmt.Sprintf("Failed to process image: %v", err))
		return
	}

	if err := h.storage.SetCache(c.Request.Context(), cacheKey, buffer.Bytes()); err != nil {
		h.logger.Warn("Failed to cache rendition", zap.Error(err))
	}

	url, err := h.storage.Upload(c.Request.Context(), buffer, header.Filename)
	if err != nil {
		// No bucket configured (or upload failed): serve the bytes directly.
		c.Data(http.StatusOK, "image/jpeg", buffer.Bytes())
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: models.ProcessedImage{
			ID:           uuid.New().String(),
			OriginalName: header.Filename,
			URL:          url,
			Width:        width,
			Height:       height,
			FileSize:     int64(buffer.Len()),
			ProcessedAt:  time.Now(),
		},
	})
}

// EnqueueJob publishes an async processing job referencing a path or URL.
func (h *ImageHandler) EnqueueJob(c *gin.Context) {
	if h.queue == nil {
		h.respondError(c, http.StatusServiceUnavailable, "Queue service not available")
		return
	}

	var req struct {
		Source  string              `json:"source" binding:"required"`
		Outputs []models.OutputSpec `json:"outputs" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid job request: "+err.Error())
		return
	}

	for _, out := range req.Outputs {
		if out.Path == "" {
			h.respondError(c, http.StatusBadRequest, "Every output requires a path")
			return
		}
		if out.Height < 0 {
			h.respondError(c, http.StatusBadRequest, "Output height must be a positive integer")
			return
		}
	}

	job := &models.ProcessingJob{
		ID:        uuid.New().String(),
		Source:    req.Source,
		Outputs:   req.Outputs,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}

	if err := h.queue.PublishJob(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to publish job", zap.Error(err))
		h.respondError(c, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	c.JSON(http.StatusAccepted, models.APIResponse{
		Success: true,
		Data:    job,
	})
}

// HealthCheck reports the status of every attached backend.
func (h *ImageHandler) HealthCheck(c *gin.Context) {
	services := h.storage.HealthCheck(c.Request.Context())
	if h.queue != nil {
		services["rabbitmq"] = h.queue.HealthCheck()
		if stats, err := h.queue.GetQueueStats(); err == nil {
			services["rabbitmq_queue"] = fmt.Sprintf("%v messages, %v consumers", stats["messages"], stats["consumers"])
		}
	} else {
		services["rabbitmq"] = "not configured"
	}

	overall := h.calculateOverallHealth(services)
	statusCode := http.StatusOK
	if overall == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, models.APIResponse{
		Success: overall == "healthy",
		Data: models.HealthCheck{
			Status:    overall,
			Timestamp: time.Now(),
			Services:  services,
		},
	})
}

func (h *ImageHandler) parseMaxDimension(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	num, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid max_dimension: must be a number")
	}
	if num < 0 {
		return 0, fmt.Errorf("max_dimension must be a positive integer")
	}
	return num, nil
}

func (h *ImageHandler) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, models.APIResponse{
		Success: false,
		Error:   message,
	})
}

func (h *ImageHandler) calculateOverallHealth(services map[string]string) string {
	for _, status := range services {
		if status != "healthy" && status != "not configured" {
			return "unhealthy"
		}
	}
	return "healthy"
}
