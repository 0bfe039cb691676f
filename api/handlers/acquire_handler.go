package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/music-miko/t/internal/app"
	"github.com/music-miko/t/internal/domain"
)

// Pipeline is the acquisition surface the handlers serve
type Pipeline interface {
	Acquire(ctx context.Context, link string, variant domain.Variant) (*domain.AcquisitionResult, error)
	Resolve(link string, variant domain.Variant) domain.Resolution
	Stats() *app.Stats
}

// AcquireHandler handles acquisition and resolution requests
type AcquireHandler struct {
	pipeline Pipeline
	logger   *zap.Logger
}

// NewAcquireHandler creates a new acquire handler
func NewAcquireHandler(pipeline Pipeline, logger *zap.Logger) *AcquireHandler {
	return &AcquireHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// AcquireRequest represents a request for a local media file
type AcquireRequest struct {
	Link    string `json:"link" binding:"required"`
	Variant string `json:"variant,omitempty"`
	Video   bool   `json:"video,omitempty"`
}

func (r AcquireRequest) variant() (domain.Variant, error) {
	if r.Video {
		return domain.VariantVideo, nil
	}
	return domain.ParseVariant(r.Variant)
}

// Acquire handles POST /api/v1/acquire. Failure details stay in logs and
// statistics; callers only learn that the acquisition failed.
func (h *AcquireHandler) Acquire(c *gin.Context) {
	var req AcquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	variant, err := req.variant()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.pipeline.Acquire(c.Request.Context(), req.Link, variant)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, domain.ErrUnsafeReference):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrTimeout):
			status = http.StatusGatewayTimeout
		}

		h.logger.Warn("Acquisition request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))

		body := gin.H{"error": "acquisition failed"}
		if result != nil {
			body["key"] = result.Key
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Resolve handles GET /api/v1/resolve?link=&variant=
func (h *AcquireHandler) Resolve(c *gin.Context) {
	link := c.Query("link")
	if link == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "link is required"})
		return
	}

	variant, err := domain.ParseVariant(c.Query("variant"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.pipeline.Resolve(link, variant))
}

// GetStats handles GET /api/v1/stats
func (h *AcquireHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Stats().Snapshot())
}

// ResetStats handles POST /api/v1/stats/reset
func (h *AcquireHandler) ResetStats(c *gin.Context) {
	h.pipeline.Stats().Reset()
	h.logger.Info("Statistics reset", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
