package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/service"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// ModelLister 列出对话模型
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// VoiceLister 列出本地语音
type VoiceLister interface {
	Voices(ctx context.Context) ([]service.Voice, error)
}

// CatalogHandler 模型与语音目录
type CatalogHandler struct {
	models ModelLister
	voices VoiceLister
	logger *zap.Logger
}

// NewCatalogHandler 创建目录处理器
func NewCatalogHandler(models ModelLister, voices VoiceLister, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{models: models, voices: voices, logger: logger}
}

// Models GET /api/v1/models
// An unreachable engine yields an empty list, not an error.
func (h *CatalogHandler) Models(c *gin.Context) {
	models, err := h.models.ListModels(c.Request.Context())
	if err != nil {
		h.logger.Warn("Failed to list models", zap.Error(err))
		models = nil
	}
	if models == nil {
		models = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// Voices GET /api/v1/voices
func (h *CatalogHandler) Voices(c *gin.Context) {
	voices, err := h.voices.Voices(c.Request.Context())
	if err != nil {
		if domainErrors.CodeOf(err) == domainErrors.CodeInternal {
			err = domainErrors.NewServiceUnavailableError("voice list is unavailable", err)
		}
		respondError(c, h.logger, err)
		return
	}
	if voices == nil {
		voices = []service.Voice{}
	}
	c.JSON(http.StatusOK, gin.H{"voices": voices})
}
