package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/application/usecase"
	"github.com/niceassistant/assistant/internal/domain/entity"
)

// SettingsHandler 用户设置处理器
type SettingsHandler struct {
	settings *usecase.SettingsUseCase
	logger   *zap.Logger
}

// NewSettingsHandler 创建设置处理器
func NewSettingsHandler(settings *usecase.SettingsUseCase, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

// SettingsRequest 更新设置请求. preferences 合并进已有偏好
type SettingsRequest struct {
	TTSProvider   *string        `json:"ttsProvider"`
	STTProvider   *string        `json:"sttProvider"`
	ImageProvider *string        `json:"imageProvider"`
	VideoProvider *string        `json:"videoProvider"`
	OpenAIAPIKey  *string        `json:"openaiApiKey"`
	Preferences   map[string]any `json:"preferences"`
}

// SettingsView 设置视图, 不回显密钥
type SettingsView struct {
	TTSProvider     string         `json:"ttsProvider"`
	STTProvider     string         `json:"sttProvider"`
	ImageProvider   string         `json:"imageProvider"`
	VideoProvider   string         `json:"videoProvider"`
	OpenAIKeyStored bool           `json:"openaiKeyStored"`
	Preferences     map[string]any `json:"preferences"`
	UpdatedAt       time.Time      `json:"updatedAt,omitempty"`
}

// Get GET /api/v1/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context(), UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toSettingsView(s))
}

// Update PUT /api/v1/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s, err := h.settings.Update(c.Request.Context(), UserID(c), usecase.SettingsUpdate{
		TTSProvider:   req.TTSProvider,
		STTProvider:   req.STTProvider,
		ImageProvider: req.ImageProvider,
		VideoProvider: req.VideoProvider,
		OpenAIAPIKey:  req.OpenAIAPIKey,
		Preferences:   req.Preferences,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toSettingsView(s))
}

func toSettingsView(s *entity.Settings) SettingsView {
	prefs := s.Preferences
	if prefs == nil {
		prefs = map[string]any{}
	}
	return SettingsView{
		TTSProvider:     s.TTSProvider,
		STTProvider:     s.STTProvider,
		ImageProvider:   s.ImageProvider,
		VideoProvider:   s.VideoProvider,
		OpenAIKeyStored: s.OpenAIAPIKey != "",
		Preferences:     prefs,
		UpdatedAt:       s.UpdatedAt,
	}
}
