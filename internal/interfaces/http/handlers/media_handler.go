package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/application/usecase"
)

// maxUploadSize caps speech recordings accepted by /stt.
const maxUploadSize = 25 << 20

// MediaHandler 媒体生成与语音处理器
type MediaHandler struct {
	media  *usecase.GenerateMediaUseCase
	voice  *usecase.VoiceUseCase
	logger *zap.Logger
}

// NewMediaHandler 创建媒体处理器
func NewMediaHandler(media *usecase.GenerateMediaUseCase, voice *usecase.VoiceUseCase, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{
		media:  media,
		voice:  voice,
		logger: logger,
	}
}

// MediaRequest 图片/视频生成请求
type MediaRequest struct {
	ChatID    string `json:"chatId"`
	Prompt    string `json:"prompt" binding:"required"`
	PersonaID string `json:"personaId"`
	FromOffer bool   `json:"fromOffer"`
}

// SpeechRequest 语音合成请求
type SpeechRequest struct {
	ChatID    string  `json:"chatId"`
	Text      string  `json:"text" binding:"required"`
	Voice     string  `json:"voice"`
	Format    string  `json:"format"`
	Speed     float64 `json:"speed"`
	PersonaID string  `json:"personaId"`
}

// GenerateImage POST /api/v1/images
func (h *MediaHandler) GenerateImage(c *gin.Context) {
	h.generate(c, h.media.Image)
}

// GenerateVideo POST /api/v1/videos
func (h *MediaHandler) GenerateVideo(c *gin.Context) {
	h.generate(c, h.media.Video)
}

func (h *MediaHandler) generate(c *gin.Context, run func(context.Context, usecase.GenerateMediaInput) (*usecase.GenerateMediaResult, error)) {
	var req MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := run(c.Request.Context(), usecase.GenerateMediaInput{
		UserID:    UserID(c),
		ChatID:    req.ChatID,
		PersonaID: req.PersonaID,
		Prompt:    req.Prompt,
		FromOffer: req.FromOffer,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	// 生成失败也返回 200, 失败信息在 replyText 里
	c.JSON(http.StatusOK, result)
}

// Speech 文字转语音, 直接返回音频
// POST /api/v1/tts
func (h *MediaHandler) Speech(c *gin.Context) {
	var req SpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.voice.Synthesize(c.Request.Context(), usecase.SpeechInput{
		UserID:    UserID(c),
		PersonaID: req.PersonaID,
		ChatID:    req.ChatID,
		Text:      req.Text,
		Voice:     req.Voice,
		Format:    req.Format,
		Speed:     req.Speed,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if result.ArtifactID != "" {
		c.Header("X-Artifact-Id", result.ArtifactID)
	}
	c.Data(http.StatusOK, result.ContentType, result.Audio)
}

// Transcribe 语音转文字, multipart 字段 file
// POST /api/v1/stt
func (h *MediaHandler) Transcribe(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	if header.Size > maxUploadSize {
		badRequest(c, "file is too large")
		return
	}
	f, err := header.Open()
	if err != nil {
		badRequest(c, "cannot read upload")
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		badRequest(c, "cannot read upload")
		return
	}

	result, err := h.voice.Transcribe(c.Request.Context(), usecase.TranscribeInput{
		UserID:      UserID(c),
		ChatID:      c.PostForm("chatId"),
		Audio:       audio,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
