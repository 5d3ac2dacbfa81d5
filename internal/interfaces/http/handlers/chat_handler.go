package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/application/usecase"
	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
)

// ChatHandler 对话 API 处理器
type ChatHandler struct {
	converse *usecase.ConverseUseCase
	chats    *usecase.ChatUseCase
	logger   *zap.Logger
}

// NewChatHandler 创建对话处理器
func NewChatHandler(converse *usecase.ConverseUseCase, chats *usecase.ChatUseCase, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		converse: converse,
		chats:    chats,
		logger:   logger,
	}
}

// TurnRequest 发送消息请求
type TurnRequest struct {
	ChatID      string                       `json:"chatId"`
	Text        string                       `json:"text" binding:"required"`
	Model       string                       `json:"model"`
	PersonaID   string                       `json:"personaId"`
	WorkspaceID string                       `json:"workspaceId"`
	MemoryMode  string                       `json:"memoryMode"`
	Options     *valueobject.SamplingOptions `json:"options"`
}

// ChatItem 会话项
type ChatItem struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	PersonaID     string    `json:"personaId,omitempty"`
	WorkspaceID   string    `json:"workspaceId,omitempty"`
	ModelOverride string    `json:"modelOverride,omitempty"`
	MemoryMode    string    `json:"memoryMode"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MessageItem 消息项
type MessageItem struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// SendTurn 处理一轮对话
// POST /api/v1/chat
func (h *ChatHandler) SendTurn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.converse.Execute(c.Request.Context(), usecase.TurnInput{
		UserID:      UserID(c),
		ChatID:      req.ChatID,
		Text:        req.Text,
		Model:       req.Model,
		PersonaID:   req.PersonaID,
		WorkspaceID: req.WorkspaceID,
		MemoryMode:  req.MemoryMode,
		Sampling:    req.Options,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListChats 列出会话
// GET /api/v1/chats
func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chats.List(c.Request.Context(), UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	items := make([]ChatItem, 0, len(chats))
	for _, chat := range chats {
		items = append(items, toChatItem(chat))
	}
	c.JSON(http.StatusOK, gin.H{"chats": items})
}

// ListMessages 获取会话消息, 按时间顺序
// GET /api/v1/chats/:id/messages?limit=N
func (h *ChatHandler) ListMessages(c *gin.Context) {
	msgs, err := h.chats.Messages(c.Request.Context(), UserID(c), c.Param("id"), queryInt(c, "limit"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	items := make([]MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, MessageItem{
			ID:        m.ID,
			Role:      string(m.Role),
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": items})
}

// GetArtifact 读取生成产物
// GET /api/v1/artifacts/:id
func (h *ChatHandler) GetArtifact(c *gin.Context) {
	a, data, err := h.chats.OpenArtifact(c.Request.Context(), UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, contentType, data)
}

func toChatItem(chat *entity.Chat) ChatItem {
	return ChatItem{
		ID:            chat.ID,
		Title:         chat.Title,
		PersonaID:     chat.PersonaID,
		WorkspaceID:   chat.WorkspaceID,
		ModelOverride: chat.ModelOverride,
		MemoryMode:    string(chat.MemoryMode),
		UpdatedAt:     chat.UpdatedAt,
	}
}
