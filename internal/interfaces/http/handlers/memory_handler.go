package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/application/usecase"
	"github.com/niceassistant/assistant/internal/domain/entity"
)

// MemoryHandler 记忆管理处理器
type MemoryHandler struct {
	memories *usecase.MemoryUseCase
	logger   *zap.Logger
}

// NewMemoryHandler 创建记忆处理器
func NewMemoryHandler(memories *usecase.MemoryUseCase, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{memories: memories, logger: logger}
}

// MemoryRequest 创建记忆请求
type MemoryRequest struct {
	Tier    string `json:"tier" binding:"required"`
	RefID   string `json:"refId"`
	Content string `json:"content" binding:"required"`
}

// MemoryItem 记忆项
type MemoryItem struct {
	ID        string    `json:"id"`
	Tier      string    `json:"tier"`
	RefID     string    `json:"refId,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// List GET /api/v1/memories?tier=&refId=
func (h *MemoryHandler) List(c *gin.Context) {
	memories, err := h.memories.List(c.Request.Context(), UserID(c), c.Query("tier"), c.Query("refId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	items := make([]MemoryItem, 0, len(memories))
	for _, m := range memories {
		items = append(items, toMemoryItem(m))
	}
	c.JSON(http.StatusOK, gin.H{"memories": items})
}

// Create POST /api/v1/memories
func (h *MemoryHandler) Create(c *gin.Context) {
	var req MemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := h.memories.Create(c.Request.Context(), usecase.MemoryInput{
		UserID:  UserID(c),
		Tier:    req.Tier,
		RefID:   req.RefID,
		Content: req.Content,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toMemoryItem(m))
}

// Delete DELETE /api/v1/memories/:id
func (h *MemoryHandler) Delete(c *gin.Context) {
	if err := h.memories.Delete(c.Request.Context(), UserID(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func toMemoryItem(m *entity.Memory) MemoryItem {
	return MemoryItem{
		ID:        m.ID,
		Tier:      string(m.Tier),
		RefID:     m.TierRefID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
