package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/application/usecase"
	"github.com/niceassistant/assistant/internal/domain/entity"
)

// PersonaHandler 人设与工作区处理器
type PersonaHandler struct {
	personas *usecase.PersonaUseCase
	logger   *zap.Logger
}

// NewPersonaHandler 创建人设处理器
func NewPersonaHandler(personas *usecase.PersonaUseCase, logger *zap.Logger) *PersonaHandler {
	return &PersonaHandler{personas: personas, logger: logger}
}

// PersonaRequest 创建/更新人设请求, 缺省字段保持不变
type PersonaRequest struct {
	Name               *string                           `json:"name"`
	SystemPrompt       *string                           `json:"systemPrompt"`
	PersonalityDetails *string                           `json:"personalityDetails"`
	Traits             *entity.Traits                    `json:"traits"`
	Voices             map[string]entity.VoicePreference `json:"voices"`
	DefaultModel       *string                           `json:"defaultModel"`
	AvatarURL          *string                           `json:"avatarUrl"`
	WorkspaceIDs       []string                          `json:"workspaceIds"`
}

// PersonaItem 人设
type PersonaItem struct {
	ID                 string                            `json:"id"`
	Name               string                            `json:"name"`
	SystemPrompt       string                            `json:"systemPrompt,omitempty"`
	PersonalityDetails string                            `json:"personalityDetails,omitempty"`
	Traits             entity.Traits                     `json:"traits"`
	Voices             map[string]entity.VoicePreference `json:"voices,omitempty"`
	DefaultModel       string                            `json:"defaultModel,omitempty"`
	AvatarURL          string                            `json:"avatarUrl,omitempty"`
	WorkspaceIDs       []string                          `json:"workspaceIds"`
	UpdatedAt          time.Time                         `json:"updatedAt"`
}

// WorkspaceRequest 创建工作区请求
type WorkspaceRequest struct {
	Name string `json:"name" binding:"required"`
}

// WorkspaceItem 工作区
type WorkspaceItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// List GET /api/v1/personas
func (h *PersonaHandler) List(c *gin.Context) {
	personas, err := h.personas.List(c.Request.Context(), UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	items := make([]PersonaItem, 0, len(personas))
	for _, p := range personas {
		items = append(items, toPersonaItem(p))
	}
	c.JSON(http.StatusOK, gin.H{"personas": items})
}

// Get GET /api/v1/personas/:id
func (h *PersonaHandler) Get(c *gin.Context) {
	p, err := h.personas.Get(c.Request.Context(), UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toPersonaItem(p))
}

// Create POST /api/v1/personas
func (h *PersonaHandler) Create(c *gin.Context) {
	var req PersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.personas.Create(c.Request.Context(), UserID(c), req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toPersonaItem(p))
}

// Update PUT /api/v1/personas/:id
func (h *PersonaHandler) Update(c *gin.Context) {
	var req PersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.personas.Update(c.Request.Context(), UserID(c), c.Param("id"), req.input())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toPersonaItem(p))
}

// ListWorkspaces GET /api/v1/workspaces
func (h *PersonaHandler) ListWorkspaces(c *gin.Context) {
	workspaces, err := h.personas.ListWorkspaces(c.Request.Context(), UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	items := make([]WorkspaceItem, 0, len(workspaces))
	for _, ws := range workspaces {
		items = append(items, WorkspaceItem{ID: ws.ID, Name: ws.Name, CreatedAt: ws.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": items})
}

// CreateWorkspace POST /api/v1/workspaces
func (h *PersonaHandler) CreateWorkspace(c *gin.Context) {
	var req WorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ws, err := h.personas.CreateWorkspace(c.Request.Context(), UserID(c), req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, WorkspaceItem{ID: ws.ID, Name: ws.Name, CreatedAt: ws.CreatedAt})
}

func (r PersonaRequest) input() usecase.PersonaInput {
	return usecase.PersonaInput{
		Name:               r.Name,
		SystemPrompt:       r.SystemPrompt,
		PersonalityDetails: r.PersonalityDetails,
		Traits:             r.Traits,
		Voices:             r.Voices,
		DefaultModel:       r.DefaultModel,
		AvatarURL:          r.AvatarURL,
		WorkspaceIDs:       r.WorkspaceIDs,
	}
}

func toPersonaItem(p *entity.Persona) PersonaItem {
	workspaces := p.WorkspaceIDs
	if workspaces == nil {
		workspaces = []string{}
	}
	return PersonaItem{
		ID:                 p.ID,
		Name:               p.Name,
		SystemPrompt:       p.SystemPrompt,
		PersonalityDetails: p.PersonalityDetails,
		Traits:             p.Traits,
		Voices:             p.Voices,
		DefaultModel:       p.DefaultModel,
		AvatarURL:          p.AvatarURL,
		WorkspaceIDs:       workspaces,
		UpdatedAt:          p.UpdatedAt,
	}
}
