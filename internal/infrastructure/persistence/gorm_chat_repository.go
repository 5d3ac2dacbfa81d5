package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/infrastructure/persistence/models"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// GormChatRepository GORM 实现的会话仓储
type GormChatRepository struct {
	db *gorm.DB
}

var _ repository.ChatRepository = (*GormChatRepository)(nil)

// NewGormChatRepository 创建 GORM 会话仓储
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db}
}

// Get 查找用户的会话
func (r *GormChatRepository) Get(ctx context.Context, userID, chatID string) (*entity.Chat, error) {
	var model models.ChatModel
	err := r.db.WithContext(ctx).First(&model, "id = ? AND user_id = ?", chatID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("chat not found")
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to find chat", err)
	}
	return chatToEntity(&model), nil
}

// ListByUser 按更新时间倒序列出会话
func (r *GormChatRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Chat, error) {
	var rows []models.ChatModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND hidden = ?", userID, false).
		Order("updated_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to list chats", err)
	}

	chats := make([]*entity.Chat, 0, len(rows))
	for i := range rows {
		chats = append(chats, chatToEntity(&rows[i]))
	}
	return chats, nil
}

// Save 创建或更新会话
func (r *GormChatRepository) Save(ctx context.Context, chat *entity.Chat) error {
	if err := r.db.WithContext(ctx).Save(chatToModel(chat)).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to save chat", err)
	}
	return nil
}

func chatToModel(c *entity.Chat) *models.ChatModel {
	return &models.ChatModel{
		ID:            c.ID,
		UserID:        c.UserID,
		WorkspaceID:   c.WorkspaceID,
		PersonaID:     c.PersonaID,
		ModelOverride: c.ModelOverride,
		MemoryMode:    string(c.MemoryMode),
		Title:         c.Title,
		Hidden:        c.Hidden,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func chatToEntity(m *models.ChatModel) *entity.Chat {
	mode, ok := entity.ParseMemoryMode(m.MemoryMode)
	if !ok {
		mode = entity.MemoryModeAuto
	}
	return &entity.Chat{
		ID:            m.ID,
		UserID:        m.UserID,
		WorkspaceID:   m.WorkspaceID,
		PersonaID:     m.PersonaID,
		ModelOverride: m.ModelOverride,
		MemoryMode:    mode,
		Title:         m.Title,
		Hidden:        m.Hidden,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
