package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/infrastructure/persistence/models"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// GormMessageRepository GORM 实现的消息仓储
type GormMessageRepository struct {
	db *gorm.DB
}

var _ repository.MessageRepository = (*GormMessageRepository)(nil)

// NewGormMessageRepository 创建 GORM 消息仓储
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Append 追加消息; 已存在的 ID 视为错误而不是覆盖
func (r *GormMessageRepository) Append(ctx context.Context, message *entity.Message) error {
	model := &models.MessageModel{
		ID:        message.ID,
		ChatID:    message.ChatID,
		Role:      string(message.Role),
		Text:      message.Text,
		CreatedAt: message.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to append message", err)
	}
	return nil
}

// Recent 返回最近 limit 条消息, 最新的在前
func (r *GormMessageRepository) Recent(ctx context.Context, chatID string, limit int) ([]*entity.Message, error) {
	var rows []models.MessageModel
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to load messages", err)
	}

	messages := make([]*entity.Message, 0, len(rows))
	for _, m := range rows {
		messages = append(messages, &entity.Message{
			ID:        m.ID,
			ChatID:    m.ChatID,
			Role:      entity.Role(m.Role),
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}
	return messages, nil
}
