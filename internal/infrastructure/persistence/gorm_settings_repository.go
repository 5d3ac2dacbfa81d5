package persistence

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/infrastructure/persistence/models"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// GormSettingsRepository GORM 实现的用户设置仓储
type GormSettingsRepository struct {
	db *gorm.DB
}

var _ repository.SettingsRepository = (*GormSettingsRepository)(nil)

// NewGormSettingsRepository 创建 GORM 设置仓储
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

// Get 读取设置, 未保存过时返回默认设置
func (r *GormSettingsRepository) Get(ctx context.Context, userID string) (*entity.Settings, error) {
	var m models.SettingsModel
	err := r.db.WithContext(ctx).First(&m, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.DefaultSettings(userID), nil
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to load settings", err)
	}

	prefs := map[string]any(m.Preferences)
	if prefs == nil {
		prefs = map[string]any{}
	}
	return &entity.Settings{
		UserID:        m.UserID,
		TTSProvider:   m.TTSProvider,
		STTProvider:   m.STTProvider,
		ImageProvider: m.ImageProvider,
		VideoProvider: m.VideoProvider,
		OpenAIAPIKey:  m.OpenAIAPIKey,
		Preferences:   prefs,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

// Save 创建或更新设置
func (r *GormSettingsRepository) Save(ctx context.Context, s *entity.Settings) error {
	m := &models.SettingsModel{
		UserID:        s.UserID,
		TTSProvider:   s.TTSProvider,
		STTProvider:   s.STTProvider,
		ImageProvider: s.ImageProvider,
		VideoProvider: s.VideoProvider,
		OpenAIAPIKey:  s.OpenAIAPIKey,
		Preferences:   datatypes.JSONMap(s.Preferences),
		UpdatedAt:     s.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to save settings", err)
	}
	return nil
}
