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

// GormArtifactRepository GORM 实现的生成产物仓储
type GormArtifactRepository struct {
	db *gorm.DB
}

var _ repository.ArtifactRepository = (*GormArtifactRepository)(nil)

// NewGormArtifactRepository 创建 GORM 产物仓储
func NewGormArtifactRepository(db *gorm.DB) *GormArtifactRepository {
	return &GormArtifactRepository{db: db}
}

// Save 保存产物记录
func (r *GormArtifactRepository) Save(ctx context.Context, a *entity.Artifact) error {
	m := &models.ArtifactModel{
		ID:          a.ID,
		UserID:      a.UserID,
		ChatID:      a.ChatID,
		PersonaID:   a.PersonaID,
		Kind:        string(a.Kind),
		Format:      a.Format,
		ContentType: a.ContentType,
		Handle:      a.Handle,
		Provider:    a.Provider,
		CreatedAt:   a.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to save artifact", err)
	}
	return nil
}

// Get 查找用户的产物
func (r *GormArtifactRepository) Get(ctx context.Context, userID, artifactID string) (*entity.Artifact, error) {
	var m models.ArtifactModel
	err := r.db.WithContext(ctx).First(&m, "id = ? AND user_id = ?", artifactID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("artifact not found")
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to find artifact", err)
	}
	return &entity.Artifact{
		ID:          m.ID,
		UserID:      m.UserID,
		ChatID:      m.ChatID,
		PersonaID:   m.PersonaID,
		Kind:        entity.ArtifactKind(m.Kind),
		Format:      m.Format,
		ContentType: m.ContentType,
		Handle:      m.Handle,
		Provider:    m.Provider,
		CreatedAt:   m.CreatedAt,
	}, nil
}
