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

// GormWorkspaceRepository GORM 实现的工作区仓储
type GormWorkspaceRepository struct {
	db *gorm.DB
}

var _ repository.WorkspaceRepository = (*GormWorkspaceRepository)(nil)

// NewGormWorkspaceRepository 创建 GORM 工作区仓储
func NewGormWorkspaceRepository(db *gorm.DB) *GormWorkspaceRepository {
	return &GormWorkspaceRepository{db: db}
}

// Get 查找工作区
func (r *GormWorkspaceRepository) Get(ctx context.Context, userID, workspaceID string) (*entity.Workspace, error) {
	var m models.WorkspaceModel
	err := r.db.WithContext(ctx).First(&m, "id = ? AND user_id = ?", workspaceID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("workspace not found")
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to find workspace", err)
	}
	return &entity.Workspace{ID: m.ID, UserID: m.UserID, Name: m.Name, CreatedAt: m.CreatedAt}, nil
}

// ListByUser 列出用户工作区
func (r *GormWorkspaceRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Workspace, error) {
	var rows []models.WorkspaceModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name asc").Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to list workspaces", err)
	}
	out := make([]*entity.Workspace, 0, len(rows))
	for _, m := range rows {
		out = append(out, &entity.Workspace{ID: m.ID, UserID: m.UserID, Name: m.Name, CreatedAt: m.CreatedAt})
	}
	return out, nil
}

// Save 创建或更新工作区
func (r *GormWorkspaceRepository) Save(ctx context.Context, ws *entity.Workspace) error {
	m := &models.WorkspaceModel{ID: ws.ID, UserID: ws.UserID, Name: ws.Name, CreatedAt: ws.CreatedAt}
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to save workspace", err)
	}
	return nil
}
