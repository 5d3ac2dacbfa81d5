package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/infrastructure/persistence/models"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// GormMemoryRepository GORM 实现的记忆仓储
type GormMemoryRepository struct {
	db *gorm.DB
}

var _ repository.MemoryRepository = (*GormMemoryRepository)(nil)

// NewGormMemoryRepository 创建 GORM 记忆仓储
func NewGormMemoryRepository(db *gorm.DB) *GormMemoryRepository {
	return &GormMemoryRepository{db: db}
}

// Create 新增记忆
func (r *GormMemoryRepository) Create(ctx context.Context, memory *entity.Memory) error {
	model := &models.MemoryModel{
		ID:        memory.ID,
		UserID:    memory.UserID,
		Tier:      string(memory.Tier),
		Content:   memory.Content,
		CreatedAt: memory.CreatedAt,
	}
	if memory.Tier != entity.TierGlobal {
		ref := memory.TierRefID
		model.TierRefID = &ref
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to create memory", err)
	}
	return nil
}

// Find 按层级和引用过滤
func (r *GormMemoryRepository) Find(ctx context.Context, q repository.MemoryQuery) ([]*entity.Memory, error) {
	tx := r.db.WithContext(ctx).Where("user_id = ?", q.UserID)
	if q.Tier != "" {
		tx = tx.Where("tier = ?", string(q.Tier))
		if q.Tier == entity.TierGlobal {
			tx = tx.Where("tier_ref_id IS NULL")
		} else {
			tx = tx.Where("tier_ref_id = ?", q.RefID)
		}
	}
	if q.NewestFirst {
		tx = tx.Order("created_at desc")
	} else {
		tx = tx.Order("created_at asc")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []models.MemoryModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to load memories", err)
	}

	out := make([]*entity.Memory, 0, len(rows))
	for _, m := range rows {
		mem := &entity.Memory{
			ID:        m.ID,
			UserID:    m.UserID,
			Tier:      entity.MemoryTier(m.Tier),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		if m.TierRefID != nil {
			mem.TierRefID = *m.TierRefID
		}
		out = append(out, mem)
	}
	return out, nil
}

// Delete 删除用户的一条记忆
func (r *GormMemoryRepository) Delete(ctx context.Context, userID, memoryID string) error {
	result := r.db.WithContext(ctx).Delete(&models.MemoryModel{}, "id = ? AND user_id = ?", memoryID, userID)
	if result.Error != nil {
		return domainErrors.NewInternalErrorWithCause("failed to delete memory", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("memory not found")
	}
	return nil
}
