package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/infrastructure/persistence/models"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// GormPersonaRepository GORM 实现的人设仓储
type GormPersonaRepository struct {
	db *gorm.DB
}

var _ repository.PersonaRepository = (*GormPersonaRepository)(nil)

// NewGormPersonaRepository 创建 GORM 人设仓储
func NewGormPersonaRepository(db *gorm.DB) *GormPersonaRepository {
	return &GormPersonaRepository{db: db}
}

// Get 查找人设 (含工作区关联)
func (r *GormPersonaRepository) Get(ctx context.Context, userID, personaID string) (*entity.Persona, error) {
	var model models.PersonaModel
	err := r.db.WithContext(ctx).First(&model, "id = ? AND user_id = ?", personaID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("persona not found")
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to find persona", err)
	}

	links, err := r.workspaceLinks(ctx, []string{model.ID})
	if err != nil {
		return nil, err
	}
	return personaToEntity(&model, links[model.ID]), nil
}

// ListByUser 列出用户全部人设
func (r *GormPersonaRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Persona, error) {
	var rows []models.PersonaModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name asc").Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to list personas", err)
	}

	ids := make([]string, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.ID)
	}
	links, err := r.workspaceLinks(ctx, ids)
	if err != nil {
		return nil, err
	}

	personas := make([]*entity.Persona, 0, len(rows))
	for i := range rows {
		personas = append(personas, personaToEntity(&rows[i], links[rows[i].ID]))
	}
	return personas, nil
}

// Save 创建或更新人设, 并整体替换其工作区关联
func (r *GormPersonaRepository) Save(ctx context.Context, persona *entity.Persona) error {
	model, err := personaToModel(persona)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(model).Error; err != nil {
			return err
		}
		if err := tx.Where("persona_id = ?", persona.ID).Delete(&models.PersonaWorkspaceModel{}).Error; err != nil {
			return err
		}
		if len(persona.WorkspaceIDs) == 0 {
			return nil
		}
		links := make([]models.PersonaWorkspaceModel, 0, len(persona.WorkspaceIDs))
		for _, wsID := range persona.WorkspaceIDs {
			links = append(links, models.PersonaWorkspaceModel{PersonaID: persona.ID, WorkspaceID: wsID})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
	})
	if err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to save persona", err)
	}
	return nil
}

func (r *GormPersonaRepository) workspaceLinks(ctx context.Context, personaIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(personaIDs))
	if len(personaIDs) == 0 {
		return out, nil
	}
	var rows []models.PersonaWorkspaceModel
	err := r.db.WithContext(ctx).
		Where("persona_id IN ?", personaIDs).
		Order("workspace_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to load persona workspaces", err)
	}
	for _, l := range rows {
		out[l.PersonaID] = append(out[l.PersonaID], l.WorkspaceID)
	}
	return out, nil
}

func personaToModel(p *entity.Persona) (*models.PersonaModel, error) {
	traits, err := json.Marshal(p.Traits)
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to marshal traits", err)
	}
	voices, err := json.Marshal(p.Voices)
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to marshal voices", err)
	}
	return &models.PersonaModel{
		ID:                 p.ID,
		UserID:             p.UserID,
		Name:               p.Name,
		SystemPrompt:       p.SystemPrompt,
		PersonalityDetails: p.PersonalityDetails,
		Traits:             datatypes.JSON(traits),
		Voices:             datatypes.JSON(voices),
		DefaultModel:       p.DefaultModel,
		AvatarURL:          p.AvatarURL,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}, nil
}

func personaToEntity(m *models.PersonaModel, workspaceIDs []string) *entity.Persona {
	voices := map[string]entity.VoicePreference{}
	if len(m.Voices) > 0 {
		// 语音偏好损坏时退回空表, 不影响对话
		_ = json.Unmarshal(m.Voices, &voices)
	}
	return &entity.Persona{
		ID:                 m.ID,
		UserID:             m.UserID,
		Name:               m.Name,
		SystemPrompt:       m.SystemPrompt,
		PersonalityDetails: m.PersonalityDetails,
		Traits:             entity.ParseTraits(m.Traits),
		Voices:             voices,
		DefaultModel:       m.DefaultModel,
		AvatarURL:          m.AvatarURL,
		WorkspaceIDs:       workspaceIDs,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
