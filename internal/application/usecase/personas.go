package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// PersonaInput creates or updates a persona. Nil fields are left unchanged
// on update.
type PersonaInput struct {
	Name               *string
	SystemPrompt       *string
	PersonalityDetails *string
	Traits             *entity.Traits
	Voices             map[string]entity.VoicePreference
	DefaultModel       *string
	AvatarURL          *string
	WorkspaceIDs       []string
}

// PersonaUseCase 人设与工作区管理
type PersonaUseCase struct {
	personas   repository.PersonaRepository
	workspaces repository.WorkspaceRepository
	now        func() time.Time
	logger     *zap.Logger
}

// NewPersonaUseCase creates the persona and workspace use case.
func NewPersonaUseCase(personas repository.PersonaRepository, workspaces repository.WorkspaceRepository, logger *zap.Logger) *PersonaUseCase {
	return &PersonaUseCase{
		personas:   personas,
		workspaces: workspaces,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "personas")),
	}
}

// List returns the user's personas.
func (uc *PersonaUseCase) List(ctx context.Context, userID string) ([]*entity.Persona, error) {
	return uc.personas.ListByUser(ctx, userID)
}

// Get returns one persona.
func (uc *PersonaUseCase) Get(ctx context.Context, userID, personaID string) (*entity.Persona, error) {
	return uc.personas.Get(ctx, userID, personaID)
}

// Create adds a persona. A name is required.
func (uc *PersonaUseCase) Create(ctx context.Context, userID string, in PersonaInput) (*entity.Persona, error) {
	name := ""
	if in.Name != nil {
		name = *in.Name
	}
	p, err := entity.NewPersona(uuid.New().String(), userID, name, uc.now().UTC())
	if err != nil {
		return nil, domainErrors.NewInvalidInputError(err.Error())
	}
	if err := uc.apply(ctx, p, in); err != nil {
		return nil, err
	}
	if err := uc.personas.Save(ctx, p); err != nil {
		return nil, err
	}
	uc.logger.Info("Persona created", zap.String("persona_id", p.ID), zap.String("user_id", userID))
	return p, nil
}

// Update changes the fields present in the input.
func (uc *PersonaUseCase) Update(ctx context.Context, userID, personaID string, in PersonaInput) (*entity.Persona, error) {
	p, err := uc.personas.Get(ctx, userID, personaID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, domainErrors.NewInvalidInputError(entity.ErrInvalidPersonaName.Error())
		}
		p.Name = name
	}
	if err := uc.apply(ctx, p, in); err != nil {
		return nil, err
	}
	p.UpdatedAt = uc.now().UTC()
	if err := uc.personas.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (uc *PersonaUseCase) apply(ctx context.Context, p *entity.Persona, in PersonaInput) error {
	if in.SystemPrompt != nil {
		p.SystemPrompt = strings.TrimSpace(*in.SystemPrompt)
	}
	if in.PersonalityDetails != nil {
		p.PersonalityDetails = strings.TrimSpace(*in.PersonalityDetails)
	}
	if in.Traits != nil {
		p.Traits = in.Traits.Normalized()
	}
	if in.Voices != nil {
		p.Voices = in.Voices
	}
	if in.DefaultModel != nil {
		p.DefaultModel = strings.TrimSpace(*in.DefaultModel)
	}
	if in.AvatarURL != nil {
		p.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}
	if in.WorkspaceIDs != nil {
		for _, id := range in.WorkspaceIDs {
			if _, err := uc.workspaces.Get(ctx, p.UserID, id); err != nil {
				return err
			}
		}
		p.WorkspaceIDs = in.WorkspaceIDs
	}
	return nil
}

// ListWorkspaces returns the user's workspaces.
func (uc *PersonaUseCase) ListWorkspaces(ctx context.Context, userID string) ([]*entity.Workspace, error) {
	return uc.workspaces.ListByUser(ctx, userID)
}

// CreateWorkspace adds a named workspace.
func (uc *PersonaUseCase) CreateWorkspace(ctx context.Context, userID, name string) (*entity.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainErrors.NewInvalidInputError("workspace name is required")
	}
	ws := &entity.Workspace{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: uc.now().UTC(),
	}
	if err := uc.workspaces.Save(ctx, ws); err != nil {
		return nil, err
	}
	return ws, nil
}
