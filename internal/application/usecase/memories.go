package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/infrastructure/eventbus"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// MemoryInput creates one memory. RefID names the chat, persona or workspace
// for scoped tiers and is ignored for the global tier.
type MemoryInput struct {
	UserID  string
	Tier    string
	RefID   string
	Content string
}

// MemoryUseCase manages explicit memories.
type MemoryUseCase struct {
	memories   repository.MemoryRepository
	chats      repository.ChatRepository
	personas   repository.PersonaRepository
	workspaces repository.WorkspaceRepository
	bus        eventbus.Bus
	now        func() time.Time
	logger     *zap.Logger
}

// NewMemoryUseCase 创建记忆用例
func NewMemoryUseCase(
	memories repository.MemoryRepository,
	chats repository.ChatRepository,
	personas repository.PersonaRepository,
	workspaces repository.WorkspaceRepository,
	bus eventbus.Bus,
	logger *zap.Logger,
) *MemoryUseCase {
	return &MemoryUseCase{
		memories:   memories,
		chats:      chats,
		personas:   personas,
		workspaces: workspaces,
		bus:        bus,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "memories")),
	}
}

// List returns the user's memories of one tier, newest first. An empty tier
// lists every tier.
func (uc *MemoryUseCase) List(ctx context.Context, userID, tier, refID string) ([]*entity.Memory, error) {
	q := repository.MemoryQuery{UserID: userID, RefID: refID, NewestFirst: true}
	if tier != "" {
		t, ok := entity.ParseMemoryTier(tier)
		if !ok {
			return nil, domainErrors.NewInvalidInputError("unknown memory tier " + tier)
		}
		q.Tier = t
	}
	return uc.memories.Find(ctx, q)
}

// Create stores a memory after checking the referenced scope belongs to the user.
func (uc *MemoryUseCase) Create(ctx context.Context, in MemoryInput) (*entity.Memory, error) {
	tier, ok := entity.ParseMemoryTier(in.Tier)
	if !ok {
		return nil, domainErrors.NewInvalidInputError("unknown memory tier " + in.Tier)
	}
	refID := strings.TrimSpace(in.RefID)
	if err := uc.checkRef(ctx, in.UserID, tier, refID); err != nil {
		return nil, err
	}

	m, err := entity.NewMemory(uuid.New().String(), in.UserID, tier, refID, in.Content, uc.now().UTC())
	if err != nil {
		return nil, domainErrors.NewInvalidInputError(err.Error())
	}
	if err := uc.memories.Create(ctx, m); err != nil {
		return nil, err
	}
	if uc.bus != nil {
		uc.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventTypeMemorySaved, in.UserID, eventbus.MemorySavedPayload{
			MemoryID: m.ID,
			Tier:     string(m.Tier),
		}))
	}
	return m, nil
}

func (uc *MemoryUseCase) checkRef(ctx context.Context, userID string, tier entity.MemoryTier, refID string) error {
	if tier == entity.TierGlobal {
		return nil
	}
	if refID == "" {
		return domainErrors.NewInvalidInputError(entity.ErrMissingTierRef.Error())
	}
	var err error
	switch tier {
	case entity.TierChat:
		_, err = uc.chats.Get(ctx, userID, refID)
	case entity.TierPersona:
		_, err = uc.personas.Get(ctx, userID, refID)
	case entity.TierWorkspace:
		_, err = uc.workspaces.Get(ctx, userID, refID)
	}
	return err
}

// Delete removes one of the user's memories.
func (uc *MemoryUseCase) Delete(ctx context.Context, userID, memoryID string) error {
	if err := uc.memories.Delete(ctx, userID, memoryID); err != nil {
		return err
	}
	uc.logger.Debug("Memory deleted", zap.String("memory_id", memoryID))
	return nil
}
