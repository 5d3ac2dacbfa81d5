package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/pkg/errors"
)

// 内存实现的仓储 (用于开发/测试, database.type=memory)
// Values are copied on the way in and out so callers never share state with
// the store.

// NewMemoryRepositories 创建一组内存仓储
func NewMemoryRepositories() *MemoryRepositories {
	return &MemoryRepositories{
		Chats:      &MemoryChatRepository{chats: map[string]entity.Chat{}},
		Messages:   &MemoryMessageRepository{byChat: map[string][]entity.Message{}},
		Memories:   &MemoryMemoryRepository{},
		Personas:   &MemoryPersonaRepository{personas: map[string]entity.Persona{}},
		Workspaces: &MemoryWorkspaceRepository{workspaces: map[string]entity.Workspace{}},
		Settings:   &MemorySettingsRepository{settings: map[string]entity.Settings{}},
		Artifacts:  &MemoryArtifactRepository{artifacts: map[string]entity.Artifact{}},
	}
}

// MemoryRepositories 内存仓储集合
type MemoryRepositories struct {
	Chats      *MemoryChatRepository
	Messages   *MemoryMessageRepository
	Memories   *MemoryMemoryRepository
	Personas   *MemoryPersonaRepository
	Workspaces *MemoryWorkspaceRepository
	Settings   *MemorySettingsRepository
	Artifacts  *MemoryArtifactRepository
}

// MemoryChatRepository 内存会话仓储
type MemoryChatRepository struct {
	mu    sync.RWMutex
	chats map[string]entity.Chat
}

var _ repository.ChatRepository = (*MemoryChatRepository)(nil)

// Get 查找会话
func (r *MemoryChatRepository) Get(_ context.Context, userID, chatID string) (*entity.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chats[chatID]
	if !ok || c.UserID != userID {
		return nil, errors.NewNotFoundError("chat not found")
	}
	return &c, nil
}

// ListByUser 按更新时间倒序列出会话
func (r *MemoryChatRepository) ListByUser(_ context.Context, userID string) ([]*entity.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Chat, 0)
	for _, c := range r.chats {
		if c.UserID == userID && !c.Hidden {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Save 保存会话
func (r *MemoryChatRepository) Save(_ context.Context, chat *entity.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[chat.ID] = *chat
	return nil
}

// MemoryMessageRepository 内存消息仓储
type MemoryMessageRepository struct {
	mu     sync.RWMutex
	byChat map[string][]entity.Message
}

var _ repository.MessageRepository = (*MemoryMessageRepository)(nil)

// Append 追加消息
func (r *MemoryMessageRepository) Append(_ context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChat[message.ChatID] = append(r.byChat[message.ChatID], *message)
	return nil
}

// Recent 最新的在前
func (r *MemoryMessageRepository) Recent(_ context.Context, chatID string, limit int) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := r.byChat[chatID]
	out := make([]*entity.Message, 0, min(limit, len(msgs)))
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		m := msgs[i]
		out = append(out, &m)
	}
	return out, nil
}

// MemoryMemoryRepository 内存记忆仓储
type MemoryMemoryRepository struct {
	mu   sync.RWMutex
	rows []entity.Memory
}

var _ repository.MemoryRepository = (*MemoryMemoryRepository)(nil)

// Create 新增记忆
func (r *MemoryMemoryRepository) Create(_ context.Context, memory *entity.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *memory)
	return nil
}

// Find 按层级和引用过滤
func (r *MemoryMemoryRepository) Find(_ context.Context, q repository.MemoryQuery) ([]*entity.Memory, error) {
	r.mu.RLock()
	var out []*entity.Memory
	for _, m := range r.rows {
		if m.UserID != q.UserID {
			continue
		}
		if q.Tier != "" && (m.Tier != q.Tier || (q.Tier != entity.TierGlobal && m.TierRefID != q.RefID)) {
			continue
		}
		m := m
		out = append(out, &m)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if q.NewestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Delete 删除记忆
func (r *MemoryMemoryRepository) Delete(_ context.Context, userID, memoryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.rows {
		if m.ID == memoryID && m.UserID == userID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return errors.NewNotFoundError("memory not found")
}

// MemoryPersonaRepository 内存人设仓储
type MemoryPersonaRepository struct {
	mu       sync.RWMutex
	personas map[string]entity.Persona
}

var _ repository.PersonaRepository = (*MemoryPersonaRepository)(nil)

// Get 查找人设
func (r *MemoryPersonaRepository) Get(_ context.Context, userID, personaID string) (*entity.Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[personaID]
	if !ok || p.UserID != userID {
		return nil, errors.NewNotFoundError("persona not found")
	}
	return clonePersona(p), nil
}

// ListByUser 按名称列出人设
func (r *MemoryPersonaRepository) ListByUser(_ context.Context, userID string) ([]*entity.Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Persona, 0)
	for _, p := range r.personas {
		if p.UserID == userID {
			out = append(out, clonePersona(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save 保存人设
func (r *MemoryPersonaRepository) Save(_ context.Context, persona *entity.Persona) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.personas[persona.ID] = *clonePersona(*persona)
	return nil
}

func clonePersona(p entity.Persona) *entity.Persona {
	voices := make(map[string]entity.VoicePreference, len(p.Voices))
	for k, v := range p.Voices {
		voices[k] = v
	}
	p.Voices = voices
	p.WorkspaceIDs = append([]string(nil), p.WorkspaceIDs...)
	return &p
}

// MemoryWorkspaceRepository 内存工作区仓储
type MemoryWorkspaceRepository struct {
	mu         sync.RWMutex
	workspaces map[string]entity.Workspace
}

var _ repository.WorkspaceRepository = (*MemoryWorkspaceRepository)(nil)

// Get 查找工作区
func (r *MemoryWorkspaceRepository) Get(_ context.Context, userID, workspaceID string) (*entity.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workspaces[workspaceID]
	if !ok || w.UserID != userID {
		return nil, errors.NewNotFoundError("workspace not found")
	}
	return &w, nil
}

// ListByUser 按名称列出工作区
func (r *MemoryWorkspaceRepository) ListByUser(_ context.Context, userID string) ([]*entity.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Workspace, 0)
	for _, w := range r.workspaces {
		if w.UserID == userID {
			w := w
			out = append(out, &w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save 保存工作区
func (r *MemoryWorkspaceRepository) Save(_ context.Context, ws *entity.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces[ws.ID] = *ws
	return nil
}

// MemorySettingsRepository 内存设置仓储
type MemorySettingsRepository struct {
	mu       sync.RWMutex
	settings map[string]entity.Settings
}

var _ repository.SettingsRepository = (*MemorySettingsRepository)(nil)

// Get 读取设置, 未保存时返回默认值
func (r *MemorySettingsRepository) Get(_ context.Context, userID string) (*entity.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[userID]
	if !ok {
		return entity.DefaultSettings(userID), nil
	}
	return cloneSettings(s), nil
}

// Save 保存设置
func (r *MemorySettingsRepository) Save(_ context.Context, s *entity.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[s.UserID] = *cloneSettings(*s)
	return nil
}

func cloneSettings(s entity.Settings) *entity.Settings {
	prefs := make(map[string]any, len(s.Preferences))
	for k, v := range s.Preferences {
		prefs[k] = v
	}
	s.Preferences = prefs
	return &s
}

// MemoryArtifactRepository 内存产物仓储
type MemoryArtifactRepository struct {
	mu        sync.RWMutex
	artifacts map[string]entity.Artifact
}

var _ repository.ArtifactRepository = (*MemoryArtifactRepository)(nil)

// Save 保存产物
func (r *MemoryArtifactRepository) Save(_ context.Context, a *entity.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[a.ID] = *a
	return nil
}

// Get 查找产物
func (r *MemoryArtifactRepository) Get(_ context.Context, userID, artifactID string) (*entity.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[artifactID]
	if !ok || a.UserID != userID {
		return nil, errors.NewNotFoundError("artifact not found")
	}
	return &a, nil
}
