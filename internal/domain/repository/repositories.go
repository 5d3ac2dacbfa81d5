package repository

import (
	"context"

	"github.com/niceassistant/assistant/internal/domain/entity"
)

// 仓储接口定义在领域层，实现在基础设施层
// Every read is scoped by user id; a record owned by another user is reported
// as not found.

// ChatRepository 会话仓储接口
type ChatRepository interface {
	// Get 查找用户的会话
	Get(ctx context.Context, userID, chatID string) (*entity.Chat, error)

	// ListByUser 按更新时间倒序列出会话 (不含隐藏会话)
	ListByUser(ctx context.Context, userID string) ([]*entity.Chat, error)

	// Save 创建或更新会话 (last write wins)
	Save(ctx context.Context, chat *entity.Chat) error
}

// MessageRepository 消息仓储接口 (只追加)
type MessageRepository interface {
	// Append 追加一条消息
	Append(ctx context.Context, message *entity.Message) error

	// Recent 返回会话最近的 limit 条消息, 最新的在前
	Recent(ctx context.Context, chatID string, limit int) ([]*entity.Message, error)
}

// MemoryQuery filters memories. RefID is ignored for the global tier.
// Limit 0 returns every match. NewestFirst orders by creation time descending;
// otherwise results are chronological.
type MemoryQuery struct {
	UserID      string
	Tier        entity.MemoryTier
	RefID       string
	Limit       int
	NewestFirst bool
}

// MemoryRepository 记忆仓储接口
type MemoryRepository interface {
	Create(ctx context.Context, memory *entity.Memory) error
	Find(ctx context.Context, query MemoryQuery) ([]*entity.Memory, error)
	Delete(ctx context.Context, userID, memoryID string) error
}

// PersonaRepository 人设仓储接口
type PersonaRepository interface {
	Get(ctx context.Context, userID, personaID string) (*entity.Persona, error)
	ListByUser(ctx context.Context, userID string) ([]*entity.Persona, error)
	Save(ctx context.Context, persona *entity.Persona) error
}

// WorkspaceRepository 工作区仓储接口
type WorkspaceRepository interface {
	Get(ctx context.Context, userID, workspaceID string) (*entity.Workspace, error)
	ListByUser(ctx context.Context, userID string) ([]*entity.Workspace, error)
	Save(ctx context.Context, workspace *entity.Workspace) error
}

// SettingsRepository 用户设置仓储接口
type SettingsRepository interface {
	// Get returns entity.DefaultSettings when the user never saved any.
	Get(ctx context.Context, userID string) (*entity.Settings, error)
	Save(ctx context.Context, settings *entity.Settings) error
}

// ArtifactRepository 生成产物仓储接口
type ArtifactRepository interface {
	Save(ctx context.Context, artifact *entity.Artifact) error
	Get(ctx context.Context, userID, artifactID string) (*entity.Artifact, error)
}

// BlobStore stores generated media bytes and hands back an opaque handle.
type BlobStore interface {
	Store(ctx context.Context, data []byte, ext string) (string, error)
	Read(ctx context.Context, handle string) ([]byte, error)
}
