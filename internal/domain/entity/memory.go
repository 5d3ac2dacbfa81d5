package entity

import (
	"strings"
	"time"
)

// MemoryTier is the scope a remembered fact applies to.
type MemoryTier string

const (
	TierGlobal    MemoryTier = "global"
	TierWorkspace MemoryTier = "workspace"
	TierPersona   MemoryTier = "persona"
	TierChat      MemoryTier = "chat"
)

// ParseMemoryTier validates a tier name.
func ParseMemoryTier(s string) (MemoryTier, bool) {
	switch MemoryTier(strings.ToLower(strings.TrimSpace(s))) {
	case TierGlobal:
		return TierGlobal, true
	case TierWorkspace:
		return TierWorkspace, true
	case TierPersona:
		return TierPersona, true
	case TierChat:
		return TierChat, true
	}
	return "", false
}

// Memory 记忆实体
// TierRefID is empty for global memories and references a chat, persona, or
// workspace owned by UserID otherwise.
type Memory struct {
	ID        string
	UserID    string
	Tier      MemoryTier
	TierRefID string
	Content   string
	CreatedAt time.Time
}

// NewMemory 创建记忆
func NewMemory(id, userID string, tier MemoryTier, refID, content string, now time.Time) (*Memory, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if _, ok := ParseMemoryTier(string(tier)); !ok {
		return nil, ErrInvalidMemoryTier
	}
	if tier != TierGlobal && refID == "" {
		return nil, ErrMissingTierRef
	}
	if tier == TierGlobal {
		refID = ""
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMemory
	}
	return &Memory{
		ID:        id,
		UserID:    userID,
		Tier:      tier,
		TierRefID: refID,
		Content:   content,
		CreatedAt: now,
	}, nil
}
