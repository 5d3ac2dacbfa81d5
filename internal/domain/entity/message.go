package entity

import (
	"strings"
	"time"
)

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 消息实体, 只追加不修改
type Message struct {
	ID        string
	ChatID    string
	Role      Role
	Text      string
	CreatedAt time.Time
}

// NewMessage 创建新消息（工厂方法）
func NewMessage(id, chatID string, role Role, text string, now time.Time) (*Message, error) {
	if id == "" {
		return nil, ErrInvalidMessageID
	}
	if chatID == "" {
		return nil, ErrInvalidChatID
	}
	if role != RoleUser && role != RoleAssistant {
		return nil, ErrInvalidRole
	}
	if role == RoleUser && strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return &Message{
		ID:        id,
		ChatID:    chatID,
		Role:      role,
		Text:      text,
		CreatedAt: now,
	}, nil
}
