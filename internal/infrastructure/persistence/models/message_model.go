package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatModel 数据库会话模型
type ChatModel struct {
	ID            string `gorm:"primaryKey;size:64"`
	UserID        string `gorm:"index:idx_chats_user_updated,priority:1;size:64;not null"`
	WorkspaceID   string `gorm:"size:64"`
	PersonaID     string `gorm:"size:64"`
	ModelOverride string `gorm:"size:128"`
	MemoryMode    string `gorm:"size:8;not null;default:auto"`
	Title         string `gorm:"size:255"`
	Hidden        bool   `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time      `gorm:"index:idx_chats_user_updated,priority:2;autoUpdateTime:false"`
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (ChatModel) TableName() string {
	return "chats"
}

// MessageModel 数据库消息模型 (只追加)
type MessageModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	ChatID    string    `gorm:"index:idx_messages_chat_created,priority:1;size:64;not null"`
	Role      string    `gorm:"size:16;not null"` // user, assistant
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_messages_chat_created,priority:2"`
}

// TableName 指定表名
func (MessageModel) TableName() string {
	return "messages"
}
