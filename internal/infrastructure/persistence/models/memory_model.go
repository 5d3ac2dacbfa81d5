package models

import "time"

// MemoryModel 数据库记忆模型
type MemoryModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"index:idx_memories_scope,priority:1;size:64;not null"`
	Tier      string    `gorm:"index:idx_memories_scope,priority:2;size:16;not null"` // global, workspace, persona, chat
	TierRefID *string   `gorm:"index:idx_memories_scope,priority:3;size:64"`          // NULL for global
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName 指定表名
func (MemoryModel) TableName() string {
	return "memories"
}
