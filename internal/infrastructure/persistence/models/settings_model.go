package models

import (
	"time"

	"gorm.io/datatypes"
)

// SettingsModel 数据库用户设置模型, 每个用户一行
type SettingsModel struct {
	UserID        string `gorm:"primaryKey;size:64"`
	TTSProvider   string `gorm:"size:16;not null;default:disabled"`
	STTProvider   string `gorm:"size:16;not null;default:disabled"`
	ImageProvider string `gorm:"size:16;not null;default:disabled"`
	VideoProvider string `gorm:"size:16;not null;default:disabled"`
	OpenAIAPIKey  string `gorm:"size:256"`
	Preferences   datatypes.JSONMap
	UpdatedAt     time.Time
}

// TableName 指定表名
func (SettingsModel) TableName() string {
	return "settings"
}

// ArtifactModel 数据库生成产物模型
type ArtifactModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	UserID      string `gorm:"index;size:64;not null"`
	ChatID      string `gorm:"index;size:64"`
	PersonaID   string `gorm:"size:64"`
	Kind        string `gorm:"size:8;not null"` // audio, image, video
	Format      string `gorm:"size:16"`
	ContentType string `gorm:"size:64"`
	Handle      string `gorm:"size:512;not null"`
	Provider    string `gorm:"size:32"`
	CreatedAt   time.Time
}

// TableName 指定表名
func (ArtifactModel) TableName() string {
	return "artifacts"
}
