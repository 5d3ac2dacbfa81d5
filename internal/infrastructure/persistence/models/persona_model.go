package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PersonaModel 数据库人设模型
type PersonaModel struct {
	ID                 string         `gorm:"primaryKey;size:64"`
	UserID             string         `gorm:"index;size:64;not null"`
	Name               string         `gorm:"size:128;not null"`
	SystemPrompt       string         `gorm:"type:text"`
	PersonalityDetails string         `gorm:"type:text"`
	Traits             datatypes.JSON // decoded leniently, see entity.ParseTraits
	Voices             datatypes.JSON // provider → {voice, model, speed}
	DefaultModel       string         `gorm:"size:128"`
	AvatarURL          string         `gorm:"size:512"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (PersonaModel) TableName() string {
	return "personas"
}

// PersonaWorkspaceModel 人设与工作区的多对多关联
type PersonaWorkspaceModel struct {
	PersonaID   string `gorm:"primaryKey;size:64"`
	WorkspaceID string `gorm:"primaryKey;size:64;index"`
}

// TableName 指定表名
func (PersonaWorkspaceModel) TableName() string {
	return "persona_workspaces"
}

// WorkspaceModel 数据库工作区模型
type WorkspaceModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"index;size:64;not null"`
	Name      string `gorm:"size:128;not null"`
	CreatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (WorkspaceModel) TableName() string {
	return "workspaces"
}
