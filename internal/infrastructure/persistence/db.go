package persistence

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/niceassistant/assistant/internal/infrastructure/config"
	"github.com/niceassistant/assistant/internal/infrastructure/persistence/models"
)

// NewDBConnection 创建数据库连接
func NewDBConnection(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == "sqlite" {
		// sqlite 只允许单写者; 一个连接避免 "database is locked"
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// autoMigrate 自动迁移数据库结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ChatModel{},
		&models.MessageModel{},
		&models.MemoryModel{},
		&models.PersonaModel{},
		&models.PersonaWorkspaceModel{},
		&models.WorkspaceModel{},
		&models.SettingsModel{},
		&models.ArtifactModel{},
	)
}

// Repositories 聚合所有仓储实现
type Repositories struct {
	Chats      *GormChatRepository
	Messages   *GormMessageRepository
	Memories   *GormMemoryRepository
	Personas   *GormPersonaRepository
	Workspaces *GormWorkspaceRepository
	Settings   *GormSettingsRepository
	Artifacts  *GormArtifactRepository
}

// NewRepositories 基于同一个连接创建全部仓储
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Chats:      NewGormChatRepository(db),
		Messages:   NewGormMessageRepository(db),
		Memories:   NewGormMemoryRepository(db),
		Personas:   NewGormPersonaRepository(db),
		Workspaces: NewGormWorkspaceRepository(db),
		Settings:   NewGormSettingsRepository(db),
		Artifacts:  NewGormArtifactRepository(db),
	}
}
