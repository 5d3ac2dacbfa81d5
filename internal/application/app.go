package application

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/niceassistant/assistant/internal/application/usecase"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/blob"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
	"github.com/niceassistant/assistant/internal/infrastructure/eventbus"
	"github.com/niceassistant/assistant/internal/infrastructure/llm/ollama"
	"github.com/niceassistant/assistant/internal/infrastructure/monitoring"
	"github.com/niceassistant/assistant/internal/infrastructure/persistence"
	"github.com/niceassistant/assistant/internal/infrastructure/provider"
	httpServer "github.com/niceassistant/assistant/internal/interfaces/http"
	"github.com/niceassistant/assistant/internal/interfaces/telegram"
	"github.com/niceassistant/assistant/internal/interfaces/websocket"
)

const (
	eventBufferSize   = 256
	collectorInterval = 15 * time.Second
)

type repositories struct {
	chats      repository.ChatRepository
	messages   repository.MessageRepository
	memories   repository.MemoryRepository
	personas   repository.PersonaRepository
	workspaces repository.WorkspaceRepository
	settings   repository.SettingsRepository
	artifacts  repository.ArtifactRepository
}

// App 应用程序 (依赖注入容器)
type App struct {
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	repos      repositories
	blobs      repository.BlobStore
	bus        *eventbus.InMemoryBus
	monitor    *monitoring.Monitor
	chatModel  *ollama.Client
	dispatcher *provider.Dispatcher

	converse *usecase.ConverseUseCase
	chats    *usecase.ChatUseCase
	media    *usecase.GenerateMediaUseCase
	voice    *usecase.VoiceUseCase
	memories *usecase.MemoryUseCase
	personas *usecase.PersonaUseCase
	settings *usecase.SettingsUseCase

	hub      *websocket.Hub
	server   *httpServer.Server
	telegram *telegram.Adapter

	detach []func()
}

// NewApp wires every layer from cfg. Close releases what it opened.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	if err := app.initInfrastructure(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}
	app.initApplicationServices()
	if err := app.initInterfaces(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}
	return app, nil
}

func (a *App) initRepositories() error {
	if a.config.Database.Type == "memory" {
		r := persistence.NewMemoryRepositories()
		a.repos = repositories{r.Chats, r.Messages, r.Memories, r.Personas, r.Workspaces, r.Settings, r.Artifacts}
		a.logger.Warn("Using in-memory storage, data is lost on exit")
		return nil
	}

	db, err := persistence.NewDBConnection(&a.config.Database)
	if err != nil {
		return err
	}
	a.db = db
	r := persistence.NewRepositories(db)
	a.repos = repositories{r.Chats, r.Messages, r.Memories, r.Personas, r.Workspaces, r.Settings, r.Artifacts}
	a.logger.Info("Database ready", zap.String("type", a.config.Database.Type))
	return nil
}

func (a *App) initInfrastructure(ctx context.Context) error {
	blobs, err := blob.New(ctx, a.config.Blob, a.logger)
	if err != nil {
		return err
	}
	a.blobs = blobs

	a.bus = eventbus.NewInMemoryBus(a.logger, eventBufferSize)
	a.monitor = monitoring.NewMonitor(a.logger)
	a.detach = append(a.detach, monitoring.NewMetricsHook(a.monitor, a.logger).Attach(a.bus))

	a.chatModel = ollama.New(a.config.Providers.Ollama, a.logger)
	a.dispatcher = provider.NewDispatcher(
		provider.NewOpenAIClient(a.config.Providers.OpenAI, a.logger),
		provider.NewLocalClient(a.config.Providers, a.logger),
		a.config.Video,
		a.logger,
	)
	return nil
}

func (a *App) initApplicationServices() {
	providers := a.config.Providers
	media := usecase.MediaDeps{
		Dispatcher: a.dispatcher,
		Blobs:      a.blobs,
		Artifacts:  a.repos.artifacts,
		Bus:        a.bus,
		Defaults: valueobject.ProviderDefaults{
			OpenAIAPIKey:      providers.OpenAI.APIKey,
			KokoroBaseURL:     providers.Kokoro.BaseURL,
			LocalImageBaseURL: providers.Automatic1111.BaseURL,
			LocalImageAuth:    providers.Automatic1111.Auth,
		},
	}

	a.converse = usecase.NewConverseUseCase(usecase.ConverseDeps{
		Chats:     a.repos.chats,
		Messages:  a.repos.messages,
		Memories:  a.repos.memories,
		Personas:  a.repos.personas,
		Settings:  a.repos.settings,
		ChatModel: a.chatModel,
		Media:     media,
		Config:    a.config.Conversation,
	}, a.logger)
	a.chats = usecase.NewChatUseCase(a.repos.chats, a.repos.messages, a.repos.artifacts, a.blobs)
	a.media = usecase.NewGenerateMediaUseCase(a.converse)
	a.voice = usecase.NewVoiceUseCase(a.repos.settings, a.repos.personas, media, a.logger, nil)
	a.memories = usecase.NewMemoryUseCase(a.repos.memories, a.repos.chats, a.repos.personas, a.repos.workspaces, a.bus, a.logger)
	a.personas = usecase.NewPersonaUseCase(a.repos.personas, a.repos.workspaces, a.logger)
	a.settings = usecase.NewSettingsUseCase(a.repos.settings, media.Defaults, a.logger)
}

func (a *App) initInterfaces() error {
	a.hub = websocket.NewHub(a.logger)
	a.detach = append(a.detach, a.hub.Attach(a.bus))

	srv := a.config.Server
	a.server = httpServer.NewServer(httpServer.Config{
		Host:       srv.Host,
		Port:       srv.Port,
		Mode:       srv.Mode,
		UserHeader: srv.UserHeader,
		DevUserID:  srv.DevUserID,
	}, httpServer.Services{
		Converse: a.converse,
		Chats:    a.chats,
		Media:    a.media,
		Voice:    a.voice,
		Memories: a.memories,
		Personas: a.personas,
		Settings: a.settings,
		Models:   a.chatModel,
		Voices:   a.dispatcher,
		Hub:      a.hub,
		Monitor:  a.monitor,
	}, a.logger)

	tg := a.config.Telegram
	if !tg.Enabled() {
		a.logger.Info("Telegram disabled")
		return nil
	}
	adapter, err := telegram.NewAdapter(telegram.Config{
		BotToken:       tg.BotToken,
		AllowedUserIDs: tg.AllowIDs,
		UserID:         tg.UserID,
		Debug:          srv.Mode == "debug",
	}, telegram.Services{
		Conversation: a.converse,
		Images:       a.media,
		Transcriber:  a.voice,
		Artifacts:    a.chats,
	}, a.logger)
	if err != nil {
		return err
	}
	a.telegram = adapter
	return nil
}

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.monitor.StartCollector(ctx, collectorInterval)
		return nil
	})
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	if a.telegram != nil {
		g.Go(func() error {
			return a.telegram.Run(ctx)
		})
	}

	a.logger.Info("Assistant started",
		zap.String("addr", fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)),
		zap.Bool("telegram", a.telegram != nil),
	)
	return g.Wait()
}

// Close 释放资源. 可以在部分初始化失败后调用
func (a *App) Close() {
	for _, fn := range a.detach {
		fn()
	}
	a.detach = nil
	if a.bus != nil {
		a.bus.Close()
	}
	if c, ok := a.blobs.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("Failed to close blob store", zap.Error(err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.logger.Warn("Failed to close database", zap.Error(err))
			}
		}
	}
}

// Converse exposes the orchestrator for the REPL.
func (a *App) Converse() *usecase.ConverseUseCase { return a.converse }

// Models lists the chat models the local engine serves.
func (a *App) Models(ctx context.Context) ([]string, error) {
	return a.chatModel.ListModels(ctx)
}

// Logger 获取日志器
func (a *App) Logger() *zap.Logger { return a.logger }
