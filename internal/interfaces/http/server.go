package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/application/usecase"
	"github.com/niceassistant/assistant/internal/infrastructure/monitoring"
	"github.com/niceassistant/assistant/internal/interfaces/http/handlers"
	"github.com/niceassistant/assistant/internal/interfaces/websocket"
)

const shutdownTimeout = 10 * time.Second

// Server HTTP服务器
type Server struct {
	server *http.Server
	router *gin.Engine
	logger *zap.Logger
}

// Config HTTP服务器配置
type Config struct {
	Host       string
	Port       int
	Mode       string // debug, release
	UserHeader string
	DevUserID  string
}

// Services 路由依赖的用例与基础设施
type Services struct {
	Converse *usecase.ConverseUseCase
	Chats    *usecase.ChatUseCase
	Media    *usecase.GenerateMediaUseCase
	Voice    *usecase.VoiceUseCase
	Memories *usecase.MemoryUseCase
	Personas *usecase.PersonaUseCase
	Settings *usecase.SettingsUseCase
	Models   handlers.ModelLister
	Voices   handlers.VoiceLister
	Hub      *websocket.Hub
	Monitor  *monitoring.Monitor
}

// NewServer 创建HTTP服务器
func NewServer(cfg Config, svc Services, logger *zap.Logger) *Server {
	if cfg.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger = logger.With(zap.String("component", "http"))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	setupRoutes(router, cfg, svc, logger)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router: router,
		logger: logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 监听并服务, ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	s.logger.Info("Starting HTTP server", zap.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// setupRoutes 设置路由
func setupRoutes(router *gin.Engine, cfg Config, svc Services, logger *zap.Logger) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})
	if svc.Monitor != nil {
		router.GET("/metrics", gin.WrapH(svc.Monitor.PrometheusHandler()))
	}

	chatHandler := handlers.NewChatHandler(svc.Converse, svc.Chats, logger)
	mediaHandler := handlers.NewMediaHandler(svc.Media, svc.Voice, logger)
	memoryHandler := handlers.NewMemoryHandler(svc.Memories, logger)
	personaHandler := handlers.NewPersonaHandler(svc.Personas, logger)
	settingsHandler := handlers.NewSettingsHandler(svc.Settings, logger)
	catalogHandler := handlers.NewCatalogHandler(svc.Models, svc.Voices, logger)

	// API版本1
	v1 := router.Group("/api/v1")
	v1.Use(resolveUser(cfg.UserHeader, cfg.DevUserID))
	{
		v1.POST("/chat", chatHandler.SendTurn)
		v1.GET("/chats", chatHandler.ListChats)
		v1.GET("/chats/:id/messages", chatHandler.ListMessages)
		v1.GET("/artifacts/:id", chatHandler.GetArtifact)

		v1.POST("/images", mediaHandler.GenerateImage)
		v1.POST("/videos", mediaHandler.GenerateVideo)
		v1.POST("/tts", mediaHandler.Speech)
		v1.POST("/stt", mediaHandler.Transcribe)

		v1.GET("/memories", memoryHandler.List)
		v1.POST("/memories", memoryHandler.Create)
		v1.DELETE("/memories/:id", memoryHandler.Delete)

		v1.GET("/personas", personaHandler.List)
		v1.POST("/personas", personaHandler.Create)
		v1.GET("/personas/:id", personaHandler.Get)
		v1.PUT("/personas/:id", personaHandler.Update)
		v1.GET("/workspaces", personaHandler.ListWorkspaces)
		v1.POST("/workspaces", personaHandler.CreateWorkspace)

		v1.GET("/settings", settingsHandler.Get)
		v1.PUT("/settings", settingsHandler.Update)

		v1.GET("/models", catalogHandler.Models)
		v1.GET("/voices", catalogHandler.Voices)

		if svc.Hub != nil {
			hub := svc.Hub
			v1.GET("/events", func(c *gin.Context) {
				hub.ServeWS(c.Writer, c.Request, handlers.UserID(c))
			})
		}

		if svc.Monitor != nil {
			var clients func() int
			if svc.Hub != nil {
				clients = svc.Hub.ClientCount
			}
			handlers.RegisterDebugRoutes(v1, handlers.NewDebugHandler(svc.Monitor, clients, logger))
		}
	}
}

// resolveUser 从受信任的代理头读取用户; 缺失时使用开发用户, 都没有则拒绝
func resolveUser(header, devUserID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(header))
		if userID == "" {
			userID = devUserID
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		handlers.SetUserID(c, userID)
		c.Next()
	}
}

// ginLogger Gin日志中间件
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("user_id", handlers.UserID(c)),
		)
	}
}
