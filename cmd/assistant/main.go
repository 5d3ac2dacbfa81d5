package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/niceassistant/assistant/internal/application"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
	"github.com/niceassistant/assistant/internal/infrastructure/logger"
	"github.com/niceassistant/assistant/internal/interfaces/repl"
)

const (
	appName    = "assistant"
	appVersion = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Personal assistant backend",
		Long:          "个人助手服务: 对话、记忆、语音与媒体生成, 提供 HTTP API、WebSocket 事件和 Telegram 机器人",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "启动服务 (HTTP + WebSocket + Telegram)",
		RunE:  runServe,
	})

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "终端内直接对话",
		RunE:  runREPL,
	}
	replCmd.Flags().StringP("user", "u", "", "assistant user id (default: $USER)")
	replCmd.Flags().StringP("model", "m", "", "chat model override")
	replCmd.Flags().StringP("persona", "p", "", "persona id")
	rootCmd.AddCommand(replCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "列出本地引擎可用的对话模型",
		RunE:  runModels,
	})

	configCmd := &cobra.Command{Use: "config", Short: "配置相关命令"}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "打印生效配置 (密钥已脱敏)",
		RunE:  runConfigShow,
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "在 ~/.assistant 下写入初始配置",
		RunE:  runConfigInit,
	})
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// ─── Server Mode ───

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		Secrets:    cfg.Secrets(),
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	if err := config.Bootstrap(config.HomeDir(), log); err != nil {
		log.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	log.Info("Starting assistant",
		zap.String("version", appVersion),
		zap.String("database", cfg.Database.Type),
		zap.String("blob", cfg.Blob.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", zap.Error(err))
		return err
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		return err
	}
	log.Info("Assistant stopped")
	return nil
}

// ─── REPL Mode ───

func runREPL(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// REPL 下日志只写错误, 避免刷屏
	log, err := logger.NewLogger(logger.Config{Level: "error", Format: "console", OutputPath: "stderr", Secrets: cfg.Secrets()})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer app.Close()

	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = os.Getenv("USER")
	}
	model, _ := cmd.Flags().GetString("model")
	persona, _ := cmd.Flags().GetString("persona")

	r := repl.New(app.Converse(), repl.Config{
		UserID:    user,
		Model:     model,
		PersonaID: persona,
	}, os.Stdin, os.Stdout, log)
	return r.Run(ctx)
}

// ─── Utility Commands ───

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.Database.Type = "memory"
	cfg.Blob.Backend = "fs"
	cfg.Blob.RootDir = os.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app, err := application.NewApp(ctx, cfg, zap.NewNop())
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer app.Close()

	models, err := app.Models(ctx)
	if err != nil {
		return fmt.Errorf("list models from %s: %w", cfg.Providers.Ollama.BaseURL, err)
	}
	for _, m := range models {
		fmt.Println(m)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	log, err := logger.NewLogger(logger.Config{Level: "info", Format: "console", OutputPath: "stderr"})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()
	return config.Bootstrap(config.HomeDir(), log)
}
