package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置 (启动时加载一次, 之后只读)
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Database     DatabaseConfig     `mapstructure:"database" yaml:"database"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
	Blob         BlobConfig         `mapstructure:"blob" yaml:"blob"`
	Providers    ProvidersConfig    `mapstructure:"providers" yaml:"providers"`
	Video        VideoConfig        `mapstructure:"video" yaml:"video"`
	Conversation ConversationConfig `mapstructure:"conversation" yaml:"conversation"`
	Telegram     TelegramConfig     `mapstructure:"telegram" yaml:"telegram"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	Mode       string `mapstructure:"mode" yaml:"mode"`               // debug, release
	UserHeader string `mapstructure:"user_header" yaml:"user_header"` // trusted header set by the auth proxy
	DevUserID  string `mapstructure:"dev_user_id" yaml:"dev_user_id"` // used when the header is absent; empty rejects
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type" yaml:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
}

// BlobConfig 生成媒体存储配置
type BlobConfig struct {
	Backend         string `mapstructure:"backend" yaml:"backend"` // fs, gcs
	RootDir         string `mapstructure:"root_dir" yaml:"root_dir"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"` // empty uses application default credentials
}

// ProvidersConfig 外部模型服务配置
type ProvidersConfig struct {
	Ollama        OllamaConfig        `mapstructure:"ollama" yaml:"ollama"`
	OpenAI        OpenAIConfig        `mapstructure:"openai" yaml:"openai"`
	Kokoro        KokoroConfig        `mapstructure:"kokoro" yaml:"kokoro"`
	Automatic1111 Automatic1111Config `mapstructure:"automatic1111" yaml:"automatic1111"`
}

// OllamaConfig 本地对话模型. 连续连接失败 FailureThreshold 次后暂停调用 RecoveryTimeout
type OllamaConfig struct {
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ListTimeout      time.Duration `mapstructure:"list_timeout" yaml:"list_timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout" yaml:"recovery_timeout"`
}

// OpenAIConfig OpenAI 兼容接口
type OpenAIConfig struct {
	BaseURL              string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey               string        `mapstructure:"api_key" yaml:"api_key"`
	SpeechTimeout        time.Duration `mapstructure:"speech_timeout" yaml:"speech_timeout"`
	TranscriptionTimeout time.Duration `mapstructure:"transcription_timeout" yaml:"transcription_timeout"`
	ImageTimeout         time.Duration `mapstructure:"image_timeout" yaml:"image_timeout"`
	VideoTimeout         time.Duration `mapstructure:"video_timeout" yaml:"video_timeout"`
}

// KokoroConfig 本地语音合成
type KokoroConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Automatic1111Config 本地图片生成
type Automatic1111Config struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Auth    string        `mapstructure:"auth" yaml:"auth"` // user:password
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// VideoConfig 视频任务轮询
type VideoConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// ConversationConfig 对话编排参数
type ConversationConfig struct {
	HistoryLimit      int    `mapstructure:"history_limit" yaml:"history_limit"`
	ChatMemoryWindow  int    `mapstructure:"chat_memory_window" yaml:"chat_memory_window"`
	MemoryWriteMaxLen int    `mapstructure:"memory_write_max_len" yaml:"memory_write_max_len"`
	FallbackModel     string `mapstructure:"fallback_model" yaml:"fallback_model"`
	TitleMaxLen       int    `mapstructure:"title_max_len" yaml:"title_max_len"`
}

// TelegramConfig Telegram 配置
type TelegramConfig struct {
	BotToken string  `mapstructure:"bot_token" yaml:"bot_token"`
	AllowIDs []int64 `mapstructure:"allow_ids" yaml:"allow_ids"`
	UserID   string  `mapstructure:"user_id" yaml:"user_id"` // assistant user the bot acts as
}

// Enabled reports whether the bot should start.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.UserID != ""
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFrom(HomeDir(), "./config", ".")
}

// LoadFrom 按层加载: 默认值 → 全局目录 → 第一个存在的本地目录 → 环境变量
func LoadFrom(globalDir string, localDirs ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Layer 1: 全局配置 ~/.assistant/config.yaml
	if globalDir != "" {
		v.AddConfigPath(globalDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read global config: %w", err)
			}
		}
	}

	// Layer 2: 项目本地配置, 只取第一个找到的
	for _, localDir := range localDirs {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err != nil {
			continue
		}
		v2 := viper.New()
		v2.SetConfigFile(localPath)
		if err := v2.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", localPath, err)
		}
		if err := v.MergeConfigMap(v2.AllSettings()); err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", localPath, err)
		}
		break
	}

	// 环境变量覆盖: ASSISTANT_PROVIDERS_OPENAI_API_KEY → providers.openai.api_key
	v.SetEnvPrefix("ASSISTANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.user_header", "X-User-Id")
	v.SetDefault("server.dev_user_id", "")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(HomeDir(), "assistant.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("blob.backend", "fs")
	v.SetDefault("blob.root_dir", filepath.Join(HomeDir(), "media"))
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.prefix", "media")
	v.SetDefault("blob.credentials_file", "")

	v.SetDefault("providers.ollama.base_url", "http://127.0.0.1:11434")
	v.SetDefault("providers.ollama.timeout", "120s")
	v.SetDefault("providers.ollama.list_timeout", "5s")
	v.SetDefault("providers.ollama.failure_threshold", 3)
	v.SetDefault("providers.ollama.recovery_timeout", "15s")

	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.api_key", "")
	v.SetDefault("providers.openai.speech_timeout", "60s")
	v.SetDefault("providers.openai.transcription_timeout", "120s")
	v.SetDefault("providers.openai.image_timeout", "180s")
	v.SetDefault("providers.openai.video_timeout", "120s")

	v.SetDefault("providers.kokoro.base_url", "http://127.0.0.1:8880")
	v.SetDefault("providers.kokoro.timeout", "60s")

	v.SetDefault("providers.automatic1111.base_url", "http://127.0.0.1:7860")
	v.SetDefault("providers.automatic1111.auth", "")
	v.SetDefault("providers.automatic1111.timeout", "300s")

	v.SetDefault("video.poll_interval", "2s")
	v.SetDefault("video.max_attempts", 45)

	v.SetDefault("conversation.history_limit", 20)
	v.SetDefault("conversation.chat_memory_window", 12)
	v.SetDefault("conversation.memory_write_max_len", 280)
	v.SetDefault("conversation.fallback_model", "llama3")
	v.SetDefault("conversation.title_max_len", 40)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.user_id", "")
}

// Redacted returns a copy safe to print: credentials are masked.
func (c Config) Redacted() Config {
	c.Providers.OpenAI.APIKey = mask(c.Providers.OpenAI.APIKey)
	c.Providers.Automatic1111.Auth = mask(c.Providers.Automatic1111.Auth)
	c.Telegram.BotToken = mask(c.Telegram.BotToken)
	if c.Database.Type == "postgres" {
		c.Database.DSN = mask(c.Database.DSN)
	}
	return c
}

// Secrets lists the configured credentials the logger must never print.
func (c Config) Secrets() []string {
	secrets := []string{c.Providers.OpenAI.APIKey, c.Providers.Automatic1111.Auth, c.Telegram.BotToken}
	if c.Database.Type == "postgres" {
		secrets = append(secrets, c.Database.DSN)
	}
	return secrets
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-2:]
}
