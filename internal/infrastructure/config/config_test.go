package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 2*time.Second, cfg.Video.PollInterval)
	assert.Equal(t, 45, cfg.Video.MaxAttempts)
	assert.Equal(t, 20, cfg.Conversation.HistoryLimit)
	assert.Equal(t, 12, cfg.Conversation.ChatMemoryWindow)
	assert.Equal(t, 280, cfg.Conversation.MemoryWriteMaxLen)
	assert.Equal(t, "llama3", cfg.Conversation.FallbackModel)
	assert.Equal(t, 40, cfg.Conversation.TitleMaxLen)
	assert.Equal(t, "http://127.0.0.1:7860", cfg.Providers.Automatic1111.BaseURL)
	assert.False(t, cfg.Telegram.Enabled())
}

func TestLoadFrom_LocalOverridesGlobal(t *testing.T) {
	global := t.TempDir()
	local := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(global, "config.yaml"), []byte("server:\n  port: 9000\nlog:\n  level: debug\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(local, "config.yaml"), []byte("server:\n  port: 9100\n"), 0o600))

	cfg, err := LoadFrom(global, local)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("ASSISTANT_PROVIDERS_OPENAI_API_KEY", "sk-from-env")
	t.Setenv("ASSISTANT_VIDEO_MAX_ATTEMPTS", "3")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, 3, cfg.Video.MaxAttempts)
}

func TestRedacted(t *testing.T) {
	cfg := Config{}
	cfg.Providers.OpenAI.APIKey = "sk-1234567890abcdef"
	cfg.Telegram.BotToken = "short"

	r := cfg.Redacted()
	assert.Equal(t, "sk-1****ef", r.Providers.OpenAI.APIKey)
	assert.Equal(t, "****", r.Telegram.BotToken)
	assert.Equal(t, "sk-1234567890abcdef", cfg.Providers.OpenAI.APIKey, "original untouched")
}

func TestSecrets(t *testing.T) {
	cfg := Config{}
	cfg.Providers.OpenAI.APIKey = "sk-abc"
	cfg.Telegram.BotToken = "123:tok"
	cfg.Database.Type = "sqlite"
	cfg.Database.DSN = "assistant.db"
	assert.NotContains(t, cfg.Secrets(), "assistant.db")
	assert.Contains(t, cfg.Secrets(), "123:tok")

	cfg.Database.Type = "postgres"
	cfg.Database.DSN = "postgres://u:pw@db/assistant"
	assert.Contains(t, cfg.Secrets(), "postgres://u:pw@db/assistant")
}

func TestBootstrap_WritesOnce(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".assistant")
	logger := zap.NewNop()

	require.NoError(t, Bootstrap(root, logger))
	path := filepath.Join(root, "config.yaml")
	require.FileExists(t, path)
	require.DirExists(t, filepath.Join(root, "media"))

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 1\n"), 0o600))
	require.NoError(t, Bootstrap(root, logger))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "server:\n  port: 1\n", string(data))
}
