package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := NewLogger(Config{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestNewLogger_FallsBackOnBadValues(t *testing.T) {
	log, err := NewLogger(Config{Level: "loud", Format: "xml"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLogger_ScrubsSecrets(t *testing.T) {
	const token = "123456:ABC-bot-token"
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := NewLogger(Config{Level: "info", OutputPath: path, Secrets: []string{token, "sk-live-key", "", "x"}})
	require.NoError(t, err)

	scoped := log.With(zap.String("endpoint", "https://api.telegram.org/bot"+token+"/getMe"))
	scoped.Warn("Request failed for sk-live-key",
		zap.Error(errors.New(`Post "https://api.telegram.org/bot`+token+`/sendMessage": EOF`)),
		zap.String("detail", "key sk-live-key rejected"),
		zap.Int("attempt", 2),
	)
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, token)
	assert.NotContains(t, out, "sk-live-key")
	assert.Contains(t, out, "/bot"+Redacted+"/sendMessage")
	assert.Contains(t, out, `"attempt":2`)
	assert.Equal(t, 4, strings.Count(out, Redacted))
}

func TestNewLogger_ShortSecretsIgnored(t *testing.T) {
	assert.Nil(t, newReplacer([]string{"", "abc", "  "}))
	assert.NotNil(t, newReplacer([]string{"abcdef"}))
}
