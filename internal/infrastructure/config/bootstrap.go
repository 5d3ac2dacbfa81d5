package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name
const AppName = "assistant"

// HomeDir returns the configuration home: ~/.assistant
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures the home directory exists with a starter config.
// Existing files are never overwritten.
func Bootstrap(root string, logger *zap.Logger) error {
	for _, dir := range []string{root, filepath.Join(root, "media")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	path := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		logger.Debug("Assistant home directory OK", zap.String("home", root))
		return nil
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	logger.Info("Wrote starter config", zap.String("path", path))
	return nil
}

const defaultConfig = `# Personal assistant configuration.
# Every key can be overridden with an ASSISTANT_ environment variable,
# e.g. ASSISTANT_PROVIDERS_OPENAI_API_KEY.

server:
  port: 8080
  user_header: X-User-Id

database:
  type: sqlite

providers:
  ollama:
    base_url: http://127.0.0.1:11434
  openai:
    api_key: ""
  kokoro:
    base_url: http://127.0.0.1:8880
  automatic1111:
    base_url: http://127.0.0.1:7860

telegram:
  bot_token: ""
  allow_ids: []
  user_id: ""
`
