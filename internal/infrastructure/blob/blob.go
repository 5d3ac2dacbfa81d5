// Package blob stores generated media bytes behind opaque handles.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// New 根据配置选择存储后端
func New(ctx context.Context, cfg config.BlobConfig, logger *zap.Logger) (repository.BlobStore, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFSStore(cfg.RootDir, logger)
	case "gcs":
		return NewGCSStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.Backend)
	}
}

// newHandle builds "2026/10/<uuid>.ext". Handles are relative, slash-separated
// and never contain "..".
func newHandle(now time.Time, ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(now.UTC().Format("2006/01"), uuid.New().String()+ext)
}

// validHandle rejects anything that could escape the store root.
func validHandle(handle string) error {
	if handle == "" || strings.HasPrefix(handle, "/") || strings.Contains(handle, "\\") {
		return domainErrors.NewInvalidInputError("invalid blob handle")
	}
	if path.Clean(handle) != handle {
		return domainErrors.NewInvalidInputError("invalid blob handle")
	}
	for _, part := range strings.Split(handle, "/") {
		if part == ".." || part == "." {
			return domainErrors.NewInvalidInputError("invalid blob handle")
		}
	}
	return nil
}
