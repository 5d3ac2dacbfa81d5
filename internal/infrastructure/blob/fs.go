package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/repository"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// FSStore 本地文件系统存储
type FSStore struct {
	root   string
	now    func() time.Time
	logger *zap.Logger
}

var _ repository.BlobStore = (*FSStore)(nil)

// NewFSStore 创建文件系统存储, root 不存在时自动创建
func NewFSStore(root string, logger *zap.Logger) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("blob root_dir is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root, now: time.Now, logger: logger.With(zap.String("component", "blob-fs"))}, nil
}

// Store 写入字节并返回句柄
func (s *FSStore) Store(_ context.Context, data []byte, ext string) (string, error) {
	handle := newHandle(s.now(), ext)
	full := filepath.Join(s.root, filepath.FromSlash(handle))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", domainErrors.NewInternalErrorWithCause("failed to create blob dir", err)
	}
	// 先写临时文件再改名, 读者不会看到半个文件
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", domainErrors.NewInternalErrorWithCause("failed to write blob", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", domainErrors.NewInternalErrorWithCause("failed to commit blob", err)
	}
	s.logger.Debug("Blob stored", zap.String("handle", handle), zap.Int("bytes", len(data)))
	return handle, nil
}

// Read 按句柄读取
func (s *FSStore) Read(_ context.Context, handle string) ([]byte, error) {
	if err := validHandle(handle); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(handle)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domainErrors.NewNotFoundError("blob not found")
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to read blob", err)
	}
	return data, nil
}
