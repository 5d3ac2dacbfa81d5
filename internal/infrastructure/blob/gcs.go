package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// GCSStore Google Cloud Storage 存储
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

var _ repository.BlobStore = (*GCSStore)(nil)

// NewGCSStore 创建 GCS 存储
func NewGCSStore(ctx context.Context, cfg config.BlobConfig, logger *zap.Logger) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob bucket is empty")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return newGCSStore(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newGCSStore(client *storage.Client, bucket, prefix string, logger *zap.Logger) *GCSStore {
	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
		logger: logger.With(zap.String("component", "blob-gcs"), zap.String("bucket", bucket)),
	}
}

func (s *GCSStore) objectName(handle string) string {
	if s.prefix == "" {
		return handle
	}
	return path.Join(s.prefix, handle)
}

// Store 上传字节并返回句柄 (句柄不含前缀)
func (s *GCSStore) Store(ctx context.Context, data []byte, ext string) (string, error) {
	handle := newHandle(s.now(), ext)
	w := s.client.Bucket(s.bucket).Object(s.objectName(handle)).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", domainErrors.NewInternalErrorWithCause("failed to upload blob", err)
	}
	if err := w.Close(); err != nil {
		return "", domainErrors.NewInternalErrorWithCause("failed to finalize blob", err)
	}
	s.logger.Debug("Blob uploaded", zap.String("handle", handle), zap.Int("bytes", len(data)))
	return handle, nil
}

// Read 下载句柄对应的对象
func (s *GCSStore) Read(ctx context.Context, handle string) ([]byte, error) {
	if err := validHandle(handle); err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(handle)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, domainErrors.NewNotFoundError("blob not found")
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to open blob", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to read blob", err)
	}
	return data, nil
}

// Close 关闭底层客户端
func (s *GCSStore) Close() error {
	return s.client.Close()
}
