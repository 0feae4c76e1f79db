// Package storage keeps rendered report files and signs their download links.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/noah-isme/sma-library-api/pkg/config"
)

// Driver names accepted in STORAGE_DRIVER.
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// Store is a flat object store addressed by relative names.
type Store interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	CleanupOlderThan(ctx context.Context, ttl time.Duration) ([]string, error)
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", DriverLocal:
		return NewLocalStorage(cfg.LocalDir)
	case DriverS3:
		return NewS3Storage(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3KeyID,
			SecretAccessKey: cfg.S3Secret,
			Endpoint:        cfg.S3Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
