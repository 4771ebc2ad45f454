package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/storage/local"
	"github.com/feichai0017/pdf-dispatcher/pkg/storage/minio"
	"github.com/feichai0017/pdf-dispatcher/pkg/storage/s3"
)

// StorageType selects a storage backend
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
	StorageTypeLocal StorageType = "local"
)

// Storage holds source documents, extracted images and results
type Storage interface {
	// Store writes reader under key and returns the stored key
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get opens the object stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys under prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the object stored under key
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes objects last modified before threshold
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage creates the backend named by storageType. root is only used by the local backend.
func NewStorage(ctx context.Context, storageType StorageType, root string, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.GetClient(ctx, log)
	case StorageTypeMinio:
		return minio.GetClient(ctx, log)
	case StorageTypeLocal, "":
		return local.NewLocalStorage(root, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
