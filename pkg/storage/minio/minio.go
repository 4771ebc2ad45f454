package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cfg "github.com/feichai0017/pdf-dispatcher/config"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

// MinioStorage keeps objects in one bucket below an optional key prefix, like the S3 backend
type MinioStorage struct {
	client     *minio.Client
	bucketName string
	prefix     string
	logger     logger.Logger
}

func (m *MinioStorage) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if m.prefix == "" {
		return key
	}
	return path.Join(m.prefix, key)
}

func isNotFound(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// Store implements storage.Storage
func (m *MinioStorage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	opts := minio.PutObjectOptions{}
	if strings.HasSuffix(key, ".json") {
		opts.ContentType = "application/json"
	}
	if _, err := m.client.PutObject(ctx, m.bucketName, m.objectKey(key), reader, -1, opts); err != nil {
		m.logger.Error("Failed to store object to MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store object: %w", err)
	}
	return key, nil
}

// Get implements storage.Storage. The object is stat'ed first so a missing key fails here
// with os.ErrNotExist instead of on the first read.
func (m *MinioStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, m.objectKey(key), minio.GetObjectOptions{})
	if err == nil {
		_, err = obj.Stat()
		if err != nil {
			obj.Close()
		}
	}
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("failed to get object %s: %w", key, os.ErrNotExist)
		}
		m.logger.Error("Failed to get object from MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

func (m *MinioStorage) listPrefix(prefix string) string {
	p := strings.TrimPrefix(prefix, "/")
	if m.prefix != "" {
		p = m.prefix + "/" + p
	}
	return p
}

// List implements storage.Storage
func (m *MinioStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	opts := minio.ListObjectsOptions{Prefix: m.listPrefix(prefix), Recursive: true}
	for obj := range m.client.ListObjects(ctx, m.bucketName, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		keys = append(keys, strings.TrimPrefix(obj.Key, m.listPrefix("")))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements storage.Storage
func (m *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucketName, m.objectKey(key), minio.RemoveObjectOptions{}); err != nil {
		m.logger.Error("Failed to delete object from MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// CleanupBefore implements storage.Storage. Only objects below the key prefix are touched.
func (m *MinioStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	var errs []error
	opts := minio.ListObjectsOptions{Prefix: m.listPrefix(""), Recursive: true}
	for obj := range m.client.ListObjects(ctx, m.bucketName, opts) {
		if obj.Err != nil {
			m.logger.Error("Error listing objects",
				logger.String("bucket", m.bucketName),
				logger.Error(obj.Err),
			)
			return fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if !obj.LastModified.Before(threshold) {
			continue
		}
		key := strings.TrimPrefix(obj.Key, m.listPrefix(""))
		if err := m.Delete(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		m.logger.Info("Deleted expired object",
			logger.String("key", key),
			logger.Time("lastModified", obj.LastModified),
		)
	}
	return errors.Join(errs...)
}

// NewMinioStorage connects to mc and creates its bucket when missing
func NewMinioStorage(ctx context.Context, mc *cfg.MinioConfig, log logger.Logger) (*MinioStorage, error) {
	client, err := minio.New(mc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
		Secure: mc.UseSSL,
		Region: mc.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, mc.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, mc.BucketName, minio.MakeBucketOptions{Region: mc.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info("Created bucket", logger.String("bucket", mc.BucketName))
	}

	return &MinioStorage{
		client:     client,
		bucketName: mc.BucketName,
		prefix:     strings.Trim(mc.KeyPrefix, "/"),
		logger:     log.Named("minio"),
	}, nil
}

// GetClient builds the storage from the MINIO_* environment
func GetClient(ctx context.Context, log logger.Logger) (*MinioStorage, error) {
	return NewMinioStorage(ctx, cfg.GetMinioConfig(), log)
}
