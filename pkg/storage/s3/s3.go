package s3

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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfg "github.com/feichai0017/pdf-dispatcher/config"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

// API is the part of *s3.Client the storage uses
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Storage keeps objects in one bucket below an optional key prefix. Keys handed to and
// returned from the Storage methods never include the prefix.
type S3Storage struct {
	client     API
	bucketName string
	prefix     string
	logger     logger.Logger
}

func NewS3StorageWithClient(client API, bucket, prefix string, log logger.Logger) *S3Storage {
	return &S3Storage{
		client:     client,
		bucketName: bucket,
		prefix:     strings.Trim(prefix, "/"),
		logger:     log.Named("s3"),
	}
}

func (s *S3Storage) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Storage) storageKey(objectKey string) string {
	if s.prefix == "" {
		return objectKey
	}
	return strings.TrimPrefix(objectKey, s.prefix+"/")
}

// Store implements storage.Storage
func (s *S3Storage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
		Body:   reader,
	}
	if strings.HasSuffix(key, ".json") {
		input.ContentType = aws.String("application/json")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.logger.Error("Failed to store object to S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store object: %w", err)
	}
	return key, nil
}

// Get implements storage.Storage. A missing key yields an error wrapping os.ErrNotExist.
func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("failed to get object %s: %w", key, os.ErrNotExist)
		}
		s.logger.Error("Failed to get object from S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return result.Body, nil
}

func (s *S3Storage) walk(ctx context.Context, prefix string, fn func(key string, modified time.Time)) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
	}
	p := strings.TrimPrefix(prefix, "/")
	if s.prefix != "" {
		p = s.prefix + "/" + p
	}
	if p != "" {
		input.Prefix = aws.String(p)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			fn(s.storageKey(key), aws.ToTime(obj.LastModified))
		}
	}
	return nil
}

// List implements storage.Storage
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.walk(ctx, prefix, func(key string, _ time.Time) {
		keys = append(keys, key)
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements storage.Storage
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	}); err != nil {
		s.logger.Error("Failed to delete object from S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// CleanupBefore implements storage.Storage. Only objects below the key prefix are touched.
func (s *S3Storage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	var expired []string
	err := s.walk(ctx, "", func(key string, modified time.Time) {
		if !modified.IsZero() && modified.Before(threshold) {
			expired = append(expired, key)
		}
	})
	if err != nil {
		s.logger.Error("Failed to list objects",
			logger.String("bucket", s.bucketName),
			logger.Error(err),
		)
		return err
	}

	var errs []error
	for _, key := range expired {
		if err := s.Delete(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Info("Deleted expired object", logger.String("key", key))
	}
	return errors.Join(errs...)
}

// NewS3Storage connects to the bucket described by sc and checks that it exists
func NewS3Storage(ctx context.Context, sc *cfg.S3Config, log logger.Logger) (*S3Storage, error) {
	if sc.BucketName == "" {
		return nil, errors.New("s3 bucket name is required")
	}

	log.Info("S3 configuration",
		logger.String("bucket", sc.BucketName),
		logger.String("region", sc.Region),
		logger.String("endpoint", sc.Endpoint),
		logger.String("prefix", sc.KeyPrefix),
	)

	opts := []func(*config.LoadOptions) error{config.WithRegion(sc.Region)}
	if sc.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(sc.BucketName),
	}); err != nil {
		return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
	}

	return NewS3StorageWithClient(client, sc.BucketName, sc.KeyPrefix, log), nil
}

// GetClient builds the storage from the AWS_* environment
func GetClient(ctx context.Context, log logger.Logger) (*S3Storage, error) {
	return NewS3Storage(ctx, cfg.GetS3Config(), log)
}
