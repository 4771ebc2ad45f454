package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/internal/utils/validator"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/storage"
)

// StorageCollection serves the PDF objects stored under a prefix of a storage backend.
// Identifiers are the object keys.
type StorageCollection struct {
	store     storage.Storage
	prefix    string
	validator *validator.DocumentValidator
	logger    logger.Logger
}

func NewStorageCollection(store storage.Storage, prefix string, v *validator.DocumentValidator, log logger.Logger) *StorageCollection {
	if v == nil {
		v = validator.NewDocumentValidator(log, nil)
	}
	return &StorageCollection{
		store:     store,
		prefix:    strings.TrimLeft(prefix, "/"),
		validator: v,
		logger:    log.Named("storage-source"),
	}
}

func (s *StorageCollection) List(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", s.prefix, err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if isPDFName(key) {
			ids = append(ids, key)
		}
	}
	s.logger.Debug("Listed source prefix",
		logger.String("prefix", s.prefix),
		logger.Int("objects", len(keys)),
		logger.Int("documents", len(ids)),
	)
	return ids, nil
}

func (s *StorageCollection) Load(ctx context.Context, id string) (*models.Document, error) {
	rc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	limit := s.validator.MaxFileSize()
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}
	if err := s.validator.Validate(id, data).Err(); err != nil {
		return nil, err
	}
	return &models.Document{ID: id, Data: data}, nil
}
