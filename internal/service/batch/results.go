package batch

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/converters"
	"github.com/feichai0017/pdf-dispatcher/pkg/storage"
)

// StorageResultWriter stores each accepted outcome as <prefix>/<document id>.json
type StorageResultWriter struct {
	store     storage.Storage
	prefix    string
	converter *converters.JSONConverter
}

func NewStorageResultWriter(store storage.Storage, prefix string) *StorageResultWriter {
	return &StorageResultWriter{
		store:     store,
		prefix:    strings.Trim(prefix, "/"),
		converter: converters.NewJSONConverter(),
	}
}

// ResultKey is the storage key the result of documentID is written to
func (w *StorageResultWriter) ResultKey(documentID string) string {
	return path.Join(w.prefix, strings.TrimLeft(documentID, "/")+".json")
}

func (w *StorageResultWriter) WriteResult(ctx context.Context, result *models.DocumentResult) error {
	data, err := w.converter.Marshal(result)
	if err != nil {
		return err
	}
	key := w.ResultKey(result.DocumentID)
	if _, err := w.store.Store(ctx, bytes.NewReader(data), key); err != nil {
		return fmt.Errorf("failed to store result %s: %w", key, err)
	}
	return nil
}
