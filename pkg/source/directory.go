package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/internal/utils/validator"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

// DirectoryCollection serves the PDF files below a local directory. Identifiers are
// slash-separated paths relative to the root.
type DirectoryCollection struct {
	root      string
	recursive bool
	validator *validator.DocumentValidator
	logger    logger.Logger
}

type DirectoryOption func(*DirectoryCollection)

// Recursive descends into subdirectories. Hidden directories are always skipped.
func Recursive() DirectoryOption {
	return func(d *DirectoryCollection) {
		d.recursive = true
	}
}

func NewDirectoryCollection(root string, v *validator.DocumentValidator, log logger.Logger, opts ...DirectoryOption) (*DirectoryCollection, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("source directory is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", root)
	}
	if v == nil {
		v = validator.NewDocumentValidator(log, nil)
	}

	d := &DirectoryCollection{
		root:      root,
		validator: v,
		logger:    log.Named("directory-source"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *DirectoryCollection) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == d.root {
			return nil
		}
		if entry.IsDir() {
			if !d.recursive || isHidden(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if isHidden(p) || !entry.Type().IsRegular() || !isPDFName(p) {
			return nil
		}

		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}

	sort.Strings(ids)
	d.logger.Debug("Listed source directory",
		logger.String("root", d.root),
		logger.Int("documents", len(ids)),
	)
	return ids, nil
}

func (d *DirectoryCollection) Load(ctx context.Context, id string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := path.Clean("/" + id)[1:]
	if clean == "" || clean != id {
		return nil, fmt.Errorf("invalid document id %q", id)
	}
	p := filepath.Join(d.root, filepath.FromSlash(clean))

	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", id, err)
	}
	if limit := d.validator.MaxFileSize(); limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%w %s: file size %d exceeds maximum limit of %d bytes",
			validator.ErrInvalidDocument, id, info.Size(), limit)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}
	if err := d.validator.Validate(id, data).Err(); err != nil {
		return nil, err
	}
	return &models.Document{ID: id, Data: data}, nil
}

func isHidden(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".")
}
