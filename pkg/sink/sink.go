package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/storage"
)

// ImageSink accepts extracted images. Implementations must not block indefinitely.
type ImageSink interface {
	// WriteImage stores data under name and returns the identifier it was stored as
	WriteImage(ctx context.Context, name string, data []byte) (string, error)
}

// StorageSink writes images into a storage backend under a fixed root prefix
type StorageSink struct {
	store  storage.Storage
	root   string
	logger logger.Logger
}

func NewStorageSink(store storage.Storage, root string, log logger.Logger) *StorageSink {
	return &StorageSink{
		store:  store,
		root:   strings.Trim(root, "/"),
		logger: log.Named("sink"),
	}
}

func (s *StorageSink) WriteImage(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(s.root, name)
	id, err := s.store.Store(ctx, bytes.NewReader(data), key)
	if err != nil {
		s.logger.Error("Failed to write image",
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to write image %s: %w", key, err)
	}
	s.logger.Debug("Image written",
		logger.String("key", id),
		logger.Int("bytes", len(data)),
	)
	return id, nil
}

type scoped struct {
	next   ImageSink
	prefix string
}

// Scoped namespaces every write under prefix, so concurrent documents never collide
func Scoped(next ImageSink, prefix string) ImageSink {
	if next == nil {
		return Discard
	}
	return &scoped{next: next, prefix: strings.Trim(prefix, "/")}
}

func (s *scoped) WriteImage(ctx context.Context, name string, data []byte) (string, error) {
	return s.next.WriteImage(ctx, path.Join(s.prefix, name), data)
}

// Deduplicating skips names it has already written; re-running a strategy on the same
// document then does not re-emit images. Concurrent writes of one name reach next once,
// the other callers wait for that write and share its id.
type Deduplicating struct {
	next ImageSink
	mu   sync.Mutex
	seen map[string]*dedupEntry
}

type dedupEntry struct {
	done chan struct{}
	id   string
	err  error
}

func Deduplicate(next ImageSink) *Deduplicating {
	return &Deduplicating{next: next, seen: make(map[string]*dedupEntry)}
}

func (d *Deduplicating) WriteImage(ctx context.Context, name string, data []byte) (string, error) {
	for {
		d.mu.Lock()
		e, ok := d.seen[name]
		if !ok {
			e = &dedupEntry{done: make(chan struct{})}
			d.seen[name] = e
			d.mu.Unlock()
			return d.write(ctx, e, name, data)
		}
		d.mu.Unlock()

		select {
		case <-e.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if e.err == nil {
			return e.id, nil
		}
		// the owner failed and dropped the entry, try again
	}
}

func (d *Deduplicating) write(ctx context.Context, e *dedupEntry, name string, data []byte) (string, error) {
	e.id, e.err = d.next.WriteImage(ctx, name, data)
	if e.err != nil {
		d.mu.Lock()
		delete(d.seen, name)
		d.mu.Unlock()
	}
	close(e.done)
	return e.id, e.err
}

type discard struct{}

func (discard) WriteImage(_ context.Context, name string, _ []byte) (string, error) {
	return name, nil
}

// Discard drops every image
var Discard ImageSink = discard{}
