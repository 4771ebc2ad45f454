package sink

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/storage/local"
)

type recordingSink struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *recordingSink) WriteImage(_ context.Context, name string, _ []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.names = append(r.names, name)
	return "id:" + name, nil
}

func TestStorageSink(t *testing.T) {
	log := logger.NewTestLogger()
	store, err := local.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)

	s := NewStorageSink(store, "/images/", log)
	id, err := s.WriteImage(context.Background(), "report/page-1.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "images/report/page-1.png", id)

	r, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestScoped(t *testing.T) {
	rec := &recordingSink{}
	a := Scoped(rec, "a")
	b := Scoped(rec, "/b/")

	_, err := a.WriteImage(context.Background(), "img-1.png", nil)
	require.NoError(t, err)
	_, err = b.WriteImage(context.Background(), "img-1.png", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/img-1.png", "b/img-1.png"}, rec.names)

	id, err := Scoped(nil, "a").WriteImage(context.Background(), "img.png", nil)
	require.NoError(t, err)
	assert.Equal(t, "img.png", id)
}

func TestDeduplicate(t *testing.T) {
	rec := &recordingSink{}
	d := Deduplicate(rec)

	first, err := d.WriteImage(context.Background(), "doc/img-1.png", []byte("1"))
	require.NoError(t, err)
	second, err := d.WriteImage(context.Background(), "doc/img-1.png", []byte("1"))
	require.NoError(t, err)
	_, err = d.WriteImage(context.Background(), "doc/img-2.png", []byte("2"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"doc/img-1.png", "doc/img-2.png"}, rec.names)
}

func TestDeduplicateDoesNotRememberFailures(t *testing.T) {
	rec := &recordingSink{err: errors.New("disk full")}
	d := Deduplicate(rec)

	_, err := d.WriteImage(context.Background(), "img.png", nil)
	assert.Error(t, err)

	rec.err = nil
	id, err := d.WriteImage(context.Background(), "img.png", nil)
	require.NoError(t, err)
	assert.Equal(t, "id:img.png", id)
}

// gatedSink holds every write until release is closed
type gatedSink struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSink) WriteImage(_ context.Context, name string, _ []byte) (string, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	<-g.release
	return "id:" + name, nil
}

func TestDeduplicateConcurrentWritesReachSinkOnce(t *testing.T) {
	gate := &gatedSink{entered: make(chan struct{}), release: make(chan struct{})}
	d := Deduplicate(gate)

	const writers = 8
	ids := make([]string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := d.WriteImage(context.Background(), "doc/img-1.png", []byte("1"))
			assert.NoError(t, err)
			ids[i] = id
		}()
	}

	<-gate.entered
	close(gate.release)
	wg.Wait()

	assert.Equal(t, int32(1), gate.calls.Load())
	for _, id := range ids {
		assert.Equal(t, "id:doc/img-1.png", id)
	}
}

func TestDeduplicateWaiterHonorsContext(t *testing.T) {
	gate := &gatedSink{entered: make(chan struct{}), release: make(chan struct{})}
	d := Deduplicate(gate)

	go func() { _, _ = d.WriteImage(context.Background(), "img.png", nil) }()
	<-gate.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.WriteImage(ctx, "img.png", nil)
	assert.ErrorIs(t, err, context.Canceled)

	close(gate.release)
}
