package sink

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink_Put(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "resized")
	s, err := NewFileSink(dir, nil)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "job-1.png", "image/png", []byte("first")))

	data, err := os.ReadFile(s.Path("job-1.png"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	info, err := os.Stat(s.Path("job-1.png"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestFileSink_PutOverwrites(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "job-1.jpeg", "image/jpeg", []byte("first")))
	require.NoError(t, s.Put(ctx, "job-1.jpeg", "image/jpeg", []byte("second")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files or duplicates should remain")
	assert.Equal(t, "job-1.jpeg", entries[0].Name())

	data, err := os.ReadFile(s.Path("job-1.jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestFileSink_PutRejectsNestedKeys(t *testing.T) {
	s, err := NewFileSink(t.TempDir(), nil)
	require.NoError(t, err)

	for _, key := range []string{"", "a/b.png", "../escape.png"} {
		assert.Error(t, s.Put(context.Background(), key, "image/png", []byte("x")), key)
	}
}

func TestFileSink_ConcurrentDifferentKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir, nil)
	require.NoError(t, err)

	keys := []string{"a.png", "b.png", "c.png", "d.png", "e.png"}
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			assert.NoError(t, s.Put(context.Background(), key, "image/png", []byte(key)))
		}(key)
	}
	wg.Wait()

	for _, key := range keys {
		data, err := os.ReadFile(s.Path(key))
		require.NoError(t, err)
		assert.Equal(t, key, string(data))
	}
}

func TestFileSink_CanceledContext(t *testing.T) {
	s, err := NewFileSink(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "a.png", "image/png", []byte("x")), context.Canceled)
}

func TestGCSSink_ObjectName(t *testing.T) {
	assert.Equal(t, "resized/job-1.png", NewGCSSink(nil, "bucket", "resized", nil).ObjectName("job-1.png"))
	assert.Equal(t, "job-1.png", NewGCSSink(nil, "bucket", "", nil).ObjectName("job-1.png"))
}
