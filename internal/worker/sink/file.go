package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileSink publishes artifacts as files in a single directory
type FileSink struct {
	dir    string
	logger *slog.Logger
}

// NewFileSink creates the directory if needed and returns a sink rooted at it
func NewFileSink(dir string, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sink directory: %w", err)
	}

	return &FileSink{dir: dir, logger: logger}, nil
}

// Path returns the file backing a key
func (s *FileSink) Path(key string) string {
	return filepath.Join(s.dir, key)
}

// Put writes to a temporary file in the same directory and renames it over
// the destination, so readers never observe a partially written file.
func (s *FileSink) Put(ctx context.Context, key, _ string, data []byte) error {
	if key == "" || filepath.Base(key) != key {
		return fmt.Errorf("invalid sink key %q", key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish file: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("File published",
			slog.String("path", s.Path(key)),
			slog.Int("size", len(data)),
		)
	}

	return nil
}
