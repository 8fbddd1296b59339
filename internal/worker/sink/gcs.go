package sink

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"cloud.google.com/go/storage"
)

// GCSSink publishes artifacts as objects in a Cloud Storage bucket.
// An object only becomes visible once its writer is closed successfully.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewGCSSink wraps an existing storage client
func NewGCSSink(client *storage.Client, bucket, prefix string, logger *slog.Logger) *GCSSink {
	return &GCSSink{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}
}

// ObjectName returns the object backing a key
func (s *GCSSink) ObjectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put uploads data under the key, replacing any previous object
func (s *GCSSink) Put(ctx context.Context, key, contentType string, data []byte) error {
	name := s.ObjectName(key)

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", name, err)
	}

	if s.logger != nil {
		s.logger.Debug("Object published",
			slog.String("bucket", s.bucket),
			slog.String("object", name),
			slog.Int("size", len(data)),
		)
	}

	return nil
}
