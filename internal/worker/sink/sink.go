package sink

import "context"

// Sink stores published artifacts by key. Put must be atomic per key: a
// reader sees either the previous content or the new one, never a partial write.
type Sink interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}
