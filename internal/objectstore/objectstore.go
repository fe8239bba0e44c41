// Package objectstore holds binary artifacts: proof-of-payment documents
// uploaded by regions, referenced from payment batches by key.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Store is the object persistence boundary. Keys are opaque to callers; the
// store generates them on Put and hands out presigned links on URL.
type Store interface {
	Put(ctx context.Context, prefix, filename, contentType string, size int64, body io.Reader) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
}
