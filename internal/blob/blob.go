// Package blob provides bucket-scoped object storage for file_system tools.
package blob

import (
	"context"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the object storage surface used by the file_system tool gateway.
// Keys are slash-separated paths scoped to a bucket.
type Store interface {
	// Upload writes an object, replacing any existing content.
	Upload(ctx context.Context, bucket, key string, data []byte) error
	// Download reads an object's content.
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	// Delete removes an object.
	Delete(ctx context.Context, bucket, key string) error
	// List returns the objects under the given prefix. An empty prefix
	// lists the whole bucket.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
