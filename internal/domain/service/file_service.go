package service

import (
	"context"
	"io"
)

// BlobStore stores attachment bytes under caller-chosen keys.
type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	DownloadURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL recovers the object key from a download URL produced by this store.
	KeyFromURL(url string) (string, error)
	Close() error
}
