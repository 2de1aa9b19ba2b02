package core

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

type (
	// Cache is a small key/value store with expirations (redis in production).
	Cache interface {
		Get(ctx context.Context, key string) ([]byte, error)
		Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
		// SetNX sets key only if it does not exist yet and reports whether it did.
		SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)
		// Incr increments a counter; ttl is applied when the counter is created.
		Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
		Delete(ctx context.Context, keys ...string) error
	}

	// FileStorage stores uploaded files and returns their public URL.
	FileStorage interface {
		Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error)
		Delete(ctx context.Context, url string) error
	}
)

// Upload is a file received from a client, waiting to be stored.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}
