package storage

import (
	"context"
	"io"
)

// Archive keeps raw import uploads for later inspection.
type Archive interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error) // returns canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
