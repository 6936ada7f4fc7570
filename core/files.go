package core

import (
	"context"
	"errors"
	"io"
)

var ErrFileNotFound = errors.New("file not found")

// FileStorage stores uploaded document contents under a key.
type FileStorage interface {
	// Save writes r under key and returns the path recorded for the document.
	Save(ctx context.Context, key string, r io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}
