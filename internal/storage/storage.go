// Package storage declares the blob store contract used for the library
// document and the image cache.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject for a missing key.
var ErrNotFound = errors.New("object not found")

// Object is a stored blob and its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// BlobStore persists opaque objects by key.
type BlobStore interface {
	// PutObject writes r under path and returns a URI for the object.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// GetObject reads the object under path or fails with ErrNotFound.
	GetObject(ctx context.Context, path string) (Object, error)
}
