// Package storage defines the blob store surface for rendered documents.
package storage

import (
	"context"
	"io"
)

// BlobStore persists document bytes and returns a URI for the stored object.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
