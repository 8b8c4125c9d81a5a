// Package storage provides the sinks chunk files are written to.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts where exported chunk files end up.
// Implementations include the local filesystem and S3.
type ObjectStorage interface {
	// Put stores data at objectPath. A failed Put never leaves a partial
	// object behind.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)

	// Location renders objectPath the way a user would address it.
	Location(objectPath string) string
}
