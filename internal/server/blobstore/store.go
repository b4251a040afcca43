// Package blobstore keeps encrypted attachment blobs. The bytes handed to a
// Store are already ciphertext; stores never see plaintext.
package blobstore

import "context"

// Store is a flat key/value object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns common.ErrorNotFound for unknown keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
