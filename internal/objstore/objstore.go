// Package objstore stores exam blobs by key.
package objstore

import (
	"context"
)

// ContentTypeJSON is the content type every exam blob is uploaded with.
const ContentTypeJSON = "application/json"

// Store is a flat key/value object store. Get returns an error wrapping
// model.ErrNotFound for unknown keys; Delete of an unknown key succeeds.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
