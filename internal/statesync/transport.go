package statesync

import (
	"context"
	"io"
	"time"
)

// Object describes a single remote object as reported by a listing.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Transport provides an interface for the remote object store.
// Keys are forward-slash paths relative to the bucket root; implementations
// must not interpret them beyond prefix matching. All operations use
// io.Reader/io.Writer for streaming to support large files without loading
// them entirely into memory.
type Transport interface {
	// List returns all objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Get retrieves the object at key and writes it to w.
	Get(ctx context.Context, key string, w io.Writer) error

	// Put stores content at key, overwriting any existing object.
	// size is the number of bytes that will be read from r.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys []string) error
}
