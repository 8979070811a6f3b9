package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is not stored in the namespace.
	ErrNotFound = errors.New("cache entry not found")
	// ErrCorrupt is returned by Get when a stored entry cannot be decoded.
	ErrCorrupt = errors.New("cache entry corrupt")
	// ErrClosed is returned when using a store after Close.
	ErrClosed = errors.New("cache store closed")
)

// Store is a namespaced persistent key-value store for HTTP responses.
// Keys are canonical request URLs.
//
// Operations on a single key are atomic and the last write wins.
// Implementations must be thread-safe!
type Store interface {
	// Open creates the namespace if it does not exist yet.
	Open(ctx context.Context, namespace string) error
	// Get returns the entry stored under the key.
	// It returns ErrNotFound if there is none.
	Get(ctx context.Context, namespace, key string) (Entry, error)
	// Put stores the entry under its URL, replacing any previous entry.
	// The namespace is created if needed.
	Put(ctx context.Context, namespace string, entry Entry) error
	// Delete removes the entry for the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, namespace, key string) error
	// Namespaces lists all existing namespaces.
	Namespaces(ctx context.Context) ([]string, error)
	// Keys lists the keys stored in the namespace.
	Keys(ctx context.Context, namespace string) ([]string, error)
	// DeleteNamespace removes the namespace and everything in it.
	DeleteNamespace(ctx context.Context, namespace string) error
	// Close releases the resources held by the store.
	Close() error
}

// Entry is a stored response.
// Only the header lifetime is kept, the expiry is computed when the entry is read
// so that a changed override applies to already stored entries.
type Entry struct {
	// Canonical URL of the request, which is also the key.
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Time the response was stored.
	CachedAt time.Time
	// Lifetime granted by the response headers, in seconds.
	CacheControlSeconds int64
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	c := e
	c.Header = e.Header.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return c
}

// AssetNamespace returns the versioned namespace for application assets.
func AssetNamespace(app, version string) string {
	return app + "-" + version
}

// TileNamespace returns the namespace for map tiles, which survives version changes.
func TileNamespace(app string) string {
	return app + "-tiles"
}
