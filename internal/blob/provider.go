// Package blob defines the interface for archiving raw fetched pages.
// The abstraction keeps the scraper independent of a specific backend
// (Google Cloud Storage, the local filesystem, or nothing at all).
package blob

import (
	"context"
)

// Provider abstracts saving a fetched page under an object key.
type Provider interface {
	// Save stores data under the given object key.
	Save(ctx context.Context, objectName string, data []byte) error

	// Close releases any client resources.
	Close() error
}

// NoOpProvider discards everything. Used when page archival is disabled.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}

// Close for NoOpProvider does nothing and returns nil.
func (n *NoOpProvider) Close() error { return nil }
