package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalProvider archives pages under a directory on the local filesystem.
// Useful for development and debugging scrapes without cloud credentials.
type LocalProvider struct {
	baseDir string
}

// NewLocalProvider creates the base directory if needed.
func NewLocalProvider(baseDir string) (*LocalProvider, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", baseDir, err)
	}
	return &LocalProvider{baseDir: baseDir}, nil
}

// Save writes data to baseDir/objectName, creating parent directories.
func (l *LocalProvider) Save(_ context.Context, objectName string, data []byte) error {
	path := filepath.Join(l.baseDir, filepath.FromSlash(objectName))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write object %s: %w", objectName, err)
	}
	return nil
}

// Close is a no-op for the filesystem backend.
func (l *LocalProvider) Close() error { return nil }
