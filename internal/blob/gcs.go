package blob

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSProvider archives pages to a Google Cloud Storage bucket.
// Authentication is handled via Application Default Credentials.
type GCSProvider struct {
	client     *storage.Client
	bucketName string
}

// NewGCSProvider initializes a GCS client and verifies bucket access so a
// misconfigured bucket fails at startup rather than mid-run.
func NewGCSProvider(ctx context.Context, bucketName string) (*GCSProvider, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", bucketName, err)
	}
	return &GCSProvider{client: client, bucketName: bucketName}, nil
}

// Save uploads data to the named object. Close finalizes the upload, so its
// error is the one that matters.
func (g *GCSProvider) Save(ctx context.Context, objectName string, data []byte) error {
	wc := g.client.Bucket(g.bucketName).Object(objectName).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write gcs object %s: %w", objectName, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finalize gcs object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the GCS client.
func (g *GCSProvider) Close() error {
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
