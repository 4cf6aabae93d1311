package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
)

// GCSDownloader fetches gs://bucket/object sources using application default credentials
type GCSDownloader struct {
	client *storage.Client
}

// NewGCSDownloader creates a Cloud Storage client
func NewGCSDownloader(ctx context.Context) (*GCSDownloader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSDownloader{client: client}, nil
}

// Download implements Downloader
func (g *GCSDownloader) Download(ctx context.Context, u *url.URL, w io.Writer) error {
	bucket, object, err := bucketObject(u)
	if err != nil {
		return err
	}
	reader, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()
	_, err = io.Copy(w, reader)
	return err
}

// Close releases the storage client
func (g *GCSDownloader) Close() error {
	return g.client.Close()
}
