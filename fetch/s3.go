package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Downloader fetches s3://bucket/object sources from an S3 compatible store
type S3Downloader struct {
	client *minio.Client
}

// NewS3Downloader connects to endpoint with static credentials
func NewS3Downloader(endpoint, accessKey, secretKey, region string, secure bool) (*S3Downloader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init S3 client: %w", err)
	}
	return &S3Downloader{client: client}, nil
}

// Download implements Downloader
func (s *S3Downloader) Download(ctx context.Context, u *url.URL, w io.Writer) error {
	bucket, object, err := bucketObject(u)
	if err != nil {
		return err
	}
	obj, err := s.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()
	_, err = io.Copy(w, obj)
	return err
}

// bucketObject splits scheme://bucket/object/key
func bucketObject(u *url.URL) (string, string, error) {
	object := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || object == "" {
		return "", "", fmt.Errorf("expected %s://bucket/object, got %s", u.Scheme, u.String())
	}
	return u.Host, object, nil
}
