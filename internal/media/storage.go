package media

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/unclebandit/broadcast-dispatcher/internal/config"
)

// MinioLister lists a user's private folder in an S3-compatible bucket.
type MinioLister struct {
	client *minio.Client
	bucket string
}

func NewMinioLister(cfg config.StorageConfig) (*MinioLister, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is empty")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &MinioLister{client: client, bucket: cfg.Bucket}, nil
}

func (l *MinioLister) ListObjects(ctx context.Context, prefix string) ([]Object, error) {
	// Cancelling stops the listing goroutine if we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []Object
	for obj := range l.client.ListObjects(ctx, l.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, Object{Name: obj.Key, CreatedAt: obj.LastModified, Size: obj.Size})
	}
	return out, nil
}
