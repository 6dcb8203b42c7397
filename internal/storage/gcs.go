package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dbferry/dbferry/pkg/config"
)

// GCS stores backup archives in a Google Cloud Storage bucket.
type GCS struct {
	client *gcstorage.Client
	bucket string
}

// NewGCS builds the backend, failing at registration time when the
// client cannot be constructed.
func NewGCS(ctx context.Context, cfg config.GCSConfig) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs backend: %w", err)
	}
	return &GCS{client: client, bucket: cfg.Bucket}, nil
}

func (b *GCS) Name() string  { return "gcs" }
func (b *GCS) Label() string { return "Google Cloud Storage" }

func (b *GCS) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("gcs upload: %w", err)
	}
	defer f.Close()

	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", fmt.Errorf("gcs upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs upload %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", b.bucket, key), nil
}

func (b *GCS) Download(ctx context.Context, key, destPath string) (string, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("gcs download %s: %w", key, err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("gcs download: %w", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("gcs download: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("gcs download %s: %w", key, err)
	}
	return destPath, nil
}

func (b *GCS) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	it := b.client.Bucket(b.bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list: %w", err)
		}
		objects = append(objects, Object{
			ID:      strings.TrimSuffix(attrs.Name, ".tar.gz"),
			Size:    attrs.Size,
			Backend: b.Name(),
		})
	}
	return objects, nil
}

func (b *GCS) Delete(ctx context.Context, id string) error {
	if err := b.client.Bucket(b.bucket).Object(id + ".tar.gz").Delete(ctx); err != nil {
		return fmt.Errorf("gcs delete %s: %w", id, err)
	}
	return nil
}
