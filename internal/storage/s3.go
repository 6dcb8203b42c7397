package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dbferry/dbferry/pkg/config"
)

// S3 stores backup archives in an S3-compatible bucket.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 builds the backend from static credentials. Missing
// credentials fail here, at registration time, not at first use.
func NewS3(cfg config.S3Config) (*S3, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 backend: access_key and secret_key are required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &S3{client: s3.New(opts), bucket: cfg.Bucket}, nil
}

func (b *S3) Name() string  { return "s3" }
func (b *S3) Label() string { return "S3-Compatible Storage" }

func (b *S3) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	defer f.Close()

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", b.bucket, key), nil
}

func (b *S3) Download(ctx context.Context, key, destPath string) (string, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("s3 download %s: %w", key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("s3 download: %w", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("s3 download: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return "", fmt.Errorf("s3 download %s: %w", key, err)
	}
	return destPath, nil
}

func (b *S3) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				ID:      strings.TrimSuffix(aws.ToString(obj.Key), ".tar.gz"),
				Size:    aws.ToInt64(obj.Size),
				Backend: b.Name(),
			})
		}
	}
	return objects, nil
}

func (b *S3) Delete(ctx context.Context, id string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id + ".tar.gz"),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", id, err)
	}
	return nil
}
