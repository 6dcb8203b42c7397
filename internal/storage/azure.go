package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/dbferry/dbferry/pkg/config"
)

// Azure stores backup archives in an Azure Blob Storage container.
type Azure struct {
	client    *azblob.Client
	container string
}

// NewAzure builds the backend from shared-key credentials, failing at
// registration time when they are missing or malformed.
func NewAzure(cfg config.AzureConfig) (*Azure, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure backend: account_name and account_key are required")
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("azure backend: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure backend: %w", err)
	}

	return &Azure{client: client, container: cfg.Container}, nil
}

func (b *Azure) Name() string  { return "azure" }
func (b *Azure) Label() string { return "Azure Blob Storage" }

func (b *Azure) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("azure upload: %w", err)
	}
	defer f.Close()

	if _, err := b.client.UploadFile(ctx, b.container, key, f, nil); err != nil {
		return "", fmt.Errorf("azure upload %s: %w", key, err)
	}
	return fmt.Sprintf("azure://%s/%s", b.container, key), nil
}

func (b *Azure) Download(ctx context.Context, key, destPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("azure download: %w", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("azure download: %w", err)
	}
	defer f.Close()

	if _, err := b.client.DownloadFile(ctx, b.container, key, f, nil); err != nil {
		return "", fmt.Errorf("azure download %s: %w", key, err)
	}
	return destPath, nil
}

func (b *Azure) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	pager := b.client.NewListBlobsFlatPager(b.container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure list: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			var size int64
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			objects = append(objects, Object{
				ID:      strings.TrimSuffix(*item.Name, ".tar.gz"),
				Size:    size,
				Backend: b.Name(),
			})
		}
	}
	return objects, nil
}

func (b *Azure) Delete(ctx context.Context, id string) error {
	if _, err := b.client.DeleteBlob(ctx, b.container, id+".tar.gz", nil); err != nil {
		return fmt.Errorf("azure delete %s: %w", id, err)
	}
	return nil
}
