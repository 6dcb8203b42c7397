package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dbferry/dbferry/pkg/config"
)

func TestLocalUploadDownloadDelete(t *testing.T) {
	root := t.TempDir()
	backend := NewLocal(root)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "backup-1.tar.gz")
	if err := os.WriteFile(src, []byte("bundle-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	location, err := backend.Upload(ctx, src, "backup-1.tar.gz")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if location != filepath.Join(root, "backup-1.tar.gz") {
		t.Errorf("location = %q", location)
	}

	dest := filepath.Join(t.TempDir(), "restored.tar.gz")
	if _, err := backend.Download(ctx, "backup-1.tar.gz", dest); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "bundle-bytes" {
		t.Errorf("downloaded content = %q", got)
	}

	if err := backend.Delete(ctx, "backup-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Stat(location); !os.IsNotExist(err) {
		t.Error("artifact still exists after delete")
	}
}

func TestLocalList(t *testing.T) {
	root := t.TempDir()
	backend := NewLocal(root)

	// One archived backup and one plain directory backup.
	if err := os.WriteFile(filepath.Join(root, "backup-a.tar.gz"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "backup-b"), 0o755); err != nil {
		t.Fatal(err)
	}

	objects, err := backend.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objects))
	}

	ids := map[string]bool{}
	for _, obj := range objects {
		ids[obj.ID] = true
		if obj.Backend != LocalName {
			t.Errorf("backend = %q", obj.Backend)
		}
	}
	// The archive suffix is stripped from IDs.
	if !ids["backup-a"] || !ids["backup-b"] {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestLocalListMissingRoot(t *testing.T) {
	backend := NewLocal(filepath.Join(t.TempDir(), "never-created"))
	objects, err := backend.List(context.Background())
	if err != nil {
		t.Fatalf("list of missing root should be empty, not an error: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("expected no objects, got %d", len(objects))
	}
}

func TestLocalDeleteDirectoryBackup(t *testing.T) {
	root := t.TempDir()
	backend := NewLocal(root)

	dir := filepath.Join(root, "backup-dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := backend.Delete(context.Background(), "backup-dir"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("directory still exists after delete")
	}
}

func TestRegistryLocalAlwaysPresent(t *testing.T) {
	cfg := &config.Config{BackupDir: t.TempDir()}
	registry := NewRegistry(cfg, zerolog.Nop())

	backend, err := registry.Get(LocalName)
	if err != nil {
		t.Fatalf("local backend missing: %v", err)
	}
	if backend.Name() != LocalName {
		t.Errorf("name = %q", backend.Name())
	}

	// Unconfigured remote backends are absent, not broken.
	if _, err := registry.Get("s3"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
	if names := registry.Names(); len(names) != 1 || names[0] != LocalName {
		t.Errorf("names = %v", names)
	}
}
