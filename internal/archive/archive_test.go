package archive

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestCompressExtractRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	files := map[string]string{
		"manifest.json":            `{"id":"backup-1"}`,
		"orders_chunk_0000.json":   `{"data":[{"id":1}]}`,
		"orders_chunk_0001.json":   `{"data":[{"id":2}]}`,
		"nested/extra_chunk.json":  `{"data":[]}`,
	}
	for name, content := range files {
		path := filepath.Join(srcDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	bundle := filepath.Join(t.TempDir(), "backup-1"+Extension)
	if err := Compress(srcDir, bundle, 6); err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if info, err := os.Stat(bundle); err != nil || info.Size() == 0 {
		t.Fatalf("bundle missing or empty: %v", err)
	}

	destDir := t.TempDir()
	if err := Extract(bundle, destDir); err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(destDir, name))
		if err != nil {
			t.Fatalf("extracted file %s missing: %v", name, err)
		}
		if string(got) != want {
			t.Errorf("%s content mismatch: got %q, want %q", name, got, want)
		}
	}
}

func TestCompressInvalidLevel(t *testing.T) {
	srcDir := t.TempDir()
	bundle := filepath.Join(t.TempDir(), "out"+Extension)
	if err := Compress(srcDir, bundle, 42); err == nil {
		t.Error("expected error for invalid compression level")
	}
}

func TestExtractRejectsPathEscape(t *testing.T) {
	// Hand-craft an archive whose entry climbs out of the destination.
	bundle := filepath.Join(t.TempDir(), "evil"+Extension)
	out, err := os.Create(bundle)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	content := []byte("pwned")
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../escape.txt",
		Mode:     0o644,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gz.Close()
	out.Close()

	destDir := t.TempDir()
	if err := Extract(bundle, destDir); err == nil {
		t.Fatal("expected extraction to reject escaping entry")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(destDir), "escape.txt")); err == nil {
		t.Error("escaping file was written outside the destination")
	}
}

func TestIsArchive(t *testing.T) {
	if !IsArchive("backup-1" + Extension) {
		t.Error("bundle path should be recognized")
	}
	if IsArchive("backup-1") {
		t.Error("plain directory path should not be recognized")
	}
}
