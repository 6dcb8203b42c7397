package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local is the filesystem backend rooted at the backup directory.
// Upload and download are plain copies; a key equal to the source path
// is an identity operation.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) Name() string  { return LocalName }
func (l *Local) Label() string { return "Local Filesystem" }

func (l *Local) Upload(_ context.Context, localPath, key string) (string, error) {
	dest := filepath.Join(l.root, key)
	if dest == localPath {
		return dest, nil
	}
	if err := copyFile(localPath, dest); err != nil {
		return "", fmt.Errorf("local upload: %w", err)
	}
	return dest, nil
}

func (l *Local) Download(_ context.Context, key, destPath string) (string, error) {
	src := filepath.Join(l.root, key)
	if src == destPath {
		return destPath, nil
	}
	if err := copyFile(src, destPath); err != nil {
		return "", fmt.Errorf("local download: %w", err)
	}
	return destPath, nil
}

func (l *Local) List(_ context.Context) ([]Object, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("local list: %w", err)
	}

	var objects []Object
	for _, entry := range entries {
		id := strings.TrimSuffix(entry.Name(), ".tar.gz")
		size := int64(0)
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			size = info.Size()
		}
		objects = append(objects, Object{ID: id, Size: size, Backend: LocalName})
	}
	return objects, nil
}

func (l *Local) Delete(_ context.Context, id string) error {
	archive := filepath.Join(l.root, id+".tar.gz")
	if _, err := os.Stat(archive); err == nil {
		return os.Remove(archive)
	}

	dir := filepath.Join(l.root, id)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("local delete: %w", err)
	}
	if info.IsDir() {
		return os.RemoveAll(dir)
	}
	return os.Remove(dir)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
