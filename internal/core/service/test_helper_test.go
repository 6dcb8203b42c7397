package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dbferry/dbferry/internal/core/domain"
	"github.com/dbferry/dbferry/internal/db"
	"github.com/dbferry/dbferry/internal/ratelimit"
	"github.com/dbferry/dbferry/internal/storage"
	"github.com/dbferry/dbferry/pkg/config"
)

// testConfig returns a config with temp directories and small limits
// suitable for exercising chunk boundaries.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		BackupDir:            t.TempDir(),
		ExportDir:            t.TempDir(),
		DatabaseDSN:          ":memory:",
		RetentionDays:        90,
		CompressionLevel:     6,
		ChunkSize:            1000,
		MaxConcurrentBackups: 3,
		DefaultFormat:        "json",
		AllowedFormats:       []string{"json", "csv", "ndjson", "xml", "sql"},
		CompressionFormats:   []string{"gzip"},
		RateLimitRPM:         60,
		StreamChunkSize:      1000,
		MaxLimit:             100000,
	}
}

// testDB creates an in-memory database seeded with a tenant-owned
// orders table.
func testDB(t *testing.T, rows int) *db.DB {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	if err := database.Exec(ctx, `CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		status TEXT,
		total REAL,
		created_at TEXT
	)`); err != nil {
		t.Fatalf("failed to create orders: %v", err)
	}

	for i := 1; i <= rows; i++ {
		tenant := "acme"
		if i%5 == 0 {
			tenant = "globex"
		}
		if err := database.Exec(ctx,
			`INSERT INTO orders (id, tenant_id, status, total, created_at) VALUES (?, ?, ?, ?, ?)`,
			i, tenant, "paid", float64(i)*1.5, "2026-08-01T00:00:00Z"); err != nil {
			t.Fatalf("failed to seed row %d: %v", i, err)
		}
	}
	return database
}

func countRows(t *testing.T, database *db.DB, table string) int {
	t.Helper()
	rows, err := database.Query(context.Background(), fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", table))
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	n, ok := rows[0]["n"].(int64)
	if !ok {
		t.Fatalf("unexpected count type %T", rows[0]["n"])
	}
	return int(n)
}

func newTestBackupService(t *testing.T, cfg *config.Config, database *db.DB) *BackupService {
	t.Helper()
	registry := storage.NewRegistry(cfg, zerolog.Nop())
	return NewBackupService(cfg, database, registry, zerolog.Nop())
}

func newTestExportService(t *testing.T, cfg *config.Config, database db.Querier) *ExportService {
	t.Helper()
	return NewExportService(cfg, database, ratelimit.New(cfg.RateLimitRPM), zerolog.Nop())
}

// mustRunBackup queues a backup and blocks until it completes,
// returning the job ID.
func mustRunBackup(t *testing.T, svc *BackupService, opts CreateBackupOptions) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc.Start(ctx)

	events, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	job, err := svc.CreateBackup(opts)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case event := <-events:
			if event.JobID != job.ID {
				continue
			}
			switch event.Type {
			case domain.EventCompleted:
				return job.ID
			case domain.EventFailed:
				t.Fatalf("backup failed: %s", event.Error)
			}
		case <-deadline:
			t.Fatal("backup did not finish in time")
		}
	}
}

// fakeBackend is an in-memory storage backend for retention and
// upload tests.
type fakeBackend struct {
	name string

	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	files   map[string]string // key -> uploaded local path
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{
		name:    name,
		objects: map[string][]byte{},
		files:   map[string]string{},
	}
}

func (f *fakeBackend) Name() string  { return f.name }
func (f *fakeBackend) Label() string { return "Fake " + f.name }

func (f *fakeBackend) Upload(_ context.Context, localPath, key string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.files[key] = localPath
	return f.name + "://" + key, nil
}

func (f *fakeBackend) Download(_ context.Context, key, destPath string) (string, error) {
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", err
	}
	return destPath, os.WriteFile(destPath, data, 0o644)
}

func (f *fakeBackend) List(_ context.Context) ([]storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var objects []storage.Object
	for key, data := range f.objects {
		id := key
		if filepath.Ext(id) == ".gz" {
			id = id[:len(id)-len(".tar.gz")]
		}
		objects = append(objects, storage.Object{ID: id, Size: int64(len(data)), Backend: f.name})
	}
	return objects, nil
}

func (f *fakeBackend) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, id+".tar.gz")
	delete(f.objects, id)
	f.deleted = append(f.deleted, id)
	return nil
}
