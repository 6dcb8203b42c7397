package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dbferry/dbferry/internal/api/dto"
	"github.com/dbferry/dbferry/internal/core/service"
	"github.com/dbferry/dbferry/internal/db"
	"github.com/dbferry/dbferry/internal/ratelimit"
	"github.com/dbferry/dbferry/internal/storage"
	"github.com/dbferry/dbferry/pkg/config"
)

// testEnv holds all test dependencies
type testEnv struct {
	cfg           *config.Config
	db            *db.DB
	router        *gin.Engine
	backupService *service.BackupService
	exportService *service.ExportService
}

// setupTestEnv creates a test environment with an in-memory database
// seeded with tenant-owned rows.
func setupTestEnv(t *testing.T, rows int) *testEnv {
	t.Helper()

	cfg := &config.Config{
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
		StreamChunkSize:      100,
		MaxLimit:             100000,
	}

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	if err := database.Exec(ctx, `CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		status TEXT
	)`); err != nil {
		t.Fatalf("failed to create orders: %v", err)
	}
	for i := 1; i <= rows; i++ {
		tenant := "acme"
		if i%5 == 0 {
			tenant = "globex"
		}
		if err := database.Exec(ctx,
			`INSERT INTO orders (id, tenant_id, status) VALUES (?, ?, ?)`, i, tenant, "paid"); err != nil {
			t.Fatalf("failed to seed row %d: %v", i, err)
		}
	}

	registry := storage.NewRegistry(cfg, zerolog.Nop())
	backupService := service.NewBackupService(cfg, database, registry, zerolog.Nop())
	exportService := service.NewExportService(cfg, database, ratelimit.New(cfg.RateLimitRPM), zerolog.Nop())

	engineCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	backupService.Start(engineCtx)

	backupHandler := NewBackupHandler(backupService)
	exportHandler := NewExportHandler(exportService)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/backups", backupHandler.CreateBackup)
	router.GET("/backups", backupHandler.ListBackups)
	router.GET("/backups/:id", backupHandler.GetBackup)
	router.DELETE("/backups/:id", backupHandler.DeleteBackup)
	router.POST("/backups/:id/cancel", backupHandler.CancelBackup)
	router.POST("/backups/:id/restore", backupHandler.Restore)
	router.POST("/exports", exportHandler.CreateExport)
	router.GET("/exports/stream", exportHandler.StreamExport)
	router.GET("/exports/:id", exportHandler.GetExport)
	router.POST("/exports/:id/cancel", exportHandler.CancelExport)

	return &testEnv{
		cfg:           cfg,
		db:            database,
		router:        router,
		backupService: backupService,
		exportService: exportService,
	}
}

// request performs one request with an optional JSON body.
func (env *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func parseJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse response: %v\nBody: %s", err, w.Body.String())
	}
	return out
}

// waitForBackup polls the status endpoint until the job leaves the
// queue.
func (env *testEnv) waitForBackup(t *testing.T, jobID string) dto.BackupJobResponse {
	t.Helper()

	for i := 0; i < 200; i++ {
		w := env.request(t, http.MethodGet, "/backups/"+jobID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status poll failed: %d %s", w.Code, w.Body.String())
		}
		job := parseJSON[dto.BackupJobResponse](t, w)
		switch job.Status {
		case "completed":
			return job
		case "failed", "cancelled":
			t.Fatalf("backup ended %s: %s", job.Status, job.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("backup did not finish in time")
	return dto.BackupJobResponse{}
}
