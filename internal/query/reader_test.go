package query

import (
	"context"
	"testing"

	"github.com/dbferry/dbferry/internal/db"
)

func setupReaderDB(t *testing.T, rows int) *db.DB {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	if err := database.Exec(ctx, `CREATE TABLE orders (id INTEGER PRIMARY KEY, tenant_id TEXT, status TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	for i := 1; i <= rows; i++ {
		tenant := "acme"
		if i%5 == 0 {
			tenant = "globex"
		}
		if err := database.Exec(ctx, `INSERT INTO orders (id, tenant_id, status) VALUES (?, ?, ?)`,
			i, tenant, "paid"); err != nil {
			t.Fatalf("failed to seed row %d: %v", i, err)
		}
	}
	return database
}

func TestChunkedReaderPagination(t *testing.T) {
	database := setupReaderDB(t, 2500)
	ctx := context.Background()

	reader := NewReader(database, Spec{Table: "orders"}, 1000)

	var sizes []int
	total := 0
	for {
		batch, err := reader.Next(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if batch == nil {
			break
		}
		sizes = append(sizes, len(batch))
		total += len(batch)
	}

	want := []int{1000, 1000, 500}
	if len(sizes) != len(want) {
		t.Fatalf("expected %d chunks, got %d (%v)", len(want), len(sizes), sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("chunk %d has %d rows, want %d", i, sizes[i], want[i])
		}
	}
	if total != 2500 {
		t.Errorf("total rows = %d, want 2500", total)
	}

	// Exhausted readers keep returning nil without re-querying.
	if batch, err := reader.Next(ctx); err != nil || batch != nil {
		t.Errorf("exhausted reader returned batch=%v err=%v", batch, err)
	}
}

func TestChunkedReaderExactMultiple(t *testing.T) {
	database := setupReaderDB(t, 2000)
	ctx := context.Background()

	reader := NewReader(database, Spec{Table: "orders"}, 1000)

	chunks := 0
	for {
		batch, err := reader.Next(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if batch == nil {
			break
		}
		chunks++
	}

	// 2000 rows at chunk size 1000 takes one extra empty probe, not an
	// extra chunk.
	if chunks != 2 {
		t.Errorf("expected 2 chunks, got %d", chunks)
	}
}

func TestChunkedReaderEmptyTable(t *testing.T) {
	database := setupReaderDB(t, 0)

	reader := NewReader(database, Spec{Table: "orders"}, 1000)
	batch, err := reader.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch != nil {
		t.Errorf("empty table should yield nil, got %d rows", len(batch))
	}
}

func TestChunkedReaderTenantScope(t *testing.T) {
	database := setupReaderDB(t, 100)
	ctx := context.Background()

	tenant := "globex"
	reader := NewReader(database, Spec{Table: "orders", TenantID: &tenant}, 1000)

	batch, err := reader.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Every 5th row belongs to globex.
	if len(batch) != 20 {
		t.Fatalf("expected 20 globex rows, got %d", len(batch))
	}
	for _, row := range batch {
		if row["tenant_id"] != "globex" {
			t.Fatalf("row from wrong tenant leaked: %v", row)
		}
	}
}

func TestRawReaderInjectsTenantPredicate(t *testing.T) {
	database := setupReaderDB(t, 100)
	ctx := context.Background()

	// The caller's query has no tenant scoping and a LIMIT that must
	// not interfere with pagination.
	reader := NewRawReader(database, "SELECT * FROM orders LIMIT 99999", nil, "globex", 1000)

	batch, err := reader.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 20 {
		t.Fatalf("expected 20 globex rows, got %d", len(batch))
	}
	for _, row := range batch {
		if row["tenant_id"] != "globex" {
			t.Fatalf("row from wrong tenant leaked: %v", row)
		}
	}
}

func TestRawReaderScopesProjectionMention(t *testing.T) {
	database := setupReaderDB(t, 10)
	ctx := context.Background()

	// Naming the tenant column in the projection is not scoping; the
	// predicate is injected regardless.
	reader := NewRawReader(database, "SELECT id, tenant_id FROM orders", nil, "globex", 100)

	batch, err := reader.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 globex rows, got %d", len(batch))
	}
	for _, row := range batch {
		if row["tenant_id"] != "globex" {
			t.Fatalf("row from wrong tenant leaked: %v", row)
		}
	}
}

func TestRawReaderIgnoresForeignTenantLiteral(t *testing.T) {
	database := setupReaderDB(t, 100)
	ctx := context.Background()

	// A caller-supplied predicate for a different tenant is wrapped by
	// the injected one, so the intersection is empty rather than acme's
	// rows leaking to globex.
	reader := NewRawReader(database, "SELECT * FROM orders WHERE tenant_id = 'acme'", nil, "globex", 1000)

	batch, err := reader.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch != nil {
		t.Fatalf("foreign tenant literal leaked %d rows", len(batch))
	}
}

func TestRawReaderKeepsBindArguments(t *testing.T) {
	database := setupReaderDB(t, 100)
	ctx := context.Background()

	reader := NewRawReader(database, "SELECT * FROM orders WHERE status = ?", []any{"paid"}, "acme", 1000)

	batch, err := reader.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 80 {
		t.Fatalf("expected 80 acme rows, got %d", len(batch))
	}
}

func TestChunkedReaderResume(t *testing.T) {
	database := setupReaderDB(t, 50)
	ctx := context.Background()

	reader := NewReader(database, Spec{Table: "orders"}, 20)
	if _, err := reader.Next(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.Offset() != 20 {
		t.Fatalf("offset = %d, want 20", reader.Offset())
	}

	// A fresh reader resumed at the recorded offset sees the remainder.
	resumed := NewReader(database, Spec{Table: "orders"}, 20)
	resumed.SetOffset(reader.Offset())

	total := 0
	for {
		batch, err := resumed.Next(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if batch == nil {
			break
		}
		total += len(batch)
	}
	if total != 30 {
		t.Errorf("resumed read returned %d rows, want 30", total)
	}
}
