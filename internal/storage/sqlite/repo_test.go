package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"wbdscrape/internal/directory"
	"wbdscrape/internal/storage"
)

func newRepo(t *testing.T, dsn string) storage.Repository {
	t.Helper()

	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(repo.Close)
	if err := repo.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	return repo
}

func rec(name string, page int, kv ...string) directory.Record {
	r := directory.Record{Name: name, Page: page}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// TestRepo_SaveIsIdempotent verifies saving the same records twice stores
// them once and that LastPage follows the data.
func TestRepo_SaveIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, ":memory:")

	if _, ok, err := repo.LastPage(ctx); err != nil || ok {
		t.Fatalf("LastPage on empty table: ok=%v err=%v", ok, err)
	}

	recs := []directory.Record{
		rec("A", 1, "Address", "12 Elm St, Chicago, IL", "Phone", "1"),
		rec("B", 1, "Tradition", "Zen"),
		rec("C", 2),
	}
	n, err := repo.SaveRecords(ctx, recs)
	if err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 inserted, got %d", n)
	}

	n, err = repo.SaveRecords(ctx, append(recs, rec("D", 3)))
	if err != nil {
		t.Fatalf("SaveRecords again: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 inserted on re-save, got %d", n)
	}

	page, ok, err := repo.LastPage(ctx)
	if err != nil || !ok || page != 3 {
		t.Fatalf("LastPage: page=%d ok=%v err=%v", page, ok, err)
	}

	if n, err := repo.SaveRecords(ctx, nil); err != nil || n != 0 {
		t.Fatalf("SaveRecords(nil): n=%d err=%v", n, err)
	}
}

// TestRepo_StoredColumns reads a row back to check the column mapping.
func TestRepo_StoredColumns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "centers.db")
	repo := newRepo(t, path)

	r := rec("A & B", 4, "Address", "12 Elm St, Chicago, IL", "Phone", "1")
	if _, err := repo.SaveRecords(ctx, []directory.Record{r}); err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}

	db := repo.(*Repo).db
	var (
		page, pos               int
		name, addr, fields, hash string
	)
	err := db.QueryRowContext(ctx, `SELECT page, position, name, address, fields, row_hash FROM buddhist_centers`).
		Scan(&page, &pos, &name, &addr, &fields, &hash)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if page != 4 || pos != 1 || name != "A & B" || addr != "12 Elm St, Chicago, IL" {
		t.Fatalf("unexpected row: %d %d %q %q", page, pos, name, addr)
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(fields), &m); err != nil || m["Phone"] != "1" {
		t.Fatalf("unexpected fields %q: %v", fields, err)
	}
	if hash != storage.RowHash(r) {
		t.Fatalf("row_hash mismatch")
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	rows := []storage.Row{{Page: 1}, {Page: 2}}
	q, args := buildInsertSQL(`my"table`, rows)
	if !strings.HasPrefix(q, `INSERT OR IGNORE INTO "my""table" ("page", "position"`) {
		t.Fatalf("unexpected sql: %s", q)
	}
	if strings.Count(q, "?") != 12 || len(args) != 12 {
		t.Fatalf("want 12 placeholders and args, got %d/%d", strings.Count(q, "?"), len(args))
	}
}
