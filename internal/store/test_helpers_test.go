package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/roach88/quorum/internal/engine"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(&counterIDs{}))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// counterIDs yields deterministic row IDs: ev-1, ev-2, ...
type counterIDs struct{ n int }

func (c *counterIDs) Generate() string {
	c.n++
	return fmt.Sprintf("ev-%d", c.n)
}

func createTestRegistry(t *testing.T, threshold int, owners ...engine.OwnerID) *engine.Registry {
	t.Helper()
	r, err := engine.NewRegistry(owners, threshold)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	return r
}

func submitted(seq int64, id engine.ActionID, owner engine.OwnerID, target string, amount int64) engine.Event {
	return engine.Event{
		Seq:      seq,
		Kind:     engine.EventSubmitted,
		ActionID: id,
		Owner:    owner,
		Target:   target,
		Amount:   decimal.NewFromInt(amount),
	}
}

func confirmed(seq int64, id engine.ActionID, owner engine.OwnerID) engine.Event {
	return engine.Event{Seq: seq, Kind: engine.EventConfirmed, ActionID: id, Owner: owner, Amount: decimal.Zero}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
