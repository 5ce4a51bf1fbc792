// Package querycache implements a reconstructible cache over the
// Revset Query Layer's results, keyed by the oplog position the
// result was computed at (spec §4.3 "Caching": "a query result may be
// cached and trusted only as long as the oplog position it was
// computed at is still current").
//
// The cache is reconstructible by design: it is pure derived state,
// never a source of truth. Deleting the database file is always safe
// — the next query simply recomputes and repopulates it.
package querycache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hox/hox/internal/vcs"
)

// Cache is a SQLite-backed memo of (expression, oplog position) ->
// query result.
type Cache struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the cache database at path, creating its
// parent directory and schema as needed.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("querycache: creating directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("querycache: opening %s: %w", path, err)
	}

	c := &Cache{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS query_results (
		expression TEXT NOT NULL,
		op_id TEXT NOT NULL,
		records_json TEXT NOT NULL,
		cached_at DATETIME NOT NULL,
		PRIMARY KEY (expression, op_id)
	);
	CREATE INDEX IF NOT EXISTS idx_query_results_op ON query_results(op_id);
	`
	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("querycache: initializing schema: %w", err)
	}
	return nil
}

// Get returns the cached records for expression at the given oplog
// position, and whether an entry existed at all.
func (c *Cache) Get(ctx context.Context, expression string, opID vcs.OperationID) ([]vcs.Record, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT records_json FROM query_results WHERE expression = ? AND op_id = ?`,
		expression, string(opID),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querycache: reading %q at %s: %w", expression, opID, err)
	}

	var records []vcs.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, false, fmt.Errorf("querycache: decoding cached result: %w", err)
	}
	return records, true, nil
}

// Put stores records for expression at opID, evicting any prior entry
// for the same expression at a different position (since the older
// position is, by construction, no longer current).
func (c *Cache) Put(ctx context.Context, expression string, opID vcs.OperationID, records []vcs.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("querycache: encoding result: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("querycache: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM query_results WHERE expression = ? AND op_id != ?`, expression, string(opID)); err != nil {
		return fmt.Errorf("querycache: evicting stale entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO query_results (expression, op_id, records_json, cached_at) VALUES (?, ?, ?, ?)`,
		expression, string(opID), string(raw), time.Now(),
	); err != nil {
		return fmt.Errorf("querycache: writing entry: %w", err)
	}
	return tx.Commit()
}

// InvalidateAll drops every cached entry; used after an oplog
// restore/undo whose new position cannot be cheaply correlated with
// whatever was cached before it.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.ExecContext(ctx, `DELETE FROM query_results`)
	if err != nil {
		return fmt.Errorf("querycache: invalidating all entries: %w", err)
	}
	return nil
}
