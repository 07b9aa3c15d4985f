// Package store is the local view-state cache: expanded warehouse nodes,
// selections, unsent edit-row drafts and the last record tail. It is a
// convenience for relaunching the client; the remote authority stays the
// source of truth and callers tolerate a missing or empty cache.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dcj-cli/internal/model"

	_ "modernc.org/sqlite"
)

const cacheFileName = "state.sqlite"

type Cache struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the cache in dir.
func Open(ctx context.Context, dir string) (*Cache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, cacheFileName)
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the CLI read while the TUI writes.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	c := &Cache{db: db, path: path, now: time.Now}
	if err := c.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) Path() string { return c.path }

func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS expanded (
			task_id TEXT PRIMARY KEY
		);`,
		`CREATE TABLE IF NOT EXISTS selection (
			kind TEXT PRIMARY KEY,
			id TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS drafts (
			task_id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS record_tail (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			record_sequence INTEGER NOT NULL,
			pos INTEGER NOT NULL,
			payload_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_record_tail_pos ON record_tail(pos);`,
		`INSERT OR IGNORE INTO meta(k, v) VALUES ('schema_version', '1');`,
	}
	for _, st := range stmts {
		if _, err := c.db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("migrate cache: %w", err)
		}
	}
	return nil
}

// SaveExpanded replaces the expanded node set.
func (c *Cache) SaveExpanded(ctx context.Context, ids []string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM expanded;`); err != nil {
		return err
	}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO expanded(task_id) VALUES (?);`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (c *Cache) Expanded(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT task_id FROM expanded ORDER BY task_id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SaveSelection remembers the selected id for kind ("warehouse", "task").
// An empty id forgets it.
func (c *Cache) SaveSelection(ctx context.Context, kind, id string) error {
	if strings.TrimSpace(id) == "" {
		_, err := c.db.ExecContext(ctx, `DELETE FROM selection WHERE kind = ?;`, kind)
		return err
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO selection(kind, id) VALUES (?, ?)
		ON CONFLICT(kind) DO UPDATE SET id = excluded.id;`, kind, id)
	return err
}

func (c *Cache) Selection(ctx context.Context, kind string) (string, error) {
	var id string
	err := c.db.QueryRowContext(ctx, `SELECT id FROM selection WHERE kind = ?;`, kind).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// SaveDraft stores the unsent edit-row text of a task. Empty text deletes it.
func (c *Cache) SaveDraft(ctx context.Context, taskID, text string) error {
	if text == "" {
		return c.ClearDraft(ctx, taskID)
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO drafts(task_id, text, updated_at_unixms) VALUES (?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET text = excluded.text, updated_at_unixms = excluded.updated_at_unixms;`,
		taskID, text, c.now().UnixMilli())
	return err
}

func (c *Cache) Draft(ctx context.Context, taskID string) (string, bool, error) {
	var text string
	err := c.db.QueryRowContext(ctx, `SELECT text FROM drafts WHERE task_id = ?;`, taskID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (c *Cache) ClearDraft(ctx context.Context, taskID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM drafts WHERE task_id = ?;`, taskID)
	return err
}

// SaveRecordTail replaces the cached record tail.
func (c *Cache) SaveRecordTail(ctx context.Context, recs []model.TaskRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_tail;`); err != nil {
		return err
	}
	for i, r := range recs {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO record_tail(id, task_id, record_sequence, pos, payload_json)
			VALUES (?, ?, ?, ?, ?);`, r.ID, r.TaskID, r.RecordSequence, i, string(b)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordTail returns the cached tail in the order it was saved. Rows that
// fail to decode are skipped.
func (c *Cache) RecordTail(ctx context.Context) ([]model.TaskRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT payload_json FROM record_tail ORDER BY pos;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TaskRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r model.TaskRecord
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Report summarizes the cache for `dcj doctor`.
type Report struct {
	Path          string   `json:"path" yaml:"path"`
	SchemaVersion string   `json:"schemaVersion" yaml:"schemaVersion"`
	Integrity     string   `json:"integrity" yaml:"integrity"`
	Expanded      int      `json:"expanded" yaml:"expanded"`
	Drafts        int      `json:"drafts" yaml:"drafts"`
	Records       int      `json:"records" yaml:"records"`
	Selections    []string `json:"selections,omitempty" yaml:"selections,omitempty"`
}

func (c *Cache) Check(ctx context.Context) (Report, error) {
	rep := Report{Path: c.path}
	if err := c.db.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = 'schema_version';`).Scan(&rep.SchemaVersion); err != nil {
		return rep, err
	}
	if err := c.db.QueryRowContext(ctx, `PRAGMA integrity_check;`).Scan(&rep.Integrity); err != nil {
		return rep, err
	}
	counts := []struct {
		q   string
		dst *int
	}{
		{`SELECT COUNT(*) FROM expanded;`, &rep.Expanded},
		{`SELECT COUNT(*) FROM drafts;`, &rep.Drafts},
		{`SELECT COUNT(*) FROM record_tail;`, &rep.Records},
	}
	for _, ct := range counts {
		if err := c.db.QueryRowContext(ctx, ct.q).Scan(ct.dst); err != nil {
			return rep, err
		}
	}
	rows, err := c.db.QueryContext(ctx, `SELECT kind FROM selection;`)
	if err != nil {
		return rep, err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return rep, err
		}
		rep.Selections = append(rep.Selections, k)
	}
	sort.Strings(rep.Selections)
	return rep, rows.Err()
}
