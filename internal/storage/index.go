/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"gostoryboard/internal/domain"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName holds per-document index data under the document root.
	IndexDirName  = ".gsb"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema. Bump it together with a
	// new case in runMigrations.
	schemaVersion = 2
)

// IndexPath returns the full path to the document's index database file.
func IndexPath(root string) string {
	return filepath.Join(root, IndexDirName, IndexFileName)
}

// InitOrOpenIndex ensures the SQLite index exists at .gsb/index.sqlite, opens it
// in WAL mode and brings its schema up to date.
func InitOrOpenIndex(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("document root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, IndexDirName), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create %s dir: %w", IndexDirName, err)
	}

	path := IndexPath(root)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// a fresh database is created at the current schema; start at 1 so
		// migrations still run their statements
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// SchemaVersion reports the schema version recorded in the index.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return cur, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	cur, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_annotations_page ON annotations(page, panel);`,
				`CREATE INDEX IF NOT EXISTS idx_journal_op ON journal(op);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		if next == 2 {
			// best effort
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_annotations(fts_annotations) VALUES('optimize')`)
		}
		cur = next
	}
	return nil
}

func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// One row per annotation; rebuilt from the manifest.
		`CREATE TABLE IF NOT EXISTS annotations (
			ann_id INTEGER PRIMARY KEY,
			name   TEXT    NOT NULL UNIQUE,
			kind   TEXT    NOT NULL,
			page   INTEGER NOT NULL DEFAULT 0,
			panel  INTEGER NOT NULL DEFAULT 0,
			text   TEXT    NOT NULL
		);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_annotations USING fts5(
			text,
			content='annotations',
			content_rowid='ann_id',
			tokenize = 'unicode61'
		);`,
		// Pre-operation snapshots of the whole document. Not derived data.
		`CREATE TABLE IF NOT EXISTS journal (
			id       INTEGER PRIMARY KEY,
			ts       TEXT    NOT NULL,
			op       TEXT    NOT NULL,
			summary  TEXT    NOT NULL DEFAULT '',
			doc_blob BLOB    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_ts ON journal(ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS annotations_ai AFTER INSERT ON annotations BEGIN
			INSERT INTO fts_annotations(rowid, text) VALUES (new.ann_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS annotations_ad AFTER DELETE ON annotations BEGIN
			INSERT INTO fts_annotations(fts_annotations, rowid, text) VALUES ('delete', old.ann_id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS annotations_au AFTER UPDATE OF text ON annotations BEGIN
			INSERT INTO fts_annotations(fts_annotations, rowid, text) VALUES ('delete', old.ann_id, old.text);
			INSERT INTO fts_annotations(rowid, text) VALUES (new.ann_id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex replaces the index when the database cannot be opened
// or fails an integrity check. The damaged file is copied to .gsb/backups
// first; its journal is not carried over.
func DetectAndRebuildIndex(ctx context.Context, root string, doc *domain.Document) (bool, error) {
	path := IndexPath(root)
	db, err := InitOrOpenIndex(root)
	if err != nil {
		backupIndexFile(path)
		_ = os.Remove(path)
		if rbErr := RebuildIndex(ctx, root, doc); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM annotations LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	_ = os.Remove(path)
	if err := RebuildIndex(ctx, root, doc); err != nil {
		return false, err
	}
	return true, nil
}

func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

// UpdateIndex replaces the annotation rows with the document's current text.
func UpdateIndex(ctx context.Context, root string, doc *domain.Document) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	return indexAnnotations(ctx, db, doc)
}

// RebuildIndex drops and recreates the search tables, keeping the journal.
func RebuildIndex(ctx context.Context, root string, doc *domain.Document) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	drops := []string{
		"DROP TRIGGER IF EXISTS annotations_ai;",
		"DROP TRIGGER IF EXISTS annotations_ad;",
		"DROP TRIGGER IF EXISTS annotations_au;",
		"DROP TABLE IF EXISTS fts_annotations;",
		"DROP TABLE IF EXISTS annotations;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("drop commit: %w", err)
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_annotations_page ON annotations(page, panel);`); err != nil {
		return fmt.Errorf("recreate page index: %w", err)
	}
	return indexAnnotations(ctx, db, doc)
}

// AnnotationRecord is the searchable projection of one annotation.
type AnnotationRecord struct {
	Name  string
	Kind  string
	Page  int
	Panel int
	Text  string
}

// AnnotationRecords flattens the document's annotations. Page and panel are
// 1-based; 0 means unknown. Generated names carry their own position; other
// annotations are placed by the page rectangle that contains them.
func AnnotationRecords(doc *domain.Document) []AnnotationRecord {
	rows := make([]AnnotationRecord, 0, len(doc.Annotations))
	for _, a := range doc.Annotations {
		r := AnnotationRecord{Name: a.Name, Kind: string(a.Kind), Text: norm.NFC.String(doc.Text(a))}
		if k, ok := domain.ParseKey(a.Name); ok {
			r.Page = k.Page + 1
			if k.IsPanel() {
				r.Panel = k.Panel + 1
			}
			if r.Kind == "" {
				r.Kind = string(k.Kind)
			}
		} else {
			for p := 0; p < doc.Sheet.Pages; p++ {
				if doc.Sheet.PageRect(p).Contains(a.Position, 1e-6) {
					r.Page = p + 1
					break
				}
			}
		}
		if r.Kind == "" {
			r.Kind = "text"
		}
		rows = append(rows, r)
	}
	return rows
}

func indexAnnotations(ctx context.Context, db *sql.DB, doc *domain.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	rows := AnnotationRecords(doc)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM annotations;"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear annotations: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, "INSERT INTO annotations(name, kind, page, panel, text) VALUES(?,?,?,?,?);")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for _, r := range rows {
		if _, err := ins.ExecContext(ctx, r.Name, r.Kind, r.Page, r.Panel, r.Text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert annotation %s: %w", r.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetMeta reads a value from the index meta table; ok is false when unset.
func GetMeta(ctx context.Context, root, key string) (value string, ok bool, err error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return "", false, err
	}
	defer db.Close()
	err = db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, true, nil
}

// SetMeta stores a value in the index meta table.
func SetMeta(ctx context.Context, root, key, value string) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value); err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}
