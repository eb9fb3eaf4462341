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
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestIndexInitCreatesWALAndSchema(t *testing.T) {
	root := t.TempDir()
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" && mode != "WAL" {
		t.Fatalf("expected WAL mode, got %s", mode)
	}
	var cnt int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('meta','version','annotations','fts_annotations','journal')").Scan(&cnt); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if cnt != 5 {
		t.Fatalf("expected 5 tables, got %d", cnt)
	}
	v, err := SchemaVersion(ctx, db)
	if err != nil || v != schemaVersion {
		t.Fatalf("schema version = %d, %v; want %d", v, err, schemaVersion)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO annotations(name, kind, page, panel, text) VALUES('n','text',1,0,'hello world')`); err != nil {
		t.Fatalf("insert annotation: %v", err)
	}
	var hits int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fts_annotations WHERE fts_annotations MATCH 'hello'").Scan(&hits); err != nil {
		t.Fatalf("fts query: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected trigger to feed FTS, got %d hits", hits)
	}
}

func TestMigrationsUpgradeV1ToV2(t *testing.T) {
	root := t.TempDir()
	idx := IndexPath(root)
	if err := os.MkdirAll(filepath.Dir(idx), 0o755); err != nil {
		t.Fatalf("mk index dir: %v", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(2000)", filepath.ToSlash(idx))
	old, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`CREATE TABLE version (id INTEGER PRIMARY KEY CHECK(id=1), schema INTEGER NOT NULL, app TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);`,
		`INSERT INTO version VALUES(1, 1, 'old', '2025-01-01T00:00:00Z', '2025-01-01T00:00:00Z');`,
		`CREATE TABLE annotations (ann_id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE, kind TEXT NOT NULL, page INTEGER NOT NULL DEFAULT 0, panel INTEGER NOT NULL DEFAULT 0, text TEXT NOT NULL);`,
	}
	for _, q := range stmts {
		if _, err := old.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed v1: %v", err)
		}
	}
	_ = old.Close()

	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer db.Close()
	v, err := SchemaVersion(ctx, db)
	if err != nil || v != 2 {
		t.Fatalf("expected schema 2 after migration, got %d (%v)", v, err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_annotations_page'`).Scan(&n); err != nil {
		t.Fatalf("query indexes: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected idx_annotations_page to exist")
	}
}

func TestDetectAndRebuildIndexOnCorruption(t *testing.T) {
	root := t.TempDir()
	doc := generatedDoc(t, 1)
	if err := UpdateIndex(context.Background(), root, doc); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}
	idx := IndexPath(root)
	_ = os.Remove(idx + "-wal")
	_ = os.Remove(idx + "-shm")
	if err := os.WriteFile(idx, []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rebuilt, err := DetectAndRebuildIndex(ctx, root, doc)
	if err != nil {
		t.Fatalf("DetectAndRebuildIndex: %v", err)
	}
	if !rebuilt {
		t.Fatalf("expected rebuild to occur")
	}
	res, err := Search(ctx, root, SearchQuery{Kinds: []string{"panel_notes"}})
	if err != nil {
		t.Fatalf("Search after rebuild: %v", err)
	}
	if len(res) != 6 {
		t.Fatalf("expected 6 panel notes after rebuild, got %d", len(res))
	}
	entries, _ := os.ReadDir(filepath.Join(root, IndexDirName, "backups"))
	if len(entries) == 0 {
		t.Fatalf("expected backup of the damaged index")
	}

	again, err := DetectAndRebuildIndex(ctx, root, doc)
	if err != nil || again {
		t.Fatalf("healthy index should not be rebuilt: %v %v", again, err)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	if _, ok, err := GetMeta(ctx, root, "revision"); err != nil || ok {
		t.Fatalf("unset key: ok=%v err=%v", ok, err)
	}
	for _, v := range []string{"1", "2"} {
		if err := SetMeta(ctx, root, "revision", v); err != nil {
			t.Fatalf("SetMeta: %v", err)
		}
	}
	v, ok, err := GetMeta(ctx, root, "revision")
	if err != nil || !ok || v != "2" {
		t.Fatalf("GetMeta = %q %v %v", v, ok, err)
	}
}

func TestAnnotationRecordsNormalizeText(t *testing.T) {
	doc := generatedDoc(t, 1)
	doc.SetText(doc.FindAnnotation("panel_notes_p001_001"), "Café scene")
	for _, r := range AnnotationRecords(doc) {
		if r.Name != "panel_notes_p001_001" {
			continue
		}
		if r.Text != "Caf\u00e9 scene" || r.Page != 1 || r.Panel != 1 || r.Kind != "panel_notes" {
			t.Fatalf("record = %+v", r)
		}
		return
	}
	t.Fatalf("panel_notes_p001_001 not recorded")
}
