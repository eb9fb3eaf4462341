/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gostoryboard/internal/domain"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PGStore keeps documents as JSONB rows and mirrors their annotation text
// into a tsvector-indexed table for search.
type PGStore struct {
	DB *sql.DB
}

// OpenPG connects with the pgx driver, pings and applies migrations.
func OpenPG(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PGStore{DB: db}, nil
}

func (s *PGStore) Close() error { return s.DB.Close() }

// applyMigrations applies embedded SQL migrations in filename order and
// records each one in schema_migrations.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("backend"), "migrate")
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
		l.Info("applied migration", slog.String("file", fname))
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	parts := strings.SplitN(base, "_", 2)
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*domain.Document, int64, error) {
	var (
		raw []byte
		ver int64
	)
	err := s.DB.QueryRowContext(ctx, `SELECT doc, version FROM storyboards WHERE id = $1`, id).Scan(&raw, &ver)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("select storyboard: %w", err)
	}
	var doc domain.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, 0, fmt.Errorf("decode storyboard %s: %w", id, err)
	}
	doc.Normalize()
	return &doc, ver, nil
}

func (s *PGStore) Put(ctx context.Context, id string, doc *domain.Document, expected int64) (int64, error) {
	if !ValidID(id) {
		return 0, fmt.Errorf("%w: invalid document id %q", domain.ErrValidation, id)
	}
	doc.Normalize()
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode storyboard: %w", err)
	}
	if err := storage.ValidateManifest(raw); err != nil {
		return 0, err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var ver int64
	if expected == 0 {
		err = tx.QueryRowContext(ctx, `INSERT INTO storyboards(id, name, doc) VALUES($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, doc = EXCLUDED.doc,
				version = storyboards.version + 1, updated_at = now()
			RETURNING version`, id, doc.Name, string(raw)).Scan(&ver)
	} else {
		err = tx.QueryRowContext(ctx, `UPDATE storyboards SET name = $2, doc = $3, version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $4 RETURNING version`, id, doc.Name, string(raw), expected).Scan(&ver)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrConflict
		}
	}
	if err != nil {
		return 0, fmt.Errorf("write storyboard: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM storyboard_annotations WHERE storyboard_id = $1`, id); err != nil {
		return 0, fmt.Errorf("clear annotations: %w", err)
	}
	for _, r := range storage.AnnotationRecords(doc) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO storyboard_annotations(storyboard_id, name, kind, page_num, panel_num, raw_text)
			VALUES($1, $2, $3, $4, $5, $6)`, id, r.Name, r.Kind, r.Page, r.Panel, r.Text); err != nil {
			return 0, fmt.Errorf("insert annotation %s: %w", r.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return ver, nil
}

func (s *PGStore) List(ctx context.Context) ([]DocInfo, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, version, updated_at FROM storyboards ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list storyboards: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []DocInfo
	for rows.Next() {
		var d DocInfo
		if err := rows.Scan(&d.ID, &d.Name, &d.Version, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Search mirrors storage.Search over the Postgres annotation table so both
// stores answer the same query the same way.
func (s *PGStore) Search(ctx context.Context, id string, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	if strings.TrimSpace(q.Text) != "" {
		b.WriteString("SELECT 0, a.name, a.kind, a.page_num, a.panel_num, ")
		b.WriteString("COALESCE(ts_headline('simple', a.raw_text, plainto_tsquery('simple', $1), 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12'), '') ")
		b.WriteString("FROM storyboard_annotations a WHERE a.storyboard_id = $2 AND a.search_vector @@ plainto_tsquery('simple', $1) ")
		args = append(args, q.Text, id)
	} else {
		b.WriteString("SELECT 0, a.name, a.kind, a.page_num, a.panel_num, '' FROM storyboard_annotations a WHERE a.storyboard_id = $1 ")
		args = append(args, id)
	}
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(q.Kinds) > 0 {
		b.WriteString(" AND a.kind = ANY (" + place(q.Kinds) + ") ")
	}
	if q.PageFrom > 0 && q.PageTo > 0 && q.PageTo >= q.PageFrom {
		b.WriteString(" AND a.page_num BETWEEN " + place(q.PageFrom) + " AND " + place(q.PageTo) + " ")
	} else if q.PageFrom > 0 {
		b.WriteString(" AND a.page_num >= " + place(q.PageFrom) + " ")
	} else if q.PageTo > 0 {
		b.WriteString(" AND a.page_num BETWEEN 1 AND " + place(q.PageTo) + " ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY a.page_num, a.panel_num, a.name ")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := s.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.ID, &r.Name, &r.Kind, &r.Page, &r.Panel, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
