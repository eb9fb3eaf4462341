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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	applog "gostoryboard/internal/log"
)

// language=SQL
// dialect=SQLite
const insertJournalSQL = `INSERT INTO journal(ts, op, summary, doc_blob) VALUES (?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestJournalSQL = `SELECT id, ts, op, summary, doc_blob FROM journal ORDER BY id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listJournalSQL = `SELECT id, ts, op, summary FROM journal ORDER BY id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const deleteJournalSQL = `DELETE FROM journal WHERE id = ?`

// language=SQL
// dialect=SQLite
const pruneJournalSQL = `DELETE FROM journal WHERE id NOT IN (
	SELECT id FROM journal ORDER BY id DESC LIMIT ?
)`

// ErrNothingToRestore is returned by Restore when the journal is empty.
var ErrNothingToRestore = errors.New("journal is empty")

// JournalEntry describes one recorded operation. Snapshot holds the manifest
// JSON as it was before the operation ran; it is only filled by LatestEntry.
type JournalEntry struct {
	ID       int64
	TS       time.Time
	Op       string
	Summary  string
	Snapshot []byte
}

// RecordOperation stores the handle's current document as the pre-operation
// snapshot for op. Call it before mutating h.Doc.
func RecordOperation(ctx context.Context, h *DocumentHandle, op, summary string) error {
	if h == nil || h.Doc == nil {
		return errors.New("nil DocumentHandle")
	}
	blob, err := json.Marshal(h.Doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	db, err := InitOrOpenIndex(h.Root)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	_, err = db.ExecContext(ctx, insertJournalSQL, time.Now().UTC().Format(time.RFC3339Nano), op, summary, blob)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// LatestEntry returns the most recent journal entry with its snapshot, or nil
// when the journal is empty.
func LatestEntry(ctx context.Context, h *DocumentHandle) (*JournalEntry, error) {
	if h == nil {
		return nil, errors.New("nil DocumentHandle")
	}
	db, err := InitOrOpenIndex(h.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	return latestEntry(ctx, db)
}

func latestEntry(ctx context.Context, db *sql.DB) (*JournalEntry, error) {
	var e JournalEntry
	var tsStr string
	err := db.QueryRowContext(ctx, selectLatestJournalSQL).Scan(&e.ID, &tsStr, &e.Op, &e.Summary, &e.Snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
	return &e, nil
}

// ListJournal returns up to limit entries, newest first, without snapshots.
func ListJournal(ctx context.Context, h *DocumentHandle, limit int) ([]JournalEntry, error) {
	if h == nil {
		return nil, errors.New("nil DocumentHandle")
	}
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(h.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listJournalSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var tsStr string
		if err := rows.Scan(&e.ID, &tsStr, &e.Op, &e.Summary); err != nil {
			return nil, err
		}
		e.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneJournal keeps at most keepLast entries and deletes older ones.
func PruneJournal(ctx context.Context, h *DocumentHandle, keepLast int) (int64, error) {
	if h == nil {
		return 0, errors.New("nil DocumentHandle")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenIndex(h.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, pruneJournalSQL, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Restore replaces h.Doc with the latest journal snapshot, saves the manifest
// and pops the entry, so repeated calls walk further back.
func Restore(ctx context.Context, h *DocumentHandle) (*JournalEntry, error) {
	if h == nil {
		return nil, errors.New("nil DocumentHandle")
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "restore").With(slog.String("root", h.Root))
	db, err := InitOrOpenIndex(h.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	e, err := latestEntry(ctx, db)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNothingToRestore
	}
	doc, err := decodeDocument(e.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("decode journal entry %d: %w", e.ID, err)
	}
	prev := h.Doc
	h.Doc = doc
	if err := Save(h); err != nil {
		h.Doc = prev
		return nil, err
	}
	if _, err := db.ExecContext(ctx, deleteJournalSQL, e.ID); err != nil {
		return nil, fmt.Errorf("pop journal entry: %w", err)
	}
	if err := indexAnnotations(ctx, db, doc); err != nil {
		l.Warn("reindex after restore failed", slog.Any("err", err))
	}
	l.Info("restored", slog.String("op", e.Op), slog.Int64("entry", e.ID))
	return e, nil
}
