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
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SearchQuery describes an annotation search.
// Text uses SQLite FTS5 syntax (terms, "phrases", AND/OR/NOT).
// Kinds restricts to annotation kinds such as panel_notes or page_header.
// PageFrom/To are inclusive 1-based pages; 0 means unset.
type SearchQuery struct {
	Text     string
	Kinds    []string
	PageFrom int
	PageTo   int
	Limit    int
	Offset   int
}

// SearchResult is one matching annotation. Page and Panel are 1-based, 0 when
// unknown. Snippet marks matches with [ ] when Text was used.
type SearchResult struct {
	ID      int64
	Name    string
	Kind    string
	Page    int
	Panel   int
	Snippet string
}

// Search runs q against the document's annotation index. With empty Text it
// lists annotations matching the filters.
func Search(ctx context.Context, root string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("document root is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT a.ann_id, a.name, a.kind, a.page, a.panel, snippet(fts_annotations, 0, '[', ']', '...', 10)\n")
		sb.WriteString("FROM fts_annotations JOIN annotations a ON fts_annotations.rowid = a.ann_id\n")
		sb.WriteString("WHERE fts_annotations MATCH ?\n")
		args = append(args, norm.NFC.String(q.Text))
	} else {
		sb.WriteString("SELECT a.ann_id, a.name, a.kind, a.page, a.panel, ''\n")
		sb.WriteString("FROM annotations a\nWHERE 1=1\n")
	}
	if len(q.Kinds) > 0 {
		sb.WriteString(" AND a.kind IN (" + placeholders(len(q.Kinds)) + ")\n")
		for _, k := range q.Kinds {
			args = append(args, k)
		}
	}
	if q.PageFrom > 0 && q.PageTo > 0 && q.PageTo >= q.PageFrom {
		sb.WriteString(" AND a.page BETWEEN ? AND ?\n")
		args = append(args, q.PageFrom, q.PageTo)
	} else if q.PageFrom > 0 {
		sb.WriteString(" AND a.page >= ?\n")
		args = append(args, q.PageFrom)
	} else if q.PageTo > 0 {
		sb.WriteString(" AND a.page BETWEEN 1 AND ?\n")
		args = append(args, q.PageTo)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	sb.WriteString("ORDER BY a.page, a.panel, a.name\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.Kind, &r.Page, &r.Panel, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Snippet = sn.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
