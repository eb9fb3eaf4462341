/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backend serves storyboard operations over HTTP. Documents live in a
// Store (a directory of document folders, or PostgreSQL); the Service grants
// each operation exclusive access to its document.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/storage"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document was modified concurrently")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidID reports whether id can name a stored document.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// DocInfo is the listing projection of a stored document.
type DocInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists documents with an optimistic version. Put with expected 0
// creates or overwrites unconditionally; otherwise the stored version must
// equal expected. Put returns the new version.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Document, int64, error)
	Put(ctx context.Context, id string, doc *domain.Document, expected int64) (int64, error)
	List(ctx context.Context) ([]DocInfo, error)
	Search(ctx context.Context, id string, q storage.SearchQuery) ([]storage.SearchResult, error)
}

const revisionKey = "revision"

// FileStore keeps one storage document folder per id under Root. The version
// lives in the folder's index meta table.
type FileStore struct {
	Root string
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FileStore{Root: root}, nil
}

func (s *FileStore) dir(id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: invalid document id %q", domain.ErrValidation, id)
	}
	return filepath.Join(s.Root, id), nil
}

func (s *FileStore) revision(ctx context.Context, dir string) (int64, error) {
	v, ok, err := storage.GetMeta(ctx, dir, revisionKey)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (s *FileStore) Get(ctx context.Context, id string) (*domain.Document, int64, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, 0, err
	}
	if _, err := os.Stat(filepath.Join(dir, storage.ManifestFileName)); err != nil {
		return nil, 0, ErrNotFound
	}
	h, err := storage.Open(dir)
	if err != nil {
		return nil, 0, err
	}
	rev, err := s.revision(ctx, dir)
	if err != nil {
		return nil, 0, err
	}
	return h.Doc, rev, nil
}

func (s *FileStore) Put(ctx context.Context, id string, doc *domain.Document, expected int64) (int64, error) {
	dir, err := s.dir(id)
	if err != nil {
		return 0, err
	}
	manifest := filepath.Join(dir, storage.ManifestFileName)
	var rev int64
	if _, statErr := os.Stat(manifest); statErr == nil {
		if rev, err = s.revision(ctx, dir); err != nil {
			return 0, err
		}
	}
	if expected != 0 && rev != expected {
		return 0, ErrConflict
	}
	h := &storage.DocumentHandle{Root: dir, ManifestPath: manifest, Doc: doc}
	if rev == 0 {
		if _, err := storage.InitDocument(dir, doc); err != nil {
			return 0, err
		}
	} else if err := storage.Save(h); err != nil {
		return 0, err
	}
	if err := storage.UpdateIndex(ctx, dir, doc); err != nil {
		return 0, err
	}
	rev++
	if err := storage.SetMeta(ctx, dir, revisionKey, strconv.FormatInt(rev, 10)); err != nil {
		return 0, err
	}
	return rev, nil
}

func (s *FileStore) List(ctx context.Context) ([]DocInfo, error) {
	ents, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("read store root: %w", err)
	}
	var out []DocInfo
	for _, e := range ents {
		if !e.IsDir() || !ValidID(e.Name()) {
			continue
		}
		dir := filepath.Join(s.Root, e.Name())
		st, err := os.Stat(filepath.Join(dir, storage.ManifestFileName))
		if err != nil {
			continue
		}
		h, err := storage.Open(dir)
		if err != nil {
			continue
		}
		rev, _ := s.revision(ctx, dir)
		out = append(out, DocInfo{ID: e.Name(), Name: h.Doc.Name, Version: rev, UpdatedAt: st.ModTime().UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *FileStore) Search(ctx context.Context, id string, q storage.SearchQuery) ([]storage.SearchResult, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, storage.ManifestFileName)); err != nil {
		return nil, ErrNotFound
	}
	return storage.Search(ctx, dir, q)
}
