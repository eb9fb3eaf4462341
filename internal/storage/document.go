/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gostoryboard/internal/domain"
)

const (
	ManifestFileName = "storyboard.json"
	BackupsDirName   = "backups"
	ExportsDirName   = "exports"
	AssetsDirName    = "assets"
)

var standardSubDirs = []string{
	AssetsDirName,
	ExportsDirName,
	BackupsDirName,
}

// DocumentHandle ties an in-memory document to its directory on disk.
type DocumentHandle struct {
	Root         string
	ManifestPath string
	Doc          *domain.Document
}

// InitDocument creates root (if needed) with its standard subfolders and
// writes doc as the first manifest.
func InitDocument(root string, doc *domain.Document) (*DocumentHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if doc == nil {
		return nil, errors.New("nil document")
	}
	if err := scaffold(root); err != nil {
		return nil, err
	}
	h := &DocumentHandle{
		Root:         root,
		ManifestPath: filepath.Join(root, ManifestFileName),
		Doc:          doc,
	}
	if err := Save(h); err != nil {
		return nil, err
	}
	return h, nil
}

func scaffold(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create document root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return fmt.Errorf("create subdir %s: %w", d, err)
		}
	}
	return nil
}

// Open loads the manifest in root. When it is missing, unreadable or fails
// schema validation, the latest backup is used instead.
func Open(root string) (*DocumentHandle, error) {
	mpath := filepath.Join(root, ManifestFileName)
	doc, err := readManifest(mpath)
	if err != nil {
		bdoc, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, fmt.Errorf("open manifest: %w; backup attempt: %v", err, berr)
		}
		doc = bdoc
	}
	return &DocumentHandle{Root: root, ManifestPath: mpath, Doc: doc}, nil
}

func readManifest(path string) (*domain.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeDocument(b)
}

func decodeDocument(b []byte) (*domain.Document, error) {
	if err := ValidateManifest(b); err != nil {
		return nil, err
	}
	var d domain.Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	d.Normalize()
	return &d, nil
}

// Save writes the document with a temp-file-and-rename, after copying the
// current manifest to a timestamped backup.
func Save(h *DocumentHandle) error {
	if h == nil || h.Doc == nil {
		return errors.New("nil DocumentHandle")
	}
	if h.Root == "" || h.ManifestPath == "" {
		return errors.New("invalid DocumentHandle: missing paths")
	}
	h.Doc.Normalize()
	data, err := json.MarshalIndent(h.Doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')
	if err := ValidateManifest(data); err != nil {
		return err
	}

	bdir := filepath.Join(h.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(h.ManifestPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", ManifestFileName, stamp))
		if cerr := copyFile(h.ManifestPath, bpath); cerr != nil {
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
	}
	return replaceFile(h.ManifestPath, data)
}

// replaceFile writes data next to path and renames it over path.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp manifest: %w", werr)
	}
	// Windows refuses to rename over an existing file.
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace manifest: %w", rerr)
	}
	return nil
}

// SaveAs moves the handle to newRoot and saves there.
func SaveAs(h *DocumentHandle, newRoot string) error {
	if h == nil {
		return errors.New("nil DocumentHandle")
	}
	if newRoot == "" {
		return errors.New("new root is empty")
	}
	if err := scaffold(newRoot); err != nil {
		return err
	}
	h.Root = newRoot
	h.ManifestPath = filepath.Join(newRoot, ManifestFileName)
	return Save(h)
}

// AutosaveCrashSnapshot writes the in-memory document to a crash file in the
// backups folder without touching the manifest, and returns its path.
func AutosaveCrashSnapshot(h *DocumentHandle) (string, error) {
	if h == nil || h.Doc == nil {
		return "", errors.New("nil DocumentHandle")
	}
	data, err := json.MarshalIndent(h.Doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash snapshot: %w", err)
	}
	bdir := filepath.Join(h.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	path := filepath.Join(bdir, fmt.Sprintf("%s.%s.crash", ManifestFileName, time.Now().Format("20060102-150405")))
	if err := writeFileSync(path, append(data, '\n')); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return path, nil
}

func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// Backups lists manifest backups in root, oldest first.
func Backups(root string) ([]string, error) {
	bdir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // the timestamp in the name sorts chronologically
	return out, nil
}

func openFromLatestBackup(root string) (*domain.Document, error) {
	candidates, err := Backups(root)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	latest := candidates[len(candidates)-1]
	doc, err := readManifest(latest)
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	return doc, nil
}
