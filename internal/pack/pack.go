/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pack bundles a storyboard folder (manifest plus referenced assets)
// into a single .zip for hand-off, and unpacks such bundles into a new folder.
package pack

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "gostoryboard/internal/log"
	"gostoryboard/internal/storage"
)

// InfoFileName is the human-readable summary stored at the archive root.
const InfoFileName = "storyboard.pack.txt"

// Export writes the manifest and the assets folder of the storyboard at root
// into destZip. Backups, exports and the search index are left out; the index
// is rebuilt on import.
func Export(root, destZip string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("pack"), "export").With(slog.String("root", root))
	if strings.TrimSpace(root) == "" || strings.TrimSpace(destZip) == "" {
		return 0, errors.New("root and destination are required")
	}
	h, err := storage.Open(root)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(destZip), 0o755); err != nil {
		return 0, fmt.Errorf("ensure zip dir: %w", err)
	}
	// On Windows, remove destination if present before create
	_ = os.Remove(destZip)
	zf, err := os.Create(destZip)
	if err != nil {
		return 0, fmt.Errorf("create zip: %w", err)
	}
	zw := zip.NewWriter(zf)

	added, err := writeEntries(zw, h)
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := zf.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(destZip)
		l.Error("zip build failed", slog.Any("err", err))
		return 0, fmt.Errorf("build zip: %w", err)
	}
	l.Info("storyboard packed", slog.Int("files", added), slog.String("zip", destZip))
	return added, nil
}

func writeEntries(zw *zip.Writer, h *storage.DocumentHandle) (int, error) {
	info := fmt.Sprintf("GoStoryboard pack\nCreated: %s\nStoryboard: %s\nPages: %d\n",
		time.Now().Format(time.RFC3339), h.Doc.Name, h.Doc.Sheet.Pages)
	w, err := zw.Create(InfoFileName)
	if err != nil {
		return 0, err
	}
	if _, err := io.WriteString(w, info); err != nil {
		return 0, err
	}
	if err := addFile(zw, h.ManifestPath, storage.ManifestFileName); err != nil {
		return 0, err
	}
	added := 1
	assets := filepath.Join(h.Root, storage.AssetsDirName)
	err = filepath.WalkDir(assets, func(path string, d os.DirEntry, err error) error {
		if errors.Is(err, os.ErrNotExist) && path == assets {
			return filepath.SkipDir
		}
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(h.Root, path)
		if err != nil {
			return err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		added++
		return nil
	})
	return added, err
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	fw, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, f)
	return err
}

// Import extracts packZip into destRoot, which must not already hold a
// storyboard, then opens the result (validating the manifest) and builds its
// search index.
func Import(ctx context.Context, packZip, destRoot string) (*storage.DocumentHandle, error) {
	l := applog.WithOperation(applog.WithComponent("pack"), "import").With(slog.String("root", destRoot))
	if _, err := os.Stat(filepath.Join(destRoot, storage.ManifestFileName)); err == nil {
		return nil, fmt.Errorf("%s already contains a storyboard", destRoot)
	}
	r, err := zip.OpenReader(packZip)
	if err != nil {
		return nil, fmt.Errorf("open pack: %w", err)
	}
	defer func() { _ = r.Close() }()

	base, err := filepath.Abs(destRoot)
	if err != nil {
		return nil, err
	}
	hasManifest := false
	for _, f := range r.File {
		if f.Name == InfoFileName || f.FileInfo().IsDir() {
			continue
		}
		if f.Name != storage.ManifestFileName && !strings.HasPrefix(f.Name, storage.AssetsDirName+"/") {
			l.Warn("skip foreign entry", slog.String("name", f.Name))
			continue
		}
		target := filepath.Join(base, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, base+string(os.PathSeparator)) {
			return nil, fmt.Errorf("pack entry %q escapes the destination", f.Name)
		}
		if err := extract(f, target); err != nil {
			return nil, err
		}
		if f.Name == storage.ManifestFileName {
			hasManifest = true
		}
	}
	if !hasManifest {
		return nil, fmt.Errorf("pack has no %s", storage.ManifestFileName)
	}
	h, err := storage.Open(base)
	if err != nil {
		return nil, err
	}
	if err := storage.RebuildIndex(ctx, h.Root, h.Doc); err != nil {
		return nil, err
	}
	l.Info("storyboard unpacked", slog.String("name", h.Doc.Name))
	return h, nil
}

func extract(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
