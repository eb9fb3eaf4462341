/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pack

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/layout"
	"gostoryboard/internal/storage"
)

func newBoard(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "board")
	doc := domain.NewDocument("Packed")
	if _, err := layout.Generate(doc, layout.Defaults()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	doc.SetText(doc.FindAnnotation("panel_notes_p001_002"), "smoke fills the vault")
	if _, err := storage.InitDocument(root, doc); err != nil {
		t.Fatalf("InitDocument: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, storage.AssetsDirName, "logo.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestExportAndImport(t *testing.T) {
	root := newBoard(t)
	zipPath := filepath.Join(t.TempDir(), "out", "board.zip")
	n, err := Export(root, zipPath)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 {
		t.Fatalf("files packed = %d, want 2", n)
	}

	dest := filepath.Join(t.TempDir(), "copy")
	ctx := context.Background()
	h, err := Import(ctx, zipPath, dest)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if h.Doc.Name != "Packed" {
		t.Fatalf("imported name = %q", h.Doc.Name)
	}
	if _, err := os.Stat(filepath.Join(dest, storage.AssetsDirName, "logo.png")); err != nil {
		t.Fatalf("asset missing: %v", err)
	}
	hits, err := storage.Search(ctx, dest, storage.SearchQuery{Text: "vault"})
	if err != nil || len(hits) != 1 {
		t.Fatalf("search after import = %v, %v", hits, err)
	}
	if _, err := Import(ctx, zipPath, dest); err == nil {
		t.Fatalf("importing over an existing storyboard should fail")
	}
}

func TestImportRejectsEscapingEntries(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("assets/../../escape.txt")
	_, _ = w.Write([]byte("x"))
	_ = zw.Close()
	_ = f.Close()

	if _, err := Import(context.Background(), zipPath, filepath.Join(t.TempDir(), "dest")); err == nil {
		t.Fatalf("expected zip-slip rejection")
	}
}

func TestImportRequiresManifest(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "empty.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create(InfoFileName)
	_, _ = w.Write([]byte("info"))
	_ = zw.Close()
	_ = f.Close()
	if _, err := Import(context.Background(), zipPath, filepath.Join(t.TempDir(), "dest")); err == nil {
		t.Fatalf("expected error for pack without manifest")
	}
}
