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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/layout"
)

func generatedDoc(t *testing.T, pages int) *domain.Document {
	t.Helper()
	cfg := layout.Defaults()
	cfg.Pages = pages
	doc := domain.NewDocument("Board")
	if _, err := layout.Generate(doc, cfg); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return doc
}

func TestInitDocumentCreatesStructureAndManifest(t *testing.T) {
	root := t.TempDir()
	h, err := InitDocument(root, generatedDoc(t, 1))
	if err != nil {
		t.Fatalf("InitDocument error: %v", err)
	}
	b, err := os.ReadFile(h.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var got domain.Document
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if got.Name != "Board" || len(got.Annotations) != len(h.Doc.Annotations) {
		t.Fatalf("manifest mismatch: name %q, %d annotations", got.Name, len(got.Annotations))
	}
	for _, d := range []string{AssetsDirName, ExportsDirName, BackupsDirName} {
		if fi, err := os.Stat(filepath.Join(root, d)); err != nil || !fi.IsDir() {
			t.Fatalf("expected directory %s to exist", d)
		}
	}
	if _, err := InitDocument("  ", domain.NewDocument("x")); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestSaveCreatesTimestampedBackup(t *testing.T) {
	root := t.TempDir()
	h, err := InitDocument(root, domain.NewDocument("Backup Test"))
	if err != nil {
		t.Fatalf("InitDocument error: %v", err)
	}
	h.Doc.Name = "Backup Test 2"
	if err := Save(h); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	baks, err := Backups(root)
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(baks) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(baks))
	}
	b, _ := os.ReadFile(baks[0])
	if !strings.Contains(string(b), `"Backup Test"`) {
		t.Fatalf("backup should hold the previous manifest")
	}
	// no temp files left behind
	ents, _ := os.ReadDir(root)
	for _, e := range ents {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestOpenRoundTripsGeneratedDocument(t *testing.T) {
	root := t.TempDir()
	doc := generatedDoc(t, 2)
	if _, err := InitDocument(root, doc); err != nil {
		t.Fatalf("InitDocument: %v", err)
	}
	h, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want, _ := json.Marshal(doc)
	got, _ := json.Marshal(h.Doc)
	if string(want) != string(got) {
		t.Fatalf("reopened document differs from the saved one")
	}
}

func TestOpenFallsBackToLatestBackupOnCorruption(t *testing.T) {
	root := t.TempDir()
	h, err := InitDocument(root, domain.NewDocument("Good"))
	if err != nil {
		t.Fatalf("InitDocument error: %v", err)
	}
	h.Doc.Name = "Newer"
	if err := Save(h); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := os.WriteFile(h.ManifestPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt manifest: %v", err)
	}
	h2, err := Open(root)
	if err != nil {
		t.Fatalf("Open should fall back to backup: %v", err)
	}
	if h2.Doc.Name != "Good" {
		t.Fatalf("expected backup document, got %q", h2.Doc.Name)
	}
}

func TestOpenRejectsSchemaViolationWithoutBackup(t *testing.T) {
	root := t.TempDir()
	bad := `{"name":"x","sheet":{},"layers":[],"annotations":[{"name":"","body":"b","position":{"x":0,"y":0,"z":0}}],"scenes":[]}`
	if err := os.WriteFile(filepath.Join(root, ManifestFileName), []byte(bad), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	_, err := Open(root)
	if err == nil {
		t.Fatalf("expected schema error")
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateManifest(t *testing.T) {
	doc := generatedDoc(t, 1)
	b, _ := json.Marshal(doc)
	if err := ValidateManifest(b); err != nil {
		t.Fatalf("generated document should conform: %v", err)
	}
	cases := map[string]string{
		"missing scenes": `{"name":"x","sheet":{},"layers":[],"annotations":[]}`,
		"bad role":       `{"name":"x","sheet":{},"layers":[{"name":"L","role":"paint","strokes":[]}],"annotations":[],"scenes":[{"name":"s","cameras":[],"markers":[]}]}`,
		"not json":       `[1,2`,
	}
	for name, in := range cases {
		if err := ValidateManifest([]byte(in)); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestSaveAsMovesHandle(t *testing.T) {
	h, err := InitDocument(t.TempDir(), domain.NewDocument("Moving"))
	if err != nil {
		t.Fatalf("InitDocument: %v", err)
	}
	dst := filepath.Join(t.TempDir(), "copy")
	if err := SaveAs(h, dst); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	if h.Root != dst || h.ManifestPath != filepath.Join(dst, ManifestFileName) {
		t.Fatalf("handle not moved: %+v", h)
	}
	if _, err := os.Stat(h.ManifestPath); err != nil {
		t.Fatalf("manifest missing at new root: %v", err)
	}
}

func TestAutosaveCrashSnapshotWritesFile(t *testing.T) {
	root := t.TempDir()
	h, err := InitDocument(root, domain.NewDocument("Crashy"))
	if err != nil {
		t.Fatalf("InitDocument: %v", err)
	}
	before, _ := os.ReadFile(h.ManifestPath)
	h.Doc.Name = "Unsaved"
	path, err := AutosaveCrashSnapshot(h)
	if err != nil {
		t.Fatalf("AutosaveCrashSnapshot: %v", err)
	}
	if !strings.HasSuffix(path, ".crash") || filepath.Dir(path) != filepath.Join(root, BackupsDirName) {
		t.Fatalf("unexpected crash path %s", path)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "Unsaved") {
		t.Fatalf("crash snapshot should hold in-memory state")
	}
	after, _ := os.ReadFile(h.ManifestPath)
	if string(before) != string(after) {
		t.Fatalf("manifest must not change")
	}
}
