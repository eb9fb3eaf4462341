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
	"errors"
	"testing"
)

func TestJournalRecordAndRestore(t *testing.T) {
	root := t.TempDir()
	h, err := InitDocument(root, generatedDoc(t, 1))
	if err != nil {
		t.Fatalf("InitDocument: %v", err)
	}
	ctx := context.Background()
	notes := h.Doc.FindAnnotation("panel_notes_p001_001")

	if err := RecordOperation(ctx, h, "edit", "first"); err != nil {
		t.Fatalf("RecordOperation: %v", err)
	}
	h.Doc.SetText(notes, "first edit")
	if err := Save(h); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := RecordOperation(ctx, h, "edit", "second"); err != nil {
		t.Fatalf("RecordOperation: %v", err)
	}
	h.Doc.SetText(notes, "second edit")
	if err := Save(h); err != nil {
		t.Fatalf("Save: %v", err)
	}

	list, err := ListJournal(ctx, h, 0)
	if err != nil {
		t.Fatalf("ListJournal: %v", err)
	}
	if len(list) != 2 || list[0].Summary != "second" || list[1].Summary != "first" {
		t.Fatalf("unexpected journal %+v", list)
	}
	latest, err := LatestEntry(ctx, h)
	if err != nil || latest == nil || len(latest.Snapshot) == 0 {
		t.Fatalf("LatestEntry: %+v %v", latest, err)
	}

	e, err := Restore(ctx, h)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if e.Summary != "second" {
		t.Fatalf("restored wrong entry %+v", e)
	}
	if got := h.Doc.Text(h.Doc.FindAnnotation("panel_notes_p001_001")); got != "first edit" {
		t.Fatalf("after first restore text = %q", got)
	}
	reopened, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := reopened.Doc.Text(reopened.Doc.FindAnnotation("panel_notes_p001_001")); got != "first edit" {
		t.Fatalf("restore was not saved, manifest has %q", got)
	}

	if _, err := Restore(ctx, h); err != nil {
		t.Fatalf("second Restore: %v", err)
	}
	if got := h.Doc.Text(h.Doc.FindAnnotation("panel_notes_p001_001")); got != "Action:\nDialogue:" {
		t.Fatalf("after second restore text = %q", got)
	}
	if _, err := Restore(ctx, h); !errors.Is(err, ErrNothingToRestore) {
		t.Fatalf("expected ErrNothingToRestore, got %v", err)
	}
}

func TestPruneJournal(t *testing.T) {
	h, err := InitDocument(t.TempDir(), generatedDoc(t, 1))
	if err != nil {
		t.Fatalf("InitDocument: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := RecordOperation(ctx, h, "generate", ""); err != nil {
			t.Fatalf("RecordOperation: %v", err)
		}
	}
	n, err := PruneJournal(ctx, h, 2)
	if err != nil {
		t.Fatalf("PruneJournal: %v", err)
	}
	if n != 3 {
		t.Fatalf("pruned %d, want 3", n)
	}
	list, _ := ListJournal(ctx, h, 10)
	if len(list) != 2 {
		t.Fatalf("expected 2 entries left, got %d", len(list))
	}
	if n, _ := PruneJournal(ctx, h, 0); n != 0 {
		t.Fatalf("keepLast 0 must not delete")
	}
}
