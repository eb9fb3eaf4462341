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
	"errors"
	"sync"
	"testing"
	"time"

	"gostoryboard/internal/animatic"
	"gostoryboard/internal/domain"
	"gostoryboard/internal/layout"
	"gostoryboard/internal/shift"
	"gostoryboard/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewService(fs)
}

func seedGenerated(t *testing.T, svc *Service, id string, pages int) int64 {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Create(ctx, id, domain.NewDocument(id)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cfg := layout.Defaults()
	cfg.Pages = pages
	_, ver, err := svc.Generate(ctx, id, cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return ver
}

func TestServiceOperationsPersist(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if ver := seedGenerated(t, svc, "board", 2); ver != 2 {
		t.Fatalf("version after generate = %d, want 2", ver)
	}
	res, err := svc.Panels(ctx, "board")
	if err != nil {
		t.Fatalf("Panels: %v", err)
	}
	if res.Count() != 12 {
		t.Fatalf("panel count = %d, want 12", res.Count())
	}

	rep, ver, err := svc.Extend(ctx, "board", 1, 1)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if rep.Added != 1 || ver != 3 {
		t.Fatalf("extend report %+v version %d", rep, ver)
	}
	scene, _, err := svc.Animatic(ctx, "board", animatic.Options{ShotDuration: 10})
	if err != nil {
		t.Fatalf("Animatic: %v", err)
	}
	if len(scene.Cameras) != 18 || scene.FrameEnd != 180 {
		t.Fatalf("animatic scene has %d cameras, end %d", len(scene.Cameras), scene.FrameEnd)
	}
	doc, _, err := svc.Document(ctx, "board")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.Sheet.Pages != 3 || doc.FindScene(animatic.SceneName(doc)) == nil {
		t.Fatalf("stored document misses extend/animatic results")
	}
	hits, err := svc.Store().Search(ctx, "board", storage.SearchQuery{Kinds: []string{"page_footer"}})
	if err != nil || len(hits) != 3 {
		t.Fatalf("search footers: %d hits, %v", len(hits), err)
	}
}

func TestServiceRejectedOperationKeepsVersion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ver := seedGenerated(t, svc, "board", 1)
	_, got, err := svc.Shift(ctx, "board", shift.OpInsert, 6, 6)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got != ver {
		t.Fatalf("version changed on rejected shift: %d -> %d", ver, got)
	}
	if _, _, err := svc.Shift(ctx, "missing", shift.OpInsert, 1, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Create(ctx, "../escape", domain.NewDocument("x")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestServiceSerialisesPerDocument(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedGenerated(t, svc, "board", 1)
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Shift(ctx, "board", shift.OpInsert, 1, 5)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent shift failed: %v", err)
		}
	}
	_, ver, err := svc.Document(ctx, "board")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if ver != 2+n {
		t.Fatalf("version = %d, want %d", ver, 2+n)
	}
}

func TestServiceReadsShareLockWritesWait(t *testing.T) {
	svc := newTestService(t)
	seedGenerated(t, svc, "board", 1)
	ctx := context.Background()

	release := svc.rlock("board")
	read := make(chan error, 1)
	go func() {
		_, err := svc.Panels(ctx, "board")
		read <- err
	}()
	select {
	case err := <-read:
		if err != nil {
			t.Fatalf("Panels: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("panel listing blocked behind another reader")
	}

	wrote := make(chan error, 1)
	go func() {
		_, _, err := svc.Extend(ctx, "board", 1, 1)
		wrote <- err
	}()
	select {
	case <-wrote:
		t.Fatalf("extend ran while a reader held the document")
	case <-time.After(50 * time.Millisecond):
	}
	release()
	if err := <-wrote; err != nil {
		t.Fatalf("Extend: %v", err)
	}
}

func TestFileStoreConflict(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	v1, err := fs.Put(ctx, "doc", domain.NewDocument("doc"), 0)
	if err != nil || v1 != 1 {
		t.Fatalf("first put: %d %v", v1, err)
	}
	doc, ver, err := fs.Get(ctx, "doc")
	if err != nil || ver != 1 {
		t.Fatalf("Get: %d %v", ver, err)
	}
	if _, err := fs.Put(ctx, "doc", doc, ver); err != nil {
		t.Fatalf("second put: %v", err)
	}
	if _, err := fs.Put(ctx, "doc", doc, ver); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale put should conflict, got %v", err)
	}
	list, err := fs.List(ctx)
	if err != nil || len(list) != 1 || list[0].Version != 2 {
		t.Fatalf("List = %+v, %v", list, err)
	}
}
