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
	"log/slog"
	"sync"

	"gostoryboard/internal/animatic"
	"gostoryboard/internal/domain"
	"gostoryboard/internal/indexer"
	"gostoryboard/internal/layout"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/pages"
	"gostoryboard/internal/shift"
)

// Service runs storyboard operations against a Store. Mutations of one
// document hold its write lock; reads share the read lock. Different
// documents proceed in parallel.
type Service struct {
	store Store
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func NewService(store Store) *Service {
	return &Service{store: store, locks: map[string]*sync.RWMutex{}}
}

func (s *Service) Store() Store { return s.store }

func (s *Service) docLock(id string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.RWMutex{}
		s.locks[id] = m
	}
	return m
}

func (s *Service) lock(id string) func() {
	m := s.docLock(id)
	m.Lock()
	return m.Unlock
}

func (s *Service) rlock(id string) func() {
	m := s.docLock(id)
	m.RLock()
	return m.RUnlock
}

// mutate loads id, applies fn and stores the result when fn succeeds. The
// operations never leave a half-applied document behind on error, so a failed
// fn simply skips the write.
func (s *Service) mutate(ctx context.Context, id, op string, fn func(doc *domain.Document) error) (int64, error) {
	unlock := s.lock(id)
	defer unlock()
	ctx = applog.WithDocument(ctx, id)
	l := applog.WithOperation(applog.WithComponent("backend"), op)
	doc, ver, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := fn(doc); err != nil {
		l.InfoContext(ctx, "operation rejected", slog.Any("err", err))
		return ver, err
	}
	nv, err := s.store.Put(ctx, id, doc, ver)
	if err != nil {
		l.ErrorContext(ctx, "store failed", slog.Any("err", err))
		return ver, err
	}
	l.InfoContext(ctx, "operation stored", slog.Int64("version", nv))
	return nv, nil
}

// Create stores doc under id, replacing any existing document.
func (s *Service) Create(ctx context.Context, id string, doc *domain.Document) (int64, error) {
	unlock := s.lock(id)
	defer unlock()
	return s.store.Put(ctx, id, doc, 0)
}

// Document returns the stored document and its version.
func (s *Service) Document(ctx context.Context, id string) (*domain.Document, int64, error) {
	unlock := s.rlock(id)
	defer unlock()
	return s.store.Get(applog.WithDocument(ctx, id), id)
}

// Generate lays out the sheet with cfg.
func (s *Service) Generate(ctx context.Context, id string, cfg layout.Config) (layout.Report, int64, error) {
	var rep layout.Report
	v, err := s.mutate(ctx, id, "generate", func(doc *domain.Document) (err error) {
		rep, err = layout.Generate(doc, cfg)
		return err
	})
	return rep, v, err
}

// Panels indexes the document in reading order.
func (s *Service) Panels(ctx context.Context, id string) (indexer.Result, error) {
	doc, _, err := s.Document(ctx, id)
	if err != nil {
		return indexer.Result{}, err
	}
	return indexer.Index(doc, doc.Sheet.Direction())
}

// Shift runs an insert or remove cascade.
func (s *Service) Shift(ctx context.Context, id string, op shift.Op, i, stop int) (shift.Report, int64, error) {
	var rep shift.Report
	v, err := s.mutate(applog.WithRange(ctx, i, stop), id, string(op), func(doc *domain.Document) (err error) {
		rep, err = shift.Engine{}.Run(doc, op, i, stop)
		return err
	})
	return rep, v, err
}

// Extend appends count copies of the 1-based template page.
func (s *Service) Extend(ctx context.Context, id string, template, count int) (pages.Report, int64, error) {
	var rep pages.Report
	v, err := s.mutate(ctx, id, "extend", func(doc *domain.Document) (err error) {
		rep, err = pages.Extend(doc, template, count)
		return err
	})
	return rep, v, err
}

// Animatic installs the derived animatic scene.
func (s *Service) Animatic(ctx context.Context, id string, opts animatic.Options) (*domain.Scene, int64, error) {
	var scene *domain.Scene
	v, err := s.mutate(ctx, id, "animatic", func(doc *domain.Document) (err error) {
		scene, err = animatic.Export(doc, opts)
		return err
	})
	return scene, v, err
}
