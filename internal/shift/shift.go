/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package shift inserts or removes a panel in the reading sequence by moving
// content between panel frames. Frames never move and the panel count never
// changes; strokes and anchored objects inside a source frame are translated
// into the target frame, step by step along the cascade.
//
// All moves are planned against a simulated copy of the positions and
// committed together, so a rejected call leaves the document untouched.
package shift

import (
	"fmt"
	"log/slog"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/geom"
	"gostoryboard/internal/indexer"
	applog "gostoryboard/internal/log"
)

// Op selects the cascade direction.
type Op string

const (
	OpInsert Op = "insert"
	OpRemove Op = "remove"
)

// ParseOp accepts "insert" or "remove".
func ParseOp(s string) (Op, error) {
	switch Op(s) {
	case OpInsert, OpRemove:
		return Op(s), nil
	}
	return "", fmt.Errorf("%w: unknown shift operation %q", domain.ErrValidation, s)
}

// Engine runs shift operations. A zero Direction uses the document's sheet.
type Engine struct {
	Direction domain.ReadDirection
}

// Report describes a committed shift.
type Report struct {
	Op               Op
	Start, Stop      int
	Steps            int
	MovedStrokes     int
	MovedAnnotations int
	MovedLogos       int
	Renamed          int
	Cloned           int
	Deleted          int
}

func (r Report) String() string {
	return fmt.Sprintf("%s %d..%d: %d steps, %d strokes, %d annotations moved, %d cloned, %d deleted",
		r.Op, r.Start, r.Stop, r.Steps, r.MovedStrokes, r.MovedAnnotations, r.Cloned, r.Deleted)
}

// Insert opens an empty panel before global 1-based position i. Content of
// panels i..stop moves one panel forward; content already in panel stop+1
// stays where it is, so the last moved content shares that panel with it.
func (e Engine) Insert(doc *domain.Document, i, stop int) (Report, error) {
	return e.Run(doc, OpInsert, i, stop)
}

// Remove drops the annotations of panel i and moves the content of panels
// i+1..stop+1 one panel back. The annotations panel stop held before the
// call are cloned back into it with fresh template text. Remove(i, i) is
// rejected.
func (e Engine) Remove(doc *domain.Document, i, stop int) (Report, error) {
	return e.Run(doc, OpRemove, i, stop)
}

type step struct {
	src, dst indexer.Panel
}

// plan is the validated cascade of one call.
type plan struct {
	op      Op
	i, stop int
	steps   []step
	dup     indexer.Panel // left vacated; receives template clones
	discard indexer.Panel // absorbs overflow (insert) or loses its annotations (remove)
	pages   [][]indexer.Panel
}

// Run validates and executes op.
func (e Engine) Run(doc *domain.Document, op Op, i, stop int) (Report, error) {
	l := applog.WithOperation(applog.WithComponent("shift"), string(op))
	dir := e.Direction
	if dir == "" {
		dir = doc.Sheet.Direction()
	}
	idx, err := indexer.Index(doc, dir)
	if err != nil {
		return Report{}, err
	}
	p, err := newPlan(idx, op, i, stop)
	if err != nil {
		l.Warn("shift rejected", slog.Int("i", i), slog.Int("stop", stop), slog.Any("err", err))
		return Report{}, err
	}
	rep := p.execute(doc)
	l.Info("shift committed", slog.Int("i", i), slog.Int("stop", stop), slog.Int("steps", rep.Steps),
		slog.Int("strokes", rep.MovedStrokes), slog.Int("annotations", rep.MovedAnnotations),
		slog.Int("cloned", rep.Cloned), slog.Int("deleted", rep.Deleted))
	return rep, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

func newPlan(idx indexer.Result, op Op, i, stop int) (*plan, error) {
	n := idx.Count()
	switch op {
	case OpInsert:
		if i < 1 || i >= n {
			return nil, invalid("insert position %d out of range 1..%d", i, n-1)
		}
	case OpRemove:
		if i < 1 || i > n {
			return nil, invalid("remove position %d out of range 1..%d", i, n)
		}
	default:
		return nil, invalid("unknown shift operation %q", op)
	}
	if stop < 1 || stop >= n {
		return nil, invalid("stop %d out of range 1..%d", stop, n-1)
	}

	p := &plan{op: op, i: i, stop: stop, pages: idx.Pages}
	at := func(k int) indexer.Panel {
		v, _ := idx.At(k)
		return v
	}
	if op == OpInsert {
		p.dup, p.discard = at(i), at(stop+1)
	} else {
		p.dup, p.discard = at(stop), at(i)
	}
	if p.dup.Number == p.discard.Number {
		return nil, invalid("%s %d..%d: duplication and discard panel are both #%d", op, i, stop, p.dup.Number)
	}
	// An inverted range would leave the cascade empty.
	if stop < i {
		return nil, invalid("%s %d..%d: stop lies before start", op, i, stop)
	}
	if op == OpInsert {
		for k := stop; k >= i; k-- {
			p.steps = append(p.steps, step{src: at(k), dst: at(k + 1)})
		}
	} else {
		for k := i; k <= stop; k++ {
			p.steps = append(p.steps, step{src: at(k + 1), dst: at(k)})
		}
	}
	return p, nil
}

// panelNumber returns the 1-based position of p within its page.
func (p *plan) panelNumber(panel indexer.Panel) int {
	if panel.HasKey {
		return panel.Key.Panel + 1
	}
	for j, q := range p.pages[panel.Page] {
		if q.Number == panel.Number {
			return j + 1
		}
	}
	return 1
}

func pageNumber(panel indexer.Panel) int {
	if panel.HasKey {
		return panel.Key.Page + 1
	}
	return panel.Page + 1
}

// moves accumulates translations per entity; nothing is applied until commit.
type moves struct {
	strokes []*domain.Stroke
	annots  []*domain.Annotation
	logos   []*domain.Logo
	sOff    map[*domain.Stroke]geom.Vec3
	aOff    map[*domain.Annotation]geom.Vec3
	lOff    map[*domain.Logo]geom.Vec3
	landed  map[*domain.Annotation]indexer.Panel
}

func (m *moves) strokeIn(s *domain.Stroke, r geom.Rect) bool {
	off := m.sOff[s]
	for _, pt := range s.Points {
		if r.Contains(pt.Pos.Add(off), geom.Epsilon) {
			return true
		}
	}
	return false
}

func (p *plan) execute(doc *domain.Document) Report {
	rep := Report{Op: p.op, Start: p.i, Stop: p.stop, Steps: len(p.steps)}
	m := &moves{
		sOff:   map[*domain.Stroke]geom.Vec3{},
		aOff:   map[*domain.Annotation]geom.Vec3{},
		lOff:   map[*domain.Logo]geom.Vec3{},
		landed: map[*domain.Annotation]indexer.Panel{},
	}
	for _, layer := range doc.LayersByRole(domain.RoleContent) {
		m.strokes = append(m.strokes, layer.Strokes...)
	}
	m.annots = append(m.annots, doc.Annotations...)
	m.logos = append(m.logos, doc.Logos...)

	// Membership of the duplication and discard panels is fixed before any move.
	var dupAnns []*domain.Annotation
	dupNames := map[*domain.Annotation]string{}
	drop := map[*domain.Annotation]bool{}
	for _, a := range m.annots {
		if p.dup.Rect.Contains(a.Position, geom.Epsilon) {
			dupAnns = append(dupAnns, a)
			dupNames[a] = a.Name
		}
		if p.op == OpRemove && p.discard.Rect.Contains(a.Position, geom.Epsilon) {
			drop[a] = true
		}
	}
	originals := make(map[*domain.Annotation]domain.Annotation, len(dupAnns))
	for _, a := range dupAnns {
		originals[a] = *a
	}

	for _, st := range p.steps {
		off := st.dst.Center().Sub(st.src.Center())
		for _, s := range m.strokes {
			if m.strokeIn(s, st.src.Rect) {
				m.sOff[s] = m.sOff[s].Add(off)
			}
		}
		for _, a := range m.annots {
			if drop[a] {
				continue
			}
			if st.src.Rect.Contains(a.Position.Add(m.aOff[a]), geom.Epsilon) {
				m.aOff[a] = m.aOff[a].Add(off)
				m.landed[a] = st.dst
			}
		}
		for _, lg := range m.logos {
			if st.src.Rect.Contains(lg.Position.Add(m.lOff[lg]), geom.Epsilon) {
				m.lOff[lg] = m.lOff[lg].Add(off)
			}
		}
	}

	// Commit.
	for _, s := range m.strokes {
		if off, ok := m.sOff[s]; ok {
			s.Translate(off)
			rep.MovedStrokes++
		}
	}
	for _, a := range m.annots {
		if off, ok := m.aOff[a]; ok {
			a.Position = a.Position.Add(off)
			rep.MovedAnnotations++
		}
	}
	for _, lg := range m.logos {
		if off, ok := m.lOff[lg]; ok {
			lg.Position = lg.Position.Add(off)
			rep.MovedLogos++
		}
	}
	rep.Deleted = doc.DeleteAnnotations(drop)
	rep.Renamed = p.rekey(doc, m)

	page, panel := pageNumber(p.dup), p.panelNumber(p.dup)
	for _, a := range dupAnns {
		orig := originals[a]
		name := dupNames[a]
		if doc.NameTaken(name) {
			name = doc.UniqueName(name)
		}
		doc.CloneAnnotation(&orig, name, doc.Sheet.Template(orig.Kind, page, panel))
		rep.Cloned++
	}
	return rep
}

// rekey renames moved panel-level annotations after the frame they landed in,
// so later regeneration finds them at their new place. Names already held by
// content that did not move get a numeric suffix.
func (p *plan) rekey(doc *domain.Document, m *moves) int {
	type rename struct {
		a    *domain.Annotation
		name string
	}
	var todo []rename
	for _, a := range m.annots {
		dst, ok := m.landed[a]
		if !ok || !dst.HasKey {
			continue
		}
		k, ok := domain.ParseKey(a.Name)
		if !ok || !k.IsPanel() {
			continue
		}
		want := domain.PanelKey(k.Kind, dst.Key.Page, dst.Key.Panel).Name()
		if want != a.Name {
			todo = append(todo, rename{a: a, name: want})
		}
	}
	for _, r := range todo {
		r.a.Name = ""
	}
	for _, r := range todo {
		name := r.name
		if doc.NameTaken(name) {
			name = doc.UniqueName(name)
		}
		r.a.Name = name
	}
	return len(todo)
}
