/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shift

import (
	"encoding/json"
	"errors"
	"testing"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/geom"
	"gostoryboard/internal/indexer"
	"gostoryboard/internal/layout"
)

// column builds one page with three 12x8 frames centred at z = 10, 0, -10,
// one content stroke and one notes annotation per frame.
func column(t *testing.T) *domain.Document {
	t.Helper()
	doc := domain.NewDocument("column")
	doc.Sheet.ReadDirection = domain.TopToBottom
	doc.Sheet.Templates.PanelNotes = "Notes {page}.{panel}"
	frames := doc.EnsureLayer(domain.FrameLayerName, domain.RoleFrame)
	content := doc.EnsureLayer(domain.ContentLayerName, domain.RoleContent)
	texts := []string{"one", "two", "three"}
	for i, z := range []float64{10, 0, -10} {
		r := geom.RectCentered(geom.Vec3{Z: z}, 12, 8)
		s, _ := doc.EnsureStroke(frames, domain.PanelKey(domain.KindFrame, 0, i), domain.RoleFrame, "", 4)
		for j, c := range r.Corners() {
			s.Points[j].Pos = c
		}
		st := doc.NewStrokes(content, 1, 2, domain.RoleContent, "pencil")[0]
		st.Points[0].Pos = geom.Vec3{X: -1, Z: z}
		st.Points[1].Pos = geom.Vec3{X: 1, Z: z + 1}
		st.Name = texts[i]
		a, _ := doc.EnsureAnnotation(domain.PanelKey(domain.KindPanelNotes, 0, i), "", false, texts[i])
		a.Position = geom.Vec3{X: -5, Z: z + 2}
	}
	scene := doc.SheetScene()
	scene.ResolutionX, scene.ResolutionY = 1000, 1000
	cam, _ := scene.EnsureCamera("camera_p001")
	cam.Position = geom.Vec3{Y: -domain.CameraDistance}
	cam.OrthoScale = 40
	return doc
}

func snapshot(t *testing.T, doc *domain.Document) string {
	t.Helper()
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func strokeZ(t *testing.T, doc *domain.Document, name string) float64 {
	t.Helper()
	_, s := doc.FindStroke(name)
	if s == nil {
		t.Fatalf("stroke %s missing", name)
	}
	return s.Points[0].Pos.Z
}

func TestInsertCascadeColumn(t *testing.T) {
	doc := column(t)
	rep, err := Engine{Direction: domain.TopToBottom}.Insert(doc, 1, 2)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rep.Steps != 2 || rep.MovedStrokes != 2 || rep.MovedAnnotations != 2 || rep.Cloned != 1 || rep.Deleted != 0 {
		t.Fatalf("report = %+v", rep)
	}
	// Panel 1 content lands in panel 2, panel 2 content in panel 3 next to
	// what panel 3 already held.
	if z := strokeZ(t, doc, "one"); z != 0 {
		t.Fatalf("stroke one at z=%v, want 0", z)
	}
	if z := strokeZ(t, doc, "two"); z != -10 {
		t.Fatalf("stroke two at z=%v, want -10", z)
	}
	if z := strokeZ(t, doc, "three"); z != -10 {
		t.Fatalf("stroke three at z=%v, want -10", z)
	}

	fresh := doc.FindAnnotation("panel_notes_p001_001")
	if fresh == nil || doc.Text(fresh) != "Notes 1.1" || fresh.Position.Z != 12 || fresh.Linked {
		t.Fatalf("vacated panel annotation = %+v text %q", fresh, doc.Text(fresh))
	}
	moved := doc.FindAnnotation("panel_notes_p001_002")
	if moved == nil || doc.Text(moved) != "one" || moved.Position.Z != 2 {
		t.Fatalf("moved annotation = %+v", moved)
	}
	if a := doc.FindAnnotation("panel_notes_p001_003"); a == nil || doc.Text(a) != "three" {
		t.Fatalf("overflow target annotation = %+v", a)
	}
	if a := doc.FindAnnotation("panel_notes_p001_003.001"); a == nil || doc.Text(a) != "two" || a.Position.Z != -8 {
		t.Fatalf("overflow annotation = %+v", a)
	}
	if fresh.Body == moved.Body {
		t.Fatalf("clone shares its body with the moved original")
	}
}

func TestRemoveCascadeColumn(t *testing.T) {
	doc := column(t)
	rep, err := Engine{}.Remove(doc, 1, 2)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if rep.Steps != 2 || rep.Deleted != 1 || rep.Cloned != 1 || rep.MovedStrokes != 2 || rep.MovedAnnotations != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if z := strokeZ(t, doc, "two"); z != 10 {
		t.Fatalf("stroke two at z=%v, want 10", z)
	}
	if z := strokeZ(t, doc, "three"); z != 0 {
		t.Fatalf("stroke three at z=%v, want 0", z)
	}
	if z := strokeZ(t, doc, "one"); z != 10 {
		t.Fatalf("strokes of the removed panel are kept, got z=%v", z)
	}
	if a := doc.FindAnnotation("panel_notes_p001_001"); a == nil || doc.Text(a) != "two" || a.Position.Z != 12 {
		t.Fatalf("panel 1 annotation = %+v", a)
	}
	if a := doc.FindAnnotation("panel_notes_p001_002"); a == nil || doc.Text(a) != "three" || a.Position.Z != 2 {
		t.Fatalf("panel 2 moved annotation = %+v", a)
	}
	// The stop panel gets a template copy of what it held before the call.
	clone := doc.FindAnnotation("panel_notes_p001_002.001")
	if clone == nil || doc.Text(clone) != "Notes 1.2" || clone.Position.Z != 2 || clone.Linked {
		t.Fatalf("stop panel clone = %+v", clone)
	}
	panel3 := geom.RectCentered(geom.Vec3{Z: -10}, 12, 8)
	for _, a := range doc.Annotations {
		if doc.Text(a) == "one" {
			t.Fatalf("annotation of the removed panel survived")
		}
		if panel3.Contains(a.Position, geom.Epsilon) {
			t.Fatalf("panel 3 still holds annotation %s", a.Name)
		}
	}
}

func TestRemoveThenInsertKeepsPanelCount(t *testing.T) {
	doc := column(t)
	before, _ := indexer.Index(doc, domain.TopToBottom)
	if _, err := (Engine{}).Remove(doc, 1, 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := (Engine{}).Insert(doc, 1, 2); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	after, err := indexer.Index(doc, domain.TopToBottom)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if after.Count() != before.Count() {
		t.Fatalf("panel count %d -> %d", before.Count(), after.Count())
	}
}

func TestRejectedShiftsLeaveDocumentUntouched(t *testing.T) {
	cases := []struct {
		op      Op
		i, stop int
	}{
		{OpInsert, 0, 1},
		{OpInsert, 3, 2},
		{OpInsert, 1, 3},
		{OpInsert, 2, 1}, // duplication and discard are both panel 2
		{OpRemove, 1, 1}, // single-panel range: duplication and discard coincide
		{OpRemove, 2, 2},
		{OpRemove, 4, 1},
		{OpRemove, 2, 1},
		{OpRemove, 3, 2},
		{OpRemove, 1, 0},
	}
	for _, tc := range cases {
		doc := column(t)
		before := snapshot(t, doc)
		_, err := Engine{}.Run(doc, tc.op, tc.i, tc.stop)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s(%d,%d): err = %v, want validation error", tc.op, tc.i, tc.stop, err)
		}
		if after := snapshot(t, doc); after != before {
			t.Fatalf("%s(%d,%d) mutated the document", tc.op, tc.i, tc.stop)
		}
	}
}

func TestShiftWithoutFramesIsMissingDependency(t *testing.T) {
	doc := domain.NewDocument("empty")
	if _, err := (Engine{}).Insert(doc, 1, 1); !errors.Is(err, domain.ErrMissingDependency) {
		t.Fatalf("err = %v", err)
	}
}

func TestInsertOnGeneratedGrid(t *testing.T) {
	cfg := layout.Defaults()
	cfg.Rows, cfg.Columns = 2, 2
	doc := domain.NewDocument("grid")
	if _, err := layout.Generate(doc, cfg); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	idx, err := indexer.Index(doc, cfg.Direction())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	content := doc.EnsureLayer(domain.ContentLayerName, domain.RoleContent)
	for _, p := range idx.Panels {
		s := doc.NewStrokes(content, 1, 1, domain.RoleContent, "")[0]
		s.Name = "ink_" + p.Name()
		s.Points[0].Pos = p.Center()
	}
	if _, err := (Engine{}).Insert(doc, 1, 3); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for k := 0; k < 3; k++ {
		_, s := doc.FindStroke("ink_" + idx.Panels[k].Name())
		owner := idx.Panels[k+1]
		if !owner.Rect.Contains(s.Points[0].Pos, geom.Epsilon) {
			t.Fatalf("content of panel %d not in panel %d", k+1, k+2)
		}
	}
	if a := doc.FindAnnotation("panel_header_p001_001"); a == nil || doc.Text(a) != "Shot 1" {
		t.Fatalf("panel 1 header = %+v", a)
	}
	if a := doc.FindAnnotation("panel_header_p001_002"); a == nil || doc.Text(a) != "Shot 1" {
		t.Fatalf("moved header = %+v", a)
	}
}

func TestPickerSelectsAndCommits(t *testing.T) {
	doc := column(t)
	p, err := NewPicker(doc, Engine{Direction: domain.TopToBottom})
	if err != nil {
		t.Fatalf("NewPicker: %v", err)
	}
	ray := func(z float64) geom.Ray {
		return geom.Ray{Origin: geom.Vec3{X: 1, Y: -domain.CameraDistance, Z: z}, Dir: geom.Vec3{Y: 1}}
	}
	if _, ok := p.Pick(ray(100)); ok {
		t.Fatalf("ray outside every panel was accepted")
	}
	if _, err := p.Commit(OpInsert); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("commit without selection: err = %v", err)
	}
	if hit, ok := p.Pick(ray(11)); !ok || hit.Number != 1 {
		t.Fatalf("first pick = %v, %v", hit, ok)
	}
	if got := p.Highlight(); len(got) != 1 {
		t.Fatalf("highlight after one pick = %d panels", len(got))
	}
	if hit, ok := p.Pick(ray(-1)); !ok || hit.Number != 2 {
		t.Fatalf("second pick = %v, %v", hit, ok)
	}
	if !p.Ready() || len(p.Highlight()) != 2 {
		t.Fatalf("selection not ready: %v", p.Highlight())
	}
	rep, err := p.Commit(OpInsert)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if rep.Start != 1 || rep.Stop != 2 || p.Ready() {
		t.Fatalf("report = %+v ready=%v", rep, p.Ready())
	}
	if z := strokeZ(t, doc, "one"); z != 0 {
		t.Fatalf("stroke one at z=%v", z)
	}
}

func TestParseOp(t *testing.T) {
	if op, err := ParseOp("remove"); err != nil || op != OpRemove {
		t.Fatalf("ParseOp = %v, %v", op, err)
	}
	if _, err := ParseOp("swap"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}
