/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders storyboard sheets to print and screen formats.
// Every sheet page becomes one PDF page or one PNG file; page coordinates are
// sheet units (centimetres) measured from the top-left corner of the canvas.
package export

import (
	"fmt"
	"strings"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/geom"
)

// pageContent is what lands on one sheet page.
type pageContent struct {
	Index       int
	Rect        geom.Rect
	Strokes     []*domain.Stroke
	Annotations []*domain.Annotation
	Logos       []*domain.Logo
}

// collectPage gathers the strokes, annotations and logos of page k. A stroke
// belongs to every page it touches; annotations and logos go by their anchor.
func collectPage(doc *domain.Document, k int) pageContent {
	r := doc.Sheet.PageRect(k)
	pc := pageContent{Index: k, Rect: r}
	for _, l := range doc.Layers {
		for _, s := range l.Strokes {
			if b, ok := s.Bounds(); ok && b.Overlaps(r, geom.Epsilon) {
				pc.Strokes = append(pc.Strokes, s)
			}
		}
	}
	for _, a := range doc.Annotations {
		if r.Contains(a.Position, geom.Epsilon) {
			pc.Annotations = append(pc.Annotations, a)
		}
	}
	for _, lg := range doc.Logos {
		if r.Contains(lg.Position, geom.Epsilon) {
			pc.Logos = append(pc.Logos, lg)
		}
	}
	return pc
}

// local maps a world point to page coordinates (x right, y down).
func (pc pageContent) local(p geom.Vec3) (float64, float64) {
	return p.X - pc.Rect.Min.X, pc.Rect.Max.Z - p.Z
}

func pageIndexes(total int, specific []int) ([]int, error) {
	if len(specific) == 0 {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	for _, p := range specific {
		if p < 0 || p >= total {
			return nil, fmt.Errorf("%w: page %d out of range 1..%d", domain.ErrValidation, p+1, total)
		}
	}
	return specific, nil
}

func checkSheet(doc *domain.Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if doc.Sheet.Pages < 1 || doc.Sheet.CanvasWidth <= 0 || doc.Sheet.CanvasHeight <= 0 {
		return fmt.Errorf("%w: document has no generated sheet", domain.ErrMissingDependency)
	}
	return nil
}

func textLines(doc *domain.Document, a *domain.Annotation) []string {
	t := strings.TrimRight(doc.Text(a), "\n")
	if t == "" {
		return nil
	}
	return strings.Split(t, "\n")
}

// strokeWidth is the drawn width of s, at least min.
func strokeWidth(s *domain.Stroke, min float64) float64 {
	w := 0.0
	for _, p := range s.Points {
		if 2*p.Radius > w {
			w = 2 * p.Radius
		}
	}
	if w < min {
		return min
	}
	return w
}
