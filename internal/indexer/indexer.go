/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package indexer recovers panels, their pages and their reading order from
// the current geometry of a document. It keeps no state between calls.
package indexer

import (
	"fmt"
	"sort"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/geom"
)

// Panel is one discovered panel frame.
type Panel struct {
	Number int // global 1-based reading position
	Page   int
	Stroke *domain.Stroke
	Key    domain.Key
	HasKey bool
	Rect   geom.Rect
	seq    int
}

// Min returns the min corner of the frame.
func (p Panel) Min() geom.Vec3 { return p.Rect.Min }

// Max returns the max corner of the frame.
func (p Panel) Max() geom.Vec3 { return p.Rect.Max }

// Center returns the frame centre.
func (p Panel) Center() geom.Vec3 { return p.Rect.Center() }

// Name returns the frame stroke name, or "" for unnamed frames.
func (p Panel) Name() string { return p.Stroke.Name }

func (p Panel) String() string {
	if p.Stroke.Name != "" {
		return fmt.Sprintf("#%d %s", p.Number, p.Stroke.Name)
	}
	return fmt.Sprintf("#%d (page %d)", p.Number, p.Page+1)
}

// Result is the ordered panel set of a document.
type Result struct {
	Pages      [][]Panel   // per page, in reading order
	Panels     []Panel     // Pages flattened in page order
	PageRects  []geom.Rect // camera framing per page
	Unassigned int         // frames outside every page
}

// Count returns the number of indexed panels.
func (r Result) Count() int { return len(r.Panels) }

// At returns the panel at a global 1-based position.
func (r Result) At(n int) (Panel, bool) {
	if n < 1 || n > len(r.Panels) {
		return Panel{}, false
	}
	return r.Panels[n-1], true
}

// Index scans doc for frame strokes and orders them by dir. Strokes that are
// not exactly 4 points are ignored. A document without a frame layer or
// without page cameras is an ErrMissingDependency.
func Index(doc *domain.Document, dir domain.ReadDirection) (Result, error) {
	layers := doc.LayersByRole(domain.RoleFrame)
	if len(layers) == 0 {
		return Result{}, fmt.Errorf("%w: no frame layer in %q", domain.ErrMissingDependency, doc.Name)
	}
	scene := doc.SheetScene()
	cams := doc.PageCameras()
	if len(cams) == 0 {
		return Result{}, fmt.Errorf("%w: no page cameras in %q", domain.ErrMissingDependency, doc.Name)
	}
	pages := make([]int, 0, len(cams))
	for k := range cams {
		pages = append(pages, k)
	}
	sort.Ints(pages)
	last := pages[len(pages)-1]

	res := Result{Pages: make([][]Panel, last+1), PageRects: make([]geom.Rect, last+1)}
	for _, k := range pages {
		res.PageRects[k] = domain.CameraFrame(cams[k], scene)
	}

	seq := 0
	for _, l := range layers {
		for _, s := range l.Strokes {
			if s.Role != domain.RoleFrame || len(s.Points) != 4 {
				continue
			}
			r, _ := s.Bounds()
			p := Panel{Stroke: s, Rect: r, Page: -1, seq: seq}
			seq++
			if k, ok := domain.ParseKey(s.Name); ok && k.Kind == domain.KindFrame {
				p.Key, p.HasKey = k, true
			}
			for _, k := range pages {
				if containsAny(res.PageRects[k], r) {
					p.Page = k
					break
				}
			}
			if p.Page < 0 {
				res.Unassigned++
				continue
			}
			res.Pages[p.Page] = append(res.Pages[p.Page], p)
		}
	}

	n := 0
	for k := range res.Pages {
		Sort(res.Pages[k], dir)
		for i := range res.Pages[k] {
			n++
			res.Pages[k][i].Number = n
			res.Panels = append(res.Panels, res.Pages[k][i])
		}
	}
	return res, nil
}

func containsAny(page, r geom.Rect) bool {
	for _, p := range r.KeyPoints() {
		if page.Contains(p, geom.Epsilon) {
			return true
		}
	}
	return false
}

// Sort orders panels of one page in place. LeftToRight reads rows top to
// bottom; TopToBottom reads columns left to right. Coordinates are rounded to
// absorb float jitter, and remaining ties fall back to the min corner, the
// stroke name and discovery order, so the order is total.
func Sort(panels []Panel, dir domain.ReadDirection) {
	sort.SliceStable(panels, func(i, j int) bool { return less(panels[i], panels[j], dir) })
}

const places = 6

func less(a, b Panel, dir domain.ReadDirection) bool {
	ac, bc := a.Center(), b.Center()
	ax, az := geom.Round(ac.X, places), geom.Round(ac.Z, places)
	bx, bz := geom.Round(bc.X, places), geom.Round(bc.Z, places)
	if dir == domain.TopToBottom {
		if ax != bx {
			return ax < bx
		}
		if az != bz {
			return az > bz
		}
	} else {
		if az != bz {
			return az > bz
		}
		if ax != bx {
			return ax < bx
		}
	}
	am, bm := a.Min(), b.Min()
	if v, w := geom.Round(am.Z, places), geom.Round(bm.Z, places); v != w {
		return v > w
	}
	if v, w := geom.Round(am.X, places), geom.Round(bm.X, places); v != w {
		return v < w
	}
	if a.Stroke.Name != b.Stroke.Name {
		return a.Stroke.Name < b.Stroke.Name
	}
	return a.seq < b.seq
}
