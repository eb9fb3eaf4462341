/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shift

import (
	"fmt"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/geom"
	"gostoryboard/internal/indexer"
)

// Picker selects the start and stop panels of a shift with two rays cast
// from a viewport. The panel set is indexed once when the picker is created;
// a third pick starts a new selection.
type Picker struct {
	doc    *domain.Document
	engine Engine
	index  indexer.Result
	start  int
	stop   int
}

// NewPicker indexes doc for picking.
func NewPicker(doc *domain.Document, engine Engine) (*Picker, error) {
	dir := engine.Direction
	if dir == "" {
		dir = doc.Sheet.Direction()
	}
	idx, err := indexer.Index(doc, dir)
	if err != nil {
		return nil, err
	}
	return &Picker{doc: doc, engine: engine, index: idx}, nil
}

// Hit returns the nearest panel whose plane the ray crosses inside the frame.
func (p *Picker) Hit(r geom.Ray) (indexer.Panel, bool) {
	var best indexer.Panel
	bestT := -1.0
	for _, panel := range p.index.Panels {
		pts := panel.Stroke.Positions()
		plane, ok := geom.PlaneFromPoints(pts[0], pts[1], pts[2])
		if !ok {
			continue
		}
		hit, t, ok := plane.Intersect(r)
		if !ok || !panel.Rect.Contains(hit, geom.Epsilon) {
			continue
		}
		if bestT < 0 || t < bestT {
			best, bestT = panel, t
		}
	}
	return best, bestT >= 0
}

// Pick records the panel under the ray as start, then stop. Rays that miss
// every panel are ignored and report false.
func (p *Picker) Pick(r geom.Ray) (indexer.Panel, bool) {
	panel, ok := p.Hit(r)
	if !ok {
		return indexer.Panel{}, false
	}
	switch {
	case p.start == 0 || p.stop != 0:
		p.start, p.stop = panel.Number, 0
	default:
		p.stop = panel.Number
	}
	return panel, true
}

// Selection returns the picked 1-based start and stop; 0 means unset.
func (p *Picker) Selection() (start, stop int) { return p.start, p.stop }

// Ready reports whether both panels are picked.
func (p *Picker) Ready() bool { return p.start != 0 && p.stop != 0 }

// Highlight returns the provisional range in reading order.
func (p *Picker) Highlight() []indexer.Panel {
	if p.start == 0 {
		return nil
	}
	lo, hi := p.start, p.stop
	if hi == 0 {
		hi = lo
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return append([]indexer.Panel(nil), p.index.Panels[lo-1:hi]...)
}

// Commit runs op over the picked range and clears the selection.
func (p *Picker) Commit(op Op) (Report, error) {
	if !p.Ready() {
		return Report{}, fmt.Errorf("%w: pick a start and a stop panel first", domain.ErrValidation)
	}
	start, stop := p.start, p.stop
	p.Reset()
	return p.engine.Run(p.doc, op, start, stop)
}

// Reset clears the selection.
func (p *Picker) Reset() { p.start, p.stop = 0, 0 }
