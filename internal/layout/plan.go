/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"gostoryboard/internal/domain"
	"gostoryboard/internal/geom"
)

// Plan is the computed geometry of a whole sheet. It is derived from a Config
// alone and never from the document.
type Plan struct {
	Config Config
	Ratio  float64
	Pages  []PagePlan
}

// PagePlan holds the rectangles of one page.
type PagePlan struct {
	Index     int
	Origin    geom.Vec3
	Canvas    geom.Rect
	Grid      geom.Rect
	HasHeader bool
	Header    geom.Rect
	HasFooter bool
	Footer    geom.Rect
	HasLogo   bool
	Logo      geom.Rect
	Panels    []PanelPlan
}

// PanelPlan holds the rectangles of one grid cell. Outline is the frame
// stroke: the drawing area plus the notes column when notes are enabled.
type PanelPlan struct {
	Page        int
	Index       int // 0-based within the page, row-major
	Row, Col    int
	Cell        geom.Rect
	Drawing     geom.Rect
	Outline     geom.Rect
	HasNotes    bool
	Notes       geom.Rect
	NotesHeader geom.Rect
	NotesBody   geom.Rect
}

// Key returns the structural key of the panel frame.
func (p PanelPlan) Key(kind domain.Kind) domain.Key { return domain.PanelKey(kind, p.Page, p.Index) }

// cellTemplate is the geometry of one cell relative to the cell's top-left corner.
type cellTemplate struct {
	w, h         float64
	drawW, drawH float64
	notesW       float64
	offX, offZ   float64 // top-left of the drawing+notes group inside the cell
	notesHeaderH float64
}

// Compute validates cfg and returns the geometry for every page. It has no
// side effects.
func Compute(cfg Config) (Plan, error) {
	if err := validateScalars(cfg); err != nil {
		return Plan{}, err
	}
	ratio, err := cfg.Ratio.Resolve()
	if err != nil {
		return Plan{}, err
	}

	m := cfg.CanvasMargin
	hdr, ftr := 0.0, 0.0
	if cfg.Header.Enabled {
		hdr = cfg.Header.Height
	}
	if cfg.Footer.Enabled {
		ftr = cfg.Footer.Height
	}
	effW := cfg.CanvasWidth - 2*m
	effH := cfg.CanvasHeight - 2*m - hdr - ftr
	if effW <= 0 || effH <= 0 {
		return Plan{}, configErr("margins and header/footer (%.3g x %.3g) leave no room on a %.3g x %.3g canvas",
			2*m, 2*m+hdr+ftr, cfg.CanvasWidth, cfg.CanvasHeight)
	}
	gapsX := float64(cfg.Columns-1) * cfg.PanelMarginX
	gapsZ := float64(cfg.Rows-1) * cfg.PanelMarginY
	if gapsX >= effW || gapsZ >= effH {
		return Plan{}, configErr("panel margins (%.3g x %.3g) exceed the grid space (%.3g x %.3g)", gapsX, gapsZ, effW, effH)
	}

	ct := cellTemplate{
		w: (effW - gapsX) / float64(cfg.Columns),
		h: (effH - gapsZ) / float64(cfg.Rows),
	}
	contentW := ct.w * cfg.Coverage / 100
	contentH := ct.h * cfg.Coverage / 100
	if cfg.Notes.Enabled {
		ct.notesW = contentW * cfg.Notes.WidthPercent / 100
		ct.notesHeaderH = cfg.Notes.HeaderHeight
	}
	availW, availH := contentW-ct.notesW, contentH
	ct.drawW, ct.drawH = letterbox(availW, availH, ratio)
	if cfg.Notes.Enabled && ct.notesW > 0 && ct.notesHeaderH >= ct.drawH {
		return Plan{}, configErr("notes header height %.3g does not fit a drawing area %.3g high", ct.notesHeaderH, ct.drawH)
	}
	ct.offX = (ct.w - ct.drawW - ct.notesW) / 2
	ct.offZ = (ct.h - ct.drawH) / 2

	plan := Plan{Config: cfg, Ratio: ratio, Pages: make([]PagePlan, cfg.Pages)}
	for k := 0; k < cfg.Pages; k++ {
		plan.Pages[k] = computePage(cfg, ct, k, hdr, ftr)
		if cfg.Logo.Enabled {
			if err := placeLogo(cfg, &plan.Pages[k]); err != nil {
				return Plan{}, err
			}
		}
	}
	return plan, nil
}

// letterbox fits the largest rectangle of the given ratio into w x h.
func letterbox(w, h, ratio float64) (float64, float64) {
	if w/ratio <= h {
		return w, w / ratio
	}
	return h * ratio, h
}

func computePage(cfg Config, ct cellTemplate, k int, hdr, ftr float64) PagePlan {
	m := cfg.CanvasMargin
	canvas := cfg.PageRect(k)
	pp := PagePlan{
		Index:  k,
		Origin: cfg.PageOrigin(k),
		Canvas: canvas,
		Grid: geom.RectXZ(canvas.Min.X+m, canvas.Min.Z+m+ftr,
			canvas.Max.X-m, canvas.Max.Z-m-hdr),
	}
	if cfg.Header.Enabled {
		pp.HasHeader = true
		pp.Header = geom.RectXZ(canvas.Min.X+m, canvas.Max.Z-m-hdr, canvas.Max.X-m, canvas.Max.Z-m)
	}
	if cfg.Footer.Enabled {
		pp.HasFooter = true
		pp.Footer = geom.RectXZ(canvas.Min.X+m, canvas.Min.Z+m, canvas.Max.X-m, canvas.Min.Z+m+ftr)
	}

	pp.Panels = make([]PanelPlan, 0, cfg.Rows*cfg.Columns)
	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Columns; c++ {
			left := pp.Grid.Min.X + float64(c)*(ct.w+cfg.PanelMarginX)
			top := pp.Grid.Max.Z - float64(r)*(ct.h+cfg.PanelMarginY)
			cell := geom.RectXZ(left, top-ct.h, left+ct.w, top)

			dl := left + ct.offX
			dt := top - ct.offZ
			drawing := geom.RectXZ(dl, dt-ct.drawH, dl+ct.drawW, dt)
			p := PanelPlan{
				Page:    k,
				Index:   r*cfg.Columns + c,
				Row:     r,
				Col:     c,
				Cell:    cell,
				Drawing: drawing,
				Outline: drawing,
			}
			if cfg.Notes.Enabled && ct.notesW > 0 {
				p.HasNotes = true
				p.Notes = geom.RectXZ(drawing.Max.X, drawing.Min.Z, drawing.Max.X+ct.notesW, drawing.Max.Z)
				p.NotesHeader = geom.RectXZ(p.Notes.Min.X, p.Notes.Max.Z-ct.notesHeaderH, p.Notes.Max.X, p.Notes.Max.Z)
				p.NotesBody = geom.RectXZ(p.Notes.Min.X, p.Notes.Min.Z, p.Notes.Max.X, p.Notes.Max.Z-ct.notesHeaderH)
				p.Outline = drawing.Union(p.Notes)
			}
			pp.Panels = append(pp.Panels, p)
		}
	}
	return pp
}

// placeLogo right-aligns the logo in the footer band.
func placeLogo(cfg Config, pp *PagePlan) error {
	w := pp.Footer.Width() * cfg.Logo.WidthPercent / 100
	h := pp.Footer.Height() * 0.8
	if w <= 0 || h <= 0 {
		return configErr("logo does not fit the footer of page %d", pp.Index+1)
	}
	c := geom.Vec3{X: pp.Footer.Max.X - w/2, Z: pp.Footer.Center().Z}
	pp.HasLogo = true
	pp.Logo = geom.RectCentered(c, w, h)
	return nil
}
