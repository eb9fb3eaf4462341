/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"log/slog"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/geom"
	applog "gostoryboard/internal/log"
)

// StrokeRadius is the point radius of generated frame and separator strokes.
const StrokeRadius = 0.02

// Shared resource ids for linked content.
const (
	PageHeaderBody = "page_header"
	LogoImage      = "logo"
)

// Report summarises one Generate call.
type Report struct {
	Pages   int
	Panels  int
	Created int
	Removed int
}

// Generate computes the plan for cfg and materialises it in doc. Nothing is
// mutated when cfg is invalid. Existing entities are found by key and only
// their geometry, size and alignment are refreshed; text is left alone.
func Generate(doc *domain.Document, cfg Config) (Report, error) {
	l := applog.WithOperation(applog.WithComponent("layout"), "generate")
	plan, err := Compute(cfg)
	if err != nil {
		l.Warn("invalid sheet configuration", slog.Any("err", err))
		return Report{}, err
	}

	g := &generator{doc: doc, cfg: cfg}
	g.frames = doc.EnsureLayer(domain.FrameLayerName, domain.RoleFrame)
	doc.EnsureLayer(domain.ContentLayerName, domain.RoleContent)
	if cfg.Logo.Enabled {
		doc.EnsureImage(LogoImage, cfg.Logo.Image)
	}
	for _, pp := range plan.Pages {
		for _, p := range pp.Panels {
			g.panel(p)
		}
		g.page(pp)
	}
	g.prune(plan)
	doc.Sheet = cfg

	if _, err := Bind(doc, cfg); err != nil {
		return Report{}, err
	}
	rep := Report{Pages: len(plan.Pages), Panels: len(plan.Pages) * cfg.Rows * cfg.Columns, Created: g.created, Removed: g.removed}
	l.Info("sheet generated", slog.Int("pages", rep.Pages), slog.Int("panels", rep.Panels),
		slog.Int("created", rep.Created), slog.Int("removed", rep.Removed))
	return rep, nil
}

type generator struct {
	doc     *domain.Document
	cfg     Config
	frames  *domain.Layer
	created int
	removed int
}

func (g *generator) count(created bool) {
	if created {
		g.created++
	}
}

func (g *generator) stroke(key domain.Key, role domain.Role, pts ...geom.Vec3) *domain.Stroke {
	s, created := g.doc.EnsureStroke(g.frames, key, role, string(key.Kind), len(pts))
	g.count(created)
	for i, p := range pts {
		s.Points[i] = domain.Point{Pos: p, Radius: StrokeRadius}
	}
	return s
}

func (g *generator) annotation(key domain.Key, shared string, linked bool, pos geom.Vec3, align domain.Align) *domain.Annotation {
	page, panel := key.Page+1, key.Panel+1
	a, created := g.doc.EnsureAnnotation(key, shared, linked, g.cfg.Template(key.Kind, page, panel))
	g.count(created)
	a.Kind = key.Kind
	a.Position = pos
	a.Size = g.cfg.TextSize
	a.Align = align
	a.Rotation = 0
	return a
}

func (g *generator) pad() float64 { return g.cfg.TextSize / 2 }

// anchorTopLeft returns a point inset by pad from the top-left of r, never
// past its centre.
func anchorTopLeft(r geom.Rect, pad, size float64) geom.Vec3 {
	c := r.Center()
	x := r.Min.X + pad
	z := r.Max.Z - pad - size/2
	if x > c.X {
		x = c.X
	}
	if z < c.Z {
		z = c.Z
	}
	return geom.Vec3{X: x, Y: r.Min.Y, Z: z}
}

func (g *generator) panel(p PanelPlan) {
	frame := g.stroke(p.Key(domain.KindFrame), domain.RoleFrame, cornerSlice(p.Outline)...)
	g.doc.AddToCollection(domain.CollectionFrames, frame.Name)

	headerAt := anchorTopLeft(p.Drawing, g.pad(), g.cfg.TextSize)
	if p.HasNotes {
		sep := g.stroke(p.Key(domain.KindSeparator), domain.RoleSeparator,
			geom.Vec3{X: p.Drawing.Max.X, Z: p.Drawing.Max.Z}, geom.Vec3{X: p.Drawing.Max.X, Z: p.Drawing.Min.Z})
		rule := g.stroke(p.Key(domain.KindNotesRule), domain.RoleSeparator,
			geom.Vec3{X: p.Notes.Min.X, Z: p.NotesHeader.Min.Z}, geom.Vec3{X: p.Notes.Max.X, Z: p.NotesHeader.Min.Z})
		g.doc.AddToCollection(domain.CollectionFrames, sep.Name)
		g.doc.AddToCollection(domain.CollectionFrames, rule.Name)

		hc := p.NotesHeader.Center()
		headerAt = geom.Vec3{X: p.NotesHeader.Min.X + g.pad(), Z: hc.Z}
		if headerAt.X > hc.X {
			headerAt.X = hc.X
		}
		notes := g.annotation(p.Key(domain.KindPanelNotes), "", false, anchorTopLeft(p.NotesBody, g.pad(), g.cfg.TextSize), domain.AlignLeft)
		g.doc.AddToCollection(domain.CollectionFrames, notes.Name)
	}
	header := g.annotation(p.Key(domain.KindPanelHeader), "", false, headerAt, domain.AlignLeft)
	g.doc.AddToCollection(domain.CollectionFrames, header.Name)
}

func (g *generator) page(pp PagePlan) {
	if pp.HasHeader {
		a := g.annotation(domain.PageKey(domain.KindPageHeader, pp.Index), PageHeaderBody, true, pp.Header.Center(), domain.AlignCenter)
		g.doc.AddToCollection(domain.CollectionPageHeaders, a.Name)
	}
	if pp.HasFooter {
		c := pp.Footer.Center()
		pos := geom.Vec3{X: pp.Footer.Min.X + g.pad(), Z: c.Z}
		a := g.annotation(domain.PageKey(domain.KindPageFooter, pp.Index), "", false, pos, domain.AlignLeft)
		g.doc.AddToCollection(domain.CollectionPageFooters, a.Name)
	}
	if pp.HasLogo {
		lg, created := g.doc.EnsureLogo(domain.PageKey(domain.KindLogo, pp.Index), LogoImage)
		g.count(created)
		lg.Image = LogoImage
		lg.Position = pp.Logo.Center()
		lg.Width = pp.Logo.Width()
		lg.Height = pp.Logo.Height()
		lg.Master = pp.Index == 0
		g.doc.AddToCollection(domain.CollectionLogos, lg.Name)
	}
}

// prune removes generated entities keyed beyond the plan or of a kind the
// configuration no longer produces.
func (g *generator) prune(plan Plan) {
	cfg := plan.Config
	perPage := cfg.Rows * cfg.Columns
	notes := cfg.Notes.Enabled && len(plan.Pages) > 0 && len(plan.Pages[0].Panels) > 0 && plan.Pages[0].Panels[0].HasNotes
	stale := func(name string) bool {
		k, ok := domain.ParseKey(name)
		if !ok {
			return false
		}
		switch k.Kind {
		case domain.KindFrame, domain.KindPanelHeader:
			return !k.IsPanel() || k.Page >= cfg.Pages || k.Panel >= perPage
		case domain.KindSeparator, domain.KindNotesRule, domain.KindPanelNotes:
			return !notes || !k.IsPanel() || k.Page >= cfg.Pages || k.Panel >= perPage
		case domain.KindPageHeader:
			return !cfg.Header.Enabled || k.IsPanel() || k.Page >= cfg.Pages
		case domain.KindPageFooter:
			return !cfg.Footer.Enabled || k.IsPanel() || k.Page >= cfg.Pages
		case domain.KindLogo:
			return !cfg.Logo.Enabled || k.IsPanel() || k.Page >= cfg.Pages
		}
		return false
	}

	for _, layer := range g.doc.LayersByRole(domain.RoleFrame) {
		var names []string
		for _, s := range layer.Strokes {
			if stale(s.Name) {
				names = append(names, s.Name)
			}
		}
		for _, n := range names {
			if g.doc.RemoveStroke(n) {
				g.removed++
			}
			g.forget(n)
		}
	}
	drop := map[*domain.Annotation]bool{}
	for _, a := range g.doc.Annotations {
		if stale(a.Name) {
			drop[a] = true
			g.forget(a.Name)
		}
	}
	g.removed += g.doc.DeleteAnnotations(drop)
	var logos []string
	for _, lg := range g.doc.Logos {
		if stale(lg.Name) {
			logos = append(logos, lg.Name)
		}
	}
	for _, n := range logos {
		if g.doc.RemoveLogo(n) {
			g.removed++
		}
		g.forget(n)
	}
}

func (g *generator) forget(name string) {
	if c := g.doc.CollectionOf(name); c != "" {
		g.doc.RemoveFromCollection(c, name)
	}
}

func cornerSlice(r geom.Rect) []geom.Vec3 {
	c := r.Corners()
	return c[:]
}
