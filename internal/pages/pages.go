/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pages grows a storyboard by cloning a template page.
package pages

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/geom"
	"gostoryboard/internal/layout"
	applog "gostoryboard/internal/log"
)

// Report describes one Extend call. Pages are 1-based.
type Report struct {
	Template    int
	FirstPage   int
	Added       int
	Strokes     int
	Annotations int
	Logos       int
}

var pageNumber = regexp.MustCompile(`(?i)\b(page|pg\.?|p\.)(\s*)(\d+)`)

// RenumberText replaces the digits of every page reference ("Page 3",
// "pg. 3", "p.3") with page, keeping the surrounding text.
func RenumberText(text string, page int) string {
	return pageNumber.ReplaceAllString(text, "${1}${2}"+strconv.Itoa(page))
}

// Extend appends count copies of page template (1-based) after the last page.
// Everything anchored on the template page is cloned: frame, separator and
// content strokes, annotations and the logo. Linked annotations keep sharing
// their text, unlinked ones get a private copy with page numbers rewritten.
// Each new page gets its camera and marker.
func Extend(doc *domain.Document, template, count int) (Report, error) {
	l := applog.WithOperation(applog.WithComponent("pages"), "extend")
	sheet := doc.Sheet
	last := sheet.Pages
	if count < 1 {
		return Report{}, fmt.Errorf("%w: page count %d must be at least 1", domain.ErrValidation, count)
	}
	if template < 1 || template > last {
		return Report{}, fmt.Errorf("%w: template page %d out of range 1..%d", domain.ErrValidation, template, last)
	}
	if err := layout.Validate(sheet); err != nil {
		return Report{}, err
	}

	src := template - 1
	area := sheet.PageRect(src)
	type strokeRef struct {
		layer *domain.Layer
		s     *domain.Stroke
	}
	var strokes []strokeRef
	for _, layer := range doc.Layers {
		for _, s := range layer.Strokes {
			if s.AnyPointIn(area, geom.Epsilon) {
				strokes = append(strokes, strokeRef{layer, s})
			}
		}
	}
	var annots []*domain.Annotation
	for _, a := range doc.Annotations {
		if area.Contains(a.Position, geom.Epsilon) {
			annots = append(annots, a)
		}
	}
	var logos []*domain.Logo
	for _, lg := range doc.Logos {
		if area.Contains(lg.Position, geom.Epsilon) {
			logos = append(logos, lg)
		}
	}

	rep := Report{Template: template, FirstPage: last + 1, Added: count}
	for j := 0; j < count; j++ {
		dst := last + j
		off := sheet.PageOrigin(dst).Sub(sheet.PageOrigin(src))
		for _, ref := range strokes {
			c := ref.s.Clone()
			c.Translate(off)
			if ref.s.Name != "" {
				c.Name = rename(doc, ref.s.Name, src, dst)
			}
			ref.layer.Strokes = append(ref.layer.Strokes, c)
			joinCollection(doc, ref.s.Name, c.Name)
			rep.Strokes++
		}
		for _, a := range annots {
			name := rename(doc, a.Name, src, dst)
			var c *domain.Annotation
			if a.Linked {
				c = doc.DuplicateAnnotation(a, name)
			} else {
				c = doc.CloneAnnotation(a, name, RenumberText(doc.Text(a), dst+1))
			}
			c.Position = a.Position.Add(off)
			joinCollection(doc, a.Name, c.Name)
			rep.Annotations++
		}
		for _, lg := range logos {
			c := *lg
			c.Name = rename(doc, lg.Name, src, dst)
			c.Position = lg.Position.Add(off)
			c.Master = false
			doc.Logos = append(doc.Logos, &c)
			joinCollection(doc, lg.Name, c.Name)
			rep.Logos++
		}
	}

	doc.Sheet.Pages = last + count
	if _, err := layout.Bind(doc, doc.Sheet); err != nil {
		return rep, err
	}
	l.Info("pages extended", slog.Int("template", template), slog.Int("added", count),
		slog.Int("strokes", rep.Strokes), slog.Int("annotations", rep.Annotations))
	return rep, nil
}

// rename moves a key of page src to page dst; other names get a unique suffix.
func rename(doc *domain.Document, name string, src, dst int) string {
	if k, ok := domain.ParseKey(name); ok && k.Page == src {
		k.Page = dst
		name = k.Name()
	}
	if doc.NameTaken(name) {
		return doc.UniqueName(name)
	}
	return name
}

func joinCollection(doc *domain.Document, from, to string) {
	if from == "" || to == "" {
		return
	}
	if c := doc.CollectionOf(from); c != "" {
		doc.AddToCollection(c, to)
	}
}
