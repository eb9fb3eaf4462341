/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the storyboard document model. A document is a stack of
// pages drawn on one shared canvas size; panels are recovered from geometry
// (4-point frame strokes) rather than stored as records, so hand edits made
// between operations are always honoured.

import (
	"fmt"

	"gostoryboard/internal/geom"
)

// Role tags a layer or stroke with its structural meaning.
type Role string

const (
	RoleFrame     Role = "frame"     // panel outlines; also the role of the structural layer
	RoleSeparator Role = "separator" // notes dividers inside a panel
	RoleContent   Role = "content"   // user drawings
)

// Point is one stroke sample.
type Point struct {
	Pos    geom.Vec3 `json:"pos"`
	Radius float64   `json:"radius"`
}

// Stroke is an ordered vector path owned by exactly one layer.
// Name is empty for user content and deterministic for generated strokes.
type Stroke struct {
	Name   string  `json:"name,omitempty"`
	Role   Role    `json:"role"`
	Style  string  `json:"style,omitempty"`
	Points []Point `json:"points"`
}

// Positions returns the point positions in order.
func (s *Stroke) Positions() []geom.Vec3 {
	out := make([]geom.Vec3, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Pos
	}
	return out
}

// Bounds returns the bounding box of the stroke points.
func (s *Stroke) Bounds() (geom.Rect, bool) { return geom.RectFromPoints(s.Positions()) }

// Translate moves every point by d in place. Radii are untouched.
func (s *Stroke) Translate(d geom.Vec3) {
	for i := range s.Points {
		s.Points[i].Pos = s.Points[i].Pos.Add(d)
	}
}

// AnyPointIn reports whether at least one point lies inside r.
func (s *Stroke) AnyPointIn(r geom.Rect, eps float64) bool {
	for _, p := range s.Points {
		if r.Contains(p.Pos, eps) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (s *Stroke) Clone() *Stroke {
	c := *s
	c.Points = append([]Point(nil), s.Points...)
	return &c
}

// Layer owns strokes. Frame layers hold the structural outlines; content
// layers hold user drawings and are the only ones the shift engine migrates.
type Layer struct {
	Name    string    `json:"name"`
	Role    Role      `json:"role"`
	Strokes []*Stroke `json:"strokes"`
}

// StrokesByRole returns the strokes tagged with role.
func (l *Layer) StrokesByRole(role Role) []*Stroke {
	var out []*Stroke
	for _, s := range l.Strokes {
		if s.Role == role {
			out = append(out, s)
		}
	}
	return out
}

// Align is the horizontal text alignment of an annotation.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Annotation is a point-anchored text entity. Body references an entry in
// Document.Texts; when Linked is true that entry is shared with sibling
// annotations on other pages, so editing one edits all.
type Annotation struct {
	Name     string    `json:"name"`
	Kind     Kind      `json:"kind,omitempty"`
	Body     string    `json:"body"`
	Linked   bool      `json:"linked,omitempty"`
	Size     float64   `json:"size"`
	Align    Align     `json:"align"`
	Position geom.Vec3 `json:"position"`
	Rotation float64   `json:"rotation,omitempty"`
}

// Logo is an image-backed rectangle in a page footer. Image references
// Document.Images; duplicates share it and keep their own transform.
type Logo struct {
	Name     string    `json:"name"`
	Image    string    `json:"image"`
	Position geom.Vec3 `json:"position"`
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Master   bool      `json:"master,omitempty"`
}

// Rect returns the logo area centred on its position.
func (l *Logo) Rect() geom.Rect { return geom.RectCentered(l.Position, l.Width, l.Height) }

// Image is shared image data referenced by logos.
type Image struct {
	Path string `json:"path"`
}

// Camera is an orthographic camera looking down +Y at the drawing plane.
type Camera struct {
	Name       string    `json:"name"`
	Position   geom.Vec3 `json:"position"`
	OrthoScale float64   `json:"orthoScale"`
}

// Marker binds a timeline frame to a camera.
type Marker struct {
	Name   string `json:"name"`
	Frame  int    `json:"frame"`
	Camera string `json:"camera,omitempty"`
}

func (m Marker) String() string { return fmt.Sprintf("%s@%d", m.Name, m.Frame) }
