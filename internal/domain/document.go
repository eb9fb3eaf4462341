/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"fmt"
)

// Default layer names used by the generator.
const (
	FrameLayerName   = "Frames"
	ContentLayerName = "Drawing"
)

// Collection names grouping generated entities per kind.
const (
	CollectionFrames      = "frames"
	CollectionPageHeaders = "page_headers"
	CollectionPageFooters = "page_footers"
	CollectionCameras     = "cameras"
	CollectionLogos       = "logos"
)

// Document is the whole storyboard: one sheet configuration, the stroke layers,
// point-anchored entities and scenes. It is treated as a single unit for locking
// and persistence.
type Document struct {
	Name        string              `json:"name"`
	Sheet       Sheet               `json:"sheet"`
	Layers      []*Layer            `json:"layers"`
	Annotations []*Annotation       `json:"annotations"`
	Logos       []*Logo             `json:"logos"`
	Texts       map[string]string   `json:"texts"`
	Images      map[string]Image    `json:"images"`
	Collections map[string][]string `json:"collections"`
	Scenes      []*Scene            `json:"scenes"`
}

// NewDocument returns an empty document with its sheet scene.
func NewDocument(name string) *Document {
	d := &Document{
		Name:        name,
		Layers:      []*Layer{},
		Annotations: []*Annotation{},
		Logos:       []*Logo{},
		Texts:       map[string]string{},
		Images:      map[string]Image{},
		Collections: map[string][]string{},
	}
	d.SheetScene()
	return d
}

// Clone returns a deep copy.
func (d *Document) Clone() (*Document, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("clone document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("clone document: %w", err)
	}
	out.Normalize()
	return &out, nil
}

// Normalize replaces nil lists and tables with empty ones, so a document
// decoded from sparse JSON encodes the same way as a fresh one.
func (d *Document) Normalize() {
	d.ensureMaps()
	if d.Layers == nil {
		d.Layers = []*Layer{}
	}
	if d.Annotations == nil {
		d.Annotations = []*Annotation{}
	}
	if d.Logos == nil {
		d.Logos = []*Logo{}
	}
	for _, l := range d.Layers {
		if l.Strokes == nil {
			l.Strokes = []*Stroke{}
		}
	}
	for _, s := range d.Scenes {
		if s.Cameras == nil {
			s.Cameras = []*Camera{}
		}
		if s.Markers == nil {
			s.Markers = []*Marker{}
		}
	}
}

func (d *Document) ensureMaps() {
	if d.Texts == nil {
		d.Texts = map[string]string{}
	}
	if d.Images == nil {
		d.Images = map[string]Image{}
	}
	if d.Collections == nil {
		d.Collections = map[string][]string{}
	}
}

// SheetScene returns the primary scene, creating it when missing.
func (d *Document) SheetScene() *Scene {
	if len(d.Scenes) == 0 {
		name := d.Name
		if name == "" {
			name = "Storyboard"
		}
		d.Scenes = append(d.Scenes, &Scene{Name: name, FrameStart: 1, FrameEnd: 1, FrameCurrent: 1,
			Cameras: []*Camera{}, Markers: []*Marker{}})
	}
	return d.Scenes[0]
}

// FindScene returns the scene named name or nil.
func (d *Document) FindScene(name string) *Scene {
	for _, s := range d.Scenes {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ReplaceScene installs s, replacing a derived scene with the same name.
// The sheet scene is never replaced.
func (d *Document) ReplaceScene(s *Scene) {
	d.SheetScene()
	for i := 1; i < len(d.Scenes); i++ {
		if d.Scenes[i].Name == s.Name {
			d.Scenes[i] = s
			return
		}
	}
	d.Scenes = append(d.Scenes, s)
}

// --- layers and strokes ---

// EnsureLayer finds a layer by name or appends a new one with role.
func (d *Document) EnsureLayer(name string, role Role) *Layer {
	for _, l := range d.Layers {
		if l.Name == name {
			return l
		}
	}
	l := &Layer{Name: name, Role: role, Strokes: []*Stroke{}}
	d.Layers = append(d.Layers, l)
	return l
}

// LayersByRole returns layers with the given role in document order.
func (d *Document) LayersByRole(role Role) []*Layer {
	var out []*Layer
	for _, l := range d.Layers {
		if l.Role == role {
			out = append(out, l)
		}
	}
	return out
}

// FindStroke looks a named stroke up across all layers.
func (d *Document) FindStroke(name string) (*Layer, *Stroke) {
	if name == "" {
		return nil, nil
	}
	for _, l := range d.Layers {
		for _, s := range l.Strokes {
			if s.Name == name {
				return l, s
			}
		}
	}
	return nil, nil
}

// EnsureStroke finds the stroke for key or creates it in layer with n zeroed
// points. An existing stroke keeps its layer; its point count is reset to n.
func (d *Document) EnsureStroke(layer *Layer, key Key, role Role, style string, n int) (*Stroke, bool) {
	if _, s := d.FindStroke(key.Name()); s != nil {
		if len(s.Points) != n {
			s.Points = make([]Point, n)
		}
		s.Role = role
		return s, false
	}
	s := &Stroke{Name: key.Name(), Role: role, Style: style, Points: make([]Point, n)}
	layer.Strokes = append(layer.Strokes, s)
	return s, true
}

// NewStrokes appends count empty strokes of pointCount points to layer.
func (d *Document) NewStrokes(layer *Layer, count, pointCount int, role Role, style string) []*Stroke {
	out := make([]*Stroke, 0, count)
	for i := 0; i < count; i++ {
		s := &Stroke{Role: role, Style: style, Points: make([]Point, pointCount)}
		layer.Strokes = append(layer.Strokes, s)
		out = append(out, s)
	}
	return out
}

// RemoveStroke deletes a named stroke and reports whether it existed.
func (d *Document) RemoveStroke(name string) bool {
	for _, l := range d.Layers {
		for i, s := range l.Strokes {
			if s.Name == name {
				l.Strokes = append(l.Strokes[:i], l.Strokes[i+1:]...)
				return true
			}
		}
	}
	return false
}

// --- annotations ---

// FindAnnotation returns the annotation named name or nil.
func (d *Document) FindAnnotation(name string) *Annotation {
	for _, a := range d.Annotations {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// EnsureAnnotation finds the annotation for key or creates it. A new linked
// annotation points at the shared body (created with initial if absent); a new
// unlinked one gets a private body seeded with initial. Existing text is never
// touched.
func (d *Document) EnsureAnnotation(key Key, shared string, linked bool, initial string) (*Annotation, bool) {
	d.ensureMaps()
	if a := d.FindAnnotation(key.Name()); a != nil {
		return a, false
	}
	a := &Annotation{Name: key.Name(), Kind: key.Kind, Linked: linked, Align: AlignLeft}
	if linked {
		a.Body = shared
	} else {
		a.Body = d.uniqueTextID(a.Name)
	}
	if _, ok := d.Texts[a.Body]; !ok {
		d.Texts[a.Body] = initial
	}
	d.Annotations = append(d.Annotations, a)
	return a, true
}

// Text returns the body text of a.
func (d *Document) Text(a *Annotation) string { return d.Texts[a.Body] }

// SetText replaces the body of a; linked siblings see the change.
func (d *Document) SetText(a *Annotation, s string) {
	d.ensureMaps()
	d.Texts[a.Body] = s
}

// CloneAnnotation appends an independent, unlinked copy of a named name with
// its own body set to text.
func (d *Document) CloneAnnotation(a *Annotation, name, text string) *Annotation {
	d.ensureMaps()
	c := *a
	c.Name = name
	c.Linked = false
	c.Body = d.uniqueTextID(name)
	d.Texts[c.Body] = text
	d.Annotations = append(d.Annotations, &c)
	return &c
}

// DuplicateAnnotation appends a copy of a named name. Linked annotations keep
// sharing their body; unlinked ones get a private copy of the current text.
func (d *Document) DuplicateAnnotation(a *Annotation, name string) *Annotation {
	if !a.Linked {
		return d.CloneAnnotation(a, name, d.Text(a))
	}
	c := *a
	c.Name = name
	d.Annotations = append(d.Annotations, &c)
	return &c
}

// DeleteAnnotations removes every annotation in set by identity and drops
// bodies nothing references any more. It returns the number removed.
func (d *Document) DeleteAnnotations(set map[*Annotation]bool) int {
	if len(set) == 0 {
		return 0
	}
	kept := d.Annotations[:0]
	removed := 0
	for _, a := range d.Annotations {
		if set[a] {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	for i := len(kept); i < len(d.Annotations); i++ {
		d.Annotations[i] = nil
	}
	d.Annotations = kept
	d.gcTexts()
	return removed
}

// RemoveAnnotation deletes a named annotation and reports whether it existed.
func (d *Document) RemoveAnnotation(name string) bool {
	a := d.FindAnnotation(name)
	if a == nil {
		return false
	}
	return d.DeleteAnnotations(map[*Annotation]bool{a: true}) == 1
}

func (d *Document) gcTexts() {
	used := make(map[string]bool, len(d.Annotations))
	for _, a := range d.Annotations {
		used[a.Body] = true
	}
	for id := range d.Texts {
		if !used[id] {
			delete(d.Texts, id)
		}
	}
}

func (d *Document) uniqueTextID(base string) string {
	if _, ok := d.Texts[base]; !ok {
		return base
	}
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s.%03d", base, n)
		if _, ok := d.Texts[id]; !ok {
			return id
		}
	}
}

// --- logos ---

// FindLogo returns the logo named name or nil.
func (d *Document) FindLogo(name string) *Logo {
	for _, l := range d.Logos {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// EnsureLogo finds or creates the logo for key, sharing image.
func (d *Document) EnsureLogo(key Key, image string) (*Logo, bool) {
	if l := d.FindLogo(key.Name()); l != nil {
		return l, false
	}
	l := &Logo{Name: key.Name(), Image: image}
	d.Logos = append(d.Logos, l)
	return l, true
}

// RemoveLogo deletes a named logo and reports whether it existed.
func (d *Document) RemoveLogo(name string) bool {
	for i, l := range d.Logos {
		if l.Name == name {
			d.Logos = append(d.Logos[:i], d.Logos[i+1:]...)
			return true
		}
	}
	return false
}

// EnsureImage registers or updates the shared image id.
func (d *Document) EnsureImage(id, path string) {
	d.ensureMaps()
	d.Images[id] = Image{Path: path}
}

// --- naming and collections ---

// NameTaken reports whether any stroke, annotation or logo uses name.
func (d *Document) NameTaken(name string) bool {
	if _, s := d.FindStroke(name); s != nil {
		return true
	}
	return d.FindAnnotation(name) != nil || d.FindLogo(name) != nil
}

// UniqueName returns base, or base.NNN when base is already used.
func (d *Document) UniqueName(base string) string {
	if !d.NameTaken(base) {
		return base
	}
	for n := 1; ; n++ {
		name := fmt.Sprintf("%s.%03d", base, n)
		if !d.NameTaken(name) {
			return name
		}
	}
}

// AddToCollection records name in collection once.
func (d *Document) AddToCollection(collection, name string) {
	d.ensureMaps()
	for _, n := range d.Collections[collection] {
		if n == name {
			return
		}
	}
	d.Collections[collection] = append(d.Collections[collection], name)
}

// RemoveFromCollection forgets name in collection.
func (d *Document) RemoveFromCollection(collection, name string) {
	list := d.Collections[collection]
	for i, n := range list {
		if n == name {
			d.Collections[collection] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// CollectionOf returns the collection that lists name, or "".
func (d *Document) CollectionOf(name string) string {
	for c, list := range d.Collections {
		for _, n := range list {
			if n == name {
				return c
			}
		}
	}
	return ""
}

// PageCameras returns the sheet cameras keyed to pages, indexed by page.
// Cameras whose names are not page keys are ignored.
func (d *Document) PageCameras() map[int]*Camera {
	out := map[int]*Camera{}
	for _, c := range d.SheetScene().Cameras {
		if k, ok := ParseKey(c.Name); ok && k.Kind == KindCamera && !k.IsPanel() {
			out[k.Page] = c
		}
	}
	return out
}
