/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"sort"

	"gostoryboard/internal/geom"
)

// CameraDistance is how far in front of the drawing plane cameras are placed.
const CameraDistance = 10.0

// Scene holds cameras, the timeline marker list and the output resolution.
// Scenes[0] of a document is the sheet scene; derived scenes (animatics) are
// independent copies and never reference sheet geometry.
type Scene struct {
	Name         string    `json:"name"`
	ResolutionX  int       `json:"resolutionX"`
	ResolutionY  int       `json:"resolutionY"`
	FrameStart   int       `json:"frameStart"`
	FrameEnd     int       `json:"frameEnd"`
	FrameCurrent int       `json:"frameCurrent"`
	ActiveCamera string    `json:"activeCamera,omitempty"`
	Cameras      []*Camera `json:"cameras"`
	Markers      []*Marker `json:"markers"`
}

// FindCamera returns the camera named name or nil.
func (s *Scene) FindCamera(name string) *Camera {
	for _, c := range s.Cameras {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// EnsureCamera finds or creates a camera by name. It reports whether it was created.
func (s *Scene) EnsureCamera(name string) (*Camera, bool) {
	if c := s.FindCamera(name); c != nil {
		return c, false
	}
	c := &Camera{Name: name}
	s.Cameras = append(s.Cameras, c)
	return c, true
}

// RemoveCamera deletes the named camera and reports whether it existed.
func (s *Scene) RemoveCamera(name string) bool {
	for i, c := range s.Cameras {
		if c.Name == name {
			s.Cameras = append(s.Cameras[:i], s.Cameras[i+1:]...)
			return true
		}
	}
	return false
}

// FindMarker returns the marker named name or nil.
func (s *Scene) FindMarker(name string) *Marker {
	for _, m := range s.Markers {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// EnsureMarker finds or creates a marker by name. It reports whether it was created.
func (s *Scene) EnsureMarker(name string) (*Marker, bool) {
	if m := s.FindMarker(name); m != nil {
		return m, false
	}
	m := &Marker{Name: name}
	s.Markers = append(s.Markers, m)
	return m, true
}

// RemoveMarker deletes the named marker and reports whether it existed.
func (s *Scene) RemoveMarker(name string) bool {
	for i, m := range s.Markers {
		if m.Name == name {
			s.Markers = append(s.Markers[:i], s.Markers[i+1:]...)
			return true
		}
	}
	return false
}

// SortedMarkers returns the markers ordered by frame, then name.
func (s *Scene) SortedMarkers() []*Marker {
	out := append([]*Marker(nil), s.Markers...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Frame != out[j].Frame {
			return out[i].Frame < out[j].Frame
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Aspect returns ResolutionX/ResolutionY, or 1 when unset.
func (s *Scene) Aspect() float64 {
	if s == nil || s.ResolutionX <= 0 || s.ResolutionY <= 0 {
		return 1
	}
	return float64(s.ResolutionX) / float64(s.ResolutionY)
}

// CameraFrame returns the world-space rectangle a camera frames on the drawing
// plane. The ortho scale spans the long edge of the scene resolution.
func CameraFrame(c *Camera, s *Scene) geom.Rect {
	a := s.Aspect()
	w, h := c.OrthoScale, c.OrthoScale
	if a >= 1 {
		h = c.OrthoScale / a
	} else {
		w = c.OrthoScale * a
	}
	center := geom.Vec3{X: c.Position.X, Z: c.Position.Z}
	return geom.RectCentered(center, w, h)
}
