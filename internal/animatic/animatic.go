/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package animatic turns the ordered panel sequence of a storyboard into a
// flat shot list: a derived scene with one camera and one marker per panel.
// The derived scene is independent of the sheet and can be edited with the
// timeline helpers without touching the layout.
package animatic

import (
	"fmt"
	"log/slog"
	"math"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/indexer"
	"gostoryboard/internal/layout"
	applog "gostoryboard/internal/log"
)

// DefaultShotDuration is used when Options.ShotDuration is zero.
const DefaultShotDuration = 24

// Options controls Export.
type Options struct {
	ShotDuration int                  // frames per panel
	SceneName    string               // defaults to <document>_animatic
	Direction    domain.ReadDirection // defaults to the sheet direction
}

// SceneName returns the derived scene name for doc.
func SceneName(doc *domain.Document) string { return doc.Name + "_animatic" }

// ShotName returns the camera and marker name of the n-th shot (1-based).
func ShotName(n int) string { return fmt.Sprintf("shot_%04d", n) }

// Export indexes doc and installs a derived scene with one camera framing
// each panel and a marker at index*duration. An existing derived scene of the
// same name is replaced; the sheet scene is never modified.
func Export(doc *domain.Document, opts Options) (*domain.Scene, error) {
	l := applog.WithOperation(applog.WithComponent("animatic"), "export")
	dur := opts.ShotDuration
	if dur == 0 {
		dur = DefaultShotDuration
	}
	if dur < 0 {
		return nil, fmt.Errorf("%w: shot duration %d must be positive", domain.ErrValidation, dur)
	}
	dir := opts.Direction
	if dir == "" {
		dir = doc.Sheet.Direction()
	}
	idx, err := indexer.Index(doc, dir)
	if err != nil {
		return nil, err
	}
	if idx.Count() == 0 {
		return nil, fmt.Errorf("%w: no panels inside any page camera", domain.ErrMissingDependency)
	}

	name := opts.SceneName
	if name == "" {
		name = SceneName(doc)
	}
	if name == doc.SheetScene().Name {
		return nil, fmt.Errorf("%w: animatic scene name %q is the sheet scene", domain.ErrValidation, name)
	}

	first := idx.Panels[0].Rect
	scene := &domain.Scene{Name: name, Cameras: []*domain.Camera{}, Markers: []*domain.Marker{}}
	scene.ResolutionX, scene.ResolutionY = resolution(first.Width() / first.Height())
	aspect := scene.Aspect()
	for i, p := range idx.Panels {
		shot := ShotName(i + 1)
		c := p.Center()
		c.Y = -domain.CameraDistance
		scene.Cameras = append(scene.Cameras, &domain.Camera{
			Name:       shot,
			Position:   c,
			OrthoScale: fitScale(p.Rect.Width(), p.Rect.Height(), aspect),
		})
		scene.Markers = append(scene.Markers, &domain.Marker{Name: shot, Frame: i * dur, Camera: shot})
	}
	scene.ActiveCamera = scene.Cameras[0].Name
	scene.FrameStart = 0
	scene.FrameCurrent = 0
	scene.FrameEnd = idx.Count() * dur
	doc.ReplaceScene(scene)

	l.Info("animatic exported", slog.String("scene", name), slog.Int("shots", idx.Count()), slog.Int("duration", dur))
	return scene, nil
}

func resolution(aspect float64) (int, int) {
	if aspect >= 1 {
		return layout.OutputLongEdge, int(math.Round(layout.OutputLongEdge / aspect))
	}
	return int(math.Round(layout.OutputLongEdge * aspect)), layout.OutputLongEdge
}

// fitScale returns the smallest ortho scale whose frame covers w x h at the
// given output aspect.
func fitScale(w, h, aspect float64) float64 {
	if aspect >= 1 {
		return math.Max(w, h*aspect)
	}
	return math.Max(h, w/aspect)
}
