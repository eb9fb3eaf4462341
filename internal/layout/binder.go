/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"math"

	"gostoryboard/internal/domain"
)

// OutputLongEdge is the pixel size of the long edge of the sheet scene output.
const OutputLongEdge = 1920

// Bind creates or reuses one camera per page framing the canvas plus the
// camera margin, and one marker per page when markers are enabled. Cameras
// and markers keyed beyond the page count are removed. It returns the sheet
// scene.
func Bind(doc *domain.Document, cfg Config) (*domain.Scene, error) {
	if err := validateScalars(cfg); err != nil {
		return nil, err
	}
	scene := doc.SheetScene()
	fw := cfg.CanvasWidth + 2*cfg.CameraMargin
	fh := cfg.CanvasHeight + 2*cfg.CameraMargin

	for k := 0; k < cfg.Pages; k++ {
		name := domain.PageKey(domain.KindCamera, k).Name()
		cam, _ := scene.EnsureCamera(name)
		o := cfg.PageOrigin(k)
		o.Y = -domain.CameraDistance
		cam.Position = o
		cam.OrthoScale = math.Max(fw, fh)
		doc.AddToCollection(domain.CollectionCameras, name)

		mname := domain.PageKey(domain.KindMarker, k).Name()
		if cfg.Markers {
			m, _ := scene.EnsureMarker(mname)
			m.Frame = k + 1
			m.Camera = name
		} else {
			scene.RemoveMarker(mname)
		}
	}
	pruneScene(doc, scene, cfg.Pages)

	scene.ActiveCamera = domain.PageKey(domain.KindCamera, 0).Name()
	scene.ResolutionX, scene.ResolutionY = resolution(fw / fh)
	scene.FrameStart = 1
	if scene.FrameEnd < cfg.Pages {
		scene.FrameEnd = cfg.Pages
	}
	if scene.FrameCurrent < scene.FrameStart {
		scene.FrameCurrent = scene.FrameStart
	}
	return scene, nil
}

// resolution fixes the long edge at OutputLongEdge and scales the other.
func resolution(aspect float64) (int, int) {
	if aspect >= 1 {
		return OutputLongEdge, int(math.Round(OutputLongEdge / aspect))
	}
	return int(math.Round(OutputLongEdge * aspect)), OutputLongEdge
}

func pruneScene(doc *domain.Document, scene *domain.Scene, pages int) {
	var cams, marks []string
	for _, c := range scene.Cameras {
		if k, ok := domain.ParseKey(c.Name); ok && k.Kind == domain.KindCamera && (k.IsPanel() || k.Page >= pages) {
			cams = append(cams, c.Name)
		}
	}
	for _, m := range scene.Markers {
		if k, ok := domain.ParseKey(m.Name); ok && k.Kind == domain.KindMarker && (k.IsPanel() || k.Page >= pages) {
			marks = append(marks, m.Name)
		}
	}
	for _, n := range cams {
		scene.RemoveCamera(n)
		doc.RemoveFromCollection(domain.CollectionCameras, n)
	}
	for _, n := range marks {
		scene.RemoveMarker(n)
	}
}
