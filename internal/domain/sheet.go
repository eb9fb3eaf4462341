/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"
	"strings"

	"gostoryboard/internal/geom"
)

// ReadDirection selects the reading order of panels within a page.
type ReadDirection string

const (
	LeftToRight ReadDirection = "left_to_right" // rows top to bottom, left to right within a row
	TopToBottom ReadDirection = "top_to_bottom" // columns left to right, top to bottom within a column
)

// Axis is the direction along which pages are stacked.
type Axis string

const (
	StackVertical   Axis = "vertical"
	StackHorizontal Axis = "horizontal"
)

// RatioSource tells which field of RatioSpec is authoritative.
type RatioSource string

const (
	RatioPreset   RatioSource = "preset"
	RatioFraction RatioSource = "fraction"
	RatioRaw      RatioSource = "raw"
)

// RatioSpec describes the drawing-area aspect ratio.
type RatioSpec struct {
	Source      RatioSource `json:"source" yaml:"source"`
	Preset      string      `json:"preset,omitempty" yaml:"preset,omitempty"`
	Numerator   float64     `json:"numerator,omitempty" yaml:"numerator,omitempty"`
	Denominator float64     `json:"denominator,omitempty" yaml:"denominator,omitempty"`
	Value       float64     `json:"value,omitempty" yaml:"value,omitempty"`
}

// RatioPresets maps preset names to width/height ratios.
var RatioPresets = map[string]float64{
	"16:9":   16.0 / 9.0,
	"1.85:1": 1.85,
	"2.39:1": 2.39,
	"4:3":    4.0 / 3.0,
	"1:1":    1,
	"9:16":   9.0 / 16.0,
	"2:1":    2,
}

// Resolve returns the width/height ratio. Unknown presets and non-positive values are errors.
func (r RatioSpec) Resolve() (float64, error) {
	switch r.Source {
	case RatioPreset, "":
		name := strings.TrimSpace(r.Preset)
		if name == "" {
			name = "16:9"
		}
		v, ok := RatioPresets[name]
		if !ok {
			return 0, fmt.Errorf("%w: unknown ratio preset %q", ErrConfiguration, r.Preset)
		}
		return v, nil
	case RatioFraction:
		if r.Numerator <= 0 || r.Denominator <= 0 {
			return 0, fmt.Errorf("%w: ratio fraction %v:%v must be positive", ErrConfiguration, r.Numerator, r.Denominator)
		}
		return r.Numerator / r.Denominator, nil
	case RatioRaw:
		if r.Value <= 0 {
			return 0, fmt.Errorf("%w: raw ratio %v must be positive", ErrConfiguration, r.Value)
		}
		return r.Value, nil
	default:
		return 0, fmt.Errorf("%w: unknown ratio source %q", ErrConfiguration, r.Source)
	}
}

// Band is an optional horizontal strip at the top or bottom of a page.
type Band struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Height  float64 `json:"height" yaml:"height"`
}

// NotesSpec configures the notes column to the right of each drawing area.
type NotesSpec struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	WidthPercent float64 `json:"widthPercent" yaml:"width_percent"`
	HeaderHeight float64 `json:"headerHeight" yaml:"header_height"`
}

// LogoSpec configures the footer logo.
type LogoSpec struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	Image        string  `json:"image,omitempty" yaml:"image,omitempty"`
	WidthPercent float64 `json:"widthPercent" yaml:"width_percent"`
}

// Templates are the default texts of generated annotations.
// {page} and {panel} are replaced with 1-based numbers.
type Templates struct {
	PanelHeader string `json:"panelHeader" yaml:"panel_header"`
	PanelNotes  string `json:"panelNotes" yaml:"panel_notes"`
	PageHeader  string `json:"pageHeader" yaml:"page_header"`
	PageFooter  string `json:"pageFooter" yaml:"page_footer"`
}

// Sheet is the immutable layout configuration of a document. It is built once
// per operation and passed by value.
type Sheet struct {
	CanvasWidth   float64       `json:"canvasWidth" yaml:"canvas_width"`
	CanvasHeight  float64       `json:"canvasHeight" yaml:"canvas_height"`
	CanvasMargin  float64       `json:"canvasMargin" yaml:"canvas_margin"`
	Rows          int           `json:"rows" yaml:"rows"`
	Columns       int           `json:"columns" yaml:"columns"`
	PanelMarginX  float64       `json:"panelMarginX" yaml:"panel_margin_x"`
	PanelMarginY  float64       `json:"panelMarginY" yaml:"panel_margin_y"`
	Ratio         RatioSpec     `json:"ratio" yaml:"ratio"`
	Coverage      float64       `json:"coverage" yaml:"coverage"`
	Notes         NotesSpec     `json:"notes" yaml:"notes"`
	Header        Band          `json:"header" yaml:"header"`
	Footer        Band          `json:"footer" yaml:"footer"`
	Logo          LogoSpec      `json:"logo" yaml:"logo"`
	Pages         int           `json:"pages" yaml:"pages"`
	PageSpacing   float64       `json:"pageSpacing" yaml:"page_spacing"`
	StackAxis     Axis          `json:"stackAxis" yaml:"stack_axis"`
	ReadDirection ReadDirection `json:"readDirection" yaml:"read_direction"`
	CameraMargin  float64       `json:"cameraMargin" yaml:"camera_margin"`
	Markers       bool          `json:"markers" yaml:"markers"`
	TextSize      float64       `json:"textSize" yaml:"text_size"`
	Templates     Templates     `json:"templates" yaml:"templates"`
}

// PageOrigin returns the centre of page k on the stacking axis.
func (s Sheet) PageOrigin(k int) geom.Vec3 {
	if s.StackAxis == StackHorizontal {
		return geom.Vec3{X: float64(k) * (s.CanvasWidth + s.PageSpacing)}
	}
	return geom.Vec3{Z: -float64(k) * (s.CanvasHeight + s.PageSpacing)}
}

// PageRect returns the canvas area of page k.
func (s Sheet) PageRect(k int) geom.Rect {
	return geom.RectCentered(s.PageOrigin(k), s.CanvasWidth, s.CanvasHeight)
}

// Direction returns the configured read direction, defaulting to LeftToRight.
func (s Sheet) Direction() ReadDirection {
	if s.ReadDirection == TopToBottom {
		return TopToBottom
	}
	return LeftToRight
}

// Template returns the default text of kind, with page and panel numbers
// (1-based) substituted. Kinds without a template yield "".
func (s Sheet) Template(kind Kind, page, panel int) string {
	var t string
	switch kind {
	case KindPanelHeader:
		t = s.Templates.PanelHeader
	case KindPanelNotes:
		t = s.Templates.PanelNotes
	case KindPageHeader:
		t = s.Templates.PageHeader
	case KindPageFooter:
		t = s.Templates.PageFooter
	}
	t = strings.ReplaceAll(t, "{page}", fmt.Sprint(page))
	return strings.ReplaceAll(t, "{panel}", fmt.Sprint(panel))
}
