/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package layout computes storyboard sheet geometry and materialises it in a
// document: panel frames, notes separators, header/footer text, logos and one
// camera (plus optional marker) per page. Every generated entity is found by
// its structural key before anything is created, so regeneration is idempotent
// and never touches text the operator has edited.
package layout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gostoryboard/internal/domain"
)

// Config is the immutable sheet configuration consumed by Compute, Generate
// and Bind. It is stored on the document as domain.Sheet.
type Config = domain.Sheet

// Defaults returns an A4 landscape sheet (centimetres) with a 3x2 grid of
// 16:9 panels and a notes column.
func Defaults() Config {
	return Config{
		CanvasWidth:   29.7,
		CanvasHeight:  21.0,
		CanvasMargin:  1.0,
		Rows:          3,
		Columns:       2,
		PanelMarginX:  0.6,
		PanelMarginY:  0.5,
		Ratio:         domain.RatioSpec{Source: domain.RatioPreset, Preset: "16:9"},
		Coverage:      95,
		Notes:         domain.NotesSpec{Enabled: true, WidthPercent: 35, HeaderHeight: 0.7},
		Header:        domain.Band{Enabled: true, Height: 1.2},
		Footer:        domain.Band{Enabled: true, Height: 1.0},
		Logo:          domain.LogoSpec{Enabled: false, WidthPercent: 12},
		Pages:         1,
		PageSpacing:   2.0,
		StackAxis:     domain.StackVertical,
		ReadDirection: domain.LeftToRight,
		CameraMargin:  0.5,
		Markers:       true,
		TextSize:      0.35,
		Templates: domain.Templates{
			PanelHeader: "Shot {panel}",
			PanelNotes:  "Action:\nDialogue:",
			PageHeader:  "Title",
			PageFooter:  "Page {page}",
		},
	}
}

// Validate checks cfg for every condition that would make generation overflow
// the canvas. It runs the full computation, so a nil error means Compute and
// Generate will succeed.
func Validate(cfg Config) error {
	_, err := Compute(cfg)
	return err
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrConfiguration, fmt.Sprintf(format, args...))
}

// validateScalars checks the ranges that do not depend on derived geometry.
func validateScalars(cfg Config) error {
	switch {
	case cfg.CanvasWidth <= 0 || cfg.CanvasHeight <= 0:
		return configErr("canvas size %vx%v must be positive", cfg.CanvasWidth, cfg.CanvasHeight)
	case cfg.CanvasMargin < 0 || cfg.PanelMarginX < 0 || cfg.PanelMarginY < 0:
		return configErr("margins must not be negative")
	case cfg.Rows < 1 || cfg.Columns < 1:
		return configErr("grid %dx%d must have at least one row and column", cfg.Rows, cfg.Columns)
	case cfg.Pages < 1:
		return configErr("page count %d must be at least 1", cfg.Pages)
	case cfg.PageSpacing < 0:
		return configErr("page spacing %v must not be negative", cfg.PageSpacing)
	case cfg.Coverage <= 0 || cfg.Coverage > 100:
		return configErr("coverage %v%% must be in (0,100]", cfg.Coverage)
	case cfg.CameraMargin < 0:
		return configErr("camera margin %v must not be negative", cfg.CameraMargin)
	case cfg.TextSize < 0:
		return configErr("text size %v must not be negative", cfg.TextSize)
	}
	if cfg.Notes.Enabled {
		if cfg.Notes.WidthPercent < 0 || cfg.Notes.WidthPercent >= 100 {
			return configErr("notes width %v%% must be in [0,100)", cfg.Notes.WidthPercent)
		}
		if cfg.Notes.HeaderHeight < 0 {
			return configErr("notes header height %v must not be negative", cfg.Notes.HeaderHeight)
		}
	}
	if cfg.Header.Enabled && cfg.Header.Height <= 0 {
		return configErr("page header height %v must be positive", cfg.Header.Height)
	}
	if cfg.Footer.Enabled && cfg.Footer.Height <= 0 {
		return configErr("page footer height %v must be positive", cfg.Footer.Height)
	}
	if cfg.Logo.Enabled {
		if !cfg.Footer.Enabled {
			return configErr("logo requires the page footer")
		}
		if cfg.Logo.WidthPercent <= 0 || cfg.Logo.WidthPercent >= 100 {
			return configErr("logo width %v%% must be in (0,100)", cfg.Logo.WidthPercent)
		}
	}
	switch cfg.StackAxis {
	case "", domain.StackVertical, domain.StackHorizontal:
	default:
		return configErr("unknown stack axis %q", cfg.StackAxis)
	}
	switch cfg.ReadDirection {
	case "", domain.LeftToRight, domain.TopToBottom:
	default:
		return configErr("unknown read direction %q", cfg.ReadDirection)
	}
	return nil
}

// LoadFile reads a YAML sheet configuration. Fields missing from the file keep
// their Defaults value.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read layout file: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveFile writes cfg as YAML.
func SaveFile(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write layout file: %w", err)
	}
	return nil
}
