/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	applog "gostoryboard/internal/log"
	"gostoryboard/internal/storage"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
)

// BatchOptions controls a multi-format export.
//
// An empty or relative OutDir lands under <root>/exports/<preset>/. The PDF is
// written as <OutDir>/pdf/storyboard.pdf and PNG pages go to <OutDir>/png/.
type BatchOptions struct {
	Preset        PresetName
	Formats       []string // pdf, png; empty means preset defaults
	Pages         []int    // zero-based; empty means all pages
	DPIOverride   int
	IncludeGuides *bool // overrides the preset default when set
	OutDir        string
}

// BatchExport runs the exports selected by opt and returns the files written.
func BatchExport(h *storage.DocumentHandle, opt BatchOptions) ([]string, error) {
	if h == nil {
		return nil, fmt.Errorf("document handle is nil")
	}
	l := applog.WithOperation(applog.WithComponent("export"), "batch").With(slog.String("preset", string(opt.Preset)))
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	baseOut := opt.OutDir
	if baseOut == "" {
		baseOut = string(opt.Preset)
		if baseOut == "" {
			baseOut = "default"
		}
	}
	if !filepath.IsAbs(baseOut) {
		baseOut = filepath.Join(h.Root, storage.ExportsDirName, baseOut)
	}
	guides := presetIncludeGuides(opt.Preset)
	if opt.IncludeGuides != nil {
		guides = *opt.IncludeGuides
	}

	var written []string
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "pdf":
			out, err := ExportPDF(h, filepath.Join(baseOut, "pdf", "storyboard.pdf"), PDFOptions{IncludeGuides: guides, Pages: opt.Pages})
			if err != nil {
				return written, fmt.Errorf("pdf: %w", err)
			}
			written = append(written, out)
		case "png":
			po := PNGOptions{IncludeGuides: guides, Pages: opt.Pages, DPI: presetDPI(opt.Preset)}
			if opt.Preset == PresetWeb {
				po.ThumbnailEdge = 320
			}
			if opt.DPIOverride > 0 {
				po.DPI = opt.DPIOverride
			}
			files, err := ExportPNG(h, filepath.Join(baseOut, "png"), po)
			written = append(written, files...)
			if err != nil {
				return written, fmt.Errorf("png: %w", err)
			}
		default:
			return written, fmt.Errorf("unknown format: %s", f)
		}
	}
	l.Info("export finished", slog.Int("files", len(written)))
	return written, nil
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetWeb:
		return []string{"png"}
	case PresetPrint:
		return []string{"pdf", "png"}
	default:
		return []string{"pdf"}
	}
}

func presetIncludeGuides(p PresetName) bool {
	return p != PresetWeb
}

func presetDPI(p PresetName) int {
	switch p {
	case PresetWeb:
		return 96
	case PresetPrint:
		return 300
	default:
		return 150
	}
}
