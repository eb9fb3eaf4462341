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
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/encoding/charmap"

	"gostoryboard/internal/domain"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/storage"
)

const pointsPerCM = 72 / 2.54

// PDFOptions controls PDF export. Pages are 0-based; empty means all.
type PDFOptions struct {
	IncludeGuides bool
	Pages         []int
	Author        string
}

// PDF writes one PDF page per sheet page to w, sized to the canvas.
// Built-in Helvetica keeps text vector without font embedding; runes outside
// Windows-1252 print as '?'.
func PDF(doc *domain.Document, w io.Writer, opt PDFOptions) error {
	if err := checkSheet(doc); err != nil {
		return err
	}
	pages, err := pageIndexes(doc.Sheet.Pages, opt.Pages)
	if err != nil {
		return err
	}
	size := gofpdf.SizeType{Wd: doc.Sheet.CanvasWidth, Ht: doc.Sheet.CanvasHeight}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "cm", Size: size})
	pdf.SetTitle(doc.Name, true)
	author := opt.Author
	if author == "" {
		author = "gostoryboard"
	}
	pdf.SetAuthor(author, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Helvetica", "", 10)

	for _, k := range pages {
		pc := collectPage(doc, k)
		pdf.AddPageFormat("", size)
		if opt.IncludeGuides {
			pdf.SetDrawColor(255, 0, 0)
			pdf.SetLineWidth(0.01)
			m := doc.Sheet.CanvasMargin
			pdf.Rect(m, m, size.Wd-2*m, size.Ht-2*m, "D")
		}
		pdf.SetDrawColor(0, 0, 0)
		for _, s := range pc.Strokes {
			drawPDFStroke(pdf, pc, s)
		}
		for _, lg := range pc.Logos {
			drawPDFLogo(pdf, doc, pc, lg)
		}
		pdf.SetTextColor(0, 0, 0)
		for _, a := range pc.Annotations {
			drawPDFText(pdf, doc, pc, a)
		}
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func drawPDFStroke(pdf *gofpdf.Fpdf, pc pageContent, s *domain.Stroke) {
	if len(s.Points) < 2 {
		return
	}
	pdf.SetLineWidth(strokeWidth(s, 0.01))
	pts := make([]gofpdf.PointType, len(s.Points))
	for i, p := range s.Points {
		x, y := pc.local(p.Pos)
		pts[i] = gofpdf.PointType{X: x, Y: y}
	}
	if s.Role == domain.RoleFrame && len(pts) > 2 {
		pdf.Polygon(pts, "D")
		return
	}
	for i := 1; i < len(pts); i++ {
		pdf.Line(pts[i-1].X, pts[i-1].Y, pts[i].X, pts[i].Y)
	}
}

func drawPDFLogo(pdf *gofpdf.Fpdf, doc *domain.Document, pc pageContent, lg *domain.Logo) {
	r := lg.Rect()
	x, y := pc.local(r.Min)
	y -= r.Height()
	if img, ok := doc.Images[lg.Image]; ok && img.Path != "" {
		if _, err := os.Stat(img.Path); err == nil {
			pdf.ImageOptions(img.Path, x, y, r.Width(), r.Height(), false, gofpdf.ImageOptions{ReadDpi: true}, 0, "")
			if pdf.Ok() {
				return
			}
			applog.WithOperation(applog.WithComponent("export"), "pdf").Warn("logo image skipped",
				slog.String("image", img.Path), slog.Any("err", pdf.Error()))
			pdf.ClearError()
		}
	}
	pdf.SetLineWidth(0.01)
	pdf.Rect(x, y, r.Width(), r.Height(), "D")
	pdf.Line(x, y, x+r.Width(), y+r.Height())
	pdf.Line(x, y+r.Height(), x+r.Width(), y)
}

func drawPDFText(pdf *gofpdf.Fpdf, doc *domain.Document, pc pageContent, a *domain.Annotation) {
	lines := textLines(doc, a)
	if len(lines) == 0 {
		return
	}
	size := a.Size
	if size <= 0 {
		size = 0.35
	}
	pdf.SetFontSize(size * pointsPerCM)
	x0, y := pc.local(a.Position)
	y += size * 0.35
	for _, line := range lines {
		s := winAnsi(line)
		x := x0
		switch a.Align {
		case domain.AlignCenter:
			x -= pdf.GetStringWidth(s) / 2
		case domain.AlignRight:
			x -= pdf.GetStringWidth(s)
		}
		pdf.Text(x, y, s)
		y += size * 1.2
	}
}

// winAnsi encodes s for the core PDF fonts.
func winAnsi(s string) string {
	var b strings.Builder
	for _, r := range s {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = '?'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ExportPDF writes the handle's document to outPath. Relative paths resolve
// under the document's exports folder.
func ExportPDF(h *storage.DocumentHandle, outPath string, opt PDFOptions) (string, error) {
	if h == nil {
		return "", fmt.Errorf("document handle is nil")
	}
	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(h.Root, storage.ExportsDirName, outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create pdf: %w", err)
	}
	if err := PDF(h.Doc, f, opt); err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close pdf: %w", err)
	}
	return outPath, nil
}
