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
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/storage"
)

// PNGOptions controls raster export. DPI defaults to 150. Pages are 0-based;
// empty means all. ThumbnailEdge > 0 also writes a downscaled copy whose long
// edge has that many pixels.
type PNGOptions struct {
	DPI           int
	IncludeGuides bool
	Pages         []int
	ThumbnailEdge int
}

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
	red   = color.RGBA{255, 0, 0, 255}
	grey  = color.RGBA{160, 160, 160, 255}
)

type raster struct {
	img   *image.RGBA
	pc    pageContent
	scale float64 // pixels per sheet unit
}

func (r *raster) px(p domain.Point) (int, int) {
	x, y := r.pc.local(p.Pos)
	return int(math.Round(x * r.scale)), int(math.Round(y * r.scale))
}

// RenderPage rasterises page k (0-based) at dpi.
func RenderPage(doc *domain.Document, k, dpi int, guides bool) (*image.RGBA, error) {
	if err := checkSheet(doc); err != nil {
		return nil, err
	}
	if _, err := pageIndexes(doc.Sheet.Pages, []int{k}); err != nil {
		return nil, err
	}
	if dpi <= 0 {
		dpi = 150
	}
	scale := float64(dpi) / 2.54
	w := int(math.Round(doc.Sheet.CanvasWidth * scale))
	h := int(math.Round(doc.Sheet.CanvasHeight * scale))
	r := &raster{img: image.NewRGBA(image.Rect(0, 0, w, h)), pc: collectPage(doc, k), scale: scale}
	draw.Draw(r.img, r.img.Bounds(), &image.Uniform{C: white}, image.Point{}, draw.Src)

	if guides {
		m := int(math.Round(doc.Sheet.CanvasMargin * scale))
		strokeRect(r.img, m, m, w-1-m, h-1-m, red)
	}
	for _, s := range r.pc.Strokes {
		r.stroke(s)
	}
	for _, lg := range r.pc.Logos {
		r.logo(doc, lg)
	}
	for _, a := range r.pc.Annotations {
		r.text(doc, a)
	}
	return r.img, nil
}

func (r *raster) stroke(s *domain.Stroke) {
	if len(s.Points) < 2 {
		return
	}
	thick := int(math.Round(strokeWidth(s, 0) * r.scale))
	if thick < 1 {
		thick = 1
	}
	for i := 1; i < len(s.Points); i++ {
		x0, y0 := r.px(s.Points[i-1])
		x1, y1 := r.px(s.Points[i])
		line(r.img, x0, y0, x1, y1, thick, black)
	}
	if s.Role == domain.RoleFrame && len(s.Points) > 2 {
		x0, y0 := r.px(s.Points[len(s.Points)-1])
		x1, y1 := r.px(s.Points[0])
		line(r.img, x0, y0, x1, y1, thick, black)
	}
}

func (r *raster) logo(doc *domain.Document, lg *domain.Logo) {
	rect := lg.Rect()
	x0, y1 := r.px(domain.Point{Pos: rect.Min})
	x1, y0 := r.px(domain.Point{Pos: rect.Max})
	dst := image.Rect(x0, y0, x1, y1)
	if im, ok := doc.Images[lg.Image]; ok && im.Path != "" {
		if src, err := loadPNG(im.Path); err == nil {
			xdraw.ApproxBiLinear.Scale(r.img, dst, src, src.Bounds(), draw.Over, nil)
			return
		}
	}
	strokeRect(r.img, x0, y0, x1-1, y1-1, grey)
	line(r.img, x0, y0, x1-1, y1-1, 1, grey)
	line(r.img, x0, y1-1, x1-1, y0, 1, grey)
}

// text draws each line with the basic bitmap face and scales it to the
// annotation's size.
func (r *raster) text(doc *domain.Document, a *domain.Annotation) {
	lines := textLines(doc, a)
	if len(lines) == 0 {
		return
	}
	size := a.Size
	if size <= 0 {
		size = 0.35
	}
	face := basicfont.Face7x13
	lineH := int(math.Round(size * r.scale))
	if lineH < 1 {
		return
	}
	x0, yc := r.px(domain.Point{Pos: a.Position})
	top := yc - lineH/2
	for _, s := range lines {
		adv := font.MeasureString(face, s).Ceil()
		if adv > 0 {
			glyphs := image.NewRGBA(image.Rect(0, 0, adv, face.Height))
			d := &font.Drawer{
				Dst:  glyphs,
				Src:  image.NewUniform(black),
				Face: face,
				Dot:  fixed.Point26_6{X: 0, Y: fixed.I(face.Ascent)},
			}
			d.DrawString(s)
			w := adv * lineH / face.Height
			x := x0
			switch a.Align {
			case domain.AlignCenter:
				x -= w / 2
			case domain.AlignRight:
				x -= w
			}
			xdraw.ApproxBiLinear.Scale(r.img, image.Rect(x, top, x+w, top+lineH), glyphs, glyphs.Bounds(), draw.Over, nil)
		}
		top += int(math.Round(float64(lineH) * 1.2))
	}
}

// Thumbnail scales img so its long edge is edge pixels.
func Thumbnail(img image.Image, edge int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w >= h {
		h = int(math.Max(1, math.Round(float64(h)*float64(edge)/float64(w))))
		w = edge
	} else {
		w = int(math.Max(1, math.Round(float64(w)*float64(edge)/float64(h))))
		h = edge
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ExportPNG writes page-NNN.png (and page-NNN-thumb.png) files into outDir,
// resolved under the document's exports folder when relative. It returns the
// paths written.
func ExportPNG(h *storage.DocumentHandle, outDir string, opt PNGOptions) ([]string, error) {
	if h == nil {
		return nil, fmt.Errorf("document handle is nil")
	}
	if err := checkSheet(h.Doc); err != nil {
		return nil, err
	}
	pages, err := pageIndexes(h.Doc.Sheet.Pages, opt.Pages)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(h.Root, storage.ExportsDirName, outDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	var written []string
	for _, k := range pages {
		img, err := RenderPage(h.Doc, k, opt.DPI, opt.IncludeGuides)
		if err != nil {
			return written, err
		}
		name := filepath.Join(outDir, fmt.Sprintf("page-%03d.png", k+1))
		if err := writePNG(name, img); err != nil {
			return written, err
		}
		written = append(written, name)
		if opt.ThumbnailEdge > 0 {
			tn := filepath.Join(outDir, fmt.Sprintf("page-%03d-thumb.png", k+1))
			if err := writePNG(tn, Thumbnail(img, opt.ThumbnailEdge)); err != nil {
				return written, err
			}
			written = append(written, tn)
		}
	}
	return written, nil
}

func writePNG(name string, img image.Image) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

// line draws a Bresenham line with a square brush of the given width.
func line(img *image.RGBA, x0, y0, x1, y1, width int, col color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	lo := -(width - 1) / 2
	hi := lo + width - 1
	e := dx + dy
	for {
		for oy := lo; oy <= hi; oy++ {
			for ox := lo; ox <= hi; ox++ {
				img.SetRGBA(x0+ox, y0+oy, col)
			}
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
