/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gostoryboard/internal/animatic"
	"gostoryboard/internal/backend"
	"gostoryboard/internal/crash"
	"gostoryboard/internal/domain"
	"gostoryboard/internal/export"
	"gostoryboard/internal/geom"
	"gostoryboard/internal/indexer"
	"gostoryboard/internal/layout"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/pack"
	"gostoryboard/internal/pages"
	"gostoryboard/internal/shift"
	"gostoryboard/internal/storage"
	"gostoryboard/internal/telemetry"
)

func openDoc(dir string) (*storage.DocumentHandle, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return storage.Open(abs)
}

// mutate opens the document in dir, applies fn and, when fn succeeds, journals
// the pre-operation state, saves and reindexes. fn returns a one-line summary
// and the number of panels it touched.
func (a *app) mutate(ctx context.Context, dir, op string, fn func(doc *domain.Document) (string, int, error)) error {
	h, err := openDoc(dir)
	if err != nil {
		return err
	}
	defer crash.Recover(h)
	ctx = applog.WithDocument(ctx, h.Doc.Name)
	l := applog.WithOperation(a.log, op).With(slog.String("root", h.Root))
	before, err := h.Doc.Clone()
	if err != nil {
		return err
	}
	start := time.Now()
	summary, panels, err := fn(h.Doc)
	telemetry.Operation(op, time.Since(start), panels, err)
	if err != nil {
		l.WarnContext(ctx, "operation rejected", slog.Any("err", err))
		return err
	}
	pre := &storage.DocumentHandle{Root: h.Root, ManifestPath: h.ManifestPath, Doc: before}
	if err := storage.RecordOperation(ctx, pre, op, summary); err != nil {
		return err
	}
	if err := storage.Save(h); err != nil {
		return err
	}
	if err := storage.UpdateIndex(ctx, h.Root, h.Doc); err != nil {
		l.WarnContext(ctx, "index update failed", slog.Any("err", err))
	}
	l.InfoContext(ctx, "operation applied", slog.String("summary", summary))
	_, _ = fmt.Fprintln(a.out, summary)
	return nil
}

func (a *app) sheetConfig(layoutFile string) (layout.Config, error) {
	if layoutFile != "" {
		return layout.LoadFile(layoutFile)
	}
	return a.cfg.Layout, nil
}

func (a *app) cmdInit(ctx context.Context, args []string) error {
	fs := newFlags("init")
	layoutFile := fs.String("layout", "", "YAML sheet configuration")
	rest, err := parse(fs, args, 2, "<dir> and <name>")
	if err != nil {
		return err
	}
	cfg, err := a.sheetConfig(*layoutFile)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(rest[0])
	if err != nil {
		return err
	}
	doc := domain.NewDocument(rest[1])
	rep, err := layout.Generate(doc, cfg)
	if err != nil {
		return err
	}
	h, err := storage.InitDocument(abs, doc)
	if err != nil {
		return err
	}
	if err := storage.UpdateIndex(ctx, h.Root, h.Doc); err != nil {
		a.log.Warn("index update failed", slog.Any("err", err))
	}
	_, _ = fmt.Fprintf(a.out, "Created storyboard %q at %s (%d pages, %d panels)\n", doc.Name, abs, rep.Pages, rep.Panels)
	return nil
}

func (a *app) cmdGenerate(ctx context.Context, args []string) error {
	fs := newFlags("generate")
	layoutFile := fs.String("layout", "", "YAML sheet configuration; defaults to the document's sheet")
	pagesN := fs.Int("pages", 0, "page count override")
	rest, err := parse(fs, args, 1, "<dir>")
	if err != nil {
		return err
	}
	return a.mutate(ctx, rest[0], "generate", func(doc *domain.Document) (string, int, error) {
		cfg := doc.Sheet
		if *layoutFile != "" {
			c, err := layout.LoadFile(*layoutFile)
			if err != nil {
				return "", 0, err
			}
			cfg = c
		}
		if *pagesN > 0 {
			cfg.Pages = *pagesN
		}
		rep, err := layout.Generate(doc, cfg)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("generated %d pages, %d panels (%d created, %d removed)",
			rep.Pages, rep.Panels, rep.Created, rep.Removed), rep.Panels, nil
	})
}

func (a *app) cmdPanels(args []string) error {
	fs := newFlags("panels")
	asJSON := fs.Bool("json", false, "print JSON")
	rest, err := parse(fs, args, 1, "<dir>")
	if err != nil {
		return err
	}
	h, err := openDoc(rest[0])
	if err != nil {
		return err
	}
	res, err := indexer.Index(h.Doc, h.Doc.Sheet.Direction())
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(backend.NewPanelList(res))
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tPAGE\tNAME\tMIN (x,z)\tMAX (x,z)")
	for _, p := range res.Panels {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%.2f,%.2f\t%.2f,%.2f\n",
			p.Number, p.Page+1, p.Name(), p.Rect.Min.X, p.Rect.Min.Z, p.Rect.Max.X, p.Rect.Max.Z)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if res.Unassigned > 0 {
		_, _ = fmt.Fprintf(a.out, "%d frame(s) lie outside every page\n", res.Unassigned)
	}
	return nil
}

func atoi(s, what string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, usageErr("%s must be an integer, got %q", what, s)
	}
	return n, nil
}

func (a *app) cmdShift(ctx context.Context, name string, args []string) error {
	rest, err := parse(newFlags(name), args, 3, "<dir> <i> <stop>")
	if err != nil {
		return err
	}
	op, err := shift.ParseOp(name)
	if err != nil {
		return err
	}
	i, err := atoi(rest[1], "i")
	if err != nil {
		return err
	}
	stop, err := atoi(rest[2], "stop")
	if err != nil {
		return err
	}
	return a.mutate(applog.WithRange(ctx, i, stop), rest[0], name, func(doc *domain.Document) (string, int, error) {
		rep, err := shift.Engine{}.Run(doc, op, i, stop)
		if err != nil {
			return "", 0, err
		}
		return rep.String(), rep.Steps, nil
	})
}

// parsePoint reads "x,z" in sheet units.
func parsePoint(s string) (geom.Vec3, error) {
	xs, zs, ok := strings.Cut(s, ",")
	if !ok {
		return geom.Vec3{}, usageErr("point %q must be x,z", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return geom.Vec3{}, usageErr("point %q: %v", s, err)
	}
	z, err := strconv.ParseFloat(strings.TrimSpace(zs), 64)
	if err != nil {
		return geom.Vec3{}, usageErr("point %q: %v", s, err)
	}
	return geom.Vec3{X: x, Z: z}, nil
}

// cmdPick picks start and stop panels with rays cast from the page cameras'
// side of the sheet through two sheet points, then commits the shift.
func (a *app) cmdPick(ctx context.Context, args []string) error {
	rest, err := parse(newFlags("pick"), args, 4, "<dir> <insert|remove> <x,z> <x,z>")
	if err != nil {
		return err
	}
	op, err := shift.ParseOp(rest[1])
	if err != nil {
		return err
	}
	var pts [2]geom.Vec3
	for j := range pts {
		if pts[j], err = parsePoint(rest[2+j]); err != nil {
			return err
		}
	}
	return a.mutate(ctx, rest[0], "pick_"+string(op), func(doc *domain.Document) (string, int, error) {
		p, err := shift.NewPicker(doc, shift.Engine{})
		if err != nil {
			return "", 0, err
		}
		for _, pt := range pts {
			ray := geom.Ray{Origin: geom.Vec3{X: pt.X, Y: -domain.CameraDistance, Z: pt.Z}, Dir: geom.Vec3{Y: 1}}
			if _, ok := p.Pick(ray); !ok {
				return "", 0, fmt.Errorf("%w: no panel under %.2f,%.2f", domain.ErrValidation, pt.X, pt.Z)
			}
		}
		rep, err := p.Commit(op)
		if err != nil {
			return "", 0, err
		}
		return rep.String(), rep.Steps, nil
	})
}

func (a *app) cmdExtend(ctx context.Context, args []string) error {
	fs := newFlags("extend")
	count := fs.Int("count", 1, "pages to append")
	rest, err := parse(fs, args, 2, "<dir> <template-page>")
	if err != nil {
		return err
	}
	tpl, err := atoi(rest[1], "template-page")
	if err != nil {
		return err
	}
	return a.mutate(ctx, rest[0], "extend", func(doc *domain.Document) (string, int, error) {
		rep, err := pages.Extend(doc, tpl, *count)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("appended %d page(s) from page %d starting at page %d", rep.Added, rep.Template, rep.FirstPage),
			rep.Added * doc.Sheet.Rows * doc.Sheet.Columns, nil
	})
}

func (a *app) cmdAnimatic(ctx context.Context, args []string) error {
	fs := newFlags("animatic")
	dur := fs.Int("duration", a.cfg.General.ShotDuration, "frames per panel")
	scene := fs.String("scene", "", "scene name (default <name>_animatic)")
	rest, err := parse(fs, args, 1, "<dir>")
	if err != nil {
		return err
	}
	return a.mutate(ctx, rest[0], "animatic", func(doc *domain.Document) (string, int, error) {
		s, err := animatic.Export(doc, animatic.Options{ShotDuration: *dur, SceneName: *scene})
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("scene %s: %d shots, frames %d..%d", s.Name, len(s.Cameras), s.FrameStart, s.FrameEnd),
			len(s.Cameras), nil
	})
}

func (a *app) cmdTimeline(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageErr("timeline requires shift, dilate or compress")
	}
	sub := args[0]
	fs := newFlags("timeline " + sub)
	scene := fs.String("scene", "", "scene name (default <name>_animatic)")
	var (
		at    *int
		force *bool
		need  = 1
		what  = "<dir>"
	)
	switch sub {
	case "shift":
		at = fs.Int("at", -1, "move the playhead to this frame first")
		need, what = 2, "<dir> <delta>"
	case "dilate":
	case "compress":
		force = fs.Bool("force", false, "compress even when markers would share a frame")
	default:
		return usageErr("unknown timeline command %q", sub)
	}
	rest, err := parse(fs, args[1:], need, what)
	if err != nil {
		return err
	}
	var delta int
	if sub == "shift" {
		if delta, err = atoi(rest[1], "delta"); err != nil {
			return err
		}
	}
	return a.mutate(ctx, rest[0], "timeline_"+sub, func(doc *domain.Document) (string, int, error) {
		name := *scene
		if name == "" {
			name = animatic.SceneName(doc)
		}
		s := doc.FindScene(name)
		if s == nil {
			return "", 0, fmt.Errorf("%w: scene %q not found; run animatic first", domain.ErrMissingDependency, name)
		}
		switch sub {
		case "shift":
			if *at >= 0 {
				s.FrameCurrent = *at
			}
			n, err := animatic.ShiftFromPlayhead(s, delta)
			if err != nil {
				return "", 0, err
			}
			return fmt.Sprintf("moved %d marker(s) by %d after frame %d", n, delta, s.FrameCurrent), n, nil
		case "dilate":
			animatic.Dilate(s)
		case "compress":
			if err := animatic.Compress(s, *force); err != nil {
				return "", 0, err
			}
		}
		return fmt.Sprintf("%s %d marker(s); scene ends at frame %d", pastTense[sub], len(s.Markers), s.FrameEnd),
			len(s.Markers), nil
	})
}

var pastTense = map[string]string{"dilate": "dilated", "compress": "compressed"}

func (a *app) cmdExport(args []string) error {
	if len(args) == 0 {
		return usageErr("export requires pdf, png, web or print")
	}
	kind := args[0]
	fs := newFlags("export " + kind)
	out := fs.String("out", "", "output path (relative paths land under <dir>/exports)")
	dpi := fs.Int("dpi", 0, "raster resolution")
	guides := fs.Bool("guides", false, "draw frames and separators")
	pageList := fs.String("pages", "", "comma separated 1-based pages")
	rest, err := parse(fs, args[1:], 1, "<dir>")
	if err != nil {
		return err
	}
	sel, err := parsePages(*pageList)
	if err != nil {
		return err
	}
	h, err := openDoc(rest[0])
	if err != nil {
		return err
	}
	var files []string
	switch kind {
	case "pdf":
		target := *out
		if target == "" {
			target = "storyboard.pdf"
		}
		var path string
		path, err = export.ExportPDF(h, target, export.PDFOptions{IncludeGuides: *guides, Pages: sel})
		files = []string{path}
	case "png":
		files, err = export.ExportPNG(h, *out, export.PNGOptions{DPI: *dpi, IncludeGuides: *guides, Pages: sel})
	case "web", "print":
		opt := export.BatchOptions{Preset: export.PresetName(kind), Pages: sel, DPIOverride: *dpi, OutDir: *out}
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "guides" {
				opt.IncludeGuides = guides
			}
		})
		files, err = export.BatchExport(h, opt)
	default:
		return usageErr("unknown export format %q", kind)
	}
	if err != nil {
		return err
	}
	for _, f := range files {
		_, _ = fmt.Fprintln(a.out, f)
	}
	return nil
}

// parsePages turns "1,3" into zero-based page indexes.
func parsePages(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := atoi(strings.TrimSpace(part), "page")
		if err != nil {
			return nil, err
		}
		out = append(out, n-1)
	}
	return out, nil
}

func (a *app) cmdSearch(ctx context.Context, args []string) error {
	fs := newFlags("search")
	kinds := fs.String("kind", "", "comma separated annotation kinds")
	from := fs.Int("from", 0, "first page (1-based)")
	to := fs.Int("to", 0, "last page (1-based)")
	limit := fs.Int("limit", 0, "maximum hits")
	rest, err := parse(fs, args, 2, "<dir> <text>")
	if err != nil {
		return err
	}
	h, err := openDoc(rest[0])
	if err != nil {
		return err
	}
	if _, err := storage.DetectAndRebuildIndex(ctx, h.Root, h.Doc); err != nil {
		return err
	}
	q := storage.SearchQuery{Text: strings.Join(rest[1:], " "), Limit: *limit}
	if *kinds != "" {
		q.Kinds = strings.Split(*kinds, ",")
	}
	q.PageFrom, q.PageTo = *from, *to
	hits, err := storage.Search(ctx, h.Root, q)
	if err != nil {
		return err
	}
	for _, r := range hits {
		_, _ = fmt.Fprintf(a.out, "p%d/%d\t%s\t%s\n", r.Page, r.Panel, r.Name, r.Snippet)
	}
	if len(hits) == 0 {
		_, _ = fmt.Fprintln(a.out, "no matches")
	}
	return nil
}

func (a *app) cmdHistory(ctx context.Context, args []string) error {
	fs := newFlags("history")
	n := fs.Int("n", 20, "entries to show")
	rest, err := parse(fs, args, 1, "<dir>")
	if err != nil {
		return err
	}
	h, err := openDoc(rest[0])
	if err != nil {
		return err
	}
	entries, err := storage.ListJournal(ctx, h, *n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		_, _ = fmt.Fprintf(a.out, "%d\t%s\t%s\t%s\n", e.ID, e.TS, e.Op, e.Summary)
	}
	return nil
}

func (a *app) cmdRestore(ctx context.Context, args []string) error {
	rest, err := parse(newFlags("restore"), args, 1, "<dir>")
	if err != nil {
		return err
	}
	h, err := openDoc(rest[0])
	if err != nil {
		return err
	}
	e, err := storage.Restore(ctx, h)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "restored state before %s (%s)\n", e.Op, e.Summary)
	return nil
}

func (a *app) cmdPack(args []string) error {
	rest, err := parse(newFlags("pack"), args, 2, "<dir> <file.zip>")
	if err != nil {
		return err
	}
	root, err := filepath.Abs(rest[0])
	if err != nil {
		return err
	}
	n, err := pack.Export(root, rest[1])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "packed %d file(s) into %s\n", n, rest[1])
	return nil
}

func (a *app) cmdUnpack(ctx context.Context, args []string) error {
	rest, err := parse(newFlags("unpack"), args, 2, "<file.zip> <dir>")
	if err != nil {
		return err
	}
	h, err := pack.Import(ctx, rest[0], rest[1])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "unpacked %q into %s\n", h.Doc.Name, h.Root)
	return nil
}

func (a *app) cmdServe(ctx context.Context, args []string) error {
	fs := newFlags("serve")
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	data := fs.String("data", a.cfg.Server.DataDir, "file store directory")
	db := fs.String("db", a.cfg.Server.DatabaseURL, "PostgreSQL URL; empty uses the file store")
	dev := fs.Bool("dev", false, "generate a missing token secret and admin key")
	if _, err := parse(fs, args, 0, ""); err != nil {
		return err
	}
	return backend.Start(ctx, backend.ServerConfig{
		Addr:     *addr,
		Secret:   a.cfg.Server.Secret,
		AdminKey: a.cfg.Server.AdminKey,
		DataDir:  *data,
		DBURL:    *db,
		Dev:      *dev,
	})
}
