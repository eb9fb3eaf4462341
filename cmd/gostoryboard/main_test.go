/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gostoryboard/internal/config"
	"gostoryboard/internal/domain"
)

func newTestApp() (*app, *bytes.Buffer) {
	var out bytes.Buffer
	cfg := config.Defaults()
	return &app{cfg: cfg, out: &out, log: slog.Default()}, &out
}

func runOK(t *testing.T, a *app, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	if err := a.run(context.Background(), args); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestLocalWorkflow(t *testing.T) {
	a, out := newTestApp()
	dir := filepath.Join(t.TempDir(), "board")

	if got := runOK(t, a, out, "init", dir, "Heist"); !strings.Contains(got, "1 pages, 6 panels") {
		t.Fatalf("init output: %q", got)
	}
	if got := runOK(t, a, out, "panels", dir); strings.Count(got, "frame_p001_") != 6 {
		t.Fatalf("panels output: %q", got)
	}
	if got := runOK(t, a, out, "insert", dir, "2", "4"); !strings.Contains(got, "insert 2..4") {
		t.Fatalf("insert output: %q", got)
	}
	if got := runOK(t, a, out, "history", dir); !strings.Contains(got, "insert") {
		t.Fatalf("history output: %q", got)
	}
	if got := runOK(t, a, out, "restore", dir); !strings.Contains(got, "before insert") {
		t.Fatalf("restore output: %q", got)
	}
	if err := a.run(context.Background(), []string{"restore", dir}); err == nil {
		t.Fatalf("second restore should find an empty journal")
	}

	if got := runOK(t, a, out, "generate", "-pages", "2", dir); !strings.Contains(got, "generated 2 pages, 12 panels") {
		t.Fatalf("generate output: %q", got)
	}
	if got := runOK(t, a, out, "animatic", "-duration", "10", dir); !strings.Contains(got, "12 shots, frames 0..120") {
		t.Fatalf("animatic output: %q", got)
	}
	if got := runOK(t, a, out, "timeline", "dilate", dir); !strings.Contains(got, "scene ends at frame 131") {
		t.Fatalf("dilate output: %q", got)
	}
	if got := runOK(t, a, out, "extend", dir, "1"); !strings.Contains(got, "starting at page 3") {
		t.Fatalf("extend output: %q", got)
	}
	if got := runOK(t, a, out, "search", dir, "Shot"); strings.Contains(got, "no matches") {
		t.Fatalf("search found nothing: %q", got)
	}

	got := runOK(t, a, out, "export", "png", "-out", "pngs", "-pages", "1", dir)
	files := strings.Fields(got)
	if len(files) == 0 || !strings.HasSuffix(files[0], ".png") {
		t.Fatalf("export output: %q", got)
	}
	if _, err := os.Stat(files[0]); err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
}

func TestPickCommitsShiftBetweenPoints(t *testing.T) {
	a, out := newTestApp()
	dir := filepath.Join(t.TempDir(), "board")
	runOK(t, a, out, "init", dir, "Pick")
	runOK(t, a, out, "panels", "-json", dir)
	if !strings.Contains(out.String(), `"count": 6`) {
		t.Fatalf("panels json: %s", out.String())
	}
	// centres of the first and third panels from the JSON listing
	var pts []string
	for _, n := range []int{0, 2} {
		pts = append(pts, centreOf(t, a, dir, n))
	}
	got := runOK(t, a, out, "pick", dir, "insert", pts[0], pts[1])
	if !strings.Contains(got, "insert 1..3") {
		t.Fatalf("pick output: %q", got)
	}
}

func centreOf(t *testing.T, a *app, dir string, n int) string {
	t.Helper()
	h, err := openDoc(dir)
	if err != nil {
		t.Fatal(err)
	}
	k := domain.PanelKey(domain.KindFrame, 0, n)
	_, s := h.Doc.FindStroke(k.String())
	if s == nil {
		t.Fatalf("no frame %s", k)
	}
	var x, z float64
	for _, p := range s.Positions() {
		x += p.X / 4
		z += p.Z / 4
	}
	return fmt.Sprintf("%.4f,%.4f", x, z)
}

func TestUsageErrors(t *testing.T) {
	a, _ := newTestApp()
	for _, args := range [][]string{
		{"bogus"},
		{"insert", "dir-only"},
		{"insert", "d", "x", "2"},
		{"timeline", "rewind", "d"},
		{"pick", "d", "insert", "1;2", "3,4"},
	} {
		if err := a.run(context.Background(), args); !errors.Is(err, errUsage) {
			t.Fatalf("%v: expected usage error, got %v", args, err)
		}
	}
}

func TestUserMessage(t *testing.T) {
	err := userMessage(domain.ErrMissingDependency)
	if !strings.Contains(err, "generate it first") {
		t.Fatalf("userMessage = %q", err)
	}
}
