/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fileRecords returns every JSON record in path.
func fileRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var out []map[string]any
	for _, line := range strings.Split(string(b), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func reset(t *testing.T) {
	t.Cleanup(func() {
		Init(Options{Out: &bytes.Buffer{}})
		_ = Close()
	})
}

func TestFileLogCarriesBoardScope(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "gsb.log")
	Init(Options{Level: "debug", File: path, Out: &bytes.Buffer{}})

	ctx := WithRange(WithDocument(context.Background(), "board"), 2, 4)
	WithOperation(WithComponent("shift"), "insert").InfoContext(ctx, "shift committed", slog.Int("steps", 3))
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs := fileRecords(t, path)
	if len(recs) != 1 {
		t.Fatalf("records = %d", len(recs))
	}
	m := recs[0]
	if m["app"] != "gostoryboard" || m["component"] != "shift" || m["op"] != "insert" {
		t.Fatalf("fixed attrs = %v", m)
	}
	if m["doc"] != "board" || m["first"] != float64(2) || m["last"] != float64(4) || m["steps"] != float64(3) {
		t.Fatalf("board attrs = %v", m)
	}
}

func TestReinitSwitchesLogFile(t *testing.T) {
	reset(t)
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")
	Init(Options{File: a, Out: &bytes.Buffer{}})
	WithComponent("storage").Info("saved")
	Init(Options{File: b, Out: &bytes.Buffer{}})
	WithComponent("storage").Info("reindexed")
	_ = Close()

	if got := fileRecords(t, a); len(got) != 1 || got[0]["msg"] != "saved" {
		t.Fatalf("a.log = %v", got)
	}
	if got := fileRecords(t, b); len(got) != 1 || got[0]["msg"] != "reindexed" {
		t.Fatalf("b.log = %v", got)
	}
}

func TestConsoleLine(t *testing.T) {
	reset(t)
	var buf bytes.Buffer
	Init(Options{Level: "info", Out: &buf})

	ctx := WithDocument(context.Background(), "my board")
	l := WithOperation(WithComponent("animatic"), "export")
	l.DebugContext(ctx, "hidden")
	l.With(slog.Group("scene", slog.String("name", "board_animatic"))).
		InfoContext(ctx, "scene built", slog.Int("shots", 6), slog.Float64("ratio", 1.5))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record printed at info level: %q", out)
	}
	for _, want := range []string{
		"INFO  animatic/export: scene built",
		`doc="my board"`,
		"scene.name=board_animatic",
		"shots=6",
		"ratio=1.5",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("console %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "app=") || strings.Contains(out, "component=") {
		t.Fatalf("console repeats leading fields: %q", out)
	}
}

func TestConsoleGroupKeepsComponentKey(t *testing.T) {
	var buf bytes.Buffer
	h := newConsoleHandler(&buf, slog.LevelWarn, false)
	l := slog.New(h).WithGroup("panel").With(slog.String("component", "frame"))
	l.Warn("overlap", slog.Int("n", 2))
	out := buf.String()
	if !strings.Contains(out, "WARN  overlap panel.component=frame panel.n=2") {
		t.Fatalf("console = %q", out)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GSB_LOG_LEVEL", "warn")
	t.Setenv("GSB_LOG_FORMAT", "json")
	t.Setenv("GSB_LOG_SOURCE", "TRUE")
	t.Setenv("GSB_LOG_FILE", "")
	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv = %+v", opts)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"info+2":  slog.LevelInfo + 2,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDocumentFrom(t *testing.T) {
	if _, ok := DocumentFrom(context.Background()); ok {
		t.Fatalf("empty context reported a document")
	}
	ctx := WithRange(WithDocument(context.Background(), "ep1"), 1, 3)
	if d, ok := DocumentFrom(ctx); !ok || d != "ep1" {
		t.Fatalf("DocumentFrom = %q, %v", d, ok)
	}
}
