/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log is the slog setup shared by the storyboard CLI and server.
//
// Console output is one compact line per record, led by component/op. An
// optional JSON copy goes to a file rotated by lumberjack. The storyboard a
// call works on travels in its context.Context (WithDocument, WithRange) and
// is attached to every record logged with that context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gostoryboard/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls Init. FromEnv reads them from GSB_LOG_LEVEL,
// GSB_LOG_FORMAT (console|json), GSB_LOG_SOURCE and GSB_LOG_FILE.
type Options struct {
	Level     string
	Format    string
	AddSource bool
	File      string

	// Rotation of File; zero picks 10 MB and 5 backups.
	MaxSizeMB  int
	MaxBackups int

	// Console destination; os.Stderr when nil.
	Out io.Writer
}

var (
	mu      sync.RWMutex
	current *slog.Logger
	logFile *lj.Logger
)

// L returns the process logger, configuring it from the environment on first use.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Init replaces the process logger and slog.Default. A log file opened by a
// previous Init is closed.
func Init(opts Options) {
	lvl := ParseLevel(opts.Level)
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var console slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource})
	} else {
		console = newConsoleHandler(out, lvl, opts.AddSource)
	}
	sinks := []slog.Handler{console}

	var fw *lj.Logger
	if path := strings.TrimSpace(opts.File); path != "" {
		fw = &lj.Logger{
			Filename:   path,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     28,
			Compress:   true,
		}
		sinks = append(sinks, slog.NewJSONHandler(fw, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
	}

	var h slog.Handler = sinks[0]
	if len(sinks) > 1 {
		h = tee(sinks)
	}
	logger := slog.New(scoped{next: h}).With(
		slog.String("app", "gostoryboard"),
		slog.String("ver", version.Version),
	)

	mu.Lock()
	prev := logFile
	current, logFile = logger, fw
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	slog.SetDefault(logger)
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	mu.Lock()
	fw := logFile
	logFile = nil
	mu.Unlock()
	if fw == nil {
		return nil
	}
	return fw.Close()
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// FromEnv builds Options from GSB_LOG_* variables.
func FromEnv() Options {
	return Options{
		Level:     os.Getenv("GSB_LOG_LEVEL"),
		Format:    os.Getenv("GSB_LOG_FORMAT"),
		AddSource: strings.EqualFold(os.Getenv("GSB_LOG_SOURCE"), "true"),
		File:      os.Getenv("GSB_LOG_FILE"),
	}
}

// ParseLevel accepts slog level names (case-insensitive, "warning" too, and
// offsets such as "debug+2"). Anything else is INFO.
func ParseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

type scopeKey struct{}

// boardScope is the storyboard a call works on.
type boardScope struct {
	doc         string
	first, last int // 1-based panel range, 0 when unset
}

func scopeFrom(ctx context.Context) boardScope {
	if ctx == nil {
		return boardScope{}
	}
	s, _ := ctx.Value(scopeKey{}).(boardScope)
	return s
}

// WithDocument returns a context naming the storyboard; records logged with
// it carry a doc attribute.
func WithDocument(ctx context.Context, name string) context.Context {
	s := scopeFrom(ctx)
	s.doc = name
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithRange adds the 1-based panel range an operation covers.
func WithRange(ctx context.Context, first, last int) context.Context {
	s := scopeFrom(ctx)
	s.first, s.last = first, last
	return context.WithValue(ctx, scopeKey{}, s)
}

// DocumentFrom returns the storyboard name stored by WithDocument.
func DocumentFrom(ctx context.Context) (string, bool) {
	s := scopeFrom(ctx)
	return s.doc, s.doc != ""
}

// scoped copies the board scope from the context onto each record.
type scoped struct{ next slog.Handler }

func (s scoped) Enabled(ctx context.Context, l slog.Level) bool { return s.next.Enabled(ctx, l) }

func (s scoped) Handle(ctx context.Context, r slog.Record) error {
	b := scopeFrom(ctx)
	if b.doc != "" || b.first != 0 {
		r = r.Clone()
		if b.doc != "" {
			r.AddAttrs(slog.String("doc", b.doc))
		}
		if b.first != 0 {
			r.AddAttrs(slog.Int("first", b.first), slog.Int("last", b.last))
		}
	}
	return s.next.Handle(ctx, r)
}

func (s scoped) WithAttrs(as []slog.Attr) slog.Handler { return scoped{next: s.next.WithAttrs(as)} }
func (s scoped) WithGroup(name string) slog.Handler    { return scoped{next: s.next.WithGroup(name)} }

// tee sends each record to every sink that accepts its level.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t tee) WithAttrs(as []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(as)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
