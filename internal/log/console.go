/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes lines like
//
//	14:02:07.431 INFO  shift/insert: shift committed doc=board steps=2
//
// component and op lead the line; app and ver are left to the JSON sinks.
type consoleHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	source bool

	component, op string
	group         string // dotted prefix for later keys
	attrs         []slog.Attr
}

func newConsoleHandler(w io.Writer, level slog.Leveler, source bool) *consoleHandler {
	return &consoleHandler{w: w, mu: &sync.Mutex{}, level: level, source: source}
}

func (h *consoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	floor := slog.LevelInfo
	if h.level != nil {
		floor = h.level.Level()
	}
	return l >= floor
}

func (h *consoleHandler) clone() *consoleHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	return &c
}

// take routes leading fields into the prefix and keeps the rest.
func (h *consoleHandler) take(as []slog.Attr) {
	for _, a := range as {
		if h.group == "" {
			switch a.Key {
			case "component":
				h.component = a.Value.String()
				continue
			case "op":
				h.op = a.Value.String()
				continue
			case "app", "ver":
				continue
			}
		}
		a.Key = h.group + a.Key
		h.attrs = append(h.attrs, a)
	}
}

func (h *consoleHandler) WithAttrs(as []slog.Attr) slog.Handler {
	c := h.clone()
	c.take(as)
	return c
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.group += name + "."
	return c
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	c := h.clone()
	r.Attrs(func(a slog.Attr) bool {
		c.take([]slog.Attr{a})
		return true
	})

	var b strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format("15:04:05.000"))
	b.WriteByte(' ')
	lvl := r.Level.String()
	b.WriteString(lvl)
	for i := len(lvl); i < 6; i++ {
		b.WriteByte(' ')
	}
	if c.component != "" {
		b.WriteString(c.component)
		if c.op != "" {
			b.WriteByte('/')
			b.WriteString(c.op)
		}
		b.WriteString(": ")
	}
	b.WriteString(r.Message)
	for _, a := range c.attrs {
		writeAttr(&b, "", a)
	}
	if h.source && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		b.WriteString(" src=")
		b.WriteString(filepath.Base(f.File))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Line))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, g := range v.Group() {
			writeAttr(b, p, g)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(v))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	}
	s := v.String()
	if s == "" || strings.ContainsAny(s, " =\"\t\n") {
		return strconv.Quote(s)
	}
	return s
}
