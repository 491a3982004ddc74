// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	color "github.com/fatih/color"
)

type (
	DebugHandler struct {
		out   io.Writer
		level slog.Level
		attrs []slog.Attr
		group string
		// shared by handlers derived through WithAttrs
		mut *sync.Mutex
	}

	MultiHandler struct {
		handlers []slog.Handler
	}
)

var _ slog.Handler = (*DebugHandler)(nil)
var _ slog.Handler = (*MultiHandler)(nil)

// NewDebugHandler returns a colored single-line handler for terminals.
func NewDebugHandler(out io.Writer, level slog.Level) *DebugHandler {
	return &DebugHandler{out: out, level: level, mut: &sync.Mutex{}}
}

// Handle implements slog.Handler
func (h *DebugHandler) Handle(_ context.Context, r slog.Record) error {
	timeStr := color.New(color.FgHiBlack).Sprint(r.Time.Format("15:04:05"))
	level := levelColor(r.Level)
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		attrs = append(attrs, a)
		return true
	})
	logEntry := fmt.Sprintf("%s %s %s%s\n",
		timeStr,
		level,
		r.Message,
		formatAttributes(attrs),
	)

	h.mut.Lock()
	defer h.mut.Unlock()
	_, err := io.WriteString(h.out, logEntry)
	return err
}

// WithAttrs implements slog.Handler
func (h *DebugHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		merged = append(merged, a)
	}
	return &DebugHandler{out: h.out, level: h.level, attrs: merged, group: h.group, mut: h.mut}
}

// WithGroup implements slog.Handler
func (h *DebugHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &DebugHandler{out: h.out, level: h.level, attrs: h.attrs, group: group, mut: h.mut}
}

// Enabled implements slog.Handler
func (h *DebugHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Enabled implements slog.Handler
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler
func (m *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		// Best-effort handling: a failing handler does not stop the others.
		if err := h.Handle(ctx, record.Clone()); err != nil {
			slog.Error("error from slog handler", "error", err)
		}
	}
	return nil
}

// WithAttrs implements slog.Handler
func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

// WithGroup implements slog.Handler
func (m *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}

// levelColor returns a colored string representation of the log level.
func levelColor(level slog.Level) string {
	var bg, fg color.Attribute
	switch {
	case level < slog.LevelDebug:
		bg, fg = color.BgHiBlack, color.FgWhite
	case level < slog.LevelInfo:
		bg, fg = color.BgMagenta, color.FgWhite
	case level < slog.LevelWarn:
		bg, fg = color.BgBlue, color.FgWhite
	case level < slog.LevelError:
		bg, fg = color.BgYellow, color.FgBlack
	default:
		bg, fg = color.BgRed, color.FgWhite
	}

	return color.New(bg, fg, color.Bold).Sprint(" " + strings.ToUpper(level.String()) + " ")
}

// formatAttributes formats a slice of attributes as a space-separated string.
func formatAttributes(attrs []slog.Attr) string {
	if len(attrs) == 0 {
		return ""
	}

	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, formatAttrValue(attr.Value)))
	}

	return " " + strings.Join(parts, " ")
}

// formatAttrValue formats a slog.Value based on its kind.
func formatAttrValue(v slog.Value) string {
	v = v.Resolve()

	switch v.Kind() {
	case slog.KindString:
		return fmt.Sprintf("%q", v.String())
	case slog.KindInt64:
		return fmt.Sprintf("%d", v.Int64())
	case slog.KindUint64:
		return fmt.Sprintf("%d", v.Uint64())
	case slog.KindFloat64:
		return fmt.Sprintf("%g", v.Float64())
	case slog.KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindGroup:
		group := v.Group()
		parts := make([]string, 0, len(group))
		for _, a := range group {
			parts = append(parts, fmt.Sprintf("%s=%s", a.Key, formatAttrValue(a.Value)))
		}
		return "{" + strings.Join(parts, " ") + "}"
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return fmt.Sprintf("%q", err.Error())
		}
		return fmt.Sprintf("%v", v.Any())
	default:
		return fmt.Sprintf("%v", v)
	}
}
