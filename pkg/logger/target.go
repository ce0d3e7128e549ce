package logger

import (
	"context"
	"log/slog"
)

// TargetHandler filters records by the level configured for their target.
// Records without a target, or with an unknown one, use the default level.
type TargetHandler struct {
	next     slog.Handler
	level    slog.Level
	targets  map[string]slog.Level
	target   string // bound through WithAttrs
	minLevel slog.Level
}

// NewTargetHandler wraps next with per-target level filtering.
func NewTargetHandler(next slog.Handler, level slog.Level, targets map[string]slog.Level) *TargetHandler {
	min := level
	for _, l := range targets {
		if l < min {
			min = l
		}
	}
	return &TargetHandler{next: next, level: level, targets: targets, minLevel: min}
}

// Enabled answers for the bound target when one is known; otherwise it
// lets through anything some target could accept and Handle decides.
func (h *TargetHandler) Enabled(ctx context.Context, l slog.Level) bool {
	if h.target != "" {
		return l >= h.levelFor(h.target) && h.next.Enabled(ctx, l)
	}
	return l >= h.minLevel && h.next.Enabled(ctx, l)
}

func (h *TargetHandler) Handle(ctx context.Context, r slog.Record) error {
	target := h.target
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == TargetKey {
			target = a.Value.String()
			return false
		}
		return true
	})
	if r.Level < h.levelFor(target) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *TargetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	for _, a := range attrs {
		if a.Key == TargetKey {
			clone.target = a.Value.String()
		}
	}
	clone.next = h.next.WithAttrs(attrs)
	return &clone
}

func (h *TargetHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

func (h *TargetHandler) levelFor(target string) slog.Level {
	if l, ok := h.targets[target]; ok && target != "" {
		return l
	}
	return h.level
}

// MultiHandler fans out to multiple slog.Handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler returns a handler that sends each record to all hs.
func NewMultiHandler(hs ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}
