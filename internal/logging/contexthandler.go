package logging

import (
	"context"
	"log/slog"
)

// MatchState is the live match state stamped on every record.
type MatchState struct {
	Map     string
	Round   int
	Phase   string
	Tracked int
	Mounted int
}

// Attrs returns the state as log attributes. The map is left out before the
// first map start and the simulation fields before the simulator exists.
func (s MatchState) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 5)
	if s.Map != "" {
		attrs = append(attrs, slog.String("map", s.Map))
	}
	attrs = append(attrs, slog.Int("round", s.Round))
	if s.Phase != "" {
		attrs = append(attrs,
			slog.String("phase", s.Phase),
			slog.Int("mounts", s.Mounted),
			slog.Int("tracked", s.Tracked),
		)
	}
	return attrs
}

// StateProvider returns the current match state. It is called once per
// record, from any goroutine.
type StateProvider func() MatchState

// ContextHandler stamps the match state on records passed to inner. A key the
// record already carries wins over the stamped one.
type ContextHandler struct {
	inner    slog.Handler
	provider StateProvider
}

// NewContextHandler wraps inner.
func NewContextHandler(inner slog.Handler, provider StateProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider == nil {
		return h.inner.Handle(ctx, r)
	}

	own := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		own[a.Key] = true
		return true
	})
	r = r.Clone()
	for _, a := range h.provider().Attrs() {
		if !own[a.Key] {
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
