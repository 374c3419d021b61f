// Package logging bridges injected types.Logger implementations to slog.
package logging

import (
	"context"
	"log/slog"

	"github.com/LavishGent/kairos/internal/types"
)

// New returns a slog.Logger tagged with component. A nil logger selects
// slog.Default().
func New(l types.Logger, component string) *slog.Logger {
	logger := slog.Default()
	if l != nil {
		logger = slog.New(Handler{logger: l})
	}
	return logger.With("component", component)
}

// Handler adapts a types.Logger to slog.Handler. Groups are flattened into
// dotted keys.
//
//nolint:govet // Simple adapter struct - alignment optimization minimal
type Handler struct {
	attrs  []slog.Attr
	logger types.Logger
	group  string
}

// NewHandler wraps l.
func NewHandler(l types.Logger) Handler {
	return Handler{logger: l}
}

// Enabled implements slog.Handler.
func (h Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle implements slog.Handler.
//
//nolint:gocritic // slog.Handler interface requires passing Record by value
func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	args := make([]any, 0, (len(h.attrs)+r.NumAttrs())*2)
	for _, attr := range h.attrs {
		args = append(args, attr.Key, attr.Value.Any())
	}
	r.Attrs(func(attr slog.Attr) bool {
		args = append(args, h.key(attr.Key), attr.Value.Any())
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		h.logger.Error(r.Message, args...)
	case r.Level >= slog.LevelWarn:
		h.logger.Warn(r.Message, args...)
	case r.Level >= slog.LevelInfo:
		h.logger.Info(r.Message, args...)
	default:
		h.logger.Debug(r.Message, args...)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return Handler{logger: h.logger, attrs: newAttrs, group: h.group}
}

// WithGroup implements slog.Handler.
func (h Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return Handler{logger: h.logger, attrs: h.attrs, group: h.key(name)}
}

func (h Handler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
