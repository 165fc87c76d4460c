package dabgent

import (
	"context"
	"log/slog"
)

// nopLogger discards everything. Every component that accepts an optional
// *slog.Logger falls back to this rather than nil-checking on every log call.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
