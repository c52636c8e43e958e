// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// Package logging sets up the process-wide slog default, following the
// same "text handler plus a debug-suppressing wrapper" pattern both
// daemons use.
package logging

import (
	"context"
	"log/slog"
	"os"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Setup installs the process default logger. debug enables LevelDebug
// output; otherwise debug records are suppressed even if a library
// upstream tries to emit them at LevelDebug.
func Setup(debug bool) {
	if debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
		return
	}
	slog.SetDefault(slog.New(&noDebugHandler{
		handler: slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}))
}

// noDebugHandler filters out debug-level records regardless of what the
// wrapped handler would otherwise emit.
type noDebugHandler struct {
	handler slog.Handler
}

func (h *noDebugHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level == slog.LevelDebug {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *noDebugHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level == slog.LevelDebug {
		return nil
	}
	return h.handler.Handle(ctx, record)
}

func (h *noDebugHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &noDebugHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *noDebugHandler) WithGroup(name string) slog.Handler {
	return &noDebugHandler{handler: h.handler.WithGroup(name)}
}

// Peer returns a logger prefixed with the worker's peer address, per the
// "all exceptional conditions are logged with the worker's name (peer
// ip:port) as a prefix" error-handling policy.
func Peer(addr string) *slog.Logger {
	return slog.With("peer", addr)
}
