// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

// Package snarelog builds the structured logger snared uses throughout
// its lifetime: a text handler on stderr while running in the
// foreground, or a syslog-backed handler once daemonized.
package snarelog

import (
	"context"
	"fmt"
	"log/slog"
	"log/syslog"
	"os"
)

// Level mirrors the three verbosity tiers snared exposes on the command
// line: each repeated -v lowers the minimum level logged.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// FromVerbosity maps a repeated -v count to a Level. Zero occurrences of
// -v yields LevelWarn; each additional occurrence steps down to the next
// tier, capped at LevelDebug.
func FromVerbosity(count int) Level {
	switch {
	case count <= 0:
		return LevelWarn
	case count == 1:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// NewForeground builds a logger that writes human-readable text to
// stderr, used when snared runs with -d/--foreground.
func NewForeground(level Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.slogLevel()})
	return slog.New(handler)
}

// NewSyslog builds a logger backed by the system syslog daemon facility,
// used once snared has daemonized. tag identifies the daemon in syslog
// output (conventionally "snared").
func NewSyslog(level Level, tag string) (*slog.Logger, error) {
	writer, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, fmt.Errorf("snarelog: connecting to syslog: %w", err)
	}
	handler := &syslogHandler{writer: writer, level: level.slogLevel()}
	return slog.New(handler), nil
}

// syslogHandler adapts an slog.Handler onto a *syslog.Writer, routing
// each record to the syslog priority matching its level.
type syslogHandler struct {
	writer *syslog.Writer
	level  slog.Level
	attrs  []slog.Attr
}

func (h *syslogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *syslogHandler) Handle(_ context.Context, record slog.Record) error {
	line := formatRecord(record, h.attrs)
	switch {
	case record.Level >= slog.LevelError:
		return h.writer.Err(line)
	case record.Level >= slog.LevelWarn:
		return h.writer.Warning(line)
	case record.Level >= slog.LevelInfo:
		return h.writer.Info(line)
	default:
		return h.writer.Debug(line)
	}
}

func (h *syslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &syslogHandler{writer: h.writer, level: h.level, attrs: combined}
}

func (h *syslogHandler) WithGroup(_ string) slog.Handler {
	// Groups are not represented in the flat syslog line format; drop them
	// rather than nesting keys, matching the source's flat log lines.
	return h
}

func formatRecord(record slog.Record, extra []slog.Attr) string {
	line := record.Message
	for _, attr := range extra {
		line += fmt.Sprintf(" %s=%v", attr.Key, attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", attr.Key, attr.Value)
		return true
	})
	return line
}
