// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log provides leveled, module-tagged logging on top of log/slog.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Modules used to tag log records.
const (
	CLI  = "cli"
	Host = "host"
	CPU  = "cpu"
)

// Log levels. Trace and Crit extend the slog levels.
const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelCrit  slog.Level = 12
)

var root atomic.Pointer[slog.Logger]

func init() {
	root.Store(NewLogger(io.Discard, LevelInfo))
}

// ParseLevel converts a level name to a slog level.
func ParseLevel(lvl string) (slog.Level, error) {
	switch strings.ToUpper(lvl) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "CRIT", "CRITICAL":
		return LevelCrit, nil
	default:
		return 0, errors.Errorf("invalid level: %s", lvl)
	}
}

// LevelString returns the upper-case name of a level.
func LevelString(l slog.Level) string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelCrit:
		return "CRIT"
	default:
		return l.String()
	}
}

// NewLogger creates a text logger writing records at or above 'level'.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if l, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(LevelString(l))
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// InitLogger installs a stderr logger at the named level.
func InitLogger(logLevel string) error {
	lvl, err := ParseLevel(logLevel)
	if err != nil {
		return err
	}
	SetDefault(NewLogger(os.Stderr, lvl))
	return nil
}

// SetDefault sets the root logger.
func SetDefault(l *slog.Logger) {
	root.Store(l)
}

// Root returns the root logger.
func Root() *slog.Logger {
	return root.Load()
}

func write(level slog.Level, module, msg string, ctx ...any) {
	l := Root()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, msg, append([]any{"module", module}, ctx...)...)
}

// Trace logs a message at the trace level for a specific module.
func Trace(module string, msg string, ctx ...any) {
	write(LevelTrace, module, msg, ctx...)
}

// Debug logs a message at the debug level for a specific module.
func Debug(module string, msg string, ctx ...any) {
	write(LevelDebug, module, msg, ctx...)
}

func Info(module string, msg string, ctx ...any) {
	write(LevelInfo, module, msg, ctx...)
}

func Warn(module string, msg string, ctx ...any) {
	write(LevelWarn, module, msg, ctx...)
}

func Error(module string, msg string, ctx ...any) {
	write(LevelError, module, msg, ctx...)
}

// Crit logs a message at the critical level. The caller decides whether
// to exit.
func Crit(module string, msg string, ctx ...any) {
	write(LevelCrit, module, msg, ctx...)
}
