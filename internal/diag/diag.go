/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package diag defines the abstract diagnostic sink used by the ring buffer
// core. The core only emits events through this interface; NewConsole is
// the backend the channel constructors use unless a caller supplies another
// Logger.
package diag

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a diagnostic verbosity level, ordered from most to least chatty.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel parses a level string. An empty string means "errors only",
// matching the source library's constructor contract.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error", "":
		return LevelError
	default:
		return LevelError
	}
}

// Logger is the abstract diagnostic sink. args follow the slog convention
// of alternating key/value pairs.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// traceLevel is one rung below slog.LevelDebug, since slog has no built-in
// trace level.
const traceLevel = slog.LevelDebug - 4

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelTrace:
		return traceLevel
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Trace(msg string, args ...any) { s.l.Log(context.Background(), traceLevel, msg, args...) }
func (s *slogLogger) Debug(msg string, args ...any)  { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)   { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)   { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any)  { s.l.Error(msg, args...) }

// NewConsole builds the default Logger: a tint-colorized slog.Logger writing
// to stderr, level-gated by ParseLevel(level). Colors are disabled when
// stderr is not a terminal, and the writer is wrapped for ANSI passthrough
// on Windows consoles.
func NewConsole(level string) Logger {
	w := colorable.NewColorable(os.Stderr)
	noColor := !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())

	handler := tint.NewHandler(w, &tint.Options{
		Level:      toSlogLevel(ParseLevel(level)),
		NoColor:    noColor,
		TimeFormat: "15:04:05.000",
	})
	return &slogLogger{l: slog.New(handler)}
}

type noopLogger struct{}

func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Noop returns a Logger that discards every event, for callers that want
// the core silent instead of the default console sink.
func Noop() Logger { return noopLogger{} }

// Discard is io.Discard, re-exported for convenience. NewConsole takes no
// writer and always writes to stderr, so Discard does not silence it.
var Discard io.Writer = io.Discard
