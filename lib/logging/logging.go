// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the process logger for CASC tools: a slog
// handler on stderr whose level and format come from configuration.
// The "auto" format writes text to a terminal and JSON otherwise.
//
// Library packages never construct loggers themselves. They accept a
// *slog.Logger, fall back to slog.Default, and tag records with a
// "component" attribute via [Component].
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Options selects the handler.
type Options struct {
	// Level is debug, info, warn, or error. Empty means info.
	Level string

	// Format is json, text, or auto. Empty means json. Auto picks text
	// when the output is a terminal and json otherwise.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates the logger described by options and installs it as the
// slog default so that packages using slog.Default share its handler.
func New(options Options) (*slog.Logger, error) {
	level, err := ParseLevel(options.Level)
	if err != nil {
		return nil, err
	}

	output := options.Output
	if output == nil {
		output = os.Stderr
	}
	handlerOptions := &slog.HandlerOptions{Level: level}

	format := strings.ToLower(options.Format)
	if format == "auto" {
		format = "json"
		if isTerminal(output) {
			format = "text"
		}
	}

	var handler slog.Handler
	switch format {
	case "", "json":
		handler = slog.NewJSONHandler(output, handlerOptions)
	case "text":
		handler = slog.NewTextHandler(output, handlerOptions)
	default:
		return nil, fmt.Errorf("unknown log format %q (want json, text or auto)", options.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

func isTerminal(output io.Writer) bool {
	file, ok := output.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// Component returns logger (or slog.Default when nil) tagged with the
// component name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}
