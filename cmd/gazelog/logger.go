// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/gazelog/gazelog/lib/applog"
)

// newLogger returns the process logger. Stderr gets warnings (info with
// verbose) as text on a terminal and as JSON otherwise; the debug file
// in debugFolder gets everything as JSON. The returned function closes
// the debug file.
func newLogger(debugFolder string, at time.Time, verbose bool) (*slog.Logger, func(), error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	var stderr slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		stderr = slog.NewTextHandler(os.Stderr, options)
	} else {
		stderr = slog.NewJSONHandler(os.Stderr, options)
	}
	if debugFolder == "" {
		return slog.New(stderr), func() {}, nil
	}

	path, err := applog.UniquePath(debugFolder, "debug", at, ".log")
	if err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening debug log: %w", err)
	}
	debug := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(teeHandler{stderr, debug}), func() { file.Close() }, nil
}

// teeHandler sends every record to each handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range t {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range t {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(teeHandler, len(t))
	for i, handler := range t {
		derived[i] = handler.WithAttrs(attrs)
	}
	return derived
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	derived := make(teeHandler, len(t))
	for i, handler := range t {
		derived[i] = handler.WithGroup(name)
	}
	return derived
}
