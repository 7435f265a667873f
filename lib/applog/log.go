// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package applog

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/gazelog/gazelog/lib/atomicfile"
	"github.com/gazelog/gazelog/lib/clock"
)

// StampLayout formats the timestamp part of every file name gazelog
// writes.
const StampLayout = "2006-01-02_15-04-05.000"

// Config describes where and how a Log is flushed.
type Config struct {
	// Folder receives the flushed files. It is created on flush if
	// missing.
	Folder string

	// Prefix starts every file name, e.g. "vdl".
	Prefix string

	Compression Compression

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// FlushResult describes one written file.
type FlushResult struct {
	Path    string
	Records int
	// Bytes is the size on disk, after compression.
	Bytes int
	// Digest is the hex BLAKE3-256 of the bytes on disk.
	Digest string
}

// Log buffers records in append order. All methods are safe for
// concurrent use, though the recorder appends from one goroutine at a
// time so that record order equals gaze arrival order.
type Log struct {
	folder      string
	prefix      string
	compression Compression
	clock       clock.Clock
	logger      *slog.Logger

	mu        sync.Mutex
	records   []string
	lastStamp int64

	// flushMu serialises Flush so two flushes never write the same
	// records.
	flushMu sync.Mutex
}

// New validates cfg and returns an empty Log.
func New(cfg Config) (*Log, error) {
	if cfg.Folder == "" {
		return nil, errors.New("applog: Folder is required")
	}
	if cfg.Prefix == "" {
		return nil, errors.New("applog: Prefix is required")
	}
	if strings.ContainsAny(cfg.Prefix, `/\`) {
		return nil, fmt.Errorf("applog: prefix %q contains a path separator", cfg.Prefix)
	}
	compression, err := ParseCompression(string(cfg.Compression))
	if err != nil {
		return nil, fmt.Errorf("applog: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Log{
		folder:      cfg.Folder,
		prefix:      cfg.Prefix,
		compression: compression,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}, nil
}

// Append adds one record: a fresh timestamp followed by fields, tab
// separated. Fields must not contain tabs or newlines; any that do are
// replaced by spaces so a record always stays on one line.
func (l *Log) Append(fields ...string) {
	var line strings.Builder
	line.Grow(16 + 12*len(fields))

	l.mu.Lock()
	defer l.mu.Unlock()

	stamp := l.clock.Now().UnixMicro()
	if stamp <= l.lastStamp {
		stamp = l.lastStamp + 1
	}
	l.lastStamp = stamp

	line.WriteString(strconv.FormatInt(stamp, 10))
	for _, field := range fields {
		line.WriteByte('\t')
		line.WriteString(sanitize(field))
	}
	line.WriteByte('\n')
	l.records = append(l.records, line.String())
}

// Len returns the number of buffered records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Flush writes every record buffered at the time of the call to a new
// file and removes them from the buffer. Records appended while the
// file is being written stay buffered for the next flush. With nothing
// buffered, Flush writes no file and returns a zero FlushResult.
func (l *Log) Flush() (FlushResult, error) {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	pending := l.records[:len(l.records):len(l.records)]
	l.mu.Unlock()

	if len(pending) == 0 {
		return FlushResult{}, nil
	}

	size := 0
	for _, record := range pending {
		size += len(record)
	}
	plain := make([]byte, 0, size)
	for _, record := range pending {
		plain = append(plain, record...)
	}

	stored, err := compress(plain, l.compression)
	if err != nil {
		return FlushResult{}, fmt.Errorf("applog: %w", err)
	}
	if err := os.MkdirAll(l.folder, 0o755); err != nil {
		return FlushResult{}, fmt.Errorf("applog: creating log folder: %w", err)
	}
	path, err := UniquePath(l.folder, l.prefix, l.clock.Now(), ".txt"+l.compression.Extension())
	if err != nil {
		return FlushResult{}, fmt.Errorf("applog: %w", err)
	}
	if err := atomicfile.Write(path, stored, 0o644); err != nil {
		return FlushResult{}, fmt.Errorf("applog: %w", err)
	}

	l.mu.Lock()
	l.records = l.records[len(pending):]
	if len(l.records) == 0 {
		l.records = nil
	}
	l.mu.Unlock()

	digest := blake3.Sum256(stored)
	result := FlushResult{
		Path:    path,
		Records: len(pending),
		Bytes:   len(stored),
		Digest:  hex.EncodeToString(digest[:]),
	}
	l.logger.Info("log flushed",
		"path", result.Path,
		"records", result.Records,
		"bytes", result.Bytes,
		"blake3", result.Digest,
	)
	return result, nil
}

// FileName returns "<prefix>-<stamp><extension>".
func FileName(prefix string, at time.Time, extension string) string {
	return prefix + "-" + at.Format(StampLayout) + extension
}

// UniquePath returns a path in folder for FileName that does not exist
// yet, adding "-1", "-2" ... before the extension when two files land
// in the same millisecond.
func UniquePath(folder, prefix string, at time.Time, extension string) (string, error) {
	base := FileName(prefix, at, "")
	for attempt := 0; attempt < 1000; attempt++ {
		name := base
		if attempt > 0 {
			name += "-" + strconv.Itoa(attempt)
		}
		path := filepath.Join(folder, name+extension)
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("no free file name for %s in %s", base, folder)
}

// WriteStamped atomically writes content to a fresh timestamped file in
// folder and returns its path. It is used for the session manifest and
// for logs handed over by peers.
func WriteStamped(folder, prefix string, at time.Time, content []byte) (string, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", folder, err)
	}
	path, err := UniquePath(folder, prefix, at, ".txt")
	if err != nil {
		return "", err
	}
	if err := atomicfile.Write(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

var fieldReplacer = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

func sanitize(field string) string {
	if !strings.ContainsAny(field, "\t\r\n") {
		return field
	}
	return fieldReplacer.Replace(field)
}
