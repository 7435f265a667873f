// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile writes files so that readers see either the old
// content or the new content, never a partial write. Every file gazelog
// produces (sensor logs, session manifests, peer logs, the session
// marker) goes through [Write].
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write stores data at path: it writes a temporary file in the same
// directory, fsyncs it, renames it into place and fsyncs the parent
// directory. The temporary file is removed on any failure. The parent
// directory must exist.
func Write(path string, data []byte, perm os.FileMode) error {
	directory := filepath.Dir(path)
	file, err := os.CreateTemp(directory, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	temporaryPath := file.Name()

	fail := func(step string, err error) error {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("%s %s: %w", step, path, err)
	}

	if _, err := file.Write(data); err != nil {
		return fail("writing", err)
	}
	if err := file.Chmod(perm); err != nil {
		return fail("setting mode of", err)
	}
	if err := file.Sync(); err != nil {
		return fail("syncing", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}

	// The rename is only durable once the directory entry is on disk.
	if parent, err := os.Open(directory); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
