// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces the file at path with data without ever
// exposing a partially-written file.
//
// Description:
//
//	Writes to a temp file in the same directory, fsyncs, then renames
//	over the target. Rename within one filesystem is atomic, so a
//	crash at any point leaves either the old complete file or the new
//	one. An advisory lock on a sidecar file serializes writers across
//	processes; where flock is unavailable or fails (some network
//	filesystems), the write proceeds unlocked with a logged warning.
//	State files are private to the user (mode 0600).
func WriteFileAtomic(path string, data []byte) error {
	if unlock, err := acquireLock(path, true); err != nil {
		slog.Warn("State file lock unavailable, writing unlocked",
			"file", filepath.Base(path), "error", err)
	} else {
		defer unlock()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	// Clean up on any failure path; harmless after a successful rename.
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	// Rename can reset the mode on some filesystems; best effort.
	_ = os.Chmod(path, 0600)
	return nil
}

// readFileLocked reads the file at path under a shared advisory lock.
func readFileLocked(path string) ([]byte, error) {
	unlock, err := acquireLock(path, false)
	if err == nil {
		defer unlock()
	}
	return os.ReadFile(path)
}
