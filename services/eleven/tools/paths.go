// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Sentinel errors for path validation.
var (
	// ErrEmptyPath indicates a missing path parameter.
	ErrEmptyPath = errors.New("empty path")

	// ErrPathOutsideRoot indicates an attempted escape from the
	// working root.
	ErrPathOutsideRoot = errors.New("path escapes working root")
)

// resolvePath validates a user-supplied path against the working root.
//
// Relative paths are resolved under root. Absolute paths are allowed
// only when they stay inside root. Null bytes are rejected outright.
func resolvePath(root, path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: contains null byte", ErrPathOutsideRoot)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, path)
	}

	return abs, nil
}
