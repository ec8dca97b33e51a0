// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hooks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHook(t *testing.T, dir, filename, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(body), 0755))
}

func TestRunNoHooksDir(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "absent"), nil)
	ok, out := r.Run(PreToolUse, map[string]string{"tool": "Bash"})
	assert.True(t, ok)
	assert.Empty(t, out)
}

func TestRunNoMatchingScript(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "PostToolUse.sh", "#!/bin/sh\nexit 0\n")

	r := NewRunner(dir, nil)
	ok, out := r.Run(PreToolUse, nil)
	assert.True(t, ok)
	assert.Empty(t, out)
}

func TestRunPassingHookReceivesPayload(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "PreToolUse.sh", "#!/bin/sh\ncat\nexit 0\n")

	r := NewRunner(dir, nil)
	ok, out := r.Run(PreToolUse, map[string]any{
		"tool":   "Bash",
		"params": map[string]string{"command": "ls"},
	})
	assert.True(t, ok)
	assert.Contains(t, out, `"tool":"Bash"`)
	assert.Contains(t, out, `"command":"ls"`)
}

func TestRunRejectingHook(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "PreToolUse.sh", "#!/bin/sh\necho blocked by policy\nexit 1\n")

	r := NewRunner(dir, nil)
	ok, out := r.Run(PreToolUse, map[string]string{"tool": "Bash"})
	assert.False(t, ok)
	assert.Equal(t, "blocked by policy", out)
}

func TestRunHookTimeout(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "PreToolUse.sh", "#!/bin/sh\nsleep 5\n")

	r := NewRunner(dir, nil).WithTimeout(100 * time.Millisecond)
	ok, out := r.Run(PreToolUse, nil)
	assert.False(t, ok)
	assert.Equal(t, "PreToolUse hook timeout", out)
}

func TestRunSpawnFailure(t *testing.T) {
	dir := t.TempDir()
	// Present but not executable.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PreToolUse.sh"), []byte("exit 0\n"), 0644))

	r := NewRunner(dir, nil)
	ok, out := r.Run(PreToolUse, nil)
	assert.False(t, ok)
	assert.Contains(t, out, "hook failed to start")
}
