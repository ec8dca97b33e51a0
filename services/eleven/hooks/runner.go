// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package hooks runs optional user-supplied scripts around tool execution.
//
// A hook is any executable placed in the hooks directory whose filename
// (minus extension) matches the hook type, e.g. PreToolUse.sh or
// PostToolUse.py. Hooks receive a JSON payload on standard input and
// signal rejection via a non-zero exit status.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/seanebones-lang/Eleven-Term/pkg/logging"
)

// Hook type names matched against files in the hooks directory.
const (
	PreToolUse  = "PreToolUse"
	PostToolUse = "PostToolUse"
)

// DefaultTimeout bounds a single hook script execution.
const DefaultTimeout = 30 * time.Second

// Runner locates and executes hook scripts from a single directory.
//
// Thread Safety: Runner is immutable after construction and safe for
// concurrent use.
type Runner struct {
	dir     string
	timeout time.Duration
	logger  *logging.Logger
}

// NewRunner creates a Runner over the given hooks directory.
//
// Inputs:
//   - dir: directory searched for hook scripts; may not exist.
//   - logger: optional logger, may be nil.
//
// Outputs:
//   - *Runner ready for use.
func NewRunner(dir string, logger *logging.Logger) *Runner {
	return &Runner{dir: dir, timeout: DefaultTimeout, logger: logger}
}

// WithTimeout returns a copy of the Runner using the given per-hook timeout.
func (r *Runner) WithTimeout(d time.Duration) *Runner {
	cp := *r
	cp.timeout = d
	return &cp
}

// Run executes the first script matching <dir>/<hookType>.* with the
// payload serialized as JSON on stdin.
//
// Description:
//
//	An absent hooks directory or no matching script means the hook
//	passes vacuously. A non-zero exit, spawn failure, or timeout is a
//	hook failure; callers decide whether failure is a veto.
//
// Inputs:
//   - hookType: PreToolUse or PostToolUse.
//   - payload: JSON-serializable document written to the script's stdin.
//
// Outputs:
//   - ok: true when no hook exists or the hook exited zero.
//   - output: combined stdout/stderr of the script, or an error message.
func (r *Runner) Run(hookType string, payload any) (bool, string) {
	script, found := r.find(hookType)
	if !found {
		return true, ""
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Sprintf("hook payload encoding failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, script)
	cmd.Stdin = bytes.NewReader(data)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err = cmd.Run()
	text := strings.TrimSpace(out.String())

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if r.logger != nil {
			r.logger.Warn("hook timed out", "hook", hookType, "script", script)
		}
		return false, hookType + " hook timeout"
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if r.logger != nil {
				r.logger.Warn("hook rejected", "hook", hookType, "exit_code", exitErr.ExitCode())
			}
			return false, text
		}
		return false, fmt.Sprintf("hook failed to start: %v", err)
	}

	if r.logger != nil {
		r.logger.Debug("hook passed", "hook", hookType, "script", script)
	}
	return true, text
}

// find returns the first matching hook script for the given type.
func (r *Runner) find(hookType string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(r.dir, hookType+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}
