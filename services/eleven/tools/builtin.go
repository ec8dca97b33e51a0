// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/seanebones-lang/Eleven-Term/services/eleven/safety"
)

// Limits for the built-in tools.
const (
	// MaxCommandLength bounds shell commands.
	MaxCommandLength = 10000

	// MaxFileReadBytes bounds View output so one binary blob cannot
	// blow up the conversation context.
	MaxFileReadBytes = 256 * 1024

	// maxGrepMatches caps grep output lines.
	maxGrepMatches = 200

	// DefaultCommandTimeout applies to Bash when the options leave it
	// zero.
	DefaultCommandTimeout = 60 * time.Second
)

// BuiltinOptions configures the built-in tool set.
type BuiltinOptions struct {
	// Root is the working root for path validation. Defaults to the
	// process working directory.
	Root string

	// Force allows Bash to run commands the classifier marks
	// DANGEROUS. Without it they are refused outright.
	Force bool

	// CommandTimeout bounds each Bash invocation.
	CommandTimeout time.Duration
}

// RegisterBuiltins registers the built-in tool set: LS, View, Edit,
// Write, Bash, Grep, Glob.
func RegisterBuiltins(r *Registry, opts BuiltinOptions) {
	if opts.Root == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.Root = wd
		} else {
			opts.Root = "."
		}
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}

	b := &builtins{opts: opts}

	// Registration errors are impossible here (non-nil handlers,
	// non-empty names); ignore them like any static table.
	_ = r.Register(Registration{
		Name:        "LS",
		Handler:     b.ls,
		Description: "List the contents of a directory",
		Params:      map[string]string{"path": "Directory to list (default .)"},
		Origin:      OriginBuiltin,
	})
	_ = r.Register(Registration{
		Name:        "View",
		Handler:     b.view,
		Description: "Read a file and return its contents",
		Params:      map[string]string{"path": "File to read"},
		Origin:      OriginBuiltin,
	})
	_ = r.Register(Registration{
		Name:        "Edit",
		Handler:     b.edit,
		Description: "Replace the first occurrence of old with new in a file",
		Params: map[string]string{
			"path": "File to edit",
			"old":  "Exact text to replace",
			"new":  "Replacement text",
		},
		Origin: OriginBuiltin,
	})
	_ = r.Register(Registration{
		Name:        "Write",
		Handler:     b.write,
		Description: "Write content to a file, creating it if needed",
		Params: map[string]string{
			"path":    "File to write",
			"content": "Content to write",
		},
		Origin: OriginBuiltin,
	})
	_ = r.Register(Registration{
		Name:        "Bash",
		Handler:     b.bash,
		Description: "Run a shell command",
		Params:      map[string]string{"command": "Shell command to run"},
		Origin:      OriginBuiltin,
	})
	_ = r.Register(Registration{
		Name:        "Grep",
		Handler:     b.grep,
		Description: "Search file contents for a regular expression",
		Params: map[string]string{
			"pattern": "Regular expression to search for",
			"path":    "File or directory to search (default .)",
		},
		Origin: OriginBuiltin,
	})
	_ = r.Register(Registration{
		Name:        "Glob",
		Handler:     b.glob,
		Description: "Find files matching a glob pattern",
		Params:      map[string]string{"pattern": "Glob pattern, e.g. **/*.go"},
		Origin:      OriginBuiltin,
	})
}

type builtins struct {
	opts BuiltinOptions
}

func (b *builtins) ls(params map[string]string) Result {
	path := params["path"]
	if path == "" {
		path = params["dir"]
	}
	if path == "" {
		path = "."
	}

	abs, err := resolvePath(b.opts.Root, path)
	if err != nil {
		return Fail(err.Error())
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return Fail(err.Error())
	}

	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString(entry.Name())
		if entry.IsDir() {
			sb.WriteByte('/')
		}
		sb.WriteByte('\n')
	}
	return Ok(sb.String())
}

func (b *builtins) view(params map[string]string) Result {
	abs, err := resolvePath(b.opts.Root, params["path"])
	if err != nil {
		return Fail(err.Error())
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Fail(err.Error())
	}
	if info.IsDir() {
		return Fail(fmt.Sprintf("%s is a directory", params["path"]))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return Fail(err.Error())
	}
	if len(data) > MaxFileReadBytes {
		data = data[:MaxFileReadBytes]
		return Ok(string(data) + "\n... [truncated]")
	}
	return Ok(string(data))
}

func (b *builtins) edit(params map[string]string) Result {
	abs, err := resolvePath(b.opts.Root, params["path"])
	if err != nil {
		return Fail(err.Error())
	}

	oldText, ok := params["old"]
	if !ok || oldText == "" {
		return Fail("missing required parameter: old")
	}
	newText := params["new"]

	data, err := os.ReadFile(abs)
	if err != nil {
		return Fail(err.Error())
	}

	content := string(data)
	if !strings.Contains(content, oldText) {
		return Fail(fmt.Sprintf("old text not found in %s", params["path"]))
	}

	content = strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return Fail(err.Error())
	}
	return Ok(fmt.Sprintf("Edited %s", params["path"]))
}

func (b *builtins) write(params map[string]string) Result {
	abs, err := resolvePath(b.opts.Root, params["path"])
	if err != nil {
		return Fail(err.Error())
	}

	content, ok := params["content"]
	if !ok {
		return Fail("missing required parameter: content")
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return Fail(err.Error())
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return Fail(err.Error())
	}
	return Ok(fmt.Sprintf("Wrote %d bytes to %s", len(content), params["path"]))
}

func (b *builtins) bash(params map[string]string) Result {
	command := strings.TrimSpace(params["command"])
	if command == "" {
		return Fail("Empty command not allowed")
	}
	if len(command) > MaxCommandLength {
		return Fail(fmt.Sprintf("Command too long (max %d characters)", MaxCommandLength))
	}

	if safety.Classify(command) == safety.RiskDangerous && !b.opts.Force {
		return Fail("Dangerous command pattern detected; re-run with --force to allow")
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = b.opts.Root

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Fail("command timeout")
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				Ran:      true,
			}
		}
		return Fail(err.Error())
	}

	return Result{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String(), Ran: true}
}

func (b *builtins) grep(params map[string]string) Result {
	pattern := params["pattern"]
	if pattern == "" {
		return Fail("missing required parameter: pattern")
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return Fail(fmt.Sprintf("invalid pattern: %v", err))
	}

	path := params["path"]
	if path == "" {
		path = "."
	}
	abs, err := resolvePath(b.opts.Root, path)
	if err != nil {
		return Fail(err.Error())
	}

	var matches []string
	walkErr := filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			if d != nil && d.IsDir() && strings.HasPrefix(d.Name(), ".") && p != abs {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxGrepMatches {
			return filepath.SkipAll
		}

		file, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer file.Close()

		rel, _ := filepath.Rel(b.opts.Root, p)
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, lineNo, scanner.Text()))
				if len(matches) >= maxGrepMatches {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return Fail(walkErr.Error())
	}

	if len(matches) == 0 {
		return Ok("no matches\n")
	}
	return Ok(strings.Join(matches, "\n") + "\n")
}

func (b *builtins) glob(params map[string]string) Result {
	pattern := params["pattern"]
	if pattern == "" {
		return Fail("missing required parameter: pattern")
	}

	full := pattern
	if !filepath.IsAbs(full) {
		full = filepath.Join(b.opts.Root, full)
	}

	paths, err := filepath.Glob(full)
	if err != nil {
		return Fail(fmt.Sprintf("invalid pattern: %v", err))
	}

	rels := make([]string, 0, len(paths))
	for _, p := range paths {
		if rel, err := filepath.Rel(b.opts.Root, p); err == nil {
			rels = append(rels, rel)
		}
	}
	sort.Strings(rels)

	if len(rels) == 0 {
		return Ok("no matches\n")
	}
	return Ok(strings.Join(rels, "\n") + "\n")
}
