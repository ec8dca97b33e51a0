// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools provides the tool registry and the built-in tool set.
//
// A tool is any registered capability with a fixed contract: it takes
// a string parameter map and returns a Result. What it does internally
// (filesystem access, subprocesses, network calls) is entirely the
// handler's responsibility; the registry only records the outcome.
package tools

import "errors"

// Sentinel errors for the registry.
var (
	// ErrInvalidHandler indicates a registration with a nil handler.
	ErrInvalidHandler = errors.New("invalid tool handler")

	// ErrInvalidName indicates a registration with an empty name.
	ErrInvalidName = errors.New("invalid tool name")
)

// Origin identifies where a tool registration came from.
type Origin string

const (
	// OriginBuiltin marks tools registered at process start.
	OriginBuiltin Origin = "builtin"

	// OriginPlugin marks tools loaded from the plugins directory.
	OriginPlugin Origin = "plugin"
)

// Result is the uniform outcome every tool handler returns.
//
// ExitCode 0 signals success, any other value signals failure. Ran is
// false when the operation was never attempted (consent denied,
// unknown tool, validation failure); callers use it to decide whether
// post-execution side effects such as hooks should fire.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Ran      bool
}

// Output returns stdout when present, otherwise stderr. This is what
// gets surfaced to the conversation and to post-hooks.
func (r Result) Output() string {
	if r.Stdout != "" {
		return r.Stdout
	}
	return r.Stderr
}

// Ok builds a successful executed result.
func Ok(stdout string) Result {
	return Result{ExitCode: 0, Stdout: stdout, Ran: true}
}

// Fail builds a failed executed result.
func Fail(stderr string) Result {
	return Result{ExitCode: 1, Stderr: stderr, Ran: true}
}

// NotRun builds a result for an operation that was never attempted.
func NotRun(exitCode int, stderr string) Result {
	return Result{ExitCode: exitCode, Stderr: stderr}
}

// Handler is the function contract every tool satisfies.
//
// The parser only ever produces string values, so the parameter map is
// string to string. Handlers that shell out must apply their own
// timeout and map it to ExitCode 1 with a stderr message ending in
// "timeout"; nothing cancels a handler externally once it starts.
type Handler func(params map[string]string) Result

// Registration describes one registered tool.
type Registration struct {
	Name        string
	Handler     Handler
	Description string

	// Params maps declared parameter names to their descriptions.
	// Informational only; the registry does not validate against it.
	Params map[string]string

	Origin Origin
}
