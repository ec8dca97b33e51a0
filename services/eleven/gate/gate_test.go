// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanebones-lang/Eleven-Term/services/eleven/hooks"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/parser"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/safety"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/tools"
)

// stubPrompter records whether it was asked and answers with a fixed reply.
type stubPrompter struct {
	asked  bool
	answer bool
	risk   safety.RiskLevel
}

func (s *stubPrompter) Confirm(toolName, detail string, risk safety.RiskLevel) bool {
	s.asked = true
	s.risk = risk
	return s.answer
}

func inv(name string, params ...string) parser.Invocation {
	i := parser.Invocation{Name: name}
	for n := 0; n+1 < len(params); n += 2 {
		i.Params = append(i.Params, parser.Param{Name: params[n], Value: params[n+1]})
	}
	return i
}

func newTestGate(t *testing.T, opts Options, prompter Prompter) (*Gate, *tools.Registry, *bool) {
	t.Helper()
	r := tools.NewRegistry()
	called := false
	require.NoError(t, r.Register(tools.Registration{
		Name: "Echo",
		Handler: func(params map[string]string) tools.Result {
			called = true
			return tools.Ok(params["text"])
		},
	}))
	require.NoError(t, r.Register(tools.Registration{
		Name: "Bash",
		Handler: func(params map[string]string) tools.Result {
			called = true
			return tools.Ok("ran: " + params["command"])
		},
	}))
	g := New(r, hooks.NewRunner(filepath.Join(t.TempDir(), "no-hooks"), nil), prompter, opts, nil)
	return g, r, &called
}

func TestExecuteUnknownTool(t *testing.T) {
	g, _, called := newTestGate(t, Options{}, nil)

	result := g.Execute(context.Background(), inv("Missing"))
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "Unknown tool: Missing", result.Stderr)
	assert.False(t, result.Ran)
	assert.False(t, *called)
}

func TestExecuteSafeToolSkipsPrompt(t *testing.T) {
	p := &stubPrompter{answer: false}
	g, _, called := newTestGate(t, Options{}, p)

	result := g.Execute(context.Background(), inv("Echo", "text", "hi"))
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hi", result.Stdout)
	assert.True(t, *called)
	assert.False(t, p.asked, "SAFE invocations must never prompt")
}

func TestExecuteSafeBashSkipsPrompt(t *testing.T) {
	p := &stubPrompter{answer: false}
	g, _, _ := newTestGate(t, Options{}, p)

	result := g.Execute(context.Background(), inv("Bash", "command", "ls -la"))
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, p.asked)
}

func TestExecuteRiskyBashPrompts(t *testing.T) {
	p := &stubPrompter{answer: true}
	g, _, called := newTestGate(t, Options{}, p)

	result := g.Execute(context.Background(), inv("Bash", "command", "rm old.txt"))
	assert.Equal(t, 0, result.ExitCode)
	assert.True(t, p.asked)
	assert.Equal(t, safety.RiskCaution, p.risk)
	assert.True(t, *called)
	_ = result
}

func TestExecuteConsentDenied(t *testing.T) {
	p := &stubPrompter{answer: false}
	g, _, called := newTestGate(t, Options{}, p)

	result := g.Execute(context.Background(), inv("Bash", "command", "rm old.txt"))
	assert.Equal(t, 0, result.ExitCode, "cancellation is not an error")
	assert.Equal(t, "Cancelled by user", result.Stderr)
	assert.False(t, result.Ran)
	assert.False(t, *called, "denied invocations must not reach the handler")
}

func TestExecuteNilPrompterDeclines(t *testing.T) {
	g, _, called := newTestGate(t, Options{}, nil)

	result := g.Execute(context.Background(), inv("Bash", "command", "sudo reboot"))
	assert.Equal(t, "Cancelled by user", result.Stderr)
	assert.False(t, *called)
}

func TestExecuteSkipPermissions(t *testing.T) {
	p := &stubPrompter{answer: false}
	g, _, called := newTestGate(t, Options{SkipPermissions: true}, p)

	result := g.Execute(context.Background(), inv("Bash", "command", "rm old.txt"))
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, p.asked)
	assert.True(t, *called)
	_ = result
}

func TestExecuteForceBypassesPrompt(t *testing.T) {
	p := &stubPrompter{answer: false}
	g, _, called := newTestGate(t, Options{Force: true}, p)

	g.Execute(context.Background(), inv("Bash", "command", "sudo rm -rf /tmp/x"))
	assert.False(t, p.asked)
	assert.True(t, *called)
}

func TestExecutePreHookVeto(t *testing.T) {
	hookDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(hookDir, "PreToolUse.sh"),
		[]byte("#!/bin/sh\necho vetoed\nexit 1\n"), 0755))

	r := tools.NewRegistry()
	called := false
	require.NoError(t, r.Register(tools.Registration{
		Name: "Echo",
		Handler: func(map[string]string) tools.Result {
			called = true
			return tools.Ok("")
		},
	}))
	g := New(r, hooks.NewRunner(hookDir, nil), nil, Options{}, nil)

	result := g.Execute(context.Background(), inv("Echo"))
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "vetoed", result.Stderr)
	assert.False(t, result.Ran)
	assert.False(t, called, "vetoed invocations must not reach the handler")
}

func TestExecutePostHookReceivesResult(t *testing.T) {
	hookDir := t.TempDir()
	sink := filepath.Join(hookDir, "sink.json")
	require.NoError(t, os.WriteFile(
		filepath.Join(hookDir, "PostToolUse.sh"),
		[]byte("#!/bin/sh\ncat > "+sink+"\n"), 0755))

	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Registration{
		Name: "Echo",
		Handler: func(params map[string]string) tools.Result {
			return tools.Ok("payload-text")
		},
	}))
	g := New(r, hooks.NewRunner(hookDir, nil), nil, Options{}, nil)

	result := g.Execute(context.Background(), inv("Echo"))
	assert.Equal(t, 0, result.ExitCode)

	data, err := os.ReadFile(sink)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tool":"Echo"`)
	assert.Contains(t, string(data), `"result":"payload-text"`)
}

func TestExecutePostHookSkippedWhenNotRun(t *testing.T) {
	hookDir := t.TempDir()
	sink := filepath.Join(hookDir, "sink.json")
	require.NoError(t, os.WriteFile(
		filepath.Join(hookDir, "PostToolUse.sh"),
		[]byte("#!/bin/sh\ncat > "+sink+"\n"), 0755))

	p := &stubPrompter{answer: false}
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Registration{
		Name: "Bash",
		Handler: func(map[string]string) tools.Result {
			return tools.Ok("")
		},
	}))
	g := New(r, hooks.NewRunner(hookDir, nil), p, Options{}, nil)

	g.Execute(context.Background(), inv("Bash", "command", "rm x"))
	_, err := os.Stat(sink)
	assert.True(t, os.IsNotExist(err), "post-hook must not fire for cancelled invocations")
}

func TestExecuteAllPreservesOrder(t *testing.T) {
	g, _, _ := newTestGate(t, Options{}, nil)

	results := g.ExecuteAll(context.Background(), []parser.Invocation{
		inv("Echo", "text", "one"),
		inv("Missing"),
		inv("Echo", "text", "two"),
	})
	require.Len(t, results, 3)
	assert.Equal(t, "one", results[0].Stdout)
	assert.Equal(t, "Unknown tool: Missing", results[1].Stderr)
	assert.Equal(t, "two", results[2].Stdout)
}
