// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	base := t.TempDir()
	m, err := NewManager(filepath.Join(base, "loops"), filepath.Join(base, "loop_logs"), nil)
	require.NoError(t, err)
	return m
}

func TestStateRoundTrip(t *testing.T) {
	m := newTestManager(t)
	s, err := m.NewState("loop_1_100", "refactor the parser", "TASK COMPLETE", 10)
	require.NoError(t, err)

	loaded, ok := m.Load("loop_1_100")
	require.True(t, ok)
	assert.Equal(t, s.Prompt, loaded.Prompt)
	assert.Equal(t, s.CompletionPromise, loaded.CompletionPromise)
	assert.Equal(t, 10, loaded.MaxIterations)
	assert.Zero(t, loaded.CurrentIteration)
	assert.False(t, loaded.Completed)
}

func TestLoadMissing(t *testing.T) {
	m := newTestManager(t)
	_, ok := m.Load("loop_missing")
	assert.False(t, ok)
}

func TestInterruptedSaveLeavesPreviousState(t *testing.T) {
	m := newTestManager(t)
	s, err := m.NewState("loop_8_100", "task", "DONE", 5)
	require.NoError(t, err)
	require.NoError(t, m.AddIteration(s, "first response", ""))

	// Simulate a crash mid-save: a temp file exists but was never renamed.
	stale := filepath.Join(m.stateDir, ".loop_8_100.json.tmp-123")
	require.NoError(t, os.WriteFile(stale, []byte(`{"loop_id":"loop_8_100","curr`), 0600))

	loaded, ok := m.Load("loop_8_100")
	require.True(t, ok)
	assert.Equal(t, 1, loaded.CurrentIteration)

	// Neither the stale temp file nor the lock sidecar counts as a loop.
	id, ok := m.ActiveLoop()
	require.True(t, ok)
	assert.Equal(t, "loop_8_100", id)
}

func TestAddIteration(t *testing.T) {
	m := newTestManager(t)
	s, err := m.NewState("loop_2_100", "task", "DONE", 5)
	require.NoError(t, err)

	require.NoError(t, m.AddIteration(s, "first response", "tool output"))
	require.NoError(t, m.AddIteration(s, "second response", ""))

	loaded, ok := m.Load("loop_2_100")
	require.True(t, ok)
	assert.Equal(t, 2, loaded.CurrentIteration)
	require.Len(t, loaded.Context, 2)
	assert.Contains(t, loaded.Context[0], "Iteration 0:")
	assert.Contains(t, loaded.Context[0], "Execution output:\ntool output")
	assert.Contains(t, loaded.Context[1], "second response")
	assert.NotContains(t, loaded.Context[1], "Execution output")
}

func TestCheckCompletionCaseInsensitive(t *testing.T) {
	s := &State{CompletionPromise: "Task Complete"}
	assert.False(t, s.CheckCompletion("still working on it"))
	assert.False(t, s.Completed)

	assert.True(t, s.CheckCompletion("All done. TASK COMPLETE."))
	assert.True(t, s.Completed)
	assert.Contains(t, s.CompletionReason, "Task Complete")
}

func TestCheckCompletionEscapesPromise(t *testing.T) {
	s := &State{CompletionPromise: "done (really)"}
	assert.False(t, s.CheckCompletion("done really"))
	assert.True(t, s.CheckCompletion("ok DONE (REALLY)"))
}

func TestContextStringWindow(t *testing.T) {
	s := &State{}
	for _, c := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
		s.Context = append(s.Context, c)
	}
	ctx := s.ContextString()
	assert.NotContains(t, ctx, "one")
	assert.NotContains(t, ctx, "two")
	assert.Equal(t, "three\n\nfour\n\nfive\n\nsix\n\nseven", ctx)
}

func TestBuildPromptFirstIteration(t *testing.T) {
	s := &State{Prompt: "refactor utils", CompletionPromise: "DONE"}
	p := s.BuildPrompt()
	assert.True(t, strings.HasPrefix(p, "refactor utils"))
	assert.Contains(t, p, "<tool name=\"LS\">")
	assert.Contains(t, p, "Output 'DONE' when complete.")
	assert.NotContains(t, p, "Previous iterations:")
}

func TestBuildPromptLaterIteration(t *testing.T) {
	s := &State{Prompt: "refactor utils", CompletionPromise: "DONE",
		CurrentIteration: 2, Context: []string{"Iteration 0:\nlooked around"}}
	p := s.BuildPrompt()
	assert.NotContains(t, p, "CRITICAL")
	assert.Contains(t, p, "Previous iterations:\nIteration 0:\nlooked around")
	assert.Contains(t, p, "Continue working on this task.")
}

func TestCleanupArchives(t *testing.T) {
	m := newTestManager(t)
	s, err := m.NewState("loop_3_100", "task", "DONE", 5)
	require.NoError(t, err)

	require.NoError(t, m.Cleanup(s))

	_, ok := m.Load("loop_3_100")
	assert.False(t, ok, "state file must be renamed away")
	_, statErr := os.Stat(filepath.Join(m.stateDir, "loop_3_100_completed.json"))
	assert.NoError(t, statErr)

	// Cleaning up again is a no-op.
	require.NoError(t, m.Cleanup(s))
}

func TestActiveLoopSkipsCompletedAndArchived(t *testing.T) {
	m := newTestManager(t)

	done, err := m.NewState("loop_10_1", "a", "DONE", 5)
	require.NoError(t, err)
	done.Completed = true
	require.NoError(t, m.Save(done))

	archived, err := m.NewState("loop_11_1", "b", "DONE", 5)
	require.NoError(t, err)
	require.NoError(t, m.Cleanup(archived))

	_, ok := m.ActiveLoop()
	assert.False(t, ok)

	_, err = m.NewState("loop_12_1", "c", "DONE", 5)
	require.NoError(t, err)
	id, ok := m.ActiveLoop()
	assert.True(t, ok)
	assert.Equal(t, "loop_12_1", id)
}

func TestCancel(t *testing.T) {
	m := newTestManager(t)
	_, err := m.NewState("loop_20_1", "task", "DONE", 5)
	require.NoError(t, err)

	assert.True(t, m.Cancel(""))

	loaded, ok := m.Load("loop_20_1")
	require.True(t, ok)
	assert.True(t, loaded.Completed)
	assert.Equal(t, "Cancelled by user", loaded.CompletionReason)

	assert.False(t, m.Cancel(""), "no active loop remains")
	assert.False(t, m.Cancel("loop_missing"))
}

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	assert.True(t, strings.HasPrefix(id, "loop_"))
	assert.NotEqual(t, id, "loop_")
}

func TestIterationLogAppended(t *testing.T) {
	m := newTestManager(t)
	s, err := m.NewState("loop_30_1", "task", "DONE", 5)
	require.NoError(t, err)
	require.NoError(t, m.AddIteration(s, "hello world", ""))

	data, err := os.ReadFile(filepath.Join(m.logDir, "loop_30_1.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
	assert.Contains(t, string(data), "Timestamp:")
}
