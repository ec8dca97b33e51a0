// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package loop drives multi-iteration, self-directed task execution:
// the assistant keeps working on one prompt until a completion phrase
// appears in its output or the iteration budget runs out. State is
// persisted per loop so an interrupted loop can be inspected, resumed,
// or cancelled.
package loop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/seanebones-lang/Eleven-Term/pkg/logging"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/session"
)

// DefaultMaxIterations bounds a loop that never emits its promise.
const DefaultMaxIterations = 20

// contextWindow is how many recent iterations feed the next prompt.
const contextWindow = 5

// firstIterationInstructions teaches the model the directive grammar.
// Only injected on iteration zero; later iterations carry it forward
// through accumulated context.
const firstIterationInstructions = "\n\nCRITICAL: You MUST use tools in XML format to interact with files:\n\n" +
	"<tool name=\"LS\"><param name=\"path\">.</param></tool>\n" +
	"<tool name=\"View\"><param name=\"path\">filename.py</param></tool>\n" +
	"<tool name=\"Bash\"><param name=\"command\">ls -la</param></tool>\n\n" +
	"If you cannot use XML format, describe tools clearly like:\n" +
	"- \"Tool: LS\" or \"Use LS tool to list files\"\n" +
	"- \"Tool: View file=main.py\" or \"Read the file main.py\"\n" +
	"- \"Tool: Bash command='python test.py'\" or \"Run: python test.py\"\n\n" +
	"Start by listing files, then read and refactor them."

// State is the persisted record of one loop.
type State struct {
	LoopID            string   `json:"loop_id"`
	Prompt            string   `json:"prompt"`
	CompletionPromise string   `json:"completion_promise"`
	MaxIterations     int      `json:"max_iterations"`
	CurrentIteration  int      `json:"current_iteration"`
	Context           []string `json:"context"`
	FilesModified     []string `json:"files_modified"`
	GitCommits        []string `json:"git_commits"`
	StartTime         string   `json:"start_time"`
	Completed         bool     `json:"completed"`
	CompletionReason  string   `json:"completion_reason"`
}

// CheckCompletion marks the loop complete when the response contains
// its completion promise, matched case-insensitively.
func (s *State) CheckCompletion(response string) bool {
	if s.CompletionPromise == "" {
		return false
	}
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(s.CompletionPromise))
	if !pattern.MatchString(response) {
		return false
	}
	s.Completed = true
	s.CompletionReason = "Found completion promise: " + s.CompletionPromise
	return true
}

// ContextString joins the most recent iterations for prompt building,
// windowed to keep the prompt bounded.
func (s *State) ContextString() string {
	recent := s.Context
	if len(recent) > contextWindow {
		recent = recent[len(recent)-contextWindow:]
	}
	return strings.Join(recent, "\n\n")
}

// BuildPrompt assembles the full prompt for the next iteration: the
// base task, directive instructions on the first iteration, prior
// iteration context, and the completion-promise reminder.
func (s *State) BuildPrompt() string {
	var b strings.Builder
	b.WriteString(s.Prompt)
	if s.CurrentIteration == 0 {
		b.WriteString(firstIterationInstructions)
	}
	if ctx := s.ContextString(); ctx != "" {
		b.WriteString("\n\nPrevious iterations:\n")
		b.WriteString(ctx)
		b.WriteString("\n\nContinue working on this task. Output '")
		b.WriteString(s.CompletionPromise)
		b.WriteString("' when complete.")
	} else {
		b.WriteString("\n\nOutput '")
		b.WriteString(s.CompletionPromise)
		b.WriteString("' when complete.")
	}
	return b.String()
}

// Manager persists loop state and iteration logs under two sibling
// directories.
//
// Thread Safety: one Manager per process; loop files are read and
// written serially by a single driver. Nothing guards two processes
// driving the same loop id.
type Manager struct {
	stateDir string
	logDir   string
	logger   *logging.Logger
}

// NewManager creates a Manager, creating both directories if needed.
func NewManager(stateDir, logDir string, logger *logging.Logger) (*Manager, error) {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("loop state directory: %w", err)
	}
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("loop log directory: %w", err)
	}
	return &Manager{stateDir: stateDir, logDir: logDir, logger: logger}, nil
}

// NewState constructs a fresh loop and persists it.
func (m *Manager) NewState(loopID, prompt, promise string, maxIterations int) (*State, error) {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	s := &State{
		LoopID:            loopID,
		Prompt:            prompt,
		CompletionPromise: promise,
		MaxIterations:     maxIterations,
		StartTime:         time.Now().Format(time.RFC3339),
		Context:           []string{},
		FilesModified:     []string{},
		GitCommits:        []string{},
	}
	if err := m.Save(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the loop state file, mode 0600. The write goes through
// the same temp-file+rename path as the session store so a crash
// mid-save never destroys the previous state.
func (m *Manager) Save(s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode loop state: %w", err)
	}
	if err := session.WriteFileAtomic(m.statePath(s.LoopID), data); err != nil {
		return fmt.Errorf("save loop state: %w", err)
	}
	return nil
}

// Load reads a loop state by id. A missing or unreadable file returns
// (nil, false).
func (m *Manager) Load(loopID string) (*State, bool) {
	data, err := os.ReadFile(m.statePath(loopID))
	if err != nil {
		return nil, false
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		if m.logger != nil {
			m.logger.Warn("loop state unreadable", "loop_id", loopID, "error", err)
		}
		return nil, false
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	return &s, true
}

// AddIteration appends one iteration's model response and tool output
// to the loop context, advances the counter, persists the state, and
// appends to the human-readable iteration log.
func (m *Manager) AddIteration(s *State, response, executedOutput string) error {
	entry := fmt.Sprintf("Iteration %d:\n%s", s.CurrentIteration, response)
	if executedOutput != "" {
		entry += "\nExecution output:\n" + executedOutput
	}
	s.Context = append(s.Context, entry)
	s.CurrentIteration++
	if err := m.Save(s); err != nil {
		return err
	}
	m.logIteration(s.LoopID, entry)
	return nil
}

// Cleanup archives a loop's state file by renaming it with a
// _completed suffix. Archiving instead of deleting keeps the record
// for post-mortem inspection.
func (m *Manager) Cleanup(s *State) error {
	path := m.statePath(s.LoopID)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	archived := strings.TrimSuffix(path, ".json") + "_completed.json"
	if err := os.Rename(path, archived); err != nil {
		return fmt.Errorf("archive loop state: %w", err)
	}
	return nil
}

// ActiveLoop returns the id of the first non-completed loop on disk.
func (m *Manager) ActiveLoop() (string, bool) {
	matches, err := filepath.Glob(filepath.Join(m.stateDir, "loop_*.json"))
	if err != nil {
		return "", false
	}
	for _, path := range matches {
		if strings.HasSuffix(path, "_completed.json") {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var s State
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		if !s.Completed {
			return s.LoopID, true
		}
	}
	return "", false
}

// Cancel marks a loop as completed with a cancellation reason. An
// empty loopID cancels the active loop, if any.
func (m *Manager) Cancel(loopID string) bool {
	if loopID == "" {
		var ok bool
		loopID, ok = m.ActiveLoop()
		if !ok {
			return false
		}
	}
	s, ok := m.Load(loopID)
	if !ok {
		return false
	}
	s.Completed = true
	s.CompletionReason = "Cancelled by user"
	if err := m.Save(s); err != nil {
		return false
	}
	return true
}

func (m *Manager) statePath(loopID string) string {
	return filepath.Join(m.stateDir, loopID+".json")
}

func (m *Manager) logIteration(loopID, entry string) {
	path := filepath.Join(m.logDir, loopID+".txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("loop log unwritable", "loop_id", loopID, "error", err)
		}
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "\n%s\nTimestamp: %s\n%s\n", strings.Repeat("=", 60), time.Now().Format(time.RFC3339), entry)
}

// GenerateID returns a unique loop id derived from wall clock and pid.
func GenerateID() string {
	return fmt.Sprintf("loop_%d_%d", time.Now().Unix(), os.Getpid())
}
