// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session persists conversation history and todo items to the
// filesystem, crash-safely.
//
// Every write goes through an atomic replace (temp file plus rename in
// the same directory) guarded by an advisory file lock, so a reader
// never observes a half-written file: after a crash mid-write the next
// load returns either the previous complete state or the empty state.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/seanebones-lang/Eleven-Term/pkg/logging"
)

// Message roles accepted on load; entries with any other role are dropped.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// HistoryLimit caps how many messages the history file retains. Saving
// more keeps only the most recent HistoryLimit entries.
const HistoryLimit = 40

const (
	historyFile = "history.json"
	todosFile   = "todos.json"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store reads and writes session state under a single directory.
//
// Thread Safety: safe for concurrent use across processes via advisory
// file locks. Within one process, callers serialize through the
// single-threaded driver loop.
type Store struct {
	dir    string
	logger *logging.Logger
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string, logger *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("session directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the directory the store persists into.
func (s *Store) Dir() string {
	return s.dir
}

// LoadHistory reads the conversation history.
//
// Description:
//
//	A missing, corrupt, or non-array history file yields an empty
//	slice, never an error: losing history is recoverable, crashing the
//	session over it is not. Entries with unknown roles are dropped.
func (s *Store) LoadHistory() []Message {
	path := filepath.Join(s.dir, historyFile)
	data, err := readFileLocked(path)
	if err != nil {
		return nil
	}

	var raw []Message
	if err := json.Unmarshal(data, &raw); err != nil {
		if s.logger != nil {
			s.logger.Warn("history file unreadable, starting fresh", "path", path, "error", err)
		}
		return nil
	}

	history := make([]Message, 0, len(raw))
	for _, m := range raw {
		if !validRole(m.Role) {
			if s.logger != nil {
				s.logger.Warn("dropping history entry with unknown role", "role", m.Role)
			}
			continue
		}
		history = append(history, m)
	}
	return history
}

// SaveHistory writes the conversation history, keeping only the most
// recent HistoryLimit messages, in original order.
func (s *Store) SaveHistory(history []Message) error {
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return WriteFileAtomic(filepath.Join(s.dir, historyFile), data)
}

// LoadTodos reads the todo map. Missing or corrupt files yield an
// empty map, mirroring LoadHistory.
func (s *Store) LoadTodos() map[string]string {
	path := filepath.Join(s.dir, todosFile)
	data, err := readFileLocked(path)
	if err != nil {
		return map[string]string{}
	}
	var todos map[string]string
	if err := json.Unmarshal(data, &todos); err != nil || todos == nil {
		if s.logger != nil && err != nil {
			s.logger.Warn("todos file unreadable, starting fresh", "path", path, "error", err)
		}
		return map[string]string{}
	}
	return todos
}

// SaveTodos writes the todo map.
func (s *Store) SaveTodos(todos map[string]string) error {
	data, err := json.MarshalIndent(todos, "", "  ")
	if err != nil {
		return fmt.Errorf("encode todos: %w", err)
	}
	return WriteFileAtomic(filepath.Join(s.dir, todosFile), data)
}

// AddTodo records a new todo item keyed by a creation timestamp and
// persists the updated map.
func (s *Store) AddTodo(text string) error {
	todos := s.LoadTodos()
	todos[time.Now().Format("2006-01-02 15:04:05")] = text
	return s.SaveTodos(todos)
}

// ListTodos returns todo entries as "timestamp: text" lines sorted by
// timestamp.
func (s *Store) ListTodos() []string {
	todos := s.LoadTodos()
	keys := make([]string, 0, len(todos))
	for k := range todos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+todos[k])
	}
	return lines
}

func validRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
