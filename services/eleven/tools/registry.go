// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry manages tool registration and lookup.
//
// Names are unique: registering under an existing name replaces the
// previous registration silently. This is a design choice, not a bug —
// it lets plugins shadow built-ins deliberately.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called
//	concurrently, although the conversation loop itself is
//	single-threaded and treats the registry as read-mostly after
//	startup.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Registration
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Registration),
	}
}

// Register adds a tool to the registry.
//
// Description:
//
//	Registers the tool under reg.Name. An existing registration with
//	the same name is replaced silently (last registration wins).
//
// Outputs:
//
//	error - ErrInvalidHandler if the handler is nil, ErrInvalidName if
//	        the name is empty.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return ErrInvalidName
	}
	if reg.Handler == nil {
		return fmt.Errorf("%w: %s", ErrInvalidHandler, reg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[reg.Name] = reg
	return nil
}

// Unregister removes a tool by name.
//
// Outputs:
//
//	bool - True if a registration was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; !ok {
		return false
	}
	delete(r.byName, name)
	return true
}

// Get returns a tool registration by name.
//
// Outputs:
//
//	Registration - The registered tool (zero value if not found).
//	bool - True if the tool was found.
func (r *Registry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.byName[name]
	return reg, ok
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListByOrigin returns registrations from the given origin, sorted by
// name.
func (r *Registry) ListByOrigin(origin Origin) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var regs []Registration
	for _, reg := range r.byName {
		if reg.Origin == origin {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Name < regs[j].Name })
	return regs
}

// Execute runs a registered tool by name.
//
// Description:
//
//	Looks up the handler and invokes it. An unregistered name or a
//	panicking handler produces a failed Result, never an error or a
//	propagated panic — a single bad tool must not crash the session.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Execute(name string, params map[string]string) (result Result) {
	reg, ok := r.Get(name)
	if !ok {
		return NotRun(1, fmt.Sprintf("Unknown tool: %s", name))
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool handler panicked", "tool", name, "panic", rec)
			result = Fail(fmt.Sprintf("tool %s panicked: %v", name, rec))
		}
	}()

	return reg.Handler(params)
}
