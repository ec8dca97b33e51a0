// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package parser extracts tool invocations from model output text.
//
// Two independent strategies are tried in order. The structured tag
// grammar is the primary interface:
//
//	<tool name="Bash"><param name="command">ls -la</param></tool>
//
// When the structured scan finds nothing, a best-effort natural
// language fallback (see natural.go) is consulted. The fallback is
// lossy by design and exists only as a safety net for models that
// ignore formatting instructions; it never runs when the structured
// grammar matched.
//
// Grammar limitations: parameter values may span multiple lines, but
// there is no escaping scheme, so a literal </param> or </tool> inside
// a value terminates it at the first closing tag. Duplicate parameter
// names within one tool tag resolve last-wins in ParamMap.
//
// Thread Safety:
//
//	Parser is safe for concurrent use.
package parser

import (
	"regexp"
	"sort"
	"strings"
)

// Param is a single named parameter in document order.
type Param struct {
	Name  string
	Value string
}

// Invocation is a parsed request to run one tool. Tool and parameter
// names are opaque at parse time; validation happens at the execution
// gate.
type Invocation struct {
	// Name is the tool name exactly as it appeared in the text.
	Name string

	// Params preserves document order, including duplicate names.
	Params []Param
}

// ParamMap flattens the ordered parameter list into a map.
// Duplicate names resolve last-wins.
func (inv Invocation) ParamMap() map[string]string {
	m := make(map[string]string, len(inv.Params))
	for _, p := range inv.Params {
		m[p.Name] = p.Value
	}
	return m
}

// Parser extracts tool invocations from LLM output text.
type Parser struct {
	// fallback runs only when the structured scan yields nothing.
	fallback func(string) []Invocation
}

// New creates a parser with the natural language fallback enabled.
func New() *Parser {
	return &Parser{fallback: FromNaturalLanguage}
}

// NewStrict creates a parser without the natural language fallback.
// Useful when the caller wants only grammar-conformant directives.
func NewStrict() *Parser {
	return &Parser{}
}

// Structured tag grammar. Values may span lines, hence (?s).
var (
	toolTagRegex  = regexp.MustCompile(`(?s)<tool\s+name="([^"]+)"\s*>(.*?)</tool>`)
	paramTagRegex = regexp.MustCompile(`(?s)<param\s+name="([^"]+)"\s*>(.*?)</param>`)
)

// Extract returns the tool invocations found in text, in document
// order, deduplicated by (tool name, parameter name set) keeping the
// first occurrence.
//
// The structured grammar is scanned first; the fallback is consulted
// only when the structured scan yields an empty sequence.
func (p *Parser) Extract(text string) []Invocation {
	if text == "" {
		return nil
	}

	invocations := ExtractStructured(text)
	if len(invocations) == 0 && p.fallback != nil {
		invocations = p.fallback(text)
	}

	return Dedup(invocations)
}

// ExtractStructured scans text for the structured tag grammar.
//
// Outputs:
//
//	[]Invocation - Outer tags in document order; within each, inner
//	               param tags in document order. No name validation.
func ExtractStructured(text string) []Invocation {
	matches := toolTagRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	invocations := make([]Invocation, 0, len(matches))
	for _, match := range matches {
		name := strings.TrimSpace(match[1])
		body := match[2]

		var params []Param
		for _, pm := range paramTagRegex.FindAllStringSubmatch(body, -1) {
			params = append(params, Param{
				Name:  strings.TrimSpace(pm[1]),
				Value: strings.TrimSpace(pm[2]),
			})
		}

		invocations = append(invocations, Invocation{Name: name, Params: params})
	}

	return invocations
}

// Render encodes an invocation in the structured grammar. It is the
// inverse of ExtractStructured for values that do not contain closing
// tags, and is what the system prompt shows the model.
func Render(inv Invocation) string {
	var b strings.Builder
	b.WriteString(`<tool name="`)
	b.WriteString(inv.Name)
	b.WriteString(`">`)
	for _, p := range inv.Params {
		b.WriteString(`<param name="`)
		b.WriteString(p.Name)
		b.WriteString(`">`)
		b.WriteString(p.Value)
		b.WriteString(`</param>`)
	}
	b.WriteString(`</tool>`)
	return b.String()
}

// Dedup collapses invocations sharing a (tool name, sorted parameter
// name set) key, keeping the first occurrence. Running it twice over
// the same input is a no-op.
func Dedup(invocations []Invocation) []Invocation {
	if len(invocations) < 2 {
		return invocations
	}

	seen := make(map[string]bool, len(invocations))
	unique := make([]Invocation, 0, len(invocations))

	for _, inv := range invocations {
		names := make([]string, 0, len(inv.Params))
		for _, p := range inv.Params {
			names = append(names, p.Name)
		}
		sort.Strings(names)
		key := inv.Name + "\x00" + strings.Join(names, "\x00")

		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, inv)
	}

	return unique
}
