// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chat is the conversation driver: it forwards user queries to
// the completion API, routes directives from the response through the
// execution gate, and persists the conversation between sessions.
package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/seanebones-lang/Eleven-Term/pkg/logging"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/config"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/gate"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/llm"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/parser"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/safety"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/session"
)

// HistoryCompactThreshold is the message count past which the driver
// asks the model to summarize older conversation turns.
const HistoryCompactThreshold = 30

// compactKeepRecent is how many recent messages survive when
// compaction through the API fails.
const compactKeepRecent = 19

const compactPrompt = "Summarize the following conversation history concisely, " +
	"preserving decisions made, files touched, and any unfinished work. " +
	"Reply with the summary only.\n\n%s"

// Driver runs interactive sessions and one-shot queries.
//
// Thread Safety: a Driver serves one terminal; it is not safe for
// concurrent use.
type Driver struct {
	client llm.Client
	parser *parser.Parser
	gate   *gate.Gate
	store  *session.Store
	cfg    config.Config
	logger *logging.Logger

	// In and Out default to os.Stdin/os.Stdout; tests substitute
	// buffers.
	In  io.Reader
	Out io.Writer
}

// NewDriver wires a Driver from its collaborators.
func NewDriver(client llm.Client, p *parser.Parser, g *gate.Gate, store *session.Store, cfg config.Config, logger *logging.Logger) *Driver {
	return &Driver{
		client: client,
		parser: p,
		gate:   g,
		store:  store,
		cfg:    cfg,
		logger: logger,
		In:     os.Stdin,
		Out:    os.Stdout,
	}
}

// Run drives the interactive session until "exit", EOF, or context
// cancellation. History is loaded at start and saved after every turn
// so a crash loses at most the in-flight exchange.
func (d *Driver) Run(ctx context.Context) error {
	history := d.initializeHistory(ctx)

	fmt.Fprintln(d.Out, assistantStyle.Render("eleven session started.")+" Type queries; /help for commands; 'exit' to quit.")

	scanner := bufio.NewScanner(d.In)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		if err := ctx.Err(); err != nil {
			break
		}
		fmt.Fprint(d.Out, promptStyle.Render("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(d.Out)
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			break
		}
		if d.handleSlash(ctx, input, &history) {
			continue
		}

		history = append(history, session.Message{Role: session.RoleUser, Content: input})
		history = d.refreshSystemPrompt(history)

		fmt.Fprint(d.Out, assistantStyle.Render("eleven: "))
		response, err := d.client.Stream(ctx, d.request(history), func(chunk string) {
			fmt.Fprint(d.Out, chunk)
		})
		fmt.Fprintln(d.Out)
		if err != nil {
			if errors.Is(err, llm.ErrNetworkUnavailable) {
				fmt.Fprintln(d.Out, noticeStyle.Render(OfflineSuggestions(input)))
			} else {
				fmt.Fprintln(d.Out, errorStyle.Render("API error: "+err.Error()))
			}
			// Drop the unanswered user turn so history stays paired.
			history = history[:len(history)-1]
			continue
		}

		history = append(history, session.Message{Role: session.RoleAssistant, Content: response})
		d.executeDirectives(ctx, response)
		history = d.compactIfNeeded(ctx, history)

		if strings.Contains(strings.ToLower(input), "todo") {
			if err := d.store.AddTodo(input); err != nil && d.logger != nil {
				d.logger.Warn("todo not saved", "error", err)
			}
		}
		if err := d.store.SaveHistory(history); err != nil && d.logger != nil {
			d.logger.Warn("history not saved", "error", err)
		}
	}

	if err := d.store.SaveHistory(history); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintln(d.Out, assistantStyle.Render("Session ended."))
	return nil
}

// Ask answers a single query and prints suggested shell commands from
// the response, each annotated with its risk classification. When the
// API is unreachable it degrades to local offline suggestions.
func (d *Driver) Ask(ctx context.Context, query string) error {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: d.systemPrompt()},
		{Role: llm.RoleUser, Content: query},
	}
	response, err := d.client.Complete(ctx, llm.Request{
		Messages:    messages,
		Model:       d.cfg.Model,
		Temperature: d.cfg.Temperature,
		MaxTokens:   d.cfg.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, llm.ErrNetworkUnavailable) {
			response = OfflineSuggestions(query)
			fmt.Fprintln(d.Out, noticeStyle.Render(response))
		} else {
			return err
		}
	} else {
		fmt.Fprint(d.Out, renderMarkdown(response))
		fmt.Fprintln(d.Out)
	}

	commands := ExtractCommands(response)
	if len(commands) == 0 {
		return nil
	}
	fmt.Fprintln(d.Out, "\nSuggested commands:")
	for _, cmd := range commands {
		fmt.Fprintf(d.Out, "  %s %s\n", riskLabel(safety.Classify(cmd)), cmd)
	}
	return nil
}

// handleSlash processes /help, /init, /clear, and /hooks. Returns true
// when the input was a slash command, handled or not.
func (d *Driver) handleSlash(ctx context.Context, input string, history *[]session.Message) bool {
	if !strings.HasPrefix(input, "/") {
		return false
	}
	switch input {
	case "/help":
		fmt.Fprintln(d.Out, "Commands:")
		fmt.Fprintln(d.Out, "  /init  - Generate ELEVEN.md with project instructions/tools")
		fmt.Fprintln(d.Out, "  /clear - Reset conversation history")
		fmt.Fprintln(d.Out, "  /hooks - Show the hooks directory")
	case "/init":
		content, err := d.client.Complete(ctx, llm.Request{
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: "Generate ELEVEN.md with project instructions/tools."}},
			Model:       d.cfg.Model,
			Temperature: d.cfg.Temperature,
			MaxTokens:   d.cfg.MaxTokens,
		})
		if err != nil {
			fmt.Fprintln(d.Out, errorStyle.Render("Failed to generate ELEVEN.md: "+err.Error()))
			return true
		}
		if err := os.WriteFile("ELEVEN.md", []byte(content), 0644); err != nil {
			fmt.Fprintln(d.Out, errorStyle.Render("Failed to write ELEVEN.md: "+err.Error()))
			return true
		}
		fmt.Fprintln(d.Out, "ELEVEN.md generated.")
	case "/clear":
		*history = []session.Message{{Role: session.RoleSystem, Content: d.systemPrompt()}}
		fmt.Fprintln(d.Out, "History cleared.")
	case "/hooks":
		fmt.Fprintf(d.Out, "Hooks directory: %s\n", d.cfg.HooksDir)
		fmt.Fprintln(d.Out, "Create PreToolUse.* and PostToolUse.* scripts in this directory")
	default:
		fmt.Fprintln(d.Out, noticeStyle.Render("Unknown command. /help for commands."))
	}
	return true
}

// executeDirectives runs every directive from the response through the
// gate, printing each result.
func (d *Driver) executeDirectives(ctx context.Context, response string) {
	for _, inv := range d.parser.Extract(response) {
		result := d.gate.Execute(ctx, inv)
		text := result.Output()
		if text == "" {
			continue
		}
		if result.ExitCode == 0 {
			fmt.Fprintln(d.Out, toolStyle.Render(fmt.Sprintf("Tool %s result: %s", inv.Name, text)))
		} else {
			fmt.Fprintln(d.Out, errorStyle.Render(fmt.Sprintf("Tool %s error: %s", inv.Name, text)))
		}
	}
}

// compactIfNeeded summarizes old history through the API once the
// conversation grows past the threshold. On failure it keeps the
// system message plus the most recent turns.
func (d *Driver) compactIfNeeded(ctx context.Context, history []session.Message) []session.Message {
	if len(history) <= HistoryCompactThreshold {
		return history
	}

	encoded, err := json.Marshal(history[1:])
	if err == nil {
		summary, compactErr := d.client.Complete(ctx, llm.Request{
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(compactPrompt, encoded)}},
			Model:       d.cfg.Model,
			Temperature: d.cfg.Temperature,
			MaxTokens:   1024,
		})
		if compactErr == nil && summary != "" {
			return []session.Message{
				history[0],
				{Role: session.RoleAssistant, Content: summary},
			}
		}
	}

	if d.logger != nil {
		d.logger.Warn("history compaction failed, truncating instead")
	}
	kept := history[len(history)-compactKeepRecent:]
	return append([]session.Message{history[0]}, kept...)
}

// initializeHistory loads the persisted conversation and ensures it
// starts with a fresh system prompt.
func (d *Driver) initializeHistory(ctx context.Context) []session.Message {
	history := d.store.LoadHistory()
	system := session.Message{Role: session.RoleSystem, Content: d.systemPrompt()}
	if len(history) == 0 {
		return []session.Message{system}
	}
	return d.refreshSystemPrompt(append([]session.Message{system}, history...))
}

// refreshSystemPrompt keeps exactly one system message, first, with
// current environment context.
func (d *Driver) refreshSystemPrompt(history []session.Message) []session.Message {
	prompt := d.systemPrompt()
	out := make([]session.Message, 0, len(history)+1)
	out = append(out, session.Message{Role: session.RoleSystem, Content: prompt})
	for _, m := range history {
		if m.Role != session.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

func (d *Driver) request(history []session.Message) llm.Request {
	messages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return llm.Request{
		Messages:    messages,
		Model:       d.cfg.Model,
		Temperature: d.cfg.Temperature,
		MaxTokens:   d.cfg.MaxTokens,
	}
}

func (d *Driver) systemPrompt() string {
	return SessionSystemPrompt()
}

// SessionSystemPrompt assembles the session system prompt from the
// current working directory, git status, and directory listing. Loop
// runs share it so iterations see the same tool instructions as the
// interactive session.
func SessionSystemPrompt() string {
	cwd, gitStatus, listing := envContext()
	var b strings.Builder
	b.WriteString("You are eleven, a terminal coding assistant. ")
	b.WriteString("To act on the user's machine, emit tool directives in XML format:\n")
	b.WriteString("<tool name=\"Bash\"><param name=\"command\">ls -la</param></tool>\n")
	b.WriteString("Available tools: LS, View, Edit, Write, Bash, Grep, Glob.\n\n")
	b.WriteString("Current directory: " + cwd + "\n")
	if gitStatus != "" {
		b.WriteString("Git status:\n" + gitStatus + "\n")
	}
	if listing != "" {
		b.WriteString("Directory contents:\n" + listing + "\n")
	}
	return b.String()
}

// envContext gathers working-directory context. Everything here is
// best-effort; missing git or an unreadable directory just means less
// context for the model.
func envContext() (cwd, gitStatus, listing string) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	if out, err := exec.Command("git", "status", "--short").Output(); err == nil {
		gitStatus = strings.TrimSpace(string(out))
		if len(gitStatus) > 2000 {
			gitStatus = gitStatus[:2000] + "\n..."
		}
	}

	entries, err := os.ReadDir(cwd)
	if err != nil {
		return cwd, gitStatus, ""
	}
	var names []string
	for i, e := range entries {
		if i >= 50 {
			names = append(names, "...")
			break
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return cwd, gitStatus, strings.Join(names, "\n")
}
