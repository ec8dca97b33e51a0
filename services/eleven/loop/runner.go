// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/seanebones-lang/Eleven-Term/pkg/logging"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/gate"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/llm"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/parser"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/session"
)

// historyWindow is how many recent conversation messages each
// iteration carries to the model.
const historyWindow = 10

// iterationDelay spaces API calls between iterations.
const defaultIterationDelay = 500 * time.Millisecond

// RunnerConfig carries the model parameters and output sink for a loop.
type RunnerConfig struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string

	// Output receives iteration banners and streamed model text.
	// Defaults to io.Discard.
	Output io.Writer

	// IterationDelay overrides the default spacing between iterations.
	IterationDelay time.Duration
}

// Runner executes a loop to completion: call the model, extract
// directives, run them through the gate, fold results back into the
// loop context, repeat.
type Runner struct {
	mgr    *Manager
	client llm.Client
	parser *parser.Parser
	gate   *gate.Gate
	cfg    RunnerConfig
	logger *logging.Logger
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(mgr *Manager, client llm.Client, p *parser.Parser, g *gate.Gate, cfg RunnerConfig, logger *logging.Logger) *Runner {
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.IterationDelay <= 0 {
		cfg.IterationDelay = defaultIterationDelay
	}
	return &Runner{mgr: mgr, client: client, parser: p, gate: g, cfg: cfg, logger: logger}
}

// Run drives the loop until the completion promise appears, the
// iteration budget is exhausted, or the context is cancelled.
//
// Outputs:
//   - A human-readable summary of how the loop ended.
//   - error: only on persistence failures; API errors and cancellation
//     end the loop but are reported through the summary and the
//     recorded completion reason.
func (r *Runner) Run(ctx context.Context, s *State, history []session.Message) (string, error) {
	for s.CurrentIteration < s.MaxIterations && !s.Completed {
		if err := ctx.Err(); err != nil {
			s.Completed = true
			s.CompletionReason = "Interrupted by user"
			if saveErr := r.mgr.Save(s); saveErr != nil {
				return "", saveErr
			}
			return fmt.Sprintf("Loop interrupted after %d iterations", s.CurrentIteration), nil
		}

		fullPrompt := s.BuildPrompt()
		messages := r.buildMessages(history, fullPrompt)

		fmt.Fprintf(r.cfg.Output, "\n%s\nIteration %d/%d\n%s\n\n",
			strings.Repeat("-", 60), s.CurrentIteration+1, s.MaxIterations, strings.Repeat("-", 60))

		response, err := r.client.Stream(ctx, llm.Request{
			Messages:    messages,
			Model:       r.cfg.Model,
			Temperature: r.cfg.Temperature,
			MaxTokens:   r.cfg.MaxTokens,
		}, func(chunk string) {
			fmt.Fprint(r.cfg.Output, chunk)
		})
		fmt.Fprintln(r.cfg.Output)
		if err != nil {
			if r.logger != nil {
				r.logger.Error("loop iteration API call failed", "loop_id", s.LoopID, "error", err)
			}
			if addErr := r.mgr.AddIteration(s, "Error: "+err.Error(), ""); addErr != nil {
				return "", addErr
			}
			s.Completed = true
			s.CompletionReason = "Error: " + err.Error()
			if saveErr := r.mgr.Save(s); saveErr != nil {
				return "", saveErr
			}
			return fmt.Sprintf("Loop error: %v", err), nil
		}

		if s.CheckCompletion(response) {
			if err := r.mgr.AddIteration(s, response, ""); err != nil {
				return "", err
			}
			fmt.Fprintf(r.cfg.Output, "\nCompletion promise %q found\n", s.CompletionPromise)
			return fmt.Sprintf("Loop completed after %d iterations: %s", s.CurrentIteration, s.CompletionReason), nil
		}

		executedOutput := r.executeDirectives(ctx, s, response)
		if err := r.mgr.AddIteration(s, response, executedOutput); err != nil {
			return "", err
		}

		history = append(history,
			session.Message{Role: session.RoleUser, Content: fullPrompt},
			session.Message{Role: session.RoleAssistant, Content: response},
		)

		select {
		case <-ctx.Done():
		case <-time.After(r.cfg.IterationDelay):
		}
	}

	if !s.Completed {
		s.Completed = true
		s.CompletionReason = fmt.Sprintf("Max iterations (%d) reached", s.MaxIterations)
		if err := r.mgr.Save(s); err != nil {
			return "", err
		}
		return fmt.Sprintf("Loop stopped after %d iterations (max reached). Partial output saved.", s.CurrentIteration), nil
	}
	return "Loop completed: " + s.CompletionReason, nil
}

// executeDirectives runs every directive in the response through the
// gate, in extraction order, and formats their outputs for the next
// iteration's context.
func (r *Runner) executeDirectives(ctx context.Context, s *State, response string) string {
	invs := r.parser.Extract(response)
	if len(invs) == 0 {
		return ""
	}

	var out strings.Builder
	for _, inv := range invs {
		result := r.gate.Execute(ctx, inv)
		if text := result.Output(); text != "" {
			fmt.Fprintf(&out, "\n[%s] Exit code: %d\n%s", inv.Name, result.ExitCode, text)
		}
		if inv.Name == "Write" || inv.Name == "Edit" {
			// A cancelled invocation reports exit 0 with Ran unset; only
			// handlers that actually ran can have touched the file.
			if path := inv.ParamMap()["path"]; path != "" && result.Ran && result.ExitCode == 0 {
				s.FilesModified = appendUnique(s.FilesModified, path)
			}
		}
	}
	return out.String()
}

func (r *Runner) buildMessages(history []session.Message, prompt string) []llm.Message {
	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	messages := make([]llm.Message, 0, len(recent)+2)
	if r.cfg.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: r.cfg.SystemPrompt})
	}
	for _, m := range recent {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// ErrLoopActive reports an attempt to start a loop while another is
// still running.
var ErrLoopActive = errors.New("another loop is already active")
