// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gate orchestrates one tool invocation end to end: risk
// classification, pre-hook veto, interactive consent, handler
// execution, and post-hook notification.
package gate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/seanebones-lang/Eleven-Term/pkg/logging"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/hooks"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/parser"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/safety"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/tools"
)

// ShellToolName is the tool whose command parameter gets risk-classified.
const ShellToolName = "Bash"

// Prompter obtains interactive consent for a risky invocation.
type Prompter interface {
	// Confirm asks the user whether the given tool may run. A false
	// return means the user declined or no interactive terminal is
	// available.
	Confirm(toolName, detail string, risk safety.RiskLevel) bool
}

// Options controls which consent checks the gate applies.
type Options struct {
	// SkipPermissions disables all consent prompts.
	SkipPermissions bool

	// Force disables consent prompts and lets dangerous shell
	// commands through to the handler.
	Force bool
}

// Gate runs invocations through the full safety pipeline.
//
// Thread Safety: Gate is immutable after construction; concurrent use
// is safe, though consent prompts serialize on the terminal.
type Gate struct {
	registry *tools.Registry
	hooks    *hooks.Runner
	prompter Prompter
	opts     Options
	logger   *logging.Logger
}

// New creates a Gate.
//
// Inputs:
//   - registry: the tool registry handling execution.
//   - hookRunner: runs PreToolUse/PostToolUse scripts; must not be nil.
//   - prompter: consent source; may be nil, in which case every
//     prompt-requiring invocation is declined.
//   - opts: consent bypass flags.
//   - logger: optional logger, may be nil.
func New(registry *tools.Registry, hookRunner *hooks.Runner, prompter Prompter, opts Options, logger *logging.Logger) *Gate {
	return &Gate{
		registry: registry,
		hooks:    hookRunner,
		prompter: prompter,
		opts:     opts,
		logger:   logger,
	}
}

// Execute runs one invocation through the gate.
//
// Description:
//
//	The pipeline is: registry lookup, risk classification (shell tool
//	only), pre-hook, consent, handler execution, post-hook. A pre-hook
//	failure is a hard veto. Consent denial is reported as a non-error
//	cancellation with exit code 0. The post-hook result never alters
//	the returned Result and only fires when the handler actually ran.
//
// Inputs:
//   - ctx: used for tracing only; the gate does not cancel an
//     in-flight handler.
//   - inv: the parsed invocation to run.
//
// Outputs:
//   - tools.Result describing the outcome; never a zero value.
func (g *Gate) Execute(ctx context.Context, inv parser.Invocation) tools.Result {
	ctx, span := startExecuteSpan(ctx, inv.Name)
	defer span.End()
	start := time.Now()

	// invocationID correlates the pre- and post-hook payloads for one
	// invocation across hook scripts.
	invocationID := uuid.NewString()
	params := inv.ParamMap()

	if _, ok := g.registry.Get(inv.Name); !ok {
		recordRejection(ctx, inv.Name, "unknown_tool")
		return tools.NotRun(1, "Unknown tool: "+inv.Name)
	}

	risk := safety.RiskSafe
	if inv.Name == ShellToolName {
		risk = safety.Classify(params["command"])
	}

	if ok, hookOut := g.hooks.Run(hooks.PreToolUse, map[string]any{
		"invocation_id": invocationID,
		"tool":          inv.Name,
		"params":        params,
	}); !ok {
		if g.logger != nil {
			g.logger.Warn("pre-hook vetoed invocation", "tool", inv.Name, "output", hookOut)
		}
		recordRejection(ctx, inv.Name, "pre_hook")
		return tools.NotRun(1, hookOut)
	}

	if g.requiresConsent(risk) && !g.confirm(inv.Name, params, risk) {
		recordRejection(ctx, inv.Name, "consent_denied")
		return tools.NotRun(0, "Cancelled by user")
	}

	result := g.registry.Execute(inv.Name, params)
	recordExecuteMetrics(ctx, inv.Name, time.Since(start), result.ExitCode)

	if result.Ran {
		// Post-hook outcome is telemetry only; it never changes the result.
		g.hooks.Run(hooks.PostToolUse, map[string]any{
			"invocation_id": invocationID,
			"tool":          inv.Name,
			"result":        result.Output(),
		})
	}
	return result
}

// ExecuteAll runs invocations strictly in order, collecting results.
func (g *Gate) ExecuteAll(ctx context.Context, invs []parser.Invocation) []tools.Result {
	results := make([]tools.Result, 0, len(invs))
	for _, inv := range invs {
		results = append(results, g.Execute(ctx, inv))
	}
	return results
}

func (g *Gate) requiresConsent(risk safety.RiskLevel) bool {
	if g.opts.SkipPermissions || g.opts.Force {
		return false
	}
	return risk != safety.RiskSafe
}

func (g *Gate) confirm(toolName string, params map[string]string, risk safety.RiskLevel) bool {
	if g.prompter == nil {
		return false
	}
	detail := params["command"]
	if detail == "" {
		detail = params["path"]
	}
	return g.prompter.Confirm(toolName, detail, risk)
}
