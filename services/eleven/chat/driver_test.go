// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanebones-lang/Eleven-Term/services/eleven/config"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/gate"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/hooks"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/llm"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/parser"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/session"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/tools"
)

type driverFixture struct {
	driver   *Driver
	store    *session.Store
	out      *bytes.Buffer
	executed *[]string
}

func newDriverFixture(t *testing.T, client llm.Client, input string) *driverFixture {
	t.Helper()

	store, err := session.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	executed := []string{}
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Registration{
		Name: "LS",
		Handler: func(params map[string]string) tools.Result {
			executed = append(executed, "LS "+params["path"])
			return tools.Ok("main.go")
		},
	}))

	g := gate.New(r, hooks.NewRunner(filepath.Join(t.TempDir(), "no-hooks"), nil), nil,
		gate.Options{SkipPermissions: true}, nil)

	cfg := config.Default()
	cfg.HooksDir = "/tmp/eleven-hooks"

	d := NewDriver(client, parser.New(), g, store, cfg, nil)
	out := &bytes.Buffer{}
	d.In = strings.NewReader(input)
	d.Out = out
	return &driverFixture{driver: d, store: store, out: out, executed: &executed}
}

func TestRunPlainExchange(t *testing.T) {
	client := &llm.MockClient{Responses: []string{"Hello! Nothing to run."}}
	f := newDriverFixture(t, client, "hi there\nexit\n")

	require.NoError(t, f.driver.Run(context.Background()))

	out := f.out.String()
	assert.Contains(t, out, "Hello! Nothing to run.")
	assert.Contains(t, out, "Session ended.")

	history := f.store.LoadHistory()
	require.Len(t, history, 3)
	assert.Equal(t, session.RoleSystem, history[0].Role)
	assert.Equal(t, "hi there", history[1].Content)
	assert.Equal(t, "Hello! Nothing to run.", history[2].Content)
}

func TestRunExecutesDirectives(t *testing.T) {
	client := &llm.MockClient{Responses: []string{
		`Let me look around. <tool name="LS"><param name="path">.</param></tool>`,
	}}
	f := newDriverFixture(t, client, "list the project\nexit\n")

	require.NoError(t, f.driver.Run(context.Background()))
	assert.Equal(t, []string{"LS ."}, *f.executed)
	assert.Contains(t, f.out.String(), "Tool LS result: main.go")
}

func TestRunOfflineFallback(t *testing.T) {
	client := &llm.MockClient{Err: llm.ErrNetworkUnavailable}
	f := newDriverFixture(t, client, "list my files\nexit\n")

	require.NoError(t, f.driver.Run(context.Background()))
	assert.Contains(t, f.out.String(), "Offline - Unable to connect to API.")
	assert.Contains(t, f.out.String(), "Try: ls -la")

	// The unanswered user turn is not persisted.
	for _, m := range f.store.LoadHistory() {
		assert.NotEqual(t, "list my files", m.Content)
	}
}

func TestRunRecordsTodos(t *testing.T) {
	client := &llm.MockClient{Responses: []string{"Noted."}}
	f := newDriverFixture(t, client, "todo: tighten the grep tool\nexit\n")

	require.NoError(t, f.driver.Run(context.Background()))

	todos := f.store.ListTodos()
	require.Len(t, todos, 1)
	assert.Contains(t, todos[0], "tighten the grep tool")
}

func TestSlashHelpAndHooks(t *testing.T) {
	client := &llm.MockClient{Responses: []string{"unused"}}
	f := newDriverFixture(t, client, "/help\n/hooks\n/bogus\nexit\n")

	require.NoError(t, f.driver.Run(context.Background()))
	out := f.out.String()
	assert.Contains(t, out, "/clear - Reset conversation history")
	assert.Contains(t, out, "Hooks directory: /tmp/eleven-hooks")
	assert.Contains(t, out, "Unknown command.")
	assert.Empty(t, client.Calls(), "slash commands must not hit the API")
}

func TestSlashClearResetsHistory(t *testing.T) {
	client := &llm.MockClient{Responses: []string{"first answer", "second answer"}}
	f := newDriverFixture(t, client, "question one\n/clear\nquestion two\nexit\n")

	require.NoError(t, f.driver.Run(context.Background()))

	history := f.store.LoadHistory()
	require.Len(t, history, 3, "cleared history keeps only the last exchange")
	assert.Equal(t, "question two", history[1].Content)

	// The second API call must not carry the first exchange.
	calls := client.Calls()
	require.Len(t, calls, 2)
	for _, m := range calls[1].Messages {
		assert.NotContains(t, m.Content, "first answer")
	}
}

func TestCompactIfNeededSummarizes(t *testing.T) {
	client := &llm.MockClient{Responses: []string{"summary of everything"}}
	f := newDriverFixture(t, client, "")

	history := []session.Message{{Role: session.RoleSystem, Content: "sys"}}
	for i := 0; i < HistoryCompactThreshold+4; i++ {
		history = append(history, session.Message{Role: session.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}

	compacted := f.driver.compactIfNeeded(context.Background(), history)
	require.Len(t, compacted, 2)
	assert.Equal(t, "sys", compacted[0].Content)
	assert.Equal(t, "summary of everything", compacted[1].Content)
	assert.Equal(t, session.RoleAssistant, compacted[1].Role)
}

func TestCompactIfNeededTruncateFallback(t *testing.T) {
	client := &llm.MockClient{Err: llm.ErrRateLimited}
	f := newDriverFixture(t, client, "")

	history := []session.Message{{Role: session.RoleSystem, Content: "sys"}}
	for i := 0; i < 60; i++ {
		history = append(history, session.Message{Role: session.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}

	compacted := f.driver.compactIfNeeded(context.Background(), history)
	require.Len(t, compacted, compactKeepRecent+1)
	assert.Equal(t, "sys", compacted[0].Content)
	assert.Equal(t, "turn 59", compacted[len(compacted)-1].Content)
}

func TestCompactIfNeededBelowThreshold(t *testing.T) {
	f := newDriverFixture(t, &llm.MockClient{}, "")
	history := []session.Message{
		{Role: session.RoleSystem, Content: "sys"},
		{Role: session.RoleUser, Content: "short"},
	}
	assert.Equal(t, history, f.driver.compactIfNeeded(context.Background(), history))
}

func TestAskPrintsRiskAnnotatedCommands(t *testing.T) {
	client := &llm.MockClient{Responses: []string{
		"Clean up like this:\n```bash\nls -la\nrm old.log\nsudo rm -rf /tmp/cache\n```",
	}}
	f := newDriverFixture(t, client, "")

	require.NoError(t, f.driver.Ask(context.Background(), "how do I clean up"))

	out := f.out.String()
	assert.Contains(t, out, "Suggested commands:")
	assert.Contains(t, out, "ls -la")
	assert.Contains(t, out, "SAFE")
	assert.Contains(t, out, "CAUTION")
	assert.Contains(t, out, "DANGEROUS")
}

func TestAskOffline(t *testing.T) {
	client := &llm.MockClient{Err: llm.ErrNetworkUnavailable}
	f := newDriverFixture(t, client, "")

	require.NoError(t, f.driver.Ask(context.Background(), "find big files"))
	assert.Contains(t, f.out.String(), "Offline - Unable to connect to API.")
}

func TestAskPropagatesOtherErrors(t *testing.T) {
	client := &llm.MockClient{Err: llm.ErrInvalidCredentials}
	f := newDriverFixture(t, client, "")

	err := f.driver.Ask(context.Background(), "anything")
	assert.ErrorIs(t, err, llm.ErrInvalidCredentials)
}
