// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seanebones-lang/Eleven-Term/services/eleven/chat"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/loop"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/parser"
)

var (
	flagLoopPromise       string
	flagLoopMaxIterations int

	loopCmd = &cobra.Command{
		Use:   "loop",
		Short: "Run and manage self-iterating task loops",
		Long: `A loop keeps the assistant working on one task across multiple API
calls until it outputs a completion promise phrase or the iteration
budget runs out. Loop state is persisted so it can be inspected and
cancelled.`,
	}

	loopStartCmd = &cobra.Command{
		Use:   "start [prompt]",
		Short: "Start a new loop on the given task prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			mgr, err := app.loopManager()
			if err != nil {
				return err
			}
			if active, ok := mgr.ActiveLoop(); ok {
				return fmt.Errorf("%w: %s (use 'eleven loop cancel' first)", loop.ErrLoopActive, active)
			}

			state, err := mgr.NewState(loop.GenerateID(), strings.Join(args, " "),
				flagLoopPromise, flagLoopMaxIterations)
			if err != nil {
				return err
			}

			runner := loop.NewRunner(mgr, app.client, parser.New(), app.gate, loop.RunnerConfig{
				Model:        app.cfg.Model,
				Temperature:  app.cfg.Temperature,
				MaxTokens:    app.cfg.MaxTokens,
				SystemPrompt: chat.SessionSystemPrompt(),
				Output:       os.Stdout,
			}, app.logger)

			summary, err := runner.Run(cmd.Context(), state, app.store.LoadHistory())
			if err != nil {
				return err
			}
			fmt.Println(summary)
			return mgr.Cleanup(state)
		},
	}

	loopStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the active loop, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			mgr, err := app.loopManager()
			if err != nil {
				return err
			}
			id, ok := mgr.ActiveLoop()
			if !ok {
				fmt.Println("No active loop.")
				return nil
			}
			state, ok := mgr.Load(id)
			if !ok {
				return fmt.Errorf("loop %s unreadable", id)
			}
			fmt.Printf("Loop:       %s\n", state.LoopID)
			fmt.Printf("Prompt:     %s\n", state.Prompt)
			fmt.Printf("Promise:    %s\n", state.CompletionPromise)
			fmt.Printf("Iteration:  %d/%d\n", state.CurrentIteration, state.MaxIterations)
			fmt.Printf("Started:    %s\n", state.StartTime)
			if len(state.FilesModified) > 0 {
				fmt.Printf("Modified:   %s\n", strings.Join(state.FilesModified, ", "))
			}
			return nil
		},
	}

	loopCancelCmd = &cobra.Command{
		Use:   "cancel [loop-id]",
		Short: "Cancel the active loop",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			mgr, err := app.loopManager()
			if err != nil {
				return err
			}
			var id string
			if len(args) > 0 {
				id = args[0]
			}
			if !mgr.Cancel(id) {
				fmt.Println("No active loop to cancel.")
				return nil
			}
			fmt.Println("Loop cancelled.")
			return nil
		},
	}
)

func init() {
	loopStartCmd.Flags().StringVar(&flagLoopPromise, "promise", "TASK COMPLETE",
		"phrase whose appearance in a response completes the loop")
	loopStartCmd.Flags().IntVar(&flagLoopMaxIterations, "max-iterations", loop.DefaultMaxIterations,
		"iteration budget before the loop stops")
	loopCmd.AddCommand(loopStartCmd, loopStatusCmd, loopCancelCmd)
	rootCmd.AddCommand(loopCmd)
}
