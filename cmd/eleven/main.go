// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/seanebones-lang/Eleven-Term/pkg/logging"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/chat"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/config"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/credentials"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/gate"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/hooks"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/llm"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/loop"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/parser"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/session"
	"github.com/seanebones-lang/Eleven-Term/services/eleven/tools"
)

var (
	flagForce           bool
	flagSkipPermissions bool
	flagNoLog           bool
	flagModel           string
	flagEndpoint        string

	rootCmd = &cobra.Command{
		Use:   "eleven",
		Short: "A terminal AI coding assistant",
		Long: `eleven forwards your queries to a chat completion API, parses tool
directives out of the responses, and executes them locally after risk
classification, hooks, and consent.

Running eleven with no subcommand starts an interactive session.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()
			return app.driver.Run(cmd.Context())
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagForce, "force", false, "allow dangerous shell commands without prompting")
	pf.BoolVar(&flagSkipPermissions, "dangerously-skip-permissions", false, "never prompt for consent")
	pf.BoolVar(&flagNoLog, "no-log", false, "disable file logging")
	pf.StringVar(&flagModel, "model", "", "override the configured model")
	pf.StringVar(&flagEndpoint, "endpoint", "", "override the API base URL")
}

// app holds everything a command needs, wired once per invocation.
type app struct {
	cfg      config.Config
	logger   *logging.Logger
	client   llm.Client
	registry *tools.Registry
	gate     *gate.Gate
	store    *session.Store
	driver   *chat.Driver

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp loads config and assembles the full pipeline: credentials,
// cached API client, registry with builtins and plugins, hook runner,
// gate, session store, and driver.
func buildApp() (*app, error) {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return nil, err
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagEndpoint != "" {
		cfg.Endpoint = flagEndpoint
	}

	logCfg := logging.Config{Level: logging.LevelInfo, Service: "eleven", Quiet: true}
	if cfg.AutoLog && !flagNoLog {
		logCfg.LogDir = filepath.Join(config.Home(), "logs")
	}
	logger := logging.New(logCfg)
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { logger.Close() })

	key, err := credentials.Resolve()
	if err != nil {
		a.Close()
		return nil, err
	}
	xai, err := llm.NewXAIClient(key, cfg.Endpoint)
	if err != nil {
		a.Close()
		return nil, err
	}
	cached, err := llm.NewCachedClient(xai, llm.CacheConfig{
		Path: filepath.Join(config.Home(), "cache"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = cached
	a.closers = append(a.closers, func() { cached.Close() })

	a.registry = tools.NewRegistry()
	cwd, err := os.Getwd()
	if err != nil {
		a.Close()
		return nil, err
	}
	force := flagForce || !cfg.DangerousCommandsRequireFlag
	tools.RegisterBuiltins(a.registry, tools.BuiltinOptions{Root: cwd, Force: force})
	if n, err := tools.LoadPluginDir(a.registry, cfg.PluginsDir, logger.Slog()); err != nil {
		logger.Warn("plugin loading failed", "dir", cfg.PluginsDir, "error", err)
	} else if n > 0 {
		logger.Info("plugins loaded", "count", n)
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	a.closers = append(a.closers, stopWatch)
	if err := tools.WatchPluginDir(watchCtx, a.registry, cfg.PluginsDir, logger.Slog()); err != nil {
		logger.Warn("plugin watcher unavailable", "dir", cfg.PluginsDir, "error", err)
	}

	hookRunner := hooks.NewRunner(cfg.HooksDir, logger)
	a.gate = gate.New(a.registry, hookRunner, gate.NewTerminalPrompter(), gate.Options{
		SkipPermissions: flagSkipPermissions,
		Force:           force,
	}, logger)

	store, err := session.NewStore(config.Home(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	a.driver = chat.NewDriver(a.client, parser.New(), a.gate, store, cfg, logger)
	return a, nil
}

// loopManager builds the loop state manager under the application home.
func (a *app) loopManager() (*loop.Manager, error) {
	return loop.NewManager(
		filepath.Join(config.Home(), "loops"),
		filepath.Join(config.Home(), "loop_logs"),
		a.logger,
	)
}
