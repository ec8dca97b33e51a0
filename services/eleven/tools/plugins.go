// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPluginTimeout bounds a plugin subprocess when its manifest
// does not set one.
const DefaultPluginTimeout = 30 * time.Second

// PluginExec describes the subprocess a plugin tool runs.
type PluginExec struct {
	// Command is the executable to run. Relative commands resolve
	// against the plugin directory.
	Command string `yaml:"command" validate:"required"`

	// Args are fixed arguments passed before the parameter payload.
	Args []string `yaml:"args"`

	// TimeoutSeconds bounds the subprocess. Zero means the default.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gte=0,lte=600"`
}

// PluginManifest is one tool definition in the plugins directory.
//
// A manifest registers a subprocess-backed tool: the parameters arrive
// as a JSON object on the subprocess's standard input, and the exit
// code, stdout and stderr become the tool's Result.
//
// Example manifest (~/.eleven/plugins/deploy.yaml):
//
//	name: Deploy
//	description: Deploy the current branch to staging
//	params:
//	  env: Target environment
//	exec:
//	  command: ./deploy.sh
//	  timeout_seconds: 120
type PluginManifest struct {
	Name        string            `yaml:"name" validate:"required,excludesall=0x20"`
	Description string            `yaml:"description"`
	Params      map[string]string `yaml:"params"`
	Exec        PluginExec        `yaml:"exec" validate:"required"`
}

var manifestValidator = validator.New()

// LoadPluginDir loads every plugin manifest in dir and registers the
// resulting tools.
//
// Description:
//
//	Enumerates *.yaml and *.yml files, skipping names with a leading
//	underscore. A failure to parse, validate, or register any one file
//	is logged and skipped; loading continues for the rest.
//
// Outputs:
//
//	int - Count of successfully loaded plugins.
//	error - Non-nil only when the directory cannot be read at all.
//	        A missing directory is not an error (count 0).
func LoadPluginDir(r *Registry, dir string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading plugin directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "_") {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, name)
		if err := loadPluginFile(r, dir, path); err != nil {
			logger.Warn("Skipping plugin", "file", name, "error", err)
			continue
		}
		logger.Debug("Loaded plugin", "file", name)
		loaded++
	}

	return loaded, nil
}

func loadPluginFile(r *Registry, dir, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var manifest PluginManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}
	if err := manifestValidator.Struct(&manifest); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	return r.Register(Registration{
		Name:        manifest.Name,
		Handler:     pluginHandler(dir, manifest),
		Description: manifest.Description,
		Params:      manifest.Params,
		Origin:      OriginPlugin,
	})
}

// pluginHandler builds the subprocess-backed handler for a manifest.
func pluginHandler(dir string, manifest PluginManifest) Handler {
	timeout := DefaultPluginTimeout
	if manifest.Exec.TimeoutSeconds > 0 {
		timeout = time.Duration(manifest.Exec.TimeoutSeconds) * time.Second
	}

	command := manifest.Exec.Command
	if !filepath.IsAbs(command) && strings.Contains(command, string(filepath.Separator)) {
		command = filepath.Join(dir, command)
	}

	return func(params map[string]string) Result {
		payload, err := json.Marshal(params)
		if err != nil {
			return Fail(err.Error())
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, command, manifest.Exec.Args...)
		cmd.Stdin = bytes.NewReader(payload)

		var stdout, stderr strings.Builder
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err = cmd.Run()
		if ctx.Err() == context.DeadlineExceeded {
			return Fail(manifest.Name + " timeout")
		}
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return Result{
					ExitCode: exitErr.ExitCode(),
					Stdout:   stdout.String(),
					Stderr:   stderr.String(),
					Ran:      true,
				}
			}
			return Fail(err.Error())
		}

		return Result{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String(), Ran: true}
	}
}

// WatchPluginDir reloads plugin manifests when the directory changes.
//
// Description:
//
//	Watches dir with fsnotify and re-runs LoadPluginDir on create,
//	write, and rename events. Removal of a manifest file does not
//	unregister its tool; a restart clears stale registrations. The
//	watcher stops when ctx is cancelled.
//
// Outputs:
//
//	error - Non-nil if the watch could not be established.
func WatchPluginDir(ctx context.Context, r *Registry, dir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating plugin watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				count, err := LoadPluginDir(r, dir, logger)
				if err != nil {
					logger.Warn("Plugin reload failed", "error", err)
					continue
				}
				logger.Info("Reloaded plugins", "count", count, "trigger", event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Plugin watcher error", "error", err)
			}
		}
	}()

	return nil
}
