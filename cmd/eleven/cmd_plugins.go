// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/seanebones-lang/Eleven-Term/services/eleven/tools"
)

var (
	pluginsCmd = &cobra.Command{
		Use:   "plugins",
		Short: "Inspect tools loaded from the plugins directory",
	}

	pluginsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List loaded plugin tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			plugins := app.registry.ListByOrigin(tools.OriginPlugin)
			if len(plugins) == 0 {
				fmt.Printf("No plugins loaded from %s\n", app.cfg.PluginsDir)
				return nil
			}
			for _, reg := range plugins {
				fmt.Printf("%s\t%s\n", reg.Name, reg.Description)
				params := make([]string, 0, len(reg.Params))
				for name := range reg.Params {
					params = append(params, name)
				}
				sort.Strings(params)
				for _, name := range params {
					fmt.Printf("  %s: %s\n", name, reg.Params[name])
				}
			}
			return nil
		},
	}
)

func init() {
	pluginsCmd.AddCommand(pluginsListCmd)
	rootCmd.AddCommand(pluginsCmd)
}
