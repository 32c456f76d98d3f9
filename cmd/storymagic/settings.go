/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"storymagic/internal/storage"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write app settings",
	}
	cmd.AddCommand(newSettingsGetCmd(a), newSettingsSetCmd(a), newSettingsListCmd(a), newSettingsResetCmd(a))
	return cmd
}

// parseSettingValue reads a command-line value as JSON (true, 3, {"a":1})
// and falls back to a plain string.
func parseSettingValue(raw string, forceString bool) storage.Value {
	if forceString {
		return storage.String(raw)
	}
	var v storage.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return storage.String(raw)
	}
	return v
}

func printValue(cmd *cobra.Command, v storage.Value) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func newSettingsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key> [fallback]",
		Short: "Print a setting as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fallback := storage.Null()
			if len(args) == 2 {
				fallback = parseSettingValue(args[1], false)
			}
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				return printValue(cmd, storage.NewSettings(db).Get(cmd.Context(), args[0], fallback))
			})
		},
	}
}

func newSettingsSetCmd(a *app) *cobra.Command {
	var asString bool
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting",
		Long: `Store a setting. The value is read as JSON when possible.

Examples:
  storymagic settings set theme dark
  storymagic settings set autoSave false
  storymagic settings set --string pin 0042`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := parseSettingValue(args[1], asString)
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				return storage.NewSettings(db).Set(cmd.Context(), args[0], v)
			})
		},
	}
	cmd.Flags().BoolVar(&asString, "string", false, "store the value as a string even if it parses as JSON")
	return cmd
}

func newSettingsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				all := storage.NewSettings(db).GetAll(cmd.Context())
				keys := make([]string, 0, len(all))
				for k := range all {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "KEY\tKIND\tVALUE\n")
				for _, k := range keys {
					b, _ := json.Marshal(all[k])
					fmt.Fprintf(w, "%s\t%s\t%s\n", k, all[k].Kind(), b)
				}
				return w.Flush()
			})
		},
	}
}

func newSettingsResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore every default setting to its default value",
		Long: `Restore every default setting (theme, language, ...) to its default value.
Settings that have no default are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				values := map[string]storage.Value{}
				for _, d := range storage.DefaultSettings() {
					values[d.Key] = d.Value
				}
				if err := storage.NewSettings(db).SetAll(cmd.Context(), values); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d settings\n", len(values))
				return nil
			})
		},
	}
}
