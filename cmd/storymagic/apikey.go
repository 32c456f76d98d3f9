/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"storymagic/internal/config"
)

func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage image/text provider API keys in the OS keychain",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <provider>",
		Short: "Store a key read from stdin (gemini or replicate)",
		Long: `Store a provider API key in the OS keychain. The key is read from the
first line of stdin so it does not end up in the shell history.
An empty line removes the stored key.

Example:
  printf '%s\n' "$GEMINI_KEY" | storymagic apikey set gemini`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading key: %w", err)
			}
			key := strings.TrimSpace(line)
			if err := config.SetAPIKey(args[0], key); err != nil {
				return err
			}
			if key == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s key removed\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s key stored\n", args[0])
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which provider keys are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range []string{config.ProviderGemini, config.ProviderReplicate} {
				key, err := config.APIKey(p)
				if err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
				state := "not set"
				if key != "" {
					state = "set"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", p, state)
			}
			return nil
		},
	})
	return cmd
}
