/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"storymagic/internal/bridge"
	applog "storymagic/internal/log"
	"storymagic/internal/storage"
)

func newBridgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Serve the settings channels as JSON lines on stdio",
		Long: `Serve the storage channels to the desktop shell as JSON lines on stdio.

Each input line is a request {"id": 1, "channel": "settings:get", "args": ["theme"]}
and gets exactly one response line {"id": 1, "result": "dark"}.
The server stops at end of input or on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			// After the first signal a second one terminates as usual.
			context.AfterFunc(ctx, stop)
			return a.withDB(ctx, func(db *storage.DB) error {
				err := bridge.New(db).Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the settings channels as MCP tools on stdio",
		Long: `Serve the storage channels as Model Context Protocol tools on stdio,
so an assistant can read and change app settings.

Configure in an MCP client:
  {"mcpServers": {"storymagic": {"command": "storymagic", "args": ["mcp"]}}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			// After the first signal a second one terminates as usual.
			context.AfterFunc(ctx, stop)
			return a.withDB(ctx, func(db *storage.DB) error {
				l := applog.WithComponent("mcp")
				serverErr := make(chan error, 1)
				go func() { serverErr <- bridge.New(db).ServeMCP() }()

				select {
				case <-ctx.Done():
					l.Info("shutdown signal received")
					return nil
				case err := <-serverErr:
					if err != nil {
						l.Error("mcp server stopped", slog.Any("err", err))
					}
					return err
				}
			})
		},
	}
}
