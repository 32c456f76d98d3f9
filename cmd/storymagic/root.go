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
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"storymagic/internal/config"
	"storymagic/internal/crash"
	applog "storymagic/internal/log"
	"storymagic/internal/storage"
)

// recoverPanic is replaced in tests.
var recoverPanic = crash.Recover

// app carries what every subcommand needs: resolved config and the --db override.
type app struct {
	dbPath string
	cfg    config.AppConfig
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Defaults()}
	root := &cobra.Command{
		Use:   "storymagic",
		Short: "Manage the local StoryMagic library",
		Long: `Manage the local StoryMagic library.

The library is a single SQLite file holding stories, their pages and
characters, story templates and the app settings. The desktop shell talks
to it through "storymagic bridge" (JSON lines on stdio); the other
commands are for inspection and maintenance.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup() },
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "library database path (default: per-user config dir)")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newSettingsCmd(a),
		newTemplatesCmd(a),
		newStoriesCmd(a),
		newBridgeCmd(a),
		newMCPCmd(a),
		newBackupCmd(a),
		newCheckCmd(a),
		newAPIKeyCmd(),
	)
	return root
}

// setup loads .env, the user config and initializes logging.
func (a *app) setup() error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	a.cfg = cfg
	applog.Init(cfg.LogOptions())
	if err != nil {
		// Defaults are usable; a broken config file must not lock the user out.
		applog.WithComponent("cli").Warn("config not loaded, using defaults", slog.Any("err", err))
	}
	return nil
}

// resolvePath picks the database location: --db, then config/env, then the per-user default.
func (a *app) resolvePath() (string, error) {
	if p := strings.TrimSpace(a.dbPath); p != "" {
		return p, nil
	}
	if p := strings.TrimSpace(a.cfg.Storage.DBPath); p != "" {
		return p, nil
	}
	return storage.DefaultPath()
}

// withDB opens the library, seeds default data, runs fn and closes it again.
// A panic inside fn is turned into a crash report with the database closed.
func (a *app) withDB(ctx context.Context, fn func(db *storage.DB) error) (err error) {
	path, err := a.resolvePath()
	if err != nil {
		return err
	}
	db := storage.New(path)
	if err := db.Initialize(ctx); err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	// Runs before the Close above, so the report still sees the open library.
	defer recoverPanic(db)

	if _, err := storage.NewTemplates(db).SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seed templates: %w", err)
	}
	if err := storage.NewSettings(db).SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return fn(db)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
