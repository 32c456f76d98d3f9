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
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"storymagic/internal/domain"
	"storymagic/internal/storage"
)

func newTemplatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List and add story templates",
	}
	cmd.AddCommand(newTemplatesListCmd(a), newTemplatesAddCmd(a))
	return cmd
}

func newTemplatesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in and custom templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				list, err := storage.NewTemplates(db).List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "ID\tNAME\tTHEME\tCUSTOM\tSETTING\n")
				for _, t := range list {
					fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", t.ID, t.Name, t.Theme, t.IsCustom, t.Structure.Setting)
				}
				return w.Flush()
			})
		},
	}
}

func newTemplatesAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <template.json>",
		Short: "Add a custom template from a JSON file",
		Long: `Add a custom template from a JSON file of the form

  {"name": "...", "description": "...", "theme": "...",
   "structure": {"setting": "...", "plotElements": ["...", "..."]}}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading template: %w", err)
			}
			var doc struct {
				domain.StoryTemplate
				Structure json.RawMessage `json:"structure"`
			}
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parsing template: %w", err)
			}
			if strings.TrimSpace(doc.Name) == "" {
				return fmt.Errorf("template name is required")
			}
			if err := storage.ValidateTemplateStructure(doc.Structure); err != nil {
				return err
			}
			tpl := doc.StoryTemplate
			if err := json.Unmarshal(doc.Structure, &tpl.Structure); err != nil {
				return fmt.Errorf("parsing structure: %w", err)
			}
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				if err := storage.NewTemplates(db).Create(cmd.Context(), &tpl); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added template %d (%s)\n", tpl.ID, tpl.Name)
				return nil
			})
		},
	}
}
