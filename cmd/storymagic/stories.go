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
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"storymagic/internal/domain"
	"storymagic/internal/export"
	"storymagic/internal/storage"
)

func newStoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stories",
		Short: "Browse, import, export and delete stories",
	}
	cmd.AddCommand(
		newStoriesListCmd(a),
		newStoriesShowCmd(a),
		newStoriesImportCmd(a),
		newStoriesFavoriteCmd(a),
		newStoriesDeleteCmd(a),
		newStoriesExportCmd(a),
	)
	return cmd
}

func newStoriesListCmd(a *app) *cobra.Command {
	var (
		f      domain.StoryFilter
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stories in the library",
		Long: `List stories in the library.

Examples:
  storymagic stories list
  storymagic stories list --search dragon --sort title
  storymagic stories list --tag bedtime --favorites --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				list, err := storage.NewStories(db).List(cmd.Context(), f)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No stories found")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "ID\tTITLE\tPAGES\tFAV\tTAGS\tCREATED\n")
				for _, s := range list {
					fav := ""
					if s.IsFavorite {
						fav = "*"
					}
					fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n", s.ID, s.Title, s.PageCount, fav,
						strings.Join(s.Tags, ","), s.CreatedAt.Local().Format("2006-01-02"))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&f.Search, "search", "", "match title or tags")
	cmd.Flags().StringSliceVar(&f.Tags, "tag", nil, "require tag (repeatable)")
	cmd.Flags().BoolVar(&f.FavoritesOnly, "favorites", false, "only favorites")
	cmd.Flags().StringVar(&f.SortBy, "sort", domain.SortByCreated, "sort by created|title|pages")
	cmd.Flags().BoolVar(&f.Desc, "desc", false, "reverse the order")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newStoriesShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a story with its characters and pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				repo := storage.NewStories(db)
				s, err := repo.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				chars, err := repo.Characters(cmd.Context(), id)
				if err != nil {
					return err
				}
				pages, err := repo.Pages(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n", s.Title)
				if s.Theme != "" || s.ReadingLevel != "" {
					fmt.Fprintf(out, "Theme: %s  Level: %s\n", s.Theme, s.ReadingLevel)
				}
				if len(s.Tags) > 0 {
					fmt.Fprintf(out, "Tags: %s\n", strings.Join(s.Tags, ", "))
				}
				for _, c := range chars {
					fmt.Fprintf(out, "Character: %s\n", c.Name)
				}
				for _, p := range pages {
					fmt.Fprintf(out, "\n--- Page %d ---\n%s\n", p.Number, p.Content)
				}
				// Showing a story counts as reading it.
				return repo.MarkRead(cmd.Context(), id, time.Now())
			})
		},
	}
}

// storyDocument is the import file format.
type storyDocument struct {
	Story      domain.Story       `json:"story"`
	Pages      []domain.Page      `json:"pages"`
	Characters []domain.Character `json:"characters"`
}

func newStoriesImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <story.json>",
		Short: "Add a story with its pages and characters from a JSON file",
		Long: `Add a story with its pages and characters from a JSON file of the form

  {"story": {"title": "...", "tags": ["..."]},
   "pages": [{"pageNumber": 1, "content": "..."}],
   "characters": [{"name": "..."}]}

Everything is written in one transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading story: %w", err)
			}
			var doc storyDocument
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parsing story: %w", err)
			}
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				if err := storage.NewStories(db).Create(cmd.Context(), &doc.Story, doc.Pages, doc.Characters); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported story %d (%s) with %d pages\n", doc.Story.ID, doc.Story.Title, len(doc.Pages))
				return nil
			})
		},
	}
}

func newStoriesFavoriteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <id>",
		Short: "Toggle the favorite flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				fav, err := storage.NewStories(db).ToggleFavorite(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "favorite: %t\n", fav)
				return nil
			})
		},
	}
}

func newStoriesDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a story with its pages and characters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				if err := storage.NewStories(db).Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted story %d\n", id)
				return nil
			})
		},
	}
}

func newStoriesExportCmd(a *app) *cobra.Command {
	var (
		format   string
		out      string
		noImages bool
		author   string
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a story as PDF or EPUB",
		Long: `Export a story as a printable PDF picture book or a reflowable EPUB.

Examples:
  storymagic stories export 3
  storymagic stories export 3 --format epub --out ~/Books/dragon.epub`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "pdf" && format != "epub" {
				return fmt.Errorf("unsupported format %q (want pdf or epub)", format)
			}
			return a.withDB(cmd.Context(), func(db *storage.DB) error {
				repo := storage.NewStories(db)
				s, err := repo.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				pages, err := repo.Pages(cmd.Context(), id)
				if err != nil {
					return err
				}
				chars, err := repo.Characters(cmd.Context(), id)
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = filepath.Join(filepath.Dir(db.Path()), "exports", fmt.Sprintf("story-%d.%s", id, format))
				}
				if format == "pdf" {
					err = export.StoryPDF(s, pages, chars, path, export.PDFOptions{
						PageSize:      a.cfg.Export.PageSize,
						IncludeImages: !noImages,
						Author:        author,
					})
				} else {
					if !strings.HasSuffix(strings.ToLower(path), ".epub") {
						path += ".epub"
					}
					err = export.StoryEPUB(s, pages, chars, path, export.EPUBOptions{
						Author:        author,
						IncludeImages: !noImages,
					})
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "pdf", "pdf or epub")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: <library dir>/exports/story-<id>.<format>)")
	cmd.Flags().BoolVar(&noImages, "no-images", false, "leave illustrations out")
	cmd.Flags().StringVar(&author, "author", "", "author shown in the document metadata")
	return cmd
}
