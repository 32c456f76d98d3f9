/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"storymagic/internal/domain"
	applog "storymagic/internal/log"
)

//go:embed schemas/template.schema.json
var templateSchemaJSON []byte

var templateSchema = gojsonschema.NewBytesLoader(templateSchemaJSON)

// language=SQL
// dialect=SQLite
const countTemplatesSQL = `SELECT COUNT(*) FROM story_templates`

// language=SQL
// dialect=SQLite
const insertTemplateSQL = `INSERT INTO story_templates (name, description, theme, structure, is_custom) VALUES (?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectTemplatesSQL = `SELECT id, name, description, theme, structure, is_custom FROM story_templates`

// BuiltinTemplates returns the starter templates in insertion order.
func BuiltinTemplates() []domain.StoryTemplate {
	return []domain.StoryTemplate{
		{
			Name:        "Space Adventure",
			Description: "An exciting journey through the stars",
			Theme:       "space",
			Structure: domain.TemplateStructure{
				Setting:      "outer space",
				PlotElements: []string{"discovery", "adventure", "teamwork"},
			},
		},
		{
			Name:        "Animal Friends",
			Description: "Stories about friendship between animals",
			Theme:       "animals",
			Structure: domain.TemplateStructure{
				Setting:      "forest",
				PlotElements: []string{"friendship", "kindness", "helping others"},
			},
		},
		{
			Name:        "Fantasy Kingdom",
			Description: "Magical tales of princes, princesses, and dragons",
			Theme:       "fantasy",
			Structure: domain.TemplateStructure{
				Setting:      "medieval kingdom",
				PlotElements: []string{"magic", "quests", "bravery"},
			},
		},
	}
}

// Templates stores story starter templates.
type Templates struct {
	db  *DB
	log *slog.Logger
}

func NewTemplates(db *DB) *Templates {
	return &Templates{db: db, log: applog.WithComponent("templates")}
}

// SeedDefaults inserts the built-in templates when the table is empty and
// reports whether it did. The check and the inserts share a transaction.
// A table holding only custom templates counts as non-empty.
func (t *Templates) SeedDefaults(ctx context.Context) (bool, error) {
	l := applog.WithOperation(t.log, "seedDefaults")
	seeded := false
	err := t.db.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, countTemplatesSQL).Scan(&n); err != nil {
			return fmt.Errorf("count templates: %w", err)
		}
		if n > 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, insertTemplateSQL)
		if err != nil {
			return fmt.Errorf("prepare insert template: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, tpl := range BuiltinTemplates() {
			structure, err := json.Marshal(tpl.Structure)
			if err != nil {
				return fmt.Errorf("encode template %q: %w", tpl.Name, err)
			}
			if _, err := stmt.ExecContext(ctx, tpl.Name, tpl.Description, tpl.Theme, string(structure), false); err != nil {
				return fmt.Errorf("insert template %q: %w", tpl.Name, err)
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		l.Error("seeding templates failed", slog.Any("err", err))
		return false, err
	}
	if seeded {
		l.Info("default templates inserted", slog.Int("count", len(BuiltinTemplates())))
	}
	return seeded, nil
}

// List returns all templates, built-ins first, then by id.
func (t *Templates) List(ctx context.Context) ([]domain.StoryTemplate, error) {
	db, err := t.db.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectTemplatesSQL+` ORDER BY is_custom, id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.StoryTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// Get returns a single template or ErrNotFound.
func (t *Templates) Get(ctx context.Context, id int64) (domain.StoryTemplate, error) {
	db, err := t.db.conn()
	if err != nil {
		return domain.StoryTemplate{}, err
	}
	tpl, err := scanTemplate(db.QueryRowContext(ctx, selectTemplatesSQL+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoryTemplate{}, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return tpl, err
}

// Create stores a user-defined template. The structure must satisfy the
// template schema; tpl.ID is set and tpl.IsCustom forced to true.
func (t *Templates) Create(ctx context.Context, tpl *domain.StoryTemplate) error {
	if tpl == nil || strings.TrimSpace(tpl.Name) == "" {
		return fmt.Errorf("%w: template name is required", ErrInvalid)
	}
	structure, err := json.Marshal(tpl.Structure)
	if err != nil {
		return fmt.Errorf("encode template structure: %w", err)
	}
	if err := ValidateTemplateStructure(structure); err != nil {
		return err
	}
	db, err := t.db.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, insertTemplateSQL, tpl.Name, tpl.Description, tpl.Theme, string(structure), true)
	if err != nil {
		applog.WithOperation(t.log, "create").Error("insert template failed", slog.Any("err", err))
		return fmt.Errorf("insert template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("template id: %w", err)
	}
	tpl.ID = id
	tpl.IsCustom = true
	return nil
}

// ValidateTemplateStructure checks a serialized structure against the
// embedded JSON schema.
func ValidateTemplateStructure(doc []byte) error {
	result, err := gojsonschema.Validate(templateSchema, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: template structure: %v", ErrInvalid, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: template structure: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(r rowScanner) (domain.StoryTemplate, error) {
	var (
		tpl                       domain.StoryTemplate
		desc, theme, structureRaw sql.NullString
	)
	if err := r.Scan(&tpl.ID, &tpl.Name, &desc, &theme, &structureRaw, &tpl.IsCustom); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tpl, err
		}
		return tpl, fmt.Errorf("scan template: %w", err)
	}
	tpl.Description = desc.String
	tpl.Theme = theme.String
	if structureRaw.Valid && structureRaw.String != "" {
		// A malformed payload leaves Structure empty rather than hiding the row.
		_ = json.Unmarshal([]byte(structureRaw.String), &tpl.Structure)
	}
	return tpl, nil
}
