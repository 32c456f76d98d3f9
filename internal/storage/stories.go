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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"storymagic/internal/domain"
	applog "storymagic/internal/log"
)

// ErrDuplicatePage is returned when a story already has a page with the given number.
var ErrDuplicatePage = errors.New("page number already used in story")

// language=SQL
// dialect=SQLite
const insertStorySQL = `INSERT INTO stories (title, created_at, updated_at, reading_level, theme, is_favorite, tags)
VALUES (?, ?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectStoriesSQL = `SELECT s.id, s.title, s.created_at, s.updated_at, s.reading_level, s.theme,
       s.is_favorite, s.tags, s.last_read_at,
       (SELECT COUNT(*) FROM story_pages p WHERE p.story_id = s.id) AS page_count
FROM stories s`

// language=SQL
// dialect=SQLite
const insertPageSQL = `INSERT INTO story_pages (story_id, page_number, content, image_path, image_style) VALUES (?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectPagesSQL = `SELECT id, story_id, page_number, content, image_path, image_style
FROM story_pages WHERE story_id = ? ORDER BY page_number`

// language=SQL
// dialect=SQLite
const insertCharacterSQL = `INSERT INTO characters (story_id, name, age, gender, appearance) VALUES (?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectCharactersSQL = `SELECT id, story_id, name, age, gender, appearance
FROM characters WHERE story_id = ? ORDER BY id`

// language=SQL
// dialect=SQLite
const touchStorySQL = `UPDATE stories SET updated_at = ? WHERE id = ?`

// Stories is the repository for the story aggregate (story, pages, characters).
type Stories struct {
	db  *DB
	log *slog.Logger
}

func NewStories(db *DB) *Stories {
	return &Stories{db: db, log: applog.WithComponent("stories")}
}

// Create inserts s together with its pages and characters in one
// transaction and assigns all ids. Page numbers must be unique.
func (r *Stories) Create(ctx context.Context, s *domain.Story, pages []domain.Page, chars []domain.Character) error {
	if s == nil || strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("%w: story title is required", ErrInvalid)
	}
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		if seen[p.Number] {
			return fmt.Errorf("page %d: %w", p.Number, ErrDuplicatePage)
		}
		seen[p.Number] = true
	}
	for _, c := range chars {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: character name is required", ErrInvalid)
		}
	}
	tags, err := encodeTags(s.Tags)
	if err != nil {
		return err
	}
	now := nowUTC()
	var (
		storyID int64
		pageIDs = make([]int64, len(pages))
		charIDs = make([]int64, len(chars))
	)
	// Work on copies so a rolled back transaction leaves the caller's values untouched.
	err = r.db.inTx(ctx, func(tx *sql.Tx) error {
		ts := formatTime(now)
		res, err := tx.ExecContext(ctx, insertStorySQL, s.Title, ts, ts, nullable(s.ReadingLevel), nullable(s.Theme), s.IsFavorite, tags)
		if err != nil {
			return fmt.Errorf("insert story: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("story id: %w", err)
		}
		for i := range pages {
			p := pages[i]
			p.StoryID = id
			if err := insertPage(ctx, tx, &p); err != nil {
				return err
			}
			pageIDs[i] = p.ID
		}
		for i := range chars {
			c := chars[i]
			c.StoryID = id
			if err := insertCharacter(ctx, tx, &c); err != nil {
				return err
			}
			charIDs[i] = c.ID
		}
		storyID = id
		return nil
	})
	if err != nil {
		applog.WithOperation(r.log, "create").Error("create story failed", slog.Any("err", err))
		return err
	}
	s.ID = storyID
	for i := range pages {
		pages[i].ID, pages[i].StoryID = pageIDs[i], storyID
	}
	for i := range chars {
		chars[i].ID, chars[i].StoryID = charIDs[i], storyID
	}
	s.CreatedAt, s.UpdatedAt = now, now
	s.PageCount = len(pages)
	applog.WithOperation(r.log, "create").InfoContext(applog.WithStory(ctx, s.ID), "story created",
		slog.Int("pages", len(pages)), slog.Int("characters", len(chars)))
	return nil
}

// Get loads one story with its derived page count.
func (r *Stories) Get(ctx context.Context, id int64) (domain.Story, error) {
	db, err := r.db.conn()
	if err != nil {
		return domain.Story{}, err
	}
	s, err := scanStory(db.QueryRowContext(ctx, selectStoriesSQL+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Story{}, fmt.Errorf("story %d: %w", id, ErrNotFound)
	}
	return s, err
}

// List returns the stories accepted by f in the order f asks for.
// The library is small, so filtering happens after a single scan.
func (r *Stories) List(ctx context.Context, f domain.StoryFilter) ([]domain.Story, error) {
	db, err := r.db.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectStoriesSQL+` ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		if f.Accept(s) {
			out = append(out, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	sortStories(out, f.SortBy, f.Desc)
	return out, nil
}

func sortStories(list []domain.Story, by string, desc bool) {
	less := func(a, b domain.Story) bool {
		switch by {
		case domain.SortByTitle:
			at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
			if at != bt {
				return at < bt
			}
		case domain.SortByPages:
			if a.PageCount != b.PageCount {
				return a.PageCount < b.PageCount
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(list, func(i, j int) bool {
		if desc {
			return less(list[j], list[i])
		}
		return less(list[i], list[j])
	})
}

// Update writes the editable story fields (title, reading level, theme,
// tags) and refreshes updated_at.
func (r *Stories) Update(ctx context.Context, s *domain.Story) error {
	if s == nil || strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("%w: story title is required", ErrInvalid)
	}
	tags, err := encodeTags(s.Tags)
	if err != nil {
		return err
	}
	now := nowUTC()
	if err := r.execStory(ctx, s.ID, `UPDATE stories SET title = ?, reading_level = ?, theme = ?, tags = ?, updated_at = ? WHERE id = ?`,
		s.Title, nullable(s.ReadingLevel), nullable(s.Theme), tags, formatTime(now), s.ID); err != nil {
		return err
	}
	s.UpdatedAt = now
	return nil
}

// SetFavorite sets the favorite flag.
func (r *Stories) SetFavorite(ctx context.Context, id int64, fav bool) error {
	return r.execStory(ctx, id, `UPDATE stories SET is_favorite = ?, updated_at = ? WHERE id = ?`, fav, formatTime(nowUTC()), id)
}

// ToggleFavorite flips the favorite flag and returns the new state.
func (r *Stories) ToggleFavorite(ctx context.Context, id int64) (bool, error) {
	var fav bool
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT is_favorite FROM stories WHERE id = ?`, id).Scan(&fav); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("story %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("read favorite: %w", err)
		}
		fav = !fav
		_, err := tx.ExecContext(ctx, `UPDATE stories SET is_favorite = ?, updated_at = ? WHERE id = ?`, fav, formatTime(nowUTC()), id)
		return err
	})
	return fav, err
}

// MarkRead records that the story was opened in the reader.
// It does not count as an edit, so updated_at is left alone.
func (r *Stories) MarkRead(ctx context.Context, id int64, at time.Time) error {
	if at.IsZero() {
		at = nowUTC()
	}
	return r.execStory(ctx, id, `UPDATE stories SET last_read_at = ? WHERE id = ?`, formatTime(at), id)
}

// Delete removes a story; its pages and characters go with it.
func (r *Stories) Delete(ctx context.Context, id int64) error {
	if err := r.execStory(ctx, id, `DELETE FROM stories WHERE id = ?`, id); err != nil {
		return err
	}
	applog.WithOperation(r.log, "delete").InfoContext(applog.WithStory(ctx, id), "story deleted")
	return nil
}

// execStory runs a single-row statement against stories and maps zero
// affected rows to ErrNotFound.
func (r *Stories) execStory(ctx context.Context, id int64, query string, args ...any) error {
	db, err := r.db.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("story %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("story %d: %w", id, ErrNotFound)
	}
	return nil
}

// Pages returns the pages of a story in reading order.
func (r *Stories) Pages(ctx context.Context, storyID int64) ([]domain.Page, error) {
	db, err := r.db.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectPagesSQL, storyID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Page
	for rows.Next() {
		var (
			p                          domain.Page
			content, imgPath, imgStyle sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.StoryID, &p.Number, &content, &imgPath, &imgStyle); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.Content, p.ImagePath, p.ImageStyle = content.String, imgPath.String, imgStyle.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddPage appends a page to an existing story.
func (r *Stories) AddPage(ctx context.Context, p *domain.Page) error {
	if p == nil {
		return fmt.Errorf("%w: nil page", ErrInvalid)
	}
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireStory(ctx, tx, p.StoryID); err != nil {
			return err
		}
		if err := insertPage(ctx, tx, p); err != nil {
			return err
		}
		return touchStory(ctx, tx, p.StoryID)
	})
}

// UpdatePage rewrites the page identified by p.ID. Changing the page
// number is allowed as long as it stays unique within the story.
func (r *Stories) UpdatePage(ctx context.Context, p *domain.Page) error {
	if p == nil {
		return fmt.Errorf("%w: nil page", ErrInvalid)
	}
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		var storyID int64
		if err := tx.QueryRowContext(ctx, `SELECT story_id FROM story_pages WHERE id = ?`, p.ID).Scan(&storyID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("page %d: %w", p.ID, ErrNotFound)
			}
			return fmt.Errorf("read page: %w", err)
		}
		if err := checkPageFree(ctx, tx, storyID, p.Number, p.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE story_pages SET page_number = ?, content = ?, image_path = ?, image_style = ? WHERE id = ?`,
			p.Number, nullable(p.Content), nullable(p.ImagePath), nullable(p.ImageStyle), p.ID); err != nil {
			return fmt.Errorf("update page: %w", err)
		}
		p.StoryID = storyID
		return touchStory(ctx, tx, storyID)
	})
}

// Characters returns the cast of a story in insertion order.
func (r *Stories) Characters(ctx context.Context, storyID int64) ([]domain.Character, error) {
	db, err := r.db.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectCharactersSQL, storyID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Character
	for rows.Next() {
		var (
			c                  domain.Character
			age                sql.NullInt64
			gender, appearance sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.StoryID, &c.Name, &age, &gender, &appearance); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		if age.Valid {
			a := int(age.Int64)
			c.Age = &a
		}
		c.Gender, c.Appearance = gender.String, appearance.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddCharacter adds a character to an existing story.
func (r *Stories) AddCharacter(ctx context.Context, c *domain.Character) error {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: character name is required", ErrInvalid)
	}
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireStory(ctx, tx, c.StoryID); err != nil {
			return err
		}
		if err := insertCharacter(ctx, tx, c); err != nil {
			return err
		}
		return touchStory(ctx, tx, c.StoryID)
	})
}

// UpdateCharacter rewrites the character identified by c.ID.
func (r *Stories) UpdateCharacter(ctx context.Context, c *domain.Character) error {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: character name is required", ErrInvalid)
	}
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		var storyID int64
		if err := tx.QueryRowContext(ctx, `SELECT story_id FROM characters WHERE id = ?`, c.ID).Scan(&storyID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("character %d: %w", c.ID, ErrNotFound)
			}
			return fmt.Errorf("read character: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE characters SET name = ?, age = ?, gender = ?, appearance = ? WHERE id = ?`,
			c.Name, nullableAge(c.Age), nullable(c.Gender), nullable(c.Appearance), c.ID); err != nil {
			return fmt.Errorf("update character: %w", err)
		}
		c.StoryID = storyID
		return touchStory(ctx, tx, storyID)
	})
}

func insertPage(ctx context.Context, tx *sql.Tx, p *domain.Page) error {
	if p.Number < 1 {
		return fmt.Errorf("%w: page number must be positive", ErrInvalid)
	}
	if err := checkPageFree(ctx, tx, p.StoryID, p.Number, 0); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, insertPageSQL, p.StoryID, p.Number, nullable(p.Content), nullable(p.ImagePath), nullable(p.ImageStyle))
	if err != nil {
		return fmt.Errorf("insert page %d: %w", p.Number, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("page id: %w", err)
	}
	p.ID = id
	return nil
}

// checkPageFree fails with ErrDuplicatePage if another page of the story
// (other than self) already uses number.
func checkPageFree(ctx context.Context, tx *sql.Tx, storyID int64, number int, self int64) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM story_pages WHERE story_id = ? AND page_number = ? AND id <> ?`,
		storyID, number, self).Scan(&n); err != nil {
		return fmt.Errorf("check page number: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("page %d: %w", number, ErrDuplicatePage)
	}
	return nil
}

func insertCharacter(ctx context.Context, tx *sql.Tx, c *domain.Character) error {
	res, err := tx.ExecContext(ctx, insertCharacterSQL, c.StoryID, c.Name, nullableAge(c.Age), nullable(c.Gender), nullable(c.Appearance))
	if err != nil {
		return fmt.Errorf("insert character %q: %w", c.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("character id: %w", err)
	}
	c.ID = id
	return nil
}

func requireStory(ctx context.Context, tx *sql.Tx, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM stories WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("story %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read story: %w", err)
	}
	return nil
}

func touchStory(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, touchStorySQL, formatTime(nowUTC()), id); err != nil {
		return fmt.Errorf("touch story %d: %w", id, err)
	}
	return nil
}

func scanStory(r rowScanner) (domain.Story, error) {
	var (
		s                  domain.Story
		created, updated   string
		level, theme, tags sql.NullString
		lastRead           sql.NullString
	)
	if err := r.Scan(&s.ID, &s.Title, &created, &updated, &level, &theme, &s.IsFavorite, &tags, &lastRead, &s.PageCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("scan story: %w", err)
	}
	s.CreatedAt = parseTime(created)
	s.UpdatedAt = parseTime(updated)
	s.ReadingLevel = level.String
	s.Theme = theme.String
	if tags.Valid && tags.String != "" {
		_ = json.Unmarshal([]byte(tags.String), &s.Tags)
	}
	if lastRead.Valid && lastRead.String != "" {
		if t := parseTime(lastRead.String); !t.IsZero() {
			s.LastReadAt = &t
		}
	}
	return s, nil
}

func encodeTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

// nullable stores empty optional text as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableAge(a *int) any {
	if a == nil {
		return nil
	}
	return *a
}
