/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storymagic/internal/domain"
)

func newStory(t *testing.T, r *Stories, title string, tags []string, pages int) domain.Story {
	t.Helper()
	s := domain.Story{Title: title, Tags: tags, ReadingLevel: "beginner", Theme: "space"}
	ps := make([]domain.Page, pages)
	for i := range ps {
		ps[i] = domain.Page{Number: i + 1, Content: "page text", ImageStyle: "watercolor"}
	}
	require.NoError(t, r.Create(context.Background(), &s, ps, nil))
	return s
}

func countRows(t *testing.T, db *DB, table string, storyID int64) int {
	t.Helper()
	var n int
	require.NoError(t, db.sql.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE story_id = ?`, storyID).Scan(&n))
	return n
}

func TestStoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewStories(openTestDB(t))

	age := 7
	s := domain.Story{Title: "Luna's Moon Trip", Tags: []string{"space", "moon"}, ReadingLevel: "beginner"}
	pages := []domain.Page{{Number: 1, Content: "Luna looked up."}, {Number: 2, Content: "The rocket hummed.", ImagePath: "/tmp/p2.png"}}
	chars := []domain.Character{{Name: "Luna", Age: &age, Gender: "girl", Appearance: "red boots"}}
	require.NoError(t, r.Create(ctx, &s, pages, chars))
	require.NotZero(t, s.ID)
	assert.Equal(t, s.ID, pages[0].StoryID)
	assert.NotZero(t, pages[1].ID)
	assert.NotZero(t, chars[0].ID)

	got, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Luna's Moon Trip", got.Title)
	assert.Equal(t, []string{"space", "moon"}, got.Tags)
	assert.Equal(t, 2, got.PageCount)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Nil(t, got.LastReadAt)

	gotPages, err := r.Pages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, gotPages, 2)
	assert.Equal(t, "/tmp/p2.png", gotPages[1].ImagePath)

	gotChars, err := r.Characters(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, gotChars, 1)
	require.NotNil(t, gotChars[0].Age)
	assert.Equal(t, 7, *gotChars[0].Age)

	_, err = r.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoryCreateRejectsDuplicatePageNumbers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewStories(db)

	s := domain.Story{Title: "Twice"}
	err := r.Create(ctx, &s, []domain.Page{{Number: 1}, {Number: 1}}, nil)
	assert.ErrorIs(t, err, ErrDuplicatePage)

	list, err := r.List(ctx, domain.StoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStoryCreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	r := NewStories(openTestDB(t))

	s := domain.Story{Title: "Half done"}
	err := r.Create(ctx, &s, []domain.Page{{Number: 0}}, nil)
	assert.ErrorIs(t, err, ErrInvalid)

	list, err := r.List(ctx, domain.StoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "story row must be rolled back with the failing page")

	err = r.Create(ctx, &domain.Story{Title: ""}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestStoryCreateRollbackLeavesInputUntouched(t *testing.T) {
	ctx := context.Background()
	r := NewStories(openTestDB(t))

	s := domain.Story{Title: "Almost"}
	pages := []domain.Page{{Number: 1}, {Number: 2}, {Number: -1}}
	chars := []domain.Character{{Name: "Pip"}}
	require.ErrorIs(t, r.Create(ctx, &s, pages, chars), ErrInvalid)

	assert.Zero(t, s.ID)
	for _, p := range pages {
		assert.Zero(t, p.ID, "page %d", p.Number)
		assert.Zero(t, p.StoryID, "page %d", p.Number)
	}
	assert.Zero(t, chars[0].ID)
	assert.Zero(t, chars[0].StoryID)

	// The same values can be submitted again once fixed.
	pages[2].Number = 3
	require.NoError(t, r.Create(ctx, &s, pages, chars))
	assert.NotZero(t, s.ID)
	assert.Equal(t, s.ID, pages[2].StoryID)
	assert.Equal(t, s.ID, chars[0].StoryID)
	assert.NotZero(t, chars[0].ID)
}

func TestStoryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewStories(db)

	s := domain.Story{Title: "Gone Soon"}
	require.NoError(t, r.Create(ctx, &s,
		[]domain.Page{{Number: 1}, {Number: 2}, {Number: 3}},
		[]domain.Character{{Name: "Pip"}, {Name: "Pop"}}))
	require.Equal(t, 3, countRows(t, db, TablePages, s.ID))
	require.Equal(t, 2, countRows(t, db, TableCharacters, s.ID))

	require.NoError(t, r.Delete(ctx, s.ID))
	assert.Equal(t, 0, countRows(t, db, TablePages, s.ID))
	assert.Equal(t, 0, countRows(t, db, TableCharacters, s.ID))
	assert.ErrorIs(t, r.Delete(ctx, s.ID), ErrNotFound)
}

func TestStoryPagesStayUnique(t *testing.T) {
	ctx := context.Background()
	r := NewStories(openTestDB(t))
	s := newStory(t, r, "Pages", nil, 2)

	err := r.AddPage(ctx, &domain.Page{StoryID: s.ID, Number: 2})
	assert.ErrorIs(t, err, ErrDuplicatePage)

	p3 := domain.Page{StoryID: s.ID, Number: 3, Content: "new"}
	require.NoError(t, r.AddPage(ctx, &p3))
	assert.NotZero(t, p3.ID)

	p3.Number = 1
	assert.ErrorIs(t, r.UpdatePage(ctx, &p3), ErrDuplicatePage)

	p3.Number = 4
	p3.Content = "moved"
	require.NoError(t, r.UpdatePage(ctx, &p3))
	pages, err := r.Pages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, 4, pages[2].Number)
	assert.Equal(t, "moved", pages[2].Content)

	assert.ErrorIs(t, r.AddPage(ctx, &domain.Page{StoryID: 999, Number: 1}), ErrNotFound)
	assert.ErrorIs(t, r.UpdatePage(ctx, &domain.Page{ID: 999, Number: 9}), ErrNotFound)
}

func TestStoryCharacters(t *testing.T) {
	ctx := context.Background()
	r := NewStories(openTestDB(t))
	s := newStory(t, r, "Cast", nil, 1)

	c := domain.Character{StoryID: s.ID, Name: "Milo", Gender: "boy"}
	require.NoError(t, r.AddCharacter(ctx, &c))
	age := 9
	c.Age = &age
	c.Appearance = "green scarf"
	require.NoError(t, r.UpdateCharacter(ctx, &c))

	chars, err := r.Characters(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, "green scarf", chars[0].Appearance)
	require.NotNil(t, chars[0].Age)
	assert.Equal(t, 9, *chars[0].Age)

	assert.ErrorIs(t, r.AddCharacter(ctx, &domain.Character{StoryID: s.ID}), ErrInvalid)
	assert.ErrorIs(t, r.AddCharacter(ctx, &domain.Character{StoryID: 999, Name: "Ghost"}), ErrNotFound)
	assert.ErrorIs(t, r.UpdateCharacter(ctx, &domain.Character{ID: 999, Name: "Ghost"}), ErrNotFound)
}

func TestStoryFavoriteAndRead(t *testing.T) {
	ctx := context.Background()
	r := NewStories(openTestDB(t))
	s := newStory(t, r, "Fav", nil, 0)

	fav, err := r.ToggleFavorite(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, fav)
	fav, err = r.ToggleFavorite(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, fav)

	require.NoError(t, r.SetFavorite(ctx, s.ID, true))
	at := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, r.MarkRead(ctx, s.ID, at))

	got, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFavorite)
	require.NotNil(t, got.LastReadAt)
	assert.True(t, at.Equal(*got.LastReadAt))

	_, err = r.ToggleFavorite(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.MarkRead(ctx, 999, at), ErrNotFound)
}

func TestStoryUpdate(t *testing.T) {
	ctx := context.Background()
	r := NewStories(openTestDB(t))
	s := newStory(t, r, "Draft", []string{"old"}, 1)
	created := s.CreatedAt

	s.Title = "Final"
	s.Tags = []string{"new", "shiny"}
	s.Theme = "ocean"
	require.NoError(t, r.Update(ctx, &s))

	got, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, []string{"new", "shiny"}, got.Tags)
	assert.Equal(t, "ocean", got.Theme)
	assert.False(t, got.UpdatedAt.Before(created))

	s.Title = ""
	assert.ErrorIs(t, r.Update(ctx, &s), ErrInvalid)
	assert.ErrorIs(t, r.Update(ctx, &domain.Story{ID: 999, Title: "x"}), ErrNotFound)
}

func TestStoryListFilterAndSort(t *testing.T) {
	ctx := context.Background()
	r := NewStories(openTestDB(t))
	space := newStory(t, r, "Space Adventure", []string{"space", "adventure"}, 3)
	ocean := newStory(t, r, "ocean Explorers", []string{"ocean", "adventure"}, 5)
	newStory(t, r, "Bedtime Bear", []string{"animals"}, 1)
	require.NoError(t, r.SetFavorite(ctx, ocean.ID, true))

	titles := func(list []domain.Story) []string {
		out := make([]string, len(list))
		for i, s := range list {
			out[i] = s.Title
		}
		return out
	}

	all, err := r.List(ctx, domain.StoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Space Adventure", "ocean Explorers", "Bedtime Bear"}, titles(all))

	byTitle, err := r.List(ctx, domain.StoryFilter{SortBy: domain.SortByTitle})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bedtime Bear", "ocean Explorers", "Space Adventure"}, titles(byTitle))

	byPagesDesc, err := r.List(ctx, domain.StoryFilter{SortBy: domain.SortByPages, Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"ocean Explorers", "Space Adventure", "Bedtime Bear"}, titles(byPagesDesc))

	adventure, err := r.List(ctx, domain.StoryFilter{Tags: []string{"adventure"}})
	require.NoError(t, err)
	assert.Len(t, adventure, 2)

	favs, err := r.List(ctx, domain.StoryFilter{FavoritesOnly: true})
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, ocean.ID, favs[0].ID)

	search, err := r.List(ctx, domain.StoryFilter{Search: "SPACE"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, space.ID, search[0].ID)
}
