/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"strings"
	"time"
)

// This file defines the persistent data model of a StoryMagic library.
// A Story is the aggregate root: its Pages and Characters have no life of
// their own and are removed together with it.

// Story is a single storybook in the user's library.
type Story struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ReadingLevel string     `json:"readingLevel,omitempty"` // e.g. "beginner", "intermediate"
	Theme        string     `json:"theme,omitempty"`
	IsFavorite   bool       `json:"isFavorite"`
	Tags         []string   `json:"tags,omitempty"`
	LastReadAt   *time.Time `json:"lastReadAt,omitempty"`

	// PageCount is derived on read and never stored.
	PageCount int `json:"pageCount"`
}

// HasTag reports whether the story carries tag (exact match).
func (s Story) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Matches reports whether term occurs case-insensitively in the title or any tag.
// An empty term matches everything.
func (s Story) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(s.Title), term) {
		return true
	}
	for _, t := range s.Tags {
		if strings.Contains(strings.ToLower(t), term) {
			return true
		}
	}
	return false
}

// Page is one spread of a story. Number defines the reading order.
type Page struct {
	ID         int64  `json:"id"`
	StoryID    int64  `json:"storyId"`
	Number     int    `json:"pageNumber"`
	Content    string `json:"content,omitempty"`    // may be empty until text is generated
	ImagePath  string `json:"imagePath,omitempty"`  // file path or URI of the illustration
	ImageStyle string `json:"imageStyle,omitempty"` // e.g. "watercolor", "cartoon"
}

// Character appears in a story.
type Character struct {
	ID         int64  `json:"id"`
	StoryID    int64  `json:"storyId"`
	Name       string `json:"name"`
	Age        *int   `json:"age,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Appearance string `json:"appearance,omitempty"`
}

// TemplateStructure is the serialized payload of a StoryTemplate.
type TemplateStructure struct {
	Setting      string   `json:"setting"`
	PlotElements []string `json:"plotElements"`
}

// StoryTemplate is a starter outline offered by the story creator.
// Built-in templates have IsCustom == false.
type StoryTemplate struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Theme       string            `json:"theme,omitempty"`
	Structure   TemplateStructure `json:"structure"`
	IsCustom    bool              `json:"isCustom"`
}

// Sort keys understood by StoryFilter.
const (
	SortByCreated = "created"
	SortByTitle   = "title"
	SortByPages   = "pages"
)

// StoryFilter narrows and orders a library listing.
type StoryFilter struct {
	Search        string   // matched against title and tags
	Tags          []string // every tag must be present
	FavoritesOnly bool
	SortBy        string // SortByCreated (default), SortByTitle, SortByPages
	Desc          bool
}

// Accept reports whether s passes the filter (ordering is not considered).
func (f StoryFilter) Accept(s Story) bool {
	if f.FavoritesOnly && !s.IsFavorite {
		return false
	}
	for _, t := range f.Tags {
		if !s.HasTag(t) {
			return false
		}
	}
	return s.Matches(f.Search)
}
