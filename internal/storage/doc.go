/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements the local StoryMagic library database.
// A DB owns the single connection to <user config dir>/StoryMagic/storymagic.db; it creates the schema,
// enforces foreign keys and applies numbered migrations on Initialize.
// Settings, Templates and Stories are thin stores over that connection: a typed key/value preference store,
// the story starter templates (with first-run seeding) and the story/page/character aggregate.
// Seeding is never implicit; callers run Templates.SeedDefaults and Settings.SeedDefaults after Initialize.
package storage
