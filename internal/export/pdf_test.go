/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"storymagic/internal/domain"
)

// writePNG creates a small solid-colour PNG for illustration tests.
func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 120, B: 200, A: 255})
		}
	}
	p := filepath.Join(dir, "page1.png")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return p
}

func sampleStory() (domain.Story, []domain.Character) {
	age := 6
	return domain.Story{ID: 7, Title: "Pía and the Moon", Theme: "space", ReadingLevel: "beginner", Tags: []string{"space"}},
		[]domain.Character{{Name: "Pía", Age: &age}, {Name: "Rocket Rex"}}
}

func TestStoryPDF_CreatesFile(t *testing.T) {
	root := t.TempDir()
	img := writePNG(t, root)
	story, chars := sampleStory()
	pages := []domain.Page{
		{Number: 1, Content: "Pía looked at the moon and smiled.", ImagePath: img},
		{Number: 2, Content: "The rocket was ready.\n\nThree, two, one!", ImagePath: "https://example.test/remote.png"},
		{Number: 3, Content: "Home again.", ImagePath: filepath.Join(root, "missing.jpg")},
	}
	out := filepath.Join(root, "exports", "story.pdf")
	if err := StoryPDF(story, pages, chars, out, PDFOptions{IncludeImages: true, PageSize: "letter"}); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("not a pdf: %q", data[:8])
	}
}

func TestStoryPDF_RequiresPath(t *testing.T) {
	story, _ := sampleStory()
	if err := StoryPDF(story, nil, nil, " ", PDFOptions{}); err == nil {
		t.Fatalf("expected error for empty output path")
	}
}

func TestPageSizeFallsBackToA4(t *testing.T) {
	if got := PageSize("Letter"); got.Wd != 612 {
		t.Fatalf("Letter width = %v", got.Wd)
	}
	if got, a4 := PageSize("tabloid"), PageSize("A4"); got != a4 {
		t.Fatalf("unknown size = %v, want A4 %v", got, a4)
	}
}

func TestLoadImageRejectsUnsupported(t *testing.T) {
	dir := t.TempDir()
	gif := filepath.Join(dir, "x.gif")
	if err := os.WriteFile(gif, []byte("GIF89a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := loadImage(gif); err == nil {
		t.Fatalf("gif should be rejected")
	}
	bad := filepath.Join(dir, "x.webp")
	if err := os.WriteFile(bad, []byte("RIFF0000WEBPjunk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := loadImage(bad); err == nil {
		t.Fatalf("corrupt webp should be rejected")
	}
	opts, data, err := loadImage(writePNG(t, dir))
	if err != nil || opts.ImageType != "PNG" || len(data) == 0 {
		t.Fatalf("png load = %v, %d bytes, %v", opts, len(data), err)
	}
}
