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
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/image/webp"

	"storymagic/internal/domain"
	applog "storymagic/internal/log"
)

// PDFOptions controls story PDF export.
// Units are points (pt). Text uses the built-in Helvetica core font, so
// nothing is embedded; UTF-8 input is translated to cp1252.
type PDFOptions struct {
	PageSize      string  // "A4" (default), "A5", "Letter"
	Margin        float64 // default 36pt
	IncludeImages bool
	Author        string
}

var pageSizes = map[string]gofpdf.SizeType{
	"a4":     {Wd: 595.28, Ht: 841.89},
	"a5":     {Wd: 419.53, Ht: 595.28},
	"letter": {Wd: 612, Ht: 792},
}

// PageSize resolves a page size name, falling back to A4.
func PageSize(name string) gofpdf.SizeType {
	if s, ok := pageSizes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s
	}
	return pageSizes["a4"]
}

// StoryPDF writes story as a picture book: a title page followed by one
// PDF page per story page, with the illustration (if the image file is a
// readable JPEG, PNG or WebP) above the wrapped page text.
func StoryPDF(story domain.Story, pages []domain.Page, chars []domain.Character, outPath string, opt PDFOptions) error {
	if strings.TrimSpace(outPath) == "" {
		return fmt.Errorf("output path is required")
	}
	l := applog.WithOperation(applog.WithComponent("export"), "pdf").With(slog.Int64("story_id", story.ID))

	size := PageSize(opt.PageSize)
	margin := opt.Margin
	if margin <= 0 {
		margin = 36
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: size})
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(story.Title), false)
	author := opt.Author
	if author == "" {
		author = "StoryMagic"
	}
	pdf.SetAuthor(tr(author), false)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)

	textW := size.Wd - 2*margin

	// Title page
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 28)
	pdf.SetY(size.Ht / 3)
	pdf.MultiCell(textW, 34, tr(story.Title), "", "C", false)
	pdf.SetFont("Helvetica", "", 12)
	if sub := subtitle(story); sub != "" {
		pdf.Ln(12)
		pdf.MultiCell(textW, 16, tr(sub), "", "C", false)
	}
	if len(chars) > 0 {
		names := make([]string, 0, len(chars))
		for _, c := range chars {
			names = append(names, c.Name)
		}
		pdf.Ln(18)
		pdf.SetFont("Helvetica", "I", 12)
		pdf.MultiCell(textW, 16, tr("Starring "+strings.Join(names, ", ")), "", "C", false)
	}

	for _, pg := range pages {
		pdf.AddPage()
		y := margin
		if opt.IncludeImages && pg.ImagePath != "" {
			if h, ok := placeImage(pdf, pg.ImagePath, margin, y, textW, (size.Ht-2*margin)*0.6); ok {
				y += h + 18
			} else {
				l.Warn("illustration skipped", slog.Int("page", pg.Number), slog.String("image", pg.ImagePath))
			}
		}
		pdf.SetXY(margin, y)
		pdf.SetFont("Helvetica", "", 16)
		pdf.MultiCell(textW, 22, tr(pg.Content), "", "L", false)

		// Page number sits in the bottom margin; keep it from triggering a break.
		pdf.SetAutoPageBreak(false, 0)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetXY(margin, size.Ht-margin/2-5)
		pdf.CellFormat(textW, 10, fmt.Sprintf("%d", pg.Number), "", 0, "C", false, 0, "")
		pdf.SetAutoPageBreak(true, margin)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		l.Error("write pdf failed", slog.Any("err", err))
		return fmt.Errorf("write pdf: %w", err)
	}
	l.Info("pdf written", slog.String("path", outPath), slog.Int("pages", len(pages)))
	return nil
}

func subtitle(s domain.Story) string {
	var parts []string
	if s.Theme != "" {
		parts = append(parts, "A "+s.Theme+" story")
	}
	if s.ReadingLevel != "" {
		parts = append(parts, "Reading level: "+s.ReadingLevel)
	}
	return strings.Join(parts, " · ")
}

// placeImage draws the image at path scaled to fit maxW x maxH, centred
// horizontally, and returns the drawn height. Remote URIs and unreadable
// files are skipped; a failed registration does not poison the document.
func placeImage(pdf *gofpdf.Fpdf, path string, x, y, maxW, maxH float64) (float64, bool) {
	path = strings.TrimPrefix(path, "file://")
	if strings.Contains(path, "://") {
		return 0, false
	}
	opts, data, err := loadImage(path)
	if err != nil {
		return 0, false
	}
	info := pdf.RegisterImageOptionsReader(path, opts, bytes.NewReader(data))
	if pdf.Err() || info == nil {
		pdf.ClearError()
		return 0, false
	}
	w, h := info.Width(), info.Height()
	if w <= 0 || h <= 0 {
		return 0, false
	}
	scale := maxW / w
	if h*scale > maxH {
		scale = maxH / h
	}
	w, h = w*scale, h*scale
	pdf.ImageOptions(path, x+(maxW-w)/2, y, w, h, false, opts, 0, "")
	return h, true
}

// loadImage reads an illustration and returns it in a form gofpdf can
// register. WebP is decoded and re-encoded as PNG.
func loadImage(path string) (gofpdf.ImageOptions, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gofpdf.ImageOptions{}, nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return gofpdf.ImageOptions{ImageType: "JPG"}, data, nil
	case ".png":
		return gofpdf.ImageOptions{ImageType: "PNG"}, data, nil
	case ".webp":
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return gofpdf.ImageOptions{}, nil, fmt.Errorf("decode webp: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return gofpdf.ImageOptions{}, nil, fmt.Errorf("encode png: %w", err)
		}
		return gofpdf.ImageOptions{ImageType: "PNG"}, buf.Bytes(), nil
	}
	return gofpdf.ImageOptions{}, nil, fmt.Errorf("unsupported image type %q", filepath.Ext(path))
}
