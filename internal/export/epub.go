/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"storymagic/internal/domain"
	applog "storymagic/internal/log"
)

// EPUBOptions controls EPUB export.
type EPUBOptions struct {
	Author        string
	Language      string // e.g. "en"; default "en"
	Publisher     string
	IncludeImages bool
}

// StoryEPUB writes story as a reflowable EPUB 3 package: a title page and
// one chapter per story page holding the illustration and the page text.
func StoryEPUB(story domain.Story, pages []domain.Page, chars []domain.Character, outPath string, opt EPUBOptions) error {
	if strings.TrimSpace(outPath) == "" {
		return fmt.Errorf("output path is required")
	}
	if len(pages) == 0 {
		return fmt.Errorf("no pages to export")
	}
	l := applog.WithOperation(applog.WithComponent("export"), "epub").With(slog.Int64("story_id", story.ID))
	if opt.Language == "" {
		opt.Language = "en"
	}
	if opt.Author == "" {
		opt.Author = "StoryMagic"
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".epub") {
		outPath += ".epub"
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create epub: %w", err)
	}
	defer func() { _ = f.Close() }()
	zw := zip.NewWriter(f)
	fail := func(what string, err error) error {
		_ = zw.Close()
		l.Error("epub export failed", slog.String("step", what), slog.Any("err", err))
		return fmt.Errorf("%s: %w", what, err)
	}

	// mimetype must come first, uncompressed
	if err := addStoredZipFile(zw, "mimetype", []byte("application/epub+zip")); err != nil {
		return fail("write mimetype", err)
	}
	containerXML := "" +
		"<?xml version=\"1.0\" encoding=\"utf-8\"?>\n" +
		"<container version=\"1.0\" xmlns=\"urn:oasis:names:tc:opendocument:xmlns:container\">\n" +
		"  <rootfiles>\n" +
		"    <rootfile full-path=\"OEBPS/content.opf\" media-type=\"application/oebps-package+xml\"/>\n" +
		"  </rootfiles>\n" +
		"</container>\n"
	if err := addZipFile(zw, "META-INF/container.xml", []byte(containerXML)); err != nil {
		return fail("write container.xml", err)
	}

	css := "body { font-family: serif; margin: 1em; }\n" +
		"h1 { text-align: center; margin-top: 30%; }\n" +
		".subtitle, .cast { text-align: center; }\n" +
		".illustration { text-align: center; }\n" +
		".illustration img { max-width: 100%; max-height: 60vh; }\n" +
		"p { font-size: 1.3em; line-height: 1.5; }\n"
	if err := addZipFile(zw, "OEBPS/styles/story.css", []byte(css)); err != nil {
		return fail("write css", err)
	}

	var title bytes.Buffer
	title.WriteString(xhtmlHead(story.Title))
	title.WriteString(fmt.Sprintf("<h1>%s</h1>\n", xmlEsc(story.Title)))
	if sub := subtitle(story); sub != "" {
		title.WriteString(fmt.Sprintf("<p class=\"subtitle\">%s</p>\n", xmlEsc(sub)))
	}
	if len(chars) > 0 {
		names := make([]string, 0, len(chars))
		for _, c := range chars {
			names = append(names, c.Name)
		}
		title.WriteString(fmt.Sprintf("<p class=\"cast\"><em>Starring %s</em></p>\n", xmlEsc(strings.Join(names, ", "))))
	}
	title.WriteString("</body>\n</html>\n")
	if err := addZipFile(zw, "OEBPS/title.xhtml", title.Bytes()); err != nil {
		return fail("write title page", err)
	}

	pad := 1
	if n := len(pages); n >= 100 {
		pad = 3
	} else if n >= 10 {
		pad = 2
	}

	type item struct{ id, href, media, props string }
	var items []item
	var spine []string
	nav := &bytes.Buffer{}
	nav.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	nav.WriteString("<html xmlns=\"http://www.w3.org/1999/xhtml\" xmlns:epub=\"http://www.idpf.org/2007/ops\">\n<head><title>Contents</title></head>\n<body>\n")
	nav.WriteString("<nav epub:type=\"toc\" id=\"toc\"><ol>\n<li><a href=\"title.xhtml\">Title</a></li>\n")

	coverSet := false
	for i, pg := range pages {
		pageID := fmt.Sprintf("page-%0*d", pad, i+1)
		var body bytes.Buffer
		body.WriteString(xhtmlHead(fmt.Sprintf("Page %d", pg.Number)))
		if opt.IncludeImages && pg.ImagePath != "" {
			if imgOpt, data, err := loadImage(strings.TrimPrefix(pg.ImagePath, "file://")); err == nil {
				ext, media := "png", "image/png"
				if imgOpt.ImageType == "JPG" {
					ext, media = "jpg", "image/jpeg"
				}
				href := fmt.Sprintf("images/%s.%s", pageID, ext)
				if err := addZipFile(zw, "OEBPS/"+href, data); err != nil {
					return fail("zip add image", err)
				}
				props := ""
				if !coverSet {
					props, coverSet = "cover-image", true
				}
				items = append(items, item{id: "img-" + pageID, href: href, media: media, props: props})
				body.WriteString(fmt.Sprintf("<div class=\"illustration\"><img src=\"%s\" alt=\"Illustration for page %d\"/></div>\n", href, pg.Number))
			} else {
				l.Warn("illustration skipped", slog.Int("page", pg.Number), slog.Any("err", err))
			}
		}
		for _, para := range paragraphs(pg.Content) {
			body.WriteString(fmt.Sprintf("<p>%s</p>\n", xmlEsc(para)))
		}
		body.WriteString("</body>\n</html>\n")
		href := pageID + ".xhtml"
		if err := addZipFile(zw, "OEBPS/"+href, body.Bytes()); err != nil {
			return fail("write page xhtml", err)
		}
		items = append(items, item{id: pageID, href: href, media: "application/xhtml+xml"})
		spine = append(spine, pageID)
		nav.WriteString(fmt.Sprintf("<li><a href=\"%s\">Page %d</a></li>\n", href, pg.Number))
	}
	nav.WriteString("</ol></nav>\n</body>\n</html>\n")
	if err := addZipFile(zw, "OEBPS/nav.xhtml", nav.Bytes()); err != nil {
		return fail("write nav.xhtml", err)
	}

	mod := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	opf := &bytes.Buffer{}
	opf.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	opf.WriteString("<package version=\"3.0\" unique-identifier=\"pub-id\" xmlns=\"http://www.idpf.org/2007/opf\">\n")
	opf.WriteString("  <metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\">\n")
	opf.WriteString(fmt.Sprintf("    <dc:identifier id=\"pub-id\">urn:uuid:%s</dc:identifier>\n", uuid.NewString()))
	opf.WriteString(fmt.Sprintf("    <dc:title>%s</dc:title>\n", xmlEsc(story.Title)))
	opf.WriteString(fmt.Sprintf("    <dc:language>%s</dc:language>\n", xmlEsc(opt.Language)))
	opf.WriteString(fmt.Sprintf("    <dc:creator>%s</dc:creator>\n", xmlEsc(opt.Author)))
	if strings.TrimSpace(opt.Publisher) != "" {
		opf.WriteString(fmt.Sprintf("    <dc:publisher>%s</dc:publisher>\n", xmlEsc(opt.Publisher)))
	}
	for _, tag := range story.Tags {
		opf.WriteString(fmt.Sprintf("    <dc:subject>%s</dc:subject>\n", xmlEsc(tag)))
	}
	opf.WriteString(fmt.Sprintf("    <meta property=\"dcterms:modified\">%s</meta>\n", mod))
	opf.WriteString("  </metadata>\n  <manifest>\n")
	opf.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	opf.WriteString("    <item id=\"css\" href=\"styles/story.css\" media-type=\"text/css\"/>\n")
	opf.WriteString("    <item id=\"title\" href=\"title.xhtml\" media-type=\"application/xhtml+xml\"/>\n")
	for _, it := range items {
		props := ""
		if it.props != "" {
			props = fmt.Sprintf(" properties=\"%s\"", it.props)
		}
		opf.WriteString(fmt.Sprintf("    <item id=\"%s\" href=\"%s\" media-type=\"%s\"%s/>\n", it.id, it.href, it.media, props))
	}
	opf.WriteString("  </manifest>\n  <spine>\n    <itemref idref=\"title\"/>\n")
	for _, id := range spine {
		opf.WriteString(fmt.Sprintf("    <itemref idref=\"%s\"/>\n", id))
	}
	opf.WriteString("  </spine>\n</package>\n")
	if err := addZipFile(zw, "OEBPS/content.opf", opf.Bytes()); err != nil {
		return fail("write content.opf", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	l.Info("epub written", slog.String("path", outPath), slog.Int("pages", len(pages)))
	return nil
}

func xhtmlHead(title string) string {
	return "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n" +
		"<html xmlns=\"http://www.w3.org/1999/xhtml\">\n<head>\n" +
		"<meta charset=\"utf-8\"/>\n" +
		fmt.Sprintf("<title>%s</title>\n", xmlEsc(title)) +
		"<link rel=\"stylesheet\" type=\"text/css\" href=\"styles/story.css\"/>\n" +
		"</head>\n<body>\n"
}

// paragraphs splits page text on blank lines.
func paragraphs(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(s, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// addStoredZipFile writes an entry with STORE method (no compression), required for EPUB mimetype.
func addStoredZipFile(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Store}
	hdr.Modified = time.Now()
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func xmlEsc(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
