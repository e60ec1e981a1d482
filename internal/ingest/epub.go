package ingest

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/errors"
)

// NCX XML structures for parsing toc.ncx.
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	Label    navLabel   `xml:"navLabel"`
	Content  navContent `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// parseEPUB walks an EPUB's spine in reading order, one chapter per spine
// document. Chapter titles come from the NCX table of contents; spine
// documents the NCX doesn't name get a positional fallback.
func (p *Parser) parseEPUB(path string) (*ParsedBook, error) {
	rc, err := epub.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeValidation, "open epub %s", path)
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return nil, errors.Validation("epub has no rootfile")
	}
	book := rc.Rootfiles[0]

	parsed := &ParsedBook{
		Title:       strings.TrimSpace(book.Metadata.Title),
		Authors:     splitAuthors(book.Metadata.Creator),
		Language:    strings.TrimSpace(book.Metadata.Language),
		Publisher:   strings.TrimSpace(book.Metadata.Publisher),
		Description: htmlToMarkdown(strings.TrimSpace(book.Metadata.Description)),
		Format:      domain.FormatEPUB,
	}
	if parsed.Title == "" {
		parsed.Title = titleFromFilename(path)
	}

	titles := p.ncxTitles(path, book)

	for i, ref := range book.Spine.Itemrefs {
		if ref.Item == nil {
			continue
		}

		r, err := ref.Item.Open()
		if err != nil {
			p.logger.Warn("skipping unreadable spine item", "href", ref.Item.HREF, "error", err)
			continue
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			p.logger.Warn("skipping unreadable spine item", "href", ref.Item.HREF, "error", err)
			continue
		}

		text := chapterTextFromHTML(string(data))
		if text == "" {
			continue
		}

		parsed.Chapters = append(parsed.Chapters, ParsedChapter{
			Title: spineTitle(titles, ref.Item.HREF, i),
			Pages: splitIntoPages(text, p.pageSize),
		})
	}

	if len(parsed.Chapters) == 0 {
		return nil, errors.NoContent("epub contains no readable text")
	}

	p.logger.Info("parsed epub",
		"path", path,
		"title", parsed.Title,
		"chapters", len(parsed.Chapters))

	return parsed, nil
}

// spineTitle resolves a spine document's chapter title from the NCX map,
// trying the full href then its base name.
func spineTitle(titles map[string]string, href string, index int) string {
	if href != "" {
		if t, ok := titles[href]; ok && t != "" {
			return t
		}
		if t, ok := titles[path.Base(href)]; ok && t != "" {
			return t
		}
	}
	return fmt.Sprintf("Section %d", index+1)
}

// ncxTitles parses the NCX table of contents into an href-to-title map.
// Hrefs are stored with and without fragments, and by base name, so spine
// lookups match however the NCX spelled the path. Missing or malformed
// NCX is not an error; titles just fall back to section numbers.
func (p *Parser) ncxTitles(filename string, book *epub.Rootfile) map[string]string {
	titles := make(map[string]string)

	data, err := p.readNCX(filename, book)
	if err != nil {
		p.logger.Debug("no usable NCX in epub", "path", filename, "error", err)
		return titles
	}

	var toc ncx
	if err := xml.Unmarshal(data, &toc); err != nil {
		p.logger.Debug("failed to parse NCX", "path", filename, "error", err)
		return titles
	}

	var record func(points []navPoint)
	record = func(points []navPoint) {
		for _, np := range points {
			title := strings.TrimSpace(np.Label.Text)
			for _, key := range hrefKeys(np.Content.Src) {
				if _, exists := titles[key]; !exists {
					titles[key] = title
				}
			}
			record(np.Children)
		}
	}
	record(toc.NavMap.NavPoints)

	return titles
}

// hrefKeys returns the lookup keys an NCX href should answer to: as
// written, without its #fragment, and by base name.
func hrefKeys(href string) []string {
	if href == "" {
		return nil
	}

	keys := []string{href}
	stripped := href
	if idx := strings.Index(href, "#"); idx != -1 {
		stripped = href[:idx]
		keys = append(keys, stripped)
	}
	if base := path.Base(stripped); base != stripped {
		keys = append(keys, base)
	}
	return keys
}

// readNCX locates and reads the NCX document. The manifest names it by
// media type; older books without a manifest entry get a zip scan for
// any .ncx member.
func (p *Parser) readNCX(filename string, book *epub.Rootfile) ([]byte, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var ncxPath string
	for _, item := range book.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = item.HREF
			break
		}
	}
	if ncxPath == "" {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".ncx") {
				ncxPath = f.Name
				break
			}
		}
	}
	if ncxPath == "" {
		return nil, fmt.Errorf("no NCX entry in manifest or archive")
	}

	// Manifest hrefs are relative to the rootfile, zip names to the root
	for _, f := range zr.File {
		if f.Name == ncxPath || strings.HasSuffix(f.Name, "/"+ncxPath) || path.Base(f.Name) == path.Base(ncxPath) {
			r, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer r.Close()
			return io.ReadAll(r)
		}
	}

	return nil, fmt.Errorf("NCX %s not found in archive", ncxPath)
}
