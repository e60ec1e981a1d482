package ingest

import (
	"os"
	"strings"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/errors"
)

// parseTextFile reads a plain-text book, splitting it into chapters at
// "Chapter N" headings and paginating each chapter body.
func (p *Parser) parseTextFile(path string) (*ParsedBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "read %s", path)
	}

	book := p.ParseText(titleFromFilename(path), "", string(data))
	if len(book.Chapters) == 0 {
		return nil, errors.NoContent("document contains no text")
	}

	p.logger.Info("parsed text file",
		"path", path,
		"title", book.Title,
		"chapters", len(book.Chapters))

	return book, nil
}

// ParseText parses raw text supplied directly (inline imports, unit
// tests). The author string may list several names.
func (p *Parser) ParseText(title, author, text string) *ParsedBook {
	book := &ParsedBook{
		Title:   strings.TrimSpace(title),
		Authors: splitAuthors(author),
		Format:  domain.FormatText,
	}
	if book.Title == "" {
		book.Title = "Untitled"
	}

	if strings.TrimSpace(text) == "" {
		return book
	}

	for _, raw := range splitIntoChapters(normalizeText(text)) {
		if raw.Body == "" {
			continue
		}
		book.Chapters = append(book.Chapters, ParsedChapter{
			Title: raw.Title,
			Pages: splitIntoPages(raw.Body, p.pageSize),
		})
	}

	return book
}

// normalizeText unifies line endings and strips a UTF-8 BOM if present.
func normalizeText(text string) string {
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text
}
