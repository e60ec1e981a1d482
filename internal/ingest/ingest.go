// Package ingest turns source documents (plain text, EPUB, PDF, legacy
// library databases) into parsed books: metadata plus per-chapter page
// text ready for storage and analysis.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/errors"
)

// defaultPageSize is the target page length in characters. Pages split at
// word boundaries, so actual pages run slightly short.
const defaultPageSize = 10000

// ParsedBook is the format-independent result of parsing a source document.
type ParsedBook struct {
	Title       string
	Authors     []string
	Language    string
	Description string
	Publisher   string
	PublishYear string
	Format      domain.BookFormat
	Chapters    []ParsedChapter
}

// ParsedChapter holds one chapter's title and paginated text.
type ParsedChapter struct {
	Title string
	Pages []string
}

// CharCount returns the total character count across all chapter pages.
func (b *ParsedBook) CharCount() int {
	total := 0
	for _, ch := range b.Chapters {
		for _, page := range ch.Pages {
			total += utf8.RuneCountInString(page)
		}
	}
	return total
}

// Parser parses source documents into books.
type Parser struct {
	logger   *slog.Logger
	pageSize int
}

// NewParser creates a document parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Parser{
		logger:   logger,
		pageSize: defaultPageSize,
	}
}

// Parse reads the document at path, dispatching on its extension.
// Returns ErrValidation for unsupported extensions and ErrNoContent when
// the document yields no usable text.
func (p *Parser) Parse(path string) (*ParsedBook, error) {
	format := domain.FormatForPath(path)

	switch format {
	case domain.FormatText:
		return p.parseTextFile(path)
	case domain.FormatEPUB:
		return p.parseEPUB(path)
	case domain.FormatPDF:
		return p.parsePDF(path)
	default:
		return nil, errors.Validationf("unsupported format %q", filepath.Ext(path))
	}
}

// chapterHeadingPattern finds "Chapter N" style headings in running text.
// The leading \s* lets a heading match across the blank lines that
// typically precede it.
var chapterHeadingPattern = regexp.MustCompile(`(?im)^\s*(chapter\s+\d+|chapter\s+[a-z]+)\s*[:\-]?[ \t]*`)

// rawChapter is an intermediate chapter before pagination.
type rawChapter struct {
	Title string
	Body  string
}

// splitIntoChapters splits running text at chapter headings. Text before
// the first heading (title page, front matter) is dropped. When no
// headings are found, the whole text becomes a single chapter.
func splitIntoChapters(text string) []rawChapter {
	matches := chapterHeadingPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []rawChapter{{Title: "Full book", Body: strings.TrimSpace(text)}}
	}

	var chapters []rawChapter
	for i, m := range matches {
		start := m[0]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		title := strings.TrimSpace(text[m[2]:m[3]])
		body := strings.TrimSpace(text[start:end])
		if body != "" {
			chapters = append(chapters, rawChapter{Title: title, Body: body})
		}
	}

	if len(chapters) == 0 {
		return []rawChapter{{Title: "Full book", Body: strings.TrimSpace(text)}}
	}
	return chapters
}

// splitIntoPages splits text into pages of roughly pageSize characters,
// breaking at word boundaries so no word straddles a page.
func splitIntoPages(text string, pageSize int) []string {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var pages []string
	start := 0
	for start < len(text) {
		end := start + pageSize
		if end >= len(text) {
			end = len(text)
		} else if lastSpace := strings.LastIndex(text[start:end], " "); lastSpace > 0 {
			end = start + lastSpace
		} else {
			// No space to break at: hard split, but not mid-rune
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				end = start + pageSize
			}
		}
		pages = append(pages, text[start:end])
		start = end
	}

	if len(pages) == 0 {
		return []string{text}
	}
	return pages
}

// pageHeadingPattern decides whether a page's first line starts a new
// chapter. Broader than chapterHeadingPattern: page-per-chapter layouts
// use parts, prologues, and numbered headings too.
var pageHeadingPattern = regexp.MustCompile(`(?i)^\s*(?:chapter\s+\d+|chapter\s+[a-z\s]+|part\s+[one\d\s]+|#+\s*.+|prologue|epilogue|foreword|introduction|\d+[.)]\s+.+)\s*$`)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// detectChaptersFromPages groups already-paginated text (PDF pages) into
// chapters by looking for a heading on the first line of each page. The
// original page boundaries are preserved inside each chapter.
func detectChaptersFromPages(pages []string) []ParsedChapter {
	if len(pages) == 0 {
		return nil
	}

	starts := []int{0}
	for i := 1; i < len(pages); i++ {
		line := firstLine(pages[i], 200)
		if line != "" && pageHeadingPattern.MatchString(line) {
			starts = append(starts, i)
		}
	}
	starts = append(starts, len(pages))

	var chapters []ParsedChapter
	for k := 0; k < len(starts)-1; k++ {
		span := pages[starts[k]:starts[k+1]]

		cleaned := make([]string, 0, len(span))
		for _, page := range span {
			page = strings.TrimSpace(page)
			page = excessNewlines.ReplaceAllString(page, "\n\n")
			if page != "" {
				cleaned = append(cleaned, page)
			}
		}
		if len(cleaned) == 0 {
			continue
		}

		title := firstLine(cleaned[0], 80)
		if title == "" {
			title = fmt.Sprintf("Chapter %d", k+1)
		}

		chapters = append(chapters, ParsedChapter{Title: title, Pages: cleaned})
	}

	return chapters
}

// firstLine returns the first non-empty line of text, truncated to max
// characters.
func firstLine(text string, max int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > max {
			runes := []rune(line)
			return string(runes[:max])
		}
		return line
	}
	return ""
}

// titleFromFilename derives a display title from a file path:
// "pride_and-prejudice.epub" becomes "Pride And Prejudice".
func titleFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)

	words := strings.Fields(base)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
		}
	}
	if len(words) == 0 {
		return "Untitled"
	}
	return strings.Join(words, " ")
}

// splitAuthors splits a metadata author string on the separators EPUB
// producers actually use.
func splitAuthors(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == '&'
	})
	if len(parts) == 1 && strings.Contains(s, ", ") && strings.Count(s, ",") > 1 {
		// "Austen, Jane" is one author but "A, B, C" is a list
		parts = strings.Split(s, ",")
	}

	var authors []string
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			authors = append(authors, part)
		}
	}
	return authors
}
