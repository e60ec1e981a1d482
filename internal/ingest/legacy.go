package ingest

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotLegacyLibrary marks a database that is not a VoxBook Android
// library export.
var ErrNotLegacyLibrary = errors.New("not a voxbook library database")

// legacyBook mirrors a row of the Android app's Room `books` table.
type legacyBook struct {
	ID       string
	Title    string
	Author   string
	Language string
}

// legacyChapter mirrors a row of the Room `chapters` table.
type legacyChapter struct {
	Title   string
	Content string
}

// ParseLegacyLibrary reads a library database exported by the VoxBook
// Android app and returns its books with paginated chapter text.
//
// The app kept everything in a Room database (camelCase columns):
//
//	books    (id, title, author, language, createdAt)
//	chapters (id, bookId, chapterIndex, title, content)
func (p *Parser) ParseLegacyLibrary(path string) ([]*ParsedBook, error) {
	start := time.Now()
	p.logger.Info("parsing legacy library", "path", path)

	// modernc.org/sqlite - pure Go, no CGO
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := checkLegacySchema(db); err != nil {
		return nil, err
	}

	legacyBooks, err := parseLegacyBooks(db)
	if err != nil {
		return nil, fmt.Errorf("parse books: %w", err)
	}

	var books []*ParsedBook
	for _, lb := range legacyBooks {
		chapters, err := parseLegacyChapters(db, lb.ID)
		if err != nil {
			return nil, fmt.Errorf("parse chapters for %s: %w", lb.ID, err)
		}

		book := &ParsedBook{
			Title:    strings.TrimSpace(lb.Title),
			Authors:  splitAuthors(lb.Author),
			Language: strings.TrimSpace(lb.Language),
			Format:   domain.FormatText,
		}
		if book.Title == "" {
			book.Title = "Untitled"
		}

		for i, ch := range chapters {
			// Chapters imported from EPUBs on the device kept their markup
			text := strings.TrimSpace(htmlToMarkdown(ch.Content))
			if text == "" {
				continue
			}
			title := strings.TrimSpace(ch.Title)
			if title == "" {
				title = fmt.Sprintf("Chapter %d", i+1)
			}
			book.Chapters = append(book.Chapters, ParsedChapter{
				Title: title,
				Pages: splitIntoPages(text, p.pageSize),
			})
		}

		if len(book.Chapters) == 0 {
			p.logger.Warn("skipping legacy book with no text", "id", lb.ID, "title", lb.Title)
			continue
		}
		books = append(books, book)
	}

	p.logger.Info("legacy library parsed",
		"path", path,
		"books", len(books),
		"duration", time.Since(start))

	return books, nil
}

// checkLegacySchema verifies the Room tables exist before querying them,
// so an arbitrary SQLite file fails with a clear error.
func checkLegacySchema(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('books', 'chapters')`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotLegacyLibrary, err)
	}
	defer rows.Close()

	found := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		found++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if found != 2 {
		return fmt.Errorf("%w: missing books/chapters tables", ErrNotLegacyLibrary)
	}
	return nil
}

func parseLegacyBooks(db *sql.DB) ([]legacyBook, error) {
	rows, err := db.Query(`
		SELECT id, COALESCE(title, ''), COALESCE(author, ''), COALESCE(language, '')
		FROM books
		ORDER BY COALESCE(createdAt, 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []legacyBook
	for rows.Next() {
		var b legacyBook
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Language); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func parseLegacyChapters(db *sql.DB, bookID string) ([]legacyChapter, error) {
	rows, err := db.Query(`
		SELECT COALESCE(title, ''), COALESCE(content, '')
		FROM chapters
		WHERE bookId = ?
		ORDER BY chapterIndex`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []legacyChapter
	for rows.Next() {
		var c legacyChapter
		if err := rows.Scan(&c.Title, &c.Content); err != nil {
			return nil, err
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}
