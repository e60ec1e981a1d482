// Package search provides full-text search over the library using Bleve.
// Books and merged characters share a single index with type
// discrimination, so one query surface answers both "which book is this"
// and "who said this line".
package search

import (
	"strconv"
	"strings"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

// DocType represents the type of document in the unified index.
type DocType string

// Document types for the search index.
const (
	DocTypeBook      DocType = "book"
	DocTypeCharacter DocType = "character"
)

// dialogSampleLimit caps how many dialog lines feed a character document.
// Dialog text is what makes "who said this" queries work; indexing a
// protagonist's every line would bloat the index without improving recall.
const dialogSampleLimit = 200

// SearchDocument is the unified document structure for the Bleve index.
//
// Design note: character documents denormalize their book's title plus the
// character's traits and a dialog sample, so one query matches spoken lines
// and character names without touching the store. The trade-off is index
// size for query speed; dialogSampleLimit bounds the cost.
type SearchDocument struct {
	// Identity
	ID   string  `json:"id"`   // Original entity ID (book_xxx, char_xxx)
	Type DocType `json:"type"` // Discriminator for result grouping

	// Primary searchable text: book title or character name.
	Name string `json:"name"`

	// Book-specific fields (empty for characters)
	Subtitle    string `json:"subtitle,omitempty"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"` // Joined display form
	Publisher   string `json:"publisher,omitempty"`
	Language    string `json:"language,omitempty"`
	Format      string `json:"format,omitempty"` // txt, epub, pdf

	// Character-specific fields (empty for books)
	BookID      string   `json:"book_id,omitempty"`    // Scopes hits to a book
	BookTitle   string   `json:"book_title,omitempty"` // Denormalized for search
	Traits      []string `json:"traits,omitempty"`
	Dialog      string   `json:"dialog,omitempty"` // Concatenated line sample
	VoiceGender string   `json:"voice_gender,omitempty"`
	VoiceAge    string   `json:"voice_age,omitempty"`

	// Numeric fields for range queries and sorting
	DialogCount  int `json:"dialog_count,omitempty"`
	ChapterCount int `json:"chapter_count,omitempty"` // Books: chapters; characters: chapters appeared in
	PublishYear  int `json:"publish_year,omitempty"`  // Books only

	// Timestamps for sorting
	CreatedAt int64 `json:"created_at"` // Unix millis
	UpdatedAt int64 `json:"updated_at"` // Unix millis
}

// ToMap converts the document to a map with lowercase field names.
// Bleve by default uses Go struct field names (capitalized), but the
// mapping uses lowercase names, so we convert explicitly.
func (d *SearchDocument) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":         d.ID,
		"type":       string(d.Type),
		"name":       d.Name,
		"created_at": d.CreatedAt,
		"updated_at": d.UpdatedAt,
	}

	if d.Subtitle != "" {
		m["subtitle"] = d.Subtitle
	}
	if d.Description != "" {
		m["description"] = d.Description
	}
	if d.Author != "" {
		m["author"] = d.Author
	}
	if d.Publisher != "" {
		m["publisher"] = d.Publisher
	}
	if d.Language != "" {
		m["language"] = d.Language
	}
	if d.Format != "" {
		m["format"] = d.Format
	}
	if d.BookID != "" {
		m["book_id"] = d.BookID
	}
	if d.BookTitle != "" {
		m["book_title"] = d.BookTitle
	}
	if len(d.Traits) > 0 {
		m["traits"] = d.Traits
	}
	if d.Dialog != "" {
		m["dialog"] = d.Dialog
	}
	if d.VoiceGender != "" {
		m["voice_gender"] = d.VoiceGender
	}
	if d.VoiceAge != "" {
		m["voice_age"] = d.VoiceAge
	}
	if d.DialogCount > 0 {
		m["dialog_count"] = d.DialogCount
	}
	if d.ChapterCount > 0 {
		m["chapter_count"] = d.ChapterCount
	}
	if d.PublishYear > 0 {
		m["publish_year"] = d.PublishYear
	}

	return m
}

// BookToSearchDocument converts a domain Book to a SearchDocument.
// Authors join to one searchable string; an authorless book indexes no
// author at all rather than a placeholder that would match real queries.
func BookToSearchDocument(book *domain.Book) *SearchDocument {
	doc := &SearchDocument{
		ID:           book.ID,
		Type:         DocTypeBook,
		Name:         book.Title,
		Subtitle:     book.Subtitle,
		Description:  book.Description,
		Author:       strings.Join(book.Authors, ", "),
		Publisher:    book.Publisher,
		Language:     book.Language,
		Format:       string(book.SourceFormat),
		ChapterCount: book.ChapterCount,
		CreatedAt:    book.CreatedAt.UnixMilli(),
		UpdatedAt:    book.UpdatedAt.UnixMilli(),
	}

	if book.PublishYear != "" {
		if year, err := strconv.Atoi(book.PublishYear); err == nil {
			doc.PublishYear = year
		}
	}

	return doc
}

// CharacterToSearchDocument converts a merged character record to a
// SearchDocument. The book title must be provided by the caller, as the
// search package shouldn't depend on store.
// Traits are lowercased so the keyword-analyzed traits field filters
// case-insensitively regardless of how the model capitalized them.
func CharacterToSearchDocument(c *domain.Character, bookTitle string) *SearchDocument {
	traits := make([]string, 0, len(c.Traits))
	for _, t := range c.Traits {
		traits = append(traits, strings.ToLower(t))
	}

	doc := &SearchDocument{
		ID:           c.ID,
		Type:         DocTypeCharacter,
		Name:         c.Name,
		BookID:       c.BookID,
		BookTitle:    bookTitle,
		Traits:       traits,
		Dialog:       dialogSample(c.Dialogs),
		DialogCount:  len(c.Dialogs),
		ChapterCount: len(c.ChapterIDs),
		CreatedAt:    c.CreatedAt.UnixMilli(),
		UpdatedAt:    c.UpdatedAt.UnixMilli(),
	}

	if c.Voice != nil {
		doc.VoiceGender = c.Voice.Gender
		doc.VoiceAge = c.Voice.Age
	}

	return doc
}

// dialogSample joins up to dialogSampleLimit lines into one searchable
// blob. Lines keep narrative order so phrase queries still work.
func dialogSample(dialogs []domain.DialogLine) string {
	if len(dialogs) == 0 {
		return ""
	}

	limit := len(dialogs)
	if limit > dialogSampleLimit {
		limit = dialogSampleLimit
	}

	var sb strings.Builder
	for i := 0; i < limit; i++ {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(dialogs[i].Text)
	}
	return sb.String()
}
