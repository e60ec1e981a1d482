// Package domain contains the core business entities and domain logic for the VoxBook ebook library.
package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// BookFormat identifies the source file format of an imported book.
type BookFormat string

const (
	FormatText BookFormat = "txt"
	FormatEPUB BookFormat = "epub"
	FormatPDF  BookFormat = "pdf"
)

// SupportedFormats maps file extensions (without dot, lowercase) to formats.
var SupportedFormats = map[string]BookFormat{
	"txt":  FormatText,
	"text": FormatText,
	"epub": FormatEPUB,
	"pdf":  FormatPDF,
}

// FormatForPath returns the book format for a filename, or "" if unsupported.
func FormatForPath(path string) BookFormat {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return SupportedFormats[ext]
}

// Book represents an ebook in the library.
// Chapter text is stored separately (see Chapter); the book record stays
// small so list queries never page chapter content into memory.
type Book struct {
	Syncable
	Title        string     `json:"title"`
	Subtitle     string     `json:"subtitle,omitempty"`
	Authors      []string   `json:"authors,omitempty"`
	Language     string     `json:"language,omitempty"`
	Description  string     `json:"description,omitempty"`
	Publisher    string     `json:"publisher,omitempty"`
	PublishYear  string     `json:"publish_year,omitempty"`
	SourcePath   string     `json:"source_path,omitempty"`
	SourceFormat BookFormat `json:"source_format"`
	// SourceHash fingerprints the source file so re-importing the same
	// file is detected instead of creating a duplicate.
	SourceHash   string    `json:"source_hash,omitempty"`
	ImportedAt   time.Time `json:"imported_at"`
	ChapterCount int       `json:"chapter_count"`
	CharCount    int       `json:"char_count"`
}

// DisplayAuthor returns the authors joined for display, or "Unknown".
func (b *Book) DisplayAuthor() string {
	if len(b.Authors) == 0 {
		return "Unknown"
	}
	out := b.Authors[0]
	for _, a := range b.Authors[1:] {
		out += ", " + a
	}
	return out
}
