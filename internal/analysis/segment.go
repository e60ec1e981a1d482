// Package analysis implements the chapter analysis pipeline primitives:
// paragraph segmentation, token-budget batching, content fingerprinting,
// model output parsing, and incremental merging of per-batch extractions.
//
// Everything here is pure computation. Storage, model calls, and
// orchestration live in store, model, and executor respectively.
package analysis

import (
	"regexp"
	"strings"

	"github.com/voxbookapp/voxbook-server/internal/normalize"
)

// Paragraph is one segmentation unit of a chapter, with page provenance.
// Immutable once produced.
type Paragraph struct {
	Index      int
	Text       string
	SourcePage int // 1-based
}

// paragraphSplit matches blank-line boundaries between paragraphs.
var paragraphSplit = regexp.MustCompile(`\n[ \t]*\n+`)

// Segment splits chapter pages into paragraphs. Text is cleaned
// (line endings, invisible runes) and split on blank-line boundaries;
// hard-wrapped lines inside a paragraph collapse to single spaces.
//
// The second return value holds, for each page, the index of its first
// paragraph, so a paragraph range maps back to a page range.
func Segment(pages []string) ([]Paragraph, []int) {
	paragraphs := make([]Paragraph, 0, 64)
	boundaries := make([]int, len(pages))

	for pageIdx, page := range pages {
		boundaries[pageIdx] = len(paragraphs)

		cleaned := normalize.Text(page)
		for _, block := range paragraphSplit.Split(cleaned, -1) {
			text := strings.Join(strings.Fields(block), " ")
			if text == "" {
				continue
			}
			paragraphs = append(paragraphs, Paragraph{
				Index:      len(paragraphs),
				Text:       text,
				SourcePage: pageIdx + 1,
			})
		}
	}

	return paragraphs, boundaries
}

// PageRange returns the 1-based source pages covered by the paragraph range
// [start, end). Returns (0, 0) for an empty range.
func PageRange(paragraphs []Paragraph, start, end int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > len(paragraphs) {
		end = len(paragraphs)
	}
	if start >= end {
		return 0, 0
	}
	return paragraphs[start].SourcePage, paragraphs[end-1].SourcePage
}
