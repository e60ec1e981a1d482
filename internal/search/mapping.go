package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for search documents.
//
// The mapping is designed with these priorities:
//  1. Fast full-text search on titles and character names with English
//     stemming
//  2. Dialog text searchable so a quoted line finds its speaker
//  3. Exact keyword matching for type, book, trait, and voice filters
//  4. Numeric range queries for dialog counts and publish year
//  5. Term vectors enabled on key fields for highlighting
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	// Use English analyzer as default for text fields
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	// --- Text fields (full-text searchable) ---

	// Name field - primary search target, boosted
	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = en.AnalyzerName
	nameFieldMapping.Store = true
	nameFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	// Subtitle - searchable text
	subtitleFieldMapping := bleve.NewTextFieldMapping()
	subtitleFieldMapping.Analyzer = en.AnalyzerName
	subtitleFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("subtitle", subtitleFieldMapping)

	// Description - searchable but not stored (too large)
	descFieldMapping := bleve.NewTextFieldMapping()
	descFieldMapping.Analyzer = en.AnalyzerName
	descFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("description", descFieldMapping)

	// Author - searchable, important for book search
	authorFieldMapping := bleve.NewTextFieldMapping()
	authorFieldMapping.Analyzer = en.AnalyzerName
	authorFieldMapping.Store = true
	authorFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("author", authorFieldMapping)

	// Book title on character documents - searchable
	bookTitleFieldMapping := bleve.NewTextFieldMapping()
	bookTitleFieldMapping.Analyzer = en.AnalyzerName
	bookTitleFieldMapping.Store = true
	bookTitleFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("book_title", bookTitleFieldMapping)

	// Dialog sample - stored with term vectors so a quote query can return
	// the matching line highlighted, not just the speaker. The sample is
	// capped at dialogSampleLimit lines; the store keeps the full set.
	dialogFieldMapping := bleve.NewTextFieldMapping()
	dialogFieldMapping.Analyzer = en.AnalyzerName
	dialogFieldMapping.Store = true
	dialogFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("dialog", dialogFieldMapping)

	// Publisher - searchable with simple analyzer (no stemming)
	publisherFieldMapping := bleve.NewTextFieldMapping()
	publisherFieldMapping.Analyzer = simple.Name
	publisherFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("publisher", publisherFieldMapping)

	// --- Keyword fields (exact match, facetable) ---

	// Type - for filtering by document type
	typeFieldMapping := bleve.NewTextFieldMapping()
	typeFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("type", typeFieldMapping)

	// ID - stored but not analyzed
	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	// Book ID - scopes character hits to one book
	bookIDFieldMapping := bleve.NewTextFieldMapping()
	bookIDFieldMapping.Analyzer = keyword.Name
	bookIDFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("book_id", bookIDFieldMapping)

	// Language / format - exact filters on books
	languageFieldMapping := bleve.NewTextFieldMapping()
	languageFieldMapping.Analyzer = keyword.Name
	languageFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("language", languageFieldMapping)

	formatFieldMapping := bleve.NewTextFieldMapping()
	formatFieldMapping.Analyzer = keyword.Name
	formatFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("format", formatFieldMapping)

	// Traits - keyword analyzer keeps compound traits intact
	// (e.g., "soft-spoken")
	traitsFieldMapping := bleve.NewTextFieldMapping()
	traitsFieldMapping.Analyzer = keyword.Name
	traitsFieldMapping.Store = true
	traitsFieldMapping.IncludeTermVectors = true // For faceting
	docMapping.AddFieldMappingsAt("traits", traitsFieldMapping)

	// Voice fields - exact filters and facets over extracted profiles
	voiceGenderFieldMapping := bleve.NewTextFieldMapping()
	voiceGenderFieldMapping.Analyzer = keyword.Name
	voiceGenderFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("voice_gender", voiceGenderFieldMapping)

	voiceAgeFieldMapping := bleve.NewTextFieldMapping()
	voiceAgeFieldMapping.Analyzer = keyword.Name
	voiceAgeFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("voice_age", voiceAgeFieldMapping)

	// --- Numeric fields (range queries, sorting) ---

	// Dialog count - for "characters with enough lines to voice" filters
	dialogCountFieldMapping := bleve.NewNumericFieldMapping()
	dialogCountFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("dialog_count", dialogCountFieldMapping)

	// Chapter count - for sorting
	chapterCountFieldMapping := bleve.NewNumericFieldMapping()
	chapterCountFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("chapter_count", chapterCountFieldMapping)

	// Publish year - for range filtering
	yearFieldMapping := bleve.NewNumericFieldMapping()
	yearFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("publish_year", yearFieldMapping)

	// Timestamps - for sorting by recency
	createdAtFieldMapping := bleve.NewNumericFieldMapping()
	createdAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("created_at", createdAtFieldMapping)

	updatedAtFieldMapping := bleve.NewNumericFieldMapping()
	updatedAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("updated_at", updatedAtFieldMapping)

	// Register the document mapping
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
