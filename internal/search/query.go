package search

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchParams configures a search query.
type SearchParams struct {
	Query string   // User's search query
	Types []string // Document types to include (empty = all)

	// Filters
	BookID      string   // Scope character hits to a single book
	Traits      []string // Filter characters by trait (OR across traits)
	VoiceGender string   // Filter characters by assigned voice gender
	MinDialogs  int      // Minimum dialog line count (characters only)
	MinYear     int      // Minimum publish year (books only)
	MaxYear     int      // Maximum publish year (books only)

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "relevance", "name", "dialogs", "recent"
	SortOrder string // "asc", "desc"

	// Options
	IncludeFacets bool     // Include facet counts in results
	FacetFields   []string // Which fields to facet on
	Highlight     bool     // Include match highlighting
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:         20,
		Offset:        0,
		SortBy:        "relevance",
		SortOrder:     "desc",
		IncludeFacets: true,
		FacetFields:   []string{"type", "traits", "voice_gender"},
		Highlight:     true,
	}
}

// SearchResult represents the search results.
type SearchResult struct {
	Query  string       `json:"query"`
	Total  uint64       `json:"total"`
	TookMs int64        `json:"took_ms"`
	Hits   []SearchHit  `json:"hits"`
	Facets SearchFacets `json:"facets,omitempty"`
}

// SearchHit represents a single search result.
type SearchHit struct {
	ID           string            `json:"id"`
	Type         DocType           `json:"type"`
	Score        float64           `json:"score"`
	Name         string            `json:"name"`
	Subtitle     string            `json:"subtitle,omitempty"`
	Author       string            `json:"author,omitempty"`
	BookID       string            `json:"book_id,omitempty"`
	BookTitle    string            `json:"book_title,omitempty"`
	Traits       []string          `json:"traits,omitempty"`
	VoiceGender  string            `json:"voice_gender,omitempty"`
	DialogCount  int               `json:"dialog_count,omitempty"`
	ChapterCount int               `json:"chapter_count,omitempty"`
	Highlights   map[string]string `json:"highlights,omitempty"`
}

// SearchFacets contains facet counts.
type SearchFacets struct {
	Types   []FacetCount `json:"types,omitempty"`
	Traits  []FacetCount `json:"traits,omitempty"`
	Genders []FacetCount `json:"genders,omitempty"`
}

// FacetCount represents a facet value and its count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a search query.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Build the query
	searchQuery := buildSearchQuery(params)

	// Create search request
	searchRequest := bleve.NewSearchRequestOptions(searchQuery, params.Limit, params.Offset, false)

	// Add sorting
	addSorting(searchRequest, params)

	// Add facets
	if params.IncludeFacets {
		addFacets(searchRequest, params)
	}

	// Add highlighting
	if params.Highlight {
		searchRequest.Highlight = bleve.NewHighlight()
		searchRequest.Highlight.AddField("name")
		searchRequest.Highlight.AddField("book_title")
		searchRequest.Highlight.AddField("dialog")
	}

	// Request stored fields
	searchRequest.Fields = []string{
		"id", "type", "name", "subtitle", "author", "book_id",
		"book_title", "traits", "voice_gender", "dialog_count", "chapter_count",
	}

	// Execute search
	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	// Convert results
	result := &SearchResult{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		searchHit := SearchHit{
			ID:    hit.ID,
			Score: hit.Score,
		}

		// Extract stored fields
		if t, ok := hit.Fields["type"].(string); ok {
			searchHit.Type = DocType(t)
		}
		if n, ok := hit.Fields["name"].(string); ok {
			searchHit.Name = n
		}
		if st, ok := hit.Fields["subtitle"].(string); ok {
			searchHit.Subtitle = st
		}
		if a, ok := hit.Fields["author"].(string); ok {
			searchHit.Author = a
		}
		if bid, ok := hit.Fields["book_id"].(string); ok {
			searchHit.BookID = bid
		}
		if bt, ok := hit.Fields["book_title"].(string); ok {
			searchHit.BookTitle = bt
		}
		if vg, ok := hit.Fields["voice_gender"].(string); ok {
			searchHit.VoiceGender = vg
		}
		if dc, ok := hit.Fields["dialog_count"].(float64); ok {
			searchHit.DialogCount = int(dc)
		}
		if cc, ok := hit.Fields["chapter_count"].(float64); ok {
			searchHit.ChapterCount = int(cc)
		}

		// Multi-value stored fields come back as a bare string when the
		// document has exactly one value.
		switch tv := hit.Fields["traits"].(type) {
		case string:
			searchHit.Traits = []string{tv}
		case []interface{}:
			for _, item := range tv {
				if trait, ok := item.(string); ok {
					searchHit.Traits = append(searchHit.Traits, trait)
				}
			}
		}

		// Extract highlights
		if len(hit.Fragments) > 0 {
			searchHit.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					searchHit.Highlights[field] = fragments[0]
				}
			}
		}

		result.Hits = append(result.Hits, searchHit)
	}

	// Extract facets
	if params.IncludeFacets {
		result.Facets = extractFacets(searchResult)
	}

	return result, nil
}

// SearchCharacters finds characters matching the given text, optionally
// scoped to a single book. Convenience wrapper for the common
// "who said this" lookup.
func (s *SearchIndex) SearchCharacters(ctx context.Context, text, bookID string, limit int) (*SearchResult, error) {
	params := DefaultSearchParams()
	params.Query = text
	params.Types = []string{string(DocTypeCharacter)}
	params.BookID = bookID
	params.IncludeFacets = false
	if limit > 0 {
		params.Limit = limit
	}
	return s.Search(ctx, params)
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	// Main text query
	// Search strategy:
	// - Books: match on title (name) and author
	// - Characters: match on name, their book's title, and their dialog
	//   sample, so quoting a line finds its speaker.
	if params.Query != "" {
		textQueries := []query.Query{}

		// Name/title match with highest boost
		nameMatch := bleve.NewMatchQuery(params.Query)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)
		textQueries = append(textQueries, nameMatch)

		// Book title match (for characters of a known book)
		bookTitleMatch := bleve.NewMatchQuery(params.Query)
		bookTitleMatch.SetField("book_title")
		bookTitleMatch.SetBoost(1.5)
		textQueries = append(textQueries, bookTitleMatch)

		// Author match
		authorMatch := bleve.NewMatchQuery(params.Query)
		authorMatch.SetField("author")
		authorMatch.SetBoost(1.5)
		textQueries = append(textQueries, authorMatch)

		// Dialog match, ranked below identity fields so a character's own
		// name always beats another character quoting it
		dialogMatch := bleve.NewMatchQuery(params.Query)
		dialogMatch.SetField("dialog")
		dialogMatch.SetBoost(1.2)
		textQueries = append(textQueries, dialogMatch)

		// Add fuzzy matching for typo tolerance on name
		fuzzyQuery := bleve.NewFuzzyQuery(params.Query)
		fuzzyQuery.SetFuzziness(1)
		fuzzyQuery.SetField("name")
		fuzzyQuery.SetBoost(0.8)
		textQueries = append(textQueries, fuzzyQuery)

		// Prefix query for autocomplete (minimum 2 chars)
		if len(params.Query) >= 2 {
			prefixQuery := bleve.NewPrefixQuery(strings.ToLower(params.Query))
			prefixQuery.SetField("name")
			prefixQuery.SetBoost(0.5)
			textQueries = append(textQueries, prefixQuery)
		}

		// Combine with OR (match any field)
		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	// Type filter
	if len(params.Types) > 0 {
		typeQueries := make([]query.Query, len(params.Types))
		for i, t := range params.Types {
			tq := bleve.NewTermQuery(t)
			tq.SetField("type")
			typeQueries[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(typeQueries...))
	}

	// Book scope filter (exact match)
	if params.BookID != "" {
		bq := bleve.NewTermQuery(params.BookID)
		bq.SetField("book_id")
		queries = append(queries, bq)
	}

	// Trait filter (exact match, OR across traits)
	if len(params.Traits) > 0 {
		traitQueries := make([]query.Query, len(params.Traits))
		for i, trait := range params.Traits {
			tq := bleve.NewTermQuery(strings.ToLower(trait))
			tq.SetField("traits")
			traitQueries[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(traitQueries...))
	}

	// Voice gender filter
	if params.VoiceGender != "" {
		gq := bleve.NewTermQuery(strings.ToLower(params.VoiceGender))
		gq.SetField("voice_gender")
		queries = append(queries, gq)
	}

	// Dialog count filter (characters with enough lines to voice)
	if params.MinDialogs > 0 {
		min := float64(params.MinDialogs)
		max := math.MaxFloat64
		rangeQuery := bleve.NewNumericRangeQuery(&min, &max)
		rangeQuery.SetField("dialog_count")
		queries = append(queries, rangeQuery)
	}

	// Year range filter
	if params.MinYear > 0 || params.MaxYear > 0 {
		min := float64(params.MinYear)
		max := float64(params.MaxYear)
		if params.MaxYear == 0 {
			max = 3000 // Far future
		}
		rangeQuery := bleve.NewNumericRangeQuery(&min, &max)
		rangeQuery.SetField("publish_year")
		queries = append(queries, rangeQuery)
	}

	// Combine all queries with AND
	if len(queries) == 0 {
		return bleve.NewMatchAllQuery()
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

// addSorting configures result ordering.
func addSorting(req *bleve.SearchRequest, params SearchParams) {
	switch params.SortBy {
	case "name":
		if params.SortOrder == "desc" {
			req.SortBy([]string{"-name"})
		} else {
			req.SortBy([]string{"name"})
		}
	case "dialogs":
		if params.SortOrder == "asc" {
			req.SortBy([]string{"dialog_count"})
		} else {
			req.SortBy([]string{"-dialog_count"})
		}
	case "recent":
		if params.SortOrder == "asc" {
			req.SortBy([]string{"created_at"})
		} else {
			req.SortBy([]string{"-created_at"})
		}
	default:
		// Relevance (default)
		req.SortBy([]string{"-_score"})
	}
}

// addFacets configures facet requests.
func addFacets(req *bleve.SearchRequest, params SearchParams) {
	for _, field := range params.FacetFields {
		facetReq := bleve.NewFacetRequest(field, 20) // Top 20 values
		req.AddFacet(field, facetReq)
	}
}

// extractFacets converts Bleve facets to our format.
func extractFacets(result *bleve.SearchResult) SearchFacets {
	facets := SearchFacets{}

	if typeFacet, ok := result.Facets["type"]; ok {
		for _, term := range typeFacet.Terms.Terms() {
			facets.Types = append(facets.Types, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	if traitFacet, ok := result.Facets["traits"]; ok {
		for _, term := range traitFacet.Terms.Terms() {
			facets.Traits = append(facets.Traits, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	if genderFacet, ok := result.Facets["voice_gender"]; ok {
		for _, term := range genderFacet.Terms.Terms() {
			facets.Genders = append(facets.Genders, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	return facets
}
