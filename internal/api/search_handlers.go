package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/voxbookapp/voxbook-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search library",
		Description: "Full-text search across books and characters",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// SearchInput contains search query parameters.
type SearchInput struct {
	Query  string `query:"q" minLength:"1" doc:"Search query"`
	Type   string `query:"type" enum:"book,character" doc:"Restrict results to one document type"`
	BookID string `query:"book_id" doc:"Scope character hits to one book"`
	Limit  int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Maximum hits to return"`
	Offset int    `query:"offset" default:"0" minimum:"0" doc:"Hits to skip"`
}

// SearchOutput wraps search results for Huma.
type SearchOutput struct {
	Body search.SearchResult
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	params := search.DefaultSearchParams()
	params.Query = input.Query
	params.BookID = input.BookID
	params.Limit = input.Limit
	params.Offset = input.Offset
	if input.Type != "" {
		params.Types = []string{input.Type}
	}

	result, err := s.services.Search.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	return &SearchOutput{Body: *result}, nil
}
