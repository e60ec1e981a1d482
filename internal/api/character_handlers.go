package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

func (s *Server) registerCharacterRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBookCharacters",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}/characters",
		Summary:     "List book characters",
		Description: "Returns the merged character records accumulated from completed chapter analyses",
		Tags:        []string{"Characters"},
	}, s.handleListBookCharacters)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCharacter",
		Method:      http.MethodGet,
		Path:        "/api/v1/characters/{id}",
		Summary:     "Get character",
		Description: "Returns a character by ID, including all attributed dialog",
		Tags:        []string{"Characters"},
	}, s.handleGetCharacter)
}

// === DTOs ===

// DialogLineResponse is one attributed dialog line.
type DialogLineResponse struct {
	ChapterIndex int    `json:"chapter_index" doc:"Chapter the line came from"`
	Text         string `json:"text" doc:"Spoken text"`
}

// CharacterResponse contains a merged character record.
type CharacterResponse struct {
	ID            string               `json:"id" doc:"Character ID"`
	BookID        string               `json:"book_id" doc:"Owning book ID"`
	Name          string               `json:"name" doc:"Display name as first extracted"`
	CanonicalName string               `json:"canonical_name" doc:"Case-folded identity key"`
	Traits        []string             `json:"traits,omitempty" doc:"Personality traits across chapters"`
	Dialogs       []DialogLineResponse `json:"dialogs,omitempty" doc:"Attributed dialog in chapter order"`
	Voice         *domain.VoiceProfile `json:"voice,omitempty" doc:"Merged voice profile"`
	ChapterIDs    []string             `json:"chapter_ids,omitempty" doc:"Chapters the character appears in"`
	DialogCount   int                  `json:"dialog_count" doc:"Total attributed dialog lines"`
}

func toCharacterResponse(c *domain.Character, includeDialogs bool) CharacterResponse {
	resp := CharacterResponse{
		ID:            c.ID,
		BookID:        c.BookID,
		Name:          c.Name,
		CanonicalName: c.CanonicalName,
		Traits:        c.Traits,
		Voice:         c.Voice,
		ChapterIDs:    c.ChapterIDs,
		DialogCount:   len(c.Dialogs),
	}
	if includeDialogs {
		resp.Dialogs = make([]DialogLineResponse, len(c.Dialogs))
		for i, d := range c.Dialogs {
			resp.Dialogs[i] = DialogLineResponse{ChapterIndex: d.ChapterIndex, Text: d.Text}
		}
	}
	return resp
}

// ListCharactersResponse contains a book's characters.
type ListCharactersResponse struct {
	Characters []CharacterResponse `json:"characters" doc:"Characters merged so far"`
}

// ListCharactersOutput wraps the character list for Huma.
type ListCharactersOutput struct {
	Body ListCharactersResponse
}

// GetCharacterInput contains parameters for getting a character.
type GetCharacterInput struct {
	ID string `path:"id" doc:"Character ID"`
}

// CharacterOutput wraps a character response for Huma.
type CharacterOutput struct {
	Body CharacterResponse
}

// === Handlers ===

func (s *Server) handleListBookCharacters(ctx context.Context, input *GetBookInput) (*ListCharactersOutput, error) {
	if _, err := s.store.GetBook(ctx, input.ID); err != nil {
		return nil, err
	}

	characters, err := s.store.ListCharactersByBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	// Dialog lines are omitted from the list view; a long book's characters
	// can carry thousands of them.
	resp := make([]CharacterResponse, len(characters))
	for i, c := range characters {
		resp[i] = toCharacterResponse(c, false)
	}

	return &ListCharactersOutput{Body: ListCharactersResponse{Characters: resp}}, nil
}

func (s *Server) handleGetCharacter(ctx context.Context, input *GetCharacterInput) (*CharacterOutput, error) {
	character, err := s.store.GetCharacter(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	resp := toCharacterResponse(character, true)
	return &CharacterOutput{Body: resp}, nil
}
