package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/store"
)

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "List books",
		Description: "Returns a paginated list of library books",
		Tags:        []string{"Books"},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}",
		Summary:     "Get book",
		Description: "Returns a book by ID",
		Tags:        []string{"Books"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteBook",
		Method:      http.MethodDelete,
		Path:        "/api/v1/books/{id}",
		Summary:     "Delete book",
		Description: "Deletes a book and all derived data (chapters, analyses, characters, checkpoints)",
		Tags:        []string{"Books"},
	}, s.handleDeleteBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "importFile",
		Method:      http.MethodPost,
		Path:        "/api/v1/imports/file",
		Summary:     "Import ebook file",
		Description: "Imports an ebook from a path on the server filesystem",
		Tags:        []string{"Imports"},
	}, s.handleImportFile)

	huma.Register(s.api, huma.Operation{
		OperationID: "importText",
		Method:      http.MethodPost,
		Path:        "/api/v1/imports/text",
		Summary:     "Import inline text",
		Description: "Imports a book from text supplied in the request body",
		Tags:        []string{"Imports"},
	}, s.handleImportText)

	huma.Register(s.api, huma.Operation{
		OperationID: "importLegacyLibrary",
		Method:      http.MethodPost,
		Path:        "/api/v1/imports/legacy",
		Summary:     "Import legacy library",
		Description: "Imports all books from a legacy SQLite library database",
		Tags:        []string{"Imports"},
	}, s.handleImportLegacy)
}

// === DTOs ===

// BookResponse contains book data in API responses.
type BookResponse struct {
	ID           string    `json:"id" doc:"Book ID"`
	Title        string    `json:"title" doc:"Book title"`
	Subtitle     string    `json:"subtitle,omitempty" doc:"Book subtitle"`
	Authors      []string  `json:"authors,omitempty" doc:"Book authors"`
	Language     string    `json:"language,omitempty" doc:"ISO 639-1 language code"`
	Description  string    `json:"description,omitempty" doc:"Book description"`
	SourceFormat string    `json:"source_format" doc:"Source file format"`
	ChapterCount int       `json:"chapter_count" doc:"Number of chapters"`
	CharCount    int       `json:"char_count" doc:"Total text length in characters"`
	ImportedAt   time.Time `json:"imported_at" doc:"Import time"`
}

func toBookResponse(b *domain.Book) BookResponse {
	return BookResponse{
		ID:           b.ID,
		Title:        b.Title,
		Subtitle:     b.Subtitle,
		Authors:      b.Authors,
		Language:     b.Language,
		Description:  b.Description,
		SourceFormat: string(b.SourceFormat),
		ChapterCount: b.ChapterCount,
		CharCount:    b.CharCount,
		ImportedAt:   b.ImportedAt,
	}
}

// ListBooksInput contains parameters for listing books.
type ListBooksInput struct {
	Limit  int    `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Items per page"`
	Cursor string `query:"cursor" doc:"Opaque pagination cursor"`
}

// ListBooksResponse contains a page of books.
type ListBooksResponse struct {
	Books      []BookResponse `json:"books" doc:"Books on this page"`
	NextCursor string         `json:"next_cursor,omitempty" doc:"Cursor for the next page"`
	HasMore    bool           `json:"has_more" doc:"Whether more pages exist"`
}

// ListBooksOutput wraps the book list for Huma.
type ListBooksOutput struct {
	Body ListBooksResponse
}

// GetBookInput contains parameters for getting a book.
type GetBookInput struct {
	ID string `path:"id" doc:"Book ID"`
}

// BookOutput wraps a single book response for Huma.
type BookOutput struct {
	Body BookResponse
}

// BookDetailResponse is a book plus its analysis summary.
type BookDetailResponse struct {
	BookResponse
	AnalyzedChapters int    `json:"analyzed_chapters" doc:"Chapters with analysis artifacts"`
	AnalysisStatus   string `json:"analysis_status,omitempty" doc:"Status of the book's analysis job, if one exists"`
}

// BookDetailOutput wraps the book detail response for Huma.
type BookDetailOutput struct {
	Body BookDetailResponse
}

// ImportFileRequest is the request body for importing an ebook file.
type ImportFileRequest struct {
	Path string `json:"path" validate:"required" doc:"Absolute path of the ebook on the server"`
}

// ImportFileInput wraps the import request for Huma.
type ImportFileInput struct {
	Body ImportFileRequest
}

// ImportTextRequest is the request body for importing inline text.
type ImportTextRequest struct {
	Title  string `json:"title" validate:"required,max=500" doc:"Book title"`
	Author string `json:"author,omitempty" doc:"Author name(s), comma separated"`
	Text   string `json:"text" validate:"required" doc:"Full book text"`
}

// ImportTextInput wraps the text import request for Huma.
type ImportTextInput struct {
	Body ImportTextRequest
}

// ImportLegacyRequest is the request body for importing a legacy library.
type ImportLegacyRequest struct {
	DBPath string `json:"db_path" validate:"required" doc:"Path of the legacy SQLite database"`
}

// ImportLegacyInput wraps the legacy import request for Huma.
type ImportLegacyInput struct {
	Body ImportLegacyRequest
}

// ImportLegacyResponse reports the outcome of a legacy import.
type ImportLegacyResponse struct {
	Books []BookResponse `json:"books" doc:"Books imported from the legacy database"`
}

// ImportLegacyOutput wraps the legacy import response for Huma.
type ImportLegacyOutput struct {
	Body ImportLegacyResponse
}

// === Handlers ===

func (s *Server) handleListBooks(ctx context.Context, input *ListBooksInput) (*ListBooksOutput, error) {
	params := store.PaginationParams{Limit: input.Limit, Cursor: input.Cursor}
	params.Validate()

	page, err := s.store.ListBooks(ctx, params)
	if err != nil {
		return nil, err
	}

	books := make([]BookResponse, len(page.Items))
	for i, b := range page.Items {
		books[i] = toBookResponse(b)
	}

	return &ListBooksOutput{
		Body: ListBooksResponse{
			Books:      books,
			NextCursor: page.NextCursor,
			HasMore:    page.HasMore,
		},
	}, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *GetBookInput) (*BookDetailOutput, error) {
	book, err := s.store.GetBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	detail := BookDetailResponse{BookResponse: toBookResponse(book)}

	if count, err := s.store.CountAnalysesByBook(ctx, book.ID); err == nil {
		detail.AnalyzedChapters = count
	}
	if job, err := s.store.GetJobByBook(ctx, book.ID); err == nil && job != nil {
		detail.AnalysisStatus = string(job.Status)
	}

	return &BookDetailOutput{Body: detail}, nil
}

func (s *Server) handleDeleteBook(ctx context.Context, input *GetBookInput) (*struct{}, error) {
	if err := s.services.Library.DeleteBook(ctx, input.ID); err != nil {
		return nil, err
	}
	return &struct{}{}, nil
}

func (s *Server) handleImportFile(ctx context.Context, input *ImportFileInput) (*BookOutput, error) {
	if err := s.validate.Validate(input.Body); err != nil {
		return nil, err
	}

	book, err := s.services.Library.ImportFile(ctx, input.Body.Path)
	if err != nil {
		return nil, err
	}

	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleImportText(ctx context.Context, input *ImportTextInput) (*BookOutput, error) {
	if err := s.validate.Validate(input.Body); err != nil {
		return nil, err
	}

	book, err := s.services.Library.ImportText(ctx, input.Body.Title, input.Body.Author, input.Body.Text)
	if err != nil {
		return nil, err
	}

	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleImportLegacy(ctx context.Context, input *ImportLegacyInput) (*ImportLegacyOutput, error) {
	if err := s.validate.Validate(input.Body); err != nil {
		return nil, err
	}

	imported, err := s.services.Library.ImportLegacyLibrary(ctx, input.Body.DBPath)
	if err != nil {
		return nil, err
	}

	books := make([]BookResponse, len(imported))
	for i, b := range imported {
		books[i] = toBookResponse(b)
	}

	return &ImportLegacyOutput{Body: ImportLegacyResponse{Books: books}}, nil
}
