package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/search"
	"github.com/voxbookapp/voxbook-server/internal/store"
)

// SearchService provides search functionality across the library.
// It bridges the search index with the data store, handling document
// creation, updates, and query execution. It satisfies store.SearchIndexer,
// so the store can push index updates without depending on this package.
type SearchService struct {
	index  *search.SearchIndex
	store  *store.Store
	logger *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(index *search.SearchIndex, store *store.Store, logger *slog.Logger) *SearchService {
	return &SearchService{
		index:  index,
		store:  store,
		logger: logger,
	}
}

// Search performs a search across books and characters.
func (s *SearchService) Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error) {
	return s.index.Search(ctx, params)
}

// SearchCharacters performs a character search, optionally scoped to one
// book. Quoted dialog matches the speaker, so this answers "who said this".
func (s *SearchService) SearchCharacters(ctx context.Context, query, bookID string, limit int) (*search.SearchResult, error) {
	return s.index.SearchCharacters(ctx, query, bookID, limit)
}

// IndexBook indexes a single book.
// Call this when a book is created or updated.
func (s *SearchService) IndexBook(_ context.Context, book *domain.Book) error {
	doc := search.BookToSearchDocument(book)

	if err := s.index.IndexDocument(doc); err != nil {
		return fmt.Errorf("index document: %w", err)
	}

	s.logger.Debug("indexed book", "id", book.ID, "title", book.Title)
	return nil
}

// DeleteBook removes a book and all of its character documents from the
// index. Characters carry the book's ID, so they go in the same sweep.
func (s *SearchService) DeleteBook(_ context.Context, bookID string) error {
	deleted, err := s.index.DeleteByBook(bookID)
	if err != nil {
		return fmt.Errorf("delete book documents: %w", err)
	}

	s.logger.Debug("removed book from index", "id", bookID, "documents", deleted)
	return nil
}

// IndexCharacter indexes a single character.
// The book title is denormalized into the document; if the book can't be
// fetched the character is still indexed, just without its book's title.
func (s *SearchService) IndexCharacter(ctx context.Context, c *domain.Character) error {
	var bookTitle string
	if book, err := s.store.GetBook(ctx, c.BookID); err != nil {
		s.logger.Warn("failed to fetch book for character index", "character_id", c.ID, "book_id", c.BookID, "error", err)
	} else {
		bookTitle = book.Title
	}

	doc := search.CharacterToSearchDocument(c, bookTitle)

	if err := s.index.IndexDocument(doc); err != nil {
		return fmt.Errorf("index character: %w", err)
	}

	s.logger.Debug("indexed character", "id", c.ID, "name", c.Name)
	return nil
}

// DeleteCharacter removes a character from the index.
func (s *SearchService) DeleteCharacter(_ context.Context, characterID string) error {
	return s.index.DeleteDocument(characterID)
}

// DocumentCount returns the number of indexed documents.
func (s *SearchService) DocumentCount() (uint64, error) {
	return s.index.DocumentCount()
}

// ReindexAll rebuilds the entire search index from the store.
// This is a heavy operation - use sparingly.
func (s *SearchService) ReindexAll(ctx context.Context) error {
	s.logger.Info("starting full reindex")

	// Rebuild index (drops existing)
	if err := s.index.Rebuild(); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	// Index all books, remembering titles for character denormalization
	titles := make(map[string]string)
	bookDocs := make([]*search.SearchDocument, 0, 64)
	for book, err := range s.store.StreamBooks(ctx) {
		if err != nil {
			return fmt.Errorf("stream books: %w", err)
		}
		if book.IsDeleted() {
			continue
		}
		titles[book.ID] = book.Title
		bookDocs = append(bookDocs, search.BookToSearchDocument(book))
	}

	if len(bookDocs) > 0 {
		if err := s.index.IndexDocuments(bookDocs); err != nil {
			return fmt.Errorf("index books: %w", err)
		}
	}
	s.logger.Info("indexed books", "count", len(bookDocs))

	// Index all characters
	charDocs := make([]*search.SearchDocument, 0, 256)
	for c, err := range s.store.StreamCharacters(ctx) {
		if err != nil {
			return fmt.Errorf("stream characters: %w", err)
		}
		if c.IsDeleted() {
			continue
		}
		charDocs = append(charDocs, search.CharacterToSearchDocument(c, titles[c.BookID]))
	}

	if len(charDocs) > 0 {
		if err := s.index.IndexDocuments(charDocs); err != nil {
			return fmt.Errorf("index characters: %w", err)
		}
	}
	s.logger.Info("indexed characters", "count", len(charDocs))

	total, _ := s.index.DocumentCount()
	s.logger.Info("full reindex complete", "total_documents", total)

	return nil
}
