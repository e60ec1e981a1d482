package store

import (
	"context"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/normalize"
	"github.com/voxbookapp/voxbook-server/internal/sse"
)

const characterPrefix = "character:"

// characterNameKey builds the identity index value for a character. A
// character is unique per (book, canonical name) pair.
func characterNameKey(bookID, canonicalName string) string {
	return bookID + ":" + canonicalName
}

// CreateCharacter persists a new character record.
// Returns ErrAlreadyExists if the book already has a character with the
// same canonical name.
func (s *Store) CreateCharacter(ctx context.Context, c *domain.Character) error {
	if err := s.Characters.Create(ctx, c.ID, c); err != nil {
		return err
	}

	s.eventEmitter.Emit(sse.NewCharacterCreatedEvent(c))
	s.indexCharacterAsync(c)
	return nil
}

// UpdateCharacter replaces an existing character record.
func (s *Store) UpdateCharacter(ctx context.Context, c *domain.Character) error {
	c.Touch()
	if err := s.Characters.Update(ctx, c.ID, c); err != nil {
		return err
	}

	s.eventEmitter.Emit(sse.NewCharacterUpdatedEvent(c))
	s.indexCharacterAsync(c)
	return nil
}

// GetCharacter retrieves a character by ID.
func (s *Store) GetCharacter(ctx context.Context, id string) (*domain.Character, error) {
	return s.Characters.Get(ctx, id)
}

// GetCharacterByName retrieves a book's character by display or canonical
// name. The lookup is case-insensitive: "ELIZABETH" finds "Elizabeth".
func (s *Store) GetCharacterByName(ctx context.Context, bookID, name string) (*domain.Character, error) {
	return s.Characters.GetByIndex(ctx, "book_name", characterNameKey(bookID, normalize.Key(name)))
}

// ListCharactersByBook returns a book's characters ordered by canonical name.
func (s *Store) ListCharactersByBook(ctx context.Context, bookID string) ([]*domain.Character, error) {
	return s.Characters.ListByIndexPrefix(ctx, "book_name", bookID+":")
}

// DeleteCharacter removes a character by ID. Idempotent.
func (s *Store) DeleteCharacter(ctx context.Context, id string) error {
	if err := s.Characters.Delete(ctx, id); err != nil {
		return err
	}

	if s.searchIndexer != nil {
		go func() {
			if err := s.searchIndexer.DeleteCharacter(context.Background(), id); err != nil {
				if s.logger != nil {
					s.logger.Warn("failed to remove character from search", "character_id", id, "error", err)
				}
			}
		}()
	}
	return nil
}

// DeleteCharactersByBook removes every character belonging to a book.
// Search cleanup is not done here; DeleteBook drops the book's character
// documents in one call.
func (s *Store) DeleteCharactersByBook(ctx context.Context, bookID string) error {
	characters, err := s.ListCharactersByBook(ctx, bookID)
	if err != nil {
		return err
	}

	for _, c := range characters {
		if err := s.Characters.Delete(ctx, c.ID); err != nil {
			return err
		}
	}

	if s.logger != nil && len(characters) > 0 {
		s.logger.Info("characters deleted", "book_id", bookID, "count", len(characters))
	}
	return nil
}

// indexCharacterAsync pushes a character into the search index without
// blocking the store operation that changed it.
func (s *Store) indexCharacterAsync(c *domain.Character) {
	if s.searchIndexer == nil {
		return
	}
	go func() {
		if err := s.searchIndexer.IndexCharacter(context.Background(), c); err != nil {
			if s.logger != nil {
				s.logger.Warn("failed to index character for search", "character_id", c.ID, "error", err)
			}
		}
	}()
}
