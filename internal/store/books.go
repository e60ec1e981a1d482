package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

const (
	bookPrefix       = "book:"
	bookByPathPrefix = "idx:books:path:"
	bookByHashPrefix = "idx:books:hash:"
)

// Book Operations

// CreateBook creates a new book
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	key := []byte(bookPrefix + book.ID)

	// Check if it already exists
	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check book exists: %w", err)
	}
	if exists {
		return ErrAlreadyExists
	}

	// Use transaction to create book indices atomically
	err = s.db.Update(func(txn *badger.Txn) error {
		// Save book
		data, err := json.Marshal(book)
		if err != nil {
			return fmt.Errorf("marshal book: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}

		// Create path index (legacy imports have no source path)
		if book.SourcePath != "" {
			pathKey := []byte(bookByPathPrefix + book.SourcePath)
			if err := txn.Set(pathKey, []byte(book.ID)); err != nil {
				return err
			}
		}

		// Create source hash index (for duplicate import detection)
		if book.SourceHash != "" {
			hashKey := []byte(bookByHashPrefix + book.SourceHash)
			if err := txn.Set(hashKey, []byte(book.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create book: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "book created",
			slog.String("id", book.ID),
			slog.String("title", book.Title),
			slog.String("format", string(book.SourceFormat)),
			slog.Int("chapters", book.ChapterCount),
		)
	}

	// Index for search asynchronously
	if s.searchIndexer != nil {
		go func() {
			if err := s.searchIndexer.IndexBook(context.Background(), book); err != nil {
				if s.logger != nil {
					s.logger.Warn("failed to index book for search", "book_id", book.ID, "error", err)
				}
			}
		}()
	}

	return nil
}

// GetBook retrieves a book by ID
func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	key := []byte(bookPrefix + id)

	var book domain.Book
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &book)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &book, nil
}

// GetBookByPath retrieves a book by the source file path it was imported from.
// This is used during file watching so a re-dropped file updates its book.
func (s *Store) GetBookByPath(ctx context.Context, path string) (*domain.Book, error) {
	return s.getBookByIndex(ctx, bookByPathPrefix+path)
}

// GetBookBySourceHash retrieves a book by its source file fingerprint.
// This is how re-importing the same file is detected as a duplicate.
func (s *Store) GetBookBySourceHash(ctx context.Context, hash string) (*domain.Book, error) {
	return s.getBookByIndex(ctx, bookByHashPrefix+hash)
}

// getBookByIndex resolves a book ID through an index key, then loads the book.
func (s *Store) getBookByIndex(ctx context.Context, indexKey string) (*domain.Book, error) {
	var bookID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKey))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			bookID = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get book index: %w", err)
	}

	return s.GetBook(ctx, bookID)
}

// UpdateBook updates a book and keeps its indices consistent
func (s *Store) UpdateBook(ctx context.Context, book *domain.Book) error {
	key := []byte(bookPrefix + book.ID)

	// Get old book for index updates
	oldBook, err := s.GetBook(ctx, book.ID)
	if err != nil {
		return err
	}

	// Use transaction to update book and indices atomically
	err = s.db.Update(func(txn *badger.Txn) error {
		book.Touch()
		// Update book
		data, err := json.Marshal(book)
		if err != nil {
			return fmt.Errorf("marshal book: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}

		// Update path index if path changed
		if oldBook.SourcePath != book.SourcePath {
			if oldBook.SourcePath != "" {
				if err := txn.Delete([]byte(bookByPathPrefix + oldBook.SourcePath)); err != nil {
					return err
				}
			}
			if book.SourcePath != "" {
				if err := txn.Set([]byte(bookByPathPrefix+book.SourcePath), []byte(book.ID)); err != nil {
					return err
				}
			}
		}

		// Update hash index if the source fingerprint changed
		if oldBook.SourceHash != book.SourceHash {
			if oldBook.SourceHash != "" {
				if err := txn.Delete([]byte(bookByHashPrefix + oldBook.SourceHash)); err != nil {
					return err
				}
			}
			if book.SourceHash != "" {
				if err := txn.Set([]byte(bookByHashPrefix+book.SourceHash), []byte(book.ID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("book updated", "id", book.ID, "title", book.Title)
	}

	// Index for search asynchronously
	if s.searchIndexer != nil {
		go func() {
			if err := s.searchIndexer.IndexBook(context.Background(), book); err != nil {
				if s.logger != nil {
					s.logger.Warn("failed to index book for search", "book_id", book.ID, "error", err)
				}
			}
		}()
	}

	return nil
}

// DeleteBook deletes a book and everything derived from it: chapters,
// characters, analysis artifacts, checkpoints and the analysis job.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}

	// Remove derived records first so a crash mid-delete leaves the book
	// visible rather than orphaning its children.
	if err := s.DeleteChaptersByBook(ctx, id); err != nil {
		return fmt.Errorf("delete chapters: %w", err)
	}
	if err := s.DeleteCharactersByBook(ctx, id); err != nil {
		return fmt.Errorf("delete characters: %w", err)
	}
	if err := s.DeleteAnalysesByBook(ctx, id); err != nil {
		return fmt.Errorf("delete analyses: %w", err)
	}
	if err := s.DeleteCheckpointsByBook(ctx, id); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	if err := s.DeleteJobByBook(ctx, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	// Delete book and indices
	err = s.db.Update(func(txn *badger.Txn) error {
		key := []byte(bookPrefix + id)
		if err := txn.Delete(key); err != nil {
			return err
		}

		if book.SourcePath != "" {
			if err := txn.Delete([]byte(bookByPathPrefix + book.SourcePath)); err != nil {
				return err
			}
		}

		if book.SourceHash != "" {
			if err := txn.Delete([]byte(bookByHashPrefix + book.SourceHash)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("book deleted", "id", id, "title", book.Title)
	}

	// Drop from search asynchronously (covers the book document and its characters)
	if s.searchIndexer != nil {
		go func() {
			if err := s.searchIndexer.DeleteBook(context.Background(), id); err != nil {
				if s.logger != nil {
					s.logger.Warn("failed to remove book from search", "book_id", id, "error", err)
				}
			}
		}()
	}

	return nil
}

// BookExists checks if a book exists in our db by ID
func (s *Store) BookExists(ctx context.Context, id string) (bool, error) {
	key := []byte(bookPrefix + id)
	return s.exists(key)
}

// ListBooks returns one page of books ordered by ID.
func (s *Store) ListBooks(ctx context.Context, params PaginationParams) (*PaginatedResult[*domain.Book], error) {
	params.Validate()

	var books []*domain.Book
	var hasMore bool

	prefix := []byte(bookPrefix)

	// Decode cursor to get starting key
	startKey, err := DecodeCursor(params.Cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = params.Limit + 1 // Fetch one extra to check if there are more items.

		it := txn.NewIterator(opts)
		defer it.Close()

		// Start from cursor or beginning
		if startKey != "" {
			it.Seek([]byte(startKey))
			// Skip the cursor key itself (already returned on the previous page)
			if it.Valid() && string(it.Item().Key()) == startKey {
				it.Next()
			}
		} else {
			it.Seek(prefix)
		}

		count := 0
		for ; it.ValidForPrefix(prefix); it.Next() {
			if count == params.Limit {
				// Don't fetch this item, just note that there are more
				hasMore = true
				break
			}

			err := it.Item().Value(func(val []byte) error {
				var book domain.Book
				if err := json.Unmarshal(val, &book); err != nil {
					return err
				}

				books = append(books, &book)
				return nil
			})
			if err != nil {
				return err
			}

			count++
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	result := &PaginatedResult[*domain.Book]{
		Items:   books,
		HasMore: hasMore,
	}

	// Use the last returned item's key as the cursor
	if hasMore && len(books) > 0 {
		result.NextCursor = EncodeCursor(bookPrefix + books[len(books)-1].ID)
	}

	return result, nil
}

// ListAllBooks returns all books (non-paginated)
// WARNING: this is probably not the function you're looking for. It exists
// for the search reindex and export paths which genuinely want everything.
// Likely you want ListBooks instead.
func (s *Store) ListAllBooks(ctx context.Context) ([]*domain.Book, error) {
	var books []*domain.Book

	prefix := []byte(bookPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			err := item.Value(func(val []byte) error {
				var book domain.Book
				if err := json.Unmarshal(val, &book); err != nil {
					return err
				}
				books = append(books, &book)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list all books: %w", err)
	}

	return books, nil
}

// CountBooks returns the number of books in the library.
func (s *Store) CountBooks(ctx context.Context) (int, error) {
	count := 0
	prefix := []byte(bookPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false // Keys only

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}

	return count, nil
}
