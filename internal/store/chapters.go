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

const chapterPrefix = "chapter:"

// chapterBookIndexKey builds the per-book chapter index key. The chapter
// position is zero-padded so a prefix scan yields chapters in reading order.
func chapterBookIndexKey(bookID string, index int) []byte {
	return []byte(fmt.Sprintf("%sidx:book:%s:%05d", chapterPrefix, bookID, index))
}

// CreateChapter persists a single chapter. Bulk imports should use a
// BatchWriter instead of calling this in a loop.
func (s *Store) CreateChapter(ctx context.Context, chapter *domain.Chapter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(chapterPrefix + chapter.ID)

	data, err := json.Marshal(chapter)
	if err != nil {
		return fmt.Errorf("marshal chapter: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check chapter exists: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}

		return txn.Set(chapterBookIndexKey(chapter.BookID, chapter.Index), []byte(chapter.ID))
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("create chapter: %w", err)
	}

	return nil
}

// GetChapter retrieves a chapter by ID.
func (s *Store) GetChapter(ctx context.Context, id string) (*domain.Chapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := buildKey(chapterPrefix, id)
	defer releaseKey(key)

	var chapter domain.Chapter
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &chapter)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get chapter: %w", err)
	}

	return &chapter, nil
}

// GetChaptersByBook returns all chapters of a book in reading order.
func (s *Store) GetChaptersByBook(ctx context.Context, bookID string) ([]*domain.Chapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := s.chapterIDsByBook(bookID)
	if err != nil {
		return nil, err
	}

	chapters := make([]*domain.Chapter, 0, len(ids))
	for _, id := range ids {
		chapter, err := s.GetChapter(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Index entry outlived its record; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, chapter)
	}

	return chapters, nil
}

// CountChaptersByBook returns how many chapters a book has without loading
// their text.
func (s *Store) CountChaptersByBook(ctx context.Context, bookID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	prefix := []byte(chapterPrefix + "idx:book:" + bookID + ":")

	count := 0
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
		return 0, fmt.Errorf("count chapters: %w", err)
	}

	return count, nil
}

// DeleteChaptersByBook removes all chapters of a book along with their
// order index entries. Idempotent.
func (s *Store) DeleteChaptersByBook(ctx context.Context, bookID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := []byte(chapterPrefix + "idx:book:" + bookID + ":")

	// Collect index keys and chapter IDs first; deleting while iterating
	// inside the same transaction invalidates the iterator.
	var indexKeys [][]byte
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			indexKeys = append(indexKeys, it.Item().KeyCopy(nil))
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan chapters: %w", err)
	}

	if len(ids) == 0 {
		return nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete([]byte(chapterPrefix + id)); err != nil {
				return err
			}
		}
		for _, key := range indexKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete chapters: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "chapters deleted",
			slog.String("book_id", bookID),
			slog.Int("count", len(ids)),
		)
	}

	return nil
}

// chapterIDsByBook scans the per-book order index and returns chapter IDs
// in reading order.
func (s *Store) chapterIDsByBook(bookID string) ([]string, error) {
	prefix := []byte(chapterPrefix + "idx:book:" + bookID + ":")

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan chapter index: %w", err)
	}

	return ids, nil
}
