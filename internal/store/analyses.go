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

const analysisPrefix = "analysis:"

// analysisKey builds the composite key for a chapter's analysis artifact.
// Keying by book first keeps one book's artifacts in a single prefix range.
func analysisKey(bookID, chapterID string) []byte {
	return []byte(analysisPrefix + bookID + ":" + chapterID)
}

// SaveChapterAnalysis persists the analysis artifact for a chapter,
// replacing any previous artifact. The artifact's presence is what marks
// the chapter as analyzed.
func (s *Store) SaveChapterAnalysis(ctx context.Context, analysis *domain.ChapterAnalysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.set(analysisKey(analysis.BookID, analysis.ChapterID), analysis); err != nil {
		return fmt.Errorf("save chapter analysis: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "chapter analysis saved",
			slog.String("book_id", analysis.BookID),
			slog.String("chapter_id", analysis.ChapterID),
			slog.Int("characters", len(analysis.Characters)),
			slog.Bool("partial", analysis.PartialRange),
		)
	}

	return nil
}

// GetChapterAnalysis retrieves the analysis artifact for a chapter.
func (s *Store) GetChapterAnalysis(ctx context.Context, bookID, chapterID string) (*domain.ChapterAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var analysis domain.ChapterAnalysis
	err := s.get(analysisKey(bookID, chapterID), &analysis)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get chapter analysis: %w", err)
	}

	return &analysis, nil
}

// IsChapterAnalyzed reports whether a chapter has a stored analysis artifact.
func (s *Store) IsChapterAnalyzed(ctx context.Context, bookID, chapterID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.exists(analysisKey(bookID, chapterID))
}

// ListAnalysesByBook returns all stored chapter analyses for a book.
// Order follows the chapter ID bytes, not reading order; callers that need
// reading order sort by ChapterIndex.
func (s *Store) ListAnalysesByBook(ctx context.Context, bookID string) ([]*domain.ChapterAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(analysisPrefix + bookID + ":")

	var analyses []*domain.ChapterAnalysis
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var analysis domain.ChapterAnalysis
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &analysis)
			})
			if err != nil {
				return err
			}
			analyses = append(analyses, &analysis)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}

	return analyses, nil
}

// CountAnalysesByBook returns how many chapters of a book have artifacts.
func (s *Store) CountAnalysesByBook(ctx context.Context, bookID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	prefix := []byte(analysisPrefix + bookID + ":")

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
		return 0, fmt.Errorf("count analyses: %w", err)
	}

	return count, nil
}

// DeleteChapterAnalysis removes a chapter's artifact, making the chapter
// eligible for re-analysis. Idempotent.
func (s *Store) DeleteChapterAnalysis(ctx context.Context, bookID, chapterID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.delete(analysisKey(bookID, chapterID)); err != nil {
		return fmt.Errorf("delete chapter analysis: %w", err)
	}
	return nil
}

// DeleteAnalysesByBook removes every analysis artifact of a book. Idempotent.
func (s *Store) DeleteAnalysesByBook(ctx context.Context, bookID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := []byte(analysisPrefix + bookID + ":")

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan analyses: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete analyses: %w", err)
	}

	return nil
}
