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

const checkpointPrefix = "checkpoint:"

// checkpointKey builds the key for a chapter's checkpoint. At most one
// checkpoint exists per chapter, so the key carries no sequence part.
func checkpointKey(bookID, chapterID string) []byte {
	return []byte(checkpointPrefix + bookID + ":" + chapterID)
}

// SaveCheckpoint persists mid-chapter progress, replacing any previous
// checkpoint for the chapter. Called after every completed batch, so the
// write must be durable before the next batch starts.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.set(checkpointKey(cp.BookID, cp.ChapterID), cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "checkpoint saved",
			slog.String("book_id", cp.BookID),
			slog.String("chapter_id", cp.ChapterID),
			slog.Int("batches_completed", cp.BatchesCompleted),
			slog.Int("total_batches", cp.TotalBatches),
		)
	}

	return nil
}

// LoadCheckpoint returns the chapter's checkpoint if one exists and still
// matches the chapter text. It returns (nil, nil) when there is nothing
// usable to resume from:
//
//   - no checkpoint stored
//   - the stored bytes do not decode (corrupt write, killed process)
//   - contentHash differs from the recorded one (the chapter text changed)
//
// Stale and corrupt checkpoints are deleted on the way out, so the caller
// starts fresh and the next save is clean. Only storage failures surface
// as errors.
func (s *Store) LoadCheckpoint(ctx context.Context, bookID, chapterID, contentHash string) (*domain.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := checkpointKey(bookID, chapterID)

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		if s.logger != nil {
			s.logger.Warn("discarding corrupt checkpoint",
				"book_id", bookID,
				"chapter_id", chapterID,
				"error", err,
			)
		}
		if err := s.delete(key); err != nil {
			return nil, fmt.Errorf("delete corrupt checkpoint: %w", err)
		}
		return nil, nil
	}

	if cp.ContentHash != contentHash {
		if s.logger != nil {
			s.logger.Info("discarding stale checkpoint, chapter text changed",
				"book_id", bookID,
				"chapter_id", chapterID,
			)
		}
		if err := s.delete(key); err != nil {
			return nil, fmt.Errorf("delete stale checkpoint: %w", err)
		}
		return nil, nil
	}

	return &cp, nil
}

// DeleteCheckpoint removes a chapter's checkpoint. Idempotent; called when
// the chapter's analysis artifact has been written and the checkpoint has
// served its purpose.
func (s *Store) DeleteCheckpoint(ctx context.Context, bookID, chapterID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.delete(checkpointKey(bookID, chapterID)); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// HasCheckpoint reports whether a chapter has a stored checkpoint,
// regardless of whether it is still valid for the current text.
func (s *Store) HasCheckpoint(ctx context.Context, bookID, chapterID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.exists(checkpointKey(bookID, chapterID))
}

// DeleteCheckpointsByBook removes every checkpoint of a book. Idempotent.
func (s *Store) DeleteCheckpointsByBook(ctx context.Context, bookID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := []byte(checkpointPrefix + bookID + ":")

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
		return fmt.Errorf("scan checkpoints: %w", err)
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
		return fmt.Errorf("delete checkpoints: %w", err)
	}

	return nil
}
