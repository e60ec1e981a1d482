package store

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

// BatchWriter provides efficient bulk write operations using BadgerDB's
// WriteBatch. Imports use it to persist a book's chapters in one pass
// instead of one transaction per chapter.
type BatchWriter struct {
	store     *Store
	batch     *badger.WriteBatch
	maxSize   int
	count     int
	autoFlush bool
}

// NewBatchWriter creates a new batch writer that will auto-flush when maxSize is reached
func (s *Store) NewBatchWriter(maxSize int) *BatchWriter {
	return &BatchWriter{
		store:     s,
		batch:     s.db.NewWriteBatch(),
		maxSize:   maxSize,
		autoFlush: true,
	}
}

// CreateChapter adds a chapter and its order index entry to the batch.
// If autoFlush is enabled and the batch reaches maxSize, it flushes automatically.
func (b *BatchWriter) CreateChapter(ctx context.Context, chapter *domain.Chapter) error {
	data, err := json.Marshal(chapter)
	if err != nil {
		return fmt.Errorf("marshal chapter: %w", err)
	}

	key := []byte(chapterPrefix + chapter.ID)
	if err := b.batch.Set(key, data); err != nil {
		return fmt.Errorf("batch set chapter: %w", err)
	}

	if err := b.batch.Set(chapterBookIndexKey(chapter.BookID, chapter.Index), []byte(chapter.ID)); err != nil {
		return fmt.Errorf("batch set chapter index: %w", err)
	}

	b.count++

	// Auto-flush if batch is full
	if b.autoFlush && b.count >= b.maxSize {
		if err := b.Flush(); err != nil {
			return fmt.Errorf("auto flush: %w", err)
		}
	}

	return nil
}

// Flush commits all pending writes in the batch
func (b *BatchWriter) Flush() error {
	if b.count == 0 {
		return nil // Nothing to flush
	}

	if err := b.batch.Flush(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}

	if b.store.logger != nil {
		b.store.logger.LogAttrs(context.Background(), slog.LevelInfo, "batch flushed",
			slog.Int("count", b.count),
		)
	}

	// Reset for next batch
	b.count = 0
	b.batch = b.store.db.NewWriteBatch()

	return nil
}

// Cancel discards all pending writes in the batch
func (b *BatchWriter) Cancel() {
	b.batch.Cancel()
	b.count = 0
}

// Count returns the number of operations in the current batch
func (b *BatchWriter) Count() int {
	return b.count
}
