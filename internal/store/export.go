package store

import (
	"context"
	"iter"

	"encoding/json/v2"

	"github.com/dgraph-io/badger/v4"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

// StreamBooks returns an iterator over all books for backup export.
func (s *Store) StreamBooks(ctx context.Context) iter.Seq2[*domain.Book, error] {
	return streamEntities[domain.Book](s.db, ctx, bookPrefix)
}

// StreamChapters returns an iterator over all chapters. Values are large;
// consume and discard rather than collecting.
func (s *Store) StreamChapters(ctx context.Context) iter.Seq2[*domain.Chapter, error] {
	return streamEntities[domain.Chapter](s.db, ctx, chapterPrefix)
}

// StreamCharacters returns an iterator over all characters.
func (s *Store) StreamCharacters(ctx context.Context) iter.Seq2[*domain.Character, error] {
	return streamEntities[domain.Character](s.db, ctx, characterPrefix)
}

// StreamAnalyses returns an iterator over all chapter analysis artifacts.
func (s *Store) StreamAnalyses(ctx context.Context) iter.Seq2[*domain.ChapterAnalysis, error] {
	return streamEntities[domain.ChapterAnalysis](s.db, ctx, analysisPrefix)
}

// StreamCheckpoints returns an iterator over all analysis checkpoints.
func (s *Store) StreamCheckpoints(ctx context.Context) iter.Seq2[*domain.Checkpoint, error] {
	return streamEntities[domain.Checkpoint](s.db, ctx, checkpointPrefix)
}

// streamEntities is a generic streaming iterator for any entity type.
func streamEntities[T any](db *badger.DB, ctx context.Context, prefix string) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		_ = db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(prefix)
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				// Skip index keys (they have patterns like "prefix:idx:")
				key := string(it.Item().Key())
				keyRemainder := key[len(prefix):]
				if len(keyRemainder) >= 4 && keyRemainder[:4] == "idx:" {
					continue
				}

				var entity T
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				})
				if err != nil {
					yield(nil, err)
					return err
				}

				if !yield(&entity, nil) {
					return nil // Consumer stopped early
				}
			}

			return nil
		})
	}
}
