package store

import (
	"cmp"
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

const jobPrefix = "job:"

// jobBookIndexKey maps a book ID to its job ID. One job per book.
func jobBookIndexKey(bookID string) []byte {
	return []byte(jobPrefix + "idx:book:" + bookID)
}

// jobStatusIndexKey groups job IDs under their status for queue scans.
func jobStatusIndexKey(status domain.AnalysisStatus, jobID string) []byte {
	return []byte(jobPrefix + "idx:status:" + string(status) + ":" + jobID)
}

// CreateJob persists a new analysis job.
// Returns ErrAlreadyExists if the job ID is taken or the book already has a job.
func (s *Store) CreateJob(ctx context.Context, job *domain.AnalysisJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(jobPrefix + job.ID)

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check job exists: %w", err)
		}

		// One job per book
		_, err = txn.Get(jobBookIndexKey(job.BookID))
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check book job index: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}

		return s.setJobIndexes(txn, job)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "analysis job created",
			slog.String("id", job.ID),
			slog.String("book_id", job.BookID),
			slog.String("status", string(job.Status)),
		)
	}

	return nil
}

// GetJob retrieves an analysis job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*domain.AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := buildKey(jobPrefix, id)
	defer releaseKey(key)

	var job domain.AnalysisJob
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	return &job, nil
}

// GetJobByBook retrieves the analysis job for a book, if one exists.
// Returns ErrNotFound for books that were never enqueued.
func (s *Store) GetJobByBook(ctx context.Context, bookID string) (*domain.AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var jobID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(jobBookIndexKey(bookID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			jobID = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job index: %w", err)
	}

	return s.GetJob(ctx, jobID)
}

// UpdateJob replaces a job record and keeps the status index consistent.
func (s *Store) UpdateJob(ctx context.Context, job *domain.AnalysisJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(jobPrefix + job.ID)

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		// Load old record to clean up index entries for the previous status.
		var oldJob domain.AnalysisJob
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get existing job: %w", err)
		}
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &oldJob)
		})
		if err != nil {
			return fmt.Errorf("unmarshal existing job: %w", err)
		}

		if err := s.deleteJobIndexes(txn, &oldJob); err != nil {
			return err
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}

		return s.setJobIndexes(txn, job)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("update job: %w", err)
	}

	return nil
}

// DeleteJob removes a job by ID. Idempotent.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(jobPrefix + id)

	err := s.db.Update(func(txn *badger.Txn) error {
		var job domain.AnalysisJob
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
		if err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}

		if err := s.deleteJobIndexes(txn, &job); err != nil {
			return err
		}

		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	return nil
}

// DeleteJobByBook removes the job for a book, if one exists.
func (s *Store) DeleteJobByBook(ctx context.Context, bookID string) error {
	job, err := s.GetJobByBook(ctx, bookID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.DeleteJob(ctx, job.ID)
}

// ListJobsByStatus returns all jobs currently in the given status.
func (s *Store) ListJobsByStatus(ctx context.Context, status domain.AnalysisStatus) ([]*domain.AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(jobPrefix + "idx:status:" + string(status) + ":")

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
		return nil, fmt.Errorf("scan job status index: %w", err)
	}

	jobs := make([]*domain.AnalysisJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Index entry outlived its record; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// ListPendingJobs returns pending jobs in FIFO order (oldest enqueued first).
func (s *Store) ListPendingJobs(ctx context.Context) ([]*domain.AnalysisJob, error) {
	jobs, err := s.ListJobsByStatus(ctx, domain.AnalysisStatusPending)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(jobs, func(a, b *domain.AnalysisJob) int {
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})

	return jobs, nil
}

// ListAllJobs returns an iterator over every analysis job.
func (s *Store) ListAllJobs(ctx context.Context) iter.Seq2[*domain.AnalysisJob, error] {
	return func(yield func(*domain.AnalysisJob, error) bool) {
		prefix := []byte(jobPrefix)

		_ = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				// Skip index keys
				key := string(it.Item().Key())
				remainder := key[len(jobPrefix):]
				if len(remainder) >= 4 && remainder[:4] == "idx:" {
					continue
				}

				var job domain.AnalysisJob
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &job)
				})
				if err != nil {
					yield(nil, err)
					return err
				}

				if !yield(&job, nil) {
					return nil // Consumer stopped early
				}
			}

			return nil
		})
	}
}

// setJobIndexes writes the book and status index entries for a job.
func (s *Store) setJobIndexes(txn *badger.Txn, job *domain.AnalysisJob) error {
	if err := txn.Set(jobBookIndexKey(job.BookID), []byte(job.ID)); err != nil {
		return fmt.Errorf("set book index: %w", err)
	}
	if err := txn.Set(jobStatusIndexKey(job.Status, job.ID), []byte(job.ID)); err != nil {
		return fmt.Errorf("set status index: %w", err)
	}
	return nil
}

// deleteJobIndexes removes a job's index entries. Missing keys are ignored
// so cleanup stays idempotent.
func (s *Store) deleteJobIndexes(txn *badger.Txn, job *domain.AnalysisJob) error {
	if err := txn.Delete(jobBookIndexKey(job.BookID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete book index: %w", err)
	}
	if err := txn.Delete(jobStatusIndexKey(job.Status, job.ID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete status index: %w", err)
	}
	return nil
}
