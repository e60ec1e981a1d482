package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

// Helper function to create a test job
func createTestJob(id, bookID string) *domain.AnalysisJob {
	job := &domain.AnalysisJob{
		BookID:        bookID,
		Status:        domain.AnalysisStatusPending,
		ChaptersTotal: 5,
	}
	job.ID = id
	job.InitTimestamps()
	return job
}

func TestCreateJob(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, createTestJob("j1", "b1")))

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.BookID)
	assert.Equal(t, domain.AnalysisStatusPending, got.Status)
}

func TestCreateJob_OneJobPerBook(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, createTestJob("j1", "b1")))

	// A second job for the same book conflicts even under a new ID.
	err := s.CreateJob(ctx, createTestJob("j2", "b1"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetJobByBook(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, createTestJob("j1", "b1")))

	got, err := s.GetJobByBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "j1", got.ID)

	// Never-enqueued book.
	_, err = s.GetJobByBook(ctx, "b2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateJob_MovesStatusIndex(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	job := createTestJob("j1", "b1")
	require.NoError(t, s.CreateJob(ctx, job))

	job.MarkAnalyzing()
	require.NoError(t, s.UpdateJob(ctx, job))

	pending, err := s.ListJobsByStatus(ctx, domain.AnalysisStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	analyzing, err := s.ListJobsByStatus(ctx, domain.AnalysisStatusAnalyzing)
	require.NoError(t, err)
	require.Len(t, analyzing, 1)
	assert.Equal(t, "j1", analyzing[0].ID)
}

func TestUpdateJob_NotFound(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	err := s.UpdateJob(context.Background(), createTestJob("ghost", "b1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPendingJobs_FIFO(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	oldest := createTestJob("j-old", "b1")
	oldest.CreatedAt = time.Now().Add(-2 * time.Hour)
	newest := createTestJob("j-new", "b2")
	newest.CreatedAt = time.Now()
	middle := createTestJob("j-mid", "b3")
	middle.CreatedAt = time.Now().Add(-1 * time.Hour)

	require.NoError(t, s.CreateJob(ctx, newest))
	require.NoError(t, s.CreateJob(ctx, oldest))
	require.NoError(t, s.CreateJob(ctx, middle))

	jobs, err := s.ListPendingJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "j-old", jobs[0].ID)
	assert.Equal(t, "j-mid", jobs[1].ID)
	assert.Equal(t, "j-new", jobs[2].ID)
}

func TestListJobsByStatus_RecoversOrphans(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	// Simulate a job left analyzing by a crashed process.
	job := createTestJob("j1", "b1")
	require.NoError(t, s.CreateJob(ctx, job))
	job.MarkAnalyzing()
	require.NoError(t, s.UpdateJob(ctx, job))

	orphans, err := s.ListJobsByStatus(ctx, domain.AnalysisStatusAnalyzing)
	require.NoError(t, err)
	require.Len(t, orphans, 1)

	// Requeue moves it back to the pending queue.
	orphans[0].Requeue()
	require.NoError(t, s.UpdateJob(ctx, orphans[0]))

	pending, err := s.ListPendingJobs(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "j1", pending[0].ID)
	assert.Empty(t, pending[0].Error)
	assert.Nil(t, pending[0].StartedAt)
}

func TestDeleteJob_Idempotent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, createTestJob("j1", "b1")))

	require.NoError(t, s.DeleteJob(ctx, "j1"))
	require.NoError(t, s.DeleteJob(ctx, "j1"))

	_, err := s.GetJob(ctx, "j1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Book index freed: the book can be enqueued again.
	require.NoError(t, s.CreateJob(ctx, createTestJob("j2", "b1")))
}

func TestDeleteJobByBook(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, createTestJob("j1", "b1")))

	require.NoError(t, s.DeleteJobByBook(ctx, "b1"))
	_, err := s.GetJobByBook(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)

	// No job at all is fine.
	require.NoError(t, s.DeleteJobByBook(ctx, "b2"))
}

func TestListAllJobs(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, createTestJob("j1", "b1")))
	require.NoError(t, s.CreateJob(ctx, createTestJob("j2", "b2")))

	var ids []string
	for job, err := range s.ListAllJobs(ctx) {
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	assert.ElementsMatch(t, []string{"j1", "j2"}, ids)
}
