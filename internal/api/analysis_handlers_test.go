package api

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/id"
)

// seedBook creates a book with chapters directly in the store, bypassing
// the import pipeline.
func seedBook(t *testing.T, ts *testServer, chapterCount int) *domain.Book {
	t.Helper()
	ctx := context.Background()

	book := &domain.Book{
		Syncable:     domain.Syncable{ID: id.MustGenerate("book")},
		Title:        "Seeded Novel",
		SourceFormat: domain.FormatText,
		ChapterCount: chapterCount,
		ImportedAt:   time.Now(),
	}
	book.InitTimestamps()
	require.NoError(t, ts.store.CreateBook(ctx, book))

	for i := range chapterCount {
		require.NoError(t, ts.store.CreateChapter(ctx, &domain.Chapter{
			ID:     id.MustGenerate("chap"),
			BookID: book.ID,
			Index:  i,
			Title:  fmt.Sprintf("Chapter %d", i+1),
			Pages:  []string{fmt.Sprintf("Narrative text for chapter %d.", i+1)},
		}))
	}
	return book
}

func TestAnalysisStatus_NeverQueued(t *testing.T) {
	ts := setupTestServer(t)
	book := seedBook(t, ts, 1)

	resp := ts.api.Get("/api/v1/books/" + book.ID + "/analysis")
	assert.Equal(t, 404, resp.Code)
}

func TestEnqueueAnalysis(t *testing.T) {
	ts := setupTestServer(t)
	book := seedBook(t, ts, 3)

	resp := ts.api.Post("/api/v1/books/" + book.ID + "/analysis")
	require.Equal(t, 200, resp.Code, "enqueue failed: %s", resp.Body.String())

	var job AnalysisJobResponse
	decodeData(t, resp.Body.Bytes(), &job)
	assert.Equal(t, book.ID, job.BookID)
	assert.Equal(t, string(domain.AnalysisStatusPending), job.Status)
	assert.Equal(t, 3, job.ChaptersTotal)

	// Status now reports the queued job.
	resp = ts.api.Get("/api/v1/books/" + book.ID + "/analysis")
	require.Equal(t, 200, resp.Code)

	var status AnalysisJobResponse
	decodeData(t, resp.Body.Bytes(), &status)
	assert.Equal(t, job.ID, status.ID)
}

func TestEnqueueAnalysis_UnknownBook(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/books/no-such-book/analysis")
	assert.Equal(t, 404, resp.Code)
}

func TestEnqueueAnalysis_EmptyBook(t *testing.T) {
	ts := setupTestServer(t)
	book := seedBook(t, ts, 0)

	resp := ts.api.Post("/api/v1/books/" + book.ID + "/analysis")
	assert.Equal(t, 400, resp.Code)
}

func TestCancelAnalysis(t *testing.T) {
	ts := setupTestServer(t)
	book := seedBook(t, ts, 2)

	resp := ts.api.Post("/api/v1/books/" + book.ID + "/analysis")
	require.Equal(t, 200, resp.Code)

	resp = ts.api.Delete("/api/v1/books/" + book.ID + "/analysis")
	assert.Equal(t, 204, resp.Code)
}

func TestListAnalysisJobs(t *testing.T) {
	ts := setupTestServer(t)
	first := seedBook(t, ts, 1)
	second := seedBook(t, ts, 2)

	for _, b := range []*domain.Book{first, second} {
		resp := ts.api.Post("/api/v1/books/" + b.ID + "/analysis")
		require.Equal(t, 200, resp.Code)
	}

	resp := ts.api.Get("/api/v1/analysis/jobs")
	require.Equal(t, 200, resp.Code)

	var list ListJobsResponse
	decodeData(t, resp.Body.Bytes(), &list)
	assert.Len(t, list.Jobs, 2)

	resp = ts.api.Get("/api/v1/analysis/jobs?status=pending")
	require.Equal(t, 200, resp.Code)
	decodeData(t, resp.Body.Bytes(), &list)
	assert.Len(t, list.Jobs, 2)

	resp = ts.api.Get("/api/v1/analysis/jobs?status=completed")
	require.Equal(t, 200, resp.Code)
	decodeData(t, resp.Body.Bytes(), &list)
	assert.Empty(t, list.Jobs)
}

func TestGetAnalysisJob(t *testing.T) {
	ts := setupTestServer(t)
	book := seedBook(t, ts, 2)

	resp := ts.api.Post("/api/v1/books/" + book.ID + "/analysis")
	require.Equal(t, 200, resp.Code)

	var enqueued AnalysisJobResponse
	decodeData(t, resp.Body.Bytes(), &enqueued)

	resp = ts.api.Get("/api/v1/analysis/jobs/" + enqueued.ID)
	require.Equal(t, 200, resp.Code)

	var job AnalysisJobResponse
	decodeData(t, resp.Body.Bytes(), &job)
	assert.Equal(t, enqueued.ID, job.ID)
	assert.Equal(t, book.ID, job.BookID)

	resp = ts.api.Get("/api/v1/analysis/jobs/job-missing")
	assert.Equal(t, 404, resp.Code)
}

func TestListBookCharacters_Empty(t *testing.T) {
	ts := setupTestServer(t)
	book := seedBook(t, ts, 1)

	resp := ts.api.Get("/api/v1/books/" + book.ID + "/characters")
	require.Equal(t, 200, resp.Code)

	var list ListCharactersResponse
	decodeData(t, resp.Body.Bytes(), &list)
	assert.Empty(t, list.Characters)
}
