package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBookText = `The Test Novel

Chapter 1

It was a bright cold day in the library, and the clocks were striking
thirteen. Nothing else of note happened on the first page.

Chapter 2

"We should talk about the weather," said the stranger, folding their
newspaper with exaggerated care.
`

func writeSampleBook(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(sampleBookText), 0o644))
	return path
}

func importSampleBook(t *testing.T, ts *testServer) BookResponse {
	t.Helper()

	path := writeSampleBook(t, "the-test-novel.txt")
	resp := ts.api.Post("/api/v1/imports/file", map[string]any{"path": path})
	require.Equal(t, 200, resp.Code, "import failed: %s", resp.Body.String())

	var book BookResponse
	decodeData(t, resp.Body.Bytes(), &book)
	return book
}

func TestImportFile(t *testing.T) {
	ts := setupTestServer(t)

	book := importSampleBook(t, ts)
	assert.Equal(t, "The Test Novel", book.Title)
	assert.Equal(t, 2, book.ChapterCount)
	assert.NotEmpty(t, book.ID)
}

func TestImportFile_Duplicate(t *testing.T) {
	ts := setupTestServer(t)

	path := writeSampleBook(t, "the-test-novel.txt")
	resp := ts.api.Post("/api/v1/imports/file", map[string]any{"path": path})
	require.Equal(t, 200, resp.Code)

	resp = ts.api.Post("/api/v1/imports/file", map[string]any{"path": path})
	assert.Equal(t, 409, resp.Code)
}

func TestImportFile_MissingPath(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/imports/file", map[string]any{"path": ""})
	assert.Equal(t, 400, resp.Code)
}

func TestImportText(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/imports/text", map[string]any{
		"title":  "Pasted Novel",
		"author": "A. Writer",
		"text":   sampleBookText,
	})
	require.Equal(t, 200, resp.Code, resp.Body.String())

	var book BookResponse
	decodeData(t, resp.Body.Bytes(), &book)
	assert.Equal(t, "Pasted Novel", book.Title)
	assert.Equal(t, 2, book.ChapterCount)
}

func TestImportText_MissingTitle(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/imports/text", map[string]any{"text": "some text"})
	assert.Equal(t, 400, resp.Code)
}

func TestImportFile_NoSuchFile(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/imports/file", map[string]any{"path": "/nonexistent/book.txt"})
	assert.Equal(t, 400, resp.Code)
}

func TestListAndGetBooks(t *testing.T) {
	ts := setupTestServer(t)
	book := importSampleBook(t, ts)

	resp := ts.api.Get("/api/v1/books")
	require.Equal(t, 200, resp.Code)

	var list ListBooksResponse
	decodeData(t, resp.Body.Bytes(), &list)
	require.Len(t, list.Books, 1)
	assert.Equal(t, book.ID, list.Books[0].ID)
	assert.False(t, list.HasMore)

	resp = ts.api.Get("/api/v1/books/" + book.ID)
	require.Equal(t, 200, resp.Code)

	var got BookDetailResponse
	decodeData(t, resp.Body.Bytes(), &got)
	assert.Equal(t, book.Title, got.Title)
	assert.Equal(t, 0, got.AnalyzedChapters)
	assert.Empty(t, got.AnalysisStatus)
}

func TestBookChapters(t *testing.T) {
	ts := setupTestServer(t)
	book := importSampleBook(t, ts)

	resp := ts.api.Get("/api/v1/books/" + book.ID + "/chapters")
	require.Equal(t, 200, resp.Code)

	var list ListChaptersResponse
	decodeData(t, resp.Body.Bytes(), &list)
	require.Len(t, list.Chapters, 2)
	assert.Equal(t, 0, list.Chapters[0].Index)
	assert.False(t, list.Chapters[0].Analyzed)

	resp = ts.api.Get("/api/v1/chapters/" + list.Chapters[0].ID)
	require.Equal(t, 200, resp.Code)

	var chapter ChapterResponse
	decodeData(t, resp.Body.Bytes(), &chapter)
	assert.Equal(t, book.ID, chapter.BookID)
	assert.Contains(t, chapter.Text, "bright cold day")
}

func TestChapterAnalysis_NotAnalyzed(t *testing.T) {
	ts := setupTestServer(t)
	book := importSampleBook(t, ts)

	resp := ts.api.Get("/api/v1/books/" + book.ID + "/chapters")
	require.Equal(t, 200, resp.Code)

	var list ListChaptersResponse
	decodeData(t, resp.Body.Bytes(), &list)
	require.NotEmpty(t, list.Chapters)

	resp = ts.api.Get("/api/v1/chapters/" + list.Chapters[0].ID + "/analysis")
	assert.Equal(t, 404, resp.Code)
}

func TestDeleteBook(t *testing.T) {
	ts := setupTestServer(t)
	book := importSampleBook(t, ts)

	resp := ts.api.Delete("/api/v1/books/" + book.ID)
	require.Equal(t, 204, resp.Code)

	resp = ts.api.Get("/api/v1/books/" + book.ID)
	assert.Equal(t, 404, resp.Code)
}

func TestDeleteBook_NotFound(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Delete("/api/v1/books/no-such-book")
	assert.Equal(t, 404, resp.Code)
}
