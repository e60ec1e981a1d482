package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxbookapp/voxbook-server/internal/config"
	"github.com/voxbookapp/voxbook-server/internal/errors"
	"github.com/voxbookapp/voxbook-server/internal/ingest"
	"github.com/voxbookapp/voxbook-server/internal/sse"
	"github.com/voxbookapp/voxbook-server/internal/store"
)

const sampleBookText = `The Test Novel

Chapter 1

It was a bright cold day in the library, and the clocks were striking
thirteen. Nothing else of note happened on the first page.

Chapter 2

"We should talk about the weather," said the stranger, folding their
newspaper with exaggerated care.
`

func setupLibraryTest(t *testing.T, cfg config.LibraryConfig) (*LibraryService, *store.Store) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "voxbook-library-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	logger := quietLogger()
	manager := sse.NewManager(logger)

	testStore, err := store.New(filepath.Join(tmpDir, "test.db"), logger, manager)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testStore.Close() })

	svc := NewLibraryService(testStore, ingest.NewParser(logger), manager, nil, cfg, false, logger)
	return svc, testStore
}

func writeSampleBook(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(sampleBookText), 0o644))
	return path
}

func TestImportFile_TextBook(t *testing.T) {
	ctx := context.Background()
	svc, st := setupLibraryTest(t, config.LibraryConfig{})
	path := writeSampleBook(t, t.TempDir(), "the-test-novel.txt")

	book, err := svc.ImportFile(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, book)

	assert.Equal(t, "The Test Novel", book.Title)
	assert.Equal(t, 2, book.ChapterCount)
	assert.NotEmpty(t, book.SourceHash)
	assert.Equal(t, path, book.SourcePath)

	chapters, err := st.GetChaptersByBook(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, 0, chapters[0].Index)
	assert.Contains(t, chapters[0].Text(), "bright cold day")
	assert.Contains(t, chapters[1].Text(), "talk about the weather")
}

func TestImportFile_DuplicateContent(t *testing.T) {
	ctx := context.Background()
	svc, st := setupLibraryTest(t, config.LibraryConfig{})
	dir := t.TempDir()
	path := writeSampleBook(t, dir, "original.txt")

	first, err := svc.ImportFile(ctx, path)
	require.NoError(t, err)

	// Same bytes under a different name still dedupe by content hash.
	copyPath := writeSampleBook(t, dir, "copy.txt")
	again, err := svc.ImportFile(ctx, copyPath)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)

	count, err := st.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestImportText(t *testing.T) {
	ctx := context.Background()
	svc, st := setupLibraryTest(t, config.LibraryConfig{})

	book, err := svc.ImportText(ctx, "Pasted Novel", "A. Writer", sampleBookText)
	require.NoError(t, err)

	assert.Equal(t, "Pasted Novel", book.Title)
	assert.Equal(t, []string{"A. Writer"}, book.Authors)
	assert.Equal(t, 2, book.ChapterCount)
	assert.Empty(t, book.SourcePath)
	assert.NotEmpty(t, book.SourceHash)

	chapters, err := st.GetChaptersByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Len(t, chapters, 2)

	// Same text again dedupes by content fingerprint.
	again, err := svc.ImportText(ctx, "Pasted Novel", "A. Writer", sampleBookText)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	require.NotNil(t, again)
	assert.Equal(t, book.ID, again.ID)
}

func TestImportText_Empty(t *testing.T) {
	svc, _ := setupLibraryTest(t, config.LibraryConfig{})

	_, err := svc.ImportText(context.Background(), "Empty", "", "   \n\n  ")
	assert.ErrorIs(t, err, errors.ErrNoContent)
}

func TestImportFile_Unsupported(t *testing.T) {
	svc, _ := setupLibraryTest(t, config.LibraryConfig{})
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.docx")
	require.NoError(t, os.WriteFile(path, []byte("not an ebook"), 0o644))

	_, err := svc.ImportFile(context.Background(), path)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestImportFile_MissingFile(t *testing.T) {
	svc, _ := setupLibraryTest(t, config.LibraryConfig{})

	_, err := svc.ImportFile(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestStart_SweepsExistingFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dropDir := t.TempDir()
	writeSampleBook(t, dropDir, "preexisting.txt")

	svc, st := setupLibraryTest(t, config.LibraryConfig{EbookPath: dropDir})
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	require.Eventually(t, func() bool {
		count, err := st.CountBooks(ctx)
		return err == nil && count == 1
	}, 5*time.Second, 50*time.Millisecond, "sweep should import the pre-existing file")
}

func TestDeleteBook_Cascades(t *testing.T) {
	ctx := context.Background()
	svc, st := setupLibraryTest(t, config.LibraryConfig{})
	path := writeSampleBook(t, t.TempDir(), "deleteme.txt")

	book, err := svc.ImportFile(ctx, path)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBook(ctx, book.ID))

	_, err = st.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	chapters, err := st.GetChaptersByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Empty(t, chapters)
}
