package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/search"
	"github.com/voxbookapp/voxbook-server/internal/store"
)

// setupTestSearch creates a search service backed by a temp store and index.
func setupTestSearch(t *testing.T) (*SearchService, *store.Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "voxbook-search-test-*")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	testStore, err := store.New(filepath.Join(tmpDir, "test.db"), nil, store.NewNoopEmitter())
	require.NoError(t, err)
	require.NotNil(t, testStore)

	index, err := search.NewSearchIndex(search.Options{
		DataPath: tmpDir,
		Logger:   logger,
	})
	require.NoError(t, err)

	svc := NewSearchService(index, testStore, logger)

	cleanup := func() {
		_ = index.Close()
		_ = testStore.Close()
		_ = os.RemoveAll(tmpDir)
	}

	return svc, testStore, cleanup
}

func TestSearchService_IndexBook(t *testing.T) {
	svc, _, cleanup := setupTestSearch(t)
	defer cleanup()

	ctx := context.Background()

	book := &domain.Book{
		Syncable: domain.Syncable{ID: "book-1"},
		Title:    "Pride and Prejudice",
		Authors:  []string{"Jane Austen"},
	}
	book.InitTimestamps()

	require.NoError(t, svc.IndexBook(ctx, book))

	result, err := svc.Search(ctx, search.SearchParams{Query: "Austen", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.Total)
	assert.Equal(t, "book-1", result.Hits[0].ID)
	assert.Equal(t, search.DocTypeBook, result.Hits[0].Type)
}

func TestSearchService_IndexCharacter_DenormalizesBookTitle(t *testing.T) {
	svc, testStore, cleanup := setupTestSearch(t)
	defer cleanup()

	ctx := context.Background()

	book := &domain.Book{
		Syncable: domain.Syncable{ID: "book-1"},
		Title:    "Pride and Prejudice",
	}
	book.InitTimestamps()
	require.NoError(t, testStore.CreateBook(ctx, book))

	character := &domain.Character{
		Syncable:      domain.Syncable{ID: "char-1"},
		BookID:        "book-1",
		Name:          "Elizabeth Bennet",
		CanonicalName: "elizabeth bennet",
	}
	character.InitTimestamps()

	require.NoError(t, svc.IndexCharacter(ctx, character))

	// The character is findable by its book's title
	result, err := svc.SearchCharacters(ctx, "Prejudice", "", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.Total)
	assert.Equal(t, "char-1", result.Hits[0].ID)
	assert.Equal(t, "Pride and Prejudice", result.Hits[0].BookTitle)
}

func TestSearchService_IndexCharacter_MissingBook(t *testing.T) {
	svc, _, cleanup := setupTestSearch(t)
	defer cleanup()

	ctx := context.Background()

	character := &domain.Character{
		Syncable:      domain.Syncable{ID: "char-1"},
		BookID:        "book-gone",
		Name:          "Elizabeth Bennet",
		CanonicalName: "elizabeth bennet",
	}
	character.InitTimestamps()

	// Indexing still succeeds, just without the book title
	require.NoError(t, svc.IndexCharacter(ctx, character))

	result, err := svc.SearchCharacters(ctx, "Elizabeth", "", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.Total)
	assert.Empty(t, result.Hits[0].BookTitle)
}

func TestSearchService_DeleteBook_RemovesCharacters(t *testing.T) {
	svc, _, cleanup := setupTestSearch(t)
	defer cleanup()

	ctx := context.Background()

	book1 := &domain.Book{Syncable: domain.Syncable{ID: "book-1"}, Title: "Pride and Prejudice"}
	book2 := &domain.Book{Syncable: domain.Syncable{ID: "book-2"}, Title: "Emma"}
	require.NoError(t, svc.IndexBook(ctx, book1))
	require.NoError(t, svc.IndexBook(ctx, book2))

	for _, c := range []*domain.Character{
		{Syncable: domain.Syncable{ID: "char-1"}, BookID: "book-1", Name: "Elizabeth Bennet"},
		{Syncable: domain.Syncable{ID: "char-2"}, BookID: "book-1", Name: "Mr. Darcy"},
		{Syncable: domain.Syncable{ID: "char-3"}, BookID: "book-2", Name: "Emma Woodhouse"},
	} {
		require.NoError(t, svc.IndexCharacter(ctx, c))
	}

	require.NoError(t, svc.DeleteBook(ctx, "book-1"))

	count, err := svc.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	// The other book's character is untouched
	result, err := svc.SearchCharacters(ctx, "Emma", "", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Total)
}

func TestSearchService_ReindexAll(t *testing.T) {
	svc, testStore, cleanup := setupTestSearch(t)
	defer cleanup()

	ctx := context.Background()

	book := &domain.Book{
		Syncable: domain.Syncable{ID: "book-1"},
		Title:    "Pride and Prejudice",
		Authors:  []string{"Jane Austen"},
	}
	book.InitTimestamps()
	require.NoError(t, testStore.CreateBook(ctx, book))

	characters := []*domain.Character{
		{
			Syncable:      domain.Syncable{ID: "char-1"},
			BookID:        "book-1",
			Name:          "Elizabeth Bennet",
			CanonicalName: "elizabeth bennet",
		},
		{
			Syncable:      domain.Syncable{ID: "char-2"},
			BookID:        "book-1",
			Name:          "Mr. Darcy",
			CanonicalName: "mr darcy",
		},
	}
	for _, c := range characters {
		c.InitTimestamps()
		require.NoError(t, testStore.CreateCharacter(ctx, c))
	}

	require.NoError(t, svc.ReindexAll(ctx))

	count, err := svc.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	// Characters picked up their book's title during the rebuild
	result, err := svc.SearchCharacters(ctx, "Darcy", "book-1", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.Total)
	assert.Equal(t, "Pride and Prejudice", result.Hits[0].BookTitle)
}
