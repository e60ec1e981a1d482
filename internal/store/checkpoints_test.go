package store

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

// Helper function to create a test checkpoint
func createTestCheckpoint(bookID, chapterID, hash string) *domain.Checkpoint {
	return &domain.Checkpoint{
		BookID:                      bookID,
		ChapterID:                   chapterID,
		ContentHash:                 hash,
		LastProcessedParagraphIndex: 14,
		TotalParagraphs:             40,
		BatchesCompleted:            2,
		TotalBatches:                6,
		Timestamp:                   time.Now(),
		AccumulatedCharacters: []domain.AnalyzedCharacter{
			{
				Name:    "Elizabeth",
				Traits:  []string{"witty"},
				Dialogs: []string{"I am perfectly serious."},
				Voice:   &domain.VoiceProfile{Gender: "female", Age: "young-adult", Accent: "british", Pitch: 1.1, Speed: 1.0},
			},
			{Name: "Narrator"},
		},
	}
}

func TestSaveLoadCheckpoint_RoundTrip(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	cp := createTestCheckpoint("b1", "c1", "hash-1")
	require.NoError(t, s.SaveCheckpoint(ctx, cp))

	got, err := s.LoadCheckpoint(ctx, "b1", "c1", "hash-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, cp.LastProcessedParagraphIndex, got.LastProcessedParagraphIndex)
	assert.Equal(t, cp.TotalParagraphs, got.TotalParagraphs)
	assert.Equal(t, cp.BatchesCompleted, got.BatchesCompleted)
	assert.Equal(t, cp.TotalBatches, got.TotalBatches)
	require.Len(t, got.AccumulatedCharacters, 2)
	assert.Equal(t, "Elizabeth", got.AccumulatedCharacters[0].Name)
	assert.Equal(t, []string{"witty"}, got.AccumulatedCharacters[0].Traits)
	require.NotNil(t, got.AccumulatedCharacters[0].Voice)
	assert.InDelta(t, 1.1, got.AccumulatedCharacters[0].Voice.Pitch, 0.0001)
}

func TestSaveCheckpoint_ReplacesPrevious(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	cp := createTestCheckpoint("b1", "c1", "hash-1")
	require.NoError(t, s.SaveCheckpoint(ctx, cp))

	cp.BatchesCompleted = 3
	cp.LastProcessedParagraphIndex = 21
	require.NoError(t, s.SaveCheckpoint(ctx, cp))

	got, err := s.LoadCheckpoint(ctx, "b1", "c1", "hash-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.BatchesCompleted)
	assert.Equal(t, 21, got.LastProcessedParagraphIndex)
}

func TestLoadCheckpoint_MissingReturnsNil(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	got, err := s.LoadCheckpoint(context.Background(), "b1", "c1", "hash-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadCheckpoint_HashMismatchDiscards(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.SaveCheckpoint(ctx, createTestCheckpoint("b1", "c1", "hash-old")))

	// Chapter text changed, hash differs: nothing to resume from.
	got, err := s.LoadCheckpoint(ctx, "b1", "c1", "hash-new")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The stale checkpoint was deleted, not kept around.
	has, err := s.HasCheckpoint(ctx, "b1", "c1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLoadCheckpoint_CorruptDiscards(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	// Write garbage bytes where a checkpoint should be.
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey("b1", "c1"), []byte("{not json"))
	})
	require.NoError(t, err)

	got, err := s.LoadCheckpoint(ctx, "b1", "c1", "hash-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Corrupt data treated as absent and removed.
	has, err := s.HasCheckpoint(ctx, "b1", "c1")
	require.NoError(t, err)
	assert.False(t, has)

	// A fresh save works afterwards.
	require.NoError(t, s.SaveCheckpoint(ctx, createTestCheckpoint("b1", "c1", "hash-1")))
	reloaded, err := s.LoadCheckpoint(ctx, "b1", "c1", "hash-1")
	require.NoError(t, err)
	assert.NotNil(t, reloaded)
}

func TestDeleteCheckpoint_Idempotent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.SaveCheckpoint(ctx, createTestCheckpoint("b1", "c1", "hash-1")))

	require.NoError(t, s.DeleteCheckpoint(ctx, "b1", "c1"))
	require.NoError(t, s.DeleteCheckpoint(ctx, "b1", "c1"))

	got, err := s.LoadCheckpoint(ctx, "b1", "c1", "hash-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteCheckpointsByBook(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.SaveCheckpoint(ctx, createTestCheckpoint("b1", "c1", "h1")))
	require.NoError(t, s.SaveCheckpoint(ctx, createTestCheckpoint("b1", "c2", "h2")))
	require.NoError(t, s.SaveCheckpoint(ctx, createTestCheckpoint("b2", "c1", "h3")))

	require.NoError(t, s.DeleteCheckpointsByBook(ctx, "b1"))

	for _, chapterID := range []string{"c1", "c2"} {
		has, err := s.HasCheckpoint(ctx, "b1", chapterID)
		require.NoError(t, err)
		assert.False(t, has)
	}

	// Other book untouched.
	has, err := s.HasCheckpoint(ctx, "b2", "c1")
	require.NoError(t, err)
	assert.True(t, has)
}
