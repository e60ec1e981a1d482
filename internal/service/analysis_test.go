package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxbookapp/voxbook-server/internal/config"
	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/errors"
	"github.com/voxbookapp/voxbook-server/internal/executor"
	"github.com/voxbookapp/voxbook-server/internal/id"
	"github.com/voxbookapp/voxbook-server/internal/model"
	"github.com/voxbookapp/voxbook-server/internal/sse"
	"github.com/voxbookapp/voxbook-server/internal/store"
)

// scriptedModel implements model.LanguageModel with canned responses in
// call order. Errors can be injected at specific call indexes.
type scriptedModel struct {
	mu        sync.Mutex
	loaded    bool
	responses []string
	errAt     map[int]error
	calls     int
}

func (f *scriptedModel) Name() string { return "scripted-model" }

func (f *scriptedModel) Load(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = true
	return nil
}

func (f *scriptedModel) IsLoaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

func (f *scriptedModel) Generate(_ context.Context, _ model.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if err, ok := f.errAt[idx]; ok {
		return "", err
	}
	if idx >= len(f.responses) {
		return "", errors.BatchFailedf("no scripted response for call %d", idx)
	}
	return f.responses[idx], nil
}

func (f *scriptedModel) Release(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = false
	return nil
}

func (f *scriptedModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupAnalysisTest wires a real store, an unstarted SSE manager, and an
// executor over the scripted backend into an analysis service.
func setupAnalysisTest(t *testing.T, backend *scriptedModel) (*AnalysisService, *store.Store) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "voxbook-analysis-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	logger := quietLogger()
	manager := sse.NewManager(logger)

	testStore, err := store.New(filepath.Join(tmpDir, "test.db"), logger, manager)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testStore.Close() })

	session := model.NewSession(backend, nil, logger)
	exec := executor.New(session, nil, config.AnalysisConfig{
		Enabled: true,
		// Keep test tasks short-lived so they stay tied to test contexts.
		SupervisedThreshold: time.Hour,
	}, logger)

	svc := NewAnalysisService(testStore, manager, exec, config.AnalysisConfig{
		Enabled:       true,
		MaxConcurrent: 1,
	}, logger)
	exec.SetPersister(svc)
	t.Cleanup(svc.cancel)

	return svc, testStore
}

// createTestBook seeds a book with short single-paragraph chapters, one
// inference batch each.
func createTestBook(t *testing.T, st *store.Store, chapterCount int) *domain.Book {
	t.Helper()
	ctx := context.Background()

	book := &domain.Book{
		Syncable:     domain.Syncable{ID: id.MustGenerate("book")},
		Title:        "Test Novel",
		Authors:      []string{"Test Author"},
		SourceFormat: domain.FormatText,
		ChapterCount: chapterCount,
		ImportedAt:   time.Now(),
	}
	book.InitTimestamps()
	require.NoError(t, st.CreateBook(ctx, book))

	for i := range chapterCount {
		ch := &domain.Chapter{
			ID:     id.MustGenerate("chap"),
			BookID: book.ID,
			Index:  i,
			Title:  fmt.Sprintf("Chapter %d", i+1),
			Pages:  []string{fmt.Sprintf("Some narrative text for chapter %d with a line of dialog.", i+1)},
		}
		require.NoError(t, st.CreateChapter(ctx, ch))
	}
	return book
}

func saveArtifact(t *testing.T, st *store.Store, bookID string, chapter *domain.Chapter) {
	t.Helper()
	require.NoError(t, st.SaveChapterAnalysis(context.Background(), &domain.ChapterAnalysis{
		ID:           id.MustGenerate("ana"),
		BookID:       bookID,
		ChapterID:    chapter.ID,
		ChapterIndex: chapter.Index,
		CreatedAt:    time.Now(),
	}))
}

const chapterOutput = `{"Hero": {"D": ["Onward!"], "T": ["brave"], "V": "female,adult,neutral,1.1,1.0"}}`

func TestIsBookAnalyzed_States(t *testing.T) {
	ctx := context.Background()
	svc, st := setupAnalysisTest(t, &scriptedModel{})

	t.Run("zero chapters is never analyzed", func(t *testing.T) {
		book := createTestBook(t, st, 0)
		analyzed, err := svc.IsBookAnalyzed(ctx, book.ID)
		require.NoError(t, err)
		assert.False(t, analyzed)

		partial, err := svc.IsBookPartiallyAnalyzed(ctx, book.ID)
		require.NoError(t, err)
		assert.False(t, partial)
	})

	t.Run("partial then complete", func(t *testing.T) {
		book := createTestBook(t, st, 2)
		chapters, err := st.GetChaptersByBook(ctx, book.ID)
		require.NoError(t, err)

		analyzed, err := svc.IsBookAnalyzed(ctx, book.ID)
		require.NoError(t, err)
		assert.False(t, analyzed, "no artifacts yet")

		saveArtifact(t, st, book.ID, chapters[0])

		analyzed, err = svc.IsBookAnalyzed(ctx, book.ID)
		require.NoError(t, err)
		assert.False(t, analyzed)
		partial, err := svc.IsBookPartiallyAnalyzed(ctx, book.ID)
		require.NoError(t, err)
		assert.True(t, partial)

		saveArtifact(t, st, book.ID, chapters[1])

		analyzed, err = svc.IsBookAnalyzed(ctx, book.ID)
		require.NoError(t, err)
		assert.True(t, analyzed)
		partial, err = svc.IsBookPartiallyAnalyzed(ctx, book.ID)
		require.NoError(t, err)
		assert.False(t, partial)
	})
}

func TestGetBookStatus_NeverEnqueued(t *testing.T) {
	svc, st := setupAnalysisTest(t, &scriptedModel{})
	book := createTestBook(t, st, 1)

	job, err := svc.GetBookStatus(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestEnqueueBook(t *testing.T) {
	ctx := context.Background()
	svc, st := setupAnalysisTest(t, &scriptedModel{})

	t.Run("unknown book", func(t *testing.T) {
		_, err := svc.EnqueueBook(ctx, "book-missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("creates pending job and is idempotent while active", func(t *testing.T) {
		book := createTestBook(t, st, 2)

		job, err := svc.EnqueueBook(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.AnalysisStatusPending, job.Status)

		again, err := svc.EnqueueBook(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, again.ID)
		assert.Equal(t, domain.AnalysisStatusPending, again.Status)
	})

	t.Run("completed book is a no-op", func(t *testing.T) {
		book := createTestBook(t, st, 1)
		chapters, err := st.GetChaptersByBook(ctx, book.ID)
		require.NoError(t, err)
		saveArtifact(t, st, book.ID, chapters[0])

		job, err := svc.EnqueueBook(ctx, book.ID)
		require.NoError(t, err)
		job.MarkCompleted()
		require.NoError(t, st.UpdateJob(ctx, job))

		again, err := svc.EnqueueBook(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.AnalysisStatusCompleted, again.Status, "re-enqueue of completed book must not requeue")
	})
}

func TestDrainQueue_CompletesBook(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedModel{responses: []string{chapterOutput, chapterOutput}}
	svc, st := setupAnalysisTest(t, backend)
	book := createTestBook(t, st, 2)

	_, err := svc.EnqueueBook(ctx, book.ID)
	require.NoError(t, err)

	svc.drainQueue(quietLogger())

	job, err := svc.GetBookStatus(ctx, book.ID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.AnalysisStatusCompleted, job.Status)
	assert.Equal(t, 2, job.ChaptersDone)
	assert.InDelta(t, 100.0, job.Progress, 0.01)

	analyzed, err := svc.IsBookAnalyzed(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, analyzed)

	// One inference call per single-batch chapter.
	assert.Equal(t, 2, backend.callCount())

	// Book-level merge created the extracted character plus the narrator.
	characters, err := st.ListCharactersByBook(ctx, book.ID)
	require.NoError(t, err)
	names := make(map[string]*domain.Character, len(characters))
	for _, c := range characters {
		names[c.Name] = c
	}
	require.Contains(t, names, "Hero")
	assert.Contains(t, names, domain.NarratorName)

	hero := names["Hero"]
	assert.Equal(t, []string{"brave"}, hero.Traits, "traits union across chapters")
	assert.Len(t, hero.Dialogs, 2, "dialog lines append per chapter")
	assert.Len(t, hero.ChapterIDs, 2)
	require.NotNil(t, hero.Voice)
	assert.Equal(t, "female", hero.Voice.Gender)

	// Chapter checkpoints are gone once artifacts exist.
	chapters, err := st.GetChaptersByBook(ctx, book.ID)
	require.NoError(t, err)
	for _, ch := range chapters {
		has, err := st.HasCheckpoint(ctx, book.ID, ch.ID)
		require.NoError(t, err)
		assert.False(t, has)
	}

	// Queue drained, so the executor dropped its model interest.
	assert.False(t, svc.executor.IsModelLoaded())
}

func TestDrainQueue_FailureKeepsCompletedArtifacts(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedModel{
		responses: []string{chapterOutput, "", chapterOutput},
		errAt:     map[int]error{1: errors.ModelUnavailable("backend went away")},
	}
	svc, st := setupAnalysisTest(t, backend)
	book := createTestBook(t, st, 2)

	_, err := svc.EnqueueBook(ctx, book.ID)
	require.NoError(t, err)
	svc.drainQueue(quietLogger())

	job, err := svc.GetBookStatus(ctx, book.ID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, domain.AnalysisStatusFailed, job.Status)
	assert.NotEmpty(t, job.Error)

	// First chapter's artifact survives the failure.
	partial, err := svc.IsBookPartiallyAnalyzed(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, partial)

	// Re-enqueue resumes with only the unanalyzed chapter.
	callsBefore := backend.callCount()
	_, err = svc.EnqueueBook(ctx, book.ID)
	require.NoError(t, err)
	svc.drainQueue(quietLogger())

	assert.Equal(t, callsBefore+1, backend.callCount(), "only the missing chapter should run")

	job, err = svc.GetBookStatus(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisStatusCompleted, job.Status)
}

func TestDrainQueue_EmptyChapterRecordsEmptyArtifact(t *testing.T) {
	ctx := context.Background()
	svc, st := setupAnalysisTest(t, &scriptedModel{responses: []string{chapterOutput}})
	book := createTestBook(t, st, 1)

	// A chapter with no usable text (e.g. an image-only PDF section).
	blank := &domain.Chapter{
		ID:     id.MustGenerate("chap"),
		BookID: book.ID,
		Index:  1,
		Title:  "Plates",
		Pages:  []string{"   \n\n  "},
	}
	require.NoError(t, st.CreateChapter(ctx, blank))

	_, err := svc.EnqueueBook(ctx, book.ID)
	require.NoError(t, err)
	svc.drainQueue(quietLogger())

	job, err := svc.GetBookStatus(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisStatusCompleted, job.Status)

	artifact, err := st.GetChapterAnalysis(ctx, book.ID, blank.ID)
	require.NoError(t, err)
	assert.Empty(t, artifact.Characters)
	assert.Zero(t, artifact.BatchCount)
}

func TestCancelBook_NotRunning(t *testing.T) {
	ctx := context.Background()
	svc, st := setupAnalysisTest(t, &scriptedModel{})
	book := createTestBook(t, st, 1)

	err := svc.CancelBook(ctx, book.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "never enqueued")

	_, err = svc.EnqueueBook(ctx, book.ID)
	require.NoError(t, err)

	// Pending but not started: settles as partial.
	require.NoError(t, svc.CancelBook(ctx, book.ID))
	job, err := svc.GetBookStatus(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisStatusPartial, job.Status)

	err = svc.CancelBook(ctx, book.ID)
	assert.Error(t, err, "cancel of a settled job is a conflict")
}

func TestPersist_OrdersArtifactBeforeCheckpointDelete(t *testing.T) {
	ctx := context.Background()
	svc, st := setupAnalysisTest(t, &scriptedModel{})
	book := createTestBook(t, st, 1)
	chapters, err := st.GetChaptersByBook(ctx, book.ID)
	require.NoError(t, err)
	chapter := chapters[0]

	require.NoError(t, st.SaveCheckpoint(ctx, &domain.Checkpoint{
		BookID:                      book.ID,
		ChapterID:                   chapter.ID,
		ContentHash:                 "hash",
		LastProcessedParagraphIndex: 2,
		TotalParagraphs:             4,
		BatchesCompleted:            1,
		TotalBatches:                2,
		Timestamp:                   time.Now(),
	}))

	result := &executor.TaskResult{
		TaskID:  executor.ChapterTaskID(chapter.ID),
		Success: true,
		ResultData: map[string]any{
			"book_id":       book.ID,
			"chapter_id":    chapter.ID,
			"chapter_index": chapter.Index,
			"characters": []domain.AnalyzedCharacter{
				{Name: "Hero", Traits: []string{"brave"}, Dialogs: []string{"Onward!"}},
			},
			"character_count": 1,
			"dialog_count":    1,
			"paragraph_count": 4,
			"batch_count":     2,
			"partial_range":   false,
		},
	}

	persisted, err := svc.Persist(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, 2, persisted, "one artifact plus one character")

	_, err = st.GetChapterAnalysis(ctx, book.ID, chapter.ID)
	require.NoError(t, err)

	has, err := st.HasCheckpoint(ctx, book.ID, chapter.ID)
	require.NoError(t, err)
	assert.False(t, has, "checkpoint removed after artifact write")

	// Persisting the same chapter again must not duplicate dialog lines.
	_, err = svc.Persist(ctx, result)
	require.NoError(t, err)
	hero, err := st.GetCharacterByName(ctx, book.ID, "hero")
	require.NoError(t, err)
	assert.Len(t, hero.Dialogs, 1)
}

func TestPersist_PartialRangeKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	svc, st := setupAnalysisTest(t, &scriptedModel{})
	book := createTestBook(t, st, 1)
	chapters, err := st.GetChaptersByBook(ctx, book.ID)
	require.NoError(t, err)
	chapter := chapters[0]

	require.NoError(t, st.SaveCheckpoint(ctx, &domain.Checkpoint{
		BookID:      book.ID,
		ChapterID:   chapter.ID,
		ContentHash: "hash",
		Timestamp:   time.Now(),
	}))

	result := &executor.TaskResult{
		TaskID:  executor.ChapterTaskID(chapter.ID),
		Success: true,
		ResultData: map[string]any{
			"book_id":       book.ID,
			"chapter_id":    chapter.ID,
			"chapter_index": chapter.Index,
			"characters":    []domain.AnalyzedCharacter{{Name: "Hero"}},
			"partial_range": true,
		},
	}

	persisted, err := svc.Persist(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, 0, persisted, "partial range persists nothing yet")

	_, err = st.GetChapterAnalysis(ctx, book.ID, chapter.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "partial run leaves no artifact")

	_, err = st.GetCharacterByName(ctx, book.ID, "hero")
	assert.ErrorIs(t, err, store.ErrNotFound, "book-level merge waits for the completing run")

	has, err := st.HasCheckpoint(ctx, book.ID, chapter.ID)
	require.NoError(t, err)
	assert.True(t, has, "partial run keeps its checkpoint")
}

func TestPersist_PartialThenCompleteKeepsAllDialogs(t *testing.T) {
	ctx := context.Background()
	svc, st := setupAnalysisTest(t, &scriptedModel{})
	book := createTestBook(t, st, 1)
	chapters, err := st.GetChaptersByBook(ctx, book.ID)
	require.NoError(t, err)
	chapter := chapters[0]

	// First run covers batch 1 only.
	partial := &executor.TaskResult{
		TaskID:  executor.ChapterTaskID(chapter.ID),
		Success: true,
		ResultData: map[string]any{
			"book_id":       book.ID,
			"chapter_id":    chapter.ID,
			"chapter_index": chapter.Index,
			"characters": []domain.AnalyzedCharacter{
				{Name: "Hero", Traits: []string{"brave"}, Dialogs: []string{"Onward!"}},
			},
			"partial_range": true,
		},
	}
	_, err = svc.Persist(ctx, partial)
	require.NoError(t, err)

	// The completing run restores the checkpoint, so its snapshot holds
	// the full chapter: the first run's dialog plus the remainder's.
	complete := &executor.TaskResult{
		TaskID:  executor.ChapterTaskID(chapter.ID),
		Success: true,
		ResultData: map[string]any{
			"book_id":       book.ID,
			"chapter_id":    chapter.ID,
			"chapter_index": chapter.Index,
			"characters": []domain.AnalyzedCharacter{
				{Name: "Hero", Traits: []string{"brave", "weary"}, Dialogs: []string{"Onward!", "We made it."}},
			},
			"dialog_count":            2,
			"batch_count":             2,
			"resumed_from_checkpoint": true,
			"partial_range":           false,
		},
	}
	_, err = svc.Persist(ctx, complete)
	require.NoError(t, err)

	hero, err := st.GetCharacterByName(ctx, book.ID, "hero")
	require.NoError(t, err)
	assert.Len(t, hero.Dialogs, 2, "dialogs from both ranges reach the book level")
	assert.ElementsMatch(t, []string{"brave", "weary"}, hero.Traits)
	assert.Equal(t, []string{chapter.ID}, hero.ChapterIDs, "chapter merged exactly once")
}
