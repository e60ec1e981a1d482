package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxbookapp/voxbook-server/internal/analysis"
	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/errors"
	"github.com/voxbookapp/voxbook-server/internal/model"
)

// batchDurationEstimate is the planning figure for one inference call on
// modest local hardware. Used only for supervision mode selection, never as
// a timeout.
const batchDurationEstimate = 45 * time.Second

// ChapterTaskID returns the deterministic task ID for a chapter's analysis
// run, so callers can cancel by chapter without tracking executions.
func ChapterTaskID(chapterID string) string {
	return "analyze-chapter:" + chapterID
}

// ChapterAnalysisTask extracts characters, dialogs, traits, and voice
// profiles from one chapter in token-budgeted batches, checkpointing after
// every batch so an interrupted run resumes instead of restarting.
//
// The task never deletes its checkpoint: the persister removes it only
// after the analysis artifact is durably written, so a crash between the
// two leaves a resumable chapter, never a half-recorded one.
type ChapterAnalysisTask struct {
	chapter     *domain.Chapter
	checkpoints CheckpointStore
	voices      analysis.VoiceMergeStrategy
	logger      *slog.Logger

	// MaxInputTokens overrides the per-batch passage budget. Zero means
	// analysis.DefaultInputTokens.
	MaxInputTokens int
	// Temperature overrides the extraction sampling temperature. Zero
	// means analysis.ExtractionTemperature.
	Temperature float64
	// MaxBatchFailures fails the run after that many consecutive
	// unparseable batches. Zero disables the cutoff.
	MaxBatchFailures int
	// MaxBatches stops the run after that many batches, leaving a
	// checkpoint for the remainder. Zero processes the whole chapter.
	MaxBatches int
}

// NewChapterAnalysisTask builds a task for one chapter with the default
// voice merge strategy.
func NewChapterAnalysisTask(chapter *domain.Chapter, checkpoints CheckpointStore, logger *slog.Logger) *ChapterAnalysisTask {
	return &ChapterAnalysisTask{
		chapter:     chapter,
		checkpoints: checkpoints,
		voices:      analysis.LastNonDefaultWins{},
		logger:      logger,
	}
}

func (t *ChapterAnalysisTask) ID() string   { return ChapterTaskID(t.chapter.ID) }
func (t *ChapterAnalysisTask) Kind() string { return "chapter_analysis" }

// EstimatedDuration scales with the chapter's token estimate. Long chapters
// run supervised; a short closing chapter can stay short-lived.
func (t *ChapterAnalysisTask) EstimatedDuration() time.Duration {
	batches := analysis.EstimateTokens(t.chapter.Text())/t.inputBudget() + 1
	return time.Duration(batches) * batchDurationEstimate
}

func (t *ChapterAnalysisTask) inputBudget() int {
	if t.MaxInputTokens > 0 {
		return t.MaxInputTokens
	}
	return analysis.DefaultInputTokens
}

func (t *ChapterAnalysisTask) temperature() float64 {
	if t.Temperature > 0 {
		return t.Temperature
	}
	return analysis.ExtractionTemperature
}

// Run executes the pipeline: segment, fingerprint, resume from checkpoint
// when one matches, then per batch build the prompt, run inference, parse,
// merge, checkpoint, and report progress.
func (t *ChapterAnalysisTask) Run(ctx context.Context, session *model.Session, onProgress ProgressFunc) (*TaskResult, error) {
	paragraphs, _ := analysis.Segment(t.chapter.Pages)
	if len(paragraphs) == 0 {
		return &TaskResult{
			TaskID:  t.ID(),
			Success: false,
			Err:     errors.NoContent(fmt.Sprintf("chapter %q has no text to analyze", t.chapter.ID)),
		}, nil
	}

	hash := analysis.Fingerprint(paragraphs)

	acc := analysis.NewAccumulator()
	startFrom := 0
	batchesDone := 0
	resumed := false

	cp, err := t.checkpoints.LoadCheckpoint(ctx, t.chapter.BookID, t.chapter.ID, hash)
	if err != nil {
		t.logger.Warn("checkpoint load failed, starting fresh",
			"chapter_id", t.chapter.ID,
			"error", err,
		)
	} else if cp != nil {
		acc = analysis.RestoreAccumulator(cp.AccumulatedCharacters)
		startFrom = cp.LastProcessedParagraphIndex
		batchesDone = cp.BatchesCompleted
		resumed = true
		t.logger.Info("resuming chapter analysis from checkpoint",
			"chapter_id", t.chapter.ID,
			"paragraph", startFrom,
			"batches_completed", batchesDone,
		)
	}

	// Greedy batching is deterministic, so resuming at a batch boundary
	// reproduces the boundaries a fresh run would have produced from there.
	batches := analysis.CreateBatches(paragraphs, t.inputBudget(), startFrom)
	totalBatches := batchesDone + len(batches)

	coveredEnd := startFrom
	partial := false
	failStreak := 0

	for i, batch := range batches {
		if ctx.Err() != nil {
			return t.cancelledResult(batchesDone, totalBatches), nil
		}

		raw, err := session.Generate(ctx, model.GenerateRequest{
			System:      analysis.BatchSystemPrompt,
			Prompt:      analysis.BuildBatchPrompt(batch.Text),
			MaxTokens:   analysis.DefaultOutputTokens,
			Temperature: t.temperature(),
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, errors.ErrCancelled) {
				return t.cancelledResult(batchesDone, totalBatches), nil
			}
			return &TaskResult{
				TaskID:  t.ID(),
				Success: false,
				Err:     toDomainError(err, errors.CodeModelUnavailable, "batch inference failed"),
			}, nil
		}

		extraction, err := analysis.ParseBatchOutput(raw)
		if err != nil {
			// A garbled batch contributes nothing; the rest of the chapter
			// is still worth analyzing. A streak of them means the model is
			// off the rails, so stop before checkpointing past this batch
			// and let a later run retry it.
			failStreak++
			t.logger.Warn("skipping unparseable batch output",
				"chapter_id", t.chapter.ID,
				"batch", batch.BatchIndex,
				"consecutive_failures", failStreak,
				"error", err,
			)
			if t.MaxBatchFailures > 0 && failStreak >= t.MaxBatchFailures {
				return &TaskResult{
					TaskID:  t.ID(),
					Success: false,
					Err:     errors.BatchFailedf("%d consecutive batches produced unparseable output", failStreak),
				}, nil
			}
		} else {
			failStreak = 0
			acc.Merge(extraction, t.voices)
		}

		batchesDone++
		coveredEnd = batch.EndParagraph

		checkpoint := &domain.Checkpoint{
			BookID:                      t.chapter.BookID,
			ChapterID:                   t.chapter.ID,
			ContentHash:                 hash,
			LastProcessedParagraphIndex: batch.EndParagraph,
			TotalParagraphs:             len(paragraphs),
			BatchesCompleted:            batchesDone,
			TotalBatches:                totalBatches,
			Timestamp:                   time.Now().UTC(),
			AccumulatedCharacters:       acc.Snapshot(),
		}
		// A batch that finished must survive caller cancellation.
		if err := t.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), checkpoint); err != nil {
			return &TaskResult{
				TaskID:  t.ID(),
				Success: false,
				Err:     toDomainError(err, errors.CodeInternal, "persist checkpoint"),
			}, nil
		}

		if onProgress != nil {
			onProgress(TaskProgress{
				TaskID:  t.ID(),
				Stage:   "batch",
				Current: batchesDone,
				Total:   totalBatches,
				Percent: float64(batchesDone) / float64(totalBatches) * 100,
			})
		}

		if t.MaxBatches > 0 && i+1 >= t.MaxBatches {
			partial = true
			break
		}
	}

	if !partial {
		acc.EnsureNarrator()
	}

	firstPage, lastPage := analysis.PageRange(paragraphs, startFrom, coveredEnd)
	snapshot := acc.Snapshot()

	return &TaskResult{
		TaskID:  t.ID(),
		Success: true,
		ResultData: map[string]any{
			"book_id":                 t.chapter.BookID,
			"chapter_id":              t.chapter.ID,
			"chapter_index":           t.chapter.Index,
			"characters":              snapshot,
			"character_count":         len(snapshot),
			"dialog_count":            acc.DialogCount(),
			"paragraph_count":         len(paragraphs),
			"batch_count":             totalBatches,
			"resumed_from_checkpoint": resumed,
			"partial_range":           partial,
			"page_first":              firstPage,
			"page_last":               lastPage,
			"model_name":              session.Name(),
		},
	}, nil
}

func (t *ChapterAnalysisTask) cancelledResult(batchesDone, totalBatches int) *TaskResult {
	return &TaskResult{
		TaskID:  t.ID(),
		Success: false,
		Err:     errors.Cancelled(fmt.Sprintf("chapter analysis cancelled after %d of %d batches", batchesDone, totalBatches)),
	}
}
