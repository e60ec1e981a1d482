package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxbookapp/voxbook-server/internal/config"
	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/errors"
	"github.com/voxbookapp/voxbook-server/internal/executor"
	"github.com/voxbookapp/voxbook-server/internal/id"
	"github.com/voxbookapp/voxbook-server/internal/normalize"
	"github.com/voxbookapp/voxbook-server/internal/sse"
	"github.com/voxbookapp/voxbook-server/internal/store"
)

// jobPollInterval is the worker's fallback poll cadence for pending jobs
// when no notification arrives (e.g. jobs recovered at startup).
const jobPollInterval = 5 * time.Second

// AnalysisService is the book-level analysis queue. It owns the durable
// job records, sequences each book's chapters through the executor one at
// a time, and persists completed chapter results. Chapters that already
// have an analysis artifact are never re-run; re-enqueueing a partially
// analyzed book picks up exactly the chapters that are missing.
type AnalysisService struct {
	store    *store.Store
	emitter  *sse.Manager
	executor *executor.Executor
	logger   *slog.Logger
	config   config.AnalysisConfig

	// Worker management
	ctx       context.Context //nolint:containedctx // Context needed for worker lifecycle management
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	jobNotify chan struct{} // Signal that new jobs are available
}

// NewAnalysisService creates the analysis queue.
func NewAnalysisService(
	st *store.Store,
	emitter *sse.Manager,
	exec *executor.Executor,
	cfg config.AnalysisConfig,
	logger *slog.Logger,
) *AnalysisService {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	return &AnalysisService{
		store:     st,
		emitter:   emitter,
		executor:  exec,
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		jobNotify: make(chan struct{}, 1),
	}
}

// Start launches the queue workers and recovers jobs orphaned by a
// previous process that died mid-analysis.
func (s *AnalysisService) Start() {
	if !s.config.Enabled {
		s.logger.Info("analysis disabled, not starting workers")
		return
	}

	s.recoverOrphanedJobs()

	s.logger.Info("starting analysis workers", slog.Int("workers", s.config.MaxConcurrent))
	for i := range s.config.MaxConcurrent {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop shuts the queue down. The running chapter task is cancelled
// cooperatively; its checkpoint lets the next start resume mid-chapter.
func (s *AnalysisService) Stop() {
	s.logger.Info("stopping analysis service")
	s.cancel()
	// Supervised chapter tasks are not tied to the worker context; ask
	// them to stop at their next batch boundary so Stop returns promptly.
	for _, taskID := range s.executor.ActiveTasks() {
		if err := s.executor.Cancel(taskID); err != nil && !errors.Is(err, errors.ErrNotFound) {
			s.logger.Warn("failed to cancel task during shutdown", slog.String("task_id", taskID))
		}
	}
	s.wg.Wait()
	s.logger.Info("analysis service stopped")
}

// NotifyNewJob signals workers that a new job is available.
func (s *AnalysisService) NotifyNewJob() {
	select {
	case s.jobNotify <- struct{}{}:
	default:
		// Already notified
	}
}

// EnqueueBook schedules a book's unanalyzed chapters for analysis.
// Enqueueing a fully analyzed book is a no-op that returns the completed
// job; enqueueing a partially analyzed or failed book requeues it for the
// remaining chapters only.
func (s *AnalysisService) EnqueueBook(ctx context.Context, bookID string) (*domain.AnalysisJob, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	total, analyzed, err := s.chapterCounts(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, errors.NoContent("book has no chapters to analyze")
	}

	job, err := s.store.GetJobByBook(ctx, bookID)
	switch {
	case err == nil:
		if job.IsActive() {
			// Already queued or running; nothing to do.
			return job, nil
		}

		if job.Status == domain.AnalysisStatusCompleted && analyzed == total {
			return job, nil
		}

		job.Requeue()
		job.ChaptersTotal = total
		job.ChaptersDone = analyzed
		if err := s.store.UpdateJob(ctx, job); err != nil {
			return nil, err
		}

	case errors.Is(err, store.ErrNotFound):
		job = &domain.AnalysisJob{
			Syncable:      domain.Syncable{ID: id.MustGenerate("job")},
			BookID:        book.ID,
			Status:        domain.AnalysisStatusPending,
			ChaptersTotal: total,
			ChaptersDone:  analyzed,
		}
		job.InitTimestamps()
		if err := s.store.CreateJob(ctx, job); err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	s.emitter.Emit(sse.NewAnalysisJobEvent(sse.EventAnalysisQueued, job))
	s.NotifyNewJob()

	s.logger.Info("book enqueued for analysis",
		slog.String("book_id", bookID),
		slog.String("job_id", job.ID),
	)
	return job, nil
}

// CancelBook requests cooperative cancellation of a book's running
// analysis. The in-flight chapter stops between batches, leaving its
// checkpoint behind; the job settles as partial.
func (s *AnalysisService) CancelBook(ctx context.Context, bookID string) error {
	job, err := s.store.GetJobByBook(ctx, bookID)
	if err != nil {
		return err
	}
	if !job.IsActive() {
		return errors.Conflict(fmt.Sprintf("analysis for book %q is not running", bookID))
	}

	if job.CurrentChapterID != "" {
		// Ignore "no running task": the worker may be between chapters.
		if err := s.executor.Cancel(executor.ChapterTaskID(job.CurrentChapterID)); err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
	}

	if job.Status == domain.AnalysisStatusPending {
		// Never started; settle it directly.
		job.MarkPartial("cancelled before start")
		if err := s.store.UpdateJob(ctx, job); err != nil {
			return err
		}
		s.emitter.Emit(sse.NewAnalysisJobEvent(sse.EventAnalysisPartial, job))
	}

	s.logger.Info("analysis cancellation requested", slog.String("book_id", bookID))
	return nil
}

// GetBookStatus returns the book's analysis job, or nil if the book has
// never been enqueued.
func (s *AnalysisService) GetBookStatus(ctx context.Context, bookID string) (*domain.AnalysisJob, error) {
	job, err := s.store.GetJobByBook(ctx, bookID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// IsBookAnalyzed reports whether every chapter of the book has an analysis
// artifact. A book with zero chapters is never analyzed.
func (s *AnalysisService) IsBookAnalyzed(ctx context.Context, bookID string) (bool, error) {
	total, analyzed, err := s.chapterCounts(ctx, bookID)
	if err != nil {
		return false, err
	}
	return total > 0 && analyzed >= total, nil
}

// IsBookPartiallyAnalyzed reports whether at least one but not all of the
// book's chapters have an analysis artifact.
func (s *AnalysisService) IsBookPartiallyAnalyzed(ctx context.Context, bookID string) (bool, error) {
	total, analyzed, err := s.chapterCounts(ctx, bookID)
	if err != nil {
		return false, err
	}
	return analyzed > 0 && analyzed < total, nil
}

func (s *AnalysisService) chapterCounts(ctx context.Context, bookID string) (total, analyzed int, err error) {
	total, err = s.store.CountChaptersByBook(ctx, bookID)
	if err != nil {
		return 0, 0, err
	}
	analyzed, err = s.store.CountAnalysesByBook(ctx, bookID)
	if err != nil {
		return 0, 0, err
	}
	return total, analyzed, nil
}

// recoverOrphanedJobs requeues jobs stuck in the analyzing state from a
// previous process. Their chapters' checkpoints make the requeue cheap:
// completed chapters are skipped and the interrupted one resumes mid-way.
func (s *AnalysisService) recoverOrphanedJobs() {
	jobs, err := s.store.ListJobsByStatus(s.ctx, domain.AnalysisStatusAnalyzing)
	if err != nil {
		s.logger.Error("failed to list orphaned analysis jobs", slog.String("error", err.Error()))
		return
	}

	for _, job := range jobs {
		s.logger.Info("recovering orphaned analysis job",
			slog.String("job_id", job.ID),
			slog.String("book_id", job.BookID),
		)
		job.Requeue()
		if err := s.store.UpdateJob(s.ctx, job); err != nil {
			s.logger.Error("failed to requeue orphaned job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(jobs) > 0 {
		s.NotifyNewJob()
	}
}

// worker processes analysis jobs until the service stops.
func (s *AnalysisService) worker(workerID int) {
	defer s.wg.Done()

	logger := s.logger.With(slog.Int("worker", workerID))
	logger.Debug("analysis worker started")

	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Debug("analysis worker stopping")
			return
		case <-s.jobNotify:
			s.drainQueue(logger)
		case <-ticker.C:
			s.drainQueue(logger)
		}
	}
}

// drainQueue processes pending jobs until none remain, then drops the
// executor's model interest so the backend can unload between books.
func (s *AnalysisService) drainQueue(logger *slog.Logger) {
	worked := false
	for s.ctx.Err() == nil {
		job, err := s.nextPendingJob()
		if err != nil {
			logger.Error("failed to fetch pending analysis job", slog.String("error", err.Error()))
			return
		}
		if job == nil {
			break
		}
		worked = true
		s.processJob(job, logger)
	}

	if worked {
		if err := s.executor.Release(s.ctx); err != nil {
			logger.Warn("failed to release model session", slog.String("error", err.Error()))
		}
	}
}

// nextPendingJob claims the oldest pending job by moving it to analyzing.
// Claiming through the status transition keeps two workers off one book.
func (s *AnalysisService) nextPendingJob() (*domain.AnalysisJob, error) {
	pending, err := s.store.ListPendingJobs(s.ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	job := pending[0]
	job.MarkAnalyzing()
	if err := s.store.UpdateJob(s.ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// processJob runs one book's unanalyzed chapters through the executor in
// reading order. A chapter failure fails the job but keeps every completed
// chapter's artifact; cancellation settles the job as partial.
func (s *AnalysisService) processJob(job *domain.AnalysisJob, logger *slog.Logger) {
	logger = logger.With(slog.String("job_id", job.ID), slog.String("book_id", job.BookID))

	chapters, err := s.store.GetChaptersByBook(s.ctx, job.BookID)
	if err != nil {
		s.settleJob(job, domain.AnalysisStatusFailed, "load chapters: "+err.Error())
		return
	}
	if len(chapters) == 0 {
		s.settleJob(job, domain.AnalysisStatusFailed, "book has no chapters")
		return
	}

	job.ChaptersTotal = len(chapters)
	job.ChaptersDone = 0

	// Count already-analyzed chapters toward progress so a resumed job
	// reports where it actually is.
	pendingChapters := make([]*domain.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		analyzed, err := s.store.IsChapterAnalyzed(s.ctx, job.BookID, ch.ID)
		if err != nil {
			s.settleJob(job, domain.AnalysisStatusFailed, "check chapter artifact: "+err.Error())
			return
		}
		if analyzed {
			job.ChaptersDone++
		} else {
			pendingChapters = append(pendingChapters, ch)
		}
	}

	if err := s.store.UpdateJob(s.ctx, job); err != nil {
		logger.Error("failed to update job", slog.String("error", err.Error()))
	}
	s.emitter.Emit(sse.NewAnalysisJobEvent(sse.EventAnalysisStarted, job))

	logger.Info("analysis job started",
		slog.Int("chapters_total", job.ChaptersTotal),
		slog.Int("chapters_pending", len(pendingChapters)),
	)

	for _, chapter := range pendingChapters {
		if s.ctx.Err() != nil {
			s.settleJob(job, domain.AnalysisStatusPartial, "service stopping")
			return
		}

		done, err := s.processChapter(job, chapter, logger)
		if err != nil {
			s.settleJob(job, domain.AnalysisStatusFailed, err.Error())
			return
		}
		if !done {
			// Cancelled mid-chapter; the checkpoint holds its place.
			s.settleJob(job, domain.AnalysisStatusPartial, "cancelled")
			return
		}

		job.ChaptersDone++
		job.SetProgress(float64(job.ChaptersDone) / float64(job.ChaptersTotal) * 100)
		job.CurrentChapterID = ""
		if err := s.store.UpdateJob(s.ctx, job); err != nil {
			logger.Error("failed to update job progress", slog.String("error", err.Error()))
		}
	}

	s.settleJob(job, domain.AnalysisStatusCompleted, "")
	logger.Info("analysis job completed", slog.Int("chapters", job.ChaptersTotal))
}

// processChapter runs one chapter task. Returns (true, nil) when the
// chapter ended up with an artifact, (false, nil) on cancellation, and a
// non-nil error for failures that should fail the job.
func (s *AnalysisService) processChapter(job *domain.AnalysisJob, chapter *domain.Chapter, logger *slog.Logger) (bool, error) {
	job.CurrentChapterID = chapter.ID
	if err := s.store.UpdateJob(s.ctx, job); err != nil {
		logger.Error("failed to record current chapter", slog.String("error", err.Error()))
	}

	resumed, err := s.store.HasCheckpoint(s.ctx, job.BookID, chapter.ID)
	if err != nil {
		logger.Warn("failed to check for checkpoint", slog.String("error", err.Error()))
	}
	s.emitter.Emit(sse.NewAnalysisChapterStartedEvent(job.ID, job.BookID, chapter.ID, chapter.Index, resumed))

	task := executor.NewChapterAnalysisTask(chapter, s.store, logger)
	task.MaxInputTokens = s.config.MaxInputTokens
	task.Temperature = s.config.Temperature
	task.MaxBatchFailures = s.config.MaxBatchFailures
	onProgress := func(p executor.TaskProgress) {
		s.emitter.Emit(sse.NewAnalysisProgressEvent(job.ID, job.BookID, chapter.ID, p.Current, p.Total))
	}

	res, err := s.executor.Execute(s.ctx, task, executor.Options{AutoPersist: true}, onProgress)
	if err != nil {
		return false, err
	}

	result := res.TaskResult
	if result.Success {
		analysis, aerr := s.store.GetChapterAnalysis(s.ctx, job.BookID, chapter.ID)
		if aerr == nil {
			s.emitter.Emit(sse.NewAnalysisChapterCompleteEvent(job.ID, analysis))
		}
		return true, nil
	}

	switch errors.CodeOf(result.Err) {
	case errors.CodeCancelled:
		return false, nil

	case errors.CodeNoContent:
		// An empty chapter (blank pages, image-only PDF section) is not a
		// failure. Record an empty artifact so the book can still complete.
		empty := &domain.ChapterAnalysis{
			ID:           id.MustGenerate("ana"),
			BookID:       job.BookID,
			ChapterID:    chapter.ID,
			ChapterIndex: chapter.Index,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.store.SaveChapterAnalysis(s.ctx, empty); err != nil {
			return false, err
		}
		logger.Info("chapter has no analyzable content, recorded empty artifact",
			slog.String("chapter_id", chapter.ID),
		)
		s.emitter.Emit(sse.NewAnalysisChapterCompleteEvent(job.ID, empty))
		return true, nil

	default:
		s.emitter.Emit(sse.NewAnalysisChapterFailedEvent(job.ID, job.BookID, chapter.ID, chapter.Index, result.Err))
		return false, result.Err
	}
}

// settleJob moves the job to a terminal state and emits the matching event.
func (s *AnalysisService) settleJob(job *domain.AnalysisJob, status domain.AnalysisStatus, reason string) {
	var eventType sse.EventType
	switch status {
	case domain.AnalysisStatusCompleted:
		job.MarkCompleted()
		eventType = sse.EventAnalysisComplete
	case domain.AnalysisStatusPartial:
		job.MarkPartial(reason)
		eventType = sse.EventAnalysisPartial
	default:
		job.MarkFailed(reason)
		eventType = sse.EventAnalysisFailed
	}

	// The worker context may already be cancelled during shutdown; the
	// terminal state must still be recorded.
	if err := s.store.UpdateJob(context.WithoutCancel(s.ctx), job); err != nil {
		s.logger.Error("failed to settle analysis job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	s.emitter.Emit(sse.NewAnalysisJobEvent(eventType, job))
}

// Persist implements executor.Persister. It stores a successful chapter
// task's results: the chapter analysis artifact, the book-level character
// merge, and finally the checkpoint delete. Ordering matters: the artifact
// is written before the checkpoint is removed, so a crash between the two
// leaves a resumable chapter rather than a lost one.
func (s *AnalysisService) Persist(ctx context.Context, result *executor.TaskResult) (int, error) {
	data := result.ResultData
	bookID, _ := data["book_id"].(string)
	chapterID, _ := data["chapter_id"].(string)
	if bookID == "" || chapterID == "" {
		return 0, errors.Internal("task result missing book or chapter ID")
	}

	characters, _ := data["characters"].([]domain.AnalyzedCharacter)
	chapterIndex, _ := data["chapter_index"].(int)
	partial, _ := data["partial_range"].(bool)

	analysis := &domain.ChapterAnalysis{
		ID:           id.MustGenerate("ana"),
		BookID:       bookID,
		ChapterID:    chapterID,
		ChapterIndex: chapterIndex,
		Characters:   characters,
		CreatedAt:    time.Now().UTC(),
		ModelName:    asString(data["model_name"]),
	}
	analysis.ParagraphCount, _ = data["paragraph_count"].(int)
	analysis.BatchCount, _ = data["batch_count"].(int)
	analysis.DialogCount, _ = data["dialog_count"].(int)
	analysis.ResumedFromCheckpoint, _ = data["resumed_from_checkpoint"].(bool)
	analysis.PartialRange = partial

	// Partial runs keep their checkpoint and defer both the artifact and
	// the book-level character merge: the chapter is not analyzed until
	// its full range has been covered, and the completing run's snapshot
	// restores from the checkpoint so it already contains these batches.
	// Merging a partial snapshot now would tag the chapter as merged and
	// the remainder's dialogs would be skipped.
	if partial {
		return 0, nil
	}

	persisted := 0

	if err := s.store.SaveChapterAnalysis(ctx, analysis); err != nil {
		return persisted, err
	}
	persisted++

	for i := range characters {
		if err := s.mergeCharacter(ctx, bookID, chapterID, chapterIndex, &characters[i]); err != nil {
			return persisted, err
		}
		persisted++
	}

	if err := s.store.DeleteCheckpoint(ctx, bookID, chapterID); err != nil {
		// The artifact exists; a stale checkpoint only costs a skipped
		// resume check next time.
		s.logger.Warn("failed to delete checkpoint after analysis",
			slog.String("chapter_id", chapterID),
			slog.String("error", err.Error()),
		)
	}

	return persisted, nil
}

// mergeCharacter folds one chapter's character snapshot into the book-level
// record: traits union, dialogs append tagged with the chapter, voice
// filled from the chapter result when the stored one is absent.
func (s *AnalysisService) mergeCharacter(ctx context.Context, bookID, chapterID string, chapterIndex int, ac *domain.AnalyzedCharacter) error {
	existing, err := s.store.GetCharacterByName(ctx, bookID, ac.Name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c := &domain.Character{
			Syncable:      domain.Syncable{ID: id.MustGenerate("char")},
			BookID:        bookID,
			Name:          ac.Name,
			CanonicalName: normalize.Key(ac.Name),
			Traits:        ac.Traits,
			Voice:         ac.Voice,
			ChapterIDs:    []string{chapterID},
		}
		c.InitTimestamps()
		for _, d := range ac.Dialogs {
			c.Dialogs = append(c.Dialogs, domain.DialogLine{ChapterIndex: chapterIndex, Text: d})
		}
		return s.store.CreateCharacter(ctx, c)

	case err != nil:
		return err
	}

	if existing.HasChapter(chapterID) {
		// Re-analysis of a chapter already merged into this character;
		// re-appending its dialogs would duplicate them.
		return nil
	}

	for _, t := range ac.Traits {
		existing.AddTrait(t)
	}
	for _, d := range ac.Dialogs {
		existing.Dialogs = append(existing.Dialogs, domain.DialogLine{ChapterIndex: chapterIndex, Text: d})
	}
	if existing.Voice == nil {
		existing.Voice = ac.Voice
	}
	existing.ChapterIDs = append(existing.ChapterIDs, chapterID)

	return s.store.UpdateCharacter(ctx, existing)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
