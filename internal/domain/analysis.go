package domain

import "time"

// AnalysisStatus represents the state of a book analysis job.
type AnalysisStatus string

const (
	AnalysisStatusPending   AnalysisStatus = "pending"
	AnalysisStatusAnalyzing AnalysisStatus = "analyzing"
	AnalysisStatusCompleted AnalysisStatus = "completed"
	// AnalysisStatusPartial means the job stopped with some chapters
	// analyzed and some not (cancellation, or analysis disabled mid-run).
	// A later enqueue resumes from the unanalyzed chapters.
	AnalysisStatusPartial AnalysisStatus = "partial"
	AnalysisStatusFailed  AnalysisStatus = "failed"
)

// AnalysisJob represents the durable queue record for analyzing one book.
// Jobs are created when a book is imported (with auto-analyze on) or when
// analysis is requested explicitly. One job per book; re-enqueueing reuses
// the record.
type AnalysisJob struct {
	Syncable
	BookID string `json:"book_id"`

	// Job state
	Status           AnalysisStatus `json:"status"`
	ChaptersTotal    int            `json:"chapters_total"`
	ChaptersDone     int            `json:"chapters_done"`
	CurrentChapterID string         `json:"current_chapter_id,omitempty"`
	Progress         float64        `json:"progress"` // 0-100
	Error            string         `json:"error,omitempty"`

	// Timestamps
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MarkAnalyzing transitions the job to the analyzing state.
func (j *AnalysisJob) MarkAnalyzing() {
	j.Status = AnalysisStatusAnalyzing
	now := time.Now()
	j.StartedAt = &now
	j.CompletedAt = nil
	j.Error = ""
	j.Progress = 0
	j.Touch()
}

// MarkCompleted transitions the job to completed state.
func (j *AnalysisJob) MarkCompleted() {
	j.Status = AnalysisStatusCompleted
	j.Progress = 100
	j.CurrentChapterID = ""
	now := time.Now()
	j.CompletedAt = &now
	j.Touch()
}

// MarkPartial records that the run stopped with work remaining. Completed
// chapters keep their artifacts; a later run picks up the rest.
func (j *AnalysisJob) MarkPartial(reason string) {
	j.Status = AnalysisStatusPartial
	j.Error = reason
	j.CurrentChapterID = ""
	now := time.Now()
	j.CompletedAt = &now
	j.Touch()
}

// MarkFailed transitions the job to failed state with an error message.
func (j *AnalysisJob) MarkFailed(err string) {
	j.Status = AnalysisStatusFailed
	j.Error = err
	j.CurrentChapterID = ""
	now := time.Now()
	j.CompletedAt = &now
	j.Touch()
}

// Requeue resets the job to pending so the worker picks it up again.
// Used on explicit re-enqueue and when recovering jobs orphaned by a
// previous process that died mid-analysis.
func (j *AnalysisJob) Requeue() {
	j.Status = AnalysisStatusPending
	j.CurrentChapterID = ""
	j.Error = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.Touch()
}

// SetProgress updates the job's progress percentage, clamped to [0, 100].
func (j *AnalysisJob) SetProgress(percent float64) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	j.Progress = percent
}

// IsActive returns true while the job still needs or is receiving work.
func (j *AnalysisJob) IsActive() bool {
	return j.Status == AnalysisStatusPending || j.Status == AnalysisStatusAnalyzing
}

// IsTerminal returns true once the job has reached a settled state.
func (j *AnalysisJob) IsTerminal() bool {
	switch j.Status {
	case AnalysisStatusCompleted, AnalysisStatusPartial, AnalysisStatusFailed:
		return true
	default:
		return false
	}
}
