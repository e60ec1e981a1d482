// Package sse implements Server-Sent Events for real-time library updates and event broadcasting.
package sse

import (
	"time"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

// VoxBook uses SSE for server-to-client communication only. The reader UI
// subscribes once and renders import and analysis progress as it happens;
// everything else follows a request/response pattern.

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventBookCreated represents a book creation event.
	EventBookCreated EventType = "book.created"
	// EventBookUpdated represents a book update event.
	EventBookUpdated EventType = "book.updated"
	// EventBookDeleted represents a book deletion event.
	EventBookDeleted EventType = "book.deleted"

	// EventImportStarted represents the start of a file import.
	EventImportStarted EventType = "import.started"
	// EventImportComplete represents a finished file import.
	EventImportComplete EventType = "import.completed"
	// EventImportFailed represents a failed file import.
	EventImportFailed EventType = "import.failed"

	// EventAnalysisQueued represents a book being enqueued for analysis.
	EventAnalysisQueued EventType = "analysis.queued"
	// EventAnalysisStarted represents a job starting to run.
	EventAnalysisStarted EventType = "analysis.started"
	// EventAnalysisChapterStarted represents one chapter starting analysis.
	EventAnalysisChapterStarted EventType = "analysis.chapter_started"
	// EventAnalysisProgress represents batch-level progress within a chapter.
	EventAnalysisProgress EventType = "analysis.progress"
	// EventAnalysisChapterComplete represents one chapter finishing analysis.
	EventAnalysisChapterComplete EventType = "analysis.chapter_completed"
	// EventAnalysisChapterFailed represents one chapter failing analysis.
	EventAnalysisChapterFailed EventType = "analysis.chapter_failed"
	// EventAnalysisComplete represents a job finishing with every chapter analyzed.
	EventAnalysisComplete EventType = "analysis.completed"
	// EventAnalysisPartial represents a job stopping with chapters remaining.
	EventAnalysisPartial EventType = "analysis.partial"
	// EventAnalysisFailed represents a job failing.
	EventAnalysisFailed EventType = "analysis.failed"

	// EventCharacterCreated represents a newly discovered character.
	EventCharacterCreated EventType = "character.created"
	// EventCharacterUpdated represents a character gaining dialog or traits.
	EventCharacterUpdated EventType = "character.updated"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"` // Event-specific data as JSON object
	Type      EventType `json:"type"`
}

// BookEventData is the data payload for book events. Book records are
// self-contained (authors are plain strings), so the domain model is sent
// as-is and renders without further queries.
type BookEventData struct {
	Book *domain.Book `json:"book"`
}

// BookDeletedEventData is the data payload for book delete events.
type BookDeletedEventData struct {
	DeletedAt time.Time `json:"deleted_at"`
	BookID    string    `json:"book_id"`
}

// ImportStartedEventData is the data payload for import start events.
type ImportStartedEventData struct {
	StartedAt time.Time `json:"started_at"`
	Path      string    `json:"path"`
}

// ImportCompleteEventData is the data payload for import completion events.
type ImportCompleteEventData struct {
	CompletedAt time.Time `json:"completed_at"`
	BookID      string    `json:"book_id"`
	Title       string    `json:"title"`
	Chapters    int       `json:"chapters"`
}

// ImportFailedEventData is the data payload for import failure events.
type ImportFailedEventData struct {
	FailedAt time.Time `json:"failed_at"`
	Path     string    `json:"path"`
	Error    string    `json:"error"`
}

// AnalysisJobEventData is the data payload for job lifecycle events
// (queued, started, completed, partial, failed).
type AnalysisJobEventData struct {
	JobID         string  `json:"job_id"`
	BookID        string  `json:"book_id"`
	Status        string  `json:"status"`
	ChaptersTotal int     `json:"chapters_total"`
	ChaptersDone  int     `json:"chapters_done"`
	Progress      float64 `json:"progress"`
	Error         string  `json:"error,omitempty"`
}

// AnalysisChapterEventData is the data payload for chapter-level events.
type AnalysisChapterEventData struct {
	JobID        string `json:"job_id"`
	BookID       string `json:"book_id"`
	ChapterID    string `json:"chapter_id"`
	ChapterIndex int    `json:"chapter_index"`
	Resumed      bool   `json:"resumed,omitempty"`
	Characters   int    `json:"characters,omitempty"`
	Dialogs      int    `json:"dialogs,omitempty"`
	Error        string `json:"error,omitempty"`
}

// AnalysisProgressEventData is the data payload for batch progress events.
type AnalysisProgressEventData struct {
	JobID            string  `json:"job_id"`
	BookID           string  `json:"book_id"`
	ChapterID        string  `json:"chapter_id"`
	BatchesCompleted int     `json:"batches_completed"`
	TotalBatches     int     `json:"total_batches"`
	Percent          float64 `json:"percent"`
}

// CharacterEventData is the data payload for character events.
type CharacterEventData struct {
	Character *domain.Character `json:"character"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewBookCreatedEvent creates a book.created event.
func NewBookCreatedEvent(book *domain.Book) Event {
	return Event{
		Type:      EventBookCreated,
		Data:      BookEventData{Book: book},
		Timestamp: time.Now(),
	}
}

// NewBookUpdatedEvent creates a book.updated event.
func NewBookUpdatedEvent(book *domain.Book) Event {
	return Event{
		Type:      EventBookUpdated,
		Data:      BookEventData{Book: book},
		Timestamp: time.Now(),
	}
}

// NewBookDeletedEvent creates a book.deleted event.
func NewBookDeletedEvent(bookID string, deletedAt time.Time) Event {
	return Event{
		Type: EventBookDeleted,
		Data: BookDeletedEventData{
			BookID:    bookID,
			DeletedAt: deletedAt,
		},
		Timestamp: time.Now(),
	}
}

// NewImportStartedEvent creates an import.started event.
func NewImportStartedEvent(path string) Event {
	return Event{
		Type: EventImportStarted,
		Data: ImportStartedEventData{
			Path:      path,
			StartedAt: time.Now(),
		},
		Timestamp: time.Now(),
	}
}

// NewImportCompleteEvent creates an import.completed event.
func NewImportCompleteEvent(book *domain.Book) Event {
	return Event{
		Type: EventImportComplete,
		Data: ImportCompleteEventData{
			CompletedAt: time.Now(),
			BookID:      book.ID,
			Title:       book.Title,
			Chapters:    book.ChapterCount,
		},
		Timestamp: time.Now(),
	}
}

// NewImportFailedEvent creates an import.failed event.
func NewImportFailedEvent(path string, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Type: EventImportFailed,
		Data: ImportFailedEventData{
			FailedAt: time.Now(),
			Path:     path,
			Error:    msg,
		},
		Timestamp: time.Now(),
	}
}

// NewAnalysisJobEvent creates a job lifecycle event of the given type from
// the job's current state.
func NewAnalysisJobEvent(eventType EventType, job *domain.AnalysisJob) Event {
	return Event{
		Type: eventType,
		Data: AnalysisJobEventData{
			JobID:         job.ID,
			BookID:        job.BookID,
			Status:        string(job.Status),
			ChaptersTotal: job.ChaptersTotal,
			ChaptersDone:  job.ChaptersDone,
			Progress:      job.Progress,
			Error:         job.Error,
		},
		Timestamp: time.Now(),
	}
}

// NewAnalysisChapterStartedEvent creates an analysis.chapter_started event.
func NewAnalysisChapterStartedEvent(jobID, bookID, chapterID string, chapterIndex int, resumed bool) Event {
	return Event{
		Type: EventAnalysisChapterStarted,
		Data: AnalysisChapterEventData{
			JobID:        jobID,
			BookID:       bookID,
			ChapterID:    chapterID,
			ChapterIndex: chapterIndex,
			Resumed:      resumed,
		},
		Timestamp: time.Now(),
	}
}

// NewAnalysisProgressEvent creates an analysis.progress event from
// checkpoint counters.
func NewAnalysisProgressEvent(jobID, bookID, chapterID string, batchesCompleted, totalBatches int) Event {
	percent := 0.0
	if totalBatches > 0 {
		percent = float64(batchesCompleted) / float64(totalBatches) * 100
	}
	return Event{
		Type: EventAnalysisProgress,
		Data: AnalysisProgressEventData{
			JobID:            jobID,
			BookID:           bookID,
			ChapterID:        chapterID,
			BatchesCompleted: batchesCompleted,
			TotalBatches:     totalBatches,
			Percent:          percent,
		},
		Timestamp: time.Now(),
	}
}

// NewAnalysisChapterCompleteEvent creates an analysis.chapter_completed event.
func NewAnalysisChapterCompleteEvent(jobID string, analysis *domain.ChapterAnalysis) Event {
	return Event{
		Type: EventAnalysisChapterComplete,
		Data: AnalysisChapterEventData{
			JobID:        jobID,
			BookID:       analysis.BookID,
			ChapterID:    analysis.ChapterID,
			ChapterIndex: analysis.ChapterIndex,
			Resumed:      analysis.ResumedFromCheckpoint,
			Characters:   len(analysis.Characters),
			Dialogs:      analysis.DialogCount,
		},
		Timestamp: time.Now(),
	}
}

// NewAnalysisChapterFailedEvent creates an analysis.chapter_failed event.
func NewAnalysisChapterFailedEvent(jobID, bookID, chapterID string, chapterIndex int, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Type: EventAnalysisChapterFailed,
		Data: AnalysisChapterEventData{
			JobID:        jobID,
			BookID:       bookID,
			ChapterID:    chapterID,
			ChapterIndex: chapterIndex,
			Error:        msg,
		},
		Timestamp: time.Now(),
	}
}

// NewCharacterCreatedEvent creates a character.created event.
func NewCharacterCreatedEvent(c *domain.Character) Event {
	return Event{
		Type:      EventCharacterCreated,
		Data:      CharacterEventData{Character: c},
		Timestamp: time.Now(),
	}
}

// NewCharacterUpdatedEvent creates a character.updated event.
func NewCharacterUpdatedEvent(c *domain.Character) Event {
	return Event{
		Type:      EventCharacterUpdated,
		Data:      CharacterEventData{Character: c},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type: EventHeartbeat,
		Data: HeartbeatEventData{
			ServerTime: time.Now(),
		},
		Timestamp: time.Now(),
	}
}
