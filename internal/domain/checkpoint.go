package domain

import "time"

// Checkpoint captures mid-chapter analysis progress so an interrupted run
// resumes instead of restarting. Written after every completed batch,
// deleted when the chapter finishes. At most one exists per chapter.
type Checkpoint struct {
	BookID    string `json:"book_id"`
	ChapterID string `json:"chapter_id"`
	// ContentHash fingerprints the paragraph sequence the checkpoint was
	// computed from. A checkpoint whose hash no longer matches the chapter
	// text is stale and must be discarded.
	ContentHash string `json:"content_hash"`

	// LastProcessedParagraphIndex is the index one past the final paragraph
	// of the last completed batch; resumption starts exactly there.
	LastProcessedParagraphIndex int `json:"last_processed_paragraph_index"`
	TotalParagraphs             int `json:"total_paragraphs"`
	BatchesCompleted            int `json:"batches_completed"`
	TotalBatches                int `json:"total_batches"`

	Timestamp time.Time `json:"timestamp"`

	// AccumulatedCharacters snapshots the merge state over all completed
	// batches, so a resumed run continues merging rather than starting empty.
	AccumulatedCharacters []AnalyzedCharacter `json:"accumulated_characters,omitempty"`
}

// Complete reports whether every paragraph has been processed.
func (c *Checkpoint) Complete() bool {
	return c.TotalParagraphs > 0 && c.LastProcessedParagraphIndex >= c.TotalParagraphs
}

// Percent returns batch progress as 0-100.
func (c *Checkpoint) Percent() float64 {
	if c.TotalBatches == 0 {
		return 0
	}
	return float64(c.BatchesCompleted) / float64(c.TotalBatches) * 100
}
