package domain

import "time"

// Chapter holds the extracted text of a single book chapter.
// Stored as its own record because chapter text is large; book list and
// detail queries never load it.
type Chapter struct {
	ID     string `json:"id"`
	BookID string `json:"book_id"`
	Index  int    `json:"index"`
	Title  string `json:"title"`
	// Pages is the chapter text split by source page. Formats without a
	// page concept (txt, epub) store one page per chapter section.
	Pages     []string `json:"pages"`
	CharCount int      `json:"char_count"`
}

// Text joins the chapter pages into one string for analysis.
func (c *Chapter) Text() string {
	switch len(c.Pages) {
	case 0:
		return ""
	case 1:
		return c.Pages[0]
	}
	out := c.Pages[0]
	for _, p := range c.Pages[1:] {
		out += "\n\n" + p
	}
	return out
}

// ChapterAnalysis is the persisted artifact of one completed chapter
// analysis. Its presence marks the chapter as analyzed; deleting it makes
// the chapter eligible for re-analysis.
type ChapterAnalysis struct {
	ID           string              `json:"id"`
	BookID       string              `json:"book_id"`
	ChapterID    string              `json:"chapter_id"`
	ChapterIndex int                 `json:"chapter_index"`
	Characters   []AnalyzedCharacter `json:"characters"`

	ParagraphCount int `json:"paragraph_count"`
	BatchCount     int `json:"batch_count"`
	DialogCount    int `json:"dialog_count"`

	// ResumedFromCheckpoint records that this run continued a previous
	// partial run instead of starting at paragraph zero.
	ResumedFromCheckpoint bool `json:"resumed_from_checkpoint"`
	// PartialRange is set when the run deliberately covered only part of
	// the chapter (a checkpoint was left behind for the remainder).
	PartialRange bool `json:"partial_range"`

	ModelName string    `json:"model_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalyzedCharacter is a character snapshot within one chapter: the merge
// result of all batches. The same shape serializes into checkpoints, so a
// resumed run can rebuild its accumulator from it.
type AnalyzedCharacter struct {
	Name    string        `json:"name"`
	Traits  []string      `json:"traits,omitempty"`
	Dialogs []string      `json:"dialogs,omitempty"`
	Voice   *VoiceProfile `json:"voice,omitempty"`
}
