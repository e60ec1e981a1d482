package analysis

import (
	"strings"
	"unicode/utf8"
)

// Token budget heuristics. These are not a real tokenizer: the pipeline
// estimates tokens from character counts so batching is deterministic and
// model-independent.
const (
	// CharsPerToken is the character-to-token estimation ratio.
	CharsPerToken = 4
	// DefaultInputTokens is the input budget for one batch's passage text.
	DefaultInputTokens = 3700
	// PromptOverheadTokens is reserved for the instruction framing around
	// the passage.
	PromptOverheadTokens = 300
	// DefaultOutputTokens bounds the model's response length.
	DefaultOutputTokens = 2048
)

// EstimateTokens estimates the token count of text using the chars/token
// heuristic. Counts runes, not bytes, so multibyte text does not inflate
// the estimate.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

// Batch is a contiguous run of paragraphs sized to fit one inference call.
// Derived from paragraphs on demand; never persisted.
type Batch struct {
	BatchIndex     int
	StartParagraph int
	EndParagraph   int // exclusive
	Text           string
}

// ParagraphCount returns the number of paragraphs in the batch.
func (b Batch) ParagraphCount() int {
	return b.EndParagraph - b.StartParagraph
}

// CreateBatches greedily groups paragraphs into batches whose estimated
// token count stays within maxInputTokens. A batch always contains at least
// one paragraph, even when that paragraph alone exceeds the budget; content
// is never dropped.
//
// startFrom resumes batching mid-chapter: the first batch starts exactly at
// that paragraph index. Because accumulation is greedy, resuming at a batch
// boundary reproduces the same boundaries a fresh run would have produced
// from that point.
//
// An empty paragraph list (or startFrom past the end) yields zero batches:
// nothing to analyze, not an error.
func CreateBatches(paragraphs []Paragraph, maxInputTokens, startFrom int) []Batch {
	if maxInputTokens <= 0 || len(paragraphs) == 0 {
		return nil
	}
	if startFrom < 0 {
		startFrom = 0
	}
	if startFrom >= len(paragraphs) {
		return nil
	}

	var batches []Batch
	i := startFrom
	for i < len(paragraphs) {
		start := i
		var sb strings.Builder
		runes := utf8.RuneCountInString(paragraphs[i].Text)
		sb.WriteString(paragraphs[i].Text)
		i++

		for i < len(paragraphs) {
			next := runes + 2 + utf8.RuneCountInString(paragraphs[i].Text)
			if next/CharsPerToken > maxInputTokens {
				break
			}
			sb.WriteString("\n\n")
			sb.WriteString(paragraphs[i].Text)
			runes = next
			i++
		}

		batches = append(batches, Batch{
			BatchIndex:     len(batches),
			StartParagraph: start,
			EndParagraph:   i,
			Text:           sb.String(),
		})
	}

	return batches
}
