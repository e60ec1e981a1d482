package analysis

import (
	"strings"
	"testing"
)

// makeParagraphs builds a paragraph slice from texts, mirroring what
// Segment produces for a single page.
func makeParagraphs(texts ...string) []Paragraph {
	out := make([]Paragraph, len(texts))
	for i, text := range texts {
		out[i] = Paragraph{Index: i, Text: text, SourcePage: 1}
	}
	return out
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{name: "Empty", text: "", expected: 0},
		{name: "Below one token", text: "abc", expected: 0},
		{name: "Exactly one token", text: "abcd", expected: 1},
		{name: "Forty chars", text: strings.Repeat("x", 40), expected: 10},
		{name: "Multibyte counts runes", text: strings.Repeat("é", 8), expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.expected {
				t.Errorf("EstimateTokens(%q) = %d, expected %d", tt.text, got, tt.expected)
			}
		})
	}
}

func TestCreateBatches_CoversAllParagraphs(t *testing.T) {
	// Irregular paragraph sizes against a 25-token (100 char) budget.
	paragraphs := makeParagraphs(
		strings.Repeat("a", 30),
		strings.Repeat("b", 70),
		strings.Repeat("c", 10),
		strings.Repeat("d", 95),
		strings.Repeat("e", 250), // alone exceeds the budget
		strings.Repeat("f", 5),
	)

	batches := CreateBatches(paragraphs, 25, 0)
	if len(batches) == 0 {
		t.Fatal("expected batches")
	}

	// Contiguous, ordered, complete coverage of [0, len).
	if batches[0].StartParagraph != 0 {
		t.Errorf("first batch starts at %d, expected 0", batches[0].StartParagraph)
	}
	for i, b := range batches {
		if b.BatchIndex != i {
			t.Errorf("batch %d carries index %d", i, b.BatchIndex)
		}
		if b.ParagraphCount() < 1 {
			t.Errorf("batch %d is empty", i)
		}
		if i > 0 && b.StartParagraph != batches[i-1].EndParagraph {
			t.Errorf("batch %d starts at %d, previous ended at %d",
				i, b.StartParagraph, batches[i-1].EndParagraph)
		}
	}
	last := batches[len(batches)-1]
	if last.EndParagraph != len(paragraphs) {
		t.Errorf("last batch ends at %d, expected %d", last.EndParagraph, len(paragraphs))
	}
}

func TestCreateBatches_TextMatchesParagraphs(t *testing.T) {
	paragraphs := makeParagraphs("First.", "Second.", "Third.")

	batches := CreateBatches(paragraphs, 1000, 0)
	if len(batches) != 1 {
		t.Fatalf("expected a single batch, got %d", len(batches))
	}
	if batches[0].Text != "First.\n\nSecond.\n\nThird." {
		t.Errorf("batch text = %q", batches[0].Text)
	}
}

func TestCreateBatches_RespectsBudget(t *testing.T) {
	// Ten 40-char paragraphs, 25-token budget: pairs of two fit
	// (40 + 2 + 40 = 82 chars), a third would overflow.
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = strings.Repeat(string(rune('a'+i)), 40)
	}
	paragraphs := makeParagraphs(texts...)

	batches := CreateBatches(paragraphs, 25, 0)
	if len(batches) != 5 {
		t.Fatalf("expected 5 batches, got %d", len(batches))
	}
	for i, b := range batches {
		if b.ParagraphCount() != 2 {
			t.Errorf("batch %d holds %d paragraphs, expected 2", i, b.ParagraphCount())
		}
		if tokens := EstimateTokens(b.Text); tokens > 25 {
			t.Errorf("batch %d estimates %d tokens, budget is 25", i, tokens)
		}
	}
}

func TestCreateBatches_OversizedParagraphStandsAlone(t *testing.T) {
	paragraphs := makeParagraphs(
		"short",
		strings.Repeat("x", 500),
		"also short",
	)

	batches := CreateBatches(paragraphs, 25, 0)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if batches[1].ParagraphCount() != 1 {
		t.Errorf("oversized paragraph shares a batch: %+v", batches[1])
	}
	// Content is never dropped, even over budget.
	if batches[1].Text != paragraphs[1].Text {
		t.Errorf("oversized paragraph text was altered")
	}
}

func TestCreateBatches_ResumeMatchesFreshRun(t *testing.T) {
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = strings.Repeat(string(rune('a'+i)), 30+7*i)
	}
	paragraphs := makeParagraphs(texts...)

	fresh := CreateBatches(paragraphs, 30, 0)
	if len(fresh) < 3 {
		t.Fatalf("test needs at least 3 fresh batches, got %d", len(fresh))
	}

	// Resuming from any fresh batch boundary must reproduce the remaining
	// boundaries exactly; only the surviving batches' indexes restart at 0.
	for k := 1; k < len(fresh); k++ {
		resumed := CreateBatches(paragraphs, 30, fresh[k].StartParagraph)
		remaining := fresh[k:]

		if len(resumed) != len(remaining) {
			t.Fatalf("resume at batch %d: got %d batches, expected %d",
				k, len(resumed), len(remaining))
		}
		for i := range resumed {
			if resumed[i].StartParagraph != remaining[i].StartParagraph ||
				resumed[i].EndParagraph != remaining[i].EndParagraph {
				t.Errorf("resume at batch %d: batch %d spans [%d, %d), expected [%d, %d)",
					k, i,
					resumed[i].StartParagraph, resumed[i].EndParagraph,
					remaining[i].StartParagraph, remaining[i].EndParagraph)
			}
			if resumed[i].Text != remaining[i].Text {
				t.Errorf("resume at batch %d: batch %d text differs", k, i)
			}
			if resumed[i].BatchIndex != i {
				t.Errorf("resume at batch %d: batch %d carries index %d",
					k, i, resumed[i].BatchIndex)
			}
		}
	}
}

func TestCreateBatches_Empty(t *testing.T) {
	tests := []struct {
		name       string
		paragraphs []Paragraph
		maxTokens  int
		startFrom  int
	}{
		{name: "No paragraphs", paragraphs: nil, maxTokens: 100, startFrom: 0},
		{name: "Start past the end", paragraphs: makeParagraphs("a", "b"), maxTokens: 100, startFrom: 2},
		{name: "Zero budget", paragraphs: makeParagraphs("a"), maxTokens: 0, startFrom: 0},
		{name: "Negative budget", paragraphs: makeParagraphs("a"), maxTokens: -1, startFrom: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if batches := CreateBatches(tt.paragraphs, tt.maxTokens, tt.startFrom); batches != nil {
				t.Errorf("expected nil, got %d batches", len(batches))
			}
		})
	}
}

func TestCreateBatches_NegativeStartClamps(t *testing.T) {
	paragraphs := makeParagraphs("a", "b")
	batches := CreateBatches(paragraphs, 100, -3)
	if len(batches) != 1 || batches[0].StartParagraph != 0 {
		t.Errorf("expected one batch from paragraph 0, got %+v", batches)
	}
}

func BenchmarkCreateBatches(b *testing.B) {
	texts := make([]string, 500)
	for i := range texts {
		texts[i] = strings.Repeat("word ", 30+i%50)
	}
	paragraphs := makeParagraphs(texts...)

	for b.Loop() {
		CreateBatches(paragraphs, DefaultInputTokens, 0)
	}
}
