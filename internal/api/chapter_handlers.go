package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

func (s *Server) registerChapterRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBookChapters",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}/chapters",
		Summary:     "List book chapters",
		Description: "Returns chapter summaries for a book, in reading order",
		Tags:        []string{"Chapters"},
	}, s.handleListBookChapters)

	huma.Register(s.api, huma.Operation{
		OperationID: "getChapter",
		Method:      http.MethodGet,
		Path:        "/api/v1/chapters/{id}",
		Summary:     "Get chapter",
		Description: "Returns a chapter including its full text",
		Tags:        []string{"Chapters"},
	}, s.handleGetChapter)

	huma.Register(s.api, huma.Operation{
		OperationID: "getChapterAnalysis",
		Method:      http.MethodGet,
		Path:        "/api/v1/chapters/{id}/analysis",
		Summary:     "Get chapter analysis",
		Description: "Returns the analysis artifact for a chapter, if the chapter has been analyzed",
		Tags:        []string{"Analysis"},
	}, s.handleGetChapterAnalysis)
}

// === DTOs ===

// ChapterSummary contains chapter metadata without text.
type ChapterSummary struct {
	ID        string `json:"id" doc:"Chapter ID"`
	Index     int    `json:"index" doc:"Zero-based position within the book"`
	Title     string `json:"title" doc:"Chapter title"`
	CharCount int    `json:"char_count" doc:"Text length in characters"`
	Analyzed  bool   `json:"analyzed" doc:"Whether an analysis artifact exists"`
}

// ListChaptersResponse contains a book's chapter summaries.
type ListChaptersResponse struct {
	Chapters []ChapterSummary `json:"chapters" doc:"Chapters in reading order"`
}

// ListChaptersOutput wraps the chapter list for Huma.
type ListChaptersOutput struct {
	Body ListChaptersResponse
}

// ChapterResponse contains a chapter including text.
type ChapterResponse struct {
	ID        string `json:"id" doc:"Chapter ID"`
	BookID    string `json:"book_id" doc:"Owning book ID"`
	Index     int    `json:"index" doc:"Zero-based position within the book"`
	Title     string `json:"title" doc:"Chapter title"`
	Text      string `json:"text" doc:"Full chapter text"`
	CharCount int    `json:"char_count" doc:"Text length in characters"`
}

// ChapterOutput wraps a chapter response for Huma.
type ChapterOutput struct {
	Body ChapterResponse
}

// AnalyzedCharacterResponse is one character as extracted within a chapter.
type AnalyzedCharacterResponse struct {
	Name    string               `json:"name" doc:"Character name"`
	Traits  []string             `json:"traits,omitempty" doc:"Personality traits"`
	Dialogs []string             `json:"dialogs,omitempty" doc:"Dialog lines in narrative order"`
	Voice   *domain.VoiceProfile `json:"voice,omitempty" doc:"Extracted voice profile"`
}

// ChapterAnalysisResponse contains a chapter analysis artifact.
type ChapterAnalysisResponse struct {
	ID                    string                      `json:"id" doc:"Analysis ID"`
	BookID                string                      `json:"book_id" doc:"Owning book ID"`
	ChapterID             string                      `json:"chapter_id" doc:"Analyzed chapter ID"`
	ChapterIndex          int                         `json:"chapter_index" doc:"Chapter position within the book"`
	Characters            []AnalyzedCharacterResponse `json:"characters" doc:"Characters found in this chapter"`
	ParagraphCount        int                         `json:"paragraph_count" doc:"Paragraphs analyzed"`
	BatchCount            int                         `json:"batch_count" doc:"Model calls used"`
	DialogCount           int                         `json:"dialog_count" doc:"Dialog lines attributed"`
	ResumedFromCheckpoint bool                        `json:"resumed_from_checkpoint" doc:"Whether this run resumed a previous partial run"`
	PartialRange          bool                        `json:"partial_range" doc:"Whether this run covered only part of the chapter"`
	ModelName             string                      `json:"model_name,omitempty" doc:"Model that produced the analysis"`
	CreatedAt             time.Time                   `json:"created_at" doc:"Completion time"`
}

// ChapterAnalysisOutput wraps a chapter analysis response for Huma.
type ChapterAnalysisOutput struct {
	Body ChapterAnalysisResponse
}

// === Handlers ===

func (s *Server) handleListBookChapters(ctx context.Context, input *GetBookInput) (*ListChaptersOutput, error) {
	// Confirm the book exists so an unknown ID is a 404, not an empty list.
	if _, err := s.store.GetBook(ctx, input.ID); err != nil {
		return nil, err
	}

	chapters, err := s.store.GetChaptersByBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ChapterSummary, len(chapters))
	for i, c := range chapters {
		analyzed, err := s.store.IsChapterAnalyzed(ctx, input.ID, c.ID)
		if err != nil {
			return nil, err
		}
		summaries[i] = ChapterSummary{
			ID:        c.ID,
			Index:     c.Index,
			Title:     c.Title,
			CharCount: c.CharCount,
			Analyzed:  analyzed,
		}
	}

	return &ListChaptersOutput{Body: ListChaptersResponse{Chapters: summaries}}, nil
}

// GetChapterInput contains parameters for getting a chapter.
type GetChapterInput struct {
	ID string `path:"id" doc:"Chapter ID"`
}

func (s *Server) handleGetChapter(ctx context.Context, input *GetChapterInput) (*ChapterOutput, error) {
	chapter, err := s.store.GetChapter(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &ChapterOutput{
		Body: ChapterResponse{
			ID:        chapter.ID,
			BookID:    chapter.BookID,
			Index:     chapter.Index,
			Title:     chapter.Title,
			Text:      chapter.Text(),
			CharCount: chapter.CharCount,
		},
	}, nil
}

func (s *Server) handleGetChapterAnalysis(ctx context.Context, input *GetChapterInput) (*ChapterAnalysisOutput, error) {
	chapter, err := s.store.GetChapter(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	analysis, err := s.store.GetChapterAnalysis(ctx, chapter.BookID, chapter.ID)
	if err != nil {
		return nil, err
	}

	return &ChapterAnalysisOutput{Body: toChapterAnalysisResponse(analysis)}, nil
}

func toChapterAnalysisResponse(a *domain.ChapterAnalysis) ChapterAnalysisResponse {
	chars := make([]AnalyzedCharacterResponse, len(a.Characters))
	for i, c := range a.Characters {
		chars[i] = AnalyzedCharacterResponse{
			Name:    c.Name,
			Traits:  c.Traits,
			Dialogs: c.Dialogs,
			Voice:   c.Voice,
		}
	}

	return ChapterAnalysisResponse{
		ID:                    a.ID,
		BookID:                a.BookID,
		ChapterID:             a.ChapterID,
		ChapterIndex:          a.ChapterIndex,
		Characters:            chars,
		ParagraphCount:        a.ParagraphCount,
		BatchCount:            a.BatchCount,
		DialogCount:           a.DialogCount,
		ResumedFromCheckpoint: a.ResumedFromCheckpoint,
		PartialRange:          a.PartialRange,
		ModelName:             a.ModelName,
		CreatedAt:             a.CreatedAt,
	}
}
