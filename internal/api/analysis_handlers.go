package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	domainerrors "github.com/voxbookapp/voxbook-server/internal/errors"
)

func (s *Server) registerAnalysisRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "enqueueAnalysis",
		Method:      http.MethodPost,
		Path:        "/api/v1/books/{id}/analysis",
		Summary:     "Enqueue book analysis",
		Description: "Queues a book for chapter analysis. Completed books are returned as-is; partial or failed books resume from their unanalyzed chapters",
		Tags:        []string{"Analysis"},
	}, s.handleEnqueueAnalysis)

	huma.Register(s.api, huma.Operation{
		OperationID: "getAnalysisStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}/analysis",
		Summary:     "Get analysis status",
		Description: "Returns the analysis job for a book",
		Tags:        []string{"Analysis"},
	}, s.handleGetAnalysisStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelAnalysis",
		Method:      http.MethodDelete,
		Path:        "/api/v1/books/{id}/analysis",
		Summary:     "Cancel analysis",
		Description: "Requests cancellation of a running or queued analysis. A running chapter stops at its next batch boundary and leaves a checkpoint",
		Tags:        []string{"Analysis"},
	}, s.handleCancelAnalysis)

	huma.Register(s.api, huma.Operation{
		OperationID: "listAnalysisJobs",
		Method:      http.MethodGet,
		Path:        "/api/v1/analysis/jobs",
		Summary:     "List analysis jobs",
		Description: "Returns analysis jobs, optionally filtered by status",
		Tags:        []string{"Analysis"},
	}, s.handleListAnalysisJobs)

	huma.Register(s.api, huma.Operation{
		OperationID: "getAnalysisJob",
		Method:      http.MethodGet,
		Path:        "/api/v1/analysis/jobs/{id}",
		Summary:     "Get analysis job",
		Description: "Returns one analysis job by ID",
		Tags:        []string{"Analysis"},
	}, s.handleGetAnalysisJob)
}

// === DTOs ===

// AnalysisJobResponse contains analysis job data in API responses.
type AnalysisJobResponse struct {
	ID               string     `json:"id" doc:"Job ID"`
	BookID           string     `json:"book_id" doc:"Book under analysis"`
	Status           string     `json:"status" doc:"Job status: pending, analyzing, completed, partial, or failed"`
	ChaptersTotal    int        `json:"chapters_total" doc:"Total chapters in the book"`
	ChaptersDone     int        `json:"chapters_done" doc:"Chapters with analysis artifacts"`
	CurrentChapterID string     `json:"current_chapter_id,omitempty" doc:"Chapter currently being analyzed"`
	Progress         float64    `json:"progress" doc:"Completion percentage (0-100)"`
	Error            string     `json:"error,omitempty" doc:"Failure or stop reason"`
	StartedAt        *time.Time `json:"started_at,omitempty" doc:"When analysis began"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" doc:"When the job settled"`
}

func toJobResponse(j *domain.AnalysisJob) AnalysisJobResponse {
	return AnalysisJobResponse{
		ID:               j.ID,
		BookID:           j.BookID,
		Status:           string(j.Status),
		ChaptersTotal:    j.ChaptersTotal,
		ChaptersDone:     j.ChaptersDone,
		CurrentChapterID: j.CurrentChapterID,
		Progress:         j.Progress,
		Error:            j.Error,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
	}
}

// AnalysisJobOutput wraps a job response for Huma.
type AnalysisJobOutput struct {
	Body AnalysisJobResponse
}

// GetJobInput contains parameters for getting one analysis job.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID"`
}

// ListJobsInput contains parameters for listing analysis jobs.
type ListJobsInput struct {
	Status string `query:"status" enum:"pending,analyzing,completed,partial,failed" doc:"Filter by job status"`
}

// ListJobsResponse contains a list of analysis jobs.
type ListJobsResponse struct {
	Jobs []AnalysisJobResponse `json:"jobs" doc:"Analysis jobs"`
}

// ListJobsOutput wraps the job list for Huma.
type ListJobsOutput struct {
	Body ListJobsResponse
}

// === Handlers ===

func (s *Server) handleEnqueueAnalysis(ctx context.Context, input *GetBookInput) (*AnalysisJobOutput, error) {
	job, err := s.services.Analysis.EnqueueBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &AnalysisJobOutput{Body: toJobResponse(job)}, nil
}

func (s *Server) handleGetAnalysisStatus(ctx context.Context, input *GetBookInput) (*AnalysisJobOutput, error) {
	job, err := s.services.Analysis.GetBookStatus(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domainerrors.NotFound("book has not been queued for analysis")
	}

	return &AnalysisJobOutput{Body: toJobResponse(job)}, nil
}

func (s *Server) handleCancelAnalysis(ctx context.Context, input *GetBookInput) (*struct{}, error) {
	if err := s.services.Analysis.CancelBook(ctx, input.ID); err != nil {
		return nil, err
	}
	return &struct{}{}, nil
}

func (s *Server) handleGetAnalysisJob(ctx context.Context, input *GetJobInput) (*AnalysisJobOutput, error) {
	job, err := s.store.GetJob(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &AnalysisJobOutput{Body: toJobResponse(job)}, nil
}

func (s *Server) handleListAnalysisJobs(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	var jobs []*domain.AnalysisJob
	var err error

	if input.Status != "" {
		jobs, err = s.store.ListJobsByStatus(ctx, domain.AnalysisStatus(input.Status))
	} else {
		for job, iterErr := range s.store.ListAllJobs(ctx) {
			if iterErr != nil {
				err = iterErr
				break
			}
			jobs = append(jobs, job)
		}
	}
	if err != nil {
		return nil, err
	}

	resp := make([]AnalysisJobResponse, len(jobs))
	for i, j := range jobs {
		resp[i] = toJobResponse(j)
	}

	return &ListJobsOutput{Body: ListJobsResponse{Jobs: resp}}, nil
}
