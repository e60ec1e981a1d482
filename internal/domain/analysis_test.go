package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisJob_StateTransitions(t *testing.T) {
	job := &AnalysisJob{BookID: "book-1", Status: AnalysisStatusPending}
	job.InitTimestamps()

	assert.True(t, job.IsActive())
	assert.False(t, job.IsTerminal())

	job.MarkAnalyzing()
	assert.Equal(t, AnalysisStatusAnalyzing, job.Status)
	require.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.True(t, job.IsActive())

	job.MarkCompleted()
	assert.Equal(t, AnalysisStatusCompleted, job.Status)
	assert.Equal(t, float64(100), job.Progress)
	require.NotNil(t, job.CompletedAt)
	assert.True(t, job.IsTerminal())
	assert.False(t, job.IsActive())
}

func TestAnalysisJob_MarkFailed(t *testing.T) {
	job := &AnalysisJob{BookID: "book-1", Status: AnalysisStatusAnalyzing}
	job.CurrentChapterID = "ch-3"

	job.MarkFailed("model unavailable")

	assert.Equal(t, AnalysisStatusFailed, job.Status)
	assert.Equal(t, "model unavailable", job.Error)
	assert.Empty(t, job.CurrentChapterID)
	assert.NotNil(t, job.CompletedAt)
	assert.True(t, job.IsTerminal())
}

func TestAnalysisJob_MarkPartial(t *testing.T) {
	job := &AnalysisJob{BookID: "book-1", Status: AnalysisStatusAnalyzing}

	job.MarkPartial("cancelled by user")

	assert.Equal(t, AnalysisStatusPartial, job.Status)
	assert.Equal(t, "cancelled by user", job.Error)
	assert.True(t, job.IsTerminal())
}

func TestAnalysisJob_Requeue(t *testing.T) {
	job := &AnalysisJob{BookID: "book-1"}
	job.MarkAnalyzing()
	job.MarkFailed("boom")

	job.Requeue()

	assert.Equal(t, AnalysisStatusPending, job.Status)
	assert.Empty(t, job.Error)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.True(t, job.IsActive())
}

func TestAnalysisJob_SetProgressClamps(t *testing.T) {
	job := &AnalysisJob{}

	job.SetProgress(-5)
	assert.Equal(t, float64(0), job.Progress)

	job.SetProgress(150)
	assert.Equal(t, float64(100), job.Progress)

	job.SetProgress(66.6)
	assert.Equal(t, 66.6, job.Progress)
}
