package executor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/voxbookapp/voxbook-server/internal/analysis"
	"github.com/voxbookapp/voxbook-server/internal/errors"
	"github.com/voxbookapp/voxbook-server/internal/id"
	"github.com/voxbookapp/voxbook-server/internal/model"
)

// traitOutputTokens bounds the response for a single trait extraction call.
// Trait lists are short; the batch budget would invite rambling.
const traitOutputTokens = 512

// TraitExtractionTask pulls explicitly stated traits for one character from
// a passage. Ad hoc work: a single inference call, no checkpointing.
type TraitExtractionTask struct {
	id            string
	characterName string
	passage       string
	logger        *slog.Logger
}

// NewTraitExtractionTask builds a trait extraction task. Each instance gets
// its own ID so concurrent requests for the same character don't collide.
func NewTraitExtractionTask(characterName, passage string, logger *slog.Logger) *TraitExtractionTask {
	return &TraitExtractionTask{
		id:            id.MustGenerate("task"),
		characterName: characterName,
		passage:       passage,
		logger:        logger,
	}
}

func (t *TraitExtractionTask) ID() string   { return t.id }
func (t *TraitExtractionTask) Kind() string { return "trait_extraction" }

// EstimatedDuration is one inference call, so trait extraction stays
// short-lived unless forced.
func (t *TraitExtractionTask) EstimatedDuration() time.Duration {
	return batchDurationEstimate
}

// Run truncates the passage to the input budget, runs one extraction call,
// and parses the trait list.
func (t *TraitExtractionTask) Run(ctx context.Context, session *model.Session, onProgress ProgressFunc) (*TaskResult, error) {
	passage := analysis.TruncateForPrompt(t.passage, analysis.DefaultInputTokens)
	if strings.TrimSpace(passage) == "" {
		return &TaskResult{
			TaskID:  t.id,
			Success: false,
			Err:     errors.NoContent("no passage text for trait extraction"),
		}, nil
	}

	raw, err := session.Generate(ctx, model.GenerateRequest{
		System:      analysis.TraitSystemPrompt,
		Prompt:      analysis.BuildTraitPrompt(t.characterName, passage),
		MaxTokens:   traitOutputTokens,
		Temperature: analysis.ExtractionTemperature,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, errors.ErrCancelled) {
			return &TaskResult{
				TaskID:  t.id,
				Success: false,
				Err:     errors.Cancelled("trait extraction cancelled"),
			}, nil
		}
		return &TaskResult{
			TaskID:  t.id,
			Success: false,
			Err:     toDomainError(err, errors.CodeModelUnavailable, "trait inference failed"),
		}, nil
	}

	traits, err := analysis.ParseTraitOutput(raw)
	if err != nil {
		t.logger.Warn("trait output unparseable",
			"character", t.characterName,
			"error", err,
		)
		return &TaskResult{
			TaskID:  t.id,
			Success: false,
			Err:     toDomainError(err, errors.CodeBatchFailed, "parse trait output"),
		}, nil
	}

	if onProgress != nil {
		onProgress(TaskProgress{
			TaskID:  t.id,
			Stage:   "extraction",
			Current: 1,
			Total:   1,
			Percent: 100,
		})
	}

	return &TaskResult{
		TaskID:  t.id,
		Success: true,
		ResultData: map[string]any{
			"character": t.characterName,
			"traits":    traits,
		},
	}, nil
}
