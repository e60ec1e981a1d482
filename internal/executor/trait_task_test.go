package executor

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/voxbookapp/voxbook-server/internal/errors"
)

const traitPassage = "Elizabeth laughed at his pride and teased him without mercy, undaunted by his station."

func TestTraitExtractionTask_Run(t *testing.T) {
	backend := &fakeBackend{responses: []string{
		"<think>Scanning the passage for explicit descriptors.</think>\n" +
			`Here is the result: {"character": "Elizabeth", "traits": ["witty", "playful"]}`,
	}}
	task := NewTraitExtractionTask("Elizabeth", traitPassage, discardLogger())

	var progress []TaskProgress
	result, err := task.Run(context.Background(), testSession(backend), func(p TaskProgress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("run failed: %v", result.Err)
	}

	if got := result.ResultData["character"]; got != "Elizabeth" {
		t.Errorf("character = %v", got)
	}
	traits, ok := result.ResultData["traits"].([]string)
	if !ok || !reflect.DeepEqual(traits, []string{"witty", "playful"}) {
		t.Errorf("traits = %v", result.ResultData["traits"])
	}
	if got := backend.callCount(); got != 1 {
		t.Errorf("inference calls = %d, expected 1", got)
	}
	if len(progress) != 1 || progress[0].Percent != 100 || progress[0].Stage != "extraction" {
		t.Errorf("progress = %+v", progress)
	}
}

func TestTraitExtractionTask_EmptyPassage(t *testing.T) {
	backend := &fakeBackend{}
	task := NewTraitExtractionTask("Elizabeth", "   \n\t ", discardLogger())

	result, err := task.Run(context.Background(), testSession(backend), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("empty passage reported success")
	}
	if !errors.Is(result.Err, errors.ErrNoContent) {
		t.Errorf("expected no content, got %v", result.Err)
	}
	if got := backend.callCount(); got != 0 {
		t.Errorf("inference calls = %d, expected 0", got)
	}
}

func TestTraitExtractionTask_UnparseableOutput(t *testing.T) {
	backend := &fakeBackend{responses: []string{"I cannot identify any traits in this passage."}}
	task := NewTraitExtractionTask("Elizabeth", traitPassage, discardLogger())

	result, err := task.Run(context.Background(), testSession(backend), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("unparseable output reported success")
	}
	if !errors.Is(result.Err, errors.ErrBatchFailed) {
		t.Errorf("expected batch failed, got %v", result.Err)
	}
}

func TestTraitExtractionTask_ModelFailure(t *testing.T) {
	backend := &fakeBackend{errAt: map[int]error{0: fmt.Errorf("connection refused")}}
	task := NewTraitExtractionTask("Elizabeth", traitPassage, discardLogger())

	result, err := task.Run(context.Background(), testSession(backend), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("failed inference reported success")
	}
	if !errors.Is(result.Err, errors.ErrModelUnavailable) {
		t.Errorf("expected model unavailable, got %v", result.Err)
	}
}

func TestTraitExtractionTask_Cancelled(t *testing.T) {
	backend := &fakeBackend{responses: []string{`{"character": "Elizabeth", "traits": ["witty"]}`}}
	task := NewTraitExtractionTask("Elizabeth", traitPassage, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := task.Run(ctx, testSession(backend), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("cancelled run reported success")
	}
	if !errors.Is(result.Err, errors.ErrCancelled) {
		t.Errorf("expected cancelled, got %v", result.Err)
	}
	if got := backend.callCount(); got != 0 {
		t.Errorf("inference calls = %d, expected 0", got)
	}
}

func TestTraitExtractionTask_UniqueIDs(t *testing.T) {
	a := NewTraitExtractionTask("Elizabeth", traitPassage, discardLogger())
	b := NewTraitExtractionTask("Elizabeth", traitPassage, discardLogger())

	if a.ID() == "" || b.ID() == "" {
		t.Fatal("task ID empty")
	}
	if a.ID() == b.ID() {
		t.Errorf("two tasks share ID %q", a.ID())
	}
}
