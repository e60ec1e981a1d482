// Package model provides the inference backends the analysis pipeline runs
// on: a local llama-server (llama.cpp) speaking its native completion API,
// and any OpenAI-compatible endpoint through the official SDK. A Session
// wraps one backend with load deduplication, exclusive inference, and
// interest counting so the executor can share a single model across queued
// work.
package model

import "context"

// GenerateRequest is one blocking inference call. System and Prompt are
// kept separate because backends frame them differently: llama-server gets
// an explicit chat template, the OpenAI API takes them as distinct messages.
type GenerateRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Stop overrides the backend's default stop sequences when non-empty.
	Stop []string
}

// LanguageModel is a single inference backend.
//
// Load verifies the backend is reachable and ready; it may block while a
// remote server warms up. Release drops this process's claim on the model
// and is safe to call repeatedly. Generate performs one completion and
// returns the raw model output.
type LanguageModel interface {
	Name() string
	Load(ctx context.Context) error
	IsLoaded() bool
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Release(ctx context.Context) error
}
