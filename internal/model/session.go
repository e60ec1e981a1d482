package model

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/voxbookapp/voxbook-server/internal/errors"
	"github.com/voxbookapp/voxbook-server/internal/ratelimit"
)

// Session shares one backend between the queue worker, ad hoc trait
// extraction, and health probes. It deduplicates concurrent Load calls,
// serializes inference (local backends run one completion at a time), and
// counts interest so the backend is released only when the last holder
// lets go.
type Session struct {
	backend LanguageModel
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger

	loads singleflight.Group

	mu       sync.Mutex // guards interest
	interest int

	genMu sync.Mutex // one inference at a time
}

// NewSession wraps a backend. limiter may be nil to disable outbound rate
// limiting.
func NewSession(backend LanguageModel, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) *Session {
	return &Session{
		backend: backend,
		limiter: limiter,
		logger:  logger,
	}
}

// Name returns the backend's model name.
func (s *Session) Name() string {
	return s.backend.Name()
}

// IsLoaded reports whether the backend is ready without probing it.
func (s *Session) IsLoaded() bool {
	return s.backend.IsLoaded()
}

// Acquire registers interest and makes sure the backend is loaded.
// Concurrent callers share a single Load; a failed load registers no
// interest.
func (s *Session) Acquire(ctx context.Context) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.interest++
	holders := s.interest
	s.mu.Unlock()

	s.logger.Debug("model session acquired", "model", s.backend.Name(), "holders", holders)
	return nil
}

// Release drops one holder's interest. When the last holder releases, the
// backend itself is released. Extra releases are harmless.
func (s *Session) Release(ctx context.Context) error {
	s.mu.Lock()
	if s.interest > 0 {
		s.interest--
	}
	idle := s.interest == 0
	s.mu.Unlock()

	if !idle {
		return nil
	}

	s.logger.Debug("model session idle, releasing backend", "model", s.backend.Name())
	return s.backend.Release(ctx)
}

// Generate runs one completion, waiting for the backend's rate budget and
// for any in-flight inference to finish. Cancellation while queued returns
// before touching the backend.
func (s *Session) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return "", err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, s.backend.Name()); err != nil {
			return "", errors.Wrap(err, errors.CodeCancelled, "cancelled waiting for rate budget")
		}
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	if ctx.Err() != nil {
		return "", errors.Wrap(ctx.Err(), errors.CodeCancelled, "cancelled waiting for inference slot")
	}

	return s.backend.Generate(ctx, req)
}

// ensureLoaded loads the backend at most once across concurrent callers.
// The winning caller's context governs the probe; losers just inherit the
// outcome.
func (s *Session) ensureLoaded(ctx context.Context) error {
	if s.backend.IsLoaded() {
		return nil
	}

	_, err, _ := s.loads.Do("load", func() (any, error) {
		if s.backend.IsLoaded() {
			return nil, nil
		}
		return nil, s.backend.Load(ctx)
	})
	return err
}
