package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/voxbookapp/voxbook-server/internal/config"
	"github.com/voxbookapp/voxbook-server/internal/executor"
	"github.com/voxbookapp/voxbook-server/internal/logger"
	"github.com/voxbookapp/voxbook-server/internal/model"
	"github.com/voxbookapp/voxbook-server/internal/ratelimit"
)

// ProvideModelSession provides the shared language model session.
// The backend is selected by config; the session guarantees at most one
// loaded model and one in-flight inference per process.
func ProvideModelSession(i do.Injector) (*model.Session, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	var backend model.LanguageModel
	switch cfg.Model.Backend {
	case "", "llama":
		backend = model.NewLlamaClient(model.LlamaConfig{
			BaseURL:        cfg.Model.BaseURL,
			Model:          cfg.Model.Name,
			RequestTimeout: cfg.Model.RequestTimeout,
			HealthTimeout:  cfg.Model.HealthTimeout,
		}, log.Logger)
	case "openai":
		backend = model.NewOpenAIClient(model.OpenAIConfig{
			APIKey:         cfg.Model.APIKey,
			Model:          cfg.Model.Name,
			BaseURL:        cfg.Model.BaseURL,
			RequestTimeout: cfg.Model.RequestTimeout,
		}, log.Logger)
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Model.Backend)
	}

	// Local model servers choke on request bursts; cap inference calls.
	limiter := ratelimit.New(cfg.Model.RateLimit, cfg.Model.RateBurst)

	log.Info("Model session configured",
		"backend", cfg.Model.Backend,
		"base_url", cfg.Model.BaseURL,
		"model", cfg.Model.Name,
	)

	return model.NewSession(backend, limiter, log.Logger), nil
}

// ProvideExecutor provides the analysis task executor.
func ProvideExecutor(i do.Injector) (*executor.Executor, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	session := do.MustInvoke[*model.Session](i)

	return executor.New(session, executor.NewExecutionContext(), cfg.Analysis, log.Logger), nil
}
