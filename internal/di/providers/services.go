package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/voxbookapp/voxbook-server/internal/config"
	"github.com/voxbookapp/voxbook-server/internal/executor"
	"github.com/voxbookapp/voxbook-server/internal/ingest"
	"github.com/voxbookapp/voxbook-server/internal/logger"
	"github.com/voxbookapp/voxbook-server/internal/service"
)

// ProvideInstanceService provides the instance service.
func ProvideInstanceService(i do.Injector) (*service.InstanceService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewInstanceService(storeHandle.Store, log.Logger, cfg), nil
}

// AnalysisServiceHandle wraps the analysis queue with Shutdownable.
type AnalysisServiceHandle struct {
	*service.AnalysisService
}

// Shutdown implements do.Shutdownable.
func (h *AnalysisServiceHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideAnalysisService provides the analysis queue and starts its workers.
func ProvideAnalysisService(i do.Injector) (*AnalysisServiceHandle, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	exec := do.MustInvoke[*executor.Executor](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	svc := service.NewAnalysisService(storeHandle.Store, sseHandle.Manager, exec, cfg.Analysis, log.Logger)

	// Task results flow back through the service even when the producing
	// task outlives its caller.
	exec.SetPersister(svc)

	svc.Start()

	return &AnalysisServiceHandle{AnalysisService: svc}, nil
}

// LibraryServiceHandle wraps the library service with Shutdownable.
type LibraryServiceHandle struct {
	*service.LibraryService
}

// Shutdown implements do.Shutdownable.
func (h *LibraryServiceHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideLibraryService provides the library import service and starts the
// watch folder.
func ProvideLibraryService(i do.Injector) (*LibraryServiceHandle, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	analysisHandle := do.MustInvoke[*AnalysisServiceHandle](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	parser := ingest.NewParser(log.Logger)
	svc := service.NewLibraryService(
		storeHandle.Store,
		parser,
		sseHandle.Manager,
		analysisHandle.AnalysisService,
		cfg.Library,
		cfg.Analysis.Enabled,
		log.Logger,
	)

	if err := svc.Start(context.Background()); err != nil {
		return nil, err
	}

	return &LibraryServiceHandle{LibraryService: svc}, nil
}
