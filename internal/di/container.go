// Package di provides dependency injection configuration for the VoxBook server.
package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/voxbookapp/voxbook-server/internal/config"
	"github.com/voxbookapp/voxbook-server/internal/di/providers"
	"github.com/voxbookapp/voxbook-server/internal/executor"
	"github.com/voxbookapp/voxbook-server/internal/logger"
	"github.com/voxbookapp/voxbook-server/internal/model"
	"github.com/voxbookapp/voxbook-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideSearchService)

	// Model and analysis pipeline
	do.Provide(injector, providers.ProvideModelSession)
	do.Provide(injector, providers.ProvideExecutor)

	// Business services
	do.Provide(injector, providers.ProvideInstanceService)
	do.Provide(injector, providers.ProvideAnalysisService)
	do.Provide(injector, providers.ProvideLibraryService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services and returns once the server is up.
// This triggers lazy initialization of every provider in dependency order.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*service.SearchService](injector)
	_ = do.MustInvoke[*model.Session](injector)
	_ = do.MustInvoke[*executor.Executor](injector)

	// The instance record must exist before the HTTP server and mDNS
	// advertisement read it.
	instanceService := do.MustInvoke[*service.InstanceService](injector)
	if _, err := instanceService.InitializeInstance(context.Background()); err != nil {
		return err
	}

	_ = do.MustInvoke[*providers.AnalysisServiceHandle](injector)
	_ = do.MustInvoke[*providers.LibraryServiceHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	// Rebuild the search index when it is empty but the store is not.
	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
