package providers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/samber/do/v2"

	"github.com/voxbookapp/voxbook-server/internal/api"
	"github.com/voxbookapp/voxbook-server/internal/config"
	"github.com/voxbookapp/voxbook-server/internal/executor"
	"github.com/voxbookapp/voxbook-server/internal/logger"
	"github.com/voxbookapp/voxbook-server/internal/mdns"
	"github.com/voxbookapp/voxbook-server/internal/service"
	"github.com/voxbookapp/voxbook-server/internal/sse"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	exec := do.MustInvoke[*executor.Executor](i)
	log := do.MustInvoke[*logger.Logger](i)

	instanceService := do.MustInvoke[*service.InstanceService](i)
	analysisHandle := do.MustInvoke[*AnalysisServiceHandle](i)
	libraryHandle := do.MustInvoke[*LibraryServiceHandle](i)
	searchService := do.MustInvoke[*service.SearchService](i)

	sseHandler := sse.NewHandler(sseHandle.Manager, log.Logger)

	services := &api.Services{
		Instance: instanceService,
		Library:  libraryHandle.LibraryService,
		Analysis: analysisHandle.AnalysisService,
		Search:   searchService,
	}

	handler := api.NewServer(storeHandle.Store, services, exec, sseHandler, sseHandle.Manager, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv}, nil
}

// MDNSServiceHandle wraps mdns.Service with Shutdownable.
type MDNSServiceHandle struct {
	*mdns.Service
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *MDNSServiceHandle) Shutdown() error {
	if h.Service != nil {
		h.Service.Stop()
	}
	return nil
}

// ProvideMDNSService provides mDNS advertisement. Failure to reach the
// Avahi daemon is logged and ignored; discovery is a convenience, not a
// requirement.
func ProvideMDNSService(i do.Injector) (*MDNSServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	instanceService := do.MustInvoke[*service.InstanceService](i)

	if !cfg.Server.AdvertiseMDNS {
		log.Info("mDNS advertisement disabled")
		return &MDNSServiceHandle{}, nil
	}

	instance, err := instanceService.GetInstance(context.Background())
	if err != nil {
		log.Warn("mDNS skipped, instance not initialized", "error", err)
		return &MDNSServiceHandle{}, nil
	}

	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil {
		port = 8080
	}

	svc := mdns.NewService(log.Logger)
	if err := svc.Start(instance, port); err != nil {
		log.Warn("mDNS advertisement unavailable", "error", err)
		return &MDNSServiceHandle{Service: svc}, nil
	}

	return &MDNSServiceHandle{Service: svc, started: true}, nil
}
