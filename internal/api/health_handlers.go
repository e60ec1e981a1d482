package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/sys/unix"

	"github.com/voxbookapp/voxbook-server/internal/store"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := make(map[string]ComponentHealth)
	overall := "healthy"

	dbHealth := s.checkDatabase(ctx)
	components["database"] = dbHealth
	if dbHealth.Status != "healthy" {
		overall = "unhealthy"
	}

	searchHealth := s.checkSearchIndex()
	components["search"] = searchHealth
	if searchHealth.Status == "unhealthy" {
		overall = "unhealthy"
	} else if searchHealth.Status == "degraded" && overall == "healthy" {
		overall = "degraded"
	}

	sseHealth := s.checkSSEManager()
	components["sse"] = sseHealth
	if sseHealth.Status == "unhealthy" {
		overall = "unhealthy"
	}

	components["model"] = s.checkModel()

	diskHealth := s.checkDisk()
	components["disk"] = diskHealth
	if diskHealth.Status == "unhealthy" {
		overall = "unhealthy"
	} else if diskHealth.Status == "degraded" && overall == "healthy" {
		overall = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkDatabase verifies BadgerDB is accessible.
func (s *Server) checkDatabase(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "database not configured",
		}
	}

	start := time.Now()

	// Quick read to verify the DB responds. A missing instance record is
	// fine; the DB is accessible, just not initialized yet.
	_, err := s.store.GetInstance(ctx)
	latency := time.Since(start)

	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "database read failed",
		}
	}

	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
	}
}

// checkSearchIndex verifies the Bleve index is accessible.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.services == nil || s.services.Search == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "search not configured",
		}
	}

	start := time.Now()
	_, err := s.services.Search.DocumentCount()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "search index unavailable",
		}
	}

	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
	}
}

// checkSSEManager reports on the event stream manager.
func (s *Server) checkSSEManager() ComponentHealth {
	if s.sseManager == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "sse not configured",
		}
	}

	return ComponentHealth{
		Status:  "healthy",
		Message: pluralClients(s.sseManager.ClientCount()),
	}
}

// checkModel reports whether the language model is resident. An unloaded
// model is normal when no analysis is running.
func (s *Server) checkModel() ComponentHealth {
	if s.executor == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "analysis not configured",
		}
	}

	if s.executor.IsModelLoaded() {
		return ComponentHealth{
			Status:  "healthy",
			Message: "model loaded",
		}
	}

	return ComponentHealth{
		Status:  "healthy",
		Message: "model idle",
	}
}

// Free-space thresholds for the data volume. Badger needs headroom for
// compaction, so low disk degrades before writes actually fail.
const (
	diskDegradedBytes  = 500 << 20
	diskUnhealthyBytes = 50 << 20
)

// checkDisk reports free space on the volume holding the database.
func (s *Server) checkDisk() ComponentHealth {
	if s.store == nil || s.store.DataPath() == "" {
		return ComponentHealth{
			Status:  "degraded",
			Message: "data path not configured",
		}
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(s.store.DataPath(), &stat); err != nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "statfs failed",
		}
	}

	free := stat.Bavail * uint64(stat.Bsize)
	msg := strconv.FormatUint(free>>20, 10) + " MiB free"

	switch {
	case free < diskUnhealthyBytes:
		return ComponentHealth{Status: "unhealthy", Message: msg}
	case free < diskDegradedBytes:
		return ComponentHealth{Status: "degraded", Message: msg}
	default:
		return ComponentHealth{Status: "healthy", Message: msg}
	}
}

func pluralClients(n int) string {
	if n == 1 {
		return "1 client connected"
	}
	return strconv.Itoa(n) + " clients connected"
}
