package api

import (
	"github.com/voxbookapp/voxbook-server/internal/service"
)

// Services groups the business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Instance *service.InstanceService
	Library  *service.LibraryService
	Analysis *service.AnalysisService
	Search   *service.SearchService
}
