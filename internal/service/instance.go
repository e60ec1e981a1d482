package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxbookapp/voxbook-server/internal/config"
	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/store"
)

// ServerVersion is stamped into the instance record and mDNS advertisement.
const ServerVersion = "0.3.0"

// InstanceService handles business logic for server instance configuration.
type InstanceService struct {
	store  *store.Store
	logger *slog.Logger
	config *config.Config
}

// NewInstanceService creates a new instance service.
func NewInstanceService(store *store.Store, logger *slog.Logger, config *config.Config) *InstanceService {
	return &InstanceService{
		store:  store,
		logger: logger,
		config: config,
	}
}

// GetInstance retrieves the server instance configuration.
func (s *InstanceService) GetInstance(ctx context.Context) (*domain.Instance, error) {
	return s.store.GetInstance(ctx)
}

// InitializeInstance ensures a server instance configuration exists.
// This is the main entry point for instance setup on first run.
func (s *InstanceService) InitializeInstance(ctx context.Context) (*domain.Instance, error) {
	name := s.config.Server.Name
	if name == "" {
		name = "VoxBook Server"
	}

	instance, err := s.store.InitializeInstance(ctx, name, ServerVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instance: %w", err)
	}

	// Config URLs override whatever the record holds; they describe the
	// current deployment, not a past one.
	changed := false
	if s.config.Server.LocalURL != "" && instance.LocalUrl != s.config.Server.LocalURL {
		instance.LocalUrl = s.config.Server.LocalURL
		changed = true
	}
	if s.config.Server.RemoteURL != "" && instance.RemoteUrl != s.config.Server.RemoteURL {
		instance.RemoteUrl = s.config.Server.RemoteURL
		changed = true
	}
	if changed {
		instance.UpdatedAt = time.Now()
		if err := s.store.UpdateInstance(ctx, instance); err != nil {
			return nil, fmt.Errorf("failed to update instance with config: %w", err)
		}
	}

	return instance, nil
}
