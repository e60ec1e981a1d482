package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

// serverKey is the singleton key for the server record.
var serverKey = []byte("server:config")

// GetInstance retrieves the singleton server instance configuration.
// Returns ErrNotFound if no instance exists.
func (s *Store) GetInstance(_ context.Context) (*domain.Instance, error) {
	var instance domain.Instance

	err := s.get(serverKey, &instance)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return &instance, nil
}

// CreateInstance creates a new singleton server instance configuration.
// Returns ErrAlreadyExists if an instance already exists.
func (s *Store) CreateInstance(_ context.Context, name, version string) (*domain.Instance, error) {
	exists, err := s.exists(serverKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check instance existence: %w", err)
	}

	if exists {
		return nil, ErrAlreadyExists
	}

	now := time.Now()
	instance := &domain.Instance{
		ID:        "server-001", // Single server ID
		Name:      name,
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.set(serverKey, instance); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("Server instance configuration created",
			"id", instance.ID,
			"name", instance.Name,
			"version", instance.Version,
		)
	}

	return instance, nil
}

// UpdateInstance updates the server instance configuration.
func (s *Store) UpdateInstance(ctx context.Context, instance *domain.Instance) error {
	// Verify instance exists.
	_, err := s.GetInstance(ctx)
	if err != nil {
		return err
	}

	instance.UpdatedAt = time.Now()

	if err := s.set(serverKey, instance); err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("Server instance configuration updated",
			"id", instance.ID,
			"name", instance.Name,
		)
	}

	return nil
}

// InitializeInstance ensures a server instance configuration exists,
// creating one on first boot. The stored version is refreshed when the
// binary has been upgraded since the record was written.
func (s *Store) InitializeInstance(ctx context.Context, name, version string) (*domain.Instance, error) {
	instance, err := s.GetInstance(ctx)
	if err == nil {
		if instance.Version != version {
			instance.Version = version
			if err := s.UpdateInstance(ctx, instance); err != nil {
				return nil, err
			}
		}
		if s.logger != nil {
			s.logger.Info("Server instance configuration found",
				"id", instance.ID,
				"name", instance.Name,
				"version", instance.Version,
			)
		}
		return instance, nil
	}

	if errors.Is(err, ErrNotFound) {
		if s.logger != nil {
			s.logger.Info("No server instance configuration found, creating new instance")
		}
		return s.CreateInstance(ctx, name, version)
	}

	return nil, fmt.Errorf("failed to initialize instance: %w", err)
}
