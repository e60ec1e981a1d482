package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxbookapp/voxbook-server/internal/config"
	"github.com/voxbookapp/voxbook-server/internal/store"
)

func setupTestInstance(t *testing.T, cfg *config.Config) (*InstanceService, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "voxbook-instance-test-*")
	require.NoError(t, err)

	testStore, err := store.New(filepath.Join(tmpDir, "test.db"), nil, store.NewNoopEmitter())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	svc := NewInstanceService(testStore, logger, cfg)

	cleanup := func() {
		_ = testStore.Close()
		_ = os.RemoveAll(tmpDir)
	}
	return svc, cleanup
}

func TestInitializeInstance_Defaults(t *testing.T) {
	svc, cleanup := setupTestInstance(t, &config.Config{})
	defer cleanup()

	instance, err := svc.InitializeInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "VoxBook Server", instance.Name)
	assert.Equal(t, ServerVersion, instance.Version)
	assert.NotEmpty(t, instance.ID)
}

func TestInitializeInstance_ConfigOverridesURLs(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Name = "Living Room"
	cfg.Server.LocalURL = "http://192.168.1.10:8080"
	cfg.Server.RemoteURL = "https://books.example.com"

	svc, cleanup := setupTestInstance(t, cfg)
	defer cleanup()

	instance, err := svc.InitializeInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Living Room", instance.Name)
	assert.Equal(t, "http://192.168.1.10:8080", instance.LocalUrl)
	assert.Equal(t, "https://books.example.com", instance.RemoteUrl)

	// The override persists.
	stored, err := svc.GetInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.10:8080", stored.LocalUrl)
}

func TestInitializeInstance_Idempotent(t *testing.T) {
	svc, cleanup := setupTestInstance(t, &config.Config{})
	defer cleanup()

	first, err := svc.InitializeInstance(context.Background())
	require.NoError(t, err)

	second, err := svc.InitializeInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}
