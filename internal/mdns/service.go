// Package mdns provides mDNS/Zeroconf service advertisement for VoxBook server discovery.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

const (
	// ServiceType is the mDNS service type for VoxBook servers.
	ServiceType = "_voxbook._tcp"

	// APIVersion is the current API version advertised in TXT records.
	APIVersion = "v1"
)

// Service manages mDNS advertisement through the local Avahi daemon.
// It allows local network discovery of the server without manual
// configuration.
type Service struct {
	logger *slog.Logger

	mu     sync.Mutex
	conn   *dbus.Conn
	server *avahi.Server
	group  *avahi.EntryGroup
}

// NewService creates a new mDNS service.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		logger: logger,
	}
}

// Start begins advertising the server via mDNS.
// It should be called after the HTTP server is running.
//
// Returns an error if the Avahi daemon is unreachable; callers should
// treat that as non-fatal (containers often have no D-Bus or multicast).
func (s *Service) Start(instance *domain.Instance, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return err
	}

	return s.publishLocked(instance, port)
}

// Refresh re-publishes the advertisement after instance settings change.
func (s *Service) Refresh(instance *domain.Instance, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	return s.publishLocked(instance, port)
}

// Stop stops mDNS advertising.
// Safe to call multiple times or if not started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.group != nil {
		_ = s.group.Reset()
		s.group = nil
	}
	if s.server != nil {
		s.server.Close()
		s.server = nil
		s.conn = nil
		s.logger.Info("mDNS advertisement stopped")
	}
}

func (s *Service) connectLocked() error {
	if s.server != nil {
		return nil
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}

	server, err := avahi.ServerNew(conn)
	if err != nil {
		return fmt.Errorf("connect to avahi daemon: %w", err)
	}

	s.conn = conn
	s.server = server
	return nil
}

func (s *Service) publishLocked(instance *domain.Instance, port int) error {
	// Replace any previous advertisement.
	if s.group != nil {
		_ = s.group.Reset()
		s.group = nil
	}

	group, err := s.server.EntryGroupNew()
	if err != nil {
		return fmt.Errorf("create avahi entry group: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "voxbook-server"
	}

	txt := [][]byte{
		[]byte("id=" + instance.ID),
		[]byte("name=" + instance.Name),
		[]byte("version=" + instance.Version),
		[]byte("api=" + APIVersion),
	}
	if instance.RemoteUrl != "" {
		txt = append(txt, []byte("remote="+instance.RemoteUrl))
	}

	err = group.AddService(
		avahi.InterfaceUnspec,
		avahi.ProtoUnspec,
		0,
		host,
		ServiceType,
		"local",
		"",
		uint16(port),
		txt,
	)
	if err != nil {
		return fmt.Errorf("add avahi service: %w", err)
	}

	if err := group.Commit(); err != nil {
		return fmt.Errorf("commit avahi entry group: %w", err)
	}

	s.group = group

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"port", port,
		"name", instance.Name,
		"id", instance.ID,
	)

	return nil
}
