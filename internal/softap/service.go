package softap

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auralink/auralink/internal/creds"
	"github.com/auralink/auralink/internal/device"
	"github.com/auralink/auralink/internal/dnsd"
	"github.com/auralink/auralink/internal/logging"
	"github.com/auralink/auralink/internal/portal"
	"github.com/auralink/auralink/internal/radio"
)

// Access point parameters for the open setup network.
const (
	Channel    = 1
	MaxClients = 4
	APAddr     = "192.168.4.1"
)

// State is the provisioning service's lifecycle position.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Service runs the whole provisioning surface: an open access point named
// after the device, the captive DNS responder, and the portal HTTP server.
type Service struct {
	identity device.Identity
	store    *creds.Store
	driver   radio.Driver

	dnsPort    int
	portalPort int

	mu        sync.Mutex
	state     State
	responder *dnsd.Responder
	portal    *portal.Server
}

// New builds the provisioning service on the standard ports.
func New(identity device.Identity, store *creds.Store, driver radio.Driver) *Service {
	return &Service{
		identity:   identity,
		store:      store,
		driver:     driver,
		dnsPort:    dnsd.DefaultPort,
		portalPort: portal.DefaultPort,
	}
}

// NewWithPorts is New with explicit ports, for tests that cannot bind the
// privileged defaults.
func NewWithPorts(identity device.Identity, store *creds.Store, driver radio.Driver, dnsPort, portalPort int) *Service {
	s := New(identity, store, driver)
	s.dnsPort = dnsPort
	s.portalPort = portalPort
	return s
}

// State reports the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start brings up the access point, then the DNS responder, then the portal.
// A portal bind failure is logged but not fatal: the network itself is up
// and a client that knows the address can still be served after a restart.
// A radio or DNS failure tears everything back down and is returned.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return fmt.Errorf("provisioning service is %s, cannot start", s.state)
	}
	s.state = StateStarting

	ssid := s.identity.ProvisioningSSID()
	apIP := net.ParseIP(APAddr)

	if err := s.driver.StartAccessPoint(radio.APConfig{
		SSID:       ssid,
		Channel:    Channel,
		MaxClients: MaxClients,
		IP:         APAddr,
	}); err != nil {
		s.state = StateStopped
		return fmt.Errorf("starting access point: %w", err)
	}

	responder := dnsd.NewResponder(apIP, s.dnsPort)
	if err := responder.Start(); err != nil {
		s.driver.Stop()
		s.state = StateStopped
		return fmt.Errorf("starting captive DNS: %w", err)
	}
	s.responder = responder

	p := portal.NewServer(s.identity, s.store, apIP, s.portalPort)
	if err := p.Start(); err != nil {
		logging.Warn("portal failed to start, provisioning network stays up", zap.Error(err))
	} else {
		s.portal = p
	}

	s.state = StateActive
	logging.Info("Provisioning mode active",
		zap.String("ssid", ssid),
		zap.Int("channel", Channel),
		zap.String("address", APAddr),
	)
	return nil
}

// Stop tears the provisioning surface down in reverse order of Start. Safe
// to call when already stopped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive && s.state != StateStarting {
		return
	}
	s.state = StateStopping

	if s.portal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		s.portal.Stop(ctx)
		cancel()
		s.portal = nil
	}
	if s.responder != nil {
		s.responder.Stop()
		s.responder = nil
	}
	if err := s.driver.Stop(); err != nil {
		logging.Warn("stopping access point", zap.Error(err))
	}

	s.state = StateStopped
	logging.Info("Provisioning mode stopped")
}
