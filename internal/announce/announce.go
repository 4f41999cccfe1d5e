package announce

import (
	"fmt"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/auralink/auralink/internal/device"
	"github.com/auralink/auralink/internal/logging"
)

const (
	// ServiceType is the mDNS service type AuraLink devices advertise.
	ServiceType = "_auralink._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultPort is advertised for future local control surfaces.
	DefaultPort = 80
)

// Announcer registers the device on the local network so companion apps can
// find it without the backend.
type Announcer struct {
	identity device.Identity
	port     int

	server *zeroconf.Server
}

// New creates an announcer for the given identity.
func New(identity device.Identity) *Announcer {
	return &Announcer{identity: identity, port: DefaultPort}
}

// Start registers the mDNS service. Announcement is best-effort; callers
// treat a failure as a warning, not a fatal condition.
func (a *Announcer) Start() error {
	if a.server != nil {
		return nil
	}

	txt := []string{
		"model=" + a.identity.Name,
		"client_id=" + a.identity.ClientID,
		"mac=" + a.identity.MACString(),
	}

	server, err := zeroconf.Register(
		a.identity.ClientID,
		ServiceType,
		ServiceDomain,
		a.port,
		txt,
		nil,
	)
	if err != nil {
		return fmt.Errorf("registering mDNS service: %w", err)
	}
	a.server = server

	logging.Info("mDNS announcement up",
		zap.String("instance", a.identity.ClientID),
		zap.String("service", ServiceType),
	)
	return nil
}

// Stop withdraws the announcement. Safe without a prior Start.
func (a *Announcer) Stop() {
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	logging.Info("mDNS announcement withdrawn")
}
