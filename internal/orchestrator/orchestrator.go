package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/auralink/auralink/internal/announce"
	"github.com/auralink/auralink/internal/creds"
	"github.com/auralink/auralink/internal/device"
	"github.com/auralink/auralink/internal/events"
	"github.com/auralink/auralink/internal/faults"
	"github.com/auralink/auralink/internal/logging"
	"github.com/auralink/auralink/internal/radio"
	"github.com/auralink/auralink/internal/session"
	"github.com/auralink/auralink/internal/softap"
	"github.com/auralink/auralink/internal/station"
)

const (
	// DefaultConnectTimeout bounds the wait for the stored network to come
	// up before falling back to provisioning.
	DefaultConnectTimeout = 30 * time.Second

	// provisionedRestartDelay lets the portal's success response reach the
	// phone before the device goes down.
	provisionedRestartDelay = 3 * time.Second

	// factoryResetDelay gives the reset chime time to finish.
	factoryResetDelay = time.Second

	// watcherTick paces the factory-reset watcher's poll.
	watcherTick = time.Second
)

// Config parameterizes a device run.
type Config struct {
	// SessionURL is the backend websocket base URL.
	SessionURL string
	// ClientID overrides the identity derived from the hardware address.
	ClientID string

	ConnectTimeout time.Duration

	// DNSPort and PortalPort override the provisioning defaults; tests use
	// ephemeral ports.
	DNSPort    int
	PortalPort int
}

// Orchestrator sequences the device's connectivity lifecycle: provisioning
// when unconfigured, station mode plus the backend session when configured,
// and the factory-reset path that pre-empts both.
type Orchestrator struct {
	cfg      Config
	bus      *events.Bus
	store    *creds.Store
	driver   radio.Driver
	collab   device.Collaborators
	identity device.Identity

	// delays, shortened in tests
	restartDelay time.Duration
	resetDelay   time.Duration
}

// New derives the device identity from the radio and wires the core
// components together.
func New(cfg Config, driver radio.Driver, collab device.Collaborators) (*Orchestrator, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.DNSPort == 0 {
		cfg.DNSPort = 53
	}
	if cfg.PortalPort == 0 {
		cfg.PortalPort = 80
	}

	mac, err := driver.MAC()
	if err != nil {
		return nil, faults.NewFatal("radio has no hardware address", err)
	}

	bus := events.New()
	return &Orchestrator{
		cfg:          cfg,
		bus:          bus,
		store:        creds.NewStore(bus),
		driver:       driver,
		collab:       collab,
		identity:     device.NewIdentity(mac, cfg.ClientID),
		restartDelay: provisionedRestartDelay,
		resetDelay:   factoryResetDelay,
	}, nil
}

// Bus exposes the event bus, mainly for platform integrations that raise
// FactoryResetRequested from a button press.
func (o *Orchestrator) Bus() *events.Bus {
	return o.bus
}

// Identity reports the derived device identity.
func (o *Orchestrator) Identity() device.Identity {
	return o.identity
}

// Run executes the connectivity lifecycle until ctx is canceled or the
// device restarts. The factory-reset watcher runs for the whole duration
// and pre-empts whatever else is in progress.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go o.watchFactoryReset(ctx)

	ok, c := o.store.HasValid()
	if !ok {
		logging.Info("No stored network configuration, entering provisioning")
		return o.provision(ctx)
	}

	mgr := station.New(o.driver, o.bus)
	if err := mgr.Connect(c.SSID, c.Password); err != nil {
		logging.Error("radio failed to start, restarting", zap.Error(err))
		time.Sleep(o.resetDelay)
		o.collab.Restart()
		return err
	}

	if err := mgr.WaitConnected(o.cfg.ConnectTimeout); err != nil {
		logging.Warn("stored network unreachable, falling back to provisioning",
			zap.String("ssid", c.SSID), zap.Error(err))
		mgr.Shutdown()
		return o.provision(ctx)
	}

	info := mgr.Info()
	logging.Info("Network connected",
		zap.String("ssid", info.SSID),
		zap.String("ip", info.IP),
		zap.Int("rssi", info.RSSI),
	)

	return o.runSession(ctx, mgr)
}

// runSession keeps the backend session alive until shutdown. The session
// manager handles its own reconnect supervision; the orchestrator only owns
// lifecycle edges.
func (o *Orchestrator) runSession(ctx context.Context, mgr *station.Manager) error {
	sess := session.New(session.Config{
		URL:      o.cfg.SessionURL,
		ClientID: o.identity.ClientID,
	}, o.bus, o.collab)

	ann := announce.New(o.identity)
	sess.SetOnboardHook(func() {
		if err := ann.Start(); err != nil {
			logging.Warn("mDNS announcement failed", zap.Error(err))
		}
	})

	sess.Start()
	defer func() {
		sess.Stop()
		ann.Stop()
		mgr.Shutdown()
	}()

	<-ctx.Done()
	logging.Info("Shutting down")
	return nil
}

// provision runs the setup flow: open access point, captive portal, wait
// for credentials, then restart into station mode.
func (o *Orchestrator) provision(ctx context.Context) error {
	if err := o.collab.PlayChime(device.ChimeProvisioning); err != nil {
		logging.Warn("provisioning chime failed", zap.Error(err))
	}

	svc := softap.NewWithPorts(o.identity, o.store, o.driver, o.cfg.DNSPort, o.cfg.PortalPort)
	if err := svc.Start(); err != nil {
		logging.Error("provisioning mode failed to start, restarting", zap.Error(err))
		time.Sleep(o.resetDelay)
		o.collab.Restart()
		return err
	}
	defer svc.Stop()

	// Block until the user submits credentials, checking for shutdown on
	// each tick.
	for {
		if got, ok := o.bus.Wait(events.ConfigSaved, watcherTick); ok && got&events.ConfigSaved != 0 {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}

	logging.Info("Configuration received, restarting to join the network")
	if err := o.collab.PlayChime(device.ChimeConfigSaved); err != nil {
		logging.Warn("config-saved chime failed", zap.Error(err))
	}

	time.Sleep(o.restartDelay)
	o.collab.Restart()
	return nil
}

// watchFactoryReset handles the reset request whenever it arrives. The
// handler erases credentials, clears every pending event, and restarts.
func (o *Orchestrator) watchFactoryReset(ctx context.Context) {
	for {
		if got, ok := o.bus.Wait(events.FactoryResetRequested, watcherTick); ok && got&events.FactoryResetRequested != 0 {
			o.bus.Clear(events.FactoryResetRequested)
			o.handleFactoryReset()
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (o *Orchestrator) handleFactoryReset() {
	logging.Warn("Factory reset requested")

	if err := o.collab.PlayChime(device.ChimeWelcome); err != nil {
		logging.Warn("reset chime failed", zap.Error(err))
	}
	if err := o.store.Erase(); err != nil {
		logging.Error("erasing credentials", zap.Error(err))
	}
	if err := o.collab.FactoryReset(); err != nil {
		logging.Error("platform factory reset", zap.Error(err))
	}
	o.bus.ClearAll()

	time.Sleep(o.resetDelay)
	o.collab.Restart()
}
