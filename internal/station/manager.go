package station

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/auralink/auralink/internal/events"
	"github.com/auralink/auralink/internal/faults"
	"github.com/auralink/auralink/internal/logging"
	"github.com/auralink/auralink/internal/radio"
)

const (
	// MaxRetries is how many reconnect attempts are made after a drop
	// before the connection is declared failed.
	MaxRetries = 5

	// retryBase is the first reconnect delay; each subsequent attempt
	// doubles it up to retryCap.
	retryBase = 500 * time.Millisecond
	retryCap  = 8 * time.Second
)

// Info is the current association, valid once connected.
type Info struct {
	IP   string
	SSID string
	RSSI int
}

// Manager drives the radio in station mode: it joins the configured network,
// watches driver events, and reconnects with exponential backoff until the
// retry budget is spent. Outcomes are published on the event bus as
// WifiConnected or WifiFailed.
type Manager struct {
	driver radio.Driver
	bus    *events.Bus

	base time.Duration // overridable in tests

	mu   sync.Mutex
	info Info
	done chan struct{}
}

// New creates a manager. Connect must be called to start.
func New(driver radio.Driver, bus *events.Bus) *Manager {
	return &Manager{driver: driver, bus: bus, base: retryBase}
}

// Connect switches the radio to station mode and begins joining the network.
// The call returns once the attempt is underway; use WaitConnected for the
// outcome.
func (m *Manager) Connect(ssid, password string) error {
	if err := m.driver.StartStation(); err != nil {
		return faults.NewFatal("radio would not enter station mode", err)
	}

	m.mu.Lock()
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.watch(ssid, password)

	logging.Info("Joining network", zap.String("ssid", ssid))
	if err := m.driver.Join(ssid, password); err != nil {
		return faults.NewFatal("join request rejected", err)
	}
	return nil
}

// watch consumes driver events until the driver stops. Reconnect pacing
// follows the classic doubling schedule starting at half a second.
func (m *Manager) watch(ssid, password string) {
	defer close(m.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.base
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = retryCap
	bo.MaxElapsedTime = 0
	bo.Reset()

	retries := 0
	for ev := range m.driver.Events() {
		switch ev.Type {
		case radio.EventConnected:
			logging.Info("Associated with access point", zap.String("ssid", ev.SSID))

		case radio.EventGotIP:
			m.mu.Lock()
			m.info = Info{IP: ev.IP, SSID: ev.SSID, RSSI: ev.RSSI}
			m.mu.Unlock()

			retries = 0
			bo.Reset()
			m.bus.Clear(events.WifiFailed)
			m.bus.Set(events.WifiConnected)
			logging.Info("Network up",
				zap.String("ip", ev.IP),
				zap.String("ssid", ev.SSID),
				zap.Int("rssi", ev.RSSI),
			)

		case radio.EventDisconnected:
			m.bus.Clear(events.WifiConnected)
			if retries >= MaxRetries {
				m.bus.Set(events.WifiFailed)
				logging.Error("Network connection failed, retry budget spent",
					zap.String("ssid", ssid),
					zap.String("reason", ev.Reason),
				)
				continue
			}

			delay := bo.NextBackOff()
			retries++
			logging.Warn("Disconnected, retrying",
				zap.String("reason", ev.Reason),
				zap.Duration("delay", delay),
				zap.Int("attempt", retries),
				zap.Int("max_attempts", MaxRetries),
			)
			time.Sleep(delay)
			if err := m.driver.Join(ssid, password); err != nil {
				logging.Error("rejoin request rejected", zap.Error(err))
				m.bus.Set(events.WifiFailed)
			}
		}
	}
}

// WaitConnected blocks until the connection either comes up or fails, or
// until timeout elapses. A zero timeout waits forever.
func (m *Manager) WaitConnected(timeout time.Duration) error {
	got, ok := m.bus.Wait(events.WifiConnected|events.WifiFailed, timeout)
	if !ok {
		return faults.NewTransient("timed out waiting for network", nil)
	}
	if got&events.WifiConnected != 0 {
		return nil
	}
	return faults.NewTransient("network connection failed", nil)
}

// Info returns the most recent association details. Zero until the first
// address is obtained.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Shutdown stops the radio and waits for the event watcher to drain.
func (m *Manager) Shutdown() {
	m.driver.Stop()
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}
