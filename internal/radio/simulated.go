package radio

import (
	"net"
	"sync"

	"github.com/auralink/auralink/internal/faults"
)

// Simulated is an in-memory Driver for tests and development runs. Join
// outcomes are scripted through JoinFunc; tests can also inject arbitrary
// events (e.g. a mid-session disconnect) with Emit.
type Simulated struct {
	mu     sync.Mutex
	mode   Mode
	mac    net.HardwareAddr
	events chan Event
	closed bool

	// JoinFunc decides what a Join attempt produces. When nil, every join
	// succeeds with a canned address.
	JoinFunc func(ssid, password string) []Event
}

// NewSimulated creates a simulated radio with the given hardware address.
// A nil mac falls back to a fixed well-known address.
func NewSimulated(mac net.HardwareAddr) *Simulated {
	if mac == nil {
		mac = net.HardwareAddr{0x24, 0x6f, 0x28, 0xae, 0x51, 0xc3}
	}
	return &Simulated{
		mac:    mac,
		events: make(chan Event, 16),
	}
}

// revive reopens the event stream after a Stop. Callers hold s.mu.
func (s *Simulated) revive() {
	if s.closed {
		s.events = make(chan Event, 16)
		s.closed = false
	}
}

// StartStation implements Driver
func (s *Simulated) StartStation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revive()
	s.mode = ModeStation
	return nil
}

// Join implements Driver. Scripted events are delivered asynchronously the
// way a real driver's callbacks would be.
func (s *Simulated) Join(ssid, password string) error {
	s.mu.Lock()
	if s.mode != ModeStation {
		s.mu.Unlock()
		return faults.NewFatal("join requires station mode", nil)
	}
	fn := s.JoinFunc
	s.mu.Unlock()

	var evs []Event
	if fn != nil {
		evs = fn(ssid, password)
	} else {
		evs = []Event{
			{Type: EventConnected, SSID: ssid},
			{Type: EventGotIP, IP: "192.168.1.42", SSID: ssid, RSSI: -52},
		}
	}

	go func() {
		for _, ev := range evs {
			s.Emit(ev)
		}
	}()
	return nil
}

// Disconnect implements Driver
func (s *Simulated) Disconnect() error {
	s.Emit(Event{Type: EventDisconnected, Reason: "requested"})
	return nil
}

// StartAccessPoint implements Driver
func (s *Simulated) StartAccessPoint(cfg APConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revive()
	s.mode = ModeAccessPoint
	return nil
}

// Stop implements Driver
func (s *Simulated) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.mode = ModeOff
		close(s.events)
	}
	return nil
}

// MAC implements Driver
func (s *Simulated) MAC() (net.HardwareAddr, error) {
	return s.mac, nil
}

// Events implements Driver
func (s *Simulated) Events() <-chan Event {
	return s.events
}

// Mode returns the current operating mode
func (s *Simulated) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Emit delivers an event to listeners. Safe to call after Stop; the event
// is then dropped.
func (s *Simulated) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		// Listener fell behind; drop rather than block the driver.
	}
}
