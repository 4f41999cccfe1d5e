package softap

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/auralink/auralink/internal/creds"
	"github.com/auralink/auralink/internal/device"
	"github.com/auralink/auralink/internal/events"
	"github.com/auralink/auralink/internal/radio"
)

func newTestService(t *testing.T) (*Service, *radio.Simulated) {
	t.Helper()
	bus := events.New()
	store := creds.NewStoreAt(filepath.Join(t.TempDir(), "wifi.yaml"), bus)
	mac := net.HardwareAddr{0x24, 0x6f, 0x28, 0xae, 0x51, 0xc3}
	driver := radio.NewSimulated(mac)
	// Port 0 keeps the test off the privileged defaults.
	return NewWithPorts(device.NewIdentity(mac, ""), store, driver, 0, 0), driver
}

func TestStartStopLifecycle(t *testing.T) {
	s, driver := newTestService(t)

	if s.State() != StateStopped {
		t.Fatalf("initial state = %v", s.State())
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateActive {
		t.Errorf("state after Start = %v", s.State())
	}
	if driver.Mode() != radio.ModeAccessPoint {
		t.Errorf("radio mode = %v, want access point", driver.Mode())
	}

	s.Stop()
	if s.State() != StateStopped {
		t.Errorf("state after Stop = %v", s.State())
	}
	if driver.Mode() != radio.ModeOff {
		t.Errorf("radio mode after Stop = %v, want off", driver.Mode())
	}
}

func TestStartWhileActiveFails(t *testing.T) {
	s, _ := newTestService(t)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(); err == nil {
		t.Error("second Start succeeded while active")
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	s, _ := newTestService(t)
	s.Stop()
	s.Stop()
	if s.State() != StateStopped {
		t.Errorf("state = %v", s.State())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "stopped"},
		{StateStarting, "starting"},
		{StateActive, "active"},
		{StateStopping, "stopping"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
