package orchestrator

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/auralink/auralink/internal/creds"
	"github.com/auralink/auralink/internal/events"
	"github.com/auralink/auralink/internal/radio"
)

// testCollab tracks chimes and restarts without any hardware.
type testCollab struct {
	mu        sync.Mutex
	chimes    []int
	resets    int
	restarted chan struct{}
}

func newTestCollab() *testCollab {
	return &testCollab{restarted: make(chan struct{}, 4)}
}

func (c *testCollab) PlayAudio(buffer []byte) error { return nil }

func (c *testCollab) RecordAudio(buffer []byte, timeout time.Duration) (int, error) {
	return len(buffer), nil
}

func (c *testCollab) PlayChime(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chimes = append(c.chimes, id)
	return nil
}

func (c *testCollab) Restart() {
	select {
	case c.restarted <- struct{}{}:
	default:
	}
}

func (c *testCollab) FactoryReset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	return nil
}

func (c *testCollab) chimeList() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.chimes...)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *radio.Simulated, *testCollab, string) {
	t.Helper()
	stateDir := t.TempDir()
	t.Setenv(creds.StateDirEnvVar, stateDir)

	driver := radio.NewSimulated(net.HardwareAddr{0x24, 0x6f, 0x28, 0xae, 0x51, 0xc3})
	collab := newTestCollab()
	o, err := New(Config{
		SessionURL: "ws://127.0.0.1:1/session", // unreachable; session just retries
		DNSPort:    -1,                         // sentinel replaced below
		PortalPort: -1,
	}, driver, collab)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Ephemeral ports for the provisioning surface.
	o.cfg.DNSPort = 0
	o.cfg.PortalPort = 0
	o.restartDelay = 10 * time.Millisecond
	o.resetDelay = 10 * time.Millisecond
	return o, driver, collab, stateDir
}

func saveCreds(t *testing.T, o *Orchestrator, ssid, password string) {
	t.Helper()
	if err := o.store.Save(creds.Credentials{SSID: ssid, Password: password}); err != nil {
		t.Fatalf("saving credentials: %v", err)
	}
	// Save raises ConfigSaved; a boot test wants a clean slate.
	o.bus.ClearAll()
}

func TestFreshBootEntersProvisioningAndRestartsOnConfig(t *testing.T) {
	o, _, collab, _ := newTestOrchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Give provisioning a moment to come up, then submit credentials the
	// way the portal would.
	deadline := time.Now().Add(2 * time.Second)
	for {
		chimes := collab.chimeList()
		if len(chimes) > 0 && chimes[0] == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("provisioning chime never played, chimes = %v", chimes)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := o.store.Save(creds.Credentials{SSID: "HomeNet", Password: "pw"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case <-collab.restarted:
	case <-time.After(3 * time.Second):
		t.Fatal("device never restarted after configuration")
	}

	chimes := collab.chimeList()
	if chimes[len(chimes)-1] != 3 {
		t.Errorf("chimes = %v, want config-saved chime last", chimes)
	}

	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestConfiguredBootJoinsNetwork(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	saveCreds(t, o, "HomeNet", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	if _, ok := o.bus.Wait(events.WifiConnected, 3*time.Second); !ok {
		t.Fatal("network never came up")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestUnreachableNetworkFallsBackToProvisioning(t *testing.T) {
	o, driver, collab, _ := newTestOrchestrator(t)
	saveCreds(t, o, "GhostNet", "pw")
	o.cfg.ConnectTimeout = 300 * time.Millisecond

	driver.JoinFunc = func(ssid, password string) []radio.Event { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		chimes := collab.chimeList()
		if len(chimes) > 0 && chimes[len(chimes)-1] == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never fell back to provisioning, chimes = %v", chimes)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestFactoryResetErasesAndRestarts(t *testing.T) {
	o, _, collab, stateDir := newTestOrchestrator(t)
	saveCreds(t, o, "HomeNet", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	if _, ok := o.bus.Wait(events.WifiConnected, 3*time.Second); !ok {
		t.Fatal("network never came up")
	}

	o.bus.Set(events.FactoryResetRequested)

	select {
	case <-collab.restarted:
	case <-time.After(3 * time.Second):
		t.Fatal("device never restarted after factory reset")
	}

	store := creds.NewStoreAt(filepath.Join(stateDir, "wifi.yaml"), nil)
	if ok, _ := store.HasValid(); ok {
		t.Error("credentials survived factory reset")
	}
	if o.bus.Get() != 0 {
		t.Errorf("event bits = %v, want all cleared", o.bus.Get())
	}

	collab.mu.Lock()
	resets := collab.resets
	collab.mu.Unlock()
	if resets != 1 {
		t.Errorf("platform resets = %d, want 1", resets)
	}

	cancel()
	<-done
}

func TestIdentityDerivedFromRadio(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	if o.Identity().ClientID != "auralink-ae51c3" {
		t.Errorf("ClientID = %q", o.Identity().ClientID)
	}
}
