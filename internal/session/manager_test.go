package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auralink/auralink/internal/events"
	"github.com/auralink/auralink/internal/faults"
)

// fakeCollab records collaborator calls and can fail on demand.
type fakeCollab struct {
	mu          sync.Mutex
	chimes      []int
	played      [][]byte
	recordErr   error // returned once, then cleared
	recordBytes int   // bytes "captured" per call; 0 means fill the buffer
	restarted   chan struct{}
}

func newFakeCollab() *fakeCollab {
	return &fakeCollab{restarted: make(chan struct{}, 1)}
}

func (f *fakeCollab) PlayAudio(buffer []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, buffer)
	return nil
}

func (f *fakeCollab) RecordAudio(buffer []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		err := f.recordErr
		f.recordErr = nil
		return 0, err
	}
	if f.recordBytes > 0 && f.recordBytes < len(buffer) {
		return f.recordBytes, nil
	}
	return len(buffer), nil
}

func (f *fakeCollab) PlayChime(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chimes = append(f.chimes, id)
	return nil
}

func (f *fakeCollab) Restart() {
	select {
	case f.restarted <- struct{}{}:
	default:
	}
}

func (f *fakeCollab) FactoryReset() error { return nil }

func (f *fakeCollab) chimeList() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.chimes...)
}

// fakeBackend upgrades connections and exposes inbound messages.
type fakeBackend struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  []*websocket.Conn
	reject bool
	msgs   chan []byte
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{msgs: make(chan []byte, 32)}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		reject := b.reject
		b.mu.Unlock()
		if reject {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			b.msgs <- payload
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

// sendToDevice writes on the most recent connection.
func (b *fakeBackend) sendToDevice(t *testing.T, payload string) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		t.Fatal("no device connection")
	}
	conn := b.conns[len(b.conns)-1]
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write to device: %v", err)
	}
}

// setReject makes further upgrade attempts fail.
func (b *fakeBackend) setReject(reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reject = reject
}

// dropDevice closes the most recent connection.
func (b *fakeBackend) dropDevice(t *testing.T) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		t.Fatal("no device connection")
	}
	b.conns[len(b.conns)-1].Close()
}

// expect reads messages until one with the given event arrives.
func (b *fakeBackend) expect(t *testing.T, event string) map[string]any {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case payload := <-b.msgs:
			var msg map[string]any
			if err := json.Unmarshal(payload, &msg); err != nil {
				t.Fatalf("device sent invalid JSON: %s", payload)
			}
			if msg["event"] == event {
				return msg
			}
		case <-deadline:
			t.Fatalf("device never sent %q", event)
		}
	}
}

func startTestManager(t *testing.T, collab *fakeCollab) (*Manager, *fakeBackend, *events.Bus) {
	t.Helper()
	backend := newFakeBackend(t)
	bus := events.New()
	m := New(Config{
		URL:              backend.url(),
		ClientID:         "auralink-ae51c3",
		PollInterval:     20 * time.Millisecond,
		RecordBufferSize: 4096,
	}, bus, collab)
	m.delay = 10 * time.Millisecond
	m.Start()
	t.Cleanup(m.Stop)
	return m, backend, bus
}

func waitSessionUp(t *testing.T, bus *events.Bus) {
	t.Helper()
	if _, ok := bus.Wait(events.SessionUp, 3*time.Second); !ok {
		t.Fatal("session never came up")
	}
}

func TestConnectSendsIdentity(t *testing.T) {
	collab := newFakeCollab()
	m, backend, bus := startTestManager(t, collab)

	msg := backend.expect(t, "device_connected")
	data := msg["data"].(map[string]any)
	if data["clientId"] != "auralink-ae51c3" {
		t.Errorf("clientId = %v", data["clientId"])
	}
	if data["type"] != "auralink-s3" {
		t.Errorf("type = %v", data["type"])
	}

	waitSessionUp(t, bus)
	if !m.IsConnected() {
		t.Error("IsConnected() = false after session up")
	}
	if got := collab.chimeList(); len(got) != 1 || got[0] != 4 {
		t.Errorf("chimes = %v, want exactly the connected chime", got)
	}
}

func TestReconnectWithinQuietPeriodSkipsChime(t *testing.T) {
	collab := newFakeCollab()
	_, backend, bus := startTestManager(t, collab)

	backend.expect(t, "device_connected")
	waitSessionUp(t, bus)

	backend.dropDevice(t)
	if _, ok := bus.Wait(events.SessionDown, 3*time.Second); !ok {
		t.Fatal("SessionDown never raised")
	}

	// The manager reconnects on its own and must stay silent.
	backend.expect(t, "device_connected")
	if got := collab.chimeList(); len(got) != 1 {
		t.Errorf("chimes = %v, onboarding replayed within quiet period", got)
	}
}

func TestQuietPeriodRearmsOnboarding(t *testing.T) {
	collab := newFakeCollab()
	backend := newFakeBackend(t)
	bus := events.New()
	m := New(Config{
		URL:          backend.url(),
		ClientID:     "auralink-ae51c3",
		PollInterval: 200 * time.Millisecond,
	}, bus, collab)
	m.quiet = 50 * time.Millisecond // held down longer than this rearms
	m.Start()
	t.Cleanup(m.Stop)

	backend.expect(t, "device_connected")
	backend.dropDevice(t)

	// The poll interval keeps the session down past the quiet period.
	backend.expect(t, "device_connected")
	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(collab.chimeList()) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("chimes = %v, want onboarding replayed after quiet period", collab.chimeList())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStopCancelsQuietTimer(t *testing.T) {
	collab := newFakeCollab()
	backend := newFakeBackend(t)
	bus := events.New()
	m := New(Config{
		URL:          backend.url(),
		ClientID:     "auralink-ae51c3",
		PollInterval: 20 * time.Millisecond,
	}, bus, collab)
	m.quiet = 60 * time.Millisecond
	m.Start()

	backend.expect(t, "device_connected")

	// Hold the session down so the quiet timer stays armed, then stop.
	backend.setReject(true)
	backend.dropDevice(t)
	if _, ok := bus.Wait(events.SessionDown, 3*time.Second); !ok {
		t.Fatal("SessionDown never raised")
	}
	m.Stop()

	time.Sleep(3 * m.quiet)

	m.mu.Lock()
	first := m.first
	timer := m.quietTimer
	m.mu.Unlock()
	if first {
		t.Error("quiet timer fired after Stop and rearmed onboarding")
	}
	if timer != nil {
		t.Error("quiet timer still armed after Stop")
	}
}

func TestStartRecordingClampsDuration(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
	}{
		{"absent defaults", `{"event":"start_recording"}`, 5},
		{"zero clamps up", `{"event":"start_recording","data":{"duration":0}}`, 1},
		{"negative clamps up", `{"event":"start_recording","data":{"duration":-4}}`, 1},
		{"oversized clamps down", `{"event":"start_recording","data":{"duration":600}}`, 60},
		{"in range passes", `{"event":"start_recording","data":{"duration":12}}`, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collab := newFakeCollab()
			_, backend, bus := startTestManager(t, collab)
			backend.expect(t, "device_connected")
			waitSessionUp(t, bus)

			backend.sendToDevice(t, tt.payload)

			started := backend.expect(t, "recording_started")
			if d := started["data"].(map[string]any)["duration"]; d != tt.want {
				t.Errorf("recording_started duration = %v, want %v", d, tt.want)
			}
			complete := backend.expect(t, "record_complete")
			if d := complete["duration"]; d != tt.want {
				t.Errorf("record_complete duration = %v, want %v", d, tt.want)
			}
			if size := complete["size"].(float64); size <= 0 {
				t.Errorf("record_complete size = %v", size)
			}
		})
	}
}

func TestRecordingDegradesBufferOnce(t *testing.T) {
	collab := newFakeCollab()
	collab.recordErr = faults.NewResourceExhaustion("capture buffer rejected", nil)
	_, backend, bus := startTestManager(t, collab)
	backend.expect(t, "device_connected")
	waitSessionUp(t, bus)

	backend.sendToDevice(t, `{"event":"start_recording","data":{"duration":2}}`)
	backend.expect(t, "recording_started")

	complete := backend.expect(t, "record_complete")
	// Config buffer is 4096; the retry runs at half size.
	if size := complete["size"].(float64); size != 2048 {
		t.Errorf("record_complete size = %v, want 2048 after halving", size)
	}
}

func TestRestartAcksThenRestarts(t *testing.T) {
	collab := newFakeCollab()
	_, backend, bus := startTestManager(t, collab)
	backend.expect(t, "device_connected")
	waitSessionUp(t, bus)

	backend.sendToDevice(t, `{"event":"restart"}`)

	ack := backend.expect(t, "restart_ack")
	if status := ack["data"].(map[string]any)["status"]; status != "ok" {
		t.Errorf("restart_ack status = %v", status)
	}
	select {
	case <-collab.restarted:
	case <-time.After(2 * time.Second):
		t.Fatal("device never restarted")
	}
}

func TestPlayPCM(t *testing.T) {
	collab := newFakeCollab()
	_, backend, bus := startTestManager(t, collab)
	backend.expect(t, "device_connected")
	waitSessionUp(t, bus)

	backend.sendToDevice(t, `{"event":"play_pcm","data":{"id":3}}`)

	result := backend.expect(t, "play_pcm_result")
	data := result["data"].(map[string]any)
	if data["id"] != float64(3) || data["status"] != "ok" {
		t.Errorf("play_pcm_result = %v", data)
	}
	chimes := collab.chimeList()
	if chimes[len(chimes)-1] != 3 {
		t.Errorf("chimes = %v, want trailing 3", chimes)
	}
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	collab := newFakeCollab()
	_, backend, bus := startTestManager(t, collab)
	backend.expect(t, "device_connected")
	waitSessionUp(t, bus)

	backend.sendToDevice(t, `{not json`)
	backend.sendToDevice(t, `{"event":"unknown_thing"}`)
	backend.sendToDevice(t, `{"data":{"duration":5}}`)

	// The session must survive all of the above.
	backend.sendToDevice(t, `{"event":"play_pcm","data":{"id":1}}`)
	backend.expect(t, "play_pcm_result")
}
