package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/auralink/auralink/internal/device"
	"github.com/auralink/auralink/internal/events"
	"github.com/auralink/auralink/internal/faults"
	"github.com/auralink/auralink/internal/logging"
)

const (
	// DefaultPollInterval paces the supervisory loop that notices a dead
	// connection and recreates it.
	DefaultPollInterval = time.Second

	// DefaultHandshakeTimeout bounds the websocket dial.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultRecordBufferSize holds sixty seconds of 16 kHz mono 16-bit
	// audio, the longest recording a command may request.
	DefaultRecordBufferSize = 16000 * 2 * 60

	// quietPeriod is how long the session must stay down before the
	// onboarding side effects replay on the next connect.
	quietPeriod = 30 * time.Second

	// restartDelay gives the restart acknowledgment time to flush before
	// the device goes down.
	restartDelay = 3 * time.Second

	// Recording duration bounds in seconds.
	minRecordSeconds     = 1
	maxRecordSeconds     = 60
	defaultRecordSeconds = 5

	// reconnectCap bounds the redial backoff.
	reconnectBase = time.Second
	reconnectCap  = 10 * time.Second
)

// Config parameterizes the backend session.
type Config struct {
	// URL is the backend websocket base; the client id is appended as the
	// final path segment.
	URL      string
	ClientID string
	// DeviceType is reported in the hello message.
	DeviceType string

	PollInterval     time.Duration
	HandshakeTimeout time.Duration
	RecordBufferSize int
}

func (c *Config) applyDefaults() {
	if c.DeviceType == "" {
		c.DeviceType = "auralink-s3"
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.RecordBufferSize == 0 {
		c.RecordBufferSize = DefaultRecordBufferSize
	}
}

// Manager maintains the device's websocket session with the backend:
// connect, identify, dispatch inbound commands, and recreate the connection
// whenever it dies. Session state is published as SessionUp / SessionDown
// event bits.
type Manager struct {
	cfg    Config
	bus    *events.Bus
	collab device.Collaborators

	quiet   time.Duration // overridable in tests
	delay   time.Duration // restart grace, overridable in tests
	onboard func()        // extra first-connection hook, may be nil

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	first      bool // onboarding side effects pending
	quietTimer *time.Timer
	recordBuf  []byte
	recording  bool
	stop       chan struct{}
	done       chan struct{}
}

// New builds a manager. Start begins connecting.
func New(cfg Config, bus *events.Bus, collab device.Collaborators) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:    cfg,
		bus:    bus,
		collab: collab,
		quiet:  quietPeriod,
		delay:  restartDelay,
		first:  true,
	}
}

// SetOnboardHook registers a callback run alongside the first-connection
// chime. Used for the discovery announcement.
func (m *Manager) SetOnboardHook(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onboard = fn
}

func (m *Manager) url() string {
	return m.cfg.URL + "/" + m.cfg.ClientID
}

// Start launches the supervisory loop. Returns immediately.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.supervise(m.stop, m.done)
}

// Stop tears the session down and waits for the loop to exit. Safe to call
// repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	conn := m.conn
	if m.quietTimer != nil {
		m.quietTimer.Stop()
		m.quietTimer = nil
	}
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	if conn != nil {
		conn.Close()
	}
	<-done
}

// IsConnected reports whether the session is currently up.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// supervise dials, runs the read loop, and recreates the connection after
// each death. A silently dead connection surfaces as a read error no later
// than the next poll interval's redial.
func (m *Manager) supervise(stop, done chan struct{}) {
	defer close(done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reconnectBase
	bo.MaxInterval = reconnectCap
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, err := m.dial()
		if err != nil {
			wait := bo.NextBackOff()
			logging.Warn("session dial failed",
				zap.String("url", m.url()),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
			select {
			case <-stop:
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		select {
		case <-stop:
			conn.Close()
			return
		default:
		}

		m.onConnected(conn)
		m.readLoop(conn)
		m.onDisconnected()

		// Brief pause before recreating, so a flapping backend does not
		// spin the dialer.
		select {
		case <-stop:
			return
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

func (m *Manager) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(m.url(), nil)
	if err != nil {
		return nil, faults.ClassifyNetworkError("session dial failed", err)
	}
	return conn, nil
}

func (m *Manager) onConnected(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.connected = true
	first := m.first
	m.first = false
	onboard := m.onboard
	if m.quietTimer != nil {
		m.quietTimer.Stop()
		m.quietTimer = nil
	}
	m.mu.Unlock()

	logging.LogSessionEvent("connected", zap.String("url", m.url()), zap.Bool("first", first))

	if first {
		if err := m.collab.PlayChime(device.ChimeConnected); err != nil {
			logging.Warn("connected chime failed", zap.Error(err))
		}
		if onboard != nil {
			onboard()
		}
	}

	m.send(eventDeviceConnected, connectedData{
		ClientID: m.cfg.ClientID,
		Type:     m.cfg.DeviceType,
	})

	m.bus.Clear(events.SessionDown)
	m.bus.Set(events.SessionUp)
}

func (m *Manager) onDisconnected() {
	m.mu.Lock()
	m.conn = nil
	m.connected = false
	// A short blip keeps the onboarding effects suppressed; only a quiet
	// period this long resets them. A stopped manager arms nothing.
	if m.quietTimer != nil {
		m.quietTimer.Stop()
		m.quietTimer = nil
	}
	if m.stop != nil {
		m.quietTimer = time.AfterFunc(m.quiet, func() {
			m.mu.Lock()
			m.first = true
			m.mu.Unlock()
			logging.LogSessionEvent("quiet period elapsed, onboarding rearmed")
		})
	}
	m.mu.Unlock()

	logging.LogSessionEvent("disconnected")
	m.bus.Clear(events.SessionUp)
	m.bus.Set(events.SessionDown)
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			logging.Debug("session read ended", zap.Error(err))
			conn.Close()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		logging.LogSessionMessage("inbound", payload)
		m.dispatch(payload)
	}
}

// dispatch routes one inbound message. Malformed or unknown messages are
// logged and dropped; they never kill the session.
func (m *Manager) dispatch(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logging.Warn("dropping malformed session message", zap.Error(err))
		return
	}

	switch env.Event {
	case eventStartRecording:
		m.handleStartRecording(env.Data)
	case eventRestart:
		m.handleRestart()
	case eventPlayPCM:
		m.handlePlayPCM(env.Data)
	case "":
		logging.Warn("session message has no event field")
	default:
		logging.Debug("ignoring unknown session event", zap.String("event", env.Event))
	}
}

// clampDuration pins a requested recording length into the allowed range,
// falling back to the default when absent.
func clampDuration(data json.RawMessage) int {
	duration := defaultRecordSeconds
	if len(data) > 0 {
		var d startRecordingData
		if err := json.Unmarshal(data, &d); err == nil && d.Duration != nil {
			duration = *d.Duration
		}
	}
	if duration < minRecordSeconds {
		duration = minRecordSeconds
	}
	if duration > maxRecordSeconds {
		duration = maxRecordSeconds
	}
	return duration
}

func (m *Manager) handleStartRecording(data json.RawMessage) {
	duration := clampDuration(data)

	m.mu.Lock()
	if m.recording {
		m.mu.Unlock()
		logging.Warn("recording already in progress, ignoring command")
		return
	}
	m.recording = true
	m.mu.Unlock()

	m.send(eventRecordingStarted, recordingStartedData{Duration: duration})

	go func() {
		defer func() {
			m.mu.Lock()
			m.recording = false
			m.mu.Unlock()
		}()
		m.record(duration)
	}()
}

// record captures audio and reports completion. A resource-exhaustion fault
// from the audio subsystem is retried once at half the buffer size, then
// given up on.
func (m *Manager) record(duration int) {
	m.mu.Lock()
	if m.recordBuf == nil {
		m.recordBuf = make([]byte, m.cfg.RecordBufferSize)
	}
	buf := m.recordBuf
	m.mu.Unlock()

	timeout := time.Duration(duration) * time.Second
	logging.Info("recording", zap.Int("seconds", duration), zap.Int("buffer", len(buf)))

	n, err := m.collab.RecordAudio(buf, timeout)
	if err != nil && faults.IsResourceExhaustion(err) {
		half := buf[:len(buf)/2]
		logging.Warn("record buffer too large for audio subsystem, halving",
			zap.Int("buffer", len(half)), zap.Error(err))
		m.mu.Lock()
		m.recordBuf = half
		m.mu.Unlock()
		n, err = m.collab.RecordAudio(half, timeout)
		buf = half
	}
	if err != nil {
		logging.Error("recording failed", zap.Error(err))
		return
	}

	logging.Info("recording complete", zap.Int("bytes", n))
	m.sendRaw(recordCompleteMessage{
		Event:    eventRecordComplete,
		Size:     n,
		Duration: duration,
	})

	// Local playback of the capture, as a hardware check.
	if n > 0 {
		if err := m.collab.PlayAudio(buf[:n]); err != nil {
			logging.Warn("playback of recording failed", zap.Error(err))
		}
	}
}

func (m *Manager) handleRestart() {
	logging.Warn("restart command received", zap.Duration("delay", m.delay))
	m.send(eventRestartAck, restartAckData{Status: "ok"})
	go func() {
		time.Sleep(m.delay)
		m.collab.Restart()
	}()
}

func (m *Manager) handlePlayPCM(data json.RawMessage) {
	id := 1
	if len(data) > 0 {
		var d playPCMData
		if err := json.Unmarshal(data, &d); err == nil && d.ID != 0 {
			id = d.ID
		}
	}

	status := "ok"
	if err := m.collab.PlayChime(id); err != nil {
		logging.Warn("play_pcm failed", zap.Int("id", id), zap.Error(err))
		status = "fail"
	}
	m.send(eventPlayPCMResult, playPCMResultData{ID: id, Status: status})
}

// send marshals an enveloped event onto the session. Send failures are
// logged; the read loop notices the dead connection.
func (m *Manager) send(event string, data any) {
	env, err := newEnvelope(event, data)
	if err != nil {
		logging.Error("marshaling session message", zap.String("event", event), zap.Error(err))
		return
	}
	m.sendRaw(env)
}

func (m *Manager) sendRaw(v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		logging.Debug("session down, dropping outbound message")
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logging.Error("marshaling session message", zap.Error(err))
		return
	}
	logging.LogSessionMessage("outbound", payload)
	if err := m.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		logging.Warn("session write failed", zap.Error(err))
	}
}
