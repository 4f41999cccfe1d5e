package session

import "encoding/json"

// Event names on the backend session. Inbound commands arrive as
// {"event": ..., "data": {...}}; replies carry the matching *_ack or
// *_result event.
const (
	eventDeviceConnected  = "device_connected"
	eventStartRecording   = "start_recording"
	eventRecordingStarted = "recording_started"
	eventRecordComplete   = "record_complete"
	eventRestart          = "restart"
	eventRestartAck       = "restart_ack"
	eventPlayPCM          = "play_pcm"
	eventPlayPCMResult    = "play_pcm_result"
)

// envelope is the wire shape of every session message.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type connectedData struct {
	ClientID string `json:"clientId"`
	Type     string `json:"type"`
}

// startRecordingData uses a pointer so an absent duration (default applies)
// is distinguishable from an explicit zero (clamped to the minimum).
type startRecordingData struct {
	Duration *int `json:"duration"`
}

type recordingStartedData struct {
	Duration int `json:"duration"`
}

// recordCompleteMessage is flat rather than nested under data; the backend
// has always consumed it this way.
type recordCompleteMessage struct {
	Event    string `json:"event"`
	Size     int    `json:"size"`
	Duration int    `json:"duration"`
}

type restartAckData struct {
	Status string `json:"status"`
}

type playPCMData struct {
	ID int `json:"id"`
}

type playPCMResultData struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

func newEnvelope(event string, data any) (*envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &envelope{Event: event, Data: raw}, nil
}
