package radio

import "net"

// Mode is the radio's exclusive operating mode. Only the orchestrator and
// the provisioning service may switch it, and never while a server bound to
// the old mode is still running.
type Mode int

const (
	ModeOff Mode = iota
	ModeStation
	ModeAccessPoint
)

// String returns a human-readable mode name
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeStation:
		return "station"
	case ModeAccessPoint:
		return "access_point"
	default:
		return "unknown"
	}
}

// EventType identifies a radio notification.
type EventType int

const (
	// EventConnected fires when the radio associates with a network.
	EventConnected EventType = iota
	// EventDisconnected fires when the association drops. Reason carries
	// the driver's explanation.
	EventDisconnected
	// EventGotIP fires when an address is acquired; the join is only
	// considered successful at this point.
	EventGotIP
)

// Event is a notification from the radio driver.
type Event struct {
	Type   EventType
	IP     string
	SSID   string
	RSSI   int
	Reason string
}

// APConfig configures access-point mode for provisioning.
type APConfig struct {
	SSID       string
	Password   string // empty = open network
	Channel    int
	MaxClients int
	IP         string // address the AP hands out as gateway/DNS
}

// Driver is the narrow contract to the radio hardware. Implementations are
// external collaborators; all methods may be slow and may fail.
type Driver interface {
	// StartStation puts the radio in client mode without joining anything.
	StartStation() error
	// Join initiates an association attempt. Outcome arrives on Events.
	Join(ssid, password string) error
	// Disconnect drops the current association.
	Disconnect() error
	// StartAccessPoint brings the radio up as a local AP.
	StartAccessPoint(cfg APConfig) error
	// Stop tears the radio down entirely.
	Stop() error
	// MAC returns the radio's stable hardware address.
	MAC() (net.HardwareAddr, error)
	// Events returns the notification channel. The driver closes it on Stop.
	Events() <-chan Event
}
