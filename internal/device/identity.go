package device

import (
	"fmt"
	"net"
)

// DefaultName is the device model reported on the provisioning API and in
// the backend identity message.
const DefaultName = "AuraLink"

// ProvisioningSSIDPrefix is prepended to the last three hardware-address
// bytes to form the temporary access point's name, so that neighboring
// units do not collide.
const ProvisioningSSIDPrefix = "AuraLink-Setup-"

// Identity is the device's stable self-description.
type Identity struct {
	Name     string
	ClientID string
	MAC      net.HardwareAddr
}

// NewIdentity derives an identity from the radio's hardware address. When
// clientID is empty, one is derived from the address so that every unit has
// a stable backend identifier out of the box.
func NewIdentity(mac net.HardwareAddr, clientID string) Identity {
	if clientID == "" && len(mac) >= 3 {
		clientID = fmt.Sprintf("auralink-%02x%02x%02x", mac[len(mac)-3], mac[len(mac)-2], mac[len(mac)-1])
	}
	return Identity{Name: DefaultName, ClientID: clientID, MAC: mac}
}

// MACString formats the hardware address as XX:XX:XX:XX:XX:XX
func (i Identity) MACString() string {
	if len(i.MAC) != 6 {
		return ""
	}
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		i.MAC[0], i.MAC[1], i.MAC[2], i.MAC[3], i.MAC[4], i.MAC[5])
}

// ProvisioningSSID returns the access-point name for this unit: the fixed
// prefix plus the last three hardware-address bytes in hex.
func (i Identity) ProvisioningSSID() string {
	if len(i.MAC) < 3 {
		return ProvisioningSSIDPrefix + "000000"
	}
	n := len(i.MAC)
	return fmt.Sprintf("%s%02X%02X%02X", ProvisioningSSIDPrefix, i.MAC[n-3], i.MAC[n-2], i.MAC[n-1])
}
