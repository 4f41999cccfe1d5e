// Package radio defines the narrow contract to the radio hardware.
//
// The radio is a single exclusive resource: it is either off, a station
// joining an existing network, or a temporary access point for provisioning.
// Mode switches are owned by the orchestrator and provisioning service; no
// other component touches the driver directly.
//
// The package ships a Simulated driver with scriptable join outcomes, used
// by tests and by development runs on hardware without a radio.
package radio
