// Package device holds the device's identity and the collaborator contracts
// consumed by the connectivity core.
//
// Identity covers the stable facts about a unit: model name, hardware
// address, and the backend client identifier. Collaborators is the narrow
// surface over the audio subsystem and platform controls (restart, factory
// reset); everything behind it is treated as opaque and possibly failing.
package device
