// Package orchestrator sequences the device lifecycle: factory-fresh boots
// go through provisioning, configured boots join the stored network and hold
// the backend session, and a factory reset pre-empts either path.
package orchestrator
