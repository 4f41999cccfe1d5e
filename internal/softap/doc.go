// Package softap runs the device's provisioning mode: an open access point,
// the captive DNS responder, and the portal HTTP server, brought up and torn
// down as one unit.
package softap
