// Package creds persists the network credentials chosen during provisioning.
//
// The store is a single YAML file with string keys "ssid" and "password";
// absence of the file (or of either key) means "no valid configuration" and
// drives the device into provisioning mode. Credentials are written once by
// the provisioning HTTP endpoint, read at boot and per station-connect
// attempt, and erased only by factory reset.
//
// Saves are atomic from the caller's view: the file is written to a
// temporary path and renamed into place, so either both fields persist or
// neither does.
package creds
