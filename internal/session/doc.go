// Package session maintains the device's websocket session with the
// backend.
//
// The manager identifies itself on connect, dispatches inbound commands
// (recording, playback, restart), and recreates the connection whenever it
// dies. The first connection since boot triggers one-time onboarding side
// effects; a disconnect lasting longer than the quiet period rearms them.
package session
