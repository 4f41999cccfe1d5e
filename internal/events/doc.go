// Package events implements the cross-task event bus.
//
// The bus holds a small fixed vocabulary of boolean signals (wifi connected,
// wifi failed, config saved, factory reset requested, session up/down). It is
// not a general message queue: each bit's set and clear are idempotent and
// independent of the others.
//
// Multiple tasks set, clear and wait on bits concurrently:
//
//	bus := events.New()
//
//	// provisioning task
//	bus.Set(events.ConfigSaved)
//
//	// orchestrator
//	if got, ok := bus.Wait(events.ConfigSaved, 0); ok {
//	    // apply new credentials
//	    _ = got
//	}
//
// Waits block on a channel that is swapped under the same lock that guards
// the bits, so a set is never lost between a waiter's check and its sleep.
package events
