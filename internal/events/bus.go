package events

import (
	"strings"
	"sync"
	"time"
)

// Bit is a single named flag on the Bus. Bits are combined with bitwise OR.
type Bit uint32

// The fixed vocabulary of cross-task signals.
const (
	WifiConnected Bit = 1 << iota
	WifiFailed
	ConfigSaved
	FactoryResetRequested
	SessionUp
	SessionDown
)

// AllBits covers every defined bit, for bulk clears on factory reset.
const AllBits = WifiConnected | WifiFailed | ConfigSaved | FactoryResetRequested | SessionUp | SessionDown

var bitNames = []struct {
	bit  Bit
	name string
}{
	{WifiConnected, "wifi_connected"},
	{WifiFailed, "wifi_failed"},
	{ConfigSaved, "config_saved"},
	{FactoryResetRequested, "factory_reset_requested"},
	{SessionUp, "session_up"},
	{SessionDown, "session_down"},
}

// String returns the names of all set bits, pipe-separated
func (b Bit) String() string {
	if b == 0 {
		return "none"
	}
	var names []string
	for _, bn := range bitNames {
		if b&bn.bit != 0 {
			names = append(names, bn.name)
		}
	}
	return strings.Join(names, "|")
}

// Bus is a process-wide set of named bits used for cross-task signaling.
//
// Sets are monotonic announcements: a waiter that wakes after a bit was set
// always observes it. Bits may be cleared by a different actor than the one
// that set them, so waiters re-check intent rather than assuming a bit stays
// set.
type Bus struct {
	mu      sync.Mutex
	bits    Bit
	changed chan struct{}
}

// New creates an empty Bus
func New() *Bus {
	return &Bus{changed: make(chan struct{})}
}

// Set raises the given bits. Idempotent; waiters are woken only when the
// set actually changes the bits.
func (b *Bus) Set(bits Bit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bits|bits == b.bits {
		return
	}
	b.bits |= bits
	close(b.changed)
	b.changed = make(chan struct{})
}

// Clear lowers the given bits. Idempotent.
func (b *Bus) Clear(bits Bit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bits &^= bits
}

// ClearAll lowers every bit. Used on factory reset.
func (b *Bus) ClearAll() {
	b.Clear(AllBits)
}

// Get returns a snapshot of the currently set bits
func (b *Bus) Get() Bit {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bits
}

// Wait blocks until any bit in mask is set or the timeout elapses. It
// returns the intersection of the set bits with mask, and whether the wait
// was satisfied before the timeout. A zero timeout waits forever; callers
// opt into that explicitly.
//
// The channel swap in Set guarantees no missed-wakeup window: the wait
// channel is captured under the same lock that reads the bits.
func (b *Bus) Wait(mask Bit, timeout time.Duration) (Bit, bool) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		b.mu.Lock()
		if got := b.bits & mask; got != 0 {
			b.mu.Unlock()
			return got, true
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ch:
		case <-deadline:
			b.mu.Lock()
			got := b.bits & mask
			b.mu.Unlock()
			return got, got != 0
		}
	}
}
