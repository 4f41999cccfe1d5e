package device

import "time"

// Chime identifiers for the embedded prompt sounds.
const (
	ChimeWelcome      = 1 // first boot / after factory reset
	ChimeProvisioning = 2 // entering provisioning mode
	ChimeConfigSaved  = 3 // credentials accepted
	ChimeConnected    = 4 // first backend connection since boot
)

// Collaborators are the opaque, possibly-slow, possibly-failing calls into
// the audio subsystem and platform. The connectivity core never reaches
// past this surface.
type Collaborators interface {
	// PlayAudio plays raw PCM from the buffer, blocking until done.
	PlayAudio(buffer []byte) error
	// RecordAudio captures into buffer until it is full or the timeout
	// elapses, returning the number of bytes captured.
	RecordAudio(buffer []byte, timeout time.Duration) (int, error)
	// PlayChime plays one of the embedded prompt sounds by id.
	PlayChime(id int) error
	// Restart reboots the device. Does not return.
	Restart()
	// FactoryReset clears device-local state outside the credential store.
	FactoryReset() error
}

// Nop is a Collaborators implementation that does nothing. Development runs
// and tests use it where no audio hardware is present.
type Nop struct{}

// PlayAudio implements Collaborators
func (Nop) PlayAudio(buffer []byte) error { return nil }

// RecordAudio implements Collaborators
func (Nop) RecordAudio(buffer []byte, timeout time.Duration) (int, error) {
	return len(buffer), nil
}

// PlayChime implements Collaborators
func (Nop) PlayChime(id int) error { return nil }

// Restart implements Collaborators. The nop variant returns so that tests
// can drive code paths that would otherwise reboot.
func (Nop) Restart() {}

// FactoryReset implements Collaborators
func (Nop) FactoryReset() error { return nil }
