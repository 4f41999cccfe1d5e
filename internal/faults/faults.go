package faults

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Category classifies a fault for retry and surfacing decisions.
type Category int

const (
	// Validation indicates bad caller input (credential limits, malformed
	// parameters). Reported to the caller, never retried.
	Validation Category = iota
	// TransientNetwork indicates a socket error, timeout or connection drop
	// that the owning component may retry per its own policy.
	TransientNetwork
	// ResourceExhaustion indicates an allocation failure. The component
	// degrades once (smaller buffer) before giving up.
	ResourceExhaustion
	// ConfigurationMissing indicates no stored credentials. This drives the
	// provisioning branch and is not an exceptional path.
	ConfigurationMissing
	// Fatal indicates an unrecoverable radio/driver failure. The only
	// supported recovery is a device restart, decided by the orchestrator.
	Fatal
)

// String returns a human-readable name for the category
func (c Category) String() string {
	switch c {
	case Validation:
		return "Validation Error"
	case TransientNetwork:
		return "Transient Network Error"
	case ResourceExhaustion:
		return "Resource Exhaustion"
	case ConfigurationMissing:
		return "Configuration Missing"
	case Fatal:
		return "Fatal Error"
	default:
		return fmt.Sprintf("Category(%d)", c)
	}
}

// Fault is the error type shared by the connectivity components.
type Fault struct {
	Category  Category
	Message   string
	Err       error // Underlying error (if any)
	Retryable bool
}

// Error implements the error interface
func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", f.Category, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Category, f.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (f *Fault) Unwrap() error {
	return f.Err
}

// NewValidation creates a validation fault
func NewValidation(message string) *Fault {
	return &Fault{Category: Validation, Message: message}
}

// NewTransient creates a retryable transient network fault
func NewTransient(message string, err error) *Fault {
	return &Fault{Category: TransientNetwork, Message: message, Err: err, Retryable: true}
}

// NewResourceExhaustion creates a resource exhaustion fault
func NewResourceExhaustion(message string, err error) *Fault {
	return &Fault{Category: ResourceExhaustion, Message: message, Err: err}
}

// NewConfigurationMissing creates a configuration-missing fault
func NewConfigurationMissing(message string) *Fault {
	return &Fault{Category: ConfigurationMissing, Message: message}
}

// NewFatal creates a fatal fault
func NewFatal(message string, err error) *Fault {
	return &Fault{Category: Fatal, Message: message, Err: err}
}

// ClassifyNetworkError wraps a raw network error in a Fault, inspecting the
// error chain to decide whether it is worth retrying.
func ClassifyNetworkError(message string, err error) *Fault {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &Fault{
			Category:  TransientNetwork,
			Message:   message + ": timed out",
			Err:       err,
			Retryable: true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Fault{
			Category:  TransientNetwork,
			Message:   fmt.Sprintf("%s: resolution failed for %s", message, dnsErr.Name),
			Err:       err,
			Retryable: dnsErr.IsTemporary,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED),
			errors.Is(opErr.Err, syscall.EHOSTUNREACH),
			errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Fault{Category: TransientNetwork, Message: message, Err: err, Retryable: true}
		}
	}

	return &Fault{Category: TransientNetwork, Message: message, Err: err, Retryable: true}
}

// IsValidation checks if an error is a validation fault
func IsValidation(err error) bool {
	return isCategory(err, Validation)
}

// IsTransient checks if an error is a transient network fault
func IsTransient(err error) bool {
	return isCategory(err, TransientNetwork)
}

// IsResourceExhaustion checks if an error is a resource exhaustion fault
func IsResourceExhaustion(err error) bool {
	return isCategory(err, ResourceExhaustion)
}

// IsConfigurationMissing checks if an error indicates absent credentials
func IsConfigurationMissing(err error) bool {
	return isCategory(err, ConfigurationMissing)
}

// IsFatal checks if an error is a fatal fault
func IsFatal(err error) bool {
	return isCategory(err, Fatal)
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

func isCategory(err error, c Category) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Category == c
	}
	return false
}
