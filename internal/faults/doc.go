// Package faults defines the error taxonomy shared by the connectivity
// components.
//
// Every component returns a *Fault (or wraps one) so that callers can make
// retry and surfacing decisions without string matching:
//
//	if faults.IsRetryable(err) {
//	    // retry with back-off inside the component
//	}
//
// Propagation policy: component-local transient errors are retried with
// back-off inside the component that saw them; anything a component cannot
// resolve itself is surfaced as an event bit or a returned fault to the
// orchestrator, which is the single place allowed to decide on a full device
// restart.
package faults
