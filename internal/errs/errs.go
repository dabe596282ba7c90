// Package errs defines the error-kind taxonomy shared across the core.
//
// Components never use exceptions-for-flow. Every public operation returns
// a plain Go error; where the caller needs to branch on *kind* (retry vs.
// escalate vs. log-only), that error wraps a *Error carrying one of the
// Kind values below. Use errors.As to recover it.
package errs

import "fmt"

// Kind classifies an error into one of five operational categories.
// These map directly to the taxonomy the core's error-handling design
// is built around: configuration failures stop the process, transient
// broker failures retry, broker logical failures propagate as-is, data
// staleness declines an action without alarm, and fatal errors degrade
// the process to exit-management-only. Policy refusals are not errors
// at all — see skip reasons in internal/strategist.
type Kind int

const (
	// Configuration: missing/invalid env vars, bad config file. Fatal at startup.
	Configuration Kind = iota
	// Transient: HTTP 429/5xx, network timeout, websocket drop. Retry, then escalate.
	Transient
	// BrokerLogical: explicit broker reject (insufficient balance, invalid qty, market closed).
	BrokerLogical
	// Stale: quote or bar data too old to act on. Decline, not alarming.
	Stale
	// Fatal: unrecoverable condition (reconnect exhaustion, rate-limit starvation).
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Transient:
		return "transient"
	case BrokerLogical:
		return "broker_logical"
	case Stale:
		return "stale"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the structured error carried across component boundaries.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "broker.PlaceOrder"
	Code    string // security code, if applicable
	Err     error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Op, e.Code, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a typed Error.
func New(kind Kind, op, code string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Err: cause}
}

// MarketClosed is the distinct error returned when a REST call would cross
// market close (spec §4.3 time-of-day gating).
var MarketClosed = &Error{Kind: BrokerLogical, Op: "broker", Err: fmt.Errorf("market closed")}
