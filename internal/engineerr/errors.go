// Package engineerr defines the error taxonomy shared across the order
// execution engine's components, so callers can classify a failure with
// errors.Is/errors.As regardless of which component raised it.
package engineerr

import "errors"

// Sentinel errors. Components wrap these with fmt.Errorf("...: %w", Err...)
// to attach context while keeping them matchable with errors.Is.
var (
	// ErrValidation marks a request that failed input validation (bad
	// address, amount out of range, same-asset pair, ...).
	ErrValidation = errors.New("validation failed")

	// ErrNoQuotes marks a routing attempt where every venue driver failed
	// or returned no usable quote.
	ErrNoQuotes = errors.New("no quotes available")

	// ErrVenueTemporary marks a venue failure that is worth retrying
	// (timeout, rate limit, transient RPC error).
	ErrVenueTemporary = errors.New("venue temporarily unavailable")

	// ErrVenuePermanent marks a venue failure that will not succeed on
	// retry (unsupported pair, pool does not exist). Processing must not
	// spend remaining retry attempts on it.
	ErrVenuePermanent = errors.New("venue permanent failure")

	// ErrSlippageExceeded marks an executed price that moved beyond the
	// order's slippage tolerance.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrIllegalTransition marks an attempted order state transition that
	// is not permitted by the state machine.
	ErrIllegalTransition = errors.New("illegal order transition")

	// ErrNotFound marks a lookup for an order, job, or subscription that
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrQueueError marks an infrastructure failure in the queue itself
	// (persistence failure, lease conflict), distinct from a job's own
	// processing failure.
	ErrQueueError = errors.New("queue error")
)
