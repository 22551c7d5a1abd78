// Package errs defines the error taxonomy shared by the alert, notify and
// quality packages. Callers discriminate with errors.Is; suppression of an
// alert is not represented here because it is a normal outcome, not an error.
package errs

import "errors"

var (
	// ErrNotFound reports an operation on an unknown alert or client id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput reports a malformed type, priority, channel or quality level.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMisconfigured reports a channel missing required recipient data.
	ErrMisconfigured = errors.New("channel misconfigured")

	// ErrRateLimited reports a channel that exceeded its per-hour frequency.
	ErrRateLimited = errors.New("rate limited")

	// ErrChannelDeliveryFailed reports a transient external-service failure.
	ErrChannelDeliveryFailed = errors.New("channel delivery failed")

	// ErrInsufficientData reports too few network samples to aggregate.
	ErrInsufficientData = errors.New("insufficient network data")
)
