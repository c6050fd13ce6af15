package domain

import "errors"

// Error taxonomy for one message-processing cycle. All of these stay
// contained in the failing turn processor instance: they are logged,
// never retried, and never surfaced to the end user.
var (
	// ErrEmptyText rejects an append with no text. Caller-local.
	ErrEmptyText = errors.New("turn text is empty")

	// ErrStoreUnavailable wraps store I/O failures.
	ErrStoreUnavailable = errors.New("conversation store unavailable")

	// ErrModelInvocation wraps completion call failures (quota,
	// network, malformed response).
	ErrModelInvocation = errors.New("model invocation failed")

	// ErrTransportSend wraps outbound delivery failures. A reply that
	// could not be delivered is never logged as an assistant turn:
	// the log records what was actually delivered.
	ErrTransportSend = errors.New("transport send failed")
)
