// Package metrics provides interfaces and implementations for collecting
// IMAP server metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording IMAP server metrics.
type Collector interface {
	// Connection metrics
	ConnectionOpened()
	ConnectionClosed()
	TLSConnectionEstablished()

	// Authentication metrics, keyed by SASL mechanism name (or "login" for
	// the plaintext LOGIN command).
	AuthAttempt(mechanism string, success bool)

	// Command metrics, keyed by command name.
	CommandProcessed(command string)

	// SelectedMailbox is recorded on SELECT/EXAMINE completion.
	SelectedMailbox(readOnly bool)

	// FetchProcessed records a completed FETCH or UID FETCH, with the
	// number of messages the data items were produced for.
	FetchProcessed(messageCount int)

	// SearchProcessed records a completed SEARCH or UID SEARCH, with the
	// number of matching messages.
	SearchProcessed(matchCount int)

	// IdleStarted/IdleEnded bracket an IDLE command's lifetime, so the
	// active-IDLE gauge can be derived.
	IdleStarted()
	IdleEnded()

	// MessageAppended records a successful APPEND, with the message size.
	MessageAppended(sizeBytes int64)

	// MessageExpunged records a single message leaving a mailbox.
	MessageExpunged()
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
