// Package transport defines the interface for patient-facing transports.
//
// A transport accepts consultations (a recording, an image, or both), hands
// them to the dispatcher and returns the result to the caller. The dispatcher
// doesn't care how consultations arrive; it only works with the Handler
// contract.
package transport

import (
	"context"

	"github.com/nadzzz/voicedoc/internal/message"
)

// Handler processes an incoming consultation and returns its result.
// The dispatcher provides this handler to each transport.
type Handler func(ctx context.Context, c *message.Consultation) (*message.ConsultResult, error)

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "http").
	Name() string

	// Listen starts accepting consultations and dispatches them to the handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
