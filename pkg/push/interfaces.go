// Package push contains the public domain model and contracts for the web
// push service: subscriptions, the store that holds them and the transport
// that delivers to them.
package push

import (
	"context"
)

// Store defines the contract for the durable user -> subscription mapping.
// Implementations must be safe for concurrent use.
type Store interface {
	// Register inserts the subscription unless its endpoint is already stored.
	// A duplicate endpoint is a no-op, not an error.
	Register(ctx context.Context, sub Subscription) error

	// ListByUser returns every subscription owned by userID, in no particular
	// order. A user with none yields an empty slice and a nil error.
	ListByUser(ctx context.Context, userID string) ([]Subscription, error)

	// DeleteByID removes the subscription. Deleting an absent id is a no-op.
	DeleteByID(ctx context.Context, id string) error
}

// Transport delivers an already serialized payload to a single endpoint.
//
// Send returns nil on success. Failures are reported as *DeliveryError so
// that callers can tell a dead endpoint (ErrGone) from a retryable one
// (ErrTransient). Any other error is treated as transient.
type Transport interface {
	Send(ctx context.Context, sub Subscription, payload []byte) error
}
