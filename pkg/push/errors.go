package push

import (
	"errors"
	"fmt"
)

var (
	// ErrGone marks an endpoint the push service reports as permanently
	// invalid (404 / 410). The subscription must be purged.
	ErrGone = errors.New("push endpoint gone")

	// ErrTransient marks a delivery that failed for a retryable reason.
	// The subscription must be kept.
	ErrTransient = errors.New("push delivery failed transiently")
)

// ValidationError is returned for malformed or missing registration fields.
// It is detected before any store mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid subscription: %s %s", e.Field, e.Reason)
}

// StorageError wraps a datastore failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Kind classifies the outcome of a single delivery attempt.
type Kind int

const (
	KindDelivered Kind = iota
	KindGone
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindDelivered:
		return "delivered"
	case KindGone:
		return "gone"
	case KindTransient:
		return "transient"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DeliveryError is the classified failure returned by a Transport.
// StatusCode is zero when no response was received.
type DeliveryError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("push delivery %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("push delivery %s: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Is lets errors.Is match the Kind against ErrGone and ErrTransient.
func (e *DeliveryError) Is(target error) bool {
	switch target {
	case ErrGone:
		return e.Kind == KindGone
	case ErrTransient:
		return e.Kind == KindTransient
	}
	return false
}

// Gone builds a DeliveryError for a dead endpoint.
func Gone(status int, err error) *DeliveryError {
	return &DeliveryError{Kind: KindGone, StatusCode: status, Err: err}
}

// Transient builds a DeliveryError for a retryable failure.
func Transient(status int, err error) *DeliveryError {
	return &DeliveryError{Kind: KindTransient, StatusCode: status, Err: err}
}

// KindOf classifies an error returned by Transport.Send. Unclassified
// errors are transient.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindDelivered
	case errors.Is(err, ErrGone):
		return KindGone
	default:
		return KindTransient
	}
}
