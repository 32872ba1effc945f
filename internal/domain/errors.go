package domain

import "github.com/cockroachdb/errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnprocessable        = errors.New("unprocessable state")
)

// InvalidTransition reports an attempt to move an order along an edge
// that is not part of the status graph.
func InvalidTransition(from, to OrderStatus) error {
	return errors.Wrapf(ErrUnprocessable, "invalid transition %s -> %s", from, to)
}
