package orderflow

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("orderflow: invalid input")
	// ErrUnknownStatus occurs when a status is outside the family's table.
	ErrUnknownStatus = errors.New("orderflow: unknown status")
)

// InvalidTransitionError reports an illegal status change. It carries both
// statuses so callers can surface them to the user.
type InvalidTransitionError struct {
	Family    string
	Current   Status
	Requested Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("orderflow: %s transition %s -> %s not allowed", e.Family, e.Current, e.Requested)
}

// InvalidLineItemError identifies the offending line by index.
type InvalidLineItemError struct {
	Index  int
	Reason string
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("orderflow: line %d: %s", e.Index, e.Reason)
}
