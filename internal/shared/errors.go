package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridian-erp/meridian-erp/internal/orderflow"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentModification indicates an optimistic version mismatch;
	// callers should retry from a fresh read.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrActorRequired occurs when a mutating call carries no caller identity.
	ErrActorRequired = errors.New("actor identity required")
)

// PersistenceError marks transient infrastructure failures so callers can
// distinguish them from validation errors and decide whether to retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ClassifyPgError maps driver failures onto the error taxonomy. Serialization
// failures and deadlocks become ErrConcurrentModification; everything else
// from the driver is a PersistenceError.
func ClassifyPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return ErrConcurrentModification
		}
		return &PersistenceError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// UserSafeMessage renders an error as a message fit for API consumers,
// hiding infrastructure details.
func UserSafeMessage(err error) string {
	var invalidTransition *orderflow.InvalidTransitionError
	var invalidLine *orderflow.InvalidLineItemError
	var persistence *PersistenceError
	switch {
	case errors.As(err, &invalidTransition):
		return fmt.Sprintf("status change from %s to %s is not allowed", invalidTransition.Current, invalidTransition.Requested)
	case errors.As(err, &invalidLine):
		return fmt.Sprintf("line %d is invalid: %s", invalidLine.Index, invalidLine.Reason)
	case errors.Is(err, ErrNotFound):
		return "record not found"
	case errors.Is(err, ErrConcurrentModification):
		return "the record was modified concurrently, please retry"
	case errors.Is(err, ErrActorRequired):
		return "caller identity required"
	case errors.As(err, &persistence):
		return "a storage error occurred, please retry later"
	case err != nil:
		return err.Error()
	default:
		return ""
	}
}
