package crosscat

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownColumn is returned when an operation names a column the
	// view does not hold.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrDuplicateColumn is returned when incorporating a column id that
	// already exists.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrConditionalFirst is returned when a conditional column would be
	// incorporated into (or left behind in) a view without an
	// unconditional column to regress on.
	ErrConditionalFirst = errors.New("conditional column requires an unconditional column")

	// ErrUnknownRow is returned when an operation names a row the view
	// has not observed.
	ErrUnknownRow = errors.New("unknown row")

	// ErrRowObserved is returned when incorporating a rowid that already
	// exists, or when a query would override an observed cell.
	ErrRowObserved = errors.New("row already observed")

	// ErrInvalidValue is returned when a cell value lies outside the
	// support of its column's distribution family.
	ErrInvalidValue = errors.New("value outside column support")

	// ErrDegenerateEvidence is returned when the evidence has zero
	// density under every cluster, so no query can be conditioned on it.
	ErrDegenerateEvidence = errors.New("evidence has zero density under every cluster")

	// ErrEmptyQuery is returned when a query names no columns.
	ErrEmptyQuery = errors.New("query is empty")
)

// ErrInvalidCluster indicates a cluster label outside [0, K].
//
// The original underlying error (if any) can be accessed via
// errors.Unwrap.
type ErrInvalidCluster struct {
	Label int
	K     int
	cause error
}

func (e *ErrInvalidCluster) Error() string {
	return fmt.Sprintf("invalid cluster label %d: must be in [0,%d]", e.Label, e.K)
}

func (e *ErrInvalidCluster) Unwrap() error { return e.cause }
