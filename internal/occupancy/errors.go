package occupancy

import "errors"

var (
	// ErrInvariantViolation is returned when a write would leave a position or a
	// person with more than one open interval. The transaction must be rolled back;
	// it indicates a sequencing bug in the caller, not bad input.
	ErrInvariantViolation = errors.New("occupancy invariant violation")

	// ErrInvalidArgument is returned for nil ids or a merge of a person with itself.
	ErrInvalidArgument = errors.New("invalid argument")
)
