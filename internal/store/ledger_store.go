package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/models"
)

// LedgerReader provides lock-free reads over committed occupancy intervals.
// Reads may observe the state before or after a concurrent write commits.
type LedgerReader interface {
	// CurrentForPosition returns the open interval of a position, or nil if the
	// position has never had an interval.
	CurrentForPosition(ctx context.Context, positionID uuid.UUID) (*models.Interval, error)

	// CurrentForPerson returns the open interval of a person, or nil if the person
	// has never had an interval.
	CurrentForPerson(ctx context.Context, personID uuid.UUID) (*models.Interval, error)

	// OccupantAt returns the interval covering the position at the given instant,
	// or nil if none does.
	OccupantAt(ctx context.Context, positionID uuid.UUID, at time.Time) (*models.Interval, error)

	// PositionAt returns the interval covering the person at the given instant,
	// or nil if none does.
	PositionAt(ctx context.Context, personID uuid.UUID, at time.Time) (*models.Interval, error)

	// IntervalsByPositions returns one list of intervals per position id, in the
	// same order as ids. Each list is ordered by start time; ids without intervals
	// map to an empty, non-nil list.
	IntervalsByPositions(ctx context.Context, positionIDs []uuid.UUID) ([][]models.Interval, error)

	// IntervalsByPeople is the person-side twin of IntervalsByPositions.
	IntervalsByPeople(ctx context.Context, personIDs []uuid.UUID) ([][]models.Interval, error)
}

// LedgerTx is the set of ledger writes available inside one transaction. Every
// method operates on the caller's transaction; nothing is visible to readers until
// it commits.
type LedgerTx interface {
	// LockPosition locks the position row for the rest of the transaction.
	// Returns ErrPositionNotFound if the position doesn't exist.
	LockPosition(ctx context.Context, positionID uuid.UUID) error

	// LockPerson locks the person row for the rest of the transaction.
	// Returns ErrPersonNotFound if the person doesn't exist.
	LockPerson(ctx context.Context, personID uuid.UUID) error

	// OpenForPosition returns and locks the open intervals of a position.
	OpenForPosition(ctx context.Context, positionID uuid.UUID) ([]models.Interval, error)

	// OpenForPerson returns and locks the open intervals of a person.
	OpenForPerson(ctx context.Context, personID uuid.UUID) ([]models.Interval, error)

	// Insert persists a new interval and sets its ID.
	// Returns ErrOpenIntervalConflict if it would give an entity a second open interval.
	Insert(ctx context.Context, interval *models.Interval) error

	// Close ends an open interval at the given time, recording the closing
	// operation. Returns the number of rows changed (0 if already closed).
	Close(ctx context.Context, intervalID int64, endedAt time.Time, closedBy uuid.UUID) (int64, error)

	// ReassignPerson rewrites every interval referencing from to reference to.
	// Start and end times are left untouched.
	ReassignPerson(ctx context.Context, from, to uuid.UUID) (int64, error)

	// DeletePerson removes a person record. It fails while intervals still
	// reference the person.
	DeletePerson(ctx context.Context, personID uuid.UUID) error
}

// Ledger is the occupancy interval store.
type Ledger interface {
	LedgerReader

	// WithTx runs fn inside a single transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. A failed commit is reported as
	// ErrTransient.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}
