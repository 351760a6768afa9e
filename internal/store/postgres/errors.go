package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/store"
)

// Constraint names declared in migrations/1_initial_schema.sql.
const (
	constraintOpenPosition    = "idx_occupancy_open_position"
	constraintOpenPerson      = "idx_occupancy_open_person"
	constraintPositionFK      = "occupancy_intervals_position_fk"
	constraintPersonFK        = "occupancy_intervals_person_fk"
	constraintPositionsPK     = "positions_pkey"
	constraintPeoplePK        = "people_pkey"
	constraintIntervalHasSide = "occupancy_intervals_has_side"
)

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	// Failed dials never reach the server so there is no PgError to inspect
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: database connection error: %w", store.ErrTransient, err)
	}

	// Check if it's a PostgreSQL error
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	// Map error codes to sentinel errors
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintOpenPosition, constraintOpenPerson:
			return fmt.Errorf("%w: %s", store.ErrOpenIntervalConflict, pgErr.Detail)
		case constraintPositionsPK:
			return store.ErrPositionAlreadyExists
		case constraintPeoplePK:
			return store.ErrPersonAlreadyExists
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		// Inserts referencing a missing row. Deletes of referenced rows are mapped by the caller.
		switch pgErr.ConstraintName {
		case constraintPositionFK:
			return fmt.Errorf("%w: %s", store.ErrPositionNotFound, pgErr.Detail)
		case constraintPersonFK:
			return fmt.Errorf("%w: %s", store.ErrPersonNotFound, pgErr.Detail)
		}
		return fmt.Errorf("foreign key violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation:
		if pgErr.ConstraintName == constraintIntervalHasSide {
			return models.ErrDetachedInterval
		}
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		// Retryable transaction errors
		return fmt.Errorf("%w: transaction conflict: %w", store.ErrTransient, err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("%w: database connection error: %w", store.ErrTransient, err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("%w: database server unavailable: %w", store.ErrTransient, err)

	case pgerrcode.QueryCanceled:
		// Context cancellation or timeout
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("%w: database resource limit: %w", store.ErrTransient, err)

	default:
		// Unknown error - wrap with PostgreSQL error details
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	return hasCode(err, pgerrcode.UniqueViolation)
}

// isForeignKeyViolation reports whether err is a foreign key violation.
func isForeignKeyViolation(err error) bool {
	return hasCode(err, pgerrcode.ForeignKeyViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
