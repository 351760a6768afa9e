package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "open position conflict",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintOpenPosition},
			want: store.ErrOpenIntervalConflict,
		},
		{
			name: "open person conflict",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintOpenPerson},
			want: store.ErrOpenIntervalConflict,
		},
		{
			name: "duplicate position",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintPositionsPK},
			want: store.ErrPositionAlreadyExists,
		},
		{
			name: "duplicate person",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintPeoplePK},
			want: store.ErrPersonAlreadyExists,
		},
		{
			name: "unknown position reference",
			err:  &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: constraintPositionFK},
			want: store.ErrPositionNotFound,
		},
		{
			name: "unknown person reference",
			err:  &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: constraintPersonFK},
			want: store.ErrPersonNotFound,
		},
		{
			name: "interval without sides",
			err:  &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: constraintIntervalHasSide},
			want: models.ErrDetachedInterval,
		},
		{
			name: "deadlock",
			err:  &pgconn.PgError{Code: pgerrcode.DeadlockDetected},
			want: store.ErrTransient,
		},
		{
			name: "serialization failure",
			err:  &pgconn.PgError{Code: pgerrcode.SerializationFailure},
			want: store.ErrTransient,
		},
		{
			name: "admin shutdown",
			err:  &pgconn.PgError{Code: pgerrcode.AdminShutdown},
			want: store.ErrTransient,
		},
		{
			name: "wrapped too many connections",
			err:  fmt.Errorf("acquire: %w", &pgconn.PgError{Code: pgerrcode.TooManyConnections}),
			want: store.ErrTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, mapPostgresError(tt.err), tt.want)
		})
	}
}

func TestMapPostgresError_PassThrough(t *testing.T) {
	require.NoError(t, mapPostgresError(nil))

	plain := errors.New("boom")
	require.Equal(t, plain, mapPostgresError(plain))

	err := mapPostgresError(&pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: "relation does not exist"})
	require.ErrorContains(t, err, "relation does not exist")
	require.NotErrorIs(t, err, store.ErrTransient)
	require.False(t, store.IsNotFound(err))
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation})
	require.True(t, isUniqueViolation(err))
	require.False(t, isForeignKeyViolation(err))
	require.False(t, isUniqueViolation(errors.New("other")))
}
