package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/store"
)

const intervalColumns = `id, position_id, person_id, started_at, ended_at, opened_by, closed_by`

// LedgerStore implements store.Ledger using PostgreSQL.
//
// Writes run in read-committed transactions. Every write path first locks the
// affected positions/people rows and then the open interval rows with
// SELECT ... FOR UPDATE, so two operations touching the same entity serialize.
// The partial unique indexes on open intervals back this up at commit.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ store.Ledger = (*LedgerStore)(nil)

// NewLedgerStore creates a new PostgreSQL-backed occupancy ledger.
// It shares the connection pool with other stores.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{
		pool: pool,
	}
}

// WithTx runs fn inside a read-committed transaction.
func (s *LedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", store.ErrTransient, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := fn(ctx, &ledgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrTransient) {
			return mapped
		}
		return fmt.Errorf("%w: failed to commit: %w", store.ErrTransient, err)
	}

	return nil
}

// CurrentForPosition returns the open interval of a position.
func (s *LedgerStore) CurrentForPosition(ctx context.Context, positionID uuid.UUID) (*models.Interval, error) {
	query := `SELECT ` + intervalColumns + `
		FROM occupancy_intervals
		WHERE position_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`
	return s.queryOne(ctx, query, positionID)
}

// CurrentForPerson returns the open interval of a person.
func (s *LedgerStore) CurrentForPerson(ctx context.Context, personID uuid.UUID) (*models.Interval, error) {
	query := `SELECT ` + intervalColumns + `
		FROM occupancy_intervals
		WHERE person_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`
	return s.queryOne(ctx, query, personID)
}

// OccupantAt returns the interval covering a position at the given instant.
func (s *LedgerStore) OccupantAt(ctx context.Context, positionID uuid.UUID, at time.Time) (*models.Interval, error) {
	query := `SELECT ` + intervalColumns + `
		FROM occupancy_intervals
		WHERE position_id = $1
		  AND started_at <= $2
		  AND (ended_at IS NULL OR ended_at > $2)
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`
	return s.queryOne(ctx, query, positionID, at)
}

// PositionAt returns the interval covering a person at the given instant.
func (s *LedgerStore) PositionAt(ctx context.Context, personID uuid.UUID, at time.Time) (*models.Interval, error) {
	query := `SELECT ` + intervalColumns + `
		FROM occupancy_intervals
		WHERE person_id = $1
		  AND started_at <= $2
		  AND (ended_at IS NULL OR ended_at > $2)
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`
	return s.queryOne(ctx, query, personID, at)
}

// IntervalsByPositions returns the intervals for each position id with one query.
func (s *LedgerStore) IntervalsByPositions(ctx context.Context, positionIDs []uuid.UUID) ([][]models.Interval, error) {
	query := `SELECT ` + intervalColumns + `
		FROM occupancy_intervals
		WHERE position_id = ANY($1::uuid[])
		ORDER BY started_at, id
	`
	return s.queryBatch(ctx, query, positionIDs, models.Interval.PositionID)
}

// IntervalsByPeople returns the intervals for each person id with one query.
func (s *LedgerStore) IntervalsByPeople(ctx context.Context, personIDs []uuid.UUID) ([][]models.Interval, error) {
	query := `SELECT ` + intervalColumns + `
		FROM occupancy_intervals
		WHERE person_id = ANY($1::uuid[])
		ORDER BY started_at, id
	`
	return s.queryBatch(ctx, query, personIDs, models.Interval.PersonID)
}

func (s *LedgerStore) queryOne(ctx context.Context, query string, args ...any) (*models.Interval, error) {
	iv, err := scanInterval(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query interval: %w", mapPostgresError(err))
	}
	return &iv, nil
}

func (s *LedgerStore) queryBatch(ctx context.Context, query string, ids []uuid.UUID, key func(models.Interval) uuid.UUID) ([][]models.Interval, error) {
	result := make([][]models.Interval, len(ids))
	for i := range result {
		result[i] = []models.Interval{}
	}
	if len(ids) == 0 {
		return result, nil
	}

	params, slots := batchParams(ids)

	rows, err := s.pool.Query(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query intervals: %w", mapPostgresError(err))
	}
	defer rows.Close()

	for rows.Next() {
		iv, err := scanInterval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interval: %w", err)
		}
		for _, i := range slots[key(iv)] {
			result[i] = append(result[i], iv)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intervals: %w", mapPostgresError(err))
	}

	return result, nil
}

// ledgerTx implements store.LedgerTx on a single pgx transaction.
type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) LockPosition(ctx context.Context, positionID uuid.UUID) error {
	return t.lockRow(ctx, `SELECT 1 FROM positions WHERE position_id = $1 FOR UPDATE`, positionID, store.ErrPositionNotFound)
}

func (t *ledgerTx) LockPerson(ctx context.Context, personID uuid.UUID) error {
	return t.lockRow(ctx, `SELECT 1 FROM people WHERE person_id = $1 FOR UPDATE`, personID, store.ErrPersonNotFound)
}

func (t *ledgerTx) lockRow(ctx context.Context, query string, id uuid.UUID, notFound error) error {
	var one int
	if err := t.tx.QueryRow(ctx, query, id).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound
		}
		return fmt.Errorf("failed to lock row: %w", mapPostgresError(err))
	}
	return nil
}

func (t *ledgerTx) OpenForPosition(ctx context.Context, positionID uuid.UUID) ([]models.Interval, error) {
	query := `SELECT ` + intervalColumns + `
		FROM occupancy_intervals
		WHERE position_id = $1 AND ended_at IS NULL
		ORDER BY started_at, id
		FOR UPDATE
	`
	return t.queryOpen(ctx, query, positionID)
}

func (t *ledgerTx) OpenForPerson(ctx context.Context, personID uuid.UUID) ([]models.Interval, error) {
	query := `SELECT ` + intervalColumns + `
		FROM occupancy_intervals
		WHERE person_id = $1 AND ended_at IS NULL
		ORDER BY started_at, id
		FOR UPDATE
	`
	return t.queryOpen(ctx, query, personID)
}

func (t *ledgerTx) queryOpen(ctx context.Context, query string, id uuid.UUID) ([]models.Interval, error) {
	rows, err := t.tx.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock open intervals: %w", mapPostgresError(err))
	}

	intervals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Interval, error) {
		return scanInterval(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan open intervals: %w", mapPostgresError(err))
	}

	return intervals, nil
}

func (t *ledgerTx) Insert(ctx context.Context, interval *models.Interval) error {
	if err := interval.Validate(); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	query := `
		INSERT INTO occupancy_intervals (
			position_id, person_id, started_at, ended_at, opened_by, closed_by
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		RETURNING id
	`

	err := t.tx.QueryRow(ctx, query,
		interval.PositionColumn(),
		interval.PersonColumn(),
		interval.StartedAt,
		interval.EndedAt,
		interval.OpenedBy,
		nullable(interval.ClosedBy),
	).Scan(&interval.ID)
	if err != nil {
		return fmt.Errorf("failed to insert interval: %w", mapPostgresError(err))
	}

	zerolog.Ctx(ctx).Debug().
		Int64("interval_id", interval.ID).
		Str("kind", string(interval.Kind())).
		Str("position_id", interval.PositionID().String()).
		Str("person_id", interval.PersonID().String()).
		Time("started_at", interval.StartedAt).
		Msg("Opened interval")

	return nil
}

func (t *ledgerTx) Close(ctx context.Context, intervalID int64, endedAt time.Time, closedBy uuid.UUID) (int64, error) {
	query := `
		UPDATE occupancy_intervals
		SET ended_at = $2, closed_by = $3
		WHERE id = $1 AND ended_at IS NULL
	`

	result, err := t.tx.Exec(ctx, query, intervalID, endedAt, nullable(closedBy))
	if err != nil {
		return 0, fmt.Errorf("failed to close interval: %w", mapPostgresError(err))
	}

	return result.RowsAffected(), nil
}

func (t *ledgerTx) ReassignPerson(ctx context.Context, from, to uuid.UUID) (int64, error) {
	query := `UPDATE occupancy_intervals SET person_id = $2 WHERE person_id = $1`

	result, err := t.tx.Exec(ctx, query, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign intervals: %w", mapPostgresError(err))
	}

	return result.RowsAffected(), nil
}

func (t *ledgerTx) DeletePerson(ctx context.Context, personID uuid.UUID) error {
	result, err := t.tx.Exec(ctx, `DELETE FROM people WHERE person_id = $1`, personID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrPersonInUse
		}
		return fmt.Errorf("failed to delete person: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrPersonNotFound
	}

	return nil
}

func scanInterval(row pgx.Row) (models.Interval, error) {
	var (
		id         int64
		positionID uuid.NullUUID
		personID   uuid.NullUUID
		startedAt  time.Time
		endedAt    *time.Time
		openedBy   uuid.UUID
		closedBy   uuid.NullUUID
	)

	if err := row.Scan(&id, &positionID, &personID, &startedAt, &endedAt, &openedBy, &closedBy); err != nil {
		return models.Interval{}, err
	}

	iv, err := models.IntervalFromColumns(positionID, personID)
	if err != nil {
		return models.Interval{}, fmt.Errorf("interval %d: %w", id, err)
	}

	iv.ID = id
	iv.StartedAt = startedAt.UTC()
	if endedAt != nil {
		end := endedAt.UTC()
		iv.EndedAt = &end
	}
	iv.OpenedBy = openedBy
	iv.ClosedBy = closedBy.UUID

	return iv, nil
}

func nullable(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

// batchParams returns the distinct ids in first-seen order and, per id, the
// result slots it fills. The same id may be requested more than once.
func batchParams(ids []uuid.UUID) ([]uuid.UUID, map[uuid.UUID][]int) {
	slots := make(map[uuid.UUID][]int, len(ids))
	params := make([]uuid.UUID, 0, len(ids))
	for i, id := range ids {
		if _, seen := slots[id]; !seen {
			params = append(params, id)
		}
		slots[id] = append(slots[id], i)
	}
	return params, slots
}
