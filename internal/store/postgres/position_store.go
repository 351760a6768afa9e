package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/store"
)

// PositionStore implements store.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ store.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a new PostgreSQL-backed position store.
// It shares the connection pool with other stores.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{
		pool: pool,
	}
}

// Create creates a new position in the database.
func (s *PositionStore) Create(ctx context.Context, position *models.Position) error {
	query := `
		INSERT INTO positions (
			position_id, organization_id, name, type, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		position.PositionID,
		position.OrganizationID,
		position.Name,
		position.Type,
		position.Status,
		position.CreatedAt,
		position.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrPositionAlreadyExists
		}
		return fmt.Errorf("failed to create position: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("position_id", position.PositionID.String()).
		Str("name", position.Name).
		Msg("Created position")

	return nil
}

// Get retrieves a position by ID.
func (s *PositionStore) Get(ctx context.Context, positionID uuid.UUID) (*models.Position, error) {
	query := `
		SELECT position_id, organization_id, name, type, status, created_at, updated_at
		FROM positions
		WHERE position_id = $1
	`

	position, err := scanPosition(s.pool.QueryRow(ctx, query, positionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", mapPostgresError(err))
	}

	return position, nil
}

// ListVacant returns positions without an open occupied interval, ordered by name.
func (s *PositionStore) ListVacant(ctx context.Context, positionType string) ([]*models.Position, error) {
	query := `
		SELECT p.position_id, p.organization_id, p.name, p.type, p.status, p.created_at, p.updated_at
		FROM positions p
		WHERE ($1::text = '' OR p.type = $1::text)
		  AND NOT EXISTS (
			SELECT 1 FROM occupancy_intervals o
			WHERE o.position_id = p.position_id
			  AND o.person_id IS NOT NULL
			  AND o.ended_at IS NULL
		  )
		ORDER BY p.name, p.position_id
	`

	rows, err := s.pool.Query(ctx, query, positionType)
	if err != nil {
		return nil, fmt.Errorf("failed to list vacant positions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, position)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", mapPostgresError(err))
	}

	return positions, nil
}

func scanPosition(row pgx.Row) (*models.Position, error) {
	var position models.Position
	err := row.Scan(
		&position.PositionID,
		&position.OrganizationID,
		&position.Name,
		&position.Type,
		&position.Status,
		&position.CreatedAt,
		&position.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &position, nil
}
