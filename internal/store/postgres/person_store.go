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

// PersonStore implements store.PersonStore using PostgreSQL.
type PersonStore struct {
	pool *pgxpool.Pool
}

var _ store.PersonStore = (*PersonStore)(nil)

// NewPersonStore creates a new PostgreSQL-backed person store.
// It shares the connection pool with other stores.
func NewPersonStore(pool *pgxpool.Pool) *PersonStore {
	return &PersonStore{
		pool: pool,
	}
}

// Create creates a new person in the database.
func (s *PersonStore) Create(ctx context.Context, person *models.Person) error {
	query := `
		INSERT INTO people (person_id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		person.PersonID,
		person.Name,
		person.Status,
		person.CreatedAt,
		person.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrPersonAlreadyExists
		}
		return fmt.Errorf("failed to create person: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("person_id", person.PersonID.String()).
		Str("name", person.Name).
		Msg("Created person")

	return nil
}

// Get retrieves a person by ID.
func (s *PersonStore) Get(ctx context.Context, personID uuid.UUID) (*models.Person, error) {
	query := `
		SELECT person_id, name, status, created_at, updated_at
		FROM people
		WHERE person_id = $1
	`

	var person models.Person
	err := s.pool.QueryRow(ctx, query, personID).Scan(
		&person.PersonID,
		&person.Name,
		&person.Status,
		&person.CreatedAt,
		&person.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPersonNotFound
		}
		return nil, fmt.Errorf("failed to get person: %w", mapPostgresError(err))
	}

	return &person, nil
}
