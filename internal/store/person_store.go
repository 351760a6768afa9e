package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/models"
)

// Errors
var (
	ErrPersonNotFound      = fmt.Errorf("person %w", ErrNotFound)
	ErrPersonAlreadyExists = errors.New("person already exists")
)

// PersonStore manages the people who can occupy positions.
type PersonStore interface {
	// Create creates a new person.
	// Returns ErrPersonAlreadyExists if a person with the same ID already exists.
	Create(ctx context.Context, person *models.Person) error

	// Get retrieves a person by ID.
	// Returns ErrPersonNotFound if the person doesn't exist.
	Get(ctx context.Context, personID uuid.UUID) (*models.Person, error)
}

// ErrPersonInUse is returned when deleting a person still referenced by the ledger.
var ErrPersonInUse = errors.New("person still referenced by occupancy intervals")
