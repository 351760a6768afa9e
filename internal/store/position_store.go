package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/models"
)

// Sentinel errors for position store operations
var (
	ErrPositionNotFound      = fmt.Errorf("position %w", ErrNotFound)
	ErrPositionAlreadyExists = errors.New("position already exists")
)

// PositionStore defines the interface for position storage operations.
// Position lifecycle (naming, status, organization) is managed elsewhere; the roster
// only needs to register positions and check they exist.
type PositionStore interface {
	// Create creates a new position in the store.
	// Returns ErrPositionAlreadyExists if a position with the same ID already exists.
	Create(ctx context.Context, position *models.Position) error

	// Get retrieves a position by ID.
	// Returns ErrPositionNotFound if the position doesn't exist.
	Get(ctx context.Context, positionID uuid.UUID) (*models.Position, error)

	// ListVacant returns positions with no current occupant, optionally filtered
	// by position type (empty = all), ordered by name.
	ListVacant(ctx context.Context, positionType string) ([]*models.Position, error)
}
