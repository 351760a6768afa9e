package memory

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/store"
)

// PositionStore implements store.PositionStore on top of the shared in-memory dataset.
type PositionStore struct {
	s *Store
}

var _ store.PositionStore = (*PositionStore)(nil)

// Create creates a new position in memory.
func (p *PositionStore) Create(ctx context.Context, position *models.Position) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	// Check if position already exists
	if _, exists := p.s.data.positions[position.PositionID]; exists {
		return store.ErrPositionAlreadyExists
	}

	// Clone to avoid external modifications
	p.s.data.positions[position.PositionID] = *position

	return nil
}

// Get retrieves a position by ID.
func (p *PositionStore) Get(ctx context.Context, positionID uuid.UUID) (*models.Position, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	position, exists := p.s.data.positions[positionID]
	if !exists {
		return nil, store.ErrPositionNotFound
	}

	return &position, nil
}

// ListVacant returns positions without an open occupied interval.
func (p *PositionStore) ListVacant(ctx context.Context, positionType string) ([]*models.Position, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	occupied := make(map[uuid.UUID]bool)
	for _, iv := range p.s.data.intervals {
		if iv.IsOpen() && iv.Kind() == models.KindOccupied {
			occupied[iv.PositionID()] = true
		}
	}

	var result []*models.Position
	for id, position := range p.s.data.positions {
		if occupied[id] {
			continue
		}
		if positionType != "" && position.Type != positionType {
			continue
		}
		clone := position
		result = append(result, &clone)
	}

	slices.SortFunc(result, func(a, b *models.Position) int {
		return cmp.Or(
			strings.Compare(a.Name, b.Name),
			bytes.Compare(a.PositionID[:], b.PositionID[:]),
		)
	})

	return result, nil
}
