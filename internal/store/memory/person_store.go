package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/store"
)

// PersonStore implements store.PersonStore on top of the shared in-memory dataset.
type PersonStore struct {
	s *Store
}

var _ store.PersonStore = (*PersonStore)(nil)

// Create creates a new person in memory.
func (p *PersonStore) Create(ctx context.Context, person *models.Person) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if _, exists := p.s.data.people[person.PersonID]; exists {
		return store.ErrPersonAlreadyExists
	}

	p.s.data.people[person.PersonID] = *person

	return nil
}

// Get retrieves a person by ID.
func (p *PersonStore) Get(ctx context.Context, personID uuid.UUID) (*models.Person, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	person, exists := p.s.data.people[personID]
	if !exists {
		return nil, store.ErrPersonNotFound
	}

	return &person, nil
}
