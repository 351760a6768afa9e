package memory

import (
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/models"
)

// Store holds the in-memory roster: positions, people and the occupancy ledger
// share one dataset so ledger transactions can check references like the
// PostgreSQL foreign keys do.
// This implementation is for testing only - data is lost on restart.
type Store struct {
	mu   sync.RWMutex
	data *dataset
}

type dataset struct {
	positions map[uuid.UUID]models.Position // position_id -> Position
	people    map[uuid.UUID]models.Person   // person_id -> Person
	intervals map[int64]models.Interval     // id -> Interval
	nextID    int64
}

// NewStore creates a new, empty in-memory roster store.
func NewStore() *Store {
	return &Store{
		data: &dataset{
			positions: make(map[uuid.UUID]models.Position),
			people:    make(map[uuid.UUID]models.Person),
			intervals: make(map[int64]models.Interval),
		},
	}
}

// Positions returns the position store view.
func (s *Store) Positions() *PositionStore { return &PositionStore{s: s} }

// People returns the person store view.
func (s *Store) People() *PersonStore { return &PersonStore{s: s} }

// Ledger returns the occupancy ledger view.
func (s *Store) Ledger() *LedgerStore { return &LedgerStore{s: s} }

// clone copies the dataset so a transaction can be discarded on rollback.
// Intervals are values, so a shallow map copy is enough.
func (d *dataset) clone() *dataset {
	return &dataset{
		positions: maps.Clone(d.positions),
		people:    maps.Clone(d.people),
		intervals: maps.Clone(d.intervals),
		nextID:    d.nextID,
	}
}
