package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/store"
)

// LedgerStore implements store.Ledger using in-memory storage.
// Transactions are serialized by the store mutex and applied to a copy of the
// dataset which replaces the committed one only when the callback succeeds.
type LedgerStore struct {
	s *Store
}

var _ store.Ledger = (*LedgerStore)(nil)

// WithTx runs fn against a private copy of the dataset and commits it on success.
// fn must not call the read methods of this store, they wait for the same lock.
func (l *LedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	work := l.s.data.clone()
	if err := fn(ctx, &ledgerTx{d: work}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrTransient, err)
	}

	l.s.data = work
	return nil
}

// CurrentForPosition returns the open interval of a position.
func (l *LedgerStore) CurrentForPosition(ctx context.Context, positionID uuid.UUID) (*models.Interval, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	return first(l.s.data.open(models.Interval.PositionID, positionID)), nil
}

// CurrentForPerson returns the open interval of a person.
func (l *LedgerStore) CurrentForPerson(ctx context.Context, personID uuid.UUID) (*models.Interval, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	return first(l.s.data.open(models.Interval.PersonID, personID)), nil
}

// OccupantAt returns the interval covering a position at the given instant.
func (l *LedgerStore) OccupantAt(ctx context.Context, positionID uuid.UUID, at time.Time) (*models.Interval, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	return l.s.data.covering(models.Interval.PositionID, positionID, at), nil
}

// PositionAt returns the interval covering a person at the given instant.
func (l *LedgerStore) PositionAt(ctx context.Context, personID uuid.UUID, at time.Time) (*models.Interval, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	return l.s.data.covering(models.Interval.PersonID, personID, at), nil
}

// IntervalsByPositions returns the intervals for each position id, preserving input order.
func (l *LedgerStore) IntervalsByPositions(ctx context.Context, positionIDs []uuid.UUID) ([][]models.Interval, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	return l.s.data.byKeys(models.Interval.PositionID, positionIDs), nil
}

// IntervalsByPeople returns the intervals for each person id, preserving input order.
func (l *LedgerStore) IntervalsByPeople(ctx context.Context, personIDs []uuid.UUID) ([][]models.Interval, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	return l.s.data.byKeys(models.Interval.PersonID, personIDs), nil
}

// ledgerTx applies writes to an uncommitted copy of the dataset.
type ledgerTx struct {
	d *dataset
}

func (t *ledgerTx) LockPosition(ctx context.Context, positionID uuid.UUID) error {
	if _, ok := t.d.positions[positionID]; !ok {
		return store.ErrPositionNotFound
	}
	return nil
}

func (t *ledgerTx) LockPerson(ctx context.Context, personID uuid.UUID) error {
	if _, ok := t.d.people[personID]; !ok {
		return store.ErrPersonNotFound
	}
	return nil
}

func (t *ledgerTx) OpenForPosition(ctx context.Context, positionID uuid.UUID) ([]models.Interval, error) {
	return t.d.open(models.Interval.PositionID, positionID), nil
}

func (t *ledgerTx) OpenForPerson(ctx context.Context, personID uuid.UUID) ([]models.Interval, error) {
	return t.d.open(models.Interval.PersonID, personID), nil
}

func (t *ledgerTx) Insert(ctx context.Context, interval *models.Interval) error {
	if err := interval.Validate(); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	// Mirror the foreign keys and the partial unique indexes of the PostgreSQL schema.
	if pos := interval.PositionID(); pos != uuid.Nil {
		if _, ok := t.d.positions[pos]; !ok {
			return store.ErrPositionNotFound
		}
		if interval.IsOpen() && len(t.d.open(models.Interval.PositionID, pos)) > 0 {
			return fmt.Errorf("%w: position %s", store.ErrOpenIntervalConflict, pos)
		}
	}
	if person := interval.PersonID(); person != uuid.Nil {
		if _, ok := t.d.people[person]; !ok {
			return store.ErrPersonNotFound
		}
		if interval.IsOpen() && len(t.d.open(models.Interval.PersonID, person)) > 0 {
			return fmt.Errorf("%w: person %s", store.ErrOpenIntervalConflict, person)
		}
	}

	t.d.nextID++
	interval.ID = t.d.nextID
	t.d.intervals[interval.ID] = *interval

	return nil
}

func (t *ledgerTx) Close(ctx context.Context, intervalID int64, endedAt time.Time, closedBy uuid.UUID) (int64, error) {
	iv, ok := t.d.intervals[intervalID]
	if !ok || !iv.IsOpen() {
		return 0, nil
	}

	end := endedAt
	iv.EndedAt = &end
	iv.ClosedBy = closedBy
	t.d.intervals[intervalID] = iv

	return 1, nil
}

func (t *ledgerTx) ReassignPerson(ctx context.Context, from, to uuid.UUID) (int64, error) {
	if _, ok := t.d.people[to]; !ok {
		return 0, store.ErrPersonNotFound
	}

	var n int64
	for id, iv := range t.d.intervals {
		if iv.PersonID() != from {
			continue
		}
		t.d.intervals[id] = iv.WithPerson(to)
		n++
	}

	if len(t.d.open(models.Interval.PersonID, to)) > 1 {
		return 0, fmt.Errorf("%w: person %s", store.ErrOpenIntervalConflict, to)
	}

	return n, nil
}

func (t *ledgerTx) DeletePerson(ctx context.Context, personID uuid.UUID) error {
	if _, ok := t.d.people[personID]; !ok {
		return store.ErrPersonNotFound
	}
	for _, iv := range t.d.intervals {
		if iv.PersonID() == personID {
			return store.ErrPersonInUse
		}
	}

	delete(t.d.people, personID)
	return nil
}

// open returns the open intervals whose key matches id, oldest first.
func (d *dataset) open(key func(models.Interval) uuid.UUID, id uuid.UUID) []models.Interval {
	var out []models.Interval
	for _, iv := range d.intervals {
		if iv.IsOpen() && key(iv) == id {
			out = append(out, iv)
		}
	}
	sortIntervals(out)
	return out
}

// covering returns the latest interval for id that covers the instant at.
func (d *dataset) covering(key func(models.Interval) uuid.UUID, id uuid.UUID, at time.Time) *models.Interval {
	var found *models.Interval
	for _, iv := range d.intervals {
		if key(iv) != id || iv.StartedAt.After(at) {
			continue
		}
		if iv.EndedAt != nil && !iv.EndedAt.After(at) {
			continue
		}
		if found == nil || compareIntervals(iv, *found) > 0 {
			clone := iv
			found = &clone
		}
	}
	return found
}

func (d *dataset) byKeys(key func(models.Interval) uuid.UUID, ids []uuid.UUID) [][]models.Interval {
	grouped := make(map[uuid.UUID][]models.Interval, len(ids))
	for _, id := range ids {
		grouped[id] = []models.Interval{}
	}
	for _, iv := range d.intervals {
		k := key(iv)
		if list, ok := grouped[k]; ok && k != uuid.Nil {
			grouped[k] = append(list, iv)
		}
	}

	result := make([][]models.Interval, len(ids))
	for i, id := range ids {
		list := slices.Clone(grouped[id])
		sortIntervals(list)
		result[i] = list
	}
	return result
}

func first(intervals []models.Interval) *models.Interval {
	if len(intervals) == 0 {
		return nil
	}
	return &intervals[0]
}

func compareIntervals(a, b models.Interval) int {
	if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func sortIntervals(intervals []models.Interval) {
	slices.SortFunc(intervals, compareIntervals)
}
