// Package occupancy applies assignment, vacate and merge operations to the
// occupancy ledger.
//
// Every operation runs inside a transaction owned by the caller. It locks the
// rows of the positions and people it touches, closes the intervals that are
// superseded and opens their successors at a shared boundary, so the timeline of
// each entity stays gap free. Placeholders (VacantPosition, UnassignedPerson)
// keep a position or person that has nothing better on a timeline.
package occupancy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/store"
)

// Engine performs the ledger write operations. It holds no state between calls
// and is safe for concurrent use.
type Engine struct {
	clock Clock
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to stamp boundaries.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine creates an engine stamping boundaries from the system clock unless
// another clock is supplied.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{clock: SystemClock{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MergeOptions controls how MergePersonRecords resolves the current state of the
// two records.
type MergeOptions struct {
	// CopyPosition keeps the loser's current position for the winner, vacating
	// whatever the winner held. By default the loser's position is vacated.
	CopyPosition bool
}

// AssignPersonToPosition makes personID the occupant of positionID. The previous
// occupant of the position becomes unassigned and the position the person held
// before becomes vacant. Assigning a person to the position they already hold
// writes nothing and returns 0.
func (e *Engine) AssignPersonToPosition(ctx context.Context, tx store.LedgerTx, personID, positionID uuid.UUID) (int64, error) {
	if personID == uuid.Nil || positionID == uuid.Nil {
		return 0, fmt.Errorf("%w: position and person ids are required", ErrInvalidArgument)
	}

	o := e.begin(ctx, tx, "assign")
	o.log = o.log.With().
		Str("position_id", positionID.String()).
		Str("person_id", personID.String()).
		Logger()

	if err := o.lock(ctx, sidePosition, positionID); err != nil {
		return 0, err
	}
	if err := o.lock(ctx, sidePerson, personID); err != nil {
		return 0, err
	}

	positionOpen, err := o.open(ctx, sidePosition, positionID)
	if err != nil {
		return 0, err
	}
	personOpen, err := o.open(ctx, sidePerson, personID)
	if err != nil {
		return 0, err
	}

	holder := occupied(positionOpen)
	if holder != nil && holder.PersonID() == personID {
		o.log.Debug().Msg("Person already holds position")
		return 0, nil
	}

	// the position's current occupant is moved off first
	if holder != nil {
		if err := o.release(ctx, sidePosition, positionID, o.stamp.next(), true); err != nil {
			return 0, err
		}
	}

	// then the person leaves the position they held
	if held := occupied(personOpen); held != nil {
		if err := o.release(ctx, sidePerson, personID, o.stamp.next(), true); err != nil {
			return 0, err
		}
	}

	boundary := o.stamp.next()
	if err := o.closePlaceholders(ctx, sidePosition, positionID, boundary); err != nil {
		return 0, err
	}
	if err := o.closePlaceholders(ctx, sidePerson, personID, boundary); err != nil {
		return 0, err
	}

	if err := o.insert(ctx, models.Occupied(positionID, personID), boundary); err != nil {
		return 0, err
	}

	if err := o.verify(ctx, sidePosition, positionID); err != nil {
		return 0, err
	}
	if err := o.verify(ctx, sidePerson, personID); err != nil {
		return 0, err
	}

	o.log.Debug().Int64("rows", o.rows).Msg("Assigned person to position")

	return o.rows, nil
}

// RemovePersonFromPosition vacates positionID. The occupant continues as
// unassigned from the same boundary. A position with no interval at all gets an
// open vacancy. Calling it on a vacant position writes nothing and returns 0.
func (e *Engine) RemovePersonFromPosition(ctx context.Context, tx store.LedgerTx, positionID uuid.UUID) (int64, error) {
	return e.remove(ctx, tx, sidePosition, positionID)
}

// RemovePositionFromPerson takes personID off their position. It is the twin
// of RemovePersonFromPosition with the sides swapped.
func (e *Engine) RemovePositionFromPerson(ctx context.Context, tx store.LedgerTx, personID uuid.UUID) (int64, error) {
	return e.remove(ctx, tx, sidePerson, personID)
}

func (e *Engine) remove(ctx context.Context, tx store.LedgerTx, s side, id uuid.UUID) (int64, error) {
	if id == uuid.Nil {
		return 0, fmt.Errorf("%w: %s id is required", ErrInvalidArgument, s)
	}

	o := e.begin(ctx, tx, "remove")
	o.log = o.log.With().Str(s.field(), id.String()).Logger()

	if err := o.lock(ctx, s, id); err != nil {
		return 0, err
	}

	current, err := o.open(ctx, s, id)
	if err != nil {
		return 0, err
	}

	switch {
	case occupied(current) != nil:
		if err := o.release(ctx, s, id, o.stamp.next(), true); err != nil {
			return 0, err
		}
	case len(current) == 0:
		if err := o.insert(ctx, s.placeholder(id), o.stamp.next()); err != nil {
			return 0, err
		}
	}

	if err := o.verify(ctx, s, id); err != nil {
		return 0, err
	}

	if o.rows > 0 {
		o.log.Debug().Int64("rows", o.rows).Msg("Vacated")
	}

	return o.rows, nil
}

// MergePersonRecords rewrites every interval of loserID to reference winnerID.
// Before the rewrite the current state of the two records is reconciled so the
// winner ends with at most one open interval. Past episodes of both records are
// all kept; where they overlap in time the winner's history reports it.
// The loser record itself is left for the caller to delete.
func (e *Engine) MergePersonRecords(ctx context.Context, tx store.LedgerTx, winnerID, loserID uuid.UUID, opts MergeOptions) (int64, error) {
	if winnerID == uuid.Nil || loserID == uuid.Nil {
		return 0, fmt.Errorf("%w: winner and loser ids are required", ErrInvalidArgument)
	}
	if winnerID == loserID {
		return 0, fmt.Errorf("%w: cannot merge person %s into itself", ErrInvalidArgument, winnerID)
	}

	o := e.begin(ctx, tx, "merge")
	o.log = o.log.With().
		Str("winner_id", winnerID.String()).
		Str("loser_id", loserID.String()).
		Logger()

	// lock in a stable order so two merges of the same pair cannot deadlock
	first, second := winnerID, loserID
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}
	if err := o.lock(ctx, sidePerson, first); err != nil {
		return 0, err
	}
	if err := o.lock(ctx, sidePerson, second); err != nil {
		return 0, err
	}

	winnerOpen, err := o.open(ctx, sidePerson, winnerID)
	if err != nil {
		return 0, err
	}
	loserOpen, err := o.open(ctx, sidePerson, loserID)
	if err != nil {
		return 0, err
	}

	var boundary time.Time
	switch {
	case opts.CopyPosition && occupied(loserOpen) != nil:
		// the loser's occupied interval survives the rewrite, so the winner gives
		// up whatever it has open
		if len(winnerOpen) > 0 {
			boundary = o.stamp.next()
			if err := o.release(ctx, sidePerson, winnerID, boundary, false); err != nil {
				return 0, err
			}
		}
	case len(loserOpen) > 0:
		boundary = o.stamp.next()
		if err := o.release(ctx, sidePerson, loserID, boundary, false); err != nil {
			return 0, err
		}
	}

	n, err := tx.ReassignPerson(ctx, loserID, winnerID)
	if err != nil {
		return 0, o.conflict(err)
	}
	o.rows += n

	winnerNow, err := o.open(ctx, sidePerson, winnerID)
	if err != nil {
		return 0, err
	}

	// the winner inherited a past that ends where the loser was released, so its
	// timeline continues unassigned from there
	if len(winnerNow) == 0 && n > 0 {
		if boundary.IsZero() {
			boundary = o.stamp.next()
		}
		if err := o.insert(ctx, sidePerson.placeholder(winnerID), boundary); err != nil {
			return 0, err
		}
	}

	o.log.Debug().Int64("rows", o.rows).Int64("reassigned", n).Msg("Merged person records")

	return o.rows, nil
}

// side selects which column of an interval an operation is keyed on.
type side int

const (
	sidePosition side = iota
	sidePerson
)

func (s side) String() string {
	if s == sidePosition {
		return "position"
	}
	return "person"
}

func (s side) field() string { return s.String() + "_id" }

func (s side) other() side { return 1 - s }

// id returns the id of this side referenced by iv.
func (s side) id(iv models.Interval) uuid.UUID {
	if s == sidePosition {
		return iv.PositionID()
	}
	return iv.PersonID()
}

func (s side) placeholder(id uuid.UUID) models.Interval {
	if s == sidePosition {
		return models.VacantPosition(id)
	}
	return models.UnassignedPerson(id)
}

// operation carries the state of one engine call.
type operation struct {
	id    uuid.UUID
	tx    store.LedgerTx
	stamp *stamper
	rows  int64
	log   zerolog.Logger
}

func (e *Engine) begin(ctx context.Context, tx store.LedgerTx, name string) *operation {
	id := uuid.Must(uuid.NewV7())
	return &operation{
		id:    id,
		tx:    tx,
		stamp: newStamper(e.clock),
		log: zerolog.Ctx(ctx).With().
			Str("op", name).
			Str("op_id", id.String()).
			Logger(),
	}
}

func (o *operation) lock(ctx context.Context, s side, id uuid.UUID) error {
	if s == sidePosition {
		return o.tx.LockPosition(ctx, id)
	}
	return o.tx.LockPerson(ctx, id)
}

// open returns the locked open intervals of an entity. Their start times are
// fed to the stamper so no later boundary can precede them.
func (o *operation) open(ctx context.Context, s side, id uuid.UUID) ([]models.Interval, error) {
	var (
		intervals []models.Interval
		err       error
	)
	if s == sidePosition {
		intervals, err = o.tx.OpenForPosition(ctx, id)
	} else {
		intervals, err = o.tx.OpenForPerson(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	for _, iv := range intervals {
		o.stamp.observe(iv.StartedAt)
	}

	if len(intervals) > 1 {
		return nil, fmt.Errorf("%w: %s %s has %d open intervals", ErrInvariantViolation, s, id, len(intervals))
	}

	return intervals, nil
}

func (o *operation) close(ctx context.Context, iv models.Interval, at time.Time) error {
	n, err := o.tx.Close(ctx, iv.ID, at, o.id)
	if err != nil {
		return err
	}
	o.rows += n
	return nil
}

func (o *operation) insert(ctx context.Context, iv models.Interval, at time.Time) error {
	iv.StartedAt = at
	iv.OpenedBy = o.id
	if err := o.tx.Insert(ctx, &iv); err != nil {
		return o.conflict(err)
	}
	o.rows++
	return nil
}

// conflict turns a store level open interval conflict into an invariant violation.
func (o *operation) conflict(err error) error {
	if errors.Is(err, store.ErrOpenIntervalConflict) {
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	}
	return err
}

// release closes every open interval of an entity at the boundary. Each closed
// occupied interval leaves its counterpart with a placeholder from the same
// boundary. When self is set the entity itself also continues with a placeholder.
// Intervals are only ever closed here, so the number of open occupied intervals
// strictly drops and nothing reopens.
func (o *operation) release(ctx context.Context, s side, id uuid.UUID, at time.Time, self bool) error {
	current, err := o.open(ctx, s, id)
	if err != nil {
		return err
	}

	for _, iv := range current {
		if err := o.close(ctx, iv, at); err != nil {
			return err
		}
	}

	for _, iv := range current {
		if iv.Kind() != models.KindOccupied {
			continue
		}
		if err := o.ensurePlaceholder(ctx, s.other(), s.other().id(iv), at); err != nil {
			return err
		}
	}

	if self {
		return o.ensurePlaceholder(ctx, s, id, at)
	}

	return nil
}

// ensurePlaceholder opens a placeholder for an entity with nothing open.
func (o *operation) ensurePlaceholder(ctx context.Context, s side, id uuid.UUID, at time.Time) error {
	if err := o.lock(ctx, s, id); err != nil {
		return err
	}

	current, err := o.open(ctx, s, id)
	if err != nil {
		return err
	}

	switch {
	case len(current) == 0:
		return o.insert(ctx, s.placeholder(id), at)
	case current[0].IsPlaceholder():
		return nil
	default:
		return fmt.Errorf("%w: %s %s is still occupied after release", ErrInvariantViolation, s, id)
	}
}

// closePlaceholders ends the open placeholder of an entity at the boundary.
func (o *operation) closePlaceholders(ctx context.Context, s side, id uuid.UUID, at time.Time) error {
	current, err := o.open(ctx, s, id)
	if err != nil {
		return err
	}

	for _, iv := range current {
		if !iv.IsPlaceholder() {
			return fmt.Errorf("%w: %s %s still occupied by interval %d", ErrInvariantViolation, s, id, iv.ID)
		}
		if err := o.close(ctx, iv, at); err != nil {
			return err
		}
	}

	return nil
}

// verify re-reads an entity after the writes and fails unless it has at most
// one open interval.
func (o *operation) verify(ctx context.Context, s side, id uuid.UUID) error {
	_, err := o.open(ctx, s, id)
	return err
}

func occupied(intervals []models.Interval) *models.Interval {
	for i := range intervals {
		if intervals[i].Kind() == models.KindOccupied {
			return &intervals[i]
		}
	}
	return nil
}
