package occupancy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/roster/internal/history"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/store"
	"github.com/wolfeidau/roster/internal/store/memory"
	"golang.org/x/sync/errgroup"
)

// stepClock advances one second on every read.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	st     *memory.Store
	ledger *memory.LedgerStore
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	st := memory.NewStore()

	return &fixture{
		st:     st,
		ledger: st.Ledger(),
		engine: NewEngine(WithClock(clock)),
	}
}

func (f *fixture) position(t *testing.T, name string) uuid.UUID {
	t.Helper()

	id := uuid.Must(uuid.NewV7())
	require.NoError(t, f.st.Positions().Create(context.Background(), &models.Position{
		PositionID: id,
		Name:       name,
		Type:       models.PositionTypeAdvisor,
		Status:     models.PositionStatusActive,
	}))
	return id
}

func (f *fixture) person(t *testing.T, name string) uuid.UUID {
	t.Helper()

	id := uuid.Must(uuid.NewV7())
	require.NoError(t, f.st.People().Create(context.Background(), &models.Person{
		PersonID: id,
		Name:     name,
		Status:   models.PersonStatusActive,
	}))
	return id
}

func (f *fixture) assign(t *testing.T, personID, positionID uuid.UUID) int64 {
	t.Helper()

	var rows int64
	err := f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		var err error
		rows, err = f.engine.AssignPersonToPosition(ctx, tx, personID, positionID)
		return err
	})
	require.NoError(t, err)
	return rows
}

func (f *fixture) removePerson(t *testing.T, positionID uuid.UUID) int64 {
	t.Helper()

	var rows int64
	err := f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		var err error
		rows, err = f.engine.RemovePersonFromPosition(ctx, tx, positionID)
		return err
	})
	require.NoError(t, err)
	return rows
}

func (f *fixture) merge(t *testing.T, winner, loser uuid.UUID, opts MergeOptions) int64 {
	t.Helper()

	var rows int64
	err := f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		var err error
		rows, err = f.engine.MergePersonRecords(ctx, tx, winner, loser, opts)
		return err
	})
	require.NoError(t, err)
	return rows
}

func (f *fixture) currentPosition(t *testing.T, positionID uuid.UUID) *models.Interval {
	t.Helper()

	iv, err := f.ledger.CurrentForPosition(context.Background(), positionID)
	require.NoError(t, err)
	return iv
}

func (f *fixture) currentPerson(t *testing.T, personID uuid.UUID) *models.Interval {
	t.Helper()

	iv, err := f.ledger.CurrentForPerson(context.Background(), personID)
	require.NoError(t, err)
	return iv
}

func (f *fixture) positionHistory(t *testing.T, positionID uuid.UUID) history.History {
	t.Helper()

	lists, err := f.ledger.IntervalsByPositions(context.Background(), []uuid.UUID{positionID})
	require.NoError(t, err)
	return history.Reconstruct(history.ForPosition(positionID), lists[0])
}

func (f *fixture) personHistory(t *testing.T, personID uuid.UUID) history.History {
	t.Helper()

	lists, err := f.ledger.IntervalsByPeople(context.Background(), []uuid.UUID{personID})
	require.NoError(t, err)
	return history.Reconstruct(history.ForPerson(personID), lists[0])
}

func requireHolds(t *testing.T, iv *models.Interval, positionID, personID uuid.UUID) {
	t.Helper()

	require.NotNil(t, iv)
	require.Equal(t, models.KindOccupied, iv.Kind())
	require.Equal(t, positionID, iv.PositionID())
	require.Equal(t, personID, iv.PersonID())
}

func TestAssign_ReplacesOccupant(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1")
	alice, bob := f.person(t, "A"), f.person(t, "B")

	rows := f.assign(t, alice, p1)
	require.Equal(t, int64(1), rows)

	requireHolds(t, f.currentPosition(t, p1), p1, alice)
	requireHolds(t, f.currentPerson(t, alice), p1, alice)

	f.assign(t, bob, p1)

	requireHolds(t, f.currentPosition(t, p1), p1, bob)
	current := f.currentPerson(t, alice)
	require.NotNil(t, current)
	require.Equal(t, models.KindUnassignedPerson, current.Kind())

	h := f.positionHistory(t, p1)
	require.Empty(t, h.Warnings)
	require.Len(t, h.Episodes, 2)
	require.Equal(t, alice, h.Episodes[0].PersonID())
	require.False(t, h.Episodes[0].IsOpen())
	require.Equal(t, bob, h.Episodes[1].PersonID())
	require.True(t, h.Episodes[1].Current)

	// the previous occupant's episode ends no later than the new one starts
	require.False(t, h.Episodes[0].EndedAt.After(h.Episodes[1].StartedAt))

	// the raw rows keep the replaced occupant's end before the new start
	lists, err := f.ledger.IntervalsByPositions(context.Background(), []uuid.UUID{p1})
	require.NoError(t, err)
	last := lists[0][len(lists[0])-1]
	require.True(t, h.Episodes[0].EndedAt.Before(last.StartedAt))
}

func TestAssign_MovesPersonBetweenPositions(t *testing.T) {
	f := newFixture(t)
	p1, p2 := f.position(t, "P1"), f.position(t, "P2")
	alice := f.person(t, "A")

	f.assign(t, alice, p1)
	f.assign(t, alice, p2)

	vacant := f.currentPosition(t, p1)
	require.NotNil(t, vacant)
	require.Equal(t, models.KindVacantPosition, vacant.Kind())
	requireHolds(t, f.currentPosition(t, p2), p2, alice)

	h := f.personHistory(t, alice)
	require.Empty(t, h.Warnings)
	require.Len(t, h.Episodes, 2)
	require.Equal(t, p1, h.Episodes[0].PositionID())
	require.Equal(t, p2, h.Episodes[1].PositionID())
	require.True(t, h.Episodes[1].Current)
	require.True(t, h.Episodes[0].StartedAt.Before(h.Episodes[1].StartedAt))
	require.True(t, h.Episodes[0].StartedAt.Before(*h.Episodes[0].EndedAt))
	require.Equal(t, *h.Episodes[0].EndedAt, h.Episodes[1].StartedAt)
}

func TestAssign_SamePositionIsNoop(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1")
	alice := f.person(t, "A")

	f.assign(t, alice, p1)
	require.Equal(t, int64(0), f.assign(t, alice, p1))

	h := f.positionHistory(t, p1)
	require.Len(t, h.Episodes, 1)
}

func TestAssign_SwapsAcrossOccupiedPositions(t *testing.T) {
	f := newFixture(t)
	p1, p2 := f.position(t, "P1"), f.position(t, "P2")
	alice, bob := f.person(t, "A"), f.person(t, "B")

	f.assign(t, alice, p1)
	f.assign(t, bob, p2)
	f.assign(t, alice, p2)

	requireHolds(t, f.currentPosition(t, p2), p2, alice)
	require.Equal(t, models.KindVacantPosition, f.currentPosition(t, p1).Kind())
	require.Equal(t, models.KindUnassignedPerson, f.currentPerson(t, bob).Kind())

	for _, h := range []history.History{
		f.positionHistory(t, p1),
		f.positionHistory(t, p2),
		f.personHistory(t, alice),
		f.personHistory(t, bob),
	} {
		require.Empty(t, h.Warnings, h.Subject.String())
		require.NotNil(t, h.Current(), h.Subject.String())
	}
}

func TestAssign_NotFound(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1")
	alice := f.person(t, "A")

	err := f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		_, err := f.engine.AssignPersonToPosition(ctx, tx, alice, uuid.New())
		return err
	})
	require.ErrorIs(t, err, store.ErrPositionNotFound)

	err = f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		_, err := f.engine.AssignPersonToPosition(ctx, tx, uuid.New(), p1)
		return err
	})
	require.ErrorIs(t, err, store.ErrPersonNotFound)
	require.True(t, store.IsNotFound(err))

	require.Nil(t, f.currentPosition(t, p1))
	require.Nil(t, f.currentPerson(t, alice))
}

func TestAssign_InvalidArguments(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		_, err := f.engine.AssignPersonToPosition(ctx, tx, uuid.Nil, uuid.New())
		return err
	})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRemove_LeavesContiguousVacancy(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1")
	alice := f.person(t, "A")

	f.assign(t, alice, p1)
	require.Equal(t, int64(3), f.removePerson(t, p1))

	h := f.positionHistory(t, p1)
	require.Empty(t, h.Warnings)
	require.Len(t, h.Episodes, 2)
	require.Equal(t, models.KindVacantPosition, h.Episodes[1].Kind())
	require.True(t, h.Episodes[1].Current)
	require.Equal(t, *h.Episodes[0].EndedAt, h.Episodes[1].StartedAt)

	current := f.currentPerson(t, alice)
	require.Equal(t, models.KindUnassignedPerson, current.Kind())
	require.Equal(t, h.Episodes[1].StartedAt, current.StartedAt)
}

func TestRemove_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1")
	alice := f.person(t, "A")

	f.assign(t, alice, p1)
	f.removePerson(t, p1)
	require.Equal(t, int64(0), f.removePerson(t, p1))
	require.Equal(t, int64(0), f.removePerson(t, p1))

	lists, err := f.ledger.IntervalsByPositions(context.Background(), []uuid.UUID{p1})
	require.NoError(t, err)

	vacancies := 0
	for _, iv := range lists[0] {
		if iv.Kind() == models.KindVacantPosition && iv.IsOpen() {
			vacancies++
		}
	}
	require.Equal(t, 1, vacancies)
}

func TestRemove_NeverAssignedPositionGetsVacancy(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1")

	require.Equal(t, int64(1), f.removePerson(t, p1))
	require.Equal(t, int64(0), f.removePerson(t, p1))
	require.Equal(t, models.KindVacantPosition, f.currentPosition(t, p1).Kind())
}

func TestRemovePositionFromPerson(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1")
	alice := f.person(t, "A")

	f.assign(t, alice, p1)

	var rows int64
	err := f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		var err error
		rows, err = f.engine.RemovePositionFromPerson(ctx, tx, alice)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), rows)

	require.Equal(t, models.KindVacantPosition, f.currentPosition(t, p1).Kind())
	require.Equal(t, models.KindUnassignedPerson, f.currentPerson(t, alice).Kind())

	h := f.personHistory(t, alice)
	require.Empty(t, h.Warnings)
	require.Len(t, h.Episodes, 2)
}

func TestMerge_VacatesLoserPosition(t *testing.T) {
	f := newFixture(t)
	p1, p2 := f.position(t, "P1"), f.position(t, "P2")
	winner, loser := f.person(t, "W"), f.person(t, "L")

	f.assign(t, loser, p1)
	f.assign(t, winner, p2)
	loserEpisodes := len(f.personHistory(t, loser).Episodes)

	rows := f.merge(t, winner, loser, MergeOptions{})
	require.Positive(t, rows)

	requireHolds(t, f.currentPerson(t, winner), p2, winner)
	require.Equal(t, models.KindVacantPosition, f.currentPosition(t, p1).Kind())

	lists, err := f.ledger.IntervalsByPeople(context.Background(), []uuid.UUID{loser})
	require.NoError(t, err)
	require.Empty(t, lists[0])

	h := f.personHistory(t, winner)
	require.Len(t, h.Episodes, loserEpisodes+1)
	require.Equal(t, p1, h.Episodes[0].PositionID())
	require.Equal(t, winner, h.Episodes[0].PersonID())

	// the loser record can now be removed
	err = f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		return tx.DeletePerson(ctx, loser)
	})
	require.NoError(t, err)
}

func TestMerge_CopyPosition(t *testing.T) {
	f := newFixture(t)
	p1, p2 := f.position(t, "P1"), f.position(t, "P2")
	winner, loser := f.person(t, "W"), f.person(t, "L")

	f.assign(t, loser, p1)
	f.assign(t, winner, p2)

	f.merge(t, winner, loser, MergeOptions{CopyPosition: true})

	requireHolds(t, f.currentPerson(t, winner), p1, winner)
	requireHolds(t, f.currentPosition(t, p1), p1, winner)
	require.Equal(t, models.KindVacantPosition, f.currentPosition(t, p2).Kind())

	lists, err := f.ledger.IntervalsByPeople(context.Background(), []uuid.UUID{loser})
	require.NoError(t, err)
	require.Empty(t, lists[0])

	// the position never saw a change of occupant record
	h := f.positionHistory(t, p1)
	require.Empty(t, h.Warnings)
	require.Len(t, h.Episodes, 1)
	require.Equal(t, winner, h.Episodes[0].PersonID())
}

func TestMerge_CopyPositionWithoutLoserPosition(t *testing.T) {
	f := newFixture(t)
	p2 := f.position(t, "P2")
	winner, loser := f.person(t, "W"), f.person(t, "L")

	f.assign(t, winner, p2)

	f.merge(t, winner, loser, MergeOptions{CopyPosition: true})

	requireHolds(t, f.currentPerson(t, winner), p2, winner)
}

func TestMerge_IntoWinnerWithoutIntervals(t *testing.T) {
	tests := []struct {
		name  string
		opts  MergeOptions
		setup func(t *testing.T, f *fixture, loser, position uuid.UUID)
	}{
		{
			name: "loser occupied",
			opts: MergeOptions{},
			setup: func(t *testing.T, f *fixture, loser, position uuid.UUID) {
				f.assign(t, loser, position)
			},
		},
		{
			name: "copy position from unassigned loser",
			opts: MergeOptions{CopyPosition: true},
			setup: func(t *testing.T, f *fixture, loser, position uuid.UUID) {
				f.assign(t, loser, position)
				f.removePerson(t, position)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.position(t, "P")
			winner, loser := f.person(t, "W"), f.person(t, "L")

			tt.setup(t, f, loser, p)
			f.merge(t, winner, loser, tt.opts)

			current := f.currentPerson(t, winner)
			require.NotNil(t, current)
			require.Equal(t, models.KindUnassignedPerson, current.Kind())
			require.Equal(t, models.KindVacantPosition, f.currentPosition(t, p).Kind())

			h := f.personHistory(t, winner)
			require.NotNil(t, h.Current())
			require.Equal(t, models.KindUnassignedPerson, h.Current().Kind())
			require.Equal(t, models.KindOccupied, h.Episodes[0].Kind())
			require.Equal(t, p, h.Episodes[0].PositionID())
			require.Empty(t, h.Warnings)

			// the inherited past ends where the unassigned episode starts
			last := h.Episodes[len(h.Episodes)-2]
			require.NotNil(t, last.EndedAt)
			require.Equal(t, *last.EndedAt, h.Current().StartedAt)
		})
	}
}

func TestMerge_NothingToInherit(t *testing.T) {
	f := newFixture(t)
	winner, loser := f.person(t, "W"), f.person(t, "L")

	rows := f.merge(t, winner, loser, MergeOptions{})
	require.Zero(t, rows)
	require.Nil(t, f.currentPerson(t, winner))
}

// Both records held the same position at different times. Every episode is
// kept, attributed to the winner, and the winner's own timeline reports the
// overlap between the two pasts.
func TestMerge_RetainsEpisodesOfSamePosition(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1")
	winner, loser := f.person(t, "W"), f.person(t, "L")

	f.assign(t, winner, p1)
	f.removePerson(t, p1)
	f.assign(t, loser, p1)
	f.removePerson(t, p1)

	before := f.positionHistory(t, p1)

	f.merge(t, winner, loser, MergeOptions{})

	after := f.positionHistory(t, p1)
	require.Len(t, after.Episodes, len(before.Episodes))
	require.Empty(t, after.Warnings)

	var occupants []uuid.UUID
	for i, ep := range after.Episodes {
		require.Equal(t, before.Episodes[i].StartedAt, ep.StartedAt)
		require.Equal(t, before.Episodes[i].EndedAt, ep.EndedAt)
		if ep.Kind() == models.KindOccupied {
			occupants = append(occupants, ep.PersonID())
		}
	}
	require.Equal(t, []uuid.UUID{winner, winner}, occupants)

	h := f.personHistory(t, winner)
	require.Len(t, h.Episodes, 4)
	for i := 1; i < len(h.Episodes); i++ {
		require.False(t, h.Episodes[i].StartedAt.Before(h.Episodes[i-1].StartedAt))
	}
	require.NotEmpty(t, h.Warnings)
	require.Equal(t, history.WarningOverlap, h.Warnings[0].Kind)

	current := f.currentPerson(t, winner)
	require.Equal(t, models.KindUnassignedPerson, current.Kind())
}

func TestMerge_InvalidArguments(t *testing.T) {
	f := newFixture(t)
	alice := f.person(t, "A")

	err := f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		_, err := f.engine.MergePersonRecords(ctx, tx, alice, alice, MergeOptions{})
		return err
	})
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		_, err := f.engine.MergePersonRecords(ctx, tx, alice, uuid.New(), MergeOptions{})
		return err
	})
	require.ErrorIs(t, err, store.ErrPersonNotFound)
}

func TestAssign_ConcurrentToOnePosition(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1")

	people := make([]uuid.UUID, 8)
	for i := range people {
		people[i] = f.person(t, fmt.Sprintf("person-%d", i))
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, personID := range people {
		g.Go(func() error {
			return f.ledger.WithTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
				_, err := f.engine.AssignPersonToPosition(ctx, tx, personID, p1)
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	lists, err := f.ledger.IntervalsByPositions(context.Background(), []uuid.UUID{p1})
	require.NoError(t, err)

	open := 0
	for _, iv := range lists[0] {
		if iv.IsOpen() {
			open++
		}
	}
	require.Equal(t, 1, open)

	holders := 0
	for _, personID := range people {
		current := f.currentPerson(t, personID)
		require.NotNil(t, current)
		if current.Kind() == models.KindOccupied {
			holders++
		}
	}
	require.Equal(t, 1, holders)

	require.Empty(t, f.positionHistory(t, p1).Warnings)
}

func TestStamper_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newStamper(ClockFunc(func() time.Time { return fixed }))

	s.observe(fixed.Add(time.Hour))

	first := s.next()
	second := s.next()
	require.Equal(t, fixed.Add(time.Hour+Tick), first)
	require.Equal(t, first.Add(Tick), second)
}

func TestStamper_TruncatesToTick(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 1500, time.UTC)
	s := newStamper(ClockFunc(func() time.Time { return now }))

	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 1000, time.UTC), s.next())
}

func TestInvariantViolation_OnCorruptLedger(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1")
	alice := f.person(t, "A")

	// a ledger that reports two open intervals for the position
	err := f.ledger.WithTx(context.Background(), func(ctx context.Context, tx store.LedgerTx) error {
		_, err := f.engine.AssignPersonToPosition(ctx, corruptTx{LedgerTx: tx}, alice, p1)
		return err
	})
	require.True(t, errors.Is(err, ErrInvariantViolation))
}

type corruptTx struct {
	store.LedgerTx
}

func (c corruptTx) OpenForPosition(ctx context.Context, positionID uuid.UUID) ([]models.Interval, error) {
	a := models.VacantPosition(positionID)
	b := models.VacantPosition(positionID)
	return []models.Interval{a, b}, nil
}
