package history

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/roster/internal/models"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

func span(iv models.Interval, id int64, start, end int, opened, closed uuid.UUID) models.Interval {
	iv.ID = id
	iv.StartedAt = at(start)
	if end >= 0 {
		e := at(end)
		iv.EndedAt = &e
		iv.ClosedBy = closed
	}
	iv.OpenedBy = opened
	return iv
}

func TestReconstruct(t *testing.T) {
	pos := uuid.New()
	alice, bob := uuid.New(), uuid.New()
	op1, op2, op3 := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name      string
		intervals []models.Interval
		starts    []int
		current   bool
		warnings  []WarningKind
	}{
		{
			name:      "empty",
			intervals: nil,
			starts:    []int{},
		},
		{
			name: "contiguous timeline",
			intervals: []models.Interval{
				span(models.VacantPosition(pos), 1, 0, 10, op1, op2),
				span(models.Occupied(pos, alice), 2, 10, 20, op2, op3),
				span(models.VacantPosition(pos), 3, 20, -1, op3, uuid.Nil),
			},
			starts:  []int{0, 10, 20},
			current: true,
		},
		{
			name: "unsorted input is ordered by start",
			intervals: []models.Interval{
				span(models.Occupied(pos, bob), 3, 20, -1, op3, uuid.Nil),
				span(models.Occupied(pos, alice), 1, 0, 20, op1, op3),
			},
			starts:  []int{0, 20},
			current: true,
		},
		{
			name: "gap",
			intervals: []models.Interval{
				span(models.Occupied(pos, alice), 1, 0, 10, op1, op2),
				span(models.Occupied(pos, bob), 2, 15, 30, op2, op3),
			},
			starts:   []int{0, 15},
			warnings: []WarningKind{WarningGap},
		},
		{
			name: "overlap with closed interval",
			intervals: []models.Interval{
				span(models.Occupied(pos, alice), 1, 0, 20, op1, op2),
				span(models.Occupied(pos, bob), 2, 10, 30, op2, op3),
			},
			starts:   []int{0, 10},
			warnings: []WarningKind{WarningOverlap},
		},
		{
			name: "earlier interval still open",
			intervals: []models.Interval{
				span(models.Occupied(pos, alice), 1, 0, -1, op1, uuid.Nil),
				span(models.Occupied(pos, bob), 2, 10, -1, op2, uuid.Nil),
			},
			starts:   []int{0, 10},
			current:  true,
			warnings: []WarningKind{WarningOverlap},
		},
		{
			name: "transient placeholder is elided",
			intervals: []models.Interval{
				span(models.Occupied(pos, alice), 1, 0, 10, op1, op2),
				span(models.VacantPosition(pos), 2, 10, 11, op2, op2),
				span(models.Occupied(pos, bob), 3, 11, -1, op2, uuid.Nil),
			},
			starts:  []int{0, 10},
			current: true,
		},
		{
			name: "transient placeholder followed by a gap is kept",
			intervals: []models.Interval{
				span(models.VacantPosition(pos), 1, 0, 1, op1, op1),
				span(models.Occupied(pos, bob), 2, 5, -1, op2, uuid.Nil),
			},
			starts:   []int{0, 5},
			current:  true,
			warnings: []WarningKind{WarningGap},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Reconstruct(ForPosition(pos), tt.intervals)

			starts := make([]int, 0, len(h.Episodes))
			for _, ep := range h.Episodes {
				starts = append(starts, int(ep.StartedAt.Sub(base)/time.Minute))
			}
			require.Equal(t, tt.starts, starts)

			require.Equal(t, tt.current, h.Current() != nil)

			var kinds []WarningKind
			for _, w := range h.Warnings {
				kinds = append(kinds, w.Kind)
			}
			require.Equal(t, tt.warnings, kinds)

			// rebuilding from the output gives the same history
			require.Equal(t, h, Reconstruct(h.Subject, h.Intervals()))
		})
	}
}

func TestReconstruct_OnlyLastEpisodeIsCurrent(t *testing.T) {
	pos := uuid.New()
	op := uuid.New()

	h := Reconstruct(ForPosition(pos), []models.Interval{
		span(models.VacantPosition(pos), 1, 0, -1, op, uuid.Nil),
		span(models.Occupied(pos, uuid.New()), 2, 5, 10, op, op),
	})

	require.Len(t, h.Episodes, 2)
	require.False(t, h.Episodes[0].Current)
	require.False(t, h.Episodes[1].Current)
	require.Nil(t, h.Current())
	require.Len(t, h.Warnings, 1)
	require.Equal(t, int64(2), h.Warnings[0].IntervalID)
	require.True(t, h.Warnings[0].Expected.IsZero())
}

func TestReconstruct_DoesNotModifyInput(t *testing.T) {
	pos := uuid.New()
	op := uuid.New()
	input := []models.Interval{
		span(models.Occupied(pos, uuid.New()), 2, 10, -1, op, uuid.Nil),
		span(models.VacantPosition(pos), 1, 0, 10, uuid.New(), op),
	}
	before := append([]models.Interval(nil), input...)

	Reconstruct(ForPosition(pos), input)

	require.Equal(t, before, input)
}

func TestWarning_String(t *testing.T) {
	w := Warning{Kind: WarningGap, IntervalID: 7, Expected: at(0), At: at(5)}
	require.Contains(t, w.String(), "gap: interval 7")
	require.Contains(t, w.String(), "expected")
}
