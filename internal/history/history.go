// Package history turns the raw occupancy intervals of one position or one
// person into display ready episodes.
//
// Reconstruct does no I/O and is idempotent: feeding History.Intervals back in
// yields the same History.
package history

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/models"
)

// SubjectKind says which side of the ledger a history was built for.
type SubjectKind string

const (
	SubjectPosition SubjectKind = "position"
	SubjectPerson   SubjectKind = "person"
)

// Subject identifies the position or person a history belongs to.
type Subject struct {
	Kind SubjectKind
	ID   uuid.UUID
}

// ForPosition returns the subject for a position timeline.
func ForPosition(id uuid.UUID) Subject { return Subject{Kind: SubjectPosition, ID: id} }

// ForPerson returns the subject for a person timeline.
func ForPerson(id uuid.UUID) Subject { return Subject{Kind: SubjectPerson, ID: id} }

func (s Subject) String() string { return string(s.Kind) + ":" + s.ID.String() }

// WarningKind classifies a discontinuity in a timeline.
type WarningKind string

const (
	// WarningGap means an episode starts after the previous one ended.
	WarningGap WarningKind = "gap"
	// WarningOverlap means an episode starts before the previous one ended, or
	// while an earlier episode is still open.
	WarningOverlap WarningKind = "overlap"
)

// Warning reports a data integrity problem found while rebuilding a timeline.
// The episode it refers to is still part of the history.
type Warning struct {
	Kind       WarningKind
	IntervalID int64     // episode that starts out of line
	Expected   time.Time // end of the timeline so far, zero while an episode is open
	At         time.Time // start of the episode
}

func (w Warning) String() string {
	if w.Expected.IsZero() {
		return fmt.Sprintf("%s: interval %d starts at %s while an earlier interval is open",
			w.Kind, w.IntervalID, w.At.Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("%s: interval %d starts at %s, expected %s",
		w.Kind, w.IntervalID, w.At.Format(time.RFC3339Nano), w.Expected.Format(time.RFC3339Nano))
}

// Episode is one span of a timeline.
type Episode struct {
	models.Interval

	// Current is set on the final episode when it has no end.
	Current bool
}

// History is the reconstructed timeline of a subject.
type History struct {
	Subject  Subject
	Episodes []Episode
	Warnings []Warning
}

// Intervals returns the intervals behind the episodes, in order.
func (h History) Intervals() []models.Interval {
	out := make([]models.Interval, len(h.Episodes))
	for i, ep := range h.Episodes {
		out[i] = ep.Interval
	}
	return out
}

// Current returns the current episode, or nil if the timeline has ended.
func (h History) Current() *Episode {
	if n := len(h.Episodes); n > 0 && h.Episodes[n-1].Current {
		return &h.Episodes[n-1]
	}
	return nil
}

// Reconstruct builds the history of subject from its intervals. The input does
// not need to be sorted and is not modified.
//
// Placeholders that were opened and closed by the same operation only bridge the
// boundaries of a single reassignment. They are dropped when the next interval
// picks up exactly where they end, and that interval is shown as starting where
// the placeholder started.
func Reconstruct(subject Subject, intervals []models.Interval) History {
	sorted := slices.Clone(intervals)
	slices.SortStableFunc(sorted, func(a, b models.Interval) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	h := History{
		Subject:  subject,
		Episodes: make([]Episode, 0, len(sorted)),
	}

	var carried *time.Time
	for i, iv := range sorted {
		if carried != nil {
			iv.StartedAt = *carried
			carried = nil
		}
		if iv.Transient() && i+1 < len(sorted) && sorted[i+1].StartedAt.Equal(*iv.EndedAt) {
			start := iv.StartedAt
			carried = &start
			continue
		}
		h.Episodes = append(h.Episodes, Episode{Interval: iv})
	}

	var (
		frontier time.Time
		open     bool
	)
	for i, ep := range h.Episodes {
		if i > 0 {
			switch {
			case open:
				h.Warnings = append(h.Warnings, Warning{Kind: WarningOverlap, IntervalID: ep.ID, At: ep.StartedAt})
			case ep.StartedAt.Before(frontier):
				h.Warnings = append(h.Warnings, Warning{Kind: WarningOverlap, IntervalID: ep.ID, Expected: frontier, At: ep.StartedAt})
			case ep.StartedAt.After(frontier):
				h.Warnings = append(h.Warnings, Warning{Kind: WarningGap, IntervalID: ep.ID, Expected: frontier, At: ep.StartedAt})
			}
		}

		if ep.EndedAt == nil {
			open = true
		} else if ep.EndedAt.After(frontier) {
			frontier = *ep.EndedAt
		}
	}

	if n := len(h.Episodes); n > 0 && h.Episodes[n-1].IsOpen() {
		h.Episodes[n-1].Current = true
	}

	return h
}
