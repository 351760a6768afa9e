package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IntervalKind identifies which variant of occupancy an interval records.
type IntervalKind string

const (
	// KindOccupied links a position to the person holding it.
	KindOccupied IntervalKind = "occupied"
	// KindVacantPosition marks a position as having no occupant.
	KindVacantPosition IntervalKind = "vacant_position"
	// KindUnassignedPerson marks a person as holding no position.
	KindUnassignedPerson IntervalKind = "unassigned_person"
)

// ErrDetachedInterval is returned when an interval would reference neither a
// position nor a person.
var ErrDetachedInterval = errors.New("interval references neither a position nor a person")

// Interval is one row of the occupancy ledger. It is one of three variants,
// Occupied, VacantPosition or UnassignedPerson, and can only be built through the
// constructors below, so an interval referencing neither side cannot exist.
type Interval struct {
	ID int64 // surrogate key assigned by the store

	kind       IntervalKind
	positionID uuid.UUID
	personID   uuid.UUID

	StartedAt time.Time
	EndedAt   *time.Time // nil while the interval is open

	OpenedBy uuid.UUID // operation that inserted the interval
	ClosedBy uuid.UUID // operation that closed it, uuid.Nil while open
}

// Occupied returns an open interval linking positionID to personID.
func Occupied(positionID, personID uuid.UUID) Interval {
	return Interval{kind: KindOccupied, positionID: positionID, personID: personID}
}

// VacantPosition returns an open placeholder marking positionID as vacant.
func VacantPosition(positionID uuid.UUID) Interval {
	return Interval{kind: KindVacantPosition, positionID: positionID}
}

// UnassignedPerson returns an open placeholder marking personID as unassigned.
func UnassignedPerson(personID uuid.UUID) Interval {
	return Interval{kind: KindUnassignedPerson, personID: personID}
}

// IntervalFromColumns rebuilds an interval variant from the nullable id columns
// used by the persisted layout.
func IntervalFromColumns(positionID, personID uuid.NullUUID) (Interval, error) {
	switch {
	case positionID.Valid && personID.Valid:
		return Occupied(positionID.UUID, personID.UUID), nil
	case positionID.Valid:
		return VacantPosition(positionID.UUID), nil
	case personID.Valid:
		return UnassignedPerson(personID.UUID), nil
	default:
		return Interval{}, ErrDetachedInterval
	}
}

// Kind returns the variant of the interval.
func (i Interval) Kind() IntervalKind { return i.kind }

// PositionID returns the referenced position, uuid.Nil for UnassignedPerson.
func (i Interval) PositionID() uuid.UUID { return i.positionID }

// PersonID returns the referenced person, uuid.Nil for VacantPosition.
func (i Interval) PersonID() uuid.UUID { return i.personID }

// PositionColumn returns the position id in its nullable column form.
func (i Interval) PositionColumn() uuid.NullUUID {
	return uuid.NullUUID{UUID: i.positionID, Valid: i.positionID != uuid.Nil}
}

// PersonColumn returns the person id in its nullable column form.
func (i Interval) PersonColumn() uuid.NullUUID {
	return uuid.NullUUID{UUID: i.personID, Valid: i.personID != uuid.Nil}
}

// IsOpen reports whether the interval describes current state.
func (i Interval) IsOpen() bool { return i.EndedAt == nil }

// IsPlaceholder reports whether the interval is a vacancy or unassigned marker.
func (i Interval) IsPlaceholder() bool { return i.kind != KindOccupied }

// Transient reports whether the interval is a placeholder that was opened and
// closed by the same operation. These only bridge the boundaries written while a
// single assignment is applied.
func (i Interval) Transient() bool {
	return i.IsPlaceholder() && i.EndedAt != nil && i.ClosedBy != uuid.Nil && i.ClosedBy == i.OpenedBy
}

// WithPerson returns a copy of the interval referencing personID in place of its
// current person. Placeholders without a person are returned unchanged.
func (i Interval) WithPerson(personID uuid.UUID) Interval {
	if i.personID == uuid.Nil {
		return i
	}
	i.personID = personID
	return i
}

// Validate checks the variant tag against the referenced ids.
func (i Interval) Validate() error {
	switch i.kind {
	case KindOccupied:
		if i.positionID == uuid.Nil || i.personID == uuid.Nil {
			return fmt.Errorf("occupied interval requires position and person")
		}
	case KindVacantPosition:
		if i.positionID == uuid.Nil || i.personID != uuid.Nil {
			return fmt.Errorf("vacant position interval requires only a position")
		}
	case KindUnassignedPerson:
		if i.personID == uuid.Nil || i.positionID != uuid.Nil {
			return fmt.Errorf("unassigned person interval requires only a person")
		}
	default:
		return ErrDetachedInterval
	}
	if i.EndedAt != nil && i.EndedAt.Before(i.StartedAt) {
		return fmt.Errorf("interval ends before it starts")
	}
	return nil
}

func (i Interval) String() string {
	end := "open"
	if i.EndedAt != nil {
		end = i.EndedAt.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s{id=%d position=%s person=%s start=%s end=%s}",
		i.kind, i.ID, i.positionID, i.personID, i.StartedAt.Format(time.RFC3339Nano), end)
}
