package models

import (
	"time"

	"github.com/google/uuid"
)

// PositionType represents the kind of billet a position is.
const (
	PositionTypeAdvisor       = "advisor"
	PositionTypePrincipal     = "principal"
	PositionTypeAdministrator = "administrator"
	PositionTypeSuperUser     = "super_user"
)

// PositionStatus values. The lifecycle itself is owned by the roster admin tooling.
const (
	PositionStatusActive   = "active"
	PositionStatusInactive = "inactive"
)

// Position represents a single billet within an organization. At most one person
// occupies a position at any instant.
type Position struct {
	PositionID     uuid.UUID // UUIDv7
	OrganizationID uuid.UUID // owning organization, managed outside the roster
	Name           string
	Type           string // "advisor", "principal", "administrator", "super_user"
	Status         string // "active", "inactive"

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidPositionType reports whether t is a known position type.
func ValidPositionType(t string) bool {
	switch t {
	case PositionTypeAdvisor, PositionTypePrincipal, PositionTypeAdministrator, PositionTypeSuperUser:
		return true
	}
	return false
}
