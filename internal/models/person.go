package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PersonStatusActive   = "active"
	PersonStatusInactive = "inactive"
)

// Person represents someone on the roster who may occupy a position.
type Person struct {
	PersonID uuid.UUID // UUIDv7
	Name     string
	Status   string // "active", "inactive"

	CreatedAt time.Time
	UpdatedAt time.Time
}
