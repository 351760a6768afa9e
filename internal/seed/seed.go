// Package seed loads a roster from a YAML file: positions, people and the
// assignments between them.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/roster"
	"gopkg.in/yaml.v3"
)

var ErrInvalidFile = errors.New("invalid seed file")

type Position struct {
	Key            string    `yaml:"key"`
	Name           string    `yaml:"name"`
	Type           string    `yaml:"type"`
	OrganizationID uuid.UUID `yaml:"organization_id"`
}

type Person struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type Assignment struct {
	Person   string `yaml:"person"`
	Position string `yaml:"position"`
}

// File is the content of a seed file. Assignments refer to positions and people
// by key and are applied in order.
type File struct {
	Version     int          `yaml:"version"`
	Positions   []Position   `yaml:"positions"`
	People      []Person     `yaml:"people"`
	Assignments []Assignment `yaml:"assignments"`
}

// Result maps the keys of a seed file to the ids created for them.
type Result struct {
	Positions   map[string]uuid.UUID
	People      map[string]uuid.UUID
	Assignments int
}

// LoadFile reads and validates a seed file from disk.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(bytes.NewReader(raw))
}

// Load decodes and validates a seed file. Unknown fields are rejected.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrInvalidFile)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}

	return &file, nil
}

// Validate checks versions, keys, types and references.
func (f *File) Validate() error {
	if f.Version != 1 {
		return fmt.Errorf("%w: unsupported version: %d", ErrInvalidFile, f.Version)
	}

	positions := make(map[string]bool, len(f.Positions))
	for i, p := range f.Positions {
		key := strings.TrimSpace(p.Key)
		if key == "" || strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: positions[%d]: key and name are required", ErrInvalidFile, i)
		}
		if positions[key] {
			return fmt.Errorf("%w: duplicate position key %q", ErrInvalidFile, key)
		}
		if !models.ValidPositionType(p.Type) {
			return fmt.Errorf("%w: position %q: unknown type %q", ErrInvalidFile, key, p.Type)
		}
		positions[key] = true
	}

	people := make(map[string]bool, len(f.People))
	for i, p := range f.People {
		key := strings.TrimSpace(p.Key)
		if key == "" || strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: people[%d]: key and name are required", ErrInvalidFile, i)
		}
		if people[key] {
			return fmt.Errorf("%w: duplicate person key %q", ErrInvalidFile, key)
		}
		people[key] = true
	}

	for i, a := range f.Assignments {
		if !people[strings.TrimSpace(a.Person)] {
			return fmt.Errorf("%w: assignments[%d]: unknown person %q", ErrInvalidFile, i, a.Person)
		}
		if !positions[strings.TrimSpace(a.Position)] {
			return fmt.Errorf("%w: assignments[%d]: unknown position %q", ErrInvalidFile, i, a.Position)
		}
	}

	return nil
}

// Apply creates the positions and people of the file, then applies each
// assignment in its own transaction. On error the entities and assignments
// created so far stay in place.
func Apply(ctx context.Context, svc *roster.Service, f *File) (*Result, error) {
	result := &Result{
		Positions: make(map[string]uuid.UUID, len(f.Positions)),
		People:    make(map[string]uuid.UUID, len(f.People)),
	}

	for _, p := range f.Positions {
		position, err := svc.CreatePosition(ctx, p.OrganizationID, p.Name, p.Type)
		if err != nil {
			return result, fmt.Errorf("failed to create position %q: %w", p.Key, err)
		}
		result.Positions[strings.TrimSpace(p.Key)] = position.PositionID
	}

	for _, p := range f.People {
		person, err := svc.CreatePerson(ctx, p.Name)
		if err != nil {
			return result, fmt.Errorf("failed to create person %q: %w", p.Key, err)
		}
		result.People[strings.TrimSpace(p.Key)] = person.PersonID
	}

	for _, a := range f.Assignments {
		personID := result.People[strings.TrimSpace(a.Person)]
		positionID := result.Positions[strings.TrimSpace(a.Position)]

		if _, err := svc.Assign(ctx, personID, positionID); err != nil {
			return result, fmt.Errorf("failed to assign %q to %q: %w", a.Person, a.Position, err)
		}
		result.Assignments++
	}

	zerolog.Ctx(ctx).Info().
		Int("positions", len(result.Positions)).
		Int("people", len(result.People)).
		Int("assignments", result.Assignments).
		Msg("Applied seed file")

	return result, nil
}
