package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/logger"
)

type PositionCmd struct {
	Create PositionCreateCmd `cmd:"" help:"Create a position"`
}

type PositionCreateCmd struct {
	Name         string `arg:"" help:"Position name"`
	Type         string `help:"Position type" default:"advisor" enum:"advisor,principal,administrator,super_user"`
	Organization string `help:"Owning organization id" required:""`
}

func (p *PositionCreateCmd) Run(ctx context.Context, globals *Globals) error {
	orgID, err := parseID("organization", p.Organization)
	if err != nil {
		return err
	}

	s, err := globals.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	done := logger.Timed(s.ctx, "position_create")
	position, err := retry(s.ctx, "position_create", func(ctx context.Context) (uuid.UUID, error) {
		position, err := s.svc.CreatePosition(ctx, orgID, p.Name, p.Type)
		if err != nil {
			return uuid.Nil, err
		}
		return position.PositionID, nil
	})
	done(err)
	if err != nil {
		return fmt.Errorf("failed to create position: %w", err)
	}

	fmt.Fprintln(s.out, position)
	return nil
}

type PersonCmd struct {
	Create PersonCreateCmd `cmd:"" help:"Create a person"`
}

type PersonCreateCmd struct {
	Name string `arg:"" help:"Person name"`
}

func (p *PersonCreateCmd) Run(ctx context.Context, globals *Globals) error {
	s, err := globals.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	done := logger.Timed(s.ctx, "person_create")
	person, err := retry(s.ctx, "person_create", func(ctx context.Context) (uuid.UUID, error) {
		person, err := s.svc.CreatePerson(ctx, p.Name)
		if err != nil {
			return uuid.Nil, err
		}
		return person.PersonID, nil
	})
	done(err)
	if err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}

	fmt.Fprintln(s.out, person)
	return nil
}
