package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/roster/internal/logger"
	"github.com/wolfeidau/roster/internal/occupancy"
)

type AssignCmd struct {
	Person   string `arg:"" help:"Person id"`
	Position string `arg:"" help:"Position id"`
}

func (a *AssignCmd) Run(ctx context.Context, globals *Globals) error {
	personID, err := parseID("person", a.Person)
	if err != nil {
		return err
	}
	positionID, err := parseID("position", a.Position)
	if err != nil {
		return err
	}

	return globals.write(ctx, "assign", func(ctx context.Context, s *session) (int64, error) {
		return s.svc.Assign(ctx, personID, positionID)
	})
}

type VacateCmd struct {
	Position VacatePositionCmd `cmd:"" help:"Remove the occupant of a position"`
	Person   VacatePersonCmd   `cmd:"" help:"Take a person off their position"`
}

type VacatePositionCmd struct {
	ID string `arg:"" help:"Position id"`
}

func (v *VacatePositionCmd) Run(ctx context.Context, globals *Globals) error {
	positionID, err := parseID("position", v.ID)
	if err != nil {
		return err
	}

	return globals.write(ctx, "vacate_position", func(ctx context.Context, s *session) (int64, error) {
		return s.svc.VacatePosition(ctx, positionID)
	})
}

type VacatePersonCmd struct {
	ID string `arg:"" help:"Person id"`
}

func (v *VacatePersonCmd) Run(ctx context.Context, globals *Globals) error {
	personID, err := parseID("person", v.ID)
	if err != nil {
		return err
	}

	return globals.write(ctx, "vacate_person", func(ctx context.Context, s *session) (int64, error) {
		return s.svc.VacatePerson(ctx, personID)
	})
}

type MergeCmd struct {
	Winner       string `arg:"" help:"Person id that survives the merge"`
	Loser        string `arg:"" help:"Duplicate person id, deleted after the merge"`
	CopyPosition bool   `help:"Move the loser's current position to the winner"`
}

func (m *MergeCmd) Run(ctx context.Context, globals *Globals) error {
	winnerID, err := parseID("winner", m.Winner)
	if err != nil {
		return err
	}
	loserID, err := parseID("loser", m.Loser)
	if err != nil {
		return err
	}

	opts := occupancy.MergeOptions{CopyPosition: m.CopyPosition}
	return globals.write(ctx, "merge", func(ctx context.Context, s *session) (int64, error) {
		return s.svc.MergePeople(ctx, winnerID, loserID, opts)
	})
}

// write connects, runs op with retries and prints the number of rows changed.
func (g *Globals) write(ctx context.Context, name string, op func(ctx context.Context, s *session) (int64, error)) error {
	s, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	done := logger.Timed(s.ctx, name)
	rows, err := retry(s.ctx, name, func(ctx context.Context) (int64, error) {
		return op(ctx, s)
	})
	done(err)
	if err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}

	fmt.Fprintf(s.out, "%d rows changed\n", rows)
	return nil
}
