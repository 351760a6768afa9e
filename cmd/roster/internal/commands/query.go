package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/history"
	"github.com/wolfeidau/roster/internal/models"
)

type CurrentCmd struct {
	Position CurrentPositionCmd `cmd:"" help:"Show the occupant of a position"`
	Person   CurrentPersonCmd   `cmd:"" help:"Show the position a person holds"`
}

type CurrentPositionCmd struct {
	ID string `arg:"" help:"Position id"`
	At string `help:"Instant to look at (RFC3339), defaults to now"`
}

func (c *CurrentPositionCmd) Run(ctx context.Context, globals *Globals) error {
	positionID, err := parseID("position", c.ID)
	if err != nil {
		return err
	}
	at, err := parseAt(c.At)
	if err != nil {
		return err
	}

	return globals.read(ctx, func(ctx context.Context, s *session) error {
		var iv *models.Interval
		if at.IsZero() {
			iv, err = s.svc.CurrentForPosition(ctx, positionID)
		} else {
			iv, err = s.svc.OccupantAt(ctx, positionID, at)
		}
		if err != nil {
			return err
		}
		return printInterval(s.out, iv)
	})
}

type CurrentPersonCmd struct {
	ID string `arg:"" help:"Person id"`
	At string `help:"Instant to look at (RFC3339), defaults to now"`
}

func (c *CurrentPersonCmd) Run(ctx context.Context, globals *Globals) error {
	personID, err := parseID("person", c.ID)
	if err != nil {
		return err
	}
	at, err := parseAt(c.At)
	if err != nil {
		return err
	}

	return globals.read(ctx, func(ctx context.Context, s *session) error {
		var iv *models.Interval
		if at.IsZero() {
			iv, err = s.svc.CurrentForPerson(ctx, personID)
		} else {
			iv, err = s.svc.PositionAt(ctx, personID, at)
		}
		if err != nil {
			return err
		}
		return printInterval(s.out, iv)
	})
}

type HistoryCmd struct {
	Position HistoryPositionCmd `cmd:"" help:"Show the history of one or more positions"`
	Person   HistoryPersonCmd   `cmd:"" help:"Show the history of one or more people"`
}

type HistoryPositionCmd struct {
	IDs []string `arg:"" help:"Position ids"`
}

func (h *HistoryPositionCmd) Run(ctx context.Context, globals *Globals) error {
	ids, err := parseIDs("position", h.IDs)
	if err != nil {
		return err
	}

	return globals.read(ctx, func(ctx context.Context, s *session) error {
		return showHistories(ctx, s, ids, s.svc.PositionHistory, s.svc.PositionHistories)
	})
}

type HistoryPersonCmd struct {
	IDs []string `arg:"" help:"Person ids"`
}

func (h *HistoryPersonCmd) Run(ctx context.Context, globals *Globals) error {
	ids, err := parseIDs("person", h.IDs)
	if err != nil {
		return err
	}

	return globals.read(ctx, func(ctx context.Context, s *session) error {
		return showHistories(ctx, s, ids, s.svc.PersonHistory, s.svc.PersonHistories)
	})
}

// showHistories uses the single lookup for one id so unknown ids are reported,
// and the batch lookup otherwise.
func showHistories(
	ctx context.Context,
	s *session,
	ids []uuid.UUID,
	one func(context.Context, uuid.UUID) (history.History, error),
	many func(context.Context, []uuid.UUID) ([]history.History, error),
) error {
	var histories []history.History
	if len(ids) == 1 {
		h, err := one(ctx, ids[0])
		if err != nil {
			return err
		}
		histories = []history.History{h}
	} else {
		var err error
		histories, err = many(ctx, ids)
		if err != nil {
			return err
		}
	}

	for _, h := range histories {
		if err := printHistory(s.out, h); err != nil {
			return err
		}
	}
	return nil
}

type VacantCmd struct {
	Type string `help:"Only list positions of this type (advisor, principal, administrator, super_user)"`
}

func (v *VacantCmd) Run(ctx context.Context, globals *Globals) error {
	return globals.read(ctx, func(ctx context.Context, s *session) error {
		positions, err := s.svc.VacantPositions(ctx, v.Type)
		if err != nil {
			return err
		}
		return printPositions(s.out, positions)
	})
}

// read connects and runs a query. Reads take no locks and are not retried.
func (g *Globals) read(ctx context.Context, query func(ctx context.Context, s *session) error) error {
	s, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	started := time.Now()
	if err := query(s.ctx, s); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	s.log.Debug().Dur("duration", time.Since(started)).Msg("query finished")
	return nil
}
