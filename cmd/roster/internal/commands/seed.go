package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/wolfeidau/roster/internal/logger"
	"github.com/wolfeidau/roster/internal/occupancy"
	"github.com/wolfeidau/roster/internal/roster"
	"github.com/wolfeidau/roster/internal/seed"
	"github.com/wolfeidau/roster/internal/store/memory"
)

type SeedCmd struct {
	File   string `arg:"" help:"Seed file (YAML)" type:"existingfile"`
	DryRun bool   `help:"Apply the file to an in-memory store instead of PostgreSQL"`
}

func (c *SeedCmd) Run(ctx context.Context, globals *Globals) error {
	f, err := seed.LoadFile(c.File)
	if err != nil {
		return err
	}

	var s *session
	if c.DryRun {
		s = globals.start(ctx)
		s.svc = newMemoryService()
	} else {
		s, err = globals.connect(ctx)
		if err != nil {
			return err
		}
	}
	defer s.Close()

	// Assignments are not retried: a transient failure part way through leaves
	// the earlier ones committed and rerunning the file would duplicate entities.
	done := logger.Timed(s.ctx, "seed")
	result, err := seed.Apply(s.ctx, s.svc, f)
	done(err)
	if err != nil {
		return fmt.Errorf("failed to apply seed file: %w", err)
	}

	return printSeedResult(s.out, result)
}

func newMemoryService() *roster.Service {
	ms := memory.NewStore()
	return roster.NewService(ms.Positions(), ms.People(), ms.Ledger(), occupancy.NewEngine())
}

func printSeedResult(w io.Writer, result *seed.Result) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "KIND\tKEY\tID")
	for _, key := range slices.Sorted(maps.Keys(result.Positions)) {
		fmt.Fprintf(tw, "position\t%s\t%s\n", key, result.Positions[key])
	}
	for _, key := range slices.Sorted(maps.Keys(result.People)) {
		fmt.Fprintf(tw, "person\t%s\t%s\n", key, result.People[key])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d assignments applied\n", result.Assignments)
	return err
}
