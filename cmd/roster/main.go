package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/roster/cmd/roster/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Migrate  commands.MigrateCmd  `cmd:"" help:"Apply database migrations"`
		Position commands.PositionCmd `cmd:"" help:"Manage positions"`
		Person   commands.PersonCmd   `cmd:"" help:"Manage people"`
		Assign   commands.AssignCmd   `cmd:"" help:"Assign a person to a position"`
		Vacate   commands.VacateCmd   `cmd:"" help:"Vacate a position or take a person off their position"`
		Merge    commands.MergeCmd    `cmd:"" help:"Merge a duplicate person record into another"`
		Current  commands.CurrentCmd  `cmd:"" help:"Show who holds a position or what a person holds"`
		History  commands.HistoryCmd  `cmd:"" help:"Show occupancy history"`
		Vacant   commands.VacantCmd   `cmd:"" help:"List vacant positions"`
		Seed     commands.SeedCmd     `cmd:"" help:"Load positions, people and assignments from a YAML file"`

		Debug            bool                   `help:"Enable debug mode."`
		Tracing          bool                   `help:"enable tracing" default:"false" env:"ROSTER_TRACING"`
		TraceSampleRatio float64                `help:"fraction of root traces to sample" default:"1" env:"ROSTER_TRACE_SAMPLE_RATIO"`
		OTLP             commands.OTLPFlags     `embed:"" prefix:"otlp-"`
		Postgres         commands.PostgresFlags `embed:"" prefix:"postgres-"`
		Version          kong.VersionFlag
	}
)

func main() {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:            cli.Debug,
		Version:          version,
		Tracing:          cli.Tracing,
		TraceSampleRatio: cli.TraceSampleRatio,
		OTLP:             cli.OTLP,
		Postgres:         cli.Postgres,
	})
	cmd.FatalIfErrorf(err)
}
