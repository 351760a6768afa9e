package commands

import (
	"context"
	"fmt"

	postgresstore "github.com/wolfeidau/roster/internal/store/postgres"
)

type MigrateCmd struct{}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	// connect would migrate as well when AutoMigrate is set.
	pg := *globals
	pg.Postgres.AutoMigrate = false

	s, err := pg.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := postgresstore.RunMigrations(s.ctx, s.pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	s.log.Info().Msg("Database migrations completed")
	return nil
}
