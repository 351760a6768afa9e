package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/roster/internal/logger"
	"github.com/wolfeidau/roster/internal/occupancy"
	"github.com/wolfeidau/roster/internal/roster"
	"github.com/wolfeidau/roster/internal/store"
	postgresstore "github.com/wolfeidau/roster/internal/store/postgres"
	"github.com/wolfeidau/roster/internal/telemetry"
)

type Globals struct {
	Debug            bool
	Version          string
	Tracing          bool
	TraceSampleRatio float64
	OTLP             OTLPFlags
	Postgres         PostgresFlags
}

type OTLPFlags struct {
	Endpoint       string            `help:"OTLP gRPC collector host:port, defaults to OTEL_EXPORTER_OTLP_ENDPOINT" env:"ROSTER_OTLP_ENDPOINT"`
	Insecure       bool              `help:"disable TLS to the collector" default:"false" env:"ROSTER_OTLP_INSECURE"`
	MetricInterval time.Duration     `help:"how often metrics are pushed" default:"10s"`
	Attributes     map[string]string `help:"extra resource attributes (key=value)" env:"ROSTER_OTLP_ATTRIBUTES"`
}

func (g *Globals) telemetryConfig() telemetry.Config {
	return telemetry.Config{
		ServiceName:    "roster",
		Version:        g.Version,
		SampleRatio:    g.TraceSampleRatio,
		Endpoint:       g.OTLP.Endpoint,
		Insecure:       g.OTLP.Insecure,
		MetricInterval: g.OTLP.MetricInterval,
		Attributes:     g.OTLP.Attributes,
	}
}

type PostgresFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"1"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations before the command" default:"false" env:"ROSTER_POSTGRES_AUTO_MIGRATE"`
}

func (p *PostgresFlags) check() error {
	if p.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (p *PostgresFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      p.ConnString,
		MaxConns:        p.MaxConns,
		MinConns:        p.MinConns,
		MaxConnLifetime: p.MaxConnLifetime,
		MaxConnIdleTime: p.MaxConnIdleTime,
	}
}

// session carries the logger, pool and service a command runs against.
type session struct {
	ctx     context.Context
	log     zerolog.Logger
	pool    *pgxpool.Pool
	svc     *roster.Service
	out     io.Writer
	closers []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// start sets up logging and telemetry. The caller must Close the session.
func (g *Globals) start(ctx context.Context) *session {
	log := logger.Setup(g.Debug)
	s := &session{ctx: log.WithContext(ctx), log: log, out: os.Stdout}

	log.Debug().Str("version", g.Version).Msg("Starting roster")

	if g.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(s.ctx, g.telemetryConfig())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		s.closers = append(s.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		})
	}

	return s
}

// connect opens the shared pool, runs migrations when asked to and builds the
// roster service over the PostgreSQL stores.
func (g *Globals) connect(ctx context.Context) (*session, error) {
	s := g.start(ctx)

	if err := g.Postgres.check(); err != nil {
		s.Close()
		return nil, err
	}

	pool, err := postgresstore.NewPool(s.ctx, g.Postgres.poolConfig())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s.pool = pool
	s.closers = append(s.closers, func() {
		postgresstore.LogPoolStats(pool)
		pool.Close()
	})

	if g.Postgres.AutoMigrate {
		if err := postgresstore.RunMigrations(s.ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		s.log.Info().Msg("Database migrations completed")
	}

	s.svc = roster.NewService(
		postgresstore.NewPositionStore(pool),
		postgresstore.NewPersonStore(pool),
		postgresstore.NewLedgerStore(pool),
		occupancy.NewEngine(),
	)

	return s, nil
}

const maxTries = 5

// newBackOff is replaced in tests.
var newBackOff = func() backoff.BackOff {
	return backoff.NewExponentialBackOff()
}

// retry runs op until it succeeds, fails with a non-transient error or runs out
// of attempts. Only store.ErrTransient is retried.
func retry[T any](ctx context.Context, name string, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, store.ErrTransient) {
			return v, backoff.Permanent(err)
		}
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("operation", name).
			Int("attempt", attempt).
			Msg("transient failure, retrying")
		return v, err
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(maxTries))
}

func parseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, raw, err)
	}
	return id, nil
}

func parseIDs(kind string, raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(kind, r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseAt parses an optional RFC3339 instant. An empty string yields the zero time.
func parseAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q, expected RFC3339: %w", raw, err)
	}
	return at, nil
}
