// Package roster is the entry point for callers of the occupancy ledger. It runs
// each engine operation in its own transaction, answers current state and
// history queries, and records telemetry for both.
package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/roster/internal/history"
	"github.com/wolfeidau/roster/internal/models"
	"github.com/wolfeidau/roster/internal/occupancy"
	"github.com/wolfeidau/roster/internal/store"
	"github.com/wolfeidau/roster/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Service combines the position, person and ledger stores with the engine.
type Service struct {
	positions store.PositionStore
	people    store.PersonStore
	ledger    store.Ledger
	engine    *occupancy.Engine
	metrics   *telemetry.Metrics
}

// NewService creates a roster service.
func NewService(positions store.PositionStore, people store.PersonStore, ledger store.Ledger, engine *occupancy.Engine) *Service {
	return &Service{
		positions: positions,
		people:    people,
		ledger:    ledger,
		engine:    engine,
		metrics:   telemetry.GetMetrics(),
	}
}

// Engine returns the engine used by the service, for callers composing their
// own transactions with InTx.
func (s *Service) Engine() *occupancy.Engine { return s.engine }

// InTx runs fn in one ledger transaction. A person merge orchestrator uses it to
// combine MergePersonRecords with its own steps.
func (s *Service) InTx(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	return s.ledger.WithTx(ctx, fn)
}

// CreatePosition registers a new active position.
func (s *Service) CreatePosition(ctx context.Context, organizationID uuid.UUID, name, positionType string) (*models.Position, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: position name is required", occupancy.ErrInvalidArgument)
	}
	if !models.ValidPositionType(positionType) {
		return nil, fmt.Errorf("%w: unknown position type %q", occupancy.ErrInvalidArgument, positionType)
	}

	now := time.Now().UTC()
	position := &models.Position{
		PositionID:     uuid.Must(uuid.NewV7()),
		OrganizationID: organizationID,
		Name:           name,
		Type:           positionType,
		Status:         models.PositionStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.positions.Create(ctx, position); err != nil {
		return nil, err
	}

	return position, nil
}

// CreatePerson registers a new active person.
func (s *Service) CreatePerson(ctx context.Context, name string) (*models.Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: person name is required", occupancy.ErrInvalidArgument)
	}

	now := time.Now().UTC()
	person := &models.Person{
		PersonID:  uuid.Must(uuid.NewV7()),
		Name:      name,
		Status:    models.PersonStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.people.Create(ctx, person); err != nil {
		return nil, err
	}

	return person, nil
}

// Assign makes personID the occupant of positionID.
func (s *Service) Assign(ctx context.Context, personID, positionID uuid.UUID) (int64, error) {
	rows, err := s.write(ctx, "assign", func(ctx context.Context, tx store.LedgerTx) (int64, error) {
		return s.engine.AssignPersonToPosition(ctx, tx, personID, positionID)
	}, attribute.String("position_id", positionID.String()), attribute.String("person_id", personID.String()))
	if err != nil {
		return 0, err
	}

	s.metrics.AssignmentsTotal.Add(ctx, 1)
	return rows, nil
}

// VacatePosition removes the occupant of positionID.
func (s *Service) VacatePosition(ctx context.Context, positionID uuid.UUID) (int64, error) {
	rows, err := s.write(ctx, "vacate_position", func(ctx context.Context, tx store.LedgerTx) (int64, error) {
		return s.engine.RemovePersonFromPosition(ctx, tx, positionID)
	}, attribute.String("position_id", positionID.String()))
	if err != nil {
		return 0, err
	}

	s.metrics.VacatesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("side", "position")))
	return rows, nil
}

// VacatePerson takes personID off their position.
func (s *Service) VacatePerson(ctx context.Context, personID uuid.UUID) (int64, error) {
	rows, err := s.write(ctx, "vacate_person", func(ctx context.Context, tx store.LedgerTx) (int64, error) {
		return s.engine.RemovePositionFromPerson(ctx, tx, personID)
	}, attribute.String("person_id", personID.String()))
	if err != nil {
		return 0, err
	}

	s.metrics.VacatesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("side", "person")))
	return rows, nil
}

// MergePeople folds loserID into winnerID and deletes the loser, in one
// transaction. Afterwards the loser has no history.
func (s *Service) MergePeople(ctx context.Context, winnerID, loserID uuid.UUID, opts occupancy.MergeOptions) (int64, error) {
	rows, err := s.write(ctx, "merge", func(ctx context.Context, tx store.LedgerTx) (int64, error) {
		rows, err := s.engine.MergePersonRecords(ctx, tx, winnerID, loserID, opts)
		if err != nil {
			return 0, err
		}
		if err := tx.DeletePerson(ctx, loserID); err != nil {
			return 0, fmt.Errorf("failed to delete merged person: %w", err)
		}
		return rows, nil
	},
		attribute.String("winner_id", winnerID.String()),
		attribute.String("loser_id", loserID.String()),
		attribute.Bool("copy_position", opts.CopyPosition),
	)
	if err != nil {
		return 0, err
	}

	s.metrics.MergesTotal.Add(ctx, 1)
	return rows, nil
}

// CurrentForPosition returns the open interval of a position, nil if it has
// never been assigned or vacated.
func (s *Service) CurrentForPosition(ctx context.Context, positionID uuid.UUID) (*models.Interval, error) {
	if _, err := s.positions.Get(ctx, positionID); err != nil {
		return nil, err
	}
	return s.ledger.CurrentForPosition(ctx, positionID)
}

// CurrentForPerson returns the open interval of a person, nil if they have
// never held a position.
func (s *Service) CurrentForPerson(ctx context.Context, personID uuid.UUID) (*models.Interval, error) {
	if _, err := s.people.Get(ctx, personID); err != nil {
		return nil, err
	}
	return s.ledger.CurrentForPerson(ctx, personID)
}

// OccupantAt returns the interval covering positionID at the instant at.
func (s *Service) OccupantAt(ctx context.Context, positionID uuid.UUID, at time.Time) (*models.Interval, error) {
	if _, err := s.positions.Get(ctx, positionID); err != nil {
		return nil, err
	}
	return s.ledger.OccupantAt(ctx, positionID, at)
}

// PositionAt returns the interval covering personID at the instant at.
func (s *Service) PositionAt(ctx context.Context, personID uuid.UUID, at time.Time) (*models.Interval, error) {
	if _, err := s.people.Get(ctx, personID); err != nil {
		return nil, err
	}
	return s.ledger.PositionAt(ctx, personID, at)
}

// VacantPositions lists positions nobody holds, optionally of one type.
func (s *Service) VacantPositions(ctx context.Context, positionType string) ([]*models.Position, error) {
	if positionType != "" && !models.ValidPositionType(positionType) {
		return nil, fmt.Errorf("%w: unknown position type %q", occupancy.ErrInvalidArgument, positionType)
	}
	return s.positions.ListVacant(ctx, positionType)
}

// PositionHistory returns the timeline of one position.
func (s *Service) PositionHistory(ctx context.Context, positionID uuid.UUID) (history.History, error) {
	if _, err := s.positions.Get(ctx, positionID); err != nil {
		return history.History{}, err
	}

	histories, err := s.PositionHistories(ctx, []uuid.UUID{positionID})
	if err != nil {
		return history.History{}, err
	}

	return histories[0], nil
}

// PersonHistory returns the timeline of one person. A person merged into
// another no longer exists and yields store.ErrPersonNotFound.
func (s *Service) PersonHistory(ctx context.Context, personID uuid.UUID) (history.History, error) {
	if _, err := s.people.Get(ctx, personID); err != nil {
		return history.History{}, err
	}

	histories, err := s.PersonHistories(ctx, []uuid.UUID{personID})
	if err != nil {
		return history.History{}, err
	}

	return histories[0], nil
}

// PositionHistories returns one history per id, in the order given. Unknown
// ids yield an empty history.
func (s *Service) PositionHistories(ctx context.Context, positionIDs []uuid.UUID) ([]history.History, error) {
	lists, err := s.ledger.IntervalsByPositions(ctx, positionIDs)
	if err != nil {
		return nil, err
	}
	return s.reconstruct(ctx, positionIDs, lists, history.ForPosition), nil
}

// PersonHistories returns one history per id, in the order given. Unknown ids
// yield an empty history.
func (s *Service) PersonHistories(ctx context.Context, personIDs []uuid.UUID) ([]history.History, error) {
	lists, err := s.ledger.IntervalsByPeople(ctx, personIDs)
	if err != nil {
		return nil, err
	}
	return s.reconstruct(ctx, personIDs, lists, history.ForPerson), nil
}

func (s *Service) reconstruct(ctx context.Context, ids []uuid.UUID, lists [][]models.Interval, subject func(uuid.UUID) history.Subject) []history.History {
	result := make([]history.History, len(ids))
	for i, id := range ids {
		h := history.Reconstruct(subject(id), lists[i])
		s.reportWarnings(ctx, h)
		result[i] = h
	}
	return result
}

// reportWarnings logs the data integrity warnings of a history. They never fail
// the read.
func (s *Service) reportWarnings(ctx context.Context, h history.History) {
	if len(h.Warnings) == 0 {
		return
	}

	s.metrics.HistoryWarningsTotal.Add(ctx, int64(len(h.Warnings)),
		metric.WithAttributes(attribute.String("subject", string(h.Subject.Kind))))

	for _, w := range h.Warnings {
		zerolog.Ctx(ctx).Warn().
			Str("subject", h.Subject.String()).
			Str("kind", string(w.Kind)).
			Int64("interval_id", w.IntervalID).
			Time("at", w.At).
			Msg("Data integrity warning in occupancy history")
	}
}

// write runs one engine operation in its own transaction with a span and metrics.
func (s *Service) write(ctx context.Context, name string, fn func(ctx context.Context, tx store.LedgerTx) (int64, error), attrs ...attribute.KeyValue) (int64, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "roster."+name, trace.WithAttributes(attrs...))
	defer span.End()

	started := time.Now()

	var rows int64
	err := s.ledger.WithTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		var err error
		rows, err = fn(ctx, tx)
		return err
	})

	s.metrics.OperationDuration.Record(ctx, float64(time.Since(started).Microseconds())/1000,
		metric.WithAttributes(attribute.String("operation", name)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		switch {
		case errors.Is(err, occupancy.ErrInvariantViolation):
			s.metrics.InvariantViolationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", name)))
			zerolog.Ctx(ctx).Error().Err(err).Str("operation", name).Msg("Occupancy invariant violation, transaction rolled back")
		case errors.Is(err, store.ErrTransient):
			s.metrics.TransientFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", name)))
			zerolog.Ctx(ctx).Warn().Err(err).Str("operation", name).Msg("Transaction could not commit")
		}

		return 0, err
	}

	s.metrics.RowsWritten.Add(ctx, rows, metric.WithAttributes(attribute.String("operation", name)))
	span.SetAttributes(attribute.Int64("rows", rows))

	return rows, nil
}
