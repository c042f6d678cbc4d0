package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	_ repository.FailureRepository = (*FailureRepoImpl)(nil)
	_ repository.RunRepository     = (*RunRepoImpl)(nil)
)

// FailureRepoImpl provides a concrete implementation for the FailureRepository interface using PostgreSQL.
type FailureRepoImpl struct {
	db *pgxpool.Pool
}

// NewFailureRepo creates a new instance of FailureRepoImpl.
func NewFailureRepo(db *pgxpool.Pool) *FailureRepoImpl {
	return &FailureRepoImpl{db: db}
}

func (r *FailureRepoImpl) Record(ctx context.Context, ev *entity.FailureEvent) error {
	query := `
		INSERT INTO failure_events (run_id, stage, hash, kind, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
	`
	return r.db.QueryRow(ctx, query, ev.RunID, string(ev.Stage), ev.Hash, ev.Kind, ev.Message, ev.OccurredAt).Scan(&ev.ID)
}

func (r *FailureRepoImpl) ListRecent(ctx context.Context, limit int) ([]*entity.FailureEvent, error) {
	query := `
		SELECT id, run_id, stage, hash, kind, message, occurred_at
		FROM failure_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1;
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*entity.FailureEvent
	for rows.Next() {
		var (
			ev    entity.FailureEvent
			stage string
		)
		if err := rows.Scan(&ev.ID, &ev.RunID, &stage, &ev.Hash, &ev.Kind, &ev.Message, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.Stage = entity.Stage(stage)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// RunRepoImpl provides a concrete implementation for the RunRepository interface using PostgreSQL.
type RunRepoImpl struct {
	db *pgxpool.Pool
}

// NewRunRepo creates a new instance of RunRepoImpl.
func NewRunRepo(db *pgxpool.Pool) *RunRepoImpl {
	return &RunRepoImpl{db: db}
}

// Save creates or updates the run row; per-stage counters are stored as JSONB.
func (r *RunRepoImpl) Save(ctx context.Context, s *entity.RunSummary) error {
	stages, err := json.Marshal(s.Stages)
	if err != nil {
		return fmt.Errorf("marshal stage counts: %w", err)
	}
	query := `
		INSERT INTO pipeline_runs (id, status, started_at, finished_at, units, versions_created, stages)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			units = EXCLUDED.units,
			versions_created = EXCLUDED.versions_created,
			stages = EXCLUDED.stages;
	`
	_, err = r.db.Exec(ctx, query, s.ID, string(s.Status), s.StartedAt, s.FinishedAt, s.Units, s.VersionsCreated, stages)
	return err
}

const runColumns = `id, status, started_at, finished_at, units, versions_created, stages`

func (r *RunRepoImpl) FindByID(ctx context.Context, id string) (*entity.RunSummary, error) {
	return r.scanRun(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1`, id)
}

func (r *RunRepoImpl) Latest(ctx context.Context) (*entity.RunSummary, error) {
	return r.scanRun(ctx, `SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC LIMIT 1`)
}

func (r *RunRepoImpl) scanRun(ctx context.Context, query string, args ...any) (*entity.RunSummary, error) {
	var (
		s      entity.RunSummary
		status string
		stages []byte
	)
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&s.ID, &status, &s.StartedAt, &s.FinishedAt, &s.Units, &s.VersionsCreated, &stages)
	if err != nil {
		return nil, mapErr(err)
	}
	s.Status = entity.RunStatus(status)
	if err := json.Unmarshal(stages, &s.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stage counts: %w", err)
	}
	return &s, nil
}
