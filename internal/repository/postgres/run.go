package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/trialdata-api/internal/model"
	"github.com/jwalitptl/trialdata-api/internal/repository"
	apperrors "github.com/jwalitptl/trialdata-api/pkg/errors"
)

type runRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) repository.RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Create(ctx context.Context, run *model.DerivationRun) error {
	query := `
		INSERT INTO derivation_runs (id, study_id, status, record_count, rejected_subjects, requested_by, notify, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	run.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.StudyID,
		run.Status,
		run.RecordCount,
		run.RejectedSubjects,
		run.RequestedBy,
		run.Notify,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *runRepository) Get(ctx context.Context, id uuid.UUID) (*model.DerivationRun, error) {
	query := `SELECT * FROM derivation_runs WHERE id = $1`
	var run model.DerivationRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("run", err)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (r *runRepository) Update(ctx context.Context, run *model.DerivationRun) error {
	query := `
		UPDATE derivation_runs
		SET status = $1, record_count = $2, rejected_subjects = $3, error = $4, started_at = $5, finished_at = $6
		WHERE id = $7
	`
	_, err := r.db.ExecContext(ctx, query,
		run.Status,
		run.RecordCount,
		run.RejectedSubjects,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

func (r *runRepository) List(ctx context.Context, studyID string) ([]model.DerivationRun, error) {
	query := `SELECT * FROM derivation_runs WHERE study_id = $1 ORDER BY created_at DESC`
	var runs []model.DerivationRun
	if err := r.db.SelectContext(ctx, &runs, query, studyID); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ClaimNextQueued atomically flips the oldest queued run to running so
// concurrent workers never pick up the same run twice.
func (r *runRepository) ClaimNextQueued(ctx context.Context) (*model.DerivationRun, error) {
	query := `
		UPDATE derivation_runs
		SET status = $1, started_at = $2
		WHERE id = (
			SELECT id FROM derivation_runs
			WHERE status = $3
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`
	var run model.DerivationRun
	err := r.db.GetContext(ctx, &run, query, model.RunStatusRunning, time.Now(), model.RunStatusQueued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim run: %w", err)
	}
	return &run, nil
}

func (r *runRepository) CountQueued(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM derivation_runs WHERE status = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, model.RunStatusQueued); err != nil {
		return 0, fmt.Errorf("failed to count queued runs: %w", err)
	}
	return count, nil
}

func (r *runRepository) CreateRejections(ctx context.Context, rejections []*model.SubjectRejection) error {
	if len(rejections) == 0 {
		return nil
	}

	query := `
		INSERT INTO subject_rejections (id, run_id, subject_id, kind, detail, created_at)
		VALUES (:id, :run_id, :subject_id, :kind, :detail, :created_at)
	`
	now := time.Now()
	for _, rej := range rejections {
		rej.CreatedAt = now
	}

	if _, err := r.db.NamedExecContext(ctx, query, rejections); err != nil {
		return fmt.Errorf("failed to insert rejections: %w", err)
	}
	return nil
}

func (r *runRepository) ListRejections(ctx context.Context, runID uuid.UUID) ([]model.SubjectRejection, error) {
	query := `SELECT * FROM subject_rejections WHERE run_id = $1 ORDER BY subject_id`
	var rejections []model.SubjectRejection
	if err := r.db.SelectContext(ctx, &rejections, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list rejections: %w", err)
	}
	return rejections, nil
}
