package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/trialdata-api/internal/model"
	"github.com/jwalitptl/trialdata-api/internal/repository"
)

type observationRepository struct {
	db *sqlx.DB
}

func NewObservationRepository(db *sqlx.DB) repository.ObservationRepository {
	return &observationRepository{db: db}
}

// CreateBatch assigns arrival sequence numbers and inserts the batch in one
// transaction. An advisory lock keyed on the study serializes allocation, so
// concurrent batches can never read the same MAX(seq); the table additionally
// carries UNIQUE (study_id, seq) as a backstop. Sequence numbers are written
// back onto the passed observations.
func (r *observationRepository) CreateBatch(ctx context.Context, observations []*model.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	studyID := observations[0].StudyID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext('observations:' || $1))`, studyID); err != nil {
		return fmt.Errorf("failed to lock study for seq allocation: %w", err)
	}

	var next int64
	if err := tx.GetContext(ctx, &next,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM observations WHERE study_id = $1`, studyID); err != nil {
		return fmt.Errorf("failed to allocate seq: %w", err)
	}

	now := time.Now()
	for _, obs := range observations {
		obs.Seq = next
		next++
		obs.CreatedAt = now
	}

	query := `
		INSERT INTO observations (id, study_id, subject_id, param_code, param, visit_name, obs_date, value, char_value, seq, created_at)
		VALUES (:id, :study_id, :subject_id, :param_code, :param, :visit_name, :obs_date, :value, :char_value, :seq, :created_at)
	`
	if _, err := tx.NamedExecContext(ctx, query, observations); err != nil {
		return fmt.Errorf("failed to insert observations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observations: %w", err)
	}
	return nil
}

func (r *observationRepository) List(ctx context.Context, studyID string, filters *model.ObservationFilters) ([]model.Observation, error) {
	query := `SELECT * FROM observations WHERE study_id = $1`
	args := []interface{}{studyID}

	if filters != nil {
		if filters.SubjectID != "" {
			args = append(args, filters.SubjectID)
			query += fmt.Sprintf(" AND subject_id = $%d", len(args))
		}
		if filters.ParamCode != "" {
			args = append(args, filters.ParamCode)
			query += fmt.Sprintf(" AND param_code = $%d", len(args))
		}
	}
	query += ` ORDER BY seq`

	var observations []model.Observation
	if err := r.db.SelectContext(ctx, &observations, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	return observations, nil
}

func (r *observationRepository) Count(ctx context.Context, studyID string) (int, error) {
	query := `SELECT COUNT(*) FROM observations WHERE study_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studyID); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return count, nil
}
