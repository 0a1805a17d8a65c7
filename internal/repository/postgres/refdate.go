package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/trialdata-api/internal/model"
	"github.com/jwalitptl/trialdata-api/internal/repository"
)

type referenceDateRepository struct {
	db *sqlx.DB
}

func NewReferenceDateRepository(db *sqlx.DB) repository.ReferenceDateRepository {
	return &referenceDateRepository{db: db}
}

func (r *referenceDateRepository) CreateBatch(ctx context.Context, refs []*model.ReferenceDate) error {
	if len(refs) == 0 {
		return nil
	}

	query := `
		INSERT INTO reference_dates (study_id, subject_id, anchor_date, created_at)
		VALUES (:study_id, :subject_id, :anchor_date, :created_at)
	`
	now := time.Now()
	for _, ref := range refs {
		ref.CreatedAt = now
	}

	if _, err := r.db.NamedExecContext(ctx, query, refs); err != nil {
		return fmt.Errorf("failed to insert reference dates: %w", err)
	}
	return nil
}

func (r *referenceDateRepository) List(ctx context.Context, studyID string) ([]model.ReferenceDate, error) {
	query := `SELECT * FROM reference_dates WHERE study_id = $1 ORDER BY subject_id`
	var refs []model.ReferenceDate
	if err := r.db.SelectContext(ctx, &refs, query, studyID); err != nil {
		return nil, fmt.Errorf("failed to list reference dates: %w", err)
	}
	return refs, nil
}

func (r *referenceDateRepository) Exists(ctx context.Context, studyID, subjectID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM reference_dates WHERE study_id = $1 AND subject_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studyID, subjectID); err != nil {
		return false, fmt.Errorf("failed to check reference date: %w", err)
	}
	return exists, nil
}
