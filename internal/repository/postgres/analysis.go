package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/trialdata-api/internal/model"
	"github.com/jwalitptl/trialdata-api/internal/repository"
)

type analysisRecordRepository struct {
	db *sqlx.DB
}

func NewAnalysisRecordRepository(db *sqlx.DB) repository.AnalysisRecordRepository {
	return &analysisRecordRepository{db: db}
}

func (r *analysisRecordRepository) CreateBatch(ctx context.Context, records []*model.AnalysisRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO analysis_records (
			id, run_id, study_id, subject_id, param_code, param, visit_name,
			obs_date, value, char_value, seq, study_day, is_baseline,
			baseline_value, baseline_char_value, change_from_baseline,
			percent_change_from_baseline, created_at
		) VALUES (
			:id, :run_id, :study_id, :subject_id, :param_code, :param, :visit_name,
			:obs_date, :value, :char_value, :seq, :study_day, :is_baseline,
			:baseline_value, :baseline_char_value, :change_from_baseline,
			:percent_change_from_baseline, :created_at
		)
	`
	now := time.Now()
	for _, rec := range records {
		rec.CreatedAt = now
	}

	// Chunked inserts keep us under the postgres parameter limit.
	const chunkSize = 500
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		if _, err := r.db.NamedExecContext(ctx, query, records[start:end]); err != nil {
			return fmt.Errorf("failed to insert analysis records: %w", err)
		}
	}
	return nil
}

func (r *analysisRecordRepository) ListByRun(ctx context.Context, runID uuid.UUID, filters *model.AnalysisRecordFilters) ([]model.AnalysisRecord, error) {
	query := `SELECT * FROM analysis_records WHERE run_id = $1`
	args := []interface{}{runID}

	if filters != nil {
		if filters.SubjectID != "" {
			args = append(args, filters.SubjectID)
			query += fmt.Sprintf(" AND subject_id = $%d", len(args))
		}
		if filters.ParamCode != "" {
			args = append(args, filters.ParamCode)
			query += fmt.Sprintf(" AND param_code = $%d", len(args))
		}
		if filters.BaselineOnly {
			query += ` AND is_baseline`
		}
	}
	query += ` ORDER BY seq`

	var records []model.AnalysisRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list analysis records: %w", err)
	}
	return records, nil
}

func (r *analysisRecordRepository) DeleteByRun(ctx context.Context, runID uuid.UUID) error {
	query := `DELETE FROM analysis_records WHERE run_id = $1`
	if _, err := r.db.ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to delete analysis records: %w", err)
	}
	return nil
}
