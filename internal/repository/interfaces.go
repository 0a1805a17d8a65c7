package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/trialdata-api/internal/model"
)

// All repository interfaces in one file
type (
	// ObservationRepository stores collected observations per study.
	// CreateBatch assigns each observation's arrival Seq atomically and
	// writes it back onto the passed structs.
	ObservationRepository interface {
		CreateBatch(ctx context.Context, observations []*model.Observation) error
		List(ctx context.Context, studyID string, filters *model.ObservationFilters) ([]model.Observation, error)
		Count(ctx context.Context, studyID string) (int, error)
	}

	// ReferenceDateRepository stores the per-subject anchor table.
	ReferenceDateRepository interface {
		CreateBatch(ctx context.Context, refs []*model.ReferenceDate) error
		List(ctx context.Context, studyID string) ([]model.ReferenceDate, error)
		Exists(ctx context.Context, studyID, subjectID string) (bool, error)
	}

	// AnalysisRecordRepository stores derived records per run.
	AnalysisRecordRepository interface {
		CreateBatch(ctx context.Context, records []*model.AnalysisRecord) error
		ListByRun(ctx context.Context, runID uuid.UUID, filters *model.AnalysisRecordFilters) ([]model.AnalysisRecord, error)
		DeleteByRun(ctx context.Context, runID uuid.UUID) error
	}

	// RunRepository stores derivation runs and their rejection reports.
	RunRepository interface {
		Create(ctx context.Context, run *model.DerivationRun) error
		Get(ctx context.Context, id uuid.UUID) (*model.DerivationRun, error)
		Update(ctx context.Context, run *model.DerivationRun) error
		List(ctx context.Context, studyID string) ([]model.DerivationRun, error)
		ClaimNextQueued(ctx context.Context) (*model.DerivationRun, error)
		CountQueued(ctx context.Context) (int, error)
		CreateRejections(ctx context.Context, rejections []*model.SubjectRejection) error
		ListRejections(ctx context.Context, runID uuid.UUID) ([]model.SubjectRejection, error)
	}
)
