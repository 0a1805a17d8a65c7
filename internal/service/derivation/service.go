package derivation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/trialdata-api/internal/derive"
	"github.com/jwalitptl/trialdata-api/internal/model"
	"github.com/jwalitptl/trialdata-api/internal/repository"
	apperrors "github.com/jwalitptl/trialdata-api/pkg/errors"
	"github.com/jwalitptl/trialdata-api/pkg/logger"
	"github.com/jwalitptl/trialdata-api/pkg/messaging"
	"github.com/jwalitptl/trialdata-api/pkg/metrics"
)

// Service orchestrates derivation runs: queue, execute, report.
type Service struct {
	runRepo      repository.RunRepository
	obsRepo      repository.ObservationRepository
	refRepo      repository.ReferenceDateRepository
	analysisRepo repository.AnalysisRecordRepository
	builder      *derive.Builder
	broker       messaging.Broker
	metrics      *metrics.Metrics
	logger       *logger.Logger
}

func NewService(
	runRepo repository.RunRepository,
	obsRepo repository.ObservationRepository,
	refRepo repository.ReferenceDateRepository,
	analysisRepo repository.AnalysisRecordRepository,
	broker messaging.Broker,
	m *metrics.Metrics,
	l *logger.Logger,
) *Service {
	return &Service{
		runRepo:      runRepo,
		obsRepo:      obsRepo,
		refRepo:      refRepo,
		analysisRepo: analysisRepo,
		builder:      derive.NewBuilder(),
		broker:       broker,
		metrics:      m,
		logger:       l,
	}
}

// CreateRun queues a derivation run for a study. notify, when set, is the
// address the worker mails the batch report to once the run finishes.
func (s *Service) CreateRun(ctx context.Context, studyID, requestedBy, notify string) (*model.DerivationRun, error) {
	count, err := s.obsRepo.Count(ctx, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to count observations: %w", err)
	}
	if count == 0 {
		return nil, apperrors.BadRequest("study has no observations to derive", nil)
	}

	run := &model.DerivationRun{
		ID:          uuid.New(),
		StudyID:     studyID,
		Status:      model.RunStatusQueued,
		RequestedBy: requestedBy,
	}
	if notify != "" {
		run.Notify = &notify
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to queue run: %w", err)
	}

	if queued, err := s.runRepo.CountQueued(ctx); err == nil {
		s.metrics.RunsQueued.Set(float64(queued))
	}
	return run, nil
}

// ClaimNext hands the worker the oldest queued run, already marked running.
func (s *Service) ClaimNext(ctx context.Context) (*model.DerivationRun, error) {
	return s.runRepo.ClaimNextQueued(ctx)
}

// ExecuteRun performs the full derivation pass for a claimed run. Absent
// inputs degrade to absent outputs record by record; only structural errors
// reject a subject group, and those land in the run's rejection report
// rather than failing the run.
func (s *Service) ExecuteRun(ctx context.Context, run *model.DerivationRun) error {
	started := time.Now()

	observations, err := s.obsRepo.List(ctx, run.StudyID, nil)
	if err != nil {
		return s.failRun(ctx, run, fmt.Errorf("failed to load observations: %w", err))
	}
	refs, err := s.refRepo.List(ctx, run.StudyID)
	if err != nil {
		return s.failRun(ctx, run, fmt.Errorf("failed to load reference dates: %w", err))
	}

	result := s.builder.Build(observations, refs)

	records := make([]*model.AnalysisRecord, len(result.Records))
	for i := range result.Records {
		rec := result.Records[i]
		rec.ID = uuid.New()
		rec.RunID = run.ID
		records[i] = &rec
	}

	// Re-running replaces the whole record set; records are never patched.
	if err := s.analysisRepo.DeleteByRun(ctx, run.ID); err != nil {
		return s.failRun(ctx, run, fmt.Errorf("failed to clear previous records: %w", err))
	}
	if err := s.analysisRepo.CreateBatch(ctx, records); err != nil {
		return s.failRun(ctx, run, fmt.Errorf("failed to store analysis records: %w", err))
	}

	rejections := make([]*model.SubjectRejection, len(result.Rejections))
	for i, rej := range result.Rejections {
		rejections[i] = &model.SubjectRejection{
			ID:        uuid.New(),
			RunID:     run.ID,
			SubjectID: rej.SubjectID,
			Kind:      rej.Kind,
			Detail:    rej.Detail,
		}
		s.metrics.SubjectsRejected.WithLabelValues(rej.Kind).Inc()
	}
	if err := s.runRepo.CreateRejections(ctx, rejections); err != nil {
		return s.failRun(ctx, run, fmt.Errorf("failed to store rejections: %w", err))
	}

	now := time.Now()
	run.Status = model.RunStatusCompleted
	run.RecordCount = len(records)
	run.RejectedSubjects = len(rejections)
	// A retry may succeed after an earlier failed attempt set run.Error.
	run.Error = nil
	run.FinishedAt = &now
	if err := s.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}

	s.metrics.RunsProcessed.Inc()
	s.metrics.RunDuration.Observe(time.Since(started).Seconds())
	s.metrics.RecordsDerived.Add(float64(len(records)))
	s.metrics.BaselinesFlagged.Add(float64(result.BaselineCount))

	s.publish(ctx, messaging.ChannelRunCompleted, run, "")
	s.logger.Info("derivation run completed",
		"run_id", run.ID.String(),
		"study_id", run.StudyID,
		"records", len(records),
		"rejected_subjects", len(rejections))
	return nil
}

func (s *Service) failRun(ctx context.Context, run *model.DerivationRun, cause error) error {
	now := time.Now()
	errStr := cause.Error()
	run.Status = model.RunStatusFailed
	run.Error = &errStr
	run.FinishedAt = &now

	if err := s.runRepo.Update(ctx, run); err != nil {
		s.logger.Error(err, "failed to mark run failed", "run_id", run.ID.String())
	}
	s.metrics.RunsFailed.Inc()
	s.publish(ctx, messaging.ChannelRunFailed, run, errStr)
	return cause
}

func (s *Service) publish(ctx context.Context, channel string, run *model.DerivationRun, errStr string) {
	if s.broker == nil {
		return
	}
	event := messaging.RunEvent{
		RunID:            run.ID.String(),
		StudyID:          run.StudyID,
		RecordCount:      run.RecordCount,
		RejectedSubjects: run.RejectedSubjects,
		Error:            errStr,
	}
	if err := s.broker.Publish(ctx, channel, event); err != nil {
		s.logger.Error(err, "failed to publish run event", "run_id", run.ID.String())
	}
}

// GetRun returns one run.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*model.DerivationRun, error) {
	return s.runRepo.Get(ctx, id)
}

// ListRuns returns a study's runs, newest first.
func (s *Service) ListRuns(ctx context.Context, studyID string) ([]model.DerivationRun, error) {
	return s.runRepo.List(ctx, studyID)
}

// ListRecords returns a run's analysis records in input order.
func (s *Service) ListRecords(ctx context.Context, runID uuid.UUID, filters *model.AnalysisRecordFilters) ([]model.AnalysisRecord, error) {
	if _, err := s.runRepo.Get(ctx, runID); err != nil {
		return nil, err
	}
	return s.analysisRepo.ListByRun(ctx, runID, filters)
}

// GetReport builds the batch report for a completed run: derivation totals
// plus the explicit list of structurally rejected subjects.
func (s *Service) GetReport(ctx context.Context, runID uuid.UUID) (*model.BatchReport, error) {
	run, err := s.runRepo.Get(ctx, runID)
	if err != nil {
		return nil, err
	}

	records, err := s.analysisRepo.ListByRun(ctx, runID, nil)
	if err != nil {
		return nil, err
	}
	rejections, err := s.runRepo.ListRejections(ctx, runID)
	if err != nil {
		return nil, err
	}
	// InputCount comes from the observation table, not the record set, so a
	// mismatch between inputs and emitted records is visible in the report.
	inputCount, err := s.obsRepo.Count(ctx, run.StudyID)
	if err != nil {
		return nil, err
	}

	report := &model.BatchReport{
		RunID:            run.ID,
		StudyID:          run.StudyID,
		InputCount:       inputCount,
		RecordCount:      len(records),
		SubjectsRejected: rejections,
	}

	subjects := make(map[string]bool)
	for _, rec := range records {
		subjects[rec.SubjectID] = true
		if rec.IsBaseline {
			report.BaselineCount++
		}
	}
	report.SubjectsTotal = len(subjects)

	return report, nil
}
