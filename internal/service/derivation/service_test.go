package derivation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/trialdata-api/internal/model"
	apperrors "github.com/jwalitptl/trialdata-api/pkg/errors"
	"github.com/jwalitptl/trialdata-api/pkg/logger"
	"github.com/jwalitptl/trialdata-api/pkg/metrics"
)

// Registered once: promauto panics on duplicate metric registration.
var testMetrics = metrics.NewMetrics("test", "derivation")

type fakeObservationRepo struct {
	observations []model.Observation
}

func (f *fakeObservationRepo) CreateBatch(ctx context.Context, obs []*model.Observation) error {
	seq := int64(len(f.observations)) + 1
	for _, o := range obs {
		o.Seq = seq
		seq++
		f.observations = append(f.observations, *o)
	}
	return nil
}

func (f *fakeObservationRepo) List(ctx context.Context, studyID string, filters *model.ObservationFilters) ([]model.Observation, error) {
	var out []model.Observation
	for _, o := range f.observations {
		if o.StudyID == studyID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeObservationRepo) Count(ctx context.Context, studyID string) (int, error) {
	n := 0
	for _, o := range f.observations {
		if o.StudyID == studyID {
			n++
		}
	}
	return n, nil
}

type fakeRefDateRepo struct {
	refs []model.ReferenceDate
}

func (f *fakeRefDateRepo) CreateBatch(ctx context.Context, refs []*model.ReferenceDate) error {
	for _, r := range refs {
		f.refs = append(f.refs, *r)
	}
	return nil
}

func (f *fakeRefDateRepo) List(ctx context.Context, studyID string) ([]model.ReferenceDate, error) {
	var out []model.ReferenceDate
	for _, r := range f.refs {
		if r.StudyID == studyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRefDateRepo) Exists(ctx context.Context, studyID, subjectID string) (bool, error) {
	for _, r := range f.refs {
		if r.StudyID == studyID && r.SubjectID == subjectID {
			return true, nil
		}
	}
	return false, nil
}

type fakeAnalysisRepo struct {
	records      map[uuid.UUID][]model.AnalysisRecord
	failNextErr  error
	failuresLeft int
}

func newFakeAnalysisRepo() *fakeAnalysisRepo {
	return &fakeAnalysisRepo{records: make(map[uuid.UUID][]model.AnalysisRecord)}
}

func (f *fakeAnalysisRepo) CreateBatch(ctx context.Context, records []*model.AnalysisRecord) error {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return f.failNextErr
	}
	for _, r := range records {
		f.records[r.RunID] = append(f.records[r.RunID], *r)
	}
	return nil
}

func (f *fakeAnalysisRepo) ListByRun(ctx context.Context, runID uuid.UUID, filters *model.AnalysisRecordFilters) ([]model.AnalysisRecord, error) {
	return f.records[runID], nil
}

func (f *fakeAnalysisRepo) DeleteByRun(ctx context.Context, runID uuid.UUID) error {
	delete(f.records, runID)
	return nil
}

type fakeRunRepo struct {
	runs       map[uuid.UUID]*model.DerivationRun
	rejections map[uuid.UUID][]model.SubjectRejection
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{
		runs:       make(map[uuid.UUID]*model.DerivationRun),
		rejections: make(map[uuid.UUID][]model.SubjectRejection),
	}
}

func (f *fakeRunRepo) Create(ctx context.Context, run *model.DerivationRun) error {
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeRunRepo) Get(ctx context.Context, id uuid.UUID) (*model.DerivationRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, apperrors.NotFound("run", nil)
	}
	copied := *run
	return &copied, nil
}

func (f *fakeRunRepo) Update(ctx context.Context, run *model.DerivationRun) error {
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeRunRepo) List(ctx context.Context, studyID string) ([]model.DerivationRun, error) {
	var out []model.DerivationRun
	for _, run := range f.runs {
		if run.StudyID == studyID {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (f *fakeRunRepo) ClaimNextQueued(ctx context.Context) (*model.DerivationRun, error) {
	for _, run := range f.runs {
		if run.Status == model.RunStatusQueued {
			run.Status = model.RunStatusRunning
			copied := *run
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRunRepo) CountQueued(ctx context.Context) (int, error) {
	n := 0
	for _, run := range f.runs {
		if run.Status == model.RunStatusQueued {
			n++
		}
	}
	return n, nil
}

func (f *fakeRunRepo) CreateRejections(ctx context.Context, rejections []*model.SubjectRejection) error {
	for _, rej := range rejections {
		f.rejections[rej.RunID] = append(f.rejections[rej.RunID], *rej)
	}
	return nil
}

func (f *fakeRunRepo) ListRejections(ctx context.Context, runID uuid.UUID) ([]model.SubjectRejection, error) {
	return f.rejections[runID], nil
}

type fakeBroker struct {
	published []string
}

func (f *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	f.published = append(f.published, channel)
	return nil
}

func (f *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeBroker) Close() error { return nil }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func floatPtr(v float64) *float64 { return &v }

func newTestService(obsRepo *fakeObservationRepo, refRepo *fakeRefDateRepo, runRepo *fakeRunRepo, analysisRepo *fakeAnalysisRepo, broker *fakeBroker) *Service {
	return NewService(runRepo, obsRepo, refRepo, analysisRepo, broker, testMetrics, logger.NewLogger(nil))
}

func TestCreateRunRequiresObservations(t *testing.T) {
	svc := newTestService(&fakeObservationRepo{}, &fakeRefDateRepo{}, newFakeRunRepo(), newFakeAnalysisRepo(), &fakeBroker{})

	_, err := svc.CreateRun(context.Background(), "EMPTY", "tester", "")
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
}

func TestExecuteRunEndToEnd(t *testing.T) {
	obsRepo := &fakeObservationRepo{observations: []model.Observation{
		{ID: uuid.New(), StudyID: "STUDY01", SubjectID: "S1", ParamCode: "HGB", ObsDate: datePtr(2024, time.January, 8), Value: floatPtr(13.0), Seq: 1},
		{ID: uuid.New(), StudyID: "STUDY01", SubjectID: "S1", ParamCode: "HGB", ObsDate: datePtr(2024, time.January, 10), Value: floatPtr(13.2), Seq: 2},
		{ID: uuid.New(), StudyID: "STUDY01", SubjectID: "S1", ParamCode: "HGB", ObsDate: datePtr(2024, time.January, 17), Value: floatPtr(12.5), Seq: 3},
	}}
	refRepo := &fakeRefDateRepo{refs: []model.ReferenceDate{
		{StudyID: "STUDY01", SubjectID: "S1", AnchorDate: datePtr(2024, time.January, 10)},
	}}
	runRepo := newFakeRunRepo()
	analysisRepo := newFakeAnalysisRepo()
	broker := &fakeBroker{}
	svc := newTestService(obsRepo, refRepo, runRepo, analysisRepo, broker)

	ctx := context.Background()
	run, err := svc.CreateRun(ctx, "STUDY01", "tester", "")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	claimed, err := svc.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, run.ID, claimed.ID)

	require.NoError(t, svc.ExecuteRun(ctx, claimed))

	stored, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.RecordCount)
	assert.Equal(t, 0, stored.RejectedSubjects)

	records, err := svc.ListRecords(ctx, run.ID, nil)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, run.ID, rec.RunID)
		assert.NotEqual(t, uuid.Nil, rec.ID)
	}

	report, err := svc.GetReport(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.InputCount, "input count reflects the observation table")
	assert.Equal(t, 3, report.RecordCount)
	assert.Equal(t, 1, report.BaselineCount)
	assert.Equal(t, 1, report.SubjectsTotal)
	assert.Empty(t, report.SubjectsRejected)

	require.Len(t, broker.published, 1)
	assert.Equal(t, "derivation.completed", broker.published[0])
}

func TestExecuteRunRetrySuccessClearsError(t *testing.T) {
	obsRepo := &fakeObservationRepo{observations: []model.Observation{
		{ID: uuid.New(), StudyID: "STUDY01", SubjectID: "S1", ParamCode: "HGB", ObsDate: datePtr(2024, time.January, 8), Value: floatPtr(13.0), Seq: 1},
	}}
	refRepo := &fakeRefDateRepo{refs: []model.ReferenceDate{
		{StudyID: "STUDY01", SubjectID: "S1", AnchorDate: datePtr(2024, time.January, 10)},
	}}
	runRepo := newFakeRunRepo()
	analysisRepo := newFakeAnalysisRepo()
	analysisRepo.failNextErr = errors.New("connection reset")
	analysisRepo.failuresLeft = 1
	svc := newTestService(obsRepo, refRepo, runRepo, analysisRepo, &fakeBroker{})

	ctx := context.Background()
	run, err := svc.CreateRun(ctx, "STUDY01", "tester", "")
	require.NoError(t, err)

	// First attempt fails and marks the run.
	require.Error(t, svc.ExecuteRun(ctx, run))
	stored, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)

	// The worker retries with the same run object; a clean pass must not
	// keep the previous attempt's error text.
	require.NoError(t, svc.ExecuteRun(ctx, run))
	stored, err = svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, stored.Status)
	assert.Nil(t, stored.Error)
	assert.Equal(t, 1, stored.RecordCount)
}

func TestExecuteRunReportsDuplicateAnchors(t *testing.T) {
	obsRepo := &fakeObservationRepo{observations: []model.Observation{
		{ID: uuid.New(), StudyID: "STUDY01", SubjectID: "S1", ParamCode: "HGB", ObsDate: datePtr(2024, time.January, 5), Value: floatPtr(13.0), Seq: 1},
	}}
	refRepo := &fakeRefDateRepo{refs: []model.ReferenceDate{
		{StudyID: "STUDY01", SubjectID: "S1", AnchorDate: datePtr(2024, time.January, 1)},
		{StudyID: "STUDY01", SubjectID: "S1", AnchorDate: datePtr(2024, time.February, 1)},
	}}
	runRepo := newFakeRunRepo()
	svc := newTestService(obsRepo, refRepo, runRepo, newFakeAnalysisRepo(), &fakeBroker{})

	ctx := context.Background()
	run, err := svc.CreateRun(ctx, "STUDY01", "tester", "")
	require.NoError(t, err)
	require.NoError(t, svc.ExecuteRun(ctx, run))

	stored, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, stored.Status, "structural rejection does not fail the run")
	assert.Equal(t, 1, stored.RecordCount, "records still emitted")
	assert.Equal(t, 1, stored.RejectedSubjects)

	report, err := svc.GetReport(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, report.SubjectsRejected, 1)
	assert.Equal(t, "S1", report.SubjectsRejected[0].SubjectID)
	assert.Equal(t, "duplicate_reference_anchor", report.SubjectsRejected[0].Kind)

	records, err := svc.ListRecords(ctx, run.ID, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].StudyDay, "rejected subject derives nothing")
	assert.Nil(t, records[0].BaselineValue)
}
