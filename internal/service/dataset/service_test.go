package dataset

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/trialdata-api/internal/model"
	apperrors "github.com/jwalitptl/trialdata-api/pkg/errors"
)

type fakeObservationRepo struct {
	observations []model.Observation
}

// CreateBatch assigns arrival sequence numbers the way the postgres
// repository does, then stores the batch.
func (r *fakeObservationRepo) CreateBatch(_ context.Context, observations []*model.Observation) error {
	seq := int64(len(r.observations)) + 1
	for _, obs := range observations {
		obs.Seq = seq
		seq++
		r.observations = append(r.observations, *obs)
	}
	return nil
}

func (r *fakeObservationRepo) List(_ context.Context, studyID string, _ *model.ObservationFilters) ([]model.Observation, error) {
	var out []model.Observation
	for _, obs := range r.observations {
		if obs.StudyID == studyID {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (r *fakeObservationRepo) Count(_ context.Context, studyID string) (int, error) {
	n := 0
	for _, obs := range r.observations {
		if obs.StudyID == studyID {
			n++
		}
	}
	return n, nil
}

type fakeReferenceDateRepo struct {
	refs      []model.ReferenceDate
	listCalls int
}

func (r *fakeReferenceDateRepo) CreateBatch(_ context.Context, refs []*model.ReferenceDate) error {
	for _, ref := range refs {
		r.refs = append(r.refs, *ref)
	}
	return nil
}

func (r *fakeReferenceDateRepo) List(_ context.Context, studyID string) ([]model.ReferenceDate, error) {
	r.listCalls++
	var out []model.ReferenceDate
	for _, ref := range r.refs {
		if ref.StudyID == studyID {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (r *fakeReferenceDateRepo) Exists(_ context.Context, studyID, subjectID string) (bool, error) {
	for _, ref := range r.refs {
		if ref.StudyID == studyID && ref.SubjectID == subjectID {
			return true, nil
		}
	}
	return false, nil
}

func strPtr(s string) *string { return &s }

func TestIngestObservationsAssignsArrivalOrder(t *testing.T) {
	obsRepo := &fakeObservationRepo{}
	svc := NewService(obsRepo, &fakeReferenceDateRepo{})

	reqs := []model.CreateObservationRequest{
		{SubjectID: "SUBJ-001", ParamCode: "HGB", ObsDate: strPtr("2024-01-01")},
		{SubjectID: "SUBJ-001", ParamCode: "HGB", ObsDate: strPtr("2024-01-08")},
		{SubjectID: "SUBJ-002", ParamCode: "SYSBP"},
	}

	stored, err := svc.IngestObservations(context.Background(), "STUDY01", reqs)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	assert.Equal(t, int64(1), stored[0].Seq)
	assert.Equal(t, int64(2), stored[1].Seq)
	assert.Equal(t, int64(3), stored[2].Seq)
	assert.NotEqual(t, uuid.Nil, stored[0].ID)

	require.NotNil(t, stored[0].ObsDate)
	assert.Equal(t, "2024-01-01", stored[0].ObsDate.Format("2006-01-02"))
	assert.Nil(t, stored[2].ObsDate)
}

func TestIngestObservationsRejectsMalformedDate(t *testing.T) {
	svc := NewService(&fakeObservationRepo{}, &fakeReferenceDateRepo{})

	_, err := svc.IngestObservations(context.Background(), "STUDY01", []model.CreateObservationRequest{
		{SubjectID: "SUBJ-001", ParamCode: "HGB", ObsDate: strPtr("01/02/2024")},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsStructural(err))
}

func TestIngestRowsMapsDomainRows(t *testing.T) {
	obsRepo := &fakeObservationRepo{}
	svc := NewService(obsRepo, &fakeReferenceDateRepo{})

	rows := []map[string]string{
		{
			"USUBJID":  "SUBJ-001",
			"LBTESTCD": "hgb",
			"LBTEST":   "Hemoglobin",
			"VISIT":    "Week 1",
			"LBDTC":    "2024-01-08",
			"LBORRES":  "13.5",
		},
		{
			"USUBJID":  "SUBJ-001",
			"LBTESTCD": "ALT",
			"LBORRES":  "NOT DONE",
		},
	}

	stored, err := svc.IngestRows(context.Background(), "STUDY01", "LB", rows)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	assert.Equal(t, "HGB", stored[0].ParamCode)
	assert.Equal(t, "Hemoglobin", stored[0].Param)
	require.NotNil(t, stored[0].Value)
	assert.Equal(t, 13.5, *stored[0].Value)

	// Non-numeric results keep the character value with no numeric twin.
	assert.Nil(t, stored[1].Value)
	assert.Equal(t, "NOT DONE", stored[1].CharValue)
	assert.Nil(t, stored[1].ObsDate)
}

func TestIngestRowsUnknownDomain(t *testing.T) {
	svc := NewService(&fakeObservationRepo{}, &fakeReferenceDateRepo{})

	_, err := svc.IngestRows(context.Background(), "STUDY01", "XX", nil)
	require.Error(t, err)
}

func TestIngestReferenceDatesRejectsDuplicateAnchor(t *testing.T) {
	refRepo := &fakeReferenceDateRepo{}
	svc := NewService(&fakeObservationRepo{}, refRepo)

	_, err := svc.IngestReferenceDates(context.Background(), "STUDY01", []model.CreateReferenceDateRequest{
		{SubjectID: "SUBJ-001", AnchorDate: strPtr("2024-01-01")},
	})
	require.NoError(t, err)

	// Same subject again is a conflict, not an overwrite.
	_, err = svc.IngestReferenceDates(context.Background(), "STUDY01", []model.CreateReferenceDateRequest{
		{SubjectID: "SUBJ-001", AnchorDate: strPtr("2024-02-01")},
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrDuplicateAnchor, appErr.Code)
	assert.Len(t, refRepo.refs, 1)
}

func TestIngestReferenceDatesRejectsInBatchDuplicate(t *testing.T) {
	refRepo := &fakeReferenceDateRepo{}
	svc := NewService(&fakeObservationRepo{}, refRepo)

	_, err := svc.IngestReferenceDates(context.Background(), "STUDY01", []model.CreateReferenceDateRequest{
		{SubjectID: "SUBJ-001", AnchorDate: strPtr("2024-01-01")},
		{SubjectID: "SUBJ-001", AnchorDate: strPtr("2024-01-02")},
	})
	require.Error(t, err)
	assert.Empty(t, refRepo.refs)
}

func TestIngestReferenceDatesAllowsAbsentAnchor(t *testing.T) {
	refRepo := &fakeReferenceDateRepo{}
	svc := NewService(&fakeObservationRepo{}, refRepo)

	refs, err := svc.IngestReferenceDates(context.Background(), "STUDY01", []model.CreateReferenceDateRequest{
		{SubjectID: "SUBJ-002"},
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Nil(t, refs[0].AnchorDate)
}

func TestListReferenceDatesCachesPerStudy(t *testing.T) {
	refRepo := &fakeReferenceDateRepo{}
	svc := NewService(&fakeObservationRepo{}, refRepo)

	_, err := svc.IngestReferenceDates(context.Background(), "STUDY01", []model.CreateReferenceDateRequest{
		{SubjectID: "SUBJ-001", AnchorDate: strPtr("2024-01-01")},
	})
	require.NoError(t, err)

	_, err = svc.ListReferenceDates(context.Background(), "STUDY01")
	require.NoError(t, err)
	_, err = svc.ListReferenceDates(context.Background(), "STUDY01")
	require.NoError(t, err)
	assert.Equal(t, 1, refRepo.listCalls)

	// A new ingest invalidates the cached table.
	_, err = svc.IngestReferenceDates(context.Background(), "STUDY01", []model.CreateReferenceDateRequest{
		{SubjectID: "SUBJ-002", AnchorDate: strPtr("2024-01-03")},
	})
	require.NoError(t, err)

	refs, err := svc.ListReferenceDates(context.Background(), "STUDY01")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Equal(t, 2, refRepo.listCalls)
}
