package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/trialdata-api/internal/mapping"
	"github.com/jwalitptl/trialdata-api/internal/model"
	"github.com/jwalitptl/trialdata-api/internal/repository"
	apperrors "github.com/jwalitptl/trialdata-api/pkg/errors"
)

const refDateCacheTTL = 5 * time.Minute

// Service ingests observations and reference dates. It is the boundary where
// raw input becomes typed: dates are parsed, numerics coerced, and arrival
// order is frozen into each observation's Seq.
type Service struct {
	obsRepo repository.ObservationRepository
	refRepo repository.ReferenceDateRepository
	cache   *cache.Cache
}

func NewService(obsRepo repository.ObservationRepository, refRepo repository.ReferenceDateRepository) *Service {
	return &Service{
		obsRepo: obsRepo,
		refRepo: refRepo,
		cache:   cache.New(refDateCacheTTL, 10*time.Minute),
	}
}

// IngestObservations stores a batch of typed observations. Arrival sequence
// numbers are assigned by the repository, atomically per study, so request
// order within the batch is preserved and sequences stay unique across
// concurrent batches.
func (s *Service) IngestObservations(ctx context.Context, studyID string, reqs []model.CreateObservationRequest) ([]*model.Observation, error) {
	observations := make([]*model.Observation, 0, len(reqs))
	for _, req := range reqs {
		obsDate, err := parseOptionalDate("obs_date", req.ObsDate)
		if err != nil {
			return nil, err
		}

		observations = append(observations, &model.Observation{
			ID:        uuid.New(),
			StudyID:   studyID,
			SubjectID: req.SubjectID,
			ParamCode: req.ParamCode,
			Param:     req.Param,
			VisitName: req.VisitName,
			ObsDate:   obsDate,
			Value:     req.Value,
			CharValue: req.CharValue,
		})
	}

	if err := s.obsRepo.CreateBatch(ctx, observations); err != nil {
		return nil, fmt.Errorf("failed to store observations: %w", err)
	}
	return observations, nil
}

// IngestRows maps raw per-domain rows through the declarative ruleset and
// stores the resulting observations. Non-numeric result values stay
// character-only; unparseable dates are structural errors.
func (s *Service) IngestRows(ctx context.Context, studyID, domain string, rows []map[string]string) ([]*model.Observation, error) {
	ruleset, err := mapping.ForDomain(domain)
	if err != nil {
		return nil, apperrors.BadRequest("unsupported domain", err)
	}

	reqs := make([]model.CreateObservationRequest, 0, len(rows))
	for i, row := range rows {
		normalized, err := ruleset.Apply(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		req := model.CreateObservationRequest{
			SubjectID: normalized[mapping.FieldSubjectID],
			ParamCode: normalized[mapping.FieldParamCode],
			Param:     normalized[mapping.FieldParam],
			VisitName: normalized[mapping.FieldVisitName],
			CharValue: normalized[mapping.FieldResult],
			Value:     mapping.ParseNumeric(normalized[mapping.FieldResult]),
		}
		if date, ok := normalized[mapping.FieldObsDate]; ok {
			req.ObsDate = &date
		}
		if req.SubjectID == "" || req.ParamCode == "" {
			return nil, apperrors.BadRequest(fmt.Sprintf("row %d: subject and parameter are required", i), nil)
		}
		reqs = append(reqs, req)
	}

	return s.IngestObservations(ctx, studyID, reqs)
}

// IngestReferenceDates stores subject anchors. A subject that already has an
// anchor row, or appears twice in the batch, is a structural conflict: the
// whole batch is rejected rather than silently overwriting an anchor.
func (s *Service) IngestReferenceDates(ctx context.Context, studyID string, reqs []model.CreateReferenceDateRequest) ([]*model.ReferenceDate, error) {
	seen := make(map[string]bool, len(reqs))
	refs := make([]*model.ReferenceDate, 0, len(reqs))

	for _, req := range reqs {
		if seen[req.SubjectID] {
			return nil, apperrors.DuplicateAnchor(req.SubjectID)
		}
		seen[req.SubjectID] = true

		exists, err := s.refRepo.Exists(ctx, studyID, req.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to check anchor: %w", err)
		}
		if exists {
			return nil, apperrors.DuplicateAnchor(req.SubjectID)
		}

		anchorDate, err := parseOptionalDate("anchor_date", req.AnchorDate)
		if err != nil {
			return nil, err
		}

		refs = append(refs, &model.ReferenceDate{
			StudyID:    studyID,
			SubjectID:  req.SubjectID,
			AnchorDate: anchorDate,
		})
	}

	if err := s.refRepo.CreateBatch(ctx, refs); err != nil {
		return nil, fmt.Errorf("failed to store reference dates: %w", err)
	}

	s.cache.Delete(refDateCacheKey(studyID))
	return refs, nil
}

// ListObservations returns a study's observations in arrival order.
func (s *Service) ListObservations(ctx context.Context, studyID string, filters *model.ObservationFilters) ([]model.Observation, error) {
	return s.obsRepo.List(ctx, studyID, filters)
}

// ListReferenceDates returns the anchor table, cached per study: the table
// is written once at data-build time and read by every run.
func (s *Service) ListReferenceDates(ctx context.Context, studyID string) ([]model.ReferenceDate, error) {
	key := refDateCacheKey(studyID)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]model.ReferenceDate), nil
	}

	refs, err := s.refRepo.List(ctx, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference dates: %w", err)
	}

	s.cache.Set(key, refs, cache.DefaultExpiration)
	return refs, nil
}

func refDateCacheKey(studyID string) string {
	return "refdates:" + studyID
}

func parseOptionalDate(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	return mapping.ParseDate(field, *raw)
}
