package derive

import (
	"fmt"
	"time"

	"github.com/jwalitptl/trialdata-api/internal/model"
)

// Rejection kinds reported by the builder.
const (
	KindDuplicateAnchor = "duplicate_reference_anchor"
)

// Rejection marks one subject group excluded from derivation for a
// structural input error.
type Rejection struct {
	SubjectID string
	Kind      string
	Detail    string
}

// Result is the output of one derivation pass.
type Result struct {
	Records       []model.AnalysisRecord
	Rejections    []Rejection
	BaselineCount int
	SubjectCount  int
}

// Builder composes anchor resolution, study-day computation, baseline
// selection and change derivation into one pass over the observation set.
// It is stateless: every call derives from scratch over its explicit inputs.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build emits exactly one AnalysisRecord per input Observation, in input
// order. Absent anchors, dates or values degrade that record's derived
// fields to absent; no record is ever dropped and no single malformed
// subject aborts the batch. Duplicate reference anchors are the only
// structural condition: the affected subjects derive nothing and are listed
// in Rejections.
func (b *Builder) Build(observations []model.Observation, refs []model.ReferenceDate) *Result {
	resolver := NewResolver(refs)

	records := make([]model.AnalysisRecord, len(observations))
	for i := range observations {
		records[i] = newRecord(observations[i])
	}

	subjectOrder, subjectIdx := groupBy(observations, func(o model.Observation) string { return o.SubjectID })

	result := &Result{
		Records:      records,
		SubjectCount: len(subjectOrder),
	}

	for _, subjectID := range subjectOrder {
		idxs := subjectIdx[subjectID]
		anchor, _ := resolver.Resolve(subjectID)

		for _, i := range idxs {
			records[i].StudyDay = StudyDay(observations[i].ObsDate, anchor)
		}

		subjectObs := make([]model.Observation, 0, len(idxs))
		for _, i := range idxs {
			subjectObs = append(subjectObs, observations[i])
		}

		paramOrder, paramIdx := groupBy(subjectObs, func(o model.Observation) string { return o.ParamCode })
		for _, paramCode := range paramOrder {
			group := make([]model.Observation, 0, len(paramIdx[paramCode]))
			for _, j := range paramIdx[paramCode] {
				group = append(group, subjectObs[j])
			}

			baselineAt, ok := SelectBaseline(group, anchor)
			if ok {
				result.BaselineCount++
			}

			// The baseline is identified by its position in the group, so
			// exactly one record per group carries the flag even if sequence
			// numbers repeat.
			for k, j := range paramIdx[paramCode] {
				i := idxs[j]
				rec := &records[i]
				if ok {
					baseline := group[baselineAt]
					rec.BaselineValue = baseline.Value
					rec.BaselineCharValue = baseline.CharValue
					rec.IsBaseline = k == baselineAt
				}
				if postBaseline(rec.StudyDay, observations[i].ObsDate, anchor) {
					rec.ChangeFromBaseline, rec.PercentChangeFromBaseline =
						DeriveChange(observations[i].Value, rec.BaselineValue)
				}
			}
		}
	}

	for _, subjectID := range resolver.Duplicates() {
		result.Rejections = append(result.Rejections, Rejection{
			SubjectID: subjectID,
			Kind:      KindDuplicateAnchor,
			Detail:    fmt.Sprintf("subject %s has more than one reference-date row", subjectID),
		})
	}

	return result
}

// postBaseline reports whether a record is eligible for change derivation:
// positive study day, or, when the study day could not be computed, an
// observation date strictly after a known anchor.
func postBaseline(studyDay *int, obsDate, anchor *time.Time) bool {
	if studyDay != nil {
		return *studyDay > 0
	}
	if obsDate != nil && anchor != nil {
		return after(*obsDate, *anchor)
	}
	return false
}

func newRecord(obs model.Observation) model.AnalysisRecord {
	return model.AnalysisRecord{
		StudyID:   obs.StudyID,
		SubjectID: obs.SubjectID,
		ParamCode: obs.ParamCode,
		Param:     obs.Param,
		VisitName: obs.VisitName,
		ObsDate:   obs.ObsDate,
		Value:     obs.Value,
		CharValue: obs.CharValue,
		Seq:       obs.Seq,
	}
}

// groupBy partitions a slice into index groups keyed by keyFn, preserving
// first-seen key order and intra-group input order.
func groupBy(obs []model.Observation, keyFn func(model.Observation) string) ([]string, map[string][]int) {
	order := make([]string, 0)
	groups := make(map[string][]int)
	for i := range obs {
		key := keyFn(obs[i])
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	return order, groups
}
