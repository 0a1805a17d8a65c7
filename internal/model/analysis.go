package model

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisRecord is one Observation enriched with derived longitudinal
// fields. Records are read-only projections: a re-derivation replaces the
// whole run's record set, never individual rows.
type AnalysisRecord struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	RunID     uuid.UUID  `db:"run_id" json:"run_id"`
	StudyID   string     `db:"study_id" json:"study_id"`
	SubjectID string     `db:"subject_id" json:"subject_id"`
	ParamCode string     `db:"param_code" json:"param_code"`
	Param     string     `db:"param" json:"param"`
	VisitName string     `db:"visit_name" json:"visit_name,omitempty"`
	ObsDate   *time.Time `db:"obs_date" json:"obs_date,omitempty"`
	Value     *float64   `db:"value" json:"value,omitempty"`
	CharValue string     `db:"char_value" json:"char_value"`
	Seq       int64      `db:"seq" json:"seq"`

	StudyDay                  *int     `db:"study_day" json:"study_day,omitempty"`
	IsBaseline                bool     `db:"is_baseline" json:"is_baseline"`
	BaselineValue             *float64 `db:"baseline_value" json:"baseline_value,omitempty"`
	BaselineCharValue         string   `db:"baseline_char_value" json:"baseline_char_value,omitempty"`
	ChangeFromBaseline        *float64 `db:"change_from_baseline" json:"change_from_baseline,omitempty"`
	PercentChangeFromBaseline *float64 `db:"percent_change_from_baseline" json:"percent_change_from_baseline,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AnalysisRecordFilters narrows analysis record listings.
type AnalysisRecordFilters struct {
	SubjectID    string
	ParamCode    string
	BaselineOnly bool
}
