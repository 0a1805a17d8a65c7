package model

import (
	"time"

	"github.com/google/uuid"
)

// Observation is one collected value for a subject, parameter and timepoint.
// Value and ObsDate are pointers: absence is a first-class state and is never
// conflated with zero. CharValue always retains the result as collected, even
// when it could not be coerced to a number.
type Observation struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	StudyID   string     `db:"study_id" json:"study_id"`
	SubjectID string     `db:"subject_id" json:"subject_id"`
	ParamCode string     `db:"param_code" json:"param_code"`
	Param     string     `db:"param" json:"param"`
	VisitName string     `db:"visit_name" json:"visit_name,omitempty"`
	ObsDate   *time.Time `db:"obs_date" json:"obs_date,omitempty"`
	Value     *float64   `db:"value" json:"value,omitempty"`
	CharValue string     `db:"char_value" json:"char_value"`
	// Seq is the arrival position assigned at ingestion. It is the stable
	// secondary sort key that makes same-day duplicates deterministic.
	Seq       int64     `db:"seq" json:"seq"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ReferenceDate is a subject's fixed temporal anchor. Exactly one row per
// subject; a nil AnchorDate means the anchor is unknown and every derived
// value for the subject stays absent.
type ReferenceDate struct {
	StudyID    string     `db:"study_id" json:"study_id"`
	SubjectID  string     `db:"subject_id" json:"subject_id"`
	AnchorDate *time.Time `db:"anchor_date" json:"anchor_date,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

type CreateObservationRequest struct {
	SubjectID string   `json:"subject_id" binding:"required"`
	ParamCode string   `json:"param_code" binding:"required,paramcode"`
	Param     string   `json:"param"`
	VisitName string   `json:"visit_name"`
	ObsDate   *string  `json:"obs_date"`
	Value     *float64 `json:"value"`
	CharValue string   `json:"char_value"`
}

type CreateObservationsRequest struct {
	Observations []CreateObservationRequest `json:"observations" binding:"required,min=1,dive"`
}

type CreateReferenceDateRequest struct {
	SubjectID  string  `json:"subject_id" binding:"required"`
	AnchorDate *string `json:"anchor_date"`
}

type CreateReferenceDatesRequest struct {
	ReferenceDates []CreateReferenceDateRequest `json:"reference_dates" binding:"required,min=1,dive"`
}

// ObservationFilters narrows observation listings.
type ObservationFilters struct {
	SubjectID string
	ParamCode string
}
