package model

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// DerivationRun is one queued execution of the derivation pipeline over a
// study's observations and reference dates.
type DerivationRun struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	StudyID          string     `db:"study_id" json:"study_id"`
	Status           RunStatus  `db:"status" json:"status"`
	RecordCount      int        `db:"record_count" json:"record_count"`
	RejectedSubjects int        `db:"rejected_subjects" json:"rejected_subjects"`
	Error            *string    `db:"error" json:"error,omitempty"`
	RequestedBy      string     `db:"requested_by" json:"requested_by,omitempty"`
	Notify           *string    `db:"notify" json:"notify,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	StartedAt        *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt       *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// SubjectRejection records one subject group excluded from a run for a
// structural input error. Rejections are collected, not thrown: the rest of
// the batch derives normally.
type SubjectRejection struct {
	ID        uuid.UUID `db:"id" json:"id"`
	RunID     uuid.UUID `db:"run_id" json:"run_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Kind      string    `db:"kind" json:"kind"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BatchReport summarizes a run: what derived cleanly and which subjects were
// rejected.
type BatchReport struct {
	RunID            uuid.UUID          `json:"run_id"`
	StudyID          string             `json:"study_id"`
	InputCount       int                `json:"input_count"`
	RecordCount      int                `json:"record_count"`
	BaselineCount    int                `json:"baseline_count"`
	SubjectsTotal    int                `json:"subjects_total"`
	SubjectsRejected []SubjectRejection `json:"subjects_rejected"`
}

type CreateRunRequest struct {
	Notify string `json:"notify" binding:"omitempty,email"`
}
