package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channels published by the derivation pipeline.
const (
	ChannelRunCompleted = "derivation.completed"
	ChannelRunFailed    = "derivation.failed"
)

// RunEvent is the payload published on run lifecycle channels.
type RunEvent struct {
	RunID            string `json:"run_id"`
	StudyID          string `json:"study_id"`
	RecordCount      int    `json:"record_count"`
	RejectedSubjects int    `json:"rejected_subjects"`
	Error            string `json:"error,omitempty"`
}
