package model

import "time"

// LogCapacity is the fixed size of a run's most-recent-first log ring.
const LogCapacity = 5

// Run represents one end-to-end pipeline execution for a single video source.
// It is mutated only by the orchestrator side (service + worker); everyone
// else reads snapshots.
type Run struct {
	ID          string        `json:"id"`
	Status      RunStatus     `json:"status"`
	Stage       PipelineStage `json:"stage"`
	Progress    int           `json:"progress"`
	Log         []string      `json:"log,omitempty"` // most recent first, capped at LogCapacity
	Error       *string       `json:"error,omitempty"`
	FailedStage PipelineStage `json:"failedStage,omitempty"`
	Payload     []byte        `json:"payload,omitempty"` // run input as JSON
	Result      []byte        `json:"result,omitempty"`  // terminal artifact as JSON
	CreatedAt   time.Time     `json:"createdAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// GenerateJobPayload contains the data for an SOP generation job.
type GenerateJobPayload struct {
	Source       VideoSource `json:"source"`
	Title        string      `json:"title,omitempty"`
	Instructions string      `json:"instructions,omitempty"`
}
