package model

import "time"

// SourceResponse is returned when a video source has been acquired.
type SourceResponse struct {
	SourceID  string       `json:"sourceId"`
	Origin    SourceOrigin `json:"origin"`
	URL       string       `json:"url,omitempty"`
	ByteSize  int64        `json:"byteSize"`
	CreatedAt time.Time    `json:"createdAt"`
}

// CaptureStartResponse is returned when a live recording session opens.
type CaptureStartResponse struct {
	SessionID string    `json:"sessionId"`
	MaxBytes  int64     `json:"maxBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// CaptureChunkResponse acknowledges one buffered media chunk.
type CaptureChunkResponse struct {
	SessionID     string `json:"sessionId"`
	ChunkCount    int    `json:"chunkCount"`
	BufferedBytes int64  `json:"bufferedBytes"`
}

// GenerateStartRequest starts an SOP generation run. Exactly one of SourceID
// (a previously acquired upload or capture) and VideoURL (a supported remote
// host) must be set.
type GenerateStartRequest struct {
	SourceID     string `json:"sourceId" validate:"required_without=VideoURL"`
	VideoURL     string `json:"videoUrl" validate:"required_without=SourceID,omitempty,url"`
	Title        string `json:"title" validate:"omitempty,max=200"`
	Instructions string `json:"instructions" validate:"omitempty,max=2000"`
}

// GenerateStartResponse acknowledges a queued run.
type GenerateStartResponse struct {
	RunID             string    `json:"runId"`
	Status            RunStatus `json:"status"`
	EstimatedDuration int       `json:"estimatedDuration"` // seconds
	CreatedAt         time.Time `json:"createdAt"`
}

// RunStatusResponse is the poll view of a run.
type RunStatusResponse struct {
	RunID       string        `json:"runId"`
	Status      RunStatus     `json:"status"`
	Stage       PipelineStage `json:"stage"`
	Progress    int           `json:"progress"`
	Log         []string      `json:"log,omitempty"`
	Error       *string       `json:"error,omitempty"`
	FailedStage PipelineStage `json:"failedStage,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// RunCancelResponse acknowledges a cancel request.
type RunCancelResponse struct {
	Success bool      `json:"success"`
	RunID   string    `json:"runId"`
	Status  RunStatus `json:"status"`
}

// StepResult is one assembled step with its persisted frame.
type StepResult struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	SafetyWarnings   []string `json:"safetyWarnings,omitempty"`
	ToolsRequired    []string `json:"toolsRequired,omitempty"`
	TimestampSeconds float64  `json:"timestampSeconds"`
	FrameURL         string   `json:"frameUrl,omitempty"`
}

// GenerateResultResponse is the terminal artifact handed to the caller.
type GenerateResultResponse struct {
	RunID             string       `json:"runId"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	PPERequirements   []string     `json:"ppeRequirements,omitempty"`
	MaterialsRequired []string     `json:"materialsRequired,omitempty"`
	Steps             []StepResult `json:"steps"`
	DocumentURL       string       `json:"documentUrl,omitempty"`
	TranscriptUsed    bool         `json:"transcriptUsed"`
	CreatedAt         time.Time    `json:"createdAt"`
}
