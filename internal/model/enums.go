package model

// Source origins
type SourceOrigin string

const (
	OriginUpload      SourceOrigin = "upload"
	OriginRemoteURL   SourceOrigin = "remote_url"
	OriginLiveCapture SourceOrigin = "live_capture"
)

// Run status
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Pipeline stages
type PipelineStage string

const (
	StageInitialized      PipelineStage = "initialized"
	StageExtractingFrames PipelineStage = "extracting_frames"
	StageTranscribing     PipelineStage = "transcribing"
	StageSynthesizing     PipelineStage = "synthesizing"
	StageAligning         PipelineStage = "aligning"
	StageAssembling       PipelineStage = "assembling"
	StageCompleted        PipelineStage = "completed"
)
