package model

// ExtractedFrame is one scene-change keyframe pulled from the source video.
// Frames form an ordered sequence with strictly increasing timestamps and are
// read-only once the extraction stage returns them.
type ExtractedFrame struct {
	Index            int     `json:"index"`
	TimestampSeconds float64 `json:"timestampSeconds"`
	ImagePayload     []byte  `json:"imagePayload,omitempty"`
	ByteSize         int     `json:"byteSize"`
}

// ExtractConfig bounds the frame extraction stage.
type ExtractConfig struct {
	SceneThreshold float64 `json:"sceneThreshold"`
	MaxFrames      int     `json:"maxFrames"`
	MinFrames      int     `json:"minFrames"`
}

// TranscriptSegment is one timed span of recognized speech.
type TranscriptSegment struct {
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
	Text         string  `json:"text"`
}

// Transcript is the best-effort output of the transcription stage. An empty
// transcript is a valid, non-fatal state.
type Transcript struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
}

// SynthesizedStep is one procedure step produced by the vision service.
// SourceFrameIndex starts out as the step's position in the frame sequence
// and may be remapped by the alignment engine.
type SynthesizedStep struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	SafetyWarnings   []string `json:"safetyWarnings,omitempty"`
	ToolsRequired    []string `json:"toolsRequired,omitempty"`
	SourceFrameIndex int      `json:"sourceFrameIndex"`
}

// SOPDocument is the terminal artifact of a pipeline run.
type SOPDocument struct {
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	PPERequirements   []string          `json:"ppeRequirements,omitempty"`
	MaterialsRequired []string          `json:"materialsRequired,omitempty"`
	Steps             []SynthesizedStep `json:"steps"`
}

// FrameMatch is the frame-step matcher's best frame for one step.
type FrameMatch struct {
	StepIndex  int     `json:"stepIndex"`
	FrameIndex int     `json:"frameIndex"`
	Confidence float64 `json:"confidence"`
}
