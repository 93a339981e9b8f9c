package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a run progress update
type WSProgressMessage struct {
	Type     string        `json:"type"`
	RunID    string        `json:"runId"`
	Progress int           `json:"progress"`
	Status   RunStatus     `json:"status"`
	Stage    PipelineStage `json:"stage,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// WSCompleteMessage represents run completion
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	RunID  string      `json:"runId"`
	Result interface{} `json:"result"`
}

// WSErrorMessage represents a run failure
type WSErrorMessage struct {
	Type  string  `json:"type"`
	RunID string  `json:"runId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
