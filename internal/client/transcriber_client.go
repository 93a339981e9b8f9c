package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sopsmith/api/internal/config"
	"github.com/sopsmith/api/internal/model"
)

// TranscriberClient talks to the speech-to-text service. The client itself
// propagates failures; the best-effort treatment (empty transcript on any
// failure) lives in the orchestrator, which owns that policy.
type TranscriberClient struct {
	httpClient *http.Client
	baseURL    string
}

type transcribeRequest struct {
	SourceURL     string `json:"source_url,omitempty"`
	RemoteID      string `json:"remote_id,omitempty"`
	InlinePayload []byte `json:"inline_payload,omitempty"`
}

type transcribeSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcribeResponse struct {
	Success  bool                `json:"success"`
	Error    string              `json:"error,omitempty"`
	Text     string              `json:"text"`
	Segments []transcribeSegment `json:"segments,omitempty"`
}

// NewTranscriberClient creates a new transcription client
func NewTranscriberClient(cfg *config.TranscriberConfig) *TranscriberClient {
	return &TranscriberClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Transcribe runs speech recognition over the source audio track.
func (c *TranscriberClient) Transcribe(ctx context.Context, src *model.VideoSource) (*model.Transcript, error) {
	req := transcribeRequest{
		SourceURL:     src.StorageURL,
		RemoteID:      src.RemoteID,
		InlinePayload: src.Payload,
	}

	var resp transcribeResponse
	if err := c.post(ctx, "/v1/transcribe", req, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, badResponse(StageNameTranscriber, "service reported failure: %s", resp.Error)
	}

	transcript := &model.Transcript{Text: resp.Text}
	for _, seg := range resp.Segments {
		transcript.Segments = append(transcript.Segments, model.TranscriptSegment{
			StartSeconds: seg.Start,
			EndSeconds:   seg.End,
			Text:         seg.Text,
		})
	}

	return transcript, nil
}

// HealthCheck checks if the transcription service is reachable
func (c *TranscriberClient) HealthCheck(ctx context.Context) error {
	return probeHealth(ctx, c.httpClient, c.baseURL)
}

// IsConfigured returns true if the client has valid configuration
func (c *TranscriberClient) IsConfigured() bool {
	return c.baseURL != ""
}

// post sends a POST request with JSON body and parses the response
func (c *TranscriberClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	log.Printf("[Transcriber] → POST %s", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Transcriber] ✗ POST %s — request failed: %v", req.URL.String(), err)
		return classifyTransportError(StageNameTranscriber, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(StageNameTranscriber, err)
	}

	log.Printf("[Transcriber] ← %d POST %s", resp.StatusCode, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return badResponse(StageNameTranscriber, "status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return badResponse(StageNameTranscriber, "invalid JSON response: %v", err)
	}

	return nil
}
