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

// StepSynthesizer defines the vision-language operations the pipeline needs:
// turning a frame sequence into procedure steps, and re-matching steps to
// frames when the one-step-per-frame contract cannot be trusted.
type StepSynthesizer interface {
	SynthesizeSteps(ctx context.Context, req *SynthesizeRequest) (*model.SOPDocument, error)
	MatchFrames(ctx context.Context, frames []model.ExtractedFrame, stepTexts []string) ([]model.FrameMatch, error)
}

// VisionClient implements StepSynthesizer against the vision-language service.
type VisionClient struct {
	httpClient   *http.Client
	matchClient  *http.Client
	baseURL      string
	apiKey       string
	model        string
}

// SynthesizeRequest is the input for step synthesis. Transcript text is
// appended as a distinct context block so the service can weight visual
// against spoken context; the caller truncates it to its character budget.
type SynthesizeRequest struct {
	Title        string
	Instructions string
	Transcript   string
	Frames       []model.ExtractedFrame
}

type synthesizeFrameEntry struct {
	Index        int     `json:"index"`
	TimestampSec float64 `json:"timestamp_sec"`
	ImageBase64  []byte  `json:"image_base64"`
}

type synthesizeRequestBody struct {
	Model         string                 `json:"model,omitempty"`
	Title         string                 `json:"title,omitempty"`
	Instructions  string                 `json:"instructions,omitempty"`
	Transcript    string                 `json:"transcript,omitempty"`
	Frames        []synthesizeFrameEntry `json:"frames"`
	StepsExpected int                    `json:"steps_expected"`
}

type synthesizeStepEntry struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	SafetyWarnings []string `json:"safety_warnings,omitempty"`
	ToolsRequired  []string `json:"tools_required,omitempty"`
}

type synthesizeResponseBody struct {
	Success           bool                  `json:"success"`
	Error             string                `json:"error,omitempty"`
	Title             string                `json:"title"`
	Description       string                `json:"description"`
	PPERequirements   []string              `json:"ppe_requirements,omitempty"`
	MaterialsRequired []string              `json:"materials_required,omitempty"`
	Steps             []synthesizeStepEntry `json:"steps"`
}

type matchRequestBody struct {
	Model  string                 `json:"model,omitempty"`
	Frames []synthesizeFrameEntry `json:"frames"`
	Steps  []string               `json:"steps"`
}

type matchEntry struct {
	StepIndex  int     `json:"step_index"`
	FrameIndex int     `json:"frame_index"`
	Confidence float64 `json:"confidence"`
}

type matchResponseBody struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Matches []matchEntry `json:"matches"`
}

// NewVisionClient creates a new vision-language service client
func NewVisionClient(cfg *config.VisionConfig) *VisionClient {
	return &VisionClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		matchClient: &http.Client{
			Timeout: time.Duration(cfg.MatchTimeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// SynthesizeSteps asks the vision service for a procedure document with
// exactly one step per input frame, in frame order. That contract is
// cooperative, not enforced by the service; the alignment engine runs the
// length check.
func (c *VisionClient) SynthesizeSteps(ctx context.Context, req *SynthesizeRequest) (*model.SOPDocument, error) {
	body := synthesizeRequestBody{
		Model:         c.model,
		Title:         req.Title,
		Instructions:  req.Instructions,
		Transcript:    req.Transcript,
		StepsExpected: len(req.Frames),
	}
	for _, f := range req.Frames {
		body.Frames = append(body.Frames, synthesizeFrameEntry{
			Index:        f.Index,
			TimestampSec: f.TimestampSeconds,
			ImageBase64:  f.ImagePayload,
		})
	}

	var resp synthesizeResponseBody
	if err := c.post(ctx, c.httpClient, StageNameSynthesizer, "/v1/steps/synthesize", body, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, badResponse(StageNameSynthesizer, "service reported failure: %s", resp.Error)
	}
	if len(resp.Steps) == 0 {
		return nil, badResponse(StageNameSynthesizer, "no steps in response")
	}

	doc := &model.SOPDocument{
		Title:             resp.Title,
		Description:       resp.Description,
		PPERequirements:   resp.PPERequirements,
		MaterialsRequired: resp.MaterialsRequired,
	}
	for i, s := range resp.Steps {
		doc.Steps = append(doc.Steps, model.SynthesizedStep{
			Title:            s.Title,
			Description:      s.Description,
			SafetyWarnings:   s.SafetyWarnings,
			ToolsRequired:    s.ToolsRequired,
			SourceFrameIndex: i,
		})
	}

	return doc, nil
}

// MatchFrames asks the vision service for the best-supporting frame per step.
func (c *VisionClient) MatchFrames(ctx context.Context, frames []model.ExtractedFrame, stepTexts []string) ([]model.FrameMatch, error) {
	body := matchRequestBody{
		Model: c.model,
		Steps: stepTexts,
	}
	for _, f := range frames {
		body.Frames = append(body.Frames, synthesizeFrameEntry{
			Index:        f.Index,
			TimestampSec: f.TimestampSeconds,
			ImageBase64:  f.ImagePayload,
		})
	}

	var resp matchResponseBody
	if err := c.post(ctx, c.matchClient, StageNameMatcher, "/v1/steps/match", body, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, badResponse(StageNameMatcher, "service reported failure: %s", resp.Error)
	}

	matches := make([]model.FrameMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.FrameIndex < 0 || m.FrameIndex >= len(frames) {
			return nil, badResponse(StageNameMatcher, "match for step %d references frame %d, have %d frames", m.StepIndex, m.FrameIndex, len(frames))
		}
		matches = append(matches, model.FrameMatch{
			StepIndex:  m.StepIndex,
			FrameIndex: m.FrameIndex,
			Confidence: m.Confidence,
		})
	}

	return matches, nil
}

// HealthCheck checks if the vision service is reachable
func (c *VisionClient) HealthCheck(ctx context.Context) error {
	return probeHealth(ctx, c.matchClient, c.baseURL)
}

// IsConfigured returns true if the client has valid configuration
func (c *VisionClient) IsConfigured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// post sends a POST request with JSON body and parses the response
func (c *VisionClient) post(ctx context.Context, hc *http.Client, stage, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Vision] → POST %s", req.URL.String())

	resp, err := hc.Do(req)
	if err != nil {
		log.Printf("[Vision] ✗ POST %s — request failed: %v", req.URL.String(), err)
		return classifyTransportError(stage, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(stage, err)
	}

	log.Printf("[Vision] ← %d POST %s", resp.StatusCode, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return badResponse(stage, "status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return badResponse(stage, "invalid JSON response: %v", err)
	}

	return nil
}
