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

// ExtractorClient talks to the scene-based frame extraction service. One
// request is one network round trip bounded by the configured timeout; the
// orchestrator owns any retry policy.
type ExtractorClient struct {
	httpClient *http.Client
	baseURL    string
}

type extractFrameEntry struct {
	Index        int     `json:"index"`
	TimestampSec float64 `json:"timestamp_sec"`
	ImageBase64  []byte  `json:"image_base64,omitempty"`
	ByteSize     int     `json:"byte_size"`
}

type extractRequest struct {
	SourceURL      string  `json:"source_url,omitempty"`
	RemoteID       string  `json:"remote_id,omitempty"`
	InlinePayload  []byte  `json:"inline_payload,omitempty"`
	SceneThreshold float64 `json:"scene_threshold"`
	MaxFrames      int     `json:"max_frames"`
	MinFrames      int     `json:"min_frames"`
}

type extractResponse struct {
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	Frames  []extractFrameEntry `json:"frames"`
}

// NewExtractorClient creates a new frame extraction client
func NewExtractorClient(cfg *config.ExtractorConfig) *ExtractorClient {
	return &ExtractorClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// ExtractFrames runs scene detection on the source and returns the ordered
// keyframe sequence. The response is validated against the frame band and the
// strictly-increasing timestamp invariant before it reaches the pipeline.
func (c *ExtractorClient) ExtractFrames(ctx context.Context, src *model.VideoSource, ec model.ExtractConfig) ([]model.ExtractedFrame, error) {
	req := extractRequest{
		SourceURL:      src.StorageURL,
		RemoteID:       src.RemoteID,
		InlinePayload:  src.Payload,
		SceneThreshold: ec.SceneThreshold,
		MaxFrames:      ec.MaxFrames,
		MinFrames:      ec.MinFrames,
	}

	var resp extractResponse
	if err := c.post(ctx, "/v1/frames/extract", req, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, badResponse(StageNameExtractor, "service reported failure: %s", resp.Error)
	}
	if len(resp.Frames) == 0 {
		return nil, badResponse(StageNameExtractor, "no frames extracted")
	}
	if len(resp.Frames) > ec.MaxFrames {
		return nil, badResponse(StageNameExtractor, "got %d frames, cap is %d", len(resp.Frames), ec.MaxFrames)
	}

	frames := make([]model.ExtractedFrame, 0, len(resp.Frames))
	lastTS := -1.0
	for i, f := range resp.Frames {
		if f.TimestampSec <= lastTS {
			return nil, badResponse(StageNameExtractor, "frame timestamps not strictly increasing at index %d", i)
		}
		lastTS = f.TimestampSec
		frames = append(frames, model.ExtractedFrame{
			Index:            i,
			TimestampSeconds: f.TimestampSec,
			ImagePayload:     f.ImageBase64,
			ByteSize:         f.ByteSize,
		})
	}

	return frames, nil
}

// HealthCheck checks if the extraction service is reachable
func (c *ExtractorClient) HealthCheck(ctx context.Context) error {
	return probeHealth(ctx, c.httpClient, c.baseURL)
}

// IsConfigured returns true if the client has valid configuration
func (c *ExtractorClient) IsConfigured() bool {
	return c.baseURL != ""
}

// post sends a POST request with JSON body and parses the response
func (c *ExtractorClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	log.Printf("[Extractor] → POST %s", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Extractor] ✗ POST %s — request failed: %v", req.URL.String(), err)
		return classifyTransportError(StageNameExtractor, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(StageNameExtractor, err)
	}

	log.Printf("[Extractor] ← %d POST %s", resp.StatusCode, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return badResponse(StageNameExtractor, "status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return badResponse(StageNameExtractor, "invalid JSON response: %v", err)
	}

	return nil
}

// probeHealth is the shared reachability check against a service's /health
// endpoint, bounded by a short fixed timeout.
func probeHealth(ctx context.Context, client *http.Client, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}
