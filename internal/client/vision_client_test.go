package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sopsmith/api/internal/config"
	"github.com/sopsmith/api/internal/model"
)

func visionFor(t *testing.T, handler http.HandlerFunc) *VisionClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewVisionClient(&config.VisionConfig{
		ServiceURL:   srv.URL,
		APIKey:       "test-key",
		Model:        "vision-large",
		Timeout:      5,
		MatchTimeout: 5,
	})
}

func visionFrames(n int) []model.ExtractedFrame {
	frames := make([]model.ExtractedFrame, n)
	for i := range frames {
		frames[i] = model.ExtractedFrame{Index: i, TimestampSeconds: float64(i) * 5}
	}
	return frames
}

func TestSynthesizeSteps_Success(t *testing.T) {
	var gotBody synthesizeRequestBody
	var gotAuth string
	c := visionFor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/steps/synthesize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(synthesizeResponseBody{
			Success:         true,
			Title:           "Replace the filter",
			Description:     "How to swap the inline filter.",
			PPERequirements: []string{"gloves"},
			Steps: []synthesizeStepEntry{
				{Title: "Shut off supply", Description: "Close the valve.", SafetyWarnings: []string{"pressure"}},
				{Title: "Swap cartridge", Description: "Unscrew and replace.", ToolsRequired: []string{"wrench"}},
			},
		})
	})

	doc, err := c.SynthesizeSteps(context.Background(), &SynthesizeRequest{
		Title:      "Replace the filter",
		Transcript: "first shut off the supply",
		Frames:     visionFrames(2),
	})
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("missing auth header, got %q", gotAuth)
	}
	if gotBody.StepsExpected != 2 {
		t.Errorf("expected steps_expected=2, got %d", gotBody.StepsExpected)
	}
	if gotBody.Model != "vision-large" {
		t.Errorf("model not forwarded: %q", gotBody.Model)
	}
	if len(doc.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(doc.Steps))
	}
	for i, s := range doc.Steps {
		if s.SourceFrameIndex != i {
			t.Errorf("step %d got initial frame index %d", i, s.SourceFrameIndex)
		}
	}
	if doc.Steps[0].SafetyWarnings[0] != "pressure" {
		t.Errorf("safety warnings lost: %+v", doc.Steps[0])
	}
}

func TestSynthesizeSteps_NoSteps(t *testing.T) {
	c := visionFor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(synthesizeResponseBody{Success: true})
	})

	_, err := c.SynthesizeSteps(context.Background(), &SynthesizeRequest{Frames: visionFrames(2)})
	assertStageErrorKind(t, err, StageErrBadResponse)
}

func TestSynthesizeSteps_ServiceFailure(t *testing.T) {
	c := visionFor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(synthesizeResponseBody{Success: false, Error: "model overloaded"})
	})

	_, err := c.SynthesizeSteps(context.Background(), &SynthesizeRequest{Frames: visionFrames(1)})
	assertStageErrorKind(t, err, StageErrBadResponse)
}

func TestMatchFrames_Success(t *testing.T) {
	c := visionFor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/steps/match" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(matchResponseBody{
			Success: true,
			Matches: []matchEntry{
				{StepIndex: 0, FrameIndex: 2, Confidence: 0.87},
				{StepIndex: 1, FrameIndex: 0, Confidence: 0.64},
			},
		})
	})

	matches, err := c.MatchFrames(context.Background(), visionFrames(3), []string{"step one", "step two"})
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].FrameIndex != 2 || matches[0].Confidence != 0.87 {
		t.Errorf("wrong first match: %+v", matches[0])
	}
}

func TestMatchFrames_FrameIndexOutOfRange(t *testing.T) {
	c := visionFor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(matchResponseBody{
			Success: true,
			Matches: []matchEntry{{StepIndex: 0, FrameIndex: 9, Confidence: 0.5}},
		})
	})

	_, err := c.MatchFrames(context.Background(), visionFrames(2), []string{"step"})
	assertStageErrorKind(t, err, StageErrBadResponse)
}

func TestVisionClient_IsConfigured(t *testing.T) {
	if NewVisionClient(&config.VisionConfig{ServiceURL: "http://x"}).IsConfigured() {
		t.Error("missing API key must not count as configured")
	}
	if !NewVisionClient(&config.VisionConfig{ServiceURL: "http://x", APIKey: "k"}).IsConfigured() {
		t.Error("expected configured client")
	}
}
