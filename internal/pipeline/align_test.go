package pipeline

import (
	"testing"

	"github.com/sopsmith/api/internal/model"
)

func makeFrames(n int) []model.ExtractedFrame {
	frames := make([]model.ExtractedFrame, n)
	for i := range frames {
		frames[i] = model.ExtractedFrame{
			Index:            i,
			TimestampSeconds: float64(i) * 10.0,
		}
	}
	return frames
}

func makeSteps(n int) []model.SynthesizedStep {
	steps := make([]model.SynthesizedStep, n)
	for i := range steps {
		steps[i] = model.SynthesizedStep{Title: "step", SourceFrameIndex: -1}
	}
	return steps
}

func TestAlignPositional_EqualCounts(t *testing.T) {
	frames := makeFrames(12)
	steps := makeSteps(12)

	if err := AlignPositional(steps, frames); err != nil {
		t.Fatalf("align failed: %v", err)
	}

	for i, s := range steps {
		if s.SourceFrameIndex != i {
			t.Errorf("step %d: expected frame %d, got %d", i, i, s.SourceFrameIndex)
		}
	}
	// The seventh step must land on the seventh frame, nothing else.
	if steps[6].SourceFrameIndex != 6 {
		t.Errorf("step 7 mapped to frame %d", steps[6].SourceFrameIndex)
	}
}

func TestAlignPositional_FewerStepsClampToLast(t *testing.T) {
	frames := makeFrames(12)
	steps := makeSteps(10)

	if err := AlignPositional(steps, frames); err != nil {
		t.Fatalf("align failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		if steps[i].SourceFrameIndex != i {
			t.Errorf("step %d: expected frame %d, got %d", i, i, steps[i].SourceFrameIndex)
		}
	}
}

func TestAlignPositional_ClampBeyondFrames(t *testing.T) {
	// Steps sliced from a larger document may carry indices past the
	// overlap; every assignment must stay in range.
	frames := makeFrames(3)
	steps := makeSteps(3)

	if err := AlignPositional(steps, frames); err != nil {
		t.Fatalf("align failed: %v", err)
	}
	if steps[2].SourceFrameIndex != 2 {
		t.Errorf("last step mapped to frame %d", steps[2].SourceFrameIndex)
	}
}

func TestAlignPositional_MoreStepsThanFrames(t *testing.T) {
	frames := makeFrames(4)
	steps := makeSteps(6)

	if err := AlignPositional(steps, frames); err == nil {
		t.Fatal("expected error for more steps than frames")
	}
}

func TestAlignPositional_NoFrames(t *testing.T) {
	if err := AlignPositional(makeSteps(2), nil); err == nil {
		t.Fatal("expected error for zero frames")
	}
}

func TestAlignWithMatches_TopConfidenceWins(t *testing.T) {
	frames := makeFrames(4)
	steps := makeSteps(2)

	matches := []model.FrameMatch{
		{StepIndex: 0, FrameIndex: 1, Confidence: 0.4},
		{StepIndex: 0, FrameIndex: 3, Confidence: 0.9},
		{StepIndex: 1, FrameIndex: 2, Confidence: 0.7},
	}

	if err := AlignWithMatches(steps, frames, matches); err != nil {
		t.Fatalf("align failed: %v", err)
	}
	if steps[0].SourceFrameIndex != 3 {
		t.Errorf("step 0: expected frame 3, got %d", steps[0].SourceFrameIndex)
	}
	if steps[1].SourceFrameIndex != 2 {
		t.Errorf("step 1: expected frame 2, got %d", steps[1].SourceFrameIndex)
	}
}

func TestAlignWithMatches_TieBreaksToSmallestTimestamp(t *testing.T) {
	frames := makeFrames(4)
	steps := makeSteps(1)

	matches := []model.FrameMatch{
		{StepIndex: 0, FrameIndex: 3, Confidence: 0.8},
		{StepIndex: 0, FrameIndex: 1, Confidence: 0.8},
	}

	if err := AlignWithMatches(steps, frames, matches); err != nil {
		t.Fatalf("align failed: %v", err)
	}
	if steps[0].SourceFrameIndex != 1 {
		t.Errorf("expected tie to break to frame 1, got %d", steps[0].SourceFrameIndex)
	}
}

func TestAlignWithMatches_UnmatchedStepFallsBackPositionally(t *testing.T) {
	frames := makeFrames(3)
	steps := makeSteps(3)

	matches := []model.FrameMatch{
		{StepIndex: 0, FrameIndex: 2, Confidence: 0.9},
	}

	if err := AlignWithMatches(steps, frames, matches); err != nil {
		t.Fatalf("align failed: %v", err)
	}
	if steps[0].SourceFrameIndex != 2 {
		t.Errorf("step 0: expected matched frame 2, got %d", steps[0].SourceFrameIndex)
	}
	if steps[1].SourceFrameIndex != 1 || steps[2].SourceFrameIndex != 2 {
		t.Errorf("unmatched steps got frames %d, %d", steps[1].SourceFrameIndex, steps[2].SourceFrameIndex)
	}
}

func TestAlignWithMatches_FrameOutOfRange(t *testing.T) {
	frames := makeFrames(2)
	steps := makeSteps(1)

	matches := []model.FrameMatch{
		{StepIndex: 0, FrameIndex: 5, Confidence: 0.9},
	}

	if err := AlignWithMatches(steps, frames, matches); err == nil {
		t.Fatal("expected error for out-of-range frame index")
	}
}

func TestAlignWithMatches_IgnoresUnknownSteps(t *testing.T) {
	frames := makeFrames(2)
	steps := makeSteps(1)

	matches := []model.FrameMatch{
		{StepIndex: 7, FrameIndex: 1, Confidence: 0.9},
	}

	if err := AlignWithMatches(steps, frames, matches); err != nil {
		t.Fatalf("align failed: %v", err)
	}
	if steps[0].SourceFrameIndex != 0 {
		t.Errorf("expected positional fallback to frame 0, got %d", steps[0].SourceFrameIndex)
	}
}
