package pipeline

import (
	"fmt"

	"github.com/sopsmith/api/internal/model"
)

// AlignPositional maps steps to frames by position. When counts match, step i
// gets frame i. When the synthesizer returned fewer steps than frames, every
// step index beyond the overlap keeps a valid frame reference by clamping to
// the last frame. Returning more steps than frames violates the synthesis
// contract and is reported to the caller.
func AlignPositional(steps []model.SynthesizedStep, frames []model.ExtractedFrame) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to align against")
	}
	if len(steps) > len(frames) {
		return fmt.Errorf("got %d steps for %d frames", len(steps), len(frames))
	}

	last := len(frames) - 1
	for i := range steps {
		if i <= last {
			steps[i].SourceFrameIndex = i
		} else {
			steps[i].SourceFrameIndex = last
		}
	}
	return nil
}

// AlignWithMatches remaps each step to its top-scoring matched frame. Ties on
// confidence break toward the frame with the smallest timestamp. Steps the
// matcher returned nothing for fall back to their clamped positional frame.
func AlignWithMatches(steps []model.SynthesizedStep, frames []model.ExtractedFrame, matches []model.FrameMatch) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to align against")
	}

	type best struct {
		frameIndex int
		confidence float64
		found      bool
	}
	byStep := make([]best, len(steps))

	for _, m := range matches {
		if m.StepIndex < 0 || m.StepIndex >= len(steps) {
			continue
		}
		if m.FrameIndex < 0 || m.FrameIndex >= len(frames) {
			return fmt.Errorf("match for step %d references frame %d out of %d", m.StepIndex, m.FrameIndex, len(frames))
		}

		cur := &byStep[m.StepIndex]
		switch {
		case !cur.found,
			m.Confidence > cur.confidence,
			m.Confidence == cur.confidence && frames[m.FrameIndex].TimestampSeconds < frames[cur.frameIndex].TimestampSeconds:
			*cur = best{frameIndex: m.FrameIndex, confidence: m.Confidence, found: true}
		}
	}

	last := len(frames) - 1
	for i := range steps {
		switch {
		case byStep[i].found:
			steps[i].SourceFrameIndex = byStep[i].frameIndex
		case i <= last:
			steps[i].SourceFrameIndex = i
		default:
			steps[i].SourceFrameIndex = last
		}
	}
	return nil
}
